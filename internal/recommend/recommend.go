// Package recommend produces actionable improvement suggestions for the
// full report. The static recommender maps detected weaknesses to playbook
// fixes; the remote recommender asks an LLM endpoint for tailored copy and
// falls back to static output on any failure.
package recommend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/xenlix/aeoscan/internal/scan"
)

const maxRecommendations = 7

// Static derives recommendations directly from weakness fixes, ordered by
// impact so the highest-leverage changes come first.
type Static struct{}

// NewStatic constructs a Static recommender.
func NewStatic() *Static {
	return &Static{}
}

// Recommendations implements scan.Recommender.
func (s *Static) Recommendations(_ context.Context, _ scan.FeatureBag, full scan.FullPayload) ([]string, error) {
	var out []string
	seen := map[string]struct{}{}
	for _, impact := range []string{"high", "med", "low"} {
		for _, w := range full.Weaknesses {
			if w.Impact != impact || w.Fix == "" {
				continue
			}
			if _, dup := seen[w.Fix]; dup {
				continue
			}
			seen[w.Fix] = struct{}{}
			out = append(out, w.Fix)
			if len(out) == maxRecommendations {
				return out, nil
			}
		}
	}
	return out, nil
}

// RemoteConfig controls the LLM-backed recommender.
type RemoteConfig struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Remote asks a chat-completions style endpoint to write recommendations
// tailored to the page. Failures degrade to the static recommender.
type Remote struct {
	cfg      RemoteConfig
	http     *http.Client
	fallback *Static
	logger   *zap.Logger
}

// NewRemote builds a Remote recommender.
func NewRemote(cfg RemoteConfig, logger *zap.Logger) *Remote {
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Remote{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		fallback: NewStatic(),
		logger:   logger,
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Recommendations implements scan.Recommender.
func (r *Remote) Recommendations(ctx context.Context, features scan.FeatureBag, full scan.FullPayload) ([]string, error) {
	recs, err := r.ask(ctx, features, full)
	if err != nil {
		r.logger.Warn("remote recommendations failed, using static fallback", zap.Error(err))
		return r.fallback.Recommendations(ctx, features, full)
	}
	return recs, nil
}

func (r *Remote) ask(ctx context.Context, features scan.FeatureBag, full scan.FullPayload) ([]string, error) {
	prompt, err := buildPrompt(features, full)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(chatRequest{
		Model: r.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are an AEO/GEO consultant. Reply with a JSON object {\"recommendations\": [..]} containing at most 7 short, concrete action items."},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal recommendation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build recommendation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recommendation request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read recommendation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recommendation endpoint status %d", resp.StatusCode)
	}

	var chat chatResponse
	if err := json.Unmarshal(body, &chat); err != nil {
		return nil, fmt.Errorf("decode recommendation response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("recommendation response had no choices")
	}

	var parsed struct {
		Recommendations []string `json:"recommendations"`
	}
	if err := json.Unmarshal([]byte(chat.Choices[0].Message.Content), &parsed); err != nil {
		return nil, fmt.Errorf("decode recommendation content: %w", err)
	}
	if len(parsed.Recommendations) == 0 {
		return nil, fmt.Errorf("recommendation content was empty")
	}
	if len(parsed.Recommendations) > maxRecommendations {
		parsed.Recommendations = parsed.Recommendations[:maxRecommendations]
	}
	return parsed.Recommendations, nil
}

func buildPrompt(features scan.FeatureBag, full scan.FullPayload) (string, error) {
	summary := map[string]any{
		"title":            features.Title,
		"meta_description": features.MetaDescription,
		"schema_types":     features.SchemaTypes,
		"faq_count":        features.FAQCount,
		"text_len":         features.TextLen,
	}
	summary["aeo_total"] = full.AEOTotal
	summary["geo_total"] = full.GEOTotal
	summary["weaknesses"] = full.Weaknesses
	blob, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("marshal page summary: %w", err)
	}
	return "Suggest improvements for this page analysis: " + string(blob), nil
}
