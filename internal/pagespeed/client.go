// Package pagespeed queries the Google PageSpeed Insights API for lab
// performance metrics. The client is best effort: any failure degrades to
// an unavailable result instead of propagating an error into the scan.
package pagespeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/xenlix/aeoscan/internal/scan"
)

const defaultEndpoint = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"

// Config controls the PSI client.
type Config struct {
	APIKey     string
	Endpoint   string
	Timeout    time.Duration
	MaxRetries uint64
}

// Client fetches PageSpeed metrics over HTTP.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New builds a Client. An empty API key is allowed; Google rate limits
// unauthenticated requests aggressively, so production deploys set one.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 25 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type psiResponse struct {
	LighthouseResult struct {
		Categories struct {
			Performance struct {
				Score *float64 `json:"score"`
			} `json:"performance"`
			SEO struct {
				Score *float64 `json:"score"`
			} `json:"seo"`
		} `json:"categories"`
		Audits struct {
			LCP struct {
				NumericValue *float64 `json:"numericValue"`
			} `json:"largest-contentful-paint"`
			CLS struct {
				NumericValue *float64 `json:"numericValue"`
			} `json:"cumulative-layout-shift"`
		} `json:"audits"`
	} `json:"lighthouseResult"`
}

// Metrics returns normalized PageSpeed metrics for target. Category scores
// come back from the API on a 0..1 scale and are normalized to 0..100.
// Failures after retries are returned; callers degrade the report.
func (c *Client) Metrics(ctx context.Context, target string) (scan.PageSpeed, error) {
	var parsed psiResponse

	backoff := retry.WithMaxRetries(c.cfg.MaxRetries, retry.NewFibonacci(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		body, err := c.fetch(ctx, target)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return fmt.Errorf("decode pagespeed response: %w", err)
		}
		return nil
	})
	if err != nil {
		return scan.PageSpeed{}, fmt.Errorf("pagespeed lookup: %w", err)
	}

	lh := parsed.LighthouseResult
	result := scan.PageSpeed{Available: true}
	if s := lh.Categories.Performance.Score; s != nil {
		v := int(*s*100 + 0.5)
		result.Performance = &v
	}
	if s := lh.Categories.SEO.Score; s != nil {
		v := int(*s*100 + 0.5)
		result.SEO = &v
	}
	if n := lh.Audits.LCP.NumericValue; n != nil {
		ms := int(*n)
		result.LCPMillis = &ms
	}
	if n := lh.Audits.CLS.NumericValue; n != nil {
		cls := *n
		result.CLS = &cls
	}
	return result, nil
}

func (c *Client) fetch(ctx context.Context, target string) ([]byte, error) {
	q := url.Values{}
	q.Set("url", target)
	q.Set("category", "performance")
	q.Add("category", "seo")
	if c.cfg.APIKey != "" {
		q.Set("key", c.cfg.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build pagespeed request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, retry.RetryableError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, retry.RetryableError(err)
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, retry.RetryableError(fmt.Errorf("pagespeed status %d", resp.StatusCode))
	default:
		return nil, fmt.Errorf("pagespeed status %d", resp.StatusCode)
	}
}

// Noop is a PageSpeedClient that always reports metrics as unavailable.
// Used when no API key is configured or in tests.
type Noop struct{}

// Metrics implements scan.PageSpeedClient.
func (Noop) Metrics(context.Context, string) (scan.PageSpeed, error) {
	return scan.PageSpeed{}, nil
}
