// Package pipeline executes a scan job end to end: validate, fetch, extract,
// score, publish the teaser, then enrich and publish the full report.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xenlix/aeoscan/internal/metrics"
	"github.com/xenlix/aeoscan/internal/rules"
	"github.com/xenlix/aeoscan/internal/scan"
)

// Progress checkpoints per stage. The store clamps progress non-decreasing,
// so re-running a partially completed job can only move forward.
const (
	progressCrawlStart = 5
	progressFetched    = 25
	progressParsed     = 45
	progressTeaser     = 60
	progressGenerate   = 75
	progressDone       = 100
)

// Config bounds each stage of a run. RunTimeout is the wall-clock budget for
// the whole run; the reaper uses the same cutoff to fail crashed jobs.
type Config struct {
	RunTimeout      time.Duration
	FetchTimeout    time.Duration
	AnalyzeTimeout  time.Duration
	GenerateTimeout time.Duration
	TopKeyphrases   int
}

func (c *Config) applyDefaults() {
	if c.RunTimeout == 0 {
		c.RunTimeout = 10 * time.Minute
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = 20 * time.Second
	}
	if c.AnalyzeTimeout == 0 {
		c.AnalyzeTimeout = 30 * time.Second
	}
	if c.GenerateTimeout == 0 {
		c.GenerateTimeout = 30 * time.Second
	}
	if c.TopKeyphrases == 0 {
		c.TopKeyphrases = 8
	}
}

// Pipeline wires the scan collaborators together. Everything beyond fetch,
// extract, and score is best effort: enrichment failures degrade the report
// instead of failing the job.
type Pipeline struct {
	cfg        Config
	store      scan.JobStore
	fetcher    scan.Fetcher
	extractor  scan.Extractor
	engine     *rules.Engine
	pagespeed  scan.PageSpeedClient
	keyphrases scan.KeyphraseExtractor
	recommend  scan.Recommender
	archive    scan.ArchiveStore
	clock      scan.Clock
	logger     *zap.Logger
}

// Deps lists the collaborators for New.
type Deps struct {
	Store      scan.JobStore
	Fetcher    scan.Fetcher
	Extractor  scan.Extractor
	Engine     *rules.Engine
	PageSpeed  scan.PageSpeedClient
	Keyphrases scan.KeyphraseExtractor
	Recommend  scan.Recommender
	Archive    scan.ArchiveStore
	Clock      scan.Clock
	Logger     *zap.Logger
}

// New constructs a Pipeline.
func New(cfg Config, deps Deps) *Pipeline {
	cfg.applyDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:        cfg,
		store:      deps.Store,
		fetcher:    deps.Fetcher,
		extractor:  deps.Extractor,
		engine:     deps.Engine,
		pagespeed:  deps.PageSpeed,
		keyphrases: deps.Keyphrases,
		recommend:  deps.Recommend,
		archive:    deps.Archive,
		clock:      deps.Clock,
		logger:     logger,
	}
}

// Run executes the job. Re-running a terminal job is a no-op, so duplicate
// queue deliveries are harmless.
func (p *Pipeline) Run(ctx context.Context, jobID string) error {
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	logger := p.logger.With(zap.String("job_id", jobID), zap.String("url", job.URL))

	if job.State.IsTerminal() {
		logger.Info("job already terminal, skipping", zap.String("state", string(job.State)))
		return nil
	}

	start := p.clock.Now()
	ctx, cancelRun := context.WithTimeout(ctx, p.cfg.RunTimeout)
	defer cancelRun()

	if err := scan.ValidateTargetURL(job.URL); err != nil {
		logger.Warn("url rejected", zap.Error(err))
		return p.fail(ctx, jobID, scan.StateErrorValidation, err.Error())
	}

	// CRAWL
	if err := p.store.UpdateState(ctx, jobID, scan.StateRunning, scan.StepCrawl, progressCrawlStart, ""); err != nil {
		return fmt.Errorf("mark crawl start: %w", err)
	}
	fetchStart := p.clock.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	page, err := p.fetcher.Fetch(fetchCtx, job.URL)
	cancel()
	metrics.ObserveStage("crawl", p.clock.Now().Sub(fetchStart))
	if err != nil {
		logger.Warn("fetch failed", zap.Error(err))
		return p.fail(ctx, jobID, scan.StateErrorCrawl, fmt.Sprintf("fetch failed: %v", err))
	}
	if err := p.store.UpdateState(ctx, jobID, scan.StateRunning, scan.StepCrawl, progressFetched, ""); err != nil {
		return fmt.Errorf("mark fetched: %w", err)
	}
	p.snapshot(ctx, logger, jobID, page)

	// PARSE
	parseStart := p.clock.Now()
	features := p.extractor.Extract(page.HTML, page.FinalURL)
	metrics.ObserveStage("parse", p.clock.Now().Sub(parseStart))
	if err := p.store.UpdateState(ctx, jobID, scan.StateRunning, scan.StepParse, progressParsed, ""); err != nil {
		return fmt.Errorf("mark parsed: %w", err)
	}

	// ANALYZE
	analyzeStart := p.clock.Now()
	analyzeCtx, cancel := context.WithTimeout(ctx, p.cfg.AnalyzeTimeout)
	features.PageSpeed = p.pageSpeed(analyzeCtx, logger, page.FinalURL)
	keyphrases := p.keyphraseList(analyzeCtx, logger, features.Text)
	cancel()
	report := p.engine.Score(&features)
	metrics.ObserveStage("analyze", p.clock.Now().Sub(analyzeStart))

	teaser := buildTeaser(features, report, keyphrases, page.Duration)
	if err := p.store.SaveTeaser(ctx, jobID, teaser); err != nil {
		logger.Error("save teaser failed", zap.Error(err))
		return p.fail(ctx, jobID, scan.StateErrorAnalyze, fmt.Sprintf("save teaser: %v", err))
	}
	if err := p.store.UpdateState(ctx, jobID, scan.StateTeaserReady, scan.StepAnalyze, progressTeaser, ""); err != nil {
		return fmt.Errorf("mark teaser ready: %w", err)
	}

	// GENERATE
	if err := p.store.UpdateState(ctx, jobID, scan.StateRunning, scan.StepGenerate, progressGenerate, ""); err != nil {
		return fmt.Errorf("mark generate start: %w", err)
	}
	generateStart := p.clock.Now()
	full := buildFull(features, report, keyphrases)
	genCtx, cancel := context.WithTimeout(ctx, p.cfg.GenerateTimeout)
	recs, err := p.recommend.Recommendations(genCtx, features, full)
	cancel()
	if err != nil {
		logger.Warn("recommendations degraded", zap.Error(err))
		metrics.ObserveEnrichmentFailure("recommend")
	}
	full.Recommendations = recs
	full.ElapsedMillis = p.clock.Now().Sub(start).Milliseconds()
	metrics.ObserveStage("generate", p.clock.Now().Sub(generateStart))

	if err := p.store.SaveFull(ctx, jobID, full); err != nil {
		logger.Error("save full report failed", zap.Error(err))
		return p.fail(ctx, jobID, scan.StateErrorAnalyze, fmt.Sprintf("save full report: %v", err))
	}
	if err := p.store.UpdateState(ctx, jobID, scan.StateFullReady, "", progressDone, ""); err != nil {
		return fmt.Errorf("mark full ready: %w", err)
	}

	metrics.ObserveScan(string(scan.StateFullReady))
	logger.Info("scan complete",
		zap.Int("aeo_total", full.AEOTotal),
		zap.Int("geo_total", full.GEOTotal),
		zap.Int64("elapsed_ms", full.ElapsedMillis))
	return nil
}

func (p *Pipeline) fail(ctx context.Context, jobID string, state scan.JobState, errText string) error {
	// The terminal write must land even when the run budget expired.
	ctx = context.WithoutCancel(ctx)
	if err := p.store.UpdateState(ctx, jobID, state, "", 0, errText); err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	metrics.ObserveScan(string(state))
	return nil
}

func (p *Pipeline) snapshot(ctx context.Context, logger *zap.Logger, jobID string, page scan.FetchResult) {
	path := fmt.Sprintf("scans/%s/page.html", jobID)
	if _, err := p.archive.Put(ctx, path, "text/html", []byte(page.HTML)); err != nil {
		logger.Warn("archive snapshot failed", zap.Error(err))
		metrics.ObserveEnrichmentFailure("archive")
	}
}

func (p *Pipeline) pageSpeed(ctx context.Context, logger *zap.Logger, url string) scan.PageSpeed {
	ps, err := p.pagespeed.Metrics(ctx, url)
	if err != nil {
		logger.Warn("pagespeed degraded", zap.Error(err))
		metrics.ObserveEnrichmentFailure("pagespeed")
		return scan.PageSpeed{}
	}
	return ps
}

func (p *Pipeline) keyphraseList(ctx context.Context, logger *zap.Logger, text string) []string {
	phrases, err := p.keyphrases.Keyphrases(ctx, text, p.cfg.TopKeyphrases)
	if err != nil {
		logger.Warn("keyphrases degraded", zap.Error(err))
		metrics.ObserveEnrichmentFailure("keyphrases")
		return nil
	}
	return phrases
}

func buildTeaser(features scan.FeatureBag, report rules.Report, keyphrases []string, fetchDuration time.Duration) scan.TeaserPayload {
	findings := make([]string, 0, 2)
	for _, w := range report.Weaknesses {
		findings = append(findings, w.Title)
		if len(findings) == 2 {
			break
		}
	}
	return scan.TeaserPayload{
		Title:       features.Title,
		HasSchema:   len(features.SchemaTypes) > 0,
		SchemaCount: len(features.SchemaTypes),
		AEOEstimate: report.AEOTotal,
		GEOEstimate: report.GEOTotal,
		TopFindings: findings,
		Business: scan.TeaserBiz{
			Name:        features.Business.Name,
			City:        features.Business.City,
			State:       features.Business.State,
			NAPDetected: features.Business.NAPDetected,
		},
		KeyphraseCount: len(keyphrases),
		PageSpeed: scan.TeaserSpeed{
			Available:   features.PageSpeed.Available,
			Performance: features.PageSpeed.Performance,
			SEO:         features.PageSpeed.SEO,
		},
		FetchDuration: fetchDuration,
	}
}

func buildFull(features scan.FeatureBag, report rules.Report, keyphrases []string) scan.FullPayload {
	return scan.FullPayload{
		AEOTotal:      report.AEOTotal,
		GEOTotal:      report.GEOTotal,
		AEODimensions: report.AEODimensions,
		GEODimensions: report.GEODimensions,
		Weaknesses:    report.Weaknesses,
		ReportCards:   buildReportCards(features),
		Business:      features.Business,
		Content: scan.ContentSummary{
			Title:           features.Title,
			MetaDescription: features.MetaDescription,
			Headings:        features.Headings,
			SchemaTypes:     features.SchemaTypes,
			FAQCount:        features.FAQCount,
			InternalLinks:   features.InternalLinks,
			ExternalLinks:   features.ExternalLinks,
			TextLen:         features.TextLen,
		},
		Keyphrases: keyphrases,
		PageSpeed:  features.PageSpeed,
	}
}

// contentDepthBaseline is the word count treated as full content depth.
const contentDepthBaseline = 600

// buildReportCards derives the four fixed audit cards from extracted
// signals: structured data, PSI SEO, local NAP, and content depth. Every
// card is always present; the score is 1.0 when the check passes.
func buildReportCards(features scan.FeatureBag) []scan.ReportCard {
	cards := make([]scan.ReportCard, 0, 4)

	hasSchema := len(features.SchemaTypes) > 0 ||
		features.Business.LocalBusinessSchema ||
		features.Business.OrganizationSchema
	schemaScore := 0.0
	schemaDesc := "No structured data detected on the page"
	schemaFix := "Add JSON-LD LocalBusiness with name, address, telephone, and sameAs links"
	if hasSchema {
		schemaScore = 1.0
		schemaDesc = "JSON-LD or microdata detected (LocalBusiness/Organization)"
		schemaFix = "Validate schema fields with Google Rich Results Test"
	}
	cards = append(cards, scan.ReportCard{
		ID:           "schema",
		Title:        "Structured data",
		Score:        schemaScore,
		Impact:       impactForScore(schemaScore),
		Description:  schemaDesc,
		SuggestedFix: schemaFix,
	})

	seoScore := 0.0
	seoDesc := "PSI SEO score unavailable"
	if features.PageSpeed.Available && features.PageSpeed.SEO != nil {
		seoScore = math.Min(1, math.Max(0, float64(*features.PageSpeed.SEO)/100))
		seoDesc = fmt.Sprintf("PageSpeed Insights SEO score is %d", *features.PageSpeed.SEO)
	}
	cards = append(cards, scan.ReportCard{
		ID:           "psi-seo",
		Title:        "SEO (PSI)",
		Score:        round2(seoScore),
		Impact:       impactForScore(seoScore),
		Description:  seoDesc,
		SuggestedFix: "Optimize title/meta tags, anchors, and crawlability; address PSI recommendations",
	})

	napScore := 0.0
	napDesc := "Business name, phone, and/or address not clearly present"
	napFix := "Add visible NAP to the page and mirror it in LocalBusiness JSON-LD"
	if features.Business.NAPDetected {
		napScore = 1.0
		napDesc = "Business name, phone, and address present"
		napFix = "Ensure NAP consistency across site and listings"
	}
	cards = append(cards, scan.ReportCard{
		ID:           "nap",
		Title:        "Local NAP signals",
		Score:        napScore,
		Impact:       impactForScore(napScore),
		Description:  napDesc,
		SuggestedFix: napFix,
	})

	words := len(strings.Fields(features.Text))
	contentScore := math.Min(1, float64(words)/contentDepthBaseline)
	contentFix := "Expand primary content to 500-800+ words with clear H1/H2s and local modifiers"
	if words >= 500 {
		contentFix = "Review headings and internal links to reinforce topical coverage"
	}
	cards = append(cards, scan.ReportCard{
		ID:           "content-depth",
		Title:        "Content depth",
		Score:        round2(contentScore),
		Impact:       impactForScore(contentScore),
		Description:  fmt.Sprintf("Approx. %d words extracted from main content", words),
		SuggestedFix: contentFix,
	})

	return cards
}

func impactForScore(score float64) string {
	switch {
	case score < 0.3:
		return "high"
	case score < 0.7:
		return "med"
	default:
		return "low"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
