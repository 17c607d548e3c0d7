// Package scan defines core types shared across subsystems.
package scan

import "time"

// JobState represents the lifecycle state of a scan job.
type JobState string

// Job states persisted in the job store. TeaserReady is an intermediate
// publish point, not terminal; the pipeline continues toward FullReady.
const (
	StateQueued          JobState = "queued"
	StateRunning         JobState = "running"
	StateTeaserReady     JobState = "teaser_ready"
	StateFullReady       JobState = "full_ready"
	StateErrorValidation JobState = "error_validation"
	StateErrorCrawl      JobState = "error_crawl"
	StateErrorAnalyze    JobState = "error_analyze"
)

// IsTerminal reports whether a job in this state will never change again.
func (s JobState) IsTerminal() bool {
	switch s {
	case StateFullReady, StateErrorValidation, StateErrorCrawl, StateErrorAnalyze:
		return true
	default:
		return false
	}
}

// ExternalStatus maps the internal state onto the coarse status exposed to
// polling frontends: pending | processing | done | failed.
func (s JobState) ExternalStatus() string {
	switch s {
	case StateQueued:
		return "pending"
	case StateRunning, StateTeaserReady:
		return "processing"
	case StateFullReady:
		return "done"
	case StateErrorValidation, StateErrorCrawl, StateErrorAnalyze:
		return "failed"
	default:
		return "pending"
	}
}

// Step is the sub-state within Running, used for progress reporting only.
type Step string

// Pipeline steps in execution order.
const (
	StepCrawl    Step = "crawl"
	StepParse    Step = "parse"
	StepAnalyze  Step = "analyze"
	StepGenerate Step = "generate"
)

// Job is the persisted record of a scan's identity, lifecycle and results.
type Job struct {
	ID        string         `json:"id"`
	URL       string         `json:"url"`
	State     JobState       `json:"state"`
	Step      Step           `json:"step,omitempty"`
	Progress  int            `json:"progress"`
	ErrorText string         `json:"error_text,omitempty"`
	Created   time.Time      `json:"created_at"`
	Updated   time.Time      `json:"updated_at"`
	Started   *time.Time     `json:"started_at,omitempty"`
	Finished  *time.Time     `json:"finished_at,omitempty"`
	ExpiresAt time.Time      `json:"expires_at"`
	Teaser    *TeaserPayload `json:"teaser,omitempty"`
	Full      *FullPayload   `json:"full,omitempty"`
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string `json:"job_id"`
	URL       string `json:"url"`
	Attempt   int    `json:"attempt"`
	Submitted int64  `json:"submitted"`
}

// Headings groups heading texts by level.
type Headings struct {
	H1 []string `json:"h1"`
	H2 []string `json:"h2"`
	H3 []string `json:"h3"`
}

// Business holds the NAP fields and local-SEO signals extracted from a page.
type Business struct {
	Name          string `json:"name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	Address       string `json:"address,omitempty"`
	StreetAddress string `json:"street_address,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	PostalCode    string `json:"postal_code,omitempty"`

	NAPDetected         bool `json:"nap_detected"`
	LocalBusinessSchema bool `json:"localbusiness_schema_detected"`
	OrganizationSchema  bool `json:"organization_schema_detected"`
	GoogleBusinessHint  bool `json:"google_business_hint"`
	AppleBusinessHint   bool `json:"apple_business_connect_hint"`
}

// PageSpeed carries the optional metrics from the external page-speed
// service. Available=false means the collaborator could not supply data and
// scoring falls back to configured defaults.
type PageSpeed struct {
	Available   bool     `json:"available"`
	Performance *int     `json:"performance,omitempty"`
	SEO         *int     `json:"seo,omitempty"`
	LCPMillis   *int     `json:"lcp_ms,omitempty"`
	CLS         *float64 `json:"cls,omitempty"`
}

// FeatureBag is the normalized output of extraction and the sole input to
// scoring. Every field is optional; absence is a valid, common outcome.
type FeatureBag struct {
	Title           string    `json:"title,omitempty"`
	MetaDescription string    `json:"meta_description,omitempty"`
	Headings        Headings  `json:"headings"`
	SchemaTypes     []string  `json:"schema_types"`
	FAQCount        int       `json:"faq_count"`
	QuestionHeads   int       `json:"question_headings"`
	InternalLinks   int       `json:"internal_links"`
	ExternalLinks   int       `json:"external_links"`
	OutLinks        []string  `json:"out_links"`
	LinksText       []string  `json:"links_text"`
	TextLen         int       `json:"text_len"`
	Text            string    `json:"-"`
	HasReviewMarkup bool      `json:"has_review_markup"`
	HasMapEmbed     bool      `json:"has_map_embed"`
	Business        Business  `json:"business"`
	PageSpeed       PageSpeed `json:"psi"`
}

// FetchResult is what the page fetcher returns for a target URL.
type FetchResult struct {
	HTML       string
	FinalURL   string
	StatusCode int
	Duration   time.Duration
}

// TeaserPayload is the free-tier summary published before enrichment runs.
type TeaserPayload struct {
	Title          string        `json:"title,omitempty"`
	HasSchema      bool          `json:"has_schema"`
	SchemaCount    int           `json:"schema_count"`
	AEOEstimate    int           `json:"aeo_estimate"`
	GEOEstimate    int           `json:"geo_estimate"`
	TopFindings    []string      `json:"top_findings,omitempty"`
	Business       TeaserBiz     `json:"business"`
	KeyphraseCount int           `json:"keyphrase_count"`
	PageSpeed      TeaserSpeed   `json:"psi"`
	FetchDuration  time.Duration `json:"-"`
}

// TeaserBiz is the abbreviated business block in the teaser.
type TeaserBiz struct {
	Name        string `json:"name,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	NAPDetected bool   `json:"nap_detected"`
}

// TeaserSpeed is the abbreviated page-speed block in the teaser.
type TeaserSpeed struct {
	Available   bool `json:"available"`
	Performance *int `json:"performance,omitempty"`
	SEO         *int `json:"seo,omitempty"`
}

// ReportCard is a Lighthouse-style summary card in the full payload.
type ReportCard struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Score        float64 `json:"score"`
	Impact       string  `json:"impact"`
	Description  string  `json:"description"`
	SuggestedFix string  `json:"suggested_fix"`
}

// ContentSummary describes the page structure for the full payload.
type ContentSummary struct {
	Title           string   `json:"title,omitempty"`
	MetaDescription string   `json:"meta_description,omitempty"`
	Headings        Headings `json:"headings"`
	SchemaTypes     []string `json:"schema_types"`
	FAQCount        int      `json:"faq_count"`
	InternalLinks   int      `json:"internal_links"`
	ExternalLinks   int      `json:"external_links"`
	TextLen         int      `json:"text_len"`
}

// FullPayload is the complete scored report, gated by premium status at the
// API layer. Full populated implies Teaser is populated.
type FullPayload struct {
	AEOTotal        int              `json:"aeo_total"`
	GEOTotal        int              `json:"geo_total"`
	AEODimensions   []DimensionScore `json:"aeo_dimensions"`
	GEODimensions   []DimensionScore `json:"geo_dimensions"`
	Weaknesses      []WeaknessItem   `json:"weaknesses"`
	ReportCards     []ReportCard     `json:"report_cards"`
	Business        Business         `json:"business"`
	Content         ContentSummary   `json:"content"`
	Keyphrases      []string         `json:"keyphrases"`
	Recommendations []string         `json:"recommendations"`
	PageSpeed       PageSpeed        `json:"psi"`
	ElapsedMillis   int64            `json:"elapsed_ms"`
}

// DimensionScore is one scored category with its supporting evidence.
type DimensionScore struct {
	Name      string   `json:"name"`
	Score     int      `json:"score"`
	Rationale string   `json:"rationale,omitempty"`
	Evidence  []string `json:"evidence"`
}

// WeaknessItem is one triggered weakness in rule-table order.
type WeaknessItem struct {
	Title    string   `json:"title"`
	Impact   string   `json:"impact"`
	Evidence []string `json:"evidence"`
	Fix      string   `json:"fix_summary"`
}
