package scan

import (
	"context"
	"errors"
	"time"
)

// Store errors shared by all JobStore implementations.
var (
	ErrNotFound      = errors.New("job not found")
	ErrAlreadyExists = errors.New("job already exists")
)

// JobStore persists scan jobs. Writes to a single job are only ever performed
// by the worker owning it; reads (status polling) are concurrent. Progress is
// clamped non-decreasing and terminal states are immutable at the store level.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	UpdateState(ctx context.Context, jobID string, state JobState, step Step, progress int, errText string) error
	SaveTeaser(ctx context.Context, jobID string, teaser TeaserPayload) error
	SaveFull(ctx context.Context, jobID string, full FullPayload) error
	// DeleteExpired removes jobs whose ExpiresAt is before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)
	// FailStuck force-terminates jobs still running past cutoff.
	FailStuck(ctx context.Context, cutoff time.Time, errText string) (int, error)
}

// Queue decouples enqueueing a scan from executing it. Dequeue must not
// deliver the same in-flight item to two workers.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Fetcher retrieves a single page, bounded by timeout and a body-size cap.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// Extractor turns fetched HTML into a FeatureBag. Best effort: it must not
// fail on malformed HTML.
type Extractor interface {
	Extract(html string, finalURL string) FeatureBag
}

// PageSpeedClient supplies optional performance metrics. Implementations
// degrade to Available=false rather than returning an error for routine
// unavailability.
type PageSpeedClient interface {
	Metrics(ctx context.Context, url string) (PageSpeed, error)
}

// KeyphraseExtractor is the optional keyphrase enrichment collaborator.
type KeyphraseExtractor interface {
	Keyphrases(ctx context.Context, text string, topN int) ([]string, error)
}

// Recommender generates improvement recommendations, best effort.
type Recommender interface {
	Recommendations(ctx context.Context, features FeatureBag, full FullPayload) ([]string, error)
}

// ArchiveStore snapshots raw fetched HTML for debugging. Failures never
// affect the owning job.
type ArchiveStore interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// PremiumChecker gates access to the full payload. The pipeline never
// consults it; only the API layer does.
type PremiumChecker interface {
	IsPremium(ctx context.Context, token string) bool
}

// Clock returns the current time (swappable in tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
