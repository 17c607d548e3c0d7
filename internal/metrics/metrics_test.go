package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Reset collectors for testing purposes.
	scansTotal = nil
	scanStageDurationSeconds = nil
	httpRequestsTotal = nil

	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if scansTotal == nil || scanStageDurationSeconds == nil || httpRequestsTotal == nil ||
		activeWorkers == nil || queueDepth == nil || enrichmentFailuresTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveScan("full_ready")
	if val := testutil.ToFloat64(scansTotal.WithLabelValues("full_ready")); val != 1 {
		t.Errorf("expected scan_jobs_total{state=full_ready} to be 1, got %f", val)
	}
}

func TestWorkerGauge(t *testing.T) {
	Init()
	before := testutil.ToFloat64(activeWorkers)
	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	if got := testutil.ToFloat64(activeWorkers); got != before+1 {
		t.Errorf("expected active workers %f, got %f", before+1, got)
	}
}

func TestQueueDepthGauge(t *testing.T) {
	Init()
	SetQueueDepth(7)
	if got := testutil.ToFloat64(queueDepth); got != 7 {
		t.Errorf("expected queue depth 7, got %f", got)
	}
}

func TestEnrichmentFailures(t *testing.T) {
	Init()
	ObserveEnrichmentFailure("pagespeed")
	ObserveEnrichmentFailure("pagespeed")
	if got := testutil.ToFloat64(enrichmentFailuresTotal.WithLabelValues("pagespeed")); got != 2 {
		t.Errorf("expected 2 pagespeed failures, got %f", got)
	}
}

func TestObserveReapedIgnoresZero(t *testing.T) {
	Init()
	ObserveReaped("expired", 0)
	ObserveReaped("expired", 3)
	if got := testutil.ToFloat64(reapedJobsTotal.WithLabelValues("expired")); got != 3 {
		t.Errorf("expected 3 reaped jobs, got %f", got)
	}
}

func TestObserveStageDoesNotPanic(t *testing.T) {
	Init()
	ObserveStage("crawl", 250*time.Millisecond)
}
