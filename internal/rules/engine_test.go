package rules

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenlix/aeoscan/internal/scan"
)

func defaultEngine(t *testing.T) *Engine {
	t.Helper()
	table, err := LoadDefault()
	require.NoError(t, err)
	return NewEngine(table, zap.NewNop())
}

func intPtr(n int) *int { return &n }

func richFeatures() *scan.FeatureBag {
	return &scan.FeatureBag{
		Title:         "Plumbing Pros of Austin",
		FAQCount:      3,
		QuestionHeads: 2,
		SchemaTypes:   []string{"LocalBusiness", "FAQPage", "PostalAddress"},
		InternalLinks: 42,
		ExternalLinks: 6,
		OutLinks:      []string{"https://yelp.com/biz/plumbing-pros", "https://facebook.com/plumbingpros"},
		LinksText:     []string{"About Us", "Contact", "Services"},
		TextLen:       5200,
		HasMapEmbed:   true,
		Business: scan.Business{
			Name:                "Plumbing Pros",
			Phone:               "(512) 555-0134",
			Address:             "100 Main St, Austin, TX 78701",
			City:                "Austin",
			State:               "TX",
			NAPDetected:         true,
			LocalBusinessSchema: true,
			GoogleBusinessHint:  true,
		},
		PageSpeed: scan.PageSpeed{Available: true, Performance: intPtr(88), SEO: intPtr(92)},
	}
}

func TestScore_Deterministic(t *testing.T) {
	t.Parallel()

	engine := defaultEngine(t)
	features := richFeatures()

	first, err := json.Marshal(engine.Score(features))
	require.NoError(t, err)
	second, err := json.Marshal(engine.Score(features))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestScore_DimensionClamp(t *testing.T) {
	t.Parallel()

	engine := defaultEngine(t)
	features := richFeatures()
	features.FAQCount = 500 // would overflow Answerability without the clamp

	report := engine.Score(features)
	for _, dims := range [][]scan.DimensionScore{report.AEODimensions, report.GEODimensions} {
		for _, d := range dims {
			require.GreaterOrEqual(t, d.Score, 0, d.Name)
			require.LessOrEqual(t, d.Score, 100, d.Name)
		}
	}
	require.Equal(t, 100, report.AEODimensions[0].Score)
}

func TestScore_EmptyBagStillCompletes(t *testing.T) {
	t.Parallel()

	engine := defaultEngine(t)
	report := engine.Score(&scan.FeatureBag{})

	require.Len(t, report.AEODimensions, 4)
	require.Len(t, report.GEODimensions, 4)
	require.NotEmpty(t, report.Weaknesses)

	// Every dimension sits at or above its base score floor; rules only add
	// points in this table, except the performance fallback which adds 25.
	require.Equal(t, 5, report.AEODimensions[0].Score)  // Answerability base
	require.Equal(t, 5, report.AEODimensions[1].Score)  // Schema Richness base
	require.Equal(t, 0, report.AEODimensions[2].Score)  // Content Depth base
	require.Equal(t, 25, report.GEODimensions[3].Score) // Performance fallback
}

func TestScore_TotalsAreSumsOfDimensions(t *testing.T) {
	t.Parallel()

	engine := defaultEngine(t)
	report := engine.Score(richFeatures())

	sumAEO, sumGEO := 0, 0
	for _, d := range report.AEODimensions {
		sumAEO += d.Score
	}
	for _, d := range report.GEODimensions {
		sumGEO += d.Score
	}
	require.Equal(t, sumAEO, report.AEOTotal)
	require.Equal(t, sumGEO, report.GEOTotal)
	require.Greater(t, report.AEOTotal, 100) // sums are not rescaled to 0-100
}

func TestScore_MetricFallback(t *testing.T) {
	t.Parallel()

	engine := defaultEngine(t)

	withMetric := richFeatures()
	report := engine.Score(withMetric)
	perf := report.GEODimensions[3]
	require.Equal(t, 44, perf.Score) // 88 / 2
	require.Contains(t, perf.Evidence, "psi.performance=88")

	withoutMetric := richFeatures()
	withoutMetric.PageSpeed = scan.PageSpeed{}
	report = engine.Score(withoutMetric)
	perf = report.GEODimensions[3]
	require.Equal(t, 25, perf.Score)
	require.Contains(t, perf.Evidence, "psi.performance=unavailable, fallback applied")
}

func TestScore_SetCountMatching(t *testing.T) {
	t.Parallel()

	require.Equal(t, 2, countTargetMatches(
		[]string{"yelp.com", "facebook.com", "bbb.org"},
		[]string{"https://YELP.com/biz/x", "https://m.facebook.com/x", "https://example.com"},
	))
	require.Equal(t, 0, countTargetMatches([]string{"yelp.com"}, nil))
	// A target matching several values still counts once.
	require.Equal(t, 1, countTargetMatches(
		[]string{"about"},
		[]string{"About Us", "More About The Team"},
	))
}

func TestWeaknesses_SpecConditions(t *testing.T) {
	t.Parallel()

	engine := defaultEngine(t)

	// Missing LocalBusiness schema must fire on the false flag.
	features := richFeatures()
	features.Business.LocalBusinessSchema = false
	report := engine.Score(features)
	require.True(t, hasWeakness(report, "Missing LocalBusiness schema"))

	// PSI performance 65 fires the less_than(70) weakness; 75 does not.
	features = richFeatures()
	features.PageSpeed.Performance = intPtr(65)
	report = engine.Score(features)
	require.True(t, hasWeakness(report, "Slow page performance"))
	slow := findWeakness(report, "Slow page performance")
	require.Equal(t, []string{"PageSpeed performance score is 65"}, slow.Evidence)

	features.PageSpeed.Performance = intPtr(75)
	report = engine.Score(features)
	require.False(t, hasWeakness(report, "Slow page performance"))

	// Absent metric never triggers less_than.
	features.PageSpeed = scan.PageSpeed{}
	report = engine.Score(features)
	require.False(t, hasWeakness(report, "Slow page performance"))
}

func TestWeaknesses_NotContainsIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	engine := defaultEngine(t)

	features := richFeatures()
	features.SchemaTypes = []string{"faqpage"}
	report := engine.Score(features)
	require.False(t, hasWeakness(report, "Missing FAQ structured data"))

	features.SchemaTypes = []string{"Organization"}
	report = engine.Score(features)
	require.True(t, hasWeakness(report, "Missing FAQ structured data"))
}

func TestWeaknesses_EmptyBagListsCoreMissingSignals(t *testing.T) {
	t.Parallel()

	engine := defaultEngine(t)
	report := engine.Score(&scan.FeatureBag{})

	for _, title := range []string{
		"No schema.org markup detected",
		"Missing LocalBusiness schema",
		"Incomplete NAP information",
		"Thin content",
	} {
		require.True(t, hasWeakness(report, title), title)
	}
}

func TestWeaknesses_TableOrderPreserved(t *testing.T) {
	t.Parallel()

	engine := defaultEngine(t)
	report := engine.Score(&scan.FeatureBag{})

	prev := -1
	for _, w := range report.Weaknesses {
		idx := weaknessTableIndex(engine.table, w.Title)
		require.Greater(t, idx, prev)
		prev = idx
	}
}

func hasWeakness(r Report, title string) bool {
	return findWeakness(r, title) != nil
}

func findWeakness(r Report, title string) *scan.WeaknessItem {
	for i := range r.Weaknesses {
		if r.Weaknesses[i].Title == title {
			return &r.Weaknesses[i]
		}
	}
	return nil
}

func weaknessTableIndex(t *Table, title string) int {
	for i, w := range t.Weaknesses {
		if w.Title == title {
			return i
		}
	}
	return -1
}
