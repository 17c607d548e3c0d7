package rules

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xenlix/aeoscan/internal/scan"
)

// Report is the engine's output: per-dimension scores with evidence, summed
// totals, and the triggered weaknesses in table order.
type Report struct {
	AEOTotal      int
	GEOTotal      int
	AEODimensions []scan.DimensionScore
	GEODimensions []scan.DimensionScore
	Weaknesses    []scan.WeaknessItem
}

// Engine evaluates an immutable rule table against FeatureBags. It is safe
// for concurrent use and holds no per-call state.
type Engine struct {
	table  *Table
	logger *zap.Logger
}

// NewEngine wraps a validated table.
func NewEngine(table *Table, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{table: table, logger: logger}
}

// Score evaluates every dimension and weakness against the features.
// Deterministic and side-effect free: no wall clock, no randomness. A
// per-rule mismatch is logged and skipped, never aborts the pass.
func (e *Engine) Score(features *scan.FeatureBag) Report {
	report := Report{
		AEODimensions: e.scoreDimensions(e.table.AEODimensions, features),
		GEODimensions: e.scoreDimensions(e.table.GEODimensions, features),
		Weaknesses:    e.evaluateWeaknesses(features),
	}
	// Totals are sums of already-capped dimension scores. The theoretical
	// maximum is the sum of per-dimension caps; no rescaling to 0-100.
	for _, d := range report.AEODimensions {
		report.AEOTotal += d.Score
	}
	for _, d := range report.GEODimensions {
		report.GEOTotal += d.Score
	}
	return report
}

func (e *Engine) scoreDimensions(dims []Dimension, features *scan.FeatureBag) []scan.DimensionScore {
	out := make([]scan.DimensionScore, 0, len(dims))
	for _, dim := range dims {
		score := dim.BaseScore
		evidence := []string{}
		for _, rule := range dim.Rules {
			points, ev, err := e.applyRule(rule, features)
			if err != nil {
				e.logger.Warn("rule skipped",
					zap.String("dimension", dim.Name),
					zap.String("field", rule.Field),
					zap.Error(err))
				continue
			}
			score += points
			if points != 0 {
				evidence = append(evidence, ev...)
			}
		}
		out = append(out, scan.DimensionScore{
			Name:      dim.Name,
			Score:     clamp(score, 0, dim.MaxScore),
			Rationale: dim.Rationale,
			Evidence:  evidence,
		})
	}
	return out
}

func (e *Engine) applyRule(rule Rule, features *scan.FeatureBag) (int, []string, error) {
	value := resolveField(features, rule.Field)

	switch rule.Kind {
	case KindLinear:
		if value.kind == fieldAbsent {
			return 0, nil, nil
		}
		if value.kind != fieldNumber {
			return 0, nil, fmt.Errorf("linear rule on non-numeric field")
		}
		return rule.Multiplier * value.num, []string{rule.Field + "=" + strconv.Itoa(value.num)}, nil

	case KindSetCount:
		if value.kind == fieldAbsent {
			return 0, nil, nil
		}
		if value.kind != fieldList {
			return 0, nil, fmt.Errorf("set_count rule on non-list field")
		}
		matches := countTargetMatches(rule.Targets, value.list)
		return rule.Multiplier * matches, []string{"matches=" + strconv.Itoa(matches)}, nil

	case KindBonus:
		if !value.present() {
			return 0, nil, nil
		}
		label := rule.Label
		if label == "" {
			label = rule.Field + " present"
		}
		return rule.Bonus, []string{label}, nil

	case KindCapped:
		if value.kind == fieldAbsent {
			return 0, nil, nil
		}
		if value.kind != fieldNumber {
			return 0, nil, fmt.Errorf("capped rule on non-numeric field")
		}
		points := value.num / rule.Divisor
		if points > rule.Cap {
			points = rule.Cap
		}
		return points, []string{rule.Field + "=" + strconv.Itoa(value.num)}, nil

	case KindMetricFallback:
		if value.kind == fieldAbsent {
			return rule.Fallback, []string{rule.Field + "=unavailable, fallback applied"}, nil
		}
		if value.kind != fieldNumber {
			return 0, nil, fmt.Errorf("metric_fallback rule on non-numeric field")
		}
		return value.num / rule.Divisor, []string{rule.Field + "=" + strconv.Itoa(value.num)}, nil

	default:
		// Unreachable for a validated table.
		return 0, nil, fmt.Errorf("unknown rule kind %q", rule.Kind)
	}
}

// countTargetMatches counts how many configured targets appear in the list
// field, by case-insensitive substring match. Each target counts at most once.
func countTargetMatches(targets, values []string) int {
	matches := 0
	for _, target := range targets {
		t := strings.ToLower(target)
		for _, v := range values {
			if strings.Contains(strings.ToLower(v), t) {
				matches++
				break
			}
		}
	}
	return matches
}

func (e *Engine) evaluateWeaknesses(features *scan.FeatureBag) []scan.WeaknessItem {
	out := []scan.WeaknessItem{}
	for _, w := range e.table.Weaknesses {
		if !conditionHolds(w.Condition, features) {
			continue
		}
		evidence := w.Evidence
		if w.EvidenceTemplate != "" {
			evidence = []string{renderTemplate(w.EvidenceTemplate, features)}
		}
		if evidence == nil {
			evidence = []string{}
		}
		out = append(out, scan.WeaknessItem{
			Title:    w.Title,
			Impact:   w.Impact,
			Evidence: evidence,
			Fix:      w.Fix,
		})
	}
	return out
}

func conditionHolds(c Condition, features *scan.FeatureBag) bool {
	value := resolveField(features, c.Field)

	switch c.Operator {
	case OpNotPresent:
		return !value.present()

	case OpNotContains:
		if value.kind != fieldList {
			return false
		}
		want := strings.ToLower(fmt.Sprintf("%v", c.Value))
		for _, v := range value.list {
			if strings.ToLower(v) == want {
				return false
			}
		}
		return true

	case OpLessThan:
		// An absent numeric never triggers: missing data is not evidence of
		// a low measurement.
		if value.kind != fieldNumber {
			return false
		}
		threshold, ok := asInt(c.Value)
		return ok && value.num < threshold

	case OpEquals:
		switch value.kind {
		case fieldBool:
			want, ok := c.Value.(bool)
			return ok && value.flag == want
		case fieldNumber:
			want, ok := asInt(c.Value)
			return ok && value.num == want
		case fieldString:
			want, ok := c.Value.(string)
			return ok && value.str == want
		case fieldAbsent:
			// Absent booleans compare equal to false so definitions may use
			// either not_present or equals(false) for missing flags.
			want, ok := c.Value.(bool)
			return ok && !want
		default:
			return false
		}

	default:
		return false
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func clamp(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
