// Package rules implements the data-driven AEO/GEO scoring engine.
//
// A RuleTable is loaded once at startup, validated exhaustively, and treated
// as immutable for the process lifetime. Evaluation is pure: identical
// FeatureBags produce identical reports.
package rules

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed config/scoring_rules.yaml
var defaultTableYAML []byte

// RuleKind selects the contribution semantics of a rule. The set is closed;
// unknown kinds fail at load time.
type RuleKind string

// Supported rule kinds.
const (
	// KindLinear contributes multiplier * numeric field value.
	KindLinear RuleKind = "linear"
	// KindSetCount contributes multiplier * |targets present in list field|.
	KindSetCount RuleKind = "set_count"
	// KindBonus contributes a fixed bonus when the field is present/true.
	KindBonus RuleKind = "bonus"
	// KindCapped contributes min(cap, field value / divisor).
	KindCapped RuleKind = "capped"
	// KindMetricFallback contributes metric/divisor when the external metric
	// is available, else a fixed fallback so unmeasured sites are not zeroed.
	KindMetricFallback RuleKind = "metric_fallback"
)

// Operator selects weakness condition semantics.
type Operator string

// Supported weakness operators.
const (
	OpNotPresent  Operator = "not_present"
	OpNotContains Operator = "not_contains"
	OpLessThan    Operator = "less_than"
	OpEquals      Operator = "equals"
)

// Rule is one point rule inside a dimension. Only the parameters its kind
// needs are consulted.
type Rule struct {
	Field      string   `yaml:"field"`
	Kind       RuleKind `yaml:"kind"`
	Multiplier int      `yaml:"multiplier,omitempty"`
	Targets    []string `yaml:"targets,omitempty"`
	Bonus      int      `yaml:"bonus,omitempty"`
	Divisor    int      `yaml:"divisor,omitempty"`
	Cap        int      `yaml:"cap,omitempty"`
	Fallback   int      `yaml:"fallback,omitempty"`
	Label      string   `yaml:"label,omitempty"`
}

// Dimension is one scored category: base score plus accumulated rule
// contributions, clamped to [0, max_score].
type Dimension struct {
	Name      string `yaml:"name"`
	BaseScore int    `yaml:"base_score"`
	MaxScore  int    `yaml:"max_score"`
	Rationale string `yaml:"rationale,omitempty"`
	Rules     []Rule `yaml:"rules"`
}

// Condition is a weakness trigger: field, operator, comparison value.
type Condition struct {
	Field    string   `yaml:"field"`
	Operator Operator `yaml:"operator"`
	Value    any      `yaml:"value,omitempty"`
}

// Weakness defines a reportable finding evaluated independently of scoring.
type Weakness struct {
	Title            string    `yaml:"title"`
	Impact           string    `yaml:"impact"`
	Condition        Condition `yaml:"condition"`
	Evidence         []string  `yaml:"evidence,omitempty"`
	EvidenceTemplate string    `yaml:"evidence_template,omitempty"`
	Fix              string    `yaml:"fix_summary"`
}

// Table is the complete scoring configuration.
type Table struct {
	AEODimensions []Dimension `yaml:"aeo_dimensions"`
	GEODimensions []Dimension `yaml:"geo_dimensions"`
	Weaknesses    []Weakness  `yaml:"weaknesses"`
}

// LoadDefault parses the rule table embedded in the binary.
func LoadDefault() (*Table, error) {
	return Parse(defaultTableYAML)
}

// LoadFile reads and parses a rule table from disk.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	table, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return table, nil
}

// Parse unmarshals and validates a rule table. A malformed table is a
// startup-time contract violation: this must never surface per request.
func Parse(data []byte) (*Table, error) {
	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &table, nil
}

// Validate checks every dimension, rule and weakness. It fails fast on the
// first violation with an actionable message.
func (t *Table) Validate() error {
	if len(t.AEODimensions) == 0 && len(t.GEODimensions) == 0 {
		return fmt.Errorf("rules: no dimensions defined")
	}
	for _, group := range []struct {
		name string
		dims []Dimension
	}{{"aeo", t.AEODimensions}, {"geo", t.GEODimensions}} {
		for i, dim := range group.dims {
			if err := dim.validate(); err != nil {
				return fmt.Errorf("rules: %s dimension %d (%q): %w", group.name, i, dim.Name, err)
			}
		}
	}
	for i, w := range t.Weaknesses {
		if err := w.validate(); err != nil {
			return fmt.Errorf("rules: weakness %d (%q): %w", i, w.Title, err)
		}
	}
	return nil
}

func (d Dimension) validate() error {
	if d.Name == "" {
		return fmt.Errorf("missing name")
	}
	if d.MaxScore <= 0 {
		return fmt.Errorf("max_score must be > 0")
	}
	if d.BaseScore < 0 || d.BaseScore > d.MaxScore {
		return fmt.Errorf("base_score %d outside [0, %d]", d.BaseScore, d.MaxScore)
	}
	for i, r := range d.Rules {
		if err := r.validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}

func (r Rule) validate() error {
	if r.Field == "" {
		return fmt.Errorf("missing field")
	}
	switch r.Kind {
	case KindLinear:
		if r.Multiplier == 0 {
			return fmt.Errorf("linear rule needs a non-zero multiplier")
		}
	case KindSetCount:
		if r.Multiplier == 0 {
			return fmt.Errorf("set_count rule needs a non-zero multiplier")
		}
		if len(r.Targets) == 0 {
			return fmt.Errorf("set_count rule needs targets")
		}
	case KindBonus:
		if r.Bonus == 0 {
			return fmt.Errorf("bonus rule needs a non-zero bonus")
		}
	case KindCapped:
		if r.Divisor <= 0 {
			return fmt.Errorf("capped rule needs divisor > 0")
		}
		if r.Cap <= 0 {
			return fmt.Errorf("capped rule needs cap > 0")
		}
	case KindMetricFallback:
		if r.Divisor <= 0 {
			return fmt.Errorf("metric_fallback rule needs divisor > 0")
		}
	case "":
		return fmt.Errorf("missing kind")
	default:
		return fmt.Errorf("unknown rule kind %q", r.Kind)
	}
	return nil
}

func (w Weakness) validate() error {
	if w.Title == "" {
		return fmt.Errorf("missing title")
	}
	switch w.Impact {
	case "low", "med", "high":
	default:
		return fmt.Errorf("impact must be low|med|high, got %q", w.Impact)
	}
	if w.Condition.Field == "" {
		return fmt.Errorf("condition missing field")
	}
	switch w.Condition.Operator {
	case OpNotPresent:
	case OpNotContains, OpLessThan, OpEquals:
		if w.Condition.Value == nil {
			return fmt.Errorf("operator %s needs a comparison value", w.Condition.Operator)
		}
	case "":
		return fmt.Errorf("condition missing operator")
	default:
		return fmt.Errorf("unknown operator %q", w.Condition.Operator)
	}
	return nil
}
