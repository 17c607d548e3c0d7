package rules

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/xenlix/aeoscan/internal/scan"
)

// fieldValue is a resolved FeatureBag field. Exactly one of the typed slots
// is meaningful, indicated by kind.
type fieldValue struct {
	kind fieldKind
	num  int
	str  string
	list []string
	flag bool
}

type fieldKind int

const (
	fieldAbsent fieldKind = iota
	fieldNumber
	fieldString
	fieldList
	fieldBool
)

func number(n int) fieldValue      { return fieldValue{kind: fieldNumber, num: n} }
func boolean(b bool) fieldValue    { return fieldValue{kind: fieldBool, flag: b} }
func listOf(l []string) fieldValue { return fieldValue{kind: fieldList, list: l} }

func str(s string) fieldValue {
	if s == "" {
		return fieldValue{}
	}
	return fieldValue{kind: fieldString, str: s}
}

func optionalInt(p *int) fieldValue {
	if p == nil {
		return fieldValue{}
	}
	return number(*p)
}

// present reports whether the value would satisfy a presence check: non-empty
// string or list, true boolean, or any number (including zero, since a
// measured zero is still a measurement).
func (v fieldValue) present() bool {
	switch v.kind {
	case fieldNumber:
		return true
	case fieldString:
		return v.str != ""
	case fieldList:
		return len(v.list) > 0
	case fieldBool:
		return v.flag
	default:
		return false
	}
}

func (v fieldValue) display() string {
	switch v.kind {
	case fieldNumber:
		return strconv.Itoa(v.num)
	case fieldString:
		return v.str
	case fieldList:
		return strconv.Itoa(len(v.list)) + " items"
	case fieldBool:
		return strconv.FormatBool(v.flag)
	default:
		return "absent"
	}
}

// resolveField maps a rule-table field path onto the FeatureBag. Unknown
// paths resolve as absent; scoring under-scores rather than failing.
func resolveField(f *scan.FeatureBag, path string) fieldValue {
	switch path {
	case "title":
		return str(f.Title)
	case "meta_description":
		return str(f.MetaDescription)
	case "faq_count":
		return number(f.FAQCount)
	case "question_headings":
		return number(f.QuestionHeads)
	case "schema_types":
		return listOf(f.SchemaTypes)
	case "schema_type_count":
		return number(countUnique(f.SchemaTypes))
	case "internal_links":
		return number(f.InternalLinks)
	case "external_links":
		return number(f.ExternalLinks)
	case "text_len":
		return number(f.TextLen)
	case "out_links":
		return listOf(f.OutLinks)
	case "links_text":
		return listOf(f.LinksText)
	case "has_review_markup":
		return boolean(f.HasReviewMarkup)
	case "has_map_embed":
		return boolean(f.HasMapEmbed)
	case "headings.h1":
		return listOf(f.Headings.H1)
	case "headings.h2":
		return listOf(f.Headings.H2)
	case "headings.h3":
		return listOf(f.Headings.H3)
	case "business.name":
		return str(f.Business.Name)
	case "business.phone":
		return str(f.Business.Phone)
	case "business.email":
		return str(f.Business.Email)
	case "business.address":
		return str(f.Business.Address)
	case "business.city":
		return str(f.Business.City)
	case "business.state":
		return str(f.Business.State)
	case "business.postal_code":
		return str(f.Business.PostalCode)
	case "business.nap_detected":
		return boolean(f.Business.NAPDetected)
	case "business.localbusiness_schema_detected":
		return boolean(f.Business.LocalBusinessSchema)
	case "business.organization_schema_detected":
		return boolean(f.Business.OrganizationSchema)
	case "business.google_business_hint":
		return boolean(f.Business.GoogleBusinessHint)
	case "business.apple_business_connect_hint":
		return boolean(f.Business.AppleBusinessHint)
	case "psi.performance":
		if !f.PageSpeed.Available {
			return fieldValue{}
		}
		return optionalInt(f.PageSpeed.Performance)
	case "psi.seo":
		if !f.PageSpeed.Available {
			return fieldValue{}
		}
		return optionalInt(f.PageSpeed.SEO)
	case "psi.lcp_ms":
		if !f.PageSpeed.Available {
			return fieldValue{}
		}
		return optionalInt(f.PageSpeed.LCPMillis)
	default:
		return fieldValue{}
	}
}

func countUnique(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[strings.ToLower(strings.TrimSpace(v))] = struct{}{}
	}
	delete(seen, "")
	return len(seen)
}

var templateFieldPattern = regexp.MustCompile(`\{([a-z0-9_.]+)\}`)

// renderTemplate substitutes {field.path} placeholders with resolved values.
// Unresolvable placeholders render as "absent" so output stays deterministic.
func renderTemplate(tmpl string, f *scan.FeatureBag) string {
	return templateFieldPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		path := strings.Trim(match, "{}")
		return resolveField(f, path).display()
	})
}
