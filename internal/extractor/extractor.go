// Package extractor turns fetched HTML into a normalized FeatureBag.
//
// Extraction is best effort: malformed HTML, missing schema, and absent
// business details all produce a partially filled bag, never an error.
package extractor

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/xenlix/aeoscan/internal/scan"
)

var (
	phonePattern  = regexp.MustCompile(`(\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	emailPattern  = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	zipPattern    = regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`)
	cityStZipPat  = regexp.MustCompile(`([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*),\s*([A-Z]{2})\s+(\d{5}(?:-\d{4})?)`)
	questionStart = []string{"what", "how", "why", "when", "where", "who", "which", "can", "do", "does", "is", "are", "should"}
)

// Extractor parses HTML with goquery and derives page, schema, and business
// signals.
type Extractor struct {
	logger *zap.Logger
}

// New constructs an Extractor.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract builds a FeatureBag from raw HTML. finalURL anchors internal vs
// external link classification.
func (e *Extractor) Extract(html string, finalURL string) scan.FeatureBag {
	bag := scan.FeatureBag{
		SchemaTypes: []string{},
		OutLinks:    []string{},
		LinksText:   []string{},
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// goquery tolerates broken markup; a hard parse failure leaves the
		// bag empty rather than failing the scan.
		e.logger.Warn("html parse failed", zap.String("url", finalURL), zap.Error(err))
		return bag
	}

	htmlLower := strings.ToLower(html)

	bag.Title = extractTitle(doc, finalURL)
	bag.MetaDescription = extractMetaDescription(doc)
	bag.Headings = extractHeadings(doc)
	bag.QuestionHeads = countQuestionHeadings(bag.Headings.H2)

	text := extractText(doc)
	bag.Text = text
	bag.TextLen = len(text)

	jsonLD := extractJSONLD(doc)
	bag.SchemaTypes, bag.FAQCount = schemaTypesAndFAQCount(jsonLD)

	collectLinks(doc, finalURL, &bag)

	bag.HasReviewMarkup = strings.Contains(htmlLower, "review")
	bag.HasMapEmbed = strings.Contains(htmlLower, "maps.google") ||
		strings.Contains(htmlLower, "google.com/maps/embed")

	bag.Business = extractBusiness(jsonLD, text, htmlLower, bag.OutLinks)
	return bag
}

// extractTitle falls back from <title> to og:title to the first H1 to the
// hostname, mirroring how much of the teaser depends on having some title.
func extractTitle(doc *goquery.Document, finalURL string) string {
	if t := collapse(doc.Find("title").First().Text()); t != "" {
		return t
	}
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		if t := collapse(og); t != "" {
			return t
		}
	}
	if h1 := collapse(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	if u, err := url.Parse(finalURL); err == nil {
		return u.Hostname()
	}
	return ""
}

func extractMetaDescription(doc *goquery.Document) string {
	if d, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		if v := collapse(d); v != "" {
			return v
		}
	}
	if d, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		return collapse(d)
	}
	return ""
}

func extractHeadings(doc *goquery.Document) scan.Headings {
	texts := func(sel string) []string {
		var out []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if t := collapse(s.Text()); t != "" {
				out = append(out, t)
			}
		})
		return out
	}
	return scan.Headings{H1: texts("h1"), H2: texts("h2"), H3: texts("h3")}
}

func countQuestionHeadings(h2s []string) int {
	n := 0
	for _, h := range h2s {
		lower := strings.ToLower(h)
		if strings.Contains(h, "?") {
			n++
			continue
		}
		for _, prefix := range questionStart {
			if strings.HasPrefix(lower, prefix+" ") {
				n++
				break
			}
		}
	}
	return n
}

// extractText approximates main-content extraction: body text with script,
// style and nav chrome removed, whitespace collapsed.
func extractText(doc *goquery.Document) string {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, nav, footer, header").Remove()
	return collapse(body.Text())
}

func extractJSONLD(doc *goquery.Document) []map[string]any {
	var items []map[string]any
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var single map[string]any
		if err := json.Unmarshal([]byte(raw), &single); err == nil {
			items = append(items, flattenGraph(single)...)
			return
		}
		var many []map[string]any
		if err := json.Unmarshal([]byte(raw), &many); err == nil {
			for _, m := range many {
				items = append(items, flattenGraph(m)...)
			}
		}
	})
	return items
}

// flattenGraph expands @graph containers so their nodes are scanned like
// top-level items.
func flattenGraph(item map[string]any) []map[string]any {
	graph, ok := item["@graph"].([]any)
	if !ok {
		return []map[string]any{item}
	}
	out := make([]map[string]any, 0, len(graph)+1)
	out = append(out, item)
	for _, node := range graph {
		if m, ok := node.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func schemaTypesAndFAQCount(items []map[string]any) ([]string, int) {
	var types []string
	faq := 0
	seen := map[string]struct{}{}
	for _, item := range items {
		for _, t := range typeNames(item["@type"]) {
			if strings.EqualFold(t, "FAQPage") {
				faq++
			}
			key := strings.ToLower(t)
			if _, dup := seen[key]; dup || key == "" {
				continue
			}
			seen[key] = struct{}{}
			types = append(types, t)
		}
	}
	if types == nil {
		types = []string{}
	}
	return types, faq
}

// typeNames normalizes an @type value (string, list, or IRI) to bare names.
func typeNames(v any) []string {
	switch t := v.(type) {
	case string:
		parts := strings.Split(t, "/")
		return []string{parts[len(parts)-1]}
	case []any:
		var out []string
		for _, x := range t {
			out = append(out, typeNames(x)...)
		}
		return out
	default:
		return nil
	}
}

func collectLinks(doc *goquery.Document, finalURL string, bag *scan.FeatureBag) {
	base, err := url.Parse(finalURL)
	if err != nil {
		base = &url.URL{}
	}
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		if t := collapse(s.Text()); t != "" {
			bag.LinksText = append(bag.LinksText, t)
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		host := strings.ToLower(abs.Hostname())
		switch {
		case host == "" || host == strings.ToLower(base.Hostname()):
			bag.InternalLinks++
		default:
			bag.ExternalLinks++
			bag.OutLinks = append(bag.OutLinks, abs.String())
		}
	})
}

func extractBusiness(items []map[string]any, text, htmlLower string, outLinks []string) scan.Business {
	var biz scan.Business

	for _, item := range items {
		names := typeNames(item["@type"])
		isBusiness := false
		for _, t := range names {
			lower := strings.ToLower(t)
			if strings.Contains(lower, "localbusiness") {
				biz.LocalBusinessSchema = true
				isBusiness = true
			}
			if lower == "organization" {
				biz.OrganizationSchema = true
				isBusiness = true
			}
		}
		if !isBusiness {
			continue
		}
		if biz.Name == "" {
			biz.Name, _ = item["name"].(string)
		}
		if biz.Phone == "" {
			biz.Phone, _ = item["telephone"].(string)
		}
		if biz.Email == "" {
			biz.Email, _ = item["email"].(string)
		}
		if addr, ok := item["address"].(map[string]any); ok {
			setIfEmpty(&biz.StreetAddress, addr["streetAddress"])
			setIfEmpty(&biz.City, addr["addressLocality"])
			setIfEmpty(&biz.State, addr["addressRegion"])
			setIfEmpty(&biz.PostalCode, addr["postalCode"])
			if biz.Address == "" {
				biz.Address = joinNonEmpty(biz.StreetAddress, biz.City, biz.State, biz.PostalCode)
			}
		}
	}

	// Regex fallbacks over visible text for pages without schema.
	if biz.Phone == "" {
		biz.Phone = phonePattern.FindString(text)
	}
	if biz.Email == "" {
		biz.Email = emailPattern.FindString(text)
	}
	if biz.City == "" {
		if m := cityStZipPat.FindStringSubmatch(text); m != nil {
			biz.City, biz.State = m[1], m[2]
			if biz.PostalCode == "" {
				biz.PostalCode = m[3]
			}
		}
	}
	if biz.PostalCode == "" {
		biz.PostalCode = zipPattern.FindString(text)
	}
	if biz.Address == "" {
		biz.Address = joinNonEmpty(biz.StreetAddress, biz.City, biz.State, biz.PostalCode)
	}

	linkBlob := strings.ToLower(strings.Join(outLinks, " ")) + " " + htmlLower
	biz.GoogleBusinessHint = strings.Contains(linkBlob, "google.com/maps") ||
		strings.Contains(linkBlob, "maps.google.com") ||
		strings.Contains(linkBlob, "g.page") ||
		strings.Contains(linkBlob, "business.google.com")
	biz.AppleBusinessHint = strings.Contains(linkBlob, "maps.apple.com") ||
		strings.Contains(linkBlob, "businessconnect.apple.com")

	biz.NAPDetected = biz.Name != "" && biz.Phone != "" &&
		(biz.Address != "" || (biz.City != "" && biz.State != ""))
	return biz
}

func setIfEmpty(dst *string, v any) {
	if *dst != "" {
		return
	}
	if s, ok := v.(string); ok {
		*dst = s
	}
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
