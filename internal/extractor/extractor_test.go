package extractor

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const richPage = `<!DOCTYPE html>
<html>
<head>
<title>Miller Plumbing | Austin TX</title>
<meta name="description" content="Licensed plumbers serving Austin since 1998.">
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "LocalBusiness",
  "name": "Miller Plumbing",
  "telephone": "(512) 555-0147",
  "email": "office@millerplumbing.example",
  "address": {
    "@type": "PostalAddress",
    "streetAddress": "410 Congress Ave",
    "addressLocality": "Austin",
    "addressRegion": "TX",
    "postalCode": "78701"
  }
}
</script>
<script type="application/ld+json">
{"@type": "FAQPage", "mainEntity": []}
</script>
</head>
<body>
<h1>Miller Plumbing</h1>
<h2>What areas do you serve?</h2>
<h2>Emergency repairs</h2>
<h2>How fast can you arrive?</h2>
<p>We handle drain cleaning, water heaters, and repiping across Austin.</p>
<a href="/services">Services</a>
<a href="/about">About us</a>
<a href="https://www.yelp.com/biz/miller-plumbing">Yelp reviews</a>
<a href="https://maps.google.com/?q=miller+plumbing">Find us on Google Maps</a>
<iframe src="https://www.google.com/maps/embed?pb=abc"></iframe>
</body>
</html>`

func TestExtractRichPage(t *testing.T) {
	bag := New(zap.NewNop()).Extract(richPage, "https://millerplumbing.example/")

	require.Equal(t, "Miller Plumbing | Austin TX", bag.Title)
	require.Equal(t, "Licensed plumbers serving Austin since 1998.", bag.MetaDescription)
	require.Equal(t, []string{"Miller Plumbing"}, bag.Headings.H1)
	require.Len(t, bag.Headings.H2, 3)
	require.Equal(t, 2, bag.QuestionHeads)

	require.Contains(t, bag.SchemaTypes, "LocalBusiness")
	require.Contains(t, bag.SchemaTypes, "FAQPage")
	require.Equal(t, 1, bag.FAQCount)

	require.Equal(t, 2, bag.InternalLinks)
	require.Equal(t, 2, bag.ExternalLinks)
	require.Contains(t, bag.LinksText, "About us")

	require.True(t, bag.HasMapEmbed)
	require.True(t, bag.HasReviewMarkup)

	biz := bag.Business
	require.True(t, biz.LocalBusinessSchema)
	require.True(t, biz.NAPDetected)
	require.Equal(t, "Miller Plumbing", biz.Name)
	require.Equal(t, "(512) 555-0147", biz.Phone)
	require.Equal(t, "Austin", biz.City)
	require.Equal(t, "TX", biz.State)
	require.Equal(t, "78701", biz.PostalCode)
	require.True(t, biz.GoogleBusinessHint)
	require.False(t, biz.AppleBusinessHint)
}

func TestExtractRegexFallbacks(t *testing.T) {
	page := `<html><head><title>Corner Bakery</title></head><body>
	<p>Visit us at 12 Main St, Springfield, IL 62704 or call 217-555-0182.</p>
	<p>Email hello@cornerbakery.example for catering.</p>
	</body></html>`

	bag := New(nil).Extract(page, "https://cornerbakery.example/")

	biz := bag.Business
	require.False(t, biz.LocalBusinessSchema)
	require.Equal(t, "217-555-0182", biz.Phone)
	require.Equal(t, "hello@cornerbakery.example", biz.Email)
	require.Equal(t, "Springfield", biz.City)
	require.Equal(t, "IL", biz.State)
	require.Equal(t, "62704", biz.PostalCode)
	// No schema name means NAP is incomplete.
	require.False(t, biz.NAPDetected)
}

func TestExtractGraphAndTypeList(t *testing.T) {
	page := `<html><head>
	<script type="application/ld+json">
	{"@context":"https://schema.org","@graph":[
	  {"@type":"Organization","name":"Acme"},
	  {"@type":["WebPage","FAQPage"]}
	]}
	</script>
	</head><body><p>hi</p></body></html>`

	bag := New(nil).Extract(page, "https://acme.example/")

	require.Contains(t, bag.SchemaTypes, "Organization")
	require.Contains(t, bag.SchemaTypes, "WebPage")
	require.Contains(t, bag.SchemaTypes, "FAQPage")
	require.Equal(t, 1, bag.FAQCount)
	require.True(t, bag.Business.OrganizationSchema)
}

func TestExtractTitleFallbacks(t *testing.T) {
	bag := New(nil).Extract(`<html><body><h1>Only Heading</h1></body></html>`, "https://x.example/")
	require.Equal(t, "Only Heading", bag.Title)

	bag = New(nil).Extract(`<html><body><p>no title at all</p></body></html>`, "https://fallback.example/")
	require.Equal(t, "fallback.example", bag.Title)
}

func TestExtractMalformedHTML(t *testing.T) {
	bag := New(nil).Extract(`<div><p>unclosed <b>tags<table><tr><td>cell`, "https://broken.example/")
	require.NotZero(t, bag.TextLen)
	require.NotNil(t, bag.SchemaTypes)
	require.NotNil(t, bag.OutLinks)
}

func TestTextStripsChrome(t *testing.T) {
	page := `<html><body>
	<nav>Home About Contact</nav>
	<script>var x = 1;</script>
	<p>Actual content here.</p>
	<footer>Copyright</footer>
	</body></html>`
	bag := New(nil).Extract(page, "https://x.example/")
	require.Equal(t, "Actual content here.", bag.Text)
}
