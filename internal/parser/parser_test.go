package parser_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/webcrawler/internal/parser"
)

func baseURL(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return *u
}

func TestParse_TitleAndLinks(t *testing.T) {
	// GIVEN the minimal page of a static site
	html := `<html><head><title>T</title></head><body><a href="/a">x</a></body></html>`

	p := parser.NewContentParser(nil)
	page := p.Parse([]byte(html), baseURL(t, "https://example.com/"))

	assert.Equal(t, "T", page.Title())
	require.Len(t, page.Links(), 1)
	assert.Equal(t, "https://example.com/a", page.Links()[0].String())
}

func TestParse_MetaDescription(t *testing.T) {
	html := `<html><head>
<meta name="description" content="first description">
<meta name="description" content="second description">
</head><body></body></html>`

	p := parser.NewContentParser(nil)
	page := p.Parse([]byte(html), baseURL(t, "https://example.com/"))

	// the first meta wins in pre-order
	assert.Equal(t, "first description", page.MetaDescription())
}

func TestParse_TextSkipsScriptAndStyle(t *testing.T) {
	html := `<html><head><title>Doc</title><style>body { color: red }</style></head>
<body>
<p>visible one</p>
<script>var hidden = "not text";</script>
<div>visible <span>two</span></div>
</body></html>`

	p := parser.NewContentParser(nil)
	page := p.Parse([]byte(html), baseURL(t, "https://example.com/"))

	assert.Contains(t, page.Text(), "visible one")
	assert.Contains(t, page.Text(), "visible two")
	assert.NotContains(t, page.Text(), "hidden")
	assert.NotContains(t, page.Text(), "color: red")
}

func TestParse_TextNodesJoinedBySingleSpaces(t *testing.T) {
	html := `<html><body><p>a</p><p>b</p><p>c</p></body></html>`

	p := parser.NewContentParser(nil)
	page := p.Parse([]byte(html), baseURL(t, "https://example.com/"))

	assert.Equal(t, "a b c", page.Text())
}

func TestParse_EmptyTitleTreatedAsAbsent(t *testing.T) {
	html := `<html><head><title>   </title></head><body></body></html>`

	p := parser.NewContentParser(nil)
	page := p.Parse([]byte(html), baseURL(t, "https://example.com/"))

	assert.False(t, page.HasTitle())
}

func TestParse_LinkResolution(t *testing.T) {
	html := `<html><body>
<a href="relative.html">r</a>
<a href="/rooted">p</a>
<a href="//other.example.com/scheme-relative">s</a>
<a href="https://absolute.example.com/x">a</a>
<a href="mailto:someone@example.com">m</a>
<a href="javascript:void(0)">j</a>
</body></html>`

	p := parser.NewContentParser(nil)
	page := p.Parse([]byte(html), baseURL(t, "https://example.com/dir/page.html"))

	var got []string
	for _, link := range page.Links() {
		got = append(got, link.String())
	}

	// document order preserved, unsupported schemes dropped
	assert.Equal(t, []string{
		"https://example.com/dir/relative.html",
		"https://example.com/rooted",
		"https://other.example.com/scheme-relative",
		"https://absolute.example.com/x",
	}, got)
}

func TestParse_DuplicateLinksPreserved(t *testing.T) {
	html := `<html><body><a href="/a">1</a><a href="/a">2</a></body></html>`

	p := parser.NewContentParser(nil)
	page := p.Parse([]byte(html), baseURL(t, "https://example.com/"))

	// the frontier deduplicates, not the parser
	assert.Len(t, page.Links(), 2)
}

func TestParse_TagSoupAccepted(t *testing.T) {
	html := `<html><head><title>Broken</title><body><p>unclosed<div><a href="/still-found">x</a>`

	p := parser.NewContentParser(nil)
	page := p.Parse([]byte(html), baseURL(t, "https://example.com/"))

	assert.Equal(t, "Broken", page.Title())
	require.Len(t, page.Links(), 1)
	assert.Equal(t, "https://example.com/still-found", page.Links()[0].String())
}

func TestParse_BinaryGarbageYieldsEmptyPage(t *testing.T) {
	garbage := []byte{0x00, 0xFF, 0xFE, 0x01, 0x02}

	p := parser.NewContentParser(nil)
	page := p.Parse(garbage, baseURL(t, "https://example.com/"))

	assert.Empty(t, page.Title())
	assert.Empty(t, page.Links())
}
