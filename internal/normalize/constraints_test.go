package normalize_test

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/webcrawler/internal/normalize"
)

func sourceURL(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return *u
}

func TestNormalize_BuildsFrontmatter(t *testing.T) {
	constraint := normalize.NewMarkdownConstraint(nil)
	fetchedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	doc, err := constraint.Normalize(
		sourceURL(t, "https://example.com/page"),
		"https://example.com/final",
		"Page Title",
		"# Heading\n\nBody text.",
		fetchedAt,
	)
	require.Nil(t, err)

	fm := doc.Frontmatter()
	assert.Equal(t, "Page Title", fm.Title())
	assert.Equal(t, "https://example.com/page", fm.SourceURL())
	assert.Equal(t, "https://example.com/final", fm.FinalURL())
	assert.Equal(t, fetchedAt, fm.FetchedAt())
	assert.NotEmpty(t, fm.ContentHash())
}

func TestNormalize_ContentHashIsDeterministic(t *testing.T) {
	constraint := normalize.NewMarkdownConstraint(nil)
	now := time.Now()

	first, err := constraint.Normalize(sourceURL(t, "https://x.test/a"), "", "", "same content", now)
	require.Nil(t, err)
	second, err := constraint.Normalize(sourceURL(t, "https://x.test/b"), "", "", "same content", now)
	require.Nil(t, err)

	assert.Equal(t, first.Frontmatter().ContentHash(), second.Frontmatter().ContentHash())
}

func TestNormalize_CollapsesExcessBlankLines(t *testing.T) {
	constraint := normalize.NewMarkdownConstraint(nil)

	doc, err := constraint.Normalize(
		sourceURL(t, "https://x.test/a"),
		"",
		"",
		"para one\n\n\n\n\npara two",
		time.Now(),
	)
	require.Nil(t, err)

	assert.Equal(t, "para one\n\npara two\n", doc.Content())
}

func TestNormalize_EmptyContentRejected(t *testing.T) {
	constraint := normalize.NewMarkdownConstraint(nil)

	_, err := constraint.Normalize(sourceURL(t, "https://x.test/a"), "", "", "   \n\t  ", time.Now())
	require.NotNil(t, err)
}

func TestRender_FrontmatterBlock(t *testing.T) {
	fetchedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fm := normalize.NewFrontmatter("T", "https://x.test/a", "https://x.test/a", fetchedAt, "abc123")
	doc := normalize.NewNormalizedMarkdownDoc(fm, "body\n")

	rendered := doc.Render()

	assert.True(t, strings.HasPrefix(rendered, "---\n"))
	assert.Contains(t, rendered, `title: "T"`)
	assert.Contains(t, rendered, `source_url: "https://x.test/a"`)
	// final URL equal to the source is not repeated
	assert.NotContains(t, rendered, "final_url")
	assert.Contains(t, rendered, `content_hash: "abc123"`)
	assert.True(t, strings.HasSuffix(rendered, "body\n"))
}
