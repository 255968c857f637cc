package storage_test

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/webcrawler/internal/parser"
	"github.com/rohmanhakim/webcrawler/internal/storage"
)

func pageURL(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return *u
}

func TestStoreParsed_WritesMarkdownArtifact(t *testing.T) {
	outputDir := t.TempDir()
	sink := storage.NewLocalMarkdownSink(outputDir, nil)

	parsed := parser.NewParsedPageForTest(
		"Welcome",
		"a landing page",
		"visible text content",
		nil,
	)

	err := sink.StoreParsed(
		context.Background(),
		"crawl_1_1",
		pageURL(t, "https://example.com/welcome"),
		"https://example.com/welcome",
		parsed,
		nil,
		200,
		"text/html",
	)
	require.Nil(t, err)

	entries, readErr := os.ReadDir(filepath.Join(outputDir, "crawl_1_1"))
	require.NoError(t, readErr)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".md"))
	// filename is the 12-char url hash
	assert.Len(t, strings.TrimSuffix(entries[0].Name(), ".md"), 12)

	content, readErr := os.ReadFile(filepath.Join(outputDir, "crawl_1_1", entries[0].Name()))
	require.NoError(t, readErr)

	text := string(content)
	assert.Contains(t, text, `title: "Welcome"`)
	assert.Contains(t, text, `source_url: "https://example.com/welcome"`)
	assert.Contains(t, text, "# Welcome")
	assert.Contains(t, text, "> a landing page")
	assert.Contains(t, text, "visible text content")
}

func TestStoreParsed_ConvertsRawHTML(t *testing.T) {
	outputDir := t.TempDir()
	sink := storage.NewLocalMarkdownSink(outputDir, nil)

	raw := []byte(`<html><body><h1>Heading</h1><p>Paragraph with <strong>bold</strong>.</p></body></html>`)
	parsed := parser.NewParsedPageForTest("Heading", "", "Heading Paragraph with bold .", nil)

	err := sink.StoreParsed(
		context.Background(),
		"crawl_1_1",
		pageURL(t, "https://example.com/doc"),
		"",
		parsed,
		raw,
		200,
		"text/html",
	)
	require.Nil(t, err)

	entries, readErr := os.ReadDir(filepath.Join(outputDir, "crawl_1_1"))
	require.NoError(t, readErr)
	require.Len(t, entries, 1)

	content, readErr := os.ReadFile(filepath.Join(outputDir, "crawl_1_1", entries[0].Name()))
	require.NoError(t, readErr)

	text := string(content)
	assert.Contains(t, text, "# Heading")
	assert.Contains(t, text, "**bold**")
}

func TestStoreParsed_IdempotentOverwrite(t *testing.T) {
	outputDir := t.TempDir()
	sink := storage.NewLocalMarkdownSink(outputDir, nil)

	parsed := parser.NewParsedPageForTest("Title", "", "first version", nil)
	target := pageURL(t, "https://example.com/page")

	require.Nil(t, sink.StoreParsed(context.Background(), "s", target, "", parsed, nil, 200, "text/html"))

	updated := parser.NewParsedPageForTest("Title", "", "second version", nil)
	require.Nil(t, sink.StoreParsed(context.Background(), "s", target, "", updated, nil, 200, "text/html"))

	entries, readErr := os.ReadDir(filepath.Join(outputDir, "s"))
	require.NoError(t, readErr)
	// same URL, same filename: overwritten, not duplicated
	require.Len(t, entries, 1)

	content, readErr := os.ReadFile(filepath.Join(outputDir, "s", entries[0].Name()))
	require.NoError(t, readErr)
	assert.Contains(t, string(content), "second version")
	assert.NotContains(t, string(content), "first version")
}

func TestStoreParsed_EmptyPageRejected(t *testing.T) {
	sink := storage.NewLocalMarkdownSink(t.TempDir(), nil)

	empty := parser.NewParsedPageForTest("", "", "", nil)
	err := sink.StoreParsed(context.Background(), "s", pageURL(t, "https://example.com/x"), "", empty, nil, 200, "text/html")

	assert.NotNil(t, err)
}

func TestNullSink_AcceptsEverything(t *testing.T) {
	var sink storage.NullSink
	err := sink.StoreParsed(context.Background(), "s", pageURL(t, "https://example.com/x"), "", parser.ParsedPage{}, nil, 200, "")
	assert.Nil(t, err)
}
