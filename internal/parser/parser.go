package parser

import (
	"bytes"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/rohmanhakim/webcrawler/internal/metadata"
	"github.com/rohmanhakim/webcrawler/pkg/urlutil"
)

/*
Responsibilities

- Parse fetched HTML into title, meta description, visible text, and links
- Accept tag soup; the parser never rejects input
- Resolve discovered hrefs to absolute, validated URLs

Parse Semantics

- title: text of the first <title> child of the first <head>
- meta description: first <meta name="description"> in pre-order
- text: all text nodes in pre-order, single-space separated, skipping
  <script> and <style> subtrees entirely
- links: every <a href> in document order; invalid or non-http(s)
  targets are dropped, duplicates kept

The parser knows nothing about fetching, robots, or storage.
*/

type Parser interface {
	Parse(body []byte, base url.URL) ParsedPage
}

type ContentParser struct {
	metadataSink metadata.MetadataSink
}

func NewContentParser(metadataSink metadata.MetadataSink) ContentParser {
	return ContentParser{
		metadataSink: metadataSink,
	}
}

// Parse extracts structured content from HTML bytes. On completely
// unparseable input it records the failure and returns an empty page;
// it never fails the pipeline.
func (p *ContentParser) Parse(body []byte, base url.URL) ParsedPage {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		p.recordParseError(&ParseError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseUnparseableInput,
		}, base)
		return ParsedPage{}
	}

	doc := goquery.NewDocumentFromNode(root)

	return ParsedPage{
		title:           extractTitle(root),
		metaDescription: extractMetaDescription(doc),
		text:            extractText(root),
		links:           p.extractLinks(doc, base),
	}
}

func (p *ContentParser) recordParseError(parseErr *ParseError, base url.URL) {
	if p.metadataSink == nil {
		return
	}
	p.metadataSink.RecordError(
		time.Now(),
		"parser",
		"ContentParser.Parse",
		mapParseErrorToMetadataCause(parseErr),
		parseErr.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, base.String()),
		},
	)
}

// extractTitle walks to the first <head> under <html> and returns the text
// of its first <title> child, trimmed. Empty titles count as absent.
func extractTitle(root *html.Node) string {
	head := findFirstElement(root, "head")
	if head == nil {
		return ""
	}

	for child := head.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && child.Data == "title" {
			return strings.TrimSpace(textContent(child))
		}
	}
	return ""
}

func extractMetaDescription(doc *goquery.Document) string {
	var description string
	doc.Find(`meta[name="description"]`).EachWithBreak(func(i int, s *goquery.Selection) bool {
		if content, ok := s.Attr("content"); ok {
			description = content
			return false
		}
		return true
	})
	return description
}

// extractText concatenates all text nodes in pre-order with single spaces,
// skipping subtrees rooted at <script> or <style>.
func extractText(root *html.Node) string {
	var parts []string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if trimmed := strings.TrimSpace(n.Data); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)

	return strings.Join(parts, " ")
}

// extractLinks resolves every <a href> against the base URL, keeping only
// values that survive normalization and validation. Document order and
// duplicates are preserved.
func (p *ContentParser) extractLinks(doc *goquery.Document, base url.URL) []url.URL {
	var links []url.URL

	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}

		resolved, err := urlutil.Normalize(href, &base)
		if err != nil {
			return
		}
		if !urlutil.IsValid(resolved.String()) {
			return
		}
		links = append(links, resolved)
	})

	return links
}

// findFirstElement returns the first element with the given tag in
// pre-order, or nil.
func findFirstElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findFirstElement(child, tag); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.TextNode {
			b.WriteString(child.Data)
		}
	}
	return b.String()
}
