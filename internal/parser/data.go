package parser

import "net/url"

// ParsedPage is the extraction result handed to the content sink.
// Links are normalized absolute URLs in document order; duplicates are
// preserved (the frontier deduplicates).
type ParsedPage struct {
	title           string
	metaDescription string
	text            string
	links           []url.URL
}

func (p *ParsedPage) Title() string {
	return p.title
}

func (p *ParsedPage) MetaDescription() string {
	return p.metaDescription
}

func (p *ParsedPage) Text() string {
	return p.text
}

func (p *ParsedPage) Links() []url.URL {
	return p.links
}

// HasTitle reports whether a non-empty title was found. A <title> whose
// text trims to nothing is treated as absent.
func (p *ParsedPage) HasTitle() bool {
	return p.title != ""
}

// NewParsedPageForTest constructs a ParsedPage for test packages that
// cannot reach the unexported fields.
func NewParsedPageForTest(title, metaDescription, text string, links []url.URL) ParsedPage {
	return ParsedPage{
		title:           title,
		metaDescription: metaDescription,
		text:            text,
		links:           links,
	}
}
