package normalize

import "time"

// Frontmatter carries the document metadata the downstream indexer keys
// on.
type Frontmatter struct {
	title       string
	sourceURL   string
	finalURL    string
	fetchedAt   time.Time
	contentHash string
}

func NewFrontmatter(
	title string,
	sourceURL string,
	finalURL string,
	fetchedAt time.Time,
	contentHash string,
) Frontmatter {
	return Frontmatter{
		title:       title,
		sourceURL:   sourceURL,
		finalURL:    finalURL,
		fetchedAt:   fetchedAt,
		contentHash: contentHash,
	}
}

func (f Frontmatter) Title() string {
	return f.title
}

func (f Frontmatter) SourceURL() string {
	return f.sourceURL
}

func (f Frontmatter) FinalURL() string {
	return f.finalURL
}

func (f Frontmatter) FetchedAt() time.Time {
	return f.fetchedAt
}

func (f Frontmatter) ContentHash() string {
	return f.contentHash
}

// NormalizedMarkdownDoc is a markdown artifact that passed the structural
// constraints and carries its frontmatter.
type NormalizedMarkdownDoc struct {
	frontmatter Frontmatter
	content     string
}

func NewNormalizedMarkdownDoc(frontmatter Frontmatter, content string) NormalizedMarkdownDoc {
	return NormalizedMarkdownDoc{
		frontmatter: frontmatter,
		content:     content,
	}
}

func (d NormalizedMarkdownDoc) Frontmatter() Frontmatter {
	return d.frontmatter
}

func (d NormalizedMarkdownDoc) Content() string {
	return d.content
}
