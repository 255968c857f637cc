package normalize

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"

	"github.com/rohmanhakim/webcrawler/internal/metadata"
	"github.com/rohmanhakim/webcrawler/pkg/failure"
	"github.com/rohmanhakim/webcrawler/pkg/hashutil"
)

/*
Responsibilities
- Inject frontmatter
- Enforce structural rules on markdown artifacts
- Keep documents deterministic for the downstream indexer

Constraints
- The document must parse as markdown
- At most one consecutive blank line
- Exactly one trailing newline
- Frontmatter fields are derived, never free-form
*/

type Constraint interface {
	Normalize(
		sourceURL url.URL,
		finalURL string,
		title string,
		content string,
		fetchedAt time.Time,
	) (NormalizedMarkdownDoc, failure.ClassifiedError)
}

type MarkdownConstraint struct {
	metadataSink metadata.MetadataSink
}

func NewMarkdownConstraint(metadataSink metadata.MetadataSink) MarkdownConstraint {
	return MarkdownConstraint{
		metadataSink: metadataSink,
	}
}

func (m *MarkdownConstraint) Normalize(
	sourceURL url.URL,
	finalURL string,
	title string,
	content string,
	fetchedAt time.Time,
) (NormalizedMarkdownDoc, failure.ClassifiedError) {
	doc, err := normalize(sourceURL, finalURL, title, content, fetchedAt)
	if err != nil {
		var normalizationError *NormalizationError
		errors.As(err, &normalizationError)
		if m.metadataSink != nil {
			m.metadataSink.RecordError(
				time.Now(),
				"normalize",
				"MarkdownConstraint.Normalize",
				mapNormalizationErrorToMetadataCause(normalizationError),
				err.Error(),
				[]metadata.Attribute{
					metadata.NewAttr(metadata.AttrURL, sourceURL.String()),
				},
			)
		}
		return NormalizedMarkdownDoc{}, normalizationError
	}
	return doc, nil
}

var excessBlankLines = regexp.MustCompile(`\n{3,}`)

func normalize(
	sourceURL url.URL,
	finalURL string,
	title string,
	content string,
	fetchedAt time.Time,
) (NormalizedMarkdownDoc, failure.ClassifiedError) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return NormalizedMarkdownDoc{}, &NormalizationError{
			Message:   "document has no content after trimming",
			Retryable: false,
			Cause:     ErrCauseEmptyContent,
		}
	}

	// the document must survive a markdown parse; a panic here means the
	// converter produced something structurally broken
	if err := validateMarkdown(trimmed); err != nil {
		return NormalizedMarkdownDoc{}, err
	}

	collapsed := excessBlankLines.ReplaceAllString(trimmed, "\n\n") + "\n"

	contentHash, hashErr := hashutil.HashBytes([]byte(collapsed), hashutil.HashAlgoBLAKE3)
	if hashErr != nil {
		return NormalizedMarkdownDoc{}, &NormalizationError{
			Message:   hashErr.Error(),
			Retryable: false,
			Cause:     ErrCauseFrontmatterFailed,
		}
	}

	frontmatter := NewFrontmatter(title, sourceURL.String(), finalURL, fetchedAt, contentHash)

	return NewNormalizedMarkdownDoc(frontmatter, collapsed), nil
}

// validateMarkdown parses the content and rejects documents the markdown
// parser cannot produce a document node for.
func validateMarkdown(content string) failure.ClassifiedError {
	p := parser.NewWithExtensions(parser.CommonExtensions)

	var parsed ast.Node
	func() {
		defer func() {
			if recover() != nil {
				parsed = nil
			}
		}()
		parsed = p.Parse([]byte(content))
	}()

	if parsed == nil {
		return &NormalizationError{
			Message:   "markdown parser returned no document",
			Retryable: false,
			Cause:     ErrCauseUnparseableDoc,
		}
	}
	return nil
}

// Render serializes the document with its frontmatter block for storage.
func (d NormalizedMarkdownDoc) Render() string {
	var b strings.Builder
	b.WriteString("---\n")
	if d.frontmatter.title != "" {
		fmt.Fprintf(&b, "title: %q\n", d.frontmatter.title)
	}
	fmt.Fprintf(&b, "source_url: %q\n", d.frontmatter.sourceURL)
	if d.frontmatter.finalURL != "" && d.frontmatter.finalURL != d.frontmatter.sourceURL {
		fmt.Fprintf(&b, "final_url: %q\n", d.frontmatter.finalURL)
	}
	fmt.Fprintf(&b, "fetched_at: %q\n", d.frontmatter.fetchedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "content_hash: %q\n", d.frontmatter.contentHash)
	b.WriteString("---\n\n")
	b.WriteString(d.content)
	return b.String()
}
