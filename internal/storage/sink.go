package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/rohmanhakim/webcrawler/internal/metadata"
	"github.com/rohmanhakim/webcrawler/internal/normalize"
	"github.com/rohmanhakim/webcrawler/internal/parser"
	"github.com/rohmanhakim/webcrawler/pkg/failure"
	"github.com/rohmanhakim/webcrawler/pkg/fileutil"
	"github.com/rohmanhakim/webcrawler/pkg/hashutil"
	"github.com/rohmanhakim/webcrawler/pkg/retry"
	"github.com/rohmanhakim/webcrawler/pkg/timeutil"
)

/*
Responsibilities
- Accept parsed pages from crawl sessions
- Persist markdown artifacts with deterministic filenames
- Ensure idempotent, overwrite-safe reruns

The ContentSink port is what sessions depend on; the real indexer
implements it externally. LocalMarkdownSink is the reference
implementation used by the CLI.
*/

// ContentSink receives every successfully parsed page of a session.
type ContentSink interface {
	StoreParsed(
		ctx context.Context,
		sessionID string,
		pageURL url.URL,
		finalURL string,
		parsed parser.ParsedPage,
		raw []byte,
		statusCode int,
		contentType string,
	) failure.ClassifiedError
}

// LocalMarkdownSink converts pages to markdown documents under outputDir.
// Filenames are the first 12 hex chars of the blake3 hash of the page URL,
// so reruns overwrite rather than accumulate.
type LocalMarkdownSink struct {
	outputDir    string
	metadataSink metadata.MetadataSink
	constraint   normalize.MarkdownConstraint
	retryParam   retry.RetryParam
}

const urlHashLen = 12

func NewLocalMarkdownSink(outputDir string, metadataSink metadata.MetadataSink) *LocalMarkdownSink {
	return &LocalMarkdownSink{
		outputDir:    outputDir,
		metadataSink: metadataSink,
		constraint:   normalize.NewMarkdownConstraint(metadataSink),
		retryParam: retry.NewRetryParam(
			100*time.Millisecond,
			50*time.Millisecond,
			time.Now().UnixNano(),
			3,
			timeutil.NewBackoffParam(100*time.Millisecond, 2.0, 2*time.Second),
		),
	}
}

func (s *LocalMarkdownSink) StoreParsed(
	ctx context.Context,
	sessionID string,
	pageURL url.URL,
	finalURL string,
	parsed parser.ParsedPage,
	raw []byte,
	statusCode int,
	contentType string,
) failure.ClassifiedError {
	markdownContent, convErr := buildMarkdown(parsed, raw)
	if convErr != nil {
		s.recordError(convErr, pageURL)
		return convErr
	}

	doc, normErr := s.constraint.Normalize(pageURL, finalURL, parsed.Title(), markdownContent, time.Now())
	if normErr != nil {
		// already recorded by the constraint
		return normErr
	}

	writeResult, writeErr := s.write(sessionID, pageURL, doc)
	if writeErr != nil {
		s.recordError(writeErr, pageURL)
		return writeErr
	}

	if s.metadataSink != nil {
		s.metadataSink.RecordEvent(
			"debug",
			fmt.Sprintf("stored %s as %s", pageURL.String(), writeResult.Path()),
		)
	}
	return nil
}

func (s *LocalMarkdownSink) recordError(err failure.ClassifiedError, pageURL url.URL) {
	if s.metadataSink == nil {
		return
	}
	var storageErr *StorageError
	cause := metadata.CauseUnknown
	path := ""
	if errors.As(err, &storageErr) {
		cause = mapStorageErrorToMetadataCause(storageErr)
		path = storageErr.Path
	}
	s.metadataSink.RecordError(
		time.Now(),
		"storage",
		"LocalMarkdownSink.StoreParsed",
		cause,
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, pageURL.String()),
			metadata.NewAttr(metadata.AttrWritePath, path),
		},
	)
}

// buildMarkdown prefers converting the raw HTML when the session kept it;
// otherwise it assembles a document from the parsed fields.
func buildMarkdown(parsed parser.ParsedPage, raw []byte) (string, failure.ClassifiedError) {
	if len(raw) > 0 {
		conv := converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		)
		markdownContent, err := conv.ConvertString(string(raw))
		if err != nil {
			return "", &StorageError{
				Message:   err.Error(),
				Retryable: false,
				Cause:     ErrCauseConversionFailure,
			}
		}
		return markdownContent, nil
	}

	var b strings.Builder
	if parsed.Title() != "" {
		fmt.Fprintf(&b, "# %s\n\n", parsed.Title())
	}
	if parsed.MetaDescription() != "" {
		fmt.Fprintf(&b, "> %s\n\n", parsed.MetaDescription())
	}
	b.WriteString(parsed.Text())
	return b.String(), nil
}

// write persists the rendered document, retrying transient filesystem
// failures.
func (s *LocalMarkdownSink) write(
	sessionID string,
	pageURL url.URL,
	doc normalize.NormalizedMarkdownDoc,
) (WriteResult, failure.ClassifiedError) {
	urlHashFull, err := hashutil.HashBytes([]byte(pageURL.String()), hashutil.HashAlgoBLAKE3)
	if err != nil {
		return WriteResult{}, &StorageError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseHashComputationFailed,
		}
	}
	urlHash := urlHashFull[:urlHashLen]

	sessionDir := filepath.Join(s.outputDir, sessionID)
	if dirErr := fileutil.EnsureDir(sessionDir); dirErr != nil {
		return WriteResult{}, &StorageError{
			Message:   dirErr.Error(),
			Retryable: false,
			Cause:     ErrCausePathError,
			Path:      sessionDir,
		}
	}

	path := filepath.Join(sessionDir, urlHash+".md")
	rendered := doc.Render()

	writeTask := func() (WriteResult, failure.ClassifiedError) {
		if writeErr := os.WriteFile(path, []byte(rendered), 0644); writeErr != nil {
			return WriteResult{}, classifyWriteError(writeErr, path)
		}
		return NewWriteResult(urlHash, path, doc.Frontmatter().ContentHash()), nil
	}

	result := retry.Retry(s.retryParam, writeTask)
	if result.IsFailure() {
		return WriteResult{}, result.Err()
	}
	return result.Value(), nil
}

// classifyWriteError distinguishes disk-full (worth retrying after the
// janitor or operator frees space) from permanent write failures.
func classifyWriteError(err error, path string) *StorageError {
	if errors.Is(err, syscall.ENOSPC) {
		return &StorageError{
			Message:   err.Error(),
			Retryable: true,
			Cause:     ErrCauseDiskFull,
			Path:      path,
		}
	}
	return &StorageError{
		Message:   err.Error(),
		Retryable: false,
		Cause:     ErrCauseWriteFailure,
		Path:      path,
	}
}

// NullSink discards everything; used when the crawl only feeds results to
// the control surface.
type NullSink struct{}

func (NullSink) StoreParsed(
	ctx context.Context,
	sessionID string,
	pageURL url.URL,
	finalURL string,
	parsed parser.ParsedPage,
	raw []byte,
	statusCode int,
	contentType string,
) failure.ClassifiedError {
	return nil
}
