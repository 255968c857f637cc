package fetcher

import (
	"net/url"
	"time"

	"github.com/rohmanhakim/webcrawler/pkg/failure"
)

// HTTP boundary

type FetchParam struct {
	fetchUrl   url.URL
	crawlDepth int
}

func NewFetchParam(fetchUrl url.URL, crawlDepth int) FetchParam {
	return FetchParam{
		fetchUrl:   fetchUrl,
		crawlDepth: crawlDepth,
	}
}

func (p *FetchParam) FetchURL() url.URL {
	return p.fetchUrl
}

func (p *FetchParam) CrawlDepth() int {
	return p.crawlDepth
}

// FetchOutcome is the complete result of one fetch attempt, including the
// render fallback when it ran. A failed outcome carries the failure kind
// the frontier uses for retry scheduling.
type FetchOutcome struct {
	success     bool
	statusCode  int
	contentType string
	body        []byte
	finalURL    string
	errMessage  string
	errorKind   failure.FailureKind
	rendered    bool
	fetchedAt   time.Time
}

func (o *FetchOutcome) Success() bool {
	return o.success
}

func (o *FetchOutcome) StatusCode() int {
	return o.statusCode
}

func (o *FetchOutcome) ContentType() string {
	return o.contentType
}

func (o *FetchOutcome) Body() []byte {
	return o.body
}

// FinalURL is the URL after redirects, empty when the request never
// completed.
func (o *FetchOutcome) FinalURL() string {
	return o.finalURL
}

func (o *FetchOutcome) ErrMessage() string {
	return o.errMessage
}

func (o *FetchOutcome) ErrorKind() failure.FailureKind {
	return o.errorKind
}

// Rendered reports whether the body came from the headless render service
// rather than the static response.
func (o *FetchOutcome) Rendered() bool {
	return o.rendered
}

func (o *FetchOutcome) FetchedAt() time.Time {
	return o.fetchedAt
}

// NewFetchOutcomeForTest creates a FetchOutcome for testing purposes.
// This allows test packages to construct outcomes without access to the
// unexported fields.
func NewFetchOutcomeForTest(
	success bool,
	statusCode int,
	contentType string,
	body []byte,
	finalURL string,
	errMessage string,
	errorKind failure.FailureKind,
) FetchOutcome {
	return FetchOutcome{
		success:     success,
		statusCode:  statusCode,
		contentType: contentType,
		body:        body,
		finalURL:    finalURL,
		errMessage:  errMessage,
		errorKind:   errorKind,
		fetchedAt:   time.Now(),
	}
}

// ProgressFunc observes download progress: bytes received so far and the
// total from Content-Length (zero when unknown).
type ProgressFunc func(received uint64, total uint64)
