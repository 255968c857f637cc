package fetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rohmanhakim/webcrawler/internal/metadata"
	"github.com/rohmanhakim/webcrawler/internal/render"
	"github.com/rohmanhakim/webcrawler/pkg/failure"
	"github.com/rohmanhakim/webcrawler/pkg/urlutil"
)

/*
Responsibilities

- Perform HTTP requests with browser-like headers and hard timeouts
- Apply the redirect policy, including same-domain restriction
- Detect SPA shells and delegate to the render side-service
- Classify every failure into a FailureKind

Fetch Semantics

- A fetch yields exactly one FetchOutcome; the fetcher never retries
- Status >= 400 is a failed outcome with the body discarded
- The render result replaces the static body only on render success
- Render-service unavailability falls back to static HTML with a
  per-host throttled warning

The fetcher never parses content beyond SPA detection; it only returns
bytes and metadata.
*/

type Fetcher interface {
	Fetch(ctx context.Context, fetchParam FetchParam) FetchOutcome
	FetchWithDomainRestriction(ctx context.Context, fetchParam FetchParam, seedHost string) FetchOutcome
	SetProgressCallback(fn ProgressFunc)
}

type PageFetcher struct {
	userAgent           string
	timeout             time.Duration
	followRedirects     bool
	maxRedirects        int
	verifyTLS           bool
	proxyURL            string
	customHeaders       map[string]string
	spaRenderingEnabled bool

	renderClient render.Client
	metadataSink metadata.MetadataSink
	progressFn   ProgressFunc

	transport *http.Transport

	// throttles the render-unavailable warning to once per host per minute
	renderWarnMu sync.Mutex
	renderWarnAt map[string]time.Time

	clock func() time.Time
}

type Options struct {
	UserAgent           string
	Timeout             time.Duration
	FollowRedirects     bool
	MaxRedirects        int
	VerifyTLS           bool
	ProxyURL            string
	CustomHeaders       map[string]string
	SpaRenderingEnabled bool
}

const renderWarnMinInterval = time.Minute

func NewPageFetcher(
	opts Options,
	renderClient render.Client,
	metadataSink metadata.MetadataSink,
) *PageFetcher {
	transport := &http.Transport{}
	if !opts.VerifyTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if opts.ProxyURL != "" {
		if proxyParsed, err := url.Parse(opts.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyParsed)
		}
	}

	return &PageFetcher{
		userAgent:           opts.UserAgent,
		timeout:             opts.Timeout,
		followRedirects:     opts.FollowRedirects,
		maxRedirects:        opts.MaxRedirects,
		verifyTLS:           opts.VerifyTLS,
		proxyURL:            opts.ProxyURL,
		customHeaders:       opts.CustomHeaders,
		spaRenderingEnabled: opts.SpaRenderingEnabled,
		renderClient:        renderClient,
		metadataSink:        metadataSink,
		transport:           transport,
		renderWarnAt:        make(map[string]time.Time),
		clock:               time.Now,
	}
}

// SetProgressCallback installs a download-progress observer. Pass nil to
// remove it.
func (f *PageFetcher) SetProgressCallback(fn ProgressFunc) {
	f.progressFn = fn
}

// Fetch performs a static GET and, when SPA rendering is enabled and the
// body looks like a client-rendered shell, replaces the body with the
// headless render result.
func (f *PageFetcher) Fetch(ctx context.Context, fetchParam FetchParam) FetchOutcome {
	return f.fetch(ctx, fetchParam, "")
}

// FetchWithDomainRestriction behaves like Fetch but follows redirects only
// while the target host equals seedHost. An off-domain redirect fails the
// fetch with KindOffDomain.
func (f *PageFetcher) FetchWithDomainRestriction(ctx context.Context, fetchParam FetchParam, seedHost string) FetchOutcome {
	return f.fetch(ctx, fetchParam, seedHost)
}

func (f *PageFetcher) fetch(ctx context.Context, fetchParam FetchParam, seedHost string) FetchOutcome {
	startTime := f.clock()

	outcome := f.performFetch(ctx, fetchParam.fetchUrl, seedHost)
	outcome.fetchedAt = startTime

	if outcome.success && f.shouldRender(outcome) {
		f.renderFallback(ctx, fetchParam.fetchUrl, &outcome)
	}

	if f.metadataSink != nil {
		f.metadataSink.RecordFetch(
			fetchParam.fetchUrl.String(),
			outcome.statusCode,
			f.clock().Sub(startTime),
			outcome.contentType,
			0,
			fetchParam.crawlDepth,
		)
	}

	return outcome
}

// shouldRender decides whether the static response needs the headless
// pass: rendering must be enabled and the body must look like an SPA
// shell rather than a completed document.
func (f *PageFetcher) shouldRender(outcome FetchOutcome) bool {
	if !f.spaRenderingEnabled || f.renderClient == nil {
		return false
	}
	if !isHTMLContent(outcome.contentType) {
		return false
	}
	return IsSpaPage(string(outcome.body))
}

// renderFallback replaces the static body with the render result on
// success. Render failure or unavailability leaves the static content in
// place; the status code is overridden only when the render succeeded.
func (f *PageFetcher) renderFallback(ctx context.Context, pageURL url.URL, outcome *FetchOutcome) {
	if !f.renderClient.IsAvailable(ctx) {
		f.warnRenderUnavailable(pageURL.Host)
		return
	}

	result := f.renderClient.Render(ctx, pageURL.String(), f.timeout, true)
	if !result.Success() {
		f.warnRenderFailed(pageURL, result.ErrMessage())
		return
	}

	outcome.body = []byte(result.HTML())
	outcome.statusCode = result.StatusCode()
	outcome.rendered = true
}

func (f *PageFetcher) warnRenderUnavailable(host string) {
	f.renderWarnMu.Lock()
	now := f.clock()
	last, seen := f.renderWarnAt[host]
	if seen && now.Sub(last) < renderWarnMinInterval {
		f.renderWarnMu.Unlock()
		return
	}
	f.renderWarnAt[host] = now
	f.renderWarnMu.Unlock()

	if f.metadataSink != nil {
		f.metadataSink.RecordError(
			now,
			"fetcher",
			"PageFetcher.renderFallback",
			metadata.CauseNetworkFailure,
			"render service unavailable, falling back to static HTML",
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrHost, host),
			},
		)
	}
}

func (f *PageFetcher) warnRenderFailed(pageURL url.URL, errMessage string) {
	if f.metadataSink == nil {
		return
	}
	f.metadataSink.RecordError(
		f.clock(),
		"fetcher",
		"PageFetcher.renderFallback",
		metadata.CauseNetworkFailure,
		fmt.Sprintf("render failed, keeping static HTML: %s", errMessage),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, pageURL.String()),
		},
	)
}

func (f *PageFetcher) performFetch(ctx context.Context, fetchUrl url.URL, seedHost string) FetchOutcome {
	client := &http.Client{
		Transport:     f.transport,
		CheckRedirect: f.redirectPolicy(seedHost),
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, fetchUrl.String(), nil)
	if err != nil {
		return FetchOutcome{
			errMessage: fmt.Sprintf("failed to create request: %v", err),
			errorKind:  failure.KindUnknown,
		}
	}

	for key, value := range requestHeaders(f.userAgent) {
		req.Header.Set(key, value)
	}
	for key, value := range f.customHeaders {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		var offDomain *offDomainRedirectError
		if errors.As(err, &offDomain) {
			return FetchOutcome{
				errMessage: (&FetchError{Cause: ErrCauseOffDomainRedirect}).Error(),
				errorKind:  failure.KindOffDomain,
			}
		}
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) && fetchErr.Cause == ErrCauseRedirectLimitExceeded {
			return FetchOutcome{
				errMessage: fetchErr.Message,
				errorKind:  failure.KindUnknown,
			}
		}
		return FetchOutcome{
			errMessage: fmt.Sprintf("request failed: %v", err),
			errorKind:  failure.ClassifyTransport(err),
		}
	}
	defer resp.Body.Close()

	outcome := FetchOutcome{
		statusCode:  resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		finalURL:    resp.Request.URL.String(),
	}

	if resp.StatusCode >= 400 {
		outcome.errMessage = fmt.Sprintf("HTTP %d", resp.StatusCode)
		outcome.errorKind = failure.ClassifyStatus(resp.StatusCode)
		return outcome
	}

	body, readErr := f.readBody(resp)
	if readErr != nil {
		outcome.errMessage = fmt.Sprintf("failed to read response body: %v", readErr)
		outcome.errorKind = failure.ClassifyTransport(readErr)
		return outcome
	}

	outcome.body = body
	outcome.success = true
	return outcome
}

// redirectPolicy builds the CheckRedirect hook for one fetch: hop budget
// always applies; with a seedHost the chain must stay on that host.
func (f *PageFetcher) redirectPolicy(seedHost string) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if !f.followRedirects {
			return http.ErrUseLastResponse
		}
		if len(via) > f.maxRedirects {
			return &FetchError{
				Message:   fmt.Sprintf("stopped after %d redirects", f.maxRedirects),
				Retryable: false,
				Cause:     ErrCauseRedirectLimitExceeded,
			}
		}
		if seedHost != "" && urlutil.Host(req.URL.String()) != seedHost {
			return &offDomainRedirectError{target: req.URL.String()}
		}
		return nil
	}
}

// readBody drains the response, reporting progress to the installed
// callback in chunks.
func (f *PageFetcher) readBody(resp *http.Response) ([]byte, error) {
	if f.progressFn == nil {
		return io.ReadAll(resp.Body)
	}

	var total uint64
	if resp.ContentLength > 0 {
		total = uint64(resp.ContentLength)
	}

	var body []byte
	buf := make([]byte, 32*1024)
	var received uint64
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			body = append(body, buf[:n]...)
			received += uint64(n)
			f.progressFn(received, total)
		}
		if err == io.EOF {
			return body, nil
		}
		if err != nil {
			return body, err
		}
	}
}

type offDomainRedirectError struct {
	target string
}

func (e *offDomainRedirectError) Error() string {
	return fmt.Sprintf("off-domain redirect to %s", e.target)
}

func isHTMLContent(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return strings.Contains(contentType, "text/html") ||
		strings.Contains(contentType, "application/xhtml")
}

func requestHeaders(userAgent string) map[string]string {
	return map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
		"DNT":             "1",
		"Connection":      "keep-alive",
	}
}
