package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rohmanhakim/webcrawler/internal/metadata"
)

/*
Responsibilities

- Submit URLs to the external headless-render HTTP service
- Return fully rendered HTML for SPA shells
- Health-check the service before the fetcher commits to a render

Contract with the side-service:
- POST {base}/content with a JSON body {url, waitFor, rejectResourceTypes,
  headers?}; 200 + non-empty body is the only success shape
- HEAD {base}/health answers availability

The client holds no render state; every call is independent.
*/

// Client is the render-service boundary consumed by the page fetcher.
type Client interface {
	Render(ctx context.Context, pageURL string, timeout time.Duration, waitForNetworkIdle bool) RenderResult
	IsAvailable(ctx context.Context) bool
}

type HTTPClient struct {
	baseURL       string
	userAgent     string
	customHeaders map[string]string
	httpClient    *http.Client
	healthClient  *http.Client
	metadataSink  metadata.MetadataSink
}

const (
	connectTimeout     = 5 * time.Second
	healthCheckTimeout = 5 * time.Second
	tcpKeepAlivePeriod = 30 * time.Second
)

func NewHTTPClient(baseURL string, userAgent string, metadataSink metadata.MetadataSink) *HTTPClient {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: tcpKeepAlivePeriod,
		}).DialContext,
		ForceAttemptHTTP2: false, // the render service speaks HTTP/1.1
	}

	return &HTTPClient{
		baseURL:       baseURL,
		userAgent:     userAgent,
		customHeaders: map[string]string{},
		httpClient:    &http.Client{Transport: transport},
		healthClient:  &http.Client{Transport: transport, Timeout: healthCheckTimeout},
		metadataSink:  metadataSink,
	}
}

// SetCustomHeaders forwards extra request headers to the rendered page.
func (c *HTTPClient) SetCustomHeaders(headers map[string]string) {
	c.customHeaders = headers
}

// Render asks the side-service to load pageURL in a headless browser and
// return the post-JavaScript HTML. Success requires HTTP 200 and a
// non-empty body; everything else carries an error message and whatever
// partial body arrived.
func (c *HTTPClient) Render(ctx context.Context, pageURL string, timeout time.Duration, waitForNetworkIdle bool) RenderResult {
	start := time.Now()

	result := c.render(ctx, pageURL, timeout, waitForNetworkIdle)
	result.renderTime = time.Since(start)

	if c.metadataSink != nil {
		c.metadataSink.RecordRender(pageURL, result.statusCode, result.renderTime, result.success)
	}

	return result
}

func (c *HTTPClient) render(ctx context.Context, pageURL string, timeout time.Duration, waitForNetworkIdle bool) RenderResult {
	waitFor := waitForSimpleMs
	if waitForNetworkIdle {
		waitFor = waitForNetworkIdleMs
	}

	payload := contentRequest{
		URL:                 pageURL,
		WaitFor:             waitFor,
		RejectResourceTypes: rejectedResourceTypes,
	}
	if len(c.customHeaders) > 0 {
		payload.Headers = c.customHeaders
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return RenderResult{errMessage: (&RenderError{
			Message: err.Error(),
			Cause:   ErrCausePreRequestFailure,
		}).Error()}
	}

	renderCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(renderCtx, http.MethodPost, c.baseURL+"/content", bytes.NewReader(body))
	if err != nil {
		return RenderResult{errMessage: (&RenderError{
			Message: err.Error(),
			Cause:   ErrCausePreRequestFailure,
		}).Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cause := ErrCauseConnectFailure
		if errors.Is(err, context.DeadlineExceeded) {
			cause = ErrCauseTimeout
		}
		return RenderResult{errMessage: fmt.Sprintf("%s: %v", cause, err)}
	}
	defer resp.Body.Close()

	// read whatever arrives; a partial body on failure is kept for
	// diagnostics
	rendered, readErr := io.ReadAll(resp.Body)

	result := RenderResult{
		statusCode: resp.StatusCode,
		html:       string(rendered),
	}

	if readErr != nil {
		result.errMessage = fmt.Sprintf("%s: %v", ErrCauseTimeout, readErr)
		return result
	}

	if resp.StatusCode != http.StatusOK {
		result.errMessage = fmt.Sprintf("%s: HTTP %d", ErrCauseHttpStatus, resp.StatusCode)
		return result
	}

	if len(rendered) == 0 {
		result.errMessage = string(ErrCauseEmptyBody)
		return result
	}

	result.success = true
	return result
}

// IsAvailable reports whether the render service answers its health
// endpoint with HTTP 200.
func (c *HTTPClient) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.healthClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
