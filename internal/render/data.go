package render

import "time"

// RenderResult is the outcome of one headless render call. On failure the
// partially received HTML, if any, is retained for diagnostics but must
// not be treated as page content.
type RenderResult struct {
	success    bool
	html       string
	statusCode int
	errMessage string
	renderTime time.Duration
}

func (r *RenderResult) Success() bool {
	return r.success
}

func (r *RenderResult) HTML() string {
	return r.html
}

func (r *RenderResult) StatusCode() int {
	return r.statusCode
}

func (r *RenderResult) ErrMessage() string {
	return r.errMessage
}

func (r *RenderResult) RenderTime() time.Duration {
	return r.renderTime
}

// NewRenderResultForTest constructs a RenderResult for test packages.
func NewRenderResultForTest(success bool, html string, statusCode int, errMessage string, renderTime time.Duration) RenderResult {
	return RenderResult{
		success:    success,
		html:       html,
		statusCode: statusCode,
		errMessage: errMessage,
		renderTime: renderTime,
	}
}

// contentRequest is the JSON payload of the render service's /content
// endpoint.
type contentRequest struct {
	URL                 string            `json:"url"`
	WaitFor             int               `json:"waitFor"`
	RejectResourceTypes []string          `json:"rejectResourceTypes"`
	Headers             map[string]string `json:"headers,omitempty"`
}

const (
	// waitFor values: generous for network-idle waits, short otherwise
	waitForNetworkIdleMs = 20000
	waitForSimpleMs      = 5000
)

var rejectedResourceTypes = []string{"image", "media", "font"}
