package session

import (
	"time"

	"github.com/rohmanhakim/webcrawler/internal/frontier"
)

// CrawlStatus tracks a URL's position in its lifecycle as exposed to the
// control surface.
type CrawlStatus string

const (
	StatusQueued      CrawlStatus = "queued"
	StatusDownloading CrawlStatus = "downloading"
	StatusParsed      CrawlStatus = "parsed"
	StatusFailed      CrawlStatus = "failed"
	StatusSkipped     CrawlStatus = "skipped"
)

// CrawlResult is the per-URL record a session accumulates. One result per
// URL; retries update the existing record.
type CrawlResult struct {
	URL             string      `json:"url"`
	FinalURL        string      `json:"final_url,omitempty"`
	StatusCode      int         `json:"status_code,omitempty"`
	ContentType     string      `json:"content_type,omitempty"`
	Title           string      `json:"title,omitempty"`
	MetaDescription string      `json:"meta_description,omitempty"`
	TextContent     string      `json:"text_content,omitempty"`
	LinkCount       int         `json:"link_count"`
	Raw             []byte      `json:"raw,omitempty"`
	CrawlStatus     CrawlStatus `json:"crawl_status"`
	Error           string      `json:"error,omitempty"`
	Depth           int         `json:"depth"`
	RetryCount      int         `json:"retry_count,omitempty"`
	StartedAt       time.Time   `json:"started_at"`
	FinishedAt      time.Time   `json:"finished_at,omitempty"`
}

// SessionStatus is the manager-level view of a session.
type SessionStatus string

const (
	StatusNotFound  SessionStatus = "not_found"
	StatusStarting  SessionStatus = "starting"
	StatusCrawling  SessionStatus = "crawling"
	StatusCompleted SessionStatus = "completed"
)

// StatusReport is the payload behind GET /crawl/status.
type StatusReport struct {
	Status      SessionStatus       `json:"status"`
	ResultCount int                 `json:"result_count"`
	RetryStats  frontier.RetryStats `json:"retry_stats"`
}

// janitor policy
const (
	janitorInterval  = 30 * time.Second
	sessionRetention = 5 * time.Minute
)

// worker loop policy
const (
	// a session completes when its frontier stays idle this long
	idlePollInterval = time.Second
	// how long a worker naps when nothing is ready yet
	notReadyNap = 100 * time.Millisecond
	// grace given to outstanding HTTP calls when stopping
	stopGracePeriod = 5 * time.Second
)
