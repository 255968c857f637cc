package frontier

/*
 Frontier - manages crawl state & ordering
*/

import (
	"time"

	"github.com/rohmanhakim/webcrawler/pkg/failure"
)

// Priority orders frontier entries. Retries outrank fresh discoveries so
// a failing URL is resolved before the crawl moves on.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityRetry
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityRetry:
		return "retry"
	default:
		return "normal"
	}
}

// QueuedURL is one frontier entry.
//
// Invariants:
// - url is normalized before the entry is constructed
// - a URL lives in at most one of main, retry, in-flight, or visited
// - readyAt gates eligibility; entries are never popped early
type QueuedURL struct {
	URL         string              `json:"url"`
	Depth       int                 `json:"depth"`
	Priority    Priority            `json:"priority"`
	RetryCount  int                 `json:"retry_count"`
	ReadyAt     time.Time           `json:"ready_at"`
	LastError   string              `json:"last_error,omitempty"`
	LastFailure failure.FailureKind `json:"last_failure,omitempty"`

	// seq breaks ordering ties FIFO
	seq uint64
}

// RetryStats summarizes the retry queue for status reporting.
type RetryStats struct {
	TotalRetries int       `json:"total_retries"`
	Pending      int       `json:"pending"`
	Ready        int       `json:"ready"`
	NextRetryAt  time.Time `json:"next_retry_at"`
}

// SnapshotState is the JSON-serializable frontier view used for optional
// persistence and restart/resume visibility.
type SnapshotState struct {
	SessionID string               `json:"session_id"`
	Queued    []QueuedURL          `json:"queued"`
	Retry     []QueuedURL          `json:"retry"`
	Visited   []string             `json:"visited"`
	LastVisit map[string]time.Time `json:"last_visit"`
}

// retry backoff policy
const (
	// jitter stays within this fraction of the computed delay
	retryJitterFraction = 0.3
)

// CrawlDelayFunc resolves the politeness delay for a host. The frontier
// consults it when deciding whether a candidate is ready.
type CrawlDelayFunc func(host string) time.Duration
