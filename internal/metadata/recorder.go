package metadata

import (
	"fmt"
	"strings"
	"time"

	"github.com/rohmanhakim/webcrawler/internal/logbus"
)

// MetadataSink is the observational boundary every pipeline component
// records into. Implementations must be safe for concurrent use.
type MetadataSink interface {
	RecordFetch(
		fetchURL string,
		httpStatus int,
		duration time.Duration,
		contentType string,
		retryCount int,
		crawlDepth int,
	)
	RecordRender(
		renderURL string,
		httpStatus int,
		renderTime time.Duration,
		success bool,
	)
	RecordError(
		observedAt time.Time,
		packageName string,
		action string,
		cause ErrorCause,
		errorString string,
		attrs []Attribute,
	)
	RecordEvent(level logbus.Level, message string)
}

// CrawlFinalizer records the terminal summary of a completed session,
// exactly once.
type CrawlFinalizer interface {
	RecordFinalCrawlStats(
		totalPages int,
		totalErrors int,
		totalRetries int,
		duration time.Duration,
	)
}

// LogRecorder forwards recorded metadata to the process-wide log bus as
// structured events, tagged with the owning session where one exists.
type LogRecorder struct {
	bus       *logbus.Bus
	sessionID string
}

func NewLogRecorder(bus *logbus.Bus, sessionID string) LogRecorder {
	return LogRecorder{
		bus:       bus,
		sessionID: sessionID,
	}
}

func (r *LogRecorder) RecordFetch(
	fetchURL string,
	httpStatus int,
	duration time.Duration,
	contentType string,
	retryCount int,
	crawlDepth int,
) {
	msg := fmt.Sprintf(
		"fetched %s status=%d duration_ms=%d content_type=%q retries=%d depth=%d",
		fetchURL, httpStatus, duration.Milliseconds(), contentType, retryCount, crawlDepth,
	)
	r.bus.Publish(logbus.LevelDebug, msg, r.sessionID)
}

func (r *LogRecorder) RecordRender(
	renderURL string,
	httpStatus int,
	renderTime time.Duration,
	success bool,
) {
	level := logbus.LevelInfo
	outcome := "completed"
	if !success {
		level = logbus.LevelWarning
		outcome = "failed"
	}
	msg := fmt.Sprintf(
		"headless render %s for %s status=%d duration_ms=%d",
		outcome, renderURL, httpStatus, renderTime.Milliseconds(),
	)
	r.bus.Publish(level, msg, r.sessionID)
}

func (r *LogRecorder) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause ErrorCause,
	errorString string,
	attrs []Attribute,
) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s.%s cause=%s: %s", packageName, action, cause, errorString)
	for _, attr := range attrs {
		fmt.Fprintf(&b, " %s=%s", attr.Key, attr.Value)
	}

	level := logbus.LevelWarning
	if cause == CauseInvariantViolation {
		level = logbus.LevelError
	}
	r.bus.Publish(level, b.String(), r.sessionID)
}

func (r *LogRecorder) RecordEvent(level logbus.Level, message string) {
	r.bus.Publish(level, message, r.sessionID)
}

func (r *LogRecorder) RecordFinalCrawlStats(
	totalPages int,
	totalErrors int,
	totalRetries int,
	duration time.Duration,
) {
	msg := fmt.Sprintf(
		"crawl finished pages=%d errors=%d retries=%d duration_ms=%d",
		totalPages, totalErrors, totalRetries, duration.Milliseconds(),
	)
	r.bus.Publish(logbus.LevelInfo, msg, r.sessionID)
}
