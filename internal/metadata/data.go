package metadata

import "time"

/*
Metadata Collected
- Fetch timestamps and HTTP status codes
- Render timings
- Crawl depth and retry counts
- Error records with canonical causes

Structured events only. Metadata emission is observational and MUST NOT
influence scheduling, retries, or crawl termination.
*/

type FetchEvent struct {
	fetchURL    string
	httpStatus  int
	duration    time.Duration
	contentType string
	retryCount  int
	crawlDepth  int
}

/*
ErrorCause is a closed, canonical classification used exclusively for
observability (logging, metrics, reporting).

Rules:
 - ErrorCause is for observability only.
 - It must never be used to derive retry, continuation, or abort decisions.
 - Pipeline packages MAY map their local errors to ErrorCause,
   but MUST NOT invent new meanings.

If a failure does not clearly match a defined cause, CauseUnknown MUST be used.
*/
type ErrorCause int

const (
	CauseUnknown ErrorCause = iota
	// transport or remote availability: timeouts, DNS, resets
	CauseNetworkFailure
	// crawling disallowed by explicit policy: robots.txt, 403/401, rate limits
	CausePolicyDisallow
	// content fetched but not processable: non-HTML, broken DOM
	CauseContentInvalid
	// failure while persisting crawl artifacts
	CauseStorageFailure
	// retry budget exhausted
	CauseRetryFailure
	// a system-level invariant was violated; fatal for the session
	CauseInvariantViolation
)

func (c ErrorCause) String() string {
	switch c {
	case CauseNetworkFailure:
		return "network_failure"
	case CausePolicyDisallow:
		return "policy_disallow"
	case CauseContentInvalid:
		return "content_invalid"
	case CauseStorageFailure:
		return "storage_failure"
	case CauseRetryFailure:
		return "retry_failure"
	case CauseInvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

type Attribute struct {
	Key   AttributeKey
	Value string
}

func NewAttr(key AttributeKey, val string) Attribute {
	return Attribute{
		Key:   key,
		Value: val,
	}
}

type AttributeKey string

const (
	AttrTime       AttributeKey = "time"
	AttrURL        AttributeKey = "url"
	AttrHost       AttributeKey = "host"
	AttrPath       AttributeKey = "path"
	AttrDepth      AttributeKey = "depth"
	AttrField      AttributeKey = "field"
	AttrHTTPStatus AttributeKey = "http_status"
	AttrSessionID  AttributeKey = "session_id"
	AttrRenderTime AttributeKey = "render_time"
	AttrWritePath  AttributeKey = "write_path"
)
