package render

import (
	"fmt"

	"github.com/rohmanhakim/webcrawler/internal/metadata"
	"github.com/rohmanhakim/webcrawler/pkg/failure"
)

type RenderErrorCause string

const (
	ErrCausePreRequestFailure RenderErrorCause = "failed before making request"
	ErrCauseTimeout           RenderErrorCause = "render timed out"
	ErrCauseConnectFailure    RenderErrorCause = "could not reach render service"
	ErrCauseHttpStatus        RenderErrorCause = "render service returned error status"
	ErrCauseEmptyBody         RenderErrorCause = "render service returned empty body"
)

type RenderError struct {
	Message   string
	Retryable bool
	Cause     RenderErrorCause
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render error: %s", e.Cause)
}

func (e *RenderError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *RenderError) IsRetryable() bool {
	return e.Retryable
}

// mapRenderErrorToMetadataCause maps render-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapRenderErrorToMetadataCause(err *RenderError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseTimeout, ErrCauseConnectFailure, ErrCauseHttpStatus:
		return metadata.CauseNetworkFailure
	case ErrCauseEmptyBody:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
