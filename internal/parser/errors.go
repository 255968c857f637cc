package parser

import (
	"fmt"

	"github.com/rohmanhakim/webcrawler/internal/metadata"
	"github.com/rohmanhakim/webcrawler/pkg/failure"
)

type ParseErrorCause string

const (
	ErrCauseUnparseableInput ParseErrorCause = "unparseable input"
	ErrCauseEmptyDocument    ParseErrorCause = "empty document"
)

type ParseError struct {
	Message   string
	Retryable bool
	Cause     ParseErrorCause
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parser error: %s", e.Cause)
}

func (e *ParseError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *ParseError) IsRetryable() bool {
	return e.Retryable
}

// mapParseErrorToMetadataCause maps parser-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapParseErrorToMetadataCause(err *ParseError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseUnparseableInput, ErrCauseEmptyDocument:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
