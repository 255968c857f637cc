package normalize

import (
	"fmt"

	"github.com/rohmanhakim/webcrawler/internal/metadata"
	"github.com/rohmanhakim/webcrawler/pkg/failure"
)

type NormalizationErrorCause string

const (
	ErrCauseEmptyContent      NormalizationErrorCause = "empty content"
	ErrCauseUnparseableDoc    NormalizationErrorCause = "unparseable markdown"
	ErrCauseFrontmatterFailed NormalizationErrorCause = "frontmatter generation failed"
)

type NormalizationError struct {
	Message   string
	Retryable bool
	Cause     NormalizationErrorCause
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize error: %s", e.Cause)
}

func (e *NormalizationError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *NormalizationError) IsRetryable() bool {
	return e.Retryable
}

// mapNormalizationErrorToMetadataCause maps normalize-local error
// semantics to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapNormalizationErrorToMetadataCause(err *NormalizationError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseEmptyContent, ErrCauseUnparseableDoc:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
