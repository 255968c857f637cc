package session

import (
	"fmt"

	"github.com/rohmanhakim/webcrawler/pkg/failure"
)

type SessionErrorCause string

const (
	ErrCauseInvalidSeed       SessionErrorCause = "invalid seed URL"
	ErrCauseSessionNotFound   SessionErrorCause = "session not found"
	ErrCauseManagerShutDown   SessionErrorCause = "manager shut down"
	ErrCauseInvariantViolated SessionErrorCause = "frontier invariant violated"
)

type SessionError struct {
	Message   string
	Retryable bool
	Cause     SessionErrorCause
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session error: %s", e.Cause)
}

func (e *SessionError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *SessionError) IsRetryable() bool {
	return e.Retryable
}
