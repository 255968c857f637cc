package urlutil

import "fmt"

type URLErrorCause string

const (
	ErrCauseEmptyInput        URLErrorCause = "empty input"
	ErrCauseUnparseable       URLErrorCause = "unparseable url"
	ErrCauseNoBase            URLErrorCause = "relative url without base"
	ErrCauseUnsupportedScheme URLErrorCause = "unsupported scheme"
	ErrCauseEmptyHost         URLErrorCause = "empty host"
)

type URLError struct {
	Message string
	Cause   URLErrorCause
}

func (e *URLError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("url error: %s", e.Cause)
	}
	return fmt.Sprintf("url error: %s: %s", e.Cause, e.Message)
}
