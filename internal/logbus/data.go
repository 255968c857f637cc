package logbus

import "time"

// Event level labels as they appear on the wire.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// LogEvent is the wire format consumed by log-stream subscribers.
// Timestamp uses the "YYYY-MM-DD HH:MM:SS.mmm" layout. SessionID is empty
// for process-level events.
type LogEvent struct {
	Level     Level  `json:"level"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id,omitempty"`
}

const timestampLayout = "2006-01-02 15:04:05.000"

func formatTimestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

// Topic names. Admin receives every event; a session topic receives only
// events tagged with that session id.
const TopicAdmin = "admin"

const sessionTopicPrefix = "session:"

func SessionTopic(sessionID string) string {
	return sessionTopicPrefix + sessionID
}
