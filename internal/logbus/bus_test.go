package logbus_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/webcrawler/internal/logbus"
)

func drain(sub *logbus.Subscriber) []logbus.LogEvent {
	var events []logbus.LogEvent
	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, event)
		default:
			return events
		}
	}
}

func TestPublish_AdminReceivesEverything(t *testing.T) {
	bus := logbus.NewBus(nil)
	defer bus.Close()

	admin := bus.Subscribe(logbus.TopicAdmin)

	bus.Publish(logbus.LevelInfo, "process event", "")
	bus.Publish(logbus.LevelWarning, "session event", "crawl_1_1")

	events := drain(admin)
	require.Len(t, events, 2)
	assert.Equal(t, "process event", events[0].Message)
	assert.Empty(t, events[0].SessionID)
	assert.Equal(t, "session event", events[1].Message)
	assert.Equal(t, "crawl_1_1", events[1].SessionID)
}

func TestPublish_SessionTopicReceivesOnlyItsEvents(t *testing.T) {
	bus := logbus.NewBus(nil)
	defer bus.Close()

	mine := bus.Subscribe(logbus.SessionTopic("crawl_1_1"))
	other := bus.Subscribe(logbus.SessionTopic("crawl_2_2"))

	bus.Publish(logbus.LevelInfo, "for session one", "crawl_1_1")
	bus.Publish(logbus.LevelInfo, "process-wide", "")

	assert.Len(t, drain(mine), 1)
	assert.Empty(t, drain(other))
}

func TestPublish_TimestampFormat(t *testing.T) {
	bus := logbus.NewBus(nil)
	defer bus.Close()

	fixed := time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.Local)
	bus.SetClockForTest(func() time.Time { return fixed })

	sub := bus.Subscribe(logbus.TopicAdmin)
	bus.Publish(logbus.LevelDebug, "tick", "")

	events := drain(sub)
	require.Len(t, events, 1)
	assert.Equal(t, "2025-03-14 09:26:53.589", events[0].Timestamp)
}

func TestPublish_OversizedMessageTruncated(t *testing.T) {
	bus := logbus.NewBus(nil)
	defer bus.Close()

	sub := bus.Subscribe(logbus.TopicAdmin)

	huge := strings.Repeat("a", 16*1024)
	bus.Publish(logbus.LevelInfo, huge, "")

	events := drain(sub)
	require.Len(t, events, 1)
	assert.True(t, strings.HasSuffix(events[0].Message, "... [truncated]"))
	assert.Len(t, events[0].Message, 1000+len("... [truncated]"))
}

func TestPublish_DropOldestUnderBackpressure(t *testing.T) {
	bus := logbus.NewBus(nil)
	defer bus.Close()
	bus.SetMailboxSizeForTest(2)

	sub := bus.Subscribe(logbus.TopicAdmin)

	bus.Publish(logbus.LevelInfo, "one", "")
	bus.Publish(logbus.LevelInfo, "two", "")
	bus.Publish(logbus.LevelInfo, "three", "")

	events := drain(sub)
	require.Len(t, events, 2)
	// the oldest event was evicted
	assert.Equal(t, "two", events[0].Message)
	assert.Equal(t, "three", events[1].Message)
	assert.Equal(t, uint64(1), sub.Dropped())
}

func TestPublish_GlobalRateLimit(t *testing.T) {
	bus := logbus.NewBus(nil)
	defer bus.Close()
	bus.SetMailboxSizeForTest(512)

	sub := bus.Subscribe(logbus.TopicAdmin)

	for i := 0; i < 250; i++ {
		bus.Publish(logbus.LevelInfo, fmt.Sprintf("event %d", i), "")
	}

	events := drain(sub)

	// at most the 100-token burst plus the aggregated warning get through
	assert.LessOrEqual(t, len(events), 102)
	assert.Greater(t, bus.ThrottledCount(), uint64(0))

	var warnings int
	for _, event := range events {
		if strings.Contains(event.Message, "rate-limiting active") {
			warnings++
		}
	}
	assert.Equal(t, 1, warnings, "exactly one aggregated warning per second")
}

func TestUnsubscribe_ClosesMailbox(t *testing.T) {
	bus := logbus.NewBus(nil)
	defer bus.Close()

	sub := bus.Subscribe(logbus.TopicAdmin)
	require.Equal(t, 1, bus.SubscriberCount(logbus.TopicAdmin))

	bus.Unsubscribe(sub)

	assert.Equal(t, 0, bus.SubscriberCount(logbus.TopicAdmin))
	_, open := <-sub.Events()
	assert.False(t, open)

	// double unsubscribe is safe
	bus.Unsubscribe(sub)
}

func TestClose_ShutsDownAllSubscribers(t *testing.T) {
	bus := logbus.NewBus(nil)

	a := bus.Subscribe(logbus.TopicAdmin)
	b := bus.Subscribe(logbus.SessionTopic("crawl_1_1"))

	bus.Close()

	_, openA := <-a.Events()
	_, openB := <-b.Events()
	assert.False(t, openA)
	assert.False(t, openB)
}

func TestLogEventJSONShape(t *testing.T) {
	bus := logbus.NewBus(nil)
	defer bus.Close()

	sub := bus.Subscribe(logbus.TopicAdmin)
	bus.Publish(logbus.LevelError, "boom", "crawl_9_9")

	events := drain(sub)
	require.Len(t, events, 1)

	assert.Equal(t, logbus.LevelError, events[0].Level)
	assert.Equal(t, "crawl_9_9", events[0].SessionID)
	assert.NotEmpty(t, events[0].Timestamp)
}
