package logbus

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

/*
Responsibilities

- Broadcast structured LogEvents to subscribers
- Admin topic sees everything; session topics see their own events
- Protect slow consumers: bounded mailboxes, drop-oldest, drop counters
- Protect the process: global publish rate limit with aggregated warning
- Cap oversized payloads

The bus never blocks a publisher. Subscribers that stop draining lose the
oldest events first and can observe how many were lost.
*/

const (
	// at most this many events per rolling second leave the bus
	globalEventsPerSecond = 100

	// payloads above this size have Message truncated
	maxPayloadBytes = 15 * 1024

	truncatedMessageLen   = 1000
	truncationSuffix      = "... [truncated]"
	defaultMailboxSize    = 256
	throttleWarnMinPeriod = time.Second
)

// Subscriber is a registered consumer of one topic. Events arrive on
// Events(); when the mailbox is full the oldest event is discarded and the
// drop counter incremented.
type Subscriber struct {
	topic   string
	mailbox chan LogEvent
	dropped atomic.Uint64
	closed  atomic.Bool
}

func (s *Subscriber) Topic() string {
	return s.topic
}

func (s *Subscriber) Events() <-chan LogEvent {
	return s.mailbox
}

// Dropped returns how many events were discarded because this subscriber
// fell behind.
func (s *Subscriber) Dropped() uint64 {
	return s.dropped.Load()
}

type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]*Subscriber

	limiter      *rate.Limiter
	throttled    atomic.Uint64
	lastWarnMu   sync.Mutex
	lastWarnAt   time.Time
	mailboxSize  int
	logger       *zap.Logger
	clock        func() time.Time
}

// NewBus creates a bus with default mailbox sizing. logger may be nil, in
// which case events are not mirrored.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subscribers: make(map[string][]*Subscriber),
		limiter:     rate.NewLimiter(rate.Limit(globalEventsPerSecond), globalEventsPerSecond),
		mailboxSize: defaultMailboxSize,
		logger:      logger,
		clock:       time.Now,
	}
}

// SetMailboxSizeForTest shrinks subscriber mailboxes so backpressure
// behavior can be exercised. Must be called before Subscribe.
func (b *Bus) SetMailboxSizeForTest(size int) {
	b.mailboxSize = size
}

// SetClockForTest replaces the bus's time source. Test helper only.
func (b *Bus) SetClockForTest(clock func() time.Time) {
	b.clock = clock
}

// Subscribe registers a consumer on the given topic and returns its handle.
func (b *Bus) Subscribe(topic string) *Subscriber {
	sub := &Subscriber{
		topic:   topic,
		mailbox: make(chan LogEvent, b.mailboxSize),
	}

	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], sub)
	b.mu.Unlock()

	return sub
}

// Unsubscribe removes the subscriber and closes its mailbox. Safe to call
// more than once.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	if sub == nil || !sub.closed.CompareAndSwap(false, true) {
		return
	}

	b.mu.Lock()
	subs := b.subscribers[sub.topic]
	for i, s := range subs {
		if s == sub {
			b.subscribers[sub.topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[sub.topic]) == 0 {
		delete(b.subscribers, sub.topic)
	}
	b.mu.Unlock()

	close(sub.mailbox)
}

// SubscriberCount reports the number of active subscribers on a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

// ThrottledCount reports how many events the global rate limit discarded.
func (b *Bus) ThrottledCount() uint64 {
	return b.throttled.Load()
}

// Publish broadcasts an event to the admin topic and, when sessionID is
// non-empty, to that session's topic. Oversized messages are truncated;
// events beyond the global rate limit are dropped with one aggregated
// warning per second.
func (b *Bus) Publish(level Level, message string, sessionID string) {
	if len(message) > maxPayloadBytes {
		message = message[:truncatedMessageLen] + truncationSuffix
	}

	if !b.limiter.Allow() {
		b.throttled.Add(1)
		b.warnThrottled(sessionID)
		return
	}

	event := LogEvent{
		Level:     level,
		Message:   message,
		Timestamp: formatTimestamp(b.clock()),
		SessionID: sessionID,
	}

	b.mirror(event)
	b.deliver(TopicAdmin, event)
	if sessionID != "" {
		b.deliver(SessionTopic(sessionID), event)
	}
}

// warnThrottled emits the aggregated rate-limit warning, at most once per
// second, bypassing the limiter so the signal itself is never throttled.
func (b *Bus) warnThrottled(sessionID string) {
	b.lastWarnMu.Lock()
	now := b.clock()
	if now.Sub(b.lastWarnAt) < throttleWarnMinPeriod {
		b.lastWarnMu.Unlock()
		return
	}
	b.lastWarnAt = now
	b.lastWarnMu.Unlock()

	event := LogEvent{
		Level:     LevelWarning,
		Message:   "rate-limiting active: some log events are being dropped",
		Timestamp: formatTimestamp(now),
		SessionID: sessionID,
	}
	b.mirror(event)
	b.deliver(TopicAdmin, event)
}

func (b *Bus) deliver(topic string, event LogEvent) {
	b.mu.RLock()
	subs := b.subscribers[topic]
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.closed.Load() {
			continue
		}
		select {
		case sub.mailbox <- event:
		default:
			// full mailbox: evict the oldest, then retry once
			select {
			case <-sub.mailbox:
				sub.dropped.Add(1)
			default:
			}
			select {
			case sub.mailbox <- event:
			default:
				sub.dropped.Add(1)
			}
		}
	}
}

func (b *Bus) mirror(event LogEvent) {
	fields := make([]zap.Field, 0, 1)
	if event.SessionID != "" {
		fields = append(fields, zap.String("session_id", event.SessionID))
	}
	switch event.Level {
	case LevelDebug:
		b.logger.Debug(event.Message, fields...)
	case LevelWarning:
		b.logger.Warn(event.Message, fields...)
	case LevelError:
		b.logger.Error(event.Message, fields...)
	default:
		b.logger.Info(event.Message, fields...)
	}
}

// Close unsubscribes every subscriber. The bus must not be published to
// afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	all := make([]*Subscriber, 0)
	for _, subs := range b.subscribers {
		all = append(all, subs...)
	}
	b.subscribers = make(map[string][]*Subscriber)
	b.mu.Unlock()

	for _, sub := range all {
		if sub.closed.CompareAndSwap(false, true) {
			close(sub.mailbox)
		}
	}
}
