package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rohmanhakim/webcrawler/internal/config"
	"github.com/rohmanhakim/webcrawler/internal/fetcher"
	"github.com/rohmanhakim/webcrawler/internal/frontier"
	"github.com/rohmanhakim/webcrawler/internal/logbus"
	"github.com/rohmanhakim/webcrawler/internal/metadata"
	"github.com/rohmanhakim/webcrawler/internal/parser"
	"github.com/rohmanhakim/webcrawler/internal/render"
	"github.com/rohmanhakim/webcrawler/internal/robots"
	"github.com/rohmanhakim/webcrawler/internal/storage"
	"github.com/rohmanhakim/webcrawler/pkg/urlutil"
)

/*
SessionManager owns the lifecycle of every concurrent crawl session:
id allocation, construction and wiring of per-session components,
status/results lookups, cooperative stop, and the background janitor
that removes completed sessions after their retention window.

The manager is the composition root for per-session dependencies; the
process-wide services (log bus, robots policy, content sink) are injected
once at startup.
*/

type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*CrawlSession

	bus          *logbus.Bus
	robotsPolicy robots.Policy
	contentSink  storage.ContentSink

	counter  atomic.Uint64
	stopCh   chan struct{}
	stopOnce sync.Once
	shutDown atomic.Bool

	clock func() time.Time
}

func NewSessionManager(bus *logbus.Bus, robotsPolicy robots.Policy, contentSink storage.ContentSink) *SessionManager {
	m := &SessionManager{
		sessions:     make(map[string]*CrawlSession),
		bus:          bus,
		robotsPolicy: robotsPolicy,
		contentSink:  contentSink,
		stopCh:       make(chan struct{}),
		clock:        time.Now,
	}

	go m.janitorLoop()

	return m
}

// Start allocates a session id, wires a session for the seed URL, and
// launches its workers. It returns as soon as the session is registered.
func (m *SessionManager) Start(seedURL string, cfg config.Config, force bool) (string, error) {
	if m.shutDown.Load() {
		return "", &SessionError{
			Message: "manager is shut down",
			Cause:   ErrCauseManagerShutDown,
		}
	}

	normalized, err := urlutil.Normalize(seedURL, nil)
	if err != nil {
		return "", &SessionError{
			Message: fmt.Sprintf("seed %q: %v", seedURL, err),
			Cause:   ErrCauseInvalidSeed,
		}
	}

	sessionID := m.allocateID()

	recorder := metadata.NewLogRecorder(m.bus, sessionID)

	renderClient := render.NewHTTPClient(cfg.RenderBaseURL(), cfg.UserAgent(), &recorder)

	pageFetcher := fetcher.NewPageFetcher(fetcher.Options{
		UserAgent:           cfg.UserAgent(),
		Timeout:             cfg.RequestTimeout(),
		FollowRedirects:     cfg.FollowRedirects(),
		MaxRedirects:        cfg.MaxRedirects(),
		VerifyTLS:           cfg.VerifyTLS(),
		ProxyURL:            cfg.ProxyURL(),
		CustomHeaders:       cfg.CustomHeaders(),
		SpaRenderingEnabled: cfg.SpaRenderingEnabled(),
	}, renderClient, &recorder)

	contentParser := parser.NewContentParser(&recorder)

	sess := NewCrawlSession(sessionID, normalized, cfg, Deps{
		Fetcher:      pageFetcher,
		RobotsPolicy: m.robotsPolicy,
		Parser:       &contentParser,
		ContentSink:  m.contentSink,
		MetadataSink: &recorder,
		Finalizer:    &recorder,
	})

	m.mu.Lock()
	m.sessions[sessionID] = sess
	m.mu.Unlock()

	sess.Start(force)

	return sessionID, nil
}

func (m *SessionManager) allocateID() string {
	return fmt.Sprintf("crawl_%d_%d", m.clock().UnixMilli(), m.counter.Add(1))
}

// Status reports the session state, result count, and retry statistics.
func (m *SessionManager) Status(sessionID string) StatusReport {
	m.mu.Lock()
	sess, found := m.sessions[sessionID]
	m.mu.Unlock()

	if !found {
		return StatusReport{Status: StatusNotFound}
	}

	return StatusReport{
		Status:      sess.Status(),
		ResultCount: sess.ResultCount(),
		RetryStats:  sess.RetryStats(),
	}
}

// Results returns the accumulated results for a session, or nil when the
// session does not exist.
func (m *SessionManager) Results(sessionID string) []CrawlResult {
	m.mu.Lock()
	sess, found := m.sessions[sessionID]
	m.mu.Unlock()

	if !found {
		return nil
	}
	return sess.Results()
}

// Snapshot returns the frontier snapshot for a session.
func (m *SessionManager) Snapshot(sessionID string) (frontier.SnapshotState, bool) {
	m.mu.Lock()
	sess, found := m.sessions[sessionID]
	m.mu.Unlock()

	if !found {
		return frontier.SnapshotState{}, false
	}
	return sess.Snapshot(), true
}

// Stop requests a session's shutdown. Returns false for unknown ids.
func (m *SessionManager) Stop(sessionID string) bool {
	m.mu.Lock()
	sess, found := m.sessions[sessionID]
	m.mu.Unlock()

	if !found {
		return false
	}

	sess.Stop()
	return true
}

// ActiveSessions lists sessions that have not completed yet.
func (m *SessionManager) ActiveSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := make([]string, 0, len(m.sessions))
	for id, sess := range m.sessions {
		if !sess.Completed() {
			active = append(active, id)
		}
	}
	return active
}

// Session exposes a session handle, mainly for tests and the CLI.
func (m *SessionManager) Session(sessionID string) (*CrawlSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, found := m.sessions[sessionID]
	return sess, found
}

// janitorLoop wakes periodically and removes sessions that completed
// longer than the retention window ago, joining their workers first.
func (m *SessionManager) janitorLoop() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.cleanupCompletedSessions()
		}
	}
}

func (m *SessionManager) cleanupCompletedSessions() {
	now := m.clock()

	m.mu.Lock()
	expired := make([]*CrawlSession, 0)
	for _, sess := range m.sessions {
		if completedAt, done := sess.CompletedAt(); done && now.Sub(completedAt) >= sessionRetention {
			expired = append(expired, sess)
		}
	}
	m.mu.Unlock()

	// join outside the lock so a slow worker cannot stall the manager
	for _, sess := range expired {
		sess.Stop()
		sess.Join()

		m.mu.Lock()
		delete(m.sessions, sess.ID())
		m.mu.Unlock()

		m.bus.Publish(logbus.LevelInfo, fmt.Sprintf("cleaned up completed session %s", sess.ID()), "")
	}
}

// CleanupNowForTest runs one janitor pass immediately. Test helper only.
func (m *SessionManager) CleanupNowForTest() {
	m.cleanupCompletedSessions()
}

// SetClockForTest replaces the manager's time source. Test helper only.
func (m *SessionManager) SetClockForTest(clock func() time.Time) {
	m.clock = clock
}

// Close stops the janitor and every session, joining workers before
// returning. The manager accepts no new sessions afterwards.
func (m *SessionManager) Close() {
	m.shutDown.Store(true)
	m.stopOnce.Do(func() { close(m.stopCh) })

	m.mu.Lock()
	all := make([]*CrawlSession, 0, len(m.sessions))
	for _, sess := range m.sessions {
		all = append(all, sess)
	}
	m.sessions = make(map[string]*CrawlSession)
	m.mu.Unlock()

	for _, sess := range all {
		sess.Stop()
		sess.Join()
	}
}
