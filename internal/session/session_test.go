package session_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/webcrawler/internal/config"
	"github.com/rohmanhakim/webcrawler/internal/logbus"
	"github.com/rohmanhakim/webcrawler/internal/parser"
	"github.com/rohmanhakim/webcrawler/internal/robots"
	"github.com/rohmanhakim/webcrawler/internal/session"
	"github.com/rohmanhakim/webcrawler/internal/storage"
	"github.com/rohmanhakim/webcrawler/pkg/failure"
)

// capturingSink records every page handed to the content sink.
type capturingSink struct {
	mu     sync.Mutex
	stored []storedPage
}

type storedPage struct {
	sessionID string
	pageURL   string
	title     string
}

func (c *capturingSink) StoreParsed(
	ctx context.Context,
	sessionID string,
	pageURL url.URL,
	finalURL string,
	parsed parser.ParsedPage,
	raw []byte,
	statusCode int,
	contentType string,
) failure.ClassifiedError {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored = append(c.stored, storedPage{
		sessionID: sessionID,
		pageURL:   pageURL.String(),
		title:     parsed.Title(),
	})
	return nil
}

func (c *capturingSink) pages() []storedPage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]storedPage, len(c.stored))
	copy(out, c.stored)
	return out
}

func newTestManager(t *testing.T, sink storage.ContentSink) (*session.SessionManager, *logbus.Bus) {
	t.Helper()
	bus := logbus.NewBus(nil)
	policy := robots.NewCachedPolicy(nil, robots.NewFetcher("webcrawler-test/1.0", nil))
	manager := session.NewSessionManager(bus, policy, sink)
	t.Cleanup(func() {
		manager.Close()
		bus.Close()
	})
	return manager, bus
}

func waitForCompletion(t *testing.T, manager *session.SessionManager, sessionID string) {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if manager.Status(sessionID).Status == session.StatusCompleted {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("session %s did not complete in time", sessionID)
}

func fastConfig(t *testing.T) *config.Config {
	t.Helper()
	return config.WithDefault().
		WithUserAgent("webcrawler-test/1.0").
		WithRequestTimeout(5 * time.Second).
		WithBaseDelay(time.Millisecond).
		WithRetryBaseDelay(10 * time.Millisecond).
		WithRetryMaxDelay(100 * time.Millisecond).
		WithWorkerCount(2)
}

func TestCrawl_StaticFetchAndParse(t *testing.T) {
	// GIVEN a two-page site
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>T</title></head><body><a href="/a">x</a></body></html>`)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>A</title></head><body>leaf</body></html>`)
	})

	sink := &capturingSink{}
	manager, _ := newTestManager(t, sink)

	cfg, err := fastConfig(t).WithMaxPages(10).Build()
	require.NoError(t, err)

	sessionID, err := manager.Start(server.URL, cfg, false)
	require.NoError(t, err)
	waitForCompletion(t, manager, sessionID)

	// THEN both pages were parsed; the discovered link carries depth 1
	results := manager.Results(sessionID)
	byURL := make(map[string]session.CrawlResult)
	for _, r := range results {
		byURL[r.URL] = r
	}

	seed, found := byURL[server.URL]
	require.True(t, found, "seed result missing, results: %+v", results)
	assert.Equal(t, session.StatusParsed, seed.CrawlStatus)
	assert.Equal(t, "T", seed.Title)
	assert.Equal(t, 0, seed.Depth)
	assert.Equal(t, 1, seed.LinkCount)

	leaf, found := byURL[server.URL+"/a"]
	require.True(t, found)
	assert.Equal(t, session.StatusParsed, leaf.CrawlStatus)
	assert.Equal(t, "A", leaf.Title)
	assert.Equal(t, 1, leaf.Depth)

	// AND the sink received both pages tagged with the session
	pages := sink.pages()
	require.Len(t, pages, 2)
	for _, page := range pages {
		assert.Equal(t, sessionID, page.sessionID)
	}
}

func TestCrawl_RobotsDenial(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /private/")
	})
	var fetched atomic.Bool
	mux.HandleFunc("/private/p", func(w http.ResponseWriter, r *http.Request) {
		fetched.Store(true)
	})

	manager, _ := newTestManager(t, &capturingSink{})

	cfg, err := fastConfig(t).Build()
	require.NoError(t, err)

	sessionID, err := manager.Start(server.URL+"/private/p", cfg, false)
	require.NoError(t, err)
	waitForCompletion(t, manager, sessionID)

	results := manager.Results(sessionID)
	require.Len(t, results, 1)
	assert.Equal(t, session.StatusSkipped, results[0].CrawlStatus)
	assert.Contains(t, results[0].Error, "robots")
	assert.False(t, fetched.Load(), "disallowed URL must never be fetched")
}

func TestCrawl_RetryBackoffUntilTerminal(t *testing.T) {
	var attempts atomic.Int32
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/flaky", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	manager, _ := newTestManager(t, &capturingSink{})

	cfg, err := fastConfig(t).WithMaxRetries(2).Build()
	require.NoError(t, err)

	sessionID, err := manager.Start(server.URL+"/flaky", cfg, false)
	require.NoError(t, err)
	waitForCompletion(t, manager, sessionID)

	// initial attempt plus two retries, then terminal
	assert.Equal(t, int32(3), attempts.Load())

	results := manager.Results(sessionID)
	require.Len(t, results, 1)
	assert.Equal(t, session.StatusFailed, results[0].CrawlStatus)
	assert.Equal(t, http.StatusServiceUnavailable, results[0].StatusCode)
	assert.NotEmpty(t, results[0].Error)

	status := manager.Status(sessionID)
	assert.GreaterOrEqual(t, status.RetryStats.TotalRetries, 2)
}

func TestCrawl_PerHostPacing(t *testing.T) {
	var timesMu sync.Mutex
	var pageTimes []time.Time

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		timesMu.Lock()
		pageTimes = append(pageTimes, time.Now())
		timesMu.Unlock()
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/second">next</a></body></html>`)
	})
	mux.HandleFunc("/second", func(w http.ResponseWriter, r *http.Request) {
		timesMu.Lock()
		pageTimes = append(pageTimes, time.Now())
		timesMu.Unlock()
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>done</body></html>`)
	})

	manager, _ := newTestManager(t, &capturingSink{})

	pacing := 300 * time.Millisecond
	cfg, err := fastConfig(t).
		WithRespectRobotsTxt(false).
		WithBaseDelay(pacing).
		Build()
	require.NoError(t, err)

	sessionID, err := manager.Start(server.URL, cfg, false)
	require.NoError(t, err)
	waitForCompletion(t, manager, sessionID)

	timesMu.Lock()
	defer timesMu.Unlock()
	require.Len(t, pageTimes, 2)
	assert.GreaterOrEqual(t, pageTimes[1].Sub(pageTimes[0]), pacing,
		"successive visits to one host must honor the crawl delay")
}

func TestCrawl_MaxPagesLimit(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		// every page links to two more
		fmt.Fprintf(w, `<html><body><a href="%s0">a</a><a href="%s1">b</a></body></html>`, r.URL.Path, r.URL.Path)
	})

	manager, _ := newTestManager(t, &capturingSink{})

	cfg, err := fastConfig(t).WithMaxPages(3).Build()
	require.NoError(t, err)

	sessionID, err := manager.Start(server.URL, cfg, false)
	require.NoError(t, err)
	waitForCompletion(t, manager, sessionID)

	assert.LessOrEqual(t, manager.Status(sessionID).ResultCount, 4,
		"session must stop promptly at the page limit")
}

func TestCrawl_MaxDepthLimit(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	var depth3Fetched atomic.Bool
	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/d1">x</a></body></html>`)
	})
	mux.HandleFunc("/d1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/d2">x</a></body></html>`)
	})
	mux.HandleFunc("/d2", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><a href="/d3">x</a></body></html>`)
	})
	mux.HandleFunc("/d3", func(w http.ResponseWriter, r *http.Request) {
		depth3Fetched.Store(true)
	})

	manager, _ := newTestManager(t, &capturingSink{})

	cfg, err := fastConfig(t).WithMaxDepth(2).Build()
	require.NoError(t, err)

	sessionID, err := manager.Start(server.URL, cfg, false)
	require.NoError(t, err)
	waitForCompletion(t, manager, sessionID)

	assert.False(t, depth3Fetched.Load(), "links beyond max_depth must not be fetched")
}

func TestSession_LogEventsReachAdminTopic(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>ok</body></html>`)
	})

	manager, bus := newTestManager(t, &capturingSink{})

	cfg, err := fastConfig(t).Build()
	require.NoError(t, err)

	// subscribing before start catches the session's first events; the id
	// is allocated inside Start, so listen on admin instead
	admin := bus.Subscribe(logbus.TopicAdmin)

	sessionID, err := manager.Start(server.URL, cfg, false)
	require.NoError(t, err)
	waitForCompletion(t, manager, sessionID)

	var sessionEvents int
	for {
		select {
		case event := <-admin.Events():
			if event.SessionID == sessionID {
				sessionEvents++
			}
			continue
		default:
		}
		break
	}
	assert.Greater(t, sessionEvents, 0, "session activity must be observable on the admin topic")
}
