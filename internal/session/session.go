package session

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rohmanhakim/webcrawler/internal/config"
	"github.com/rohmanhakim/webcrawler/internal/fetcher"
	"github.com/rohmanhakim/webcrawler/internal/frontier"
	"github.com/rohmanhakim/webcrawler/internal/logbus"
	"github.com/rohmanhakim/webcrawler/internal/metadata"
	"github.com/rohmanhakim/webcrawler/internal/parser"
	"github.com/rohmanhakim/webcrawler/internal/robots"
	"github.com/rohmanhakim/webcrawler/internal/storage"
	"github.com/rohmanhakim/webcrawler/pkg/failure"
	"github.com/rohmanhakim/webcrawler/pkg/limiter"
	"github.com/rohmanhakim/webcrawler/pkg/timeutil"
	"github.com/rohmanhakim/webcrawler/pkg/urlutil"
)

/*
CrawlSession drives one crawl: a pool of workers pulling from the
session's frontier, each worker doing robots → fetch → parse → sink →
link discovery for one URL at a time.

Admission guarantees:
- The session is the only component that submits URLs to its frontier.
- Robots and depth checks complete before a URL is enqueued or fetched.
- Workers never decide retry policy; they classify and hand the kind to
  the frontier.

The session owns its frontier, results, and workers exclusively; the
robots policy, log bus, and content sink are shared process services
passed in by the manager.
*/

type CrawlSession struct {
	id        string
	cfg       config.Config
	seedURL   url.URL
	createdAt time.Time

	frontier     *frontier.Frontier
	rateLimiter  *limiter.ConcurrentRateLimiter
	pageFetcher  fetcher.Fetcher
	robotsPolicy robots.Policy
	contentParse parser.Parser
	contentSink  storage.ContentSink
	metadataSink metadata.MetadataSink
	finalizer    metadata.CrawlFinalizer

	resultsMu    sync.Mutex
	results      []CrawlResult
	resultIndex  map[string]int
	totalErrors  int
	totalRetries int

	ctx       context.Context
	cancel    context.CancelFunc
	group     *errgroup.Group
	stopped   atomic.Bool
	completed atomic.Bool

	completedAtMu sync.Mutex
	completedAt   time.Time

	clock func() time.Time
}

// Deps carries the process-wide services a session borrows.
type Deps struct {
	Fetcher      fetcher.Fetcher
	RobotsPolicy robots.Policy
	Parser       parser.Parser
	ContentSink  storage.ContentSink
	MetadataSink metadata.MetadataSink
	Finalizer    metadata.CrawlFinalizer
}

func NewCrawlSession(id string, seedURL url.URL, cfg config.Config, deps Deps) *CrawlSession {
	ctx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(ctx)

	s := &CrawlSession{
		id:           id,
		cfg:          cfg,
		seedURL:      seedURL,
		createdAt:    time.Now(),
		pageFetcher:  deps.Fetcher,
		robotsPolicy: deps.RobotsPolicy,
		contentParse: deps.Parser,
		contentSink:  deps.ContentSink,
		metadataSink: deps.MetadataSink,
		finalizer:    deps.Finalizer,
		resultIndex:  make(map[string]int),
		ctx:          groupCtx,
		cancel:       cancel,
		group:        group,
		clock:        time.Now,
	}

	s.rateLimiter = limiter.NewConcurrentRateLimiter()
	s.rateLimiter.SetBaseDelay(cfg.BaseDelay())
	s.rateLimiter.SetRandomSeed(cfg.RandomSeed())

	s.frontier = frontier.NewFrontier(frontier.Options{
		CrawlDelay:         s.crawlDelay,
		PerHostMaxInFlight: cfg.PerHostMaxConcurrency(),
		MaxRetries:         cfg.MaxRetries(),
		RandomSeed:         cfg.RandomSeed(),
	})

	return s
}

func (s *CrawlSession) ID() string {
	return s.id
}

func (s *CrawlSession) CreatedAt() time.Time {
	return s.createdAt
}

func (s *CrawlSession) Completed() bool {
	return s.completed.Load()
}

func (s *CrawlSession) CompletedAt() (time.Time, bool) {
	s.completedAtMu.Lock()
	defer s.completedAtMu.Unlock()
	return s.completedAt, !s.completedAt.IsZero()
}

// crawlDelay resolves the politeness delay the frontier enforces for a
// host: the maximum of the configured base delay, the robots crawl-delay,
// and any active backoff from 429/5xx responses.
func (s *CrawlSession) crawlDelay(host string) time.Duration {
	delays := []time.Duration{s.cfg.BaseDelay()}

	if s.cfg.RespectRobotsTxt() {
		delays = append(delays, s.robotsPolicy.CrawlDelay(host, s.cfg.UserAgent()))
	}
	if timing, tracked := s.rateLimiter.HostTimings()[host]; tracked {
		delays = append(delays, timing.CrawlDelay(), timing.BackOffDelay())
	}

	return timeutil.MaxDuration(delays)
}

// Start seeds the frontier and launches the worker pool. It returns
// immediately; completion is observable through Completed.
func (s *CrawlSession) Start(force bool) {
	s.emit(logbus.LevelInfo, fmt.Sprintf("session %s starting for %s", s.id, s.seedURL.String()))

	s.frontier.Add(s.seedURL.String(), force, frontier.PriorityHigh, 0)

	for i := 0; i < s.cfg.WorkerCount(); i++ {
		s.group.Go(func() error {
			s.workerLoop()
			return nil
		})
	}

	go func() {
		startTime := s.clock()
		s.group.Wait()
		s.markCompleted()

		if s.finalizer != nil {
			s.resultsMu.Lock()
			pages := len(s.results)
			errors := s.totalErrors
			retries := s.totalRetries
			s.resultsMu.Unlock()
			s.finalizer.RecordFinalCrawlStats(pages, errors, retries, s.clock().Sub(startTime))
		}
	}()
}

// Stop requests cooperative shutdown: workers exit at the next loop
// boundary and outstanding HTTP calls are cancelled. Join waits out the
// grace period.
func (s *CrawlSession) Stop() {
	if s.stopped.CompareAndSwap(false, true) {
		s.emit(logbus.LevelInfo, fmt.Sprintf("session %s stopping", s.id))
		s.cancel()
	}
}

// Join blocks until the workers exit or the stop grace period elapses.
func (s *CrawlSession) Join() {
	done := make(chan struct{})
	go func() {
		s.group.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stopGracePeriod):
		// workers are detached past this point; their context is already
		// cancelled so in-flight requests die on their own
	}
}

func (s *CrawlSession) markCompleted() {
	if s.completed.CompareAndSwap(false, true) {
		s.completedAtMu.Lock()
		s.completedAt = s.clock()
		s.completedAtMu.Unlock()
		s.emit(logbus.LevelInfo, fmt.Sprintf("session %s completed with %d results", s.id, s.ResultCount()))
	}
}

// workerLoop pulls ready URLs until the session stops, limits are hit, or
// the frontier stays idle for a full polling interval.
func (s *CrawlSession) workerLoop() {
	var idleSince time.Time

	for {
		if s.ctx.Err() != nil || s.stopped.Load() {
			return
		}
		if s.ResultCount() >= s.cfg.MaxPages() {
			s.cancel()
			return
		}

		queued, ok := s.frontier.Next()
		if !ok {
			if s.frontier.Idle() {
				if idleSince.IsZero() {
					idleSince = s.clock()
				} else if s.clock().Sub(idleSince) >= idlePollInterval {
					return
				}
			} else {
				idleSince = time.Time{}
			}
			s.nap()
			continue
		}

		idleSince = time.Time{}
		s.processURL(queued)
	}
}

// nap sleeps until the next frontier entry could be ready, bounded by the
// polling nap, and wakes early on stop.
func (s *CrawlSession) nap() {
	wait := notReadyNap
	if readyAt, ok := s.frontier.NextReadyAt(); ok {
		if until := readyAt.Sub(s.clock()); until > 0 && until < wait {
			wait = until
		}
	}

	select {
	case <-s.ctx.Done():
	case <-time.After(wait):
	}
}

// processURL runs the full pipeline for one frontier entry.
func (s *CrawlSession) processURL(queued frontier.QueuedURL) {
	pageURL, err := url.Parse(queued.URL)
	if err != nil {
		// the frontier only hands out normalized URLs; an unparseable one
		// means the dedup sets are desynchronized
		s.fatalInvariant(fmt.Sprintf("frontier returned unparseable URL %q: %v", queued.URL, err))
		return
	}

	s.beginResult(queued)

	if s.cfg.RespectRobotsTxt() {
		s.robotsPolicy.EnsureLoaded(s.ctx, pageURL.Scheme, pageURL.Host)
		decision := s.robotsPolicy.IsAllowed(*pageURL, s.cfg.UserAgent())
		if decision.CrawlDelay != nil {
			s.rateLimiter.SetCrawlDelay(pageURL.Host, *decision.CrawlDelay)
		}
		if !decision.Allowed {
			s.finishSkipped(queued, "URL not allowed by robots.txt")
			s.frontier.MarkTerminal(queued.URL)
			s.emit(logbus.LevelInfo, fmt.Sprintf("skipped %s: disallowed by robots.txt", queued.URL))
			return
		}
	}

	outcome := s.fetch(*pageURL, queued.Depth)

	if !outcome.Success() {
		s.handleFailure(queued, outcome)
		return
	}

	s.handleSuccess(queued, *pageURL, outcome)
}

// fetch keeps redirect chains on the fetched URL's own host; hopping to
// another domain is a policy failure, not a transparent follow.
func (s *CrawlSession) fetch(pageURL url.URL, depth int) fetcher.FetchOutcome {
	param := fetcher.NewFetchParam(pageURL, depth)
	return s.pageFetcher.FetchWithDomainRestriction(s.ctx, param, urlutil.Host(pageURL.String()))
}

func (s *CrawlSession) handleFailure(queued frontier.QueuedURL, outcome fetcher.FetchOutcome) {
	kind := outcome.ErrorKind()

	// an overloaded host slows the whole host down, not just this URL
	if kind == failure.KindHTTP429 || kind == failure.KindHTTP5xx {
		s.rateLimiter.Backoff(urlutil.Host(queued.URL))
	}

	if kind.Retryable() && queued.RetryCount < s.cfg.MaxRetries() {
		delay := s.frontier.RetryDelay(queued.RetryCount, s.cfg.RetryBaseDelay(), s.cfg.RetryMaxDelay())
		scheduled := s.frontier.ScheduleRetry(
			queued.URL,
			queued.Depth,
			queued.RetryCount,
			outcome.ErrMessage(),
			kind,
			delay,
		)
		if scheduled {
			s.countRetry()
			s.updateResult(queued.URL, func(r *CrawlResult) {
				r.CrawlStatus = StatusQueued
				r.Error = outcome.ErrMessage()
				r.RetryCount = queued.RetryCount + 1
				r.StatusCode = outcome.StatusCode()
			})
			s.emit(logbus.LevelWarning, fmt.Sprintf(
				"fetch failed for %s (%s), retry %d/%d in %s",
				queued.URL, kind, queued.RetryCount+1, s.cfg.MaxRetries(), delay.Round(time.Millisecond),
			))
			return
		}
	}

	// terminal
	s.frontier.MarkTerminal(queued.URL)
	s.countError()
	s.updateResult(queued.URL, func(r *CrawlResult) {
		r.CrawlStatus = StatusFailed
		r.Error = outcome.ErrMessage()
		r.StatusCode = outcome.StatusCode()
		r.FinishedAt = s.clock()
	})

	level := logbus.LevelInfo
	if kind.Retryable() {
		// retryable kind that ran out of budget
		level = logbus.LevelWarning
	}
	s.emit(level, fmt.Sprintf("giving up on %s (%s): %s", queued.URL, kind, outcome.ErrMessage()))
}

func (s *CrawlSession) handleSuccess(queued frontier.QueuedURL, pageURL url.URL, outcome fetcher.FetchOutcome) {
	isHTML := isHTMLContentType(outcome.ContentType())

	var parsed parser.ParsedPage
	if isHTML {
		parsed = s.contentParse.Parse(outcome.Body(), pageURL)

		s.storeParsed(pageURL, outcome, parsed)
		s.enqueueLinks(parsed.Links(), queued.Depth+1)
	}

	s.frontier.MarkVisited(queued.URL)
	s.frontier.MarkCompleted(queued.URL)
	host := urlutil.Host(queued.URL)
	s.rateLimiter.ResetBackoff(host)
	s.rateLimiter.MarkLastFetchAsNow(host)

	s.updateResult(queued.URL, func(r *CrawlResult) {
		r.CrawlStatus = StatusParsed
		r.FinalURL = outcome.FinalURL()
		r.StatusCode = outcome.StatusCode()
		r.ContentType = outcome.ContentType()
		r.FinishedAt = s.clock()
		if isHTML {
			r.Title = parsed.Title()
			r.MetaDescription = parsed.MetaDescription()
			r.LinkCount = len(parsed.Links())
			if s.cfg.ExtractTextContent() {
				r.TextContent = parsed.Text()
			}
			if s.cfg.StoreRawContent() {
				r.Raw = outcome.Body()
			}
		}
	})

	s.emit(logbus.LevelDebug, fmt.Sprintf("parsed %s: %d links", queued.URL, len(parsed.Links())))
}

func (s *CrawlSession) storeParsed(pageURL url.URL, outcome fetcher.FetchOutcome, parsed parser.ParsedPage) {
	if s.contentSink == nil {
		return
	}

	var raw []byte
	if s.cfg.StoreRawContent() {
		raw = outcome.Body()
	}

	if err := s.contentSink.StoreParsed(
		s.ctx,
		s.id,
		pageURL,
		outcome.FinalURL(),
		parsed,
		raw,
		outcome.StatusCode(),
		outcome.ContentType(),
	); err != nil {
		s.countError()
		s.emit(logbus.LevelWarning, fmt.Sprintf("content sink rejected %s: %v", pageURL.String(), err))
	}
}

// enqueueLinks submits discovered links that pass the depth and robots
// filters. Robots evaluation here is advisory (rules may not be loaded
// yet); the authoritative check runs when the URL is processed.
func (s *CrawlSession) enqueueLinks(links []url.URL, depth int) {
	if depth > s.cfg.MaxDepth() {
		return
	}

	for _, link := range links {
		if s.cfg.RespectRobotsTxt() && s.robotsPolicy.Loaded(link.Host) {
			if decision := s.robotsPolicy.IsAllowed(link, s.cfg.UserAgent()); !decision.Allowed {
				continue
			}
		}
		s.frontier.Add(link.String(), false, frontier.PriorityNormal, depth)
	}
}

// fatalInvariant surfaces a broken frontier invariant: the session is
// marked completed with an error stamp, other sessions are unaffected.
func (s *CrawlSession) fatalInvariant(message string) {
	if s.metadataSink != nil {
		s.metadataSink.RecordError(
			s.clock(),
			"session",
			"CrawlSession.processURL",
			metadata.CauseInvariantViolation,
			message,
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrSessionID, s.id),
			},
		)
	}
	s.Stop()
}

//
// result bookkeeping
//

func (s *CrawlSession) beginResult(queued frontier.QueuedURL) {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()

	if idx, exists := s.resultIndex[queued.URL]; exists {
		s.results[idx].CrawlStatus = StatusDownloading
		s.results[idx].RetryCount = queued.RetryCount
		return
	}

	s.results = append(s.results, CrawlResult{
		URL:         queued.URL,
		CrawlStatus: StatusDownloading,
		Depth:       queued.Depth,
		RetryCount:  queued.RetryCount,
		StartedAt:   s.clock(),
	})
	s.resultIndex[queued.URL] = len(s.results) - 1
}

func (s *CrawlSession) finishSkipped(queued frontier.QueuedURL, reason string) {
	s.updateResult(queued.URL, func(r *CrawlResult) {
		r.CrawlStatus = StatusSkipped
		r.Error = reason
		r.FinishedAt = s.clock()
	})
}

func (s *CrawlSession) updateResult(url string, apply func(*CrawlResult)) {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()

	idx, exists := s.resultIndex[url]
	if !exists {
		return
	}
	apply(&s.results[idx])
}

func (s *CrawlSession) countError() {
	s.resultsMu.Lock()
	s.totalErrors++
	s.resultsMu.Unlock()
}

func (s *CrawlSession) countRetry() {
	s.resultsMu.Lock()
	s.totalRetries++
	s.resultsMu.Unlock()
}

// Results returns a copy of the accumulated results.
func (s *CrawlSession) Results() []CrawlResult {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()

	out := make([]CrawlResult, len(s.results))
	copy(out, s.results)
	return out
}

func (s *CrawlSession) ResultCount() int {
	s.resultsMu.Lock()
	defer s.resultsMu.Unlock()
	return len(s.results)
}

// Status derives the session state: starting until the first result,
// crawling while any result is active or the frontier still holds work,
// completed otherwise. Deriving the completed state marks the session
// completed.
func (s *CrawlSession) Status() SessionStatus {
	if s.completed.Load() {
		return StatusCompleted
	}

	s.resultsMu.Lock()
	resultCount := len(s.results)
	active := false
	for _, r := range s.results {
		if r.CrawlStatus == StatusQueued || r.CrawlStatus == StatusDownloading {
			active = true
			break
		}
	}
	s.resultsMu.Unlock()

	if resultCount == 0 {
		return StatusStarting
	}
	if active || !s.frontier.Idle() {
		return StatusCrawling
	}
	s.markCompleted()
	return StatusCompleted
}

// RetryStats exposes the frontier's retry view for status reports.
func (s *CrawlSession) RetryStats() frontier.RetryStats {
	return s.frontier.RetryStats()
}

// Snapshot captures the frontier state in the persisted layout.
func (s *CrawlSession) Snapshot() frontier.SnapshotState {
	return s.frontier.Snapshot(s.id)
}

func (s *CrawlSession) emit(level logbus.Level, message string) {
	if s.metadataSink != nil {
		s.metadataSink.RecordEvent(level, message)
	}
}

func isHTMLContentType(contentType string) bool {
	contentType = strings.ToLower(contentType)
	return strings.Contains(contentType, "text/html") ||
		strings.Contains(contentType, "application/xhtml")
}

var _ failure.ClassifiedError = (*SessionError)(nil)
