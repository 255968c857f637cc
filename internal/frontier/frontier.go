package frontier

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rohmanhakim/webcrawler/pkg/failure"
	"github.com/rohmanhakim/webcrawler/pkg/urlutil"
)

/*
Frontier Responsibilities
- Order URLs by priority and readiness
- Deduplicate across the main queue, retry queue, in-flight set, and
  visited set
- Schedule failed URLs for retry with exponential backoff
- Enforce per-host pacing and in-flight limits
- Knows nothing about:
	- fetching
	- parsing
	- robots evaluation (it only consults the injected crawl-delay resolver)
	- storage

It is a data structure + policy module, not a pipeline executor.

Locking: one mutex per structure, acquired in fixed order
main → retry → queued → visited → lastVisit → inFlight.
*/

type Frontier struct {
	mainMu sync.Mutex
	main   *priorityQueue

	retryMu      sync.Mutex
	retry        *priorityQueue
	totalRetries int

	queuedMu sync.Mutex
	queued   Set[string]

	visitedMu sync.Mutex
	visited   Set[string]

	lastVisitMu sync.Mutex
	lastVisit   map[string]time.Time

	inFlightMu   sync.Mutex
	inFlight     Set[string]
	inFlightHost map[string]int

	crawlDelayFn       CrawlDelayFunc
	onCompleted        func(url string)
	perHostMaxInFlight int
	maxRetries         int

	rngMu sync.Mutex
	rng   *rand.Rand

	seqMu sync.Mutex
	seq   uint64

	clock func() time.Time
}

type Options struct {
	// CrawlDelay resolves the politeness delay per host; nil disables
	// pacing
	CrawlDelay CrawlDelayFunc
	// OnCompleted is the optional persistence hook invoked by
	// MarkCompleted; nil disables it
	OnCompleted func(url string)
	// PerHostMaxInFlight caps concurrent in-flight URLs per host
	PerHostMaxInFlight int
	// MaxRetries is the retry budget per URL
	MaxRetries int
	// RandomSeed drives retry jitter
	RandomSeed int64
}

func NewFrontier(opts Options) *Frontier {
	perHost := opts.PerHostMaxInFlight
	if perHost < 1 {
		perHost = 1
	}
	seed := opts.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Frontier{
		main:               newPriorityQueue(),
		retry:              newPriorityQueue(),
		queued:             NewSet[string](),
		visited:            NewSet[string](),
		lastVisit:          make(map[string]time.Time),
		inFlight:           NewSet[string](),
		inFlightHost:       make(map[string]int),
		crawlDelayFn:       opts.CrawlDelay,
		onCompleted:        opts.OnCompleted,
		perHostMaxInFlight: perHost,
		maxRetries:         opts.MaxRetries,
		rng:                rand.New(rand.NewSource(seed)),
		clock:              time.Now,
	}
}

func (f *Frontier) nextSeq() uint64 {
	f.seqMu.Lock()
	defer f.seqMu.Unlock()
	f.seq++
	return f.seq
}

// Add normalizes and enqueues a URL. Invalid URLs are discarded; visited
// URLs are skipped unless force; URLs already queued or in flight are
// skipped. Returns true when the URL entered the main queue.
func (f *Frontier) Add(rawURL string, force bool, priority Priority, depth int) bool {
	normalized, err := urlutil.Normalize(rawURL, nil)
	if err != nil {
		return false
	}
	key := normalized.String()
	if !urlutil.IsValid(key) {
		return false
	}

	if !force && f.IsVisited(key) {
		return false
	}

	f.queuedMu.Lock()
	if f.queued.Contains(key) {
		f.queuedMu.Unlock()
		return false
	}
	f.queued.Add(key)
	f.queuedMu.Unlock()

	f.inFlightMu.Lock()
	inFlight := f.inFlight.Contains(key)
	f.inFlightMu.Unlock()
	if inFlight {
		f.queuedMu.Lock()
		f.queued.Remove(key)
		f.queuedMu.Unlock()
		return false
	}

	if force {
		f.visitedMu.Lock()
		f.visited.Remove(key)
		f.visitedMu.Unlock()
	}

	entry := &QueuedURL{
		URL:      key,
		Depth:    depth,
		Priority: priority,
		ReadyAt:  f.clock(),
		seq:      f.nextSeq(),
	}

	f.mainMu.Lock()
	f.main.push(entry)
	f.mainMu.Unlock()

	return true
}

// ScheduleRetry moves a failed URL into the retry queue with the given
// delay. Terminal kinds and exhausted retry budgets are rejected; the
// caller records those as terminal results. Returns true when the retry
// was scheduled.
func (f *Frontier) ScheduleRetry(
	rawURL string,
	depth int,
	retryCount int,
	lastError string,
	kind failure.FailureKind,
	delay time.Duration,
) bool {
	if !kind.Retryable() {
		return false
	}
	if retryCount >= f.maxRetries {
		return false
	}

	entry := &QueuedURL{
		URL:         rawURL,
		Depth:       depth,
		Priority:    PriorityRetry,
		RetryCount:  retryCount + 1,
		ReadyAt:     f.clock().Add(delay),
		LastError:   lastError,
		LastFailure: kind,
		seq:         f.nextSeq(),
	}

	// displace any stale copy still sitting in the main queue
	f.mainMu.Lock()
	f.main.remove(rawURL)
	f.mainMu.Unlock()

	f.retryMu.Lock()
	f.retry.push(entry)
	f.totalRetries++
	f.retryMu.Unlock()

	f.queuedMu.Lock()
	f.queued.Add(rawURL)
	f.queuedMu.Unlock()

	f.releaseInFlight(rawURL)

	return true
}

// RetryDelay computes the backoff before attempt retryCount+1:
// min(base * 2^retryCount, cap) plus jitter of at most 30% of the delay.
func (f *Frontier) RetryDelay(retryCount int, base time.Duration, cap time.Duration) time.Duration {
	delay := base << uint(retryCount)
	if delay > cap || delay <= 0 {
		delay = cap
	}

	maxJitter := int64(float64(delay) * retryJitterFraction)
	if maxJitter <= 0 {
		return delay
	}

	f.rngMu.Lock()
	jitter := time.Duration(f.rng.Int63n(maxJitter))
	f.rngMu.Unlock()

	return delay + jitter
}

// Next pops the best ready URL, marks it in flight, and returns it.
// Returns false when nothing is ready: both queues empty, every entry
// still waiting on ReadyAt, or the candidate's host paced out.
func (f *Frontier) Next() (QueuedURL, bool) {
	now := f.clock()

	f.mainMu.Lock()
	defer f.mainMu.Unlock()
	f.retryMu.Lock()
	defer f.retryMu.Unlock()

	candidate, source := f.pickCandidate(now)
	if candidate == nil {
		return QueuedURL{}, false
	}

	host := urlutil.Host(candidate.URL)
	if !f.hostReady(host, now) {
		return QueuedURL{}, false
	}

	switch source {
	case f.main:
		f.main.remove(candidate.URL)
	case f.retry:
		f.retry.remove(candidate.URL)
	}

	f.queuedMu.Lock()
	f.queued.Remove(candidate.URL)
	f.queuedMu.Unlock()

	f.inFlightMu.Lock()
	f.inFlight.Add(candidate.URL)
	f.inFlightHost[host]++
	f.inFlightMu.Unlock()

	return *candidate, true
}

// pickCandidate merges the two queue heads: among ready entries the
// higher priority wins, ties go to the earlier ReadyAt, then FIFO.
// Caller holds mainMu and retryMu.
func (f *Frontier) pickCandidate(now time.Time) (*QueuedURL, *priorityQueue) {
	mainTop, hasMain := f.main.peek()
	retryTop, hasRetry := f.retry.peek()

	mainReady := hasMain && !mainTop.ReadyAt.After(now)
	retryReady := hasRetry && !retryTop.ReadyAt.After(now)

	switch {
	case mainReady && retryReady:
		if retryTop.Priority > mainTop.Priority {
			return retryTop, f.retry
		}
		if mainTop.Priority > retryTop.Priority {
			return mainTop, f.main
		}
		if retryTop.ReadyAt.Before(mainTop.ReadyAt) {
			return retryTop, f.retry
		}
		if mainTop.ReadyAt.Before(retryTop.ReadyAt) {
			return mainTop, f.main
		}
		if retryTop.seq < mainTop.seq {
			return retryTop, f.retry
		}
		return mainTop, f.main
	case retryReady:
		return retryTop, f.retry
	case mainReady:
		return mainTop, f.main
	default:
		return nil, nil
	}
}

// hostReady enforces pacing and the per-host in-flight cap.
func (f *Frontier) hostReady(host string, now time.Time) bool {
	f.inFlightMu.Lock()
	inFlight := f.inFlightHost[host]
	f.inFlightMu.Unlock()
	if inFlight >= f.perHostMaxInFlight {
		return false
	}

	if f.crawlDelayFn == nil {
		return true
	}

	f.lastVisitMu.Lock()
	last, seen := f.lastVisit[host]
	f.lastVisitMu.Unlock()
	if !seen {
		return true
	}

	return now.Sub(last) >= f.crawlDelayFn(host)
}

// NextReadyAt reports when the earliest queued entry becomes eligible,
// so idle workers can sleep instead of spinning. ok is false when both
// queues are empty.
func (f *Frontier) NextReadyAt() (time.Time, bool) {
	f.mainMu.Lock()
	mainTop, hasMain := f.main.peek()
	var mainAt time.Time
	if hasMain {
		mainAt = mainTop.ReadyAt
	}
	f.mainMu.Unlock()

	f.retryMu.Lock()
	retryTop, hasRetry := f.retry.peek()
	var retryAt time.Time
	if hasRetry {
		retryAt = retryTop.ReadyAt
	}
	f.retryMu.Unlock()

	switch {
	case hasMain && hasRetry:
		if mainAt.Before(retryAt) {
			return mainAt, true
		}
		return retryAt, true
	case hasMain:
		return mainAt, true
	case hasRetry:
		return retryAt, true
	default:
		return time.Time{}, false
	}
}

// MarkVisited records a successfully processed URL and stamps its host's
// last-visit time for pacing.
func (f *Frontier) MarkVisited(rawURL string) {
	f.visitedMu.Lock()
	f.visited.Add(rawURL)
	f.visitedMu.Unlock()

	f.lastVisitMu.Lock()
	f.lastVisit[urlutil.Host(rawURL)] = f.clock()
	f.lastVisitMu.Unlock()

	f.releaseInFlight(rawURL)
}

// MarkCompleted notifies the optional persistence hook that a URL's
// processing finished end to end, including the sink handoff.
func (f *Frontier) MarkCompleted(rawURL string) {
	if f.onCompleted != nil {
		f.onCompleted(rawURL)
	}
}

// MarkTerminal records a URL whose failure is final. It joins the visited
// set so it is not rediscovered; Add(force=true) can resurrect it.
func (f *Frontier) MarkTerminal(rawURL string) {
	f.visitedMu.Lock()
	f.visited.Add(rawURL)
	f.visitedMu.Unlock()

	f.releaseInFlight(rawURL)
}

func (f *Frontier) releaseInFlight(rawURL string) {
	host := urlutil.Host(rawURL)

	f.inFlightMu.Lock()
	if f.inFlight.Contains(rawURL) {
		f.inFlight.Remove(rawURL)
		if f.inFlightHost[host] > 0 {
			f.inFlightHost[host]--
		}
		if f.inFlightHost[host] == 0 {
			delete(f.inFlightHost, host)
		}
	}
	f.inFlightMu.Unlock()
}

func (f *Frontier) IsVisited(rawURL string) bool {
	f.visitedMu.Lock()
	defer f.visitedMu.Unlock()
	return f.visited.Contains(rawURL)
}

// LastVisit returns the last recorded visit time for a host.
func (f *Frontier) LastVisit(host string) (time.Time, bool) {
	f.lastVisitMu.Lock()
	defer f.lastVisitMu.Unlock()
	t, ok := f.lastVisit[host]
	return t, ok
}

// IsEmpty reports whether both queues are drained. In-flight URLs do not
// count; use Idle to know the crawl is finished.
func (f *Frontier) IsEmpty() bool {
	f.mainMu.Lock()
	mainSize := f.main.size()
	f.mainMu.Unlock()

	f.retryMu.Lock()
	retrySize := f.retry.size()
	f.retryMu.Unlock()

	return mainSize == 0 && retrySize == 0
}

// Idle reports whether the frontier has neither queued nor in-flight
// work. A session is complete when the frontier stays idle for one
// polling interval.
func (f *Frontier) Idle() bool {
	if !f.IsEmpty() {
		return false
	}
	f.inFlightMu.Lock()
	defer f.inFlightMu.Unlock()
	return f.inFlight.Size() == 0
}

func (f *Frontier) Size() int {
	f.mainMu.Lock()
	mainSize := f.main.size()
	f.mainMu.Unlock()

	f.retryMu.Lock()
	retrySize := f.retry.size()
	f.retryMu.Unlock()

	return mainSize + retrySize
}

func (f *Frontier) VisitedCount() int {
	f.visitedMu.Lock()
	defer f.visitedMu.Unlock()
	return f.visited.Size()
}

func (f *Frontier) InFlightCount() int {
	f.inFlightMu.Lock()
	defer f.inFlightMu.Unlock()
	return f.inFlight.Size()
}

// RetryStats summarizes retry queue state for status reporting.
func (f *Frontier) RetryStats() RetryStats {
	now := f.clock()

	f.retryMu.Lock()
	defer f.retryMu.Unlock()

	stats := RetryStats{TotalRetries: f.totalRetries}
	for _, entry := range f.retry.entries() {
		if entry.ReadyAt.After(now) {
			stats.Pending++
		} else {
			stats.Ready++
		}
		if stats.NextRetryAt.IsZero() || entry.ReadyAt.Before(stats.NextRetryAt) {
			stats.NextRetryAt = entry.ReadyAt
		}
	}
	return stats
}

// Snapshot captures the frontier state in the persisted layout.
func (f *Frontier) Snapshot(sessionID string) SnapshotState {
	f.mainMu.Lock()
	queued := f.main.entries()
	f.mainMu.Unlock()

	f.retryMu.Lock()
	retries := f.retry.entries()
	f.retryMu.Unlock()

	f.visitedMu.Lock()
	visited := make([]string, 0, f.visited.Size())
	for url := range f.visited {
		visited = append(visited, url)
	}
	f.visitedMu.Unlock()

	f.lastVisitMu.Lock()
	lastVisit := make(map[string]time.Time, len(f.lastVisit))
	for host, t := range f.lastVisit {
		lastVisit[host] = t
	}
	f.lastVisitMu.Unlock()

	return SnapshotState{
		SessionID: sessionID,
		Queued:    queued,
		Retry:     retries,
		Visited:   visited,
		LastVisit: lastVisit,
	}
}

// SetClockForTest replaces the frontier's time source. Test helper only.
func (f *Frontier) SetClockForTest(clock func() time.Time) {
	f.clock = clock
}

// Reset clears every structure. Only safe while no worker holds a URL.
func (f *Frontier) Reset() {
	f.mainMu.Lock()
	f.main = newPriorityQueue()
	f.mainMu.Unlock()

	f.retryMu.Lock()
	f.retry = newPriorityQueue()
	f.totalRetries = 0
	f.retryMu.Unlock()

	f.queuedMu.Lock()
	f.queued.Clear()
	f.queuedMu.Unlock()

	f.visitedMu.Lock()
	f.visited.Clear()
	f.visitedMu.Unlock()

	f.lastVisitMu.Lock()
	f.lastVisit = make(map[string]time.Time)
	f.lastVisitMu.Unlock()

	f.inFlightMu.Lock()
	f.inFlight.Clear()
	f.inFlightHost = make(map[string]int)
	f.inFlightMu.Unlock()
}
