package robots

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rohmanhakim/webcrawler/internal/metadata"
)

/*
Responsibilities

- Cache compiled robots.txt rules per host for the whole process
- Evaluate allow/disallow decisions before a fetch
- Resolve per-host crawl delays
- Load each host's rules exactly once (single-flight)

An absent or unreachable robots.txt means "allow all" with the default
crawl delay. The cache is shared by every session; eviction is explicit
via Clear.
*/

// Policy is the decision surface consumed by sessions.
type Policy interface {
	IsAllowed(u url.URL, userAgent string) Decision
	CrawlDelay(host string, userAgent string) time.Duration
	EnsureLoaded(ctx context.Context, scheme string, host string)
	Load(host string, body string)
	Loaded(host string) bool
	Clear(host string)
}

// CachedPolicy is the process-wide Policy implementation backed by an
// in-memory rule cache and an optional robots.txt fetcher.
type CachedPolicy struct {
	mu    sync.RWMutex
	rules map[string]hostRules

	// inflight guards per-host loading so parsing happens once per host
	inflightMu sync.Mutex
	inflight   map[string]chan struct{}

	fetcher      *Fetcher
	metadataSink metadata.MetadataSink
	clock        func() time.Time
}

func NewCachedPolicy(metadataSink metadata.MetadataSink, fetcher *Fetcher) *CachedPolicy {
	return &CachedPolicy{
		rules:        make(map[string]hostRules),
		inflight:     make(map[string]chan struct{}),
		fetcher:      fetcher,
		metadataSink: metadataSink,
		clock:        time.Now,
	}
}

// Load parses and caches the rules for a host from a raw robots.txt body.
func (p *CachedPolicy) Load(host string, body string) {
	response := ParseRobotsTxt(body, host)
	compiled := compileResponse(response, p.clock())

	p.mu.Lock()
	p.rules[host] = compiled
	p.mu.Unlock()
}

// loadAllowAll caches an allow-all entry for hosts without a usable
// robots.txt.
func (p *CachedPolicy) loadAllowAll(host string) {
	p.mu.Lock()
	p.rules[host] = hostRules{
		host:        host,
		lastUpdated: p.clock(),
		allowAll:    true,
	}
	p.mu.Unlock()
}

func (p *CachedPolicy) Loaded(host string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.rules[host]
	return ok
}

func (p *CachedPolicy) Clear(host string) {
	p.mu.Lock()
	delete(p.rules, host)
	p.mu.Unlock()
}

// EnsureLoaded fetches and caches the host's robots.txt on first sight.
// Concurrent callers for the same host wait for a single fetch. Fetch
// failures degrade to allow-all so a broken robots endpoint never blocks
// a crawl.
func (p *CachedPolicy) EnsureLoaded(ctx context.Context, scheme string, host string) {
	if p.Loaded(host) {
		return
	}

	p.inflightMu.Lock()
	if ch, loading := p.inflight[host]; loading {
		p.inflightMu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
		}
		return
	}
	ch := make(chan struct{})
	p.inflight[host] = ch
	p.inflightMu.Unlock()

	defer func() {
		p.inflightMu.Lock()
		delete(p.inflight, host)
		p.inflightMu.Unlock()
		close(ch)
	}()

	// re-check: another caller may have Load()ed directly while we queued
	if p.Loaded(host) {
		return
	}

	if p.fetcher == nil {
		p.loadAllowAll(host)
		return
	}

	result, fetchErr := p.fetcher.Fetch(ctx, scheme, host)
	if fetchErr != nil {
		if p.metadataSink != nil {
			p.metadataSink.RecordError(
				p.clock(),
				"robots",
				"CachedPolicy.EnsureLoaded",
				mapRobotsErrorToMetadataCause(fetchErr),
				fetchErr.Error(),
				[]metadata.Attribute{
					metadata.NewAttr(metadata.AttrHost, host),
				},
			)
		}
		p.loadAllowAll(host)
		return
	}

	compiled := compileResponse(result.Response, result.FetchedAt)
	p.mu.Lock()
	p.rules[host] = compiled
	p.mu.Unlock()
}

// IsAllowed evaluates a URL against the cached rules for its host.
// Within the selected group: any matching Allow permits, else any matching
// Disallow denies, else the URL is permitted.
func (p *CachedPolicy) IsAllowed(u url.URL, userAgent string) Decision {
	p.mu.RLock()
	rules, ok := p.rules[u.Host]
	p.mu.RUnlock()

	if !ok || rules.allowAll {
		return Decision{Url: u, Allowed: true, Reason: NoRulesForHost}
	}

	group := rules.selectGroup(userAgent)
	if group == nil {
		return Decision{Url: u, Allowed: true, Reason: UserAgentNotMatched}
	}

	path := requestPath(u)

	for _, rule := range group.allowRules {
		if rule.matches(path) {
			return Decision{Url: u, Allowed: true, Reason: AllowedByRobots, CrawlDelay: group.crawlDelay}
		}
	}
	for _, rule := range group.disallowRules {
		if rule.matches(path) {
			return Decision{Url: u, Allowed: false, Reason: DisallowedByRobots, CrawlDelay: group.crawlDelay}
		}
	}

	return Decision{Url: u, Allowed: true, Reason: NoMatchingRules, CrawlDelay: group.crawlDelay}
}

// CrawlDelay resolves the effective delay for a host, falling back to
// DefaultCrawlDelay when robots.txt specifies none.
func (p *CachedPolicy) CrawlDelay(host string, userAgent string) time.Duration {
	p.mu.RLock()
	rules, ok := p.rules[host]
	p.mu.RUnlock()

	if !ok || rules.allowAll {
		return DefaultCrawlDelay
	}

	group := rules.selectGroup(userAgent)
	if group == nil || group.crawlDelay == nil {
		return DefaultCrawlDelay
	}
	return *group.crawlDelay
}

// selectGroup picks the rule group whose user-agent token is a
// case-insensitive substring of the requester, preferring the longest
// (most specific) token, else the "*" default group.
func (r hostRules) selectGroup(userAgent string) *agentRules {
	uaLower := strings.ToLower(userAgent)

	var best *agentRules
	bestLen := 0

	for i := range r.groups {
		for _, agent := range r.groups[i].agents {
			if agent == "*" {
				continue
			}
			agentLower := strings.ToLower(agent)
			if strings.Contains(uaLower, agentLower) && len(agentLower) > bestLen {
				best = &r.groups[i]
				bestLen = len(agentLower)
			}
		}
	}

	if best != nil {
		return best
	}
	return r.defaultGroup
}

// requestPath is the portion of the URL robots patterns match against.
func requestPath(u url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}
