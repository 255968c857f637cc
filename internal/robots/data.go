package robots

import (
	"net/url"
	"regexp"
	"time"
)

// Permission modeling

// compiledRule is a single allow/disallow pattern after glob compilation.
// Glob semantics: "*" matches any run of characters, "?" matches one
// character, a trailing "$" anchors the end of the path.
type compiledRule struct {
	raw     string
	pattern *regexp.Regexp
}

func (r compiledRule) Raw() string {
	return r.raw
}

// matches evaluates the rule against a request path (including query).
func (r compiledRule) matches(path string) bool {
	if r.pattern == nil {
		return false
	}
	return r.pattern.MatchString(path)
}

// agentRules is the evaluated rule group for one set of user agents.
type agentRules struct {
	agents        []string
	allowRules    []compiledRule
	disallowRules []compiledRule
	crawlDelay    *time.Duration
}

// hostRules is the cached, compiled rule set for one host.
//
// Invariants:
// - defaultGroup is the "*" group when present
// - groups are kept in file order; agent selection picks the most
//   specific match, not the first
type hostRules struct {
	host         string
	groups       []agentRules
	defaultGroup *agentRules
	lastUpdated  time.Time
	// allowAll marks hosts whose robots.txt was absent or unreachable
	allowAll bool
}

type DecisionReason string

const (
	AllowedByRobots     DecisionReason = "allowed_by_robots"
	DisallowedByRobots  DecisionReason = "disallowed_by_robots"
	NoRulesForHost      DecisionReason = "no_rules_for_host"
	UserAgentNotMatched DecisionReason = "user_agent_not_matched"
	NoMatchingRules     DecisionReason = "no_matching_rules"
)

// Decision is the outcome of evaluating one URL against the cached rules.
type Decision struct {
	Url url.URL

	Allowed bool

	// Why this decision was made (for logging/debugging)
	Reason DecisionReason

	// Optional delay override (robots crawl-delay)
	CrawlDelay *time.Duration
}

// DefaultCrawlDelay applies when a host's robots.txt specifies none.
const DefaultCrawlDelay = 1000 * time.Millisecond
