package robots

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ParseRobotsTxt parses robots.txt content into a structured format.
// Unparseable lines are skipped; the parser never fails.
func ParseRobotsTxt(content, hostname string) RobotsResponse {
	response := RobotsResponse{
		Host:       hostname,
		Sitemaps:   []string{},
		UserAgents: []UserAgentGroup{},
	}

	scanner := bufio.NewScanner(strings.NewReader(content))

	var currentGroup *UserAgentGroup
	var globalGroup UserAgentGroup // rules appearing before any User-agent line
	hasGlobalGroup := false

	for scanner.Scan() {
		line := scanner.Text()

		// Remove comments (everything after #)
		if idx := strings.Index(line, "#"); idx != -1 {
			line = line[:idx]
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		colonIdx := strings.Index(line, ":")
		if colonIdx == -1 {
			continue // Invalid line, skip
		}

		field := strings.ToLower(strings.TrimSpace(line[:colonIdx]))
		value := strings.TrimSpace(line[colonIdx+1:])

		switch field {
		case "user-agent":
			if currentGroup == nil {
				currentGroup = &UserAgentGroup{
					UserAgents: []string{value},
					Allows:     []PathRule{},
					Disallows:  []PathRule{},
				}
			} else if len(currentGroup.Allows) == 0 && len(currentGroup.Disallows) == 0 && currentGroup.CrawlDelay == nil {
				// consecutive User-agent lines share the same rules
				currentGroup.UserAgents = append(currentGroup.UserAgents, value)
			} else {
				response.UserAgents = append(response.UserAgents, *currentGroup)
				currentGroup = &UserAgentGroup{
					UserAgents: []string{value},
					Allows:     []PathRule{},
					Disallows:  []PathRule{},
				}
			}

		case "allow":
			if value == "" {
				continue
			}
			if currentGroup != nil {
				currentGroup.Allows = append(currentGroup.Allows, PathRule{Path: value})
			} else {
				globalGroup.Allows = append(globalGroup.Allows, PathRule{Path: value})
				hasGlobalGroup = true
			}

		case "disallow":
			if value == "" {
				continue
			}
			if currentGroup != nil {
				currentGroup.Disallows = append(currentGroup.Disallows, PathRule{Path: value})
			} else {
				globalGroup.Disallows = append(globalGroup.Disallows, PathRule{Path: value})
				hasGlobalGroup = true
			}

		case "crawl-delay":
			if currentGroup != nil {
				// seconds in the file, stored as a duration
				var seconds float64
				if _, err := fmt.Sscanf(value, "%f", &seconds); err == nil && seconds >= 0 {
					delay := time.Duration(seconds * float64(time.Second))
					currentGroup.CrawlDelay = &delay
				}
			}

		case "sitemap":
			if value != "" {
				response.Sitemaps = append(response.Sitemaps, value)
			}
		}
	}

	if currentGroup != nil {
		if len(currentGroup.Allows) > 0 || len(currentGroup.Disallows) > 0 || currentGroup.CrawlDelay != nil || len(currentGroup.UserAgents) > 0 {
			response.UserAgents = append(response.UserAgents, *currentGroup)
		}
	}

	if hasGlobalGroup && (len(globalGroup.Allows) > 0 || len(globalGroup.Disallows) > 0) {
		globalGroup.UserAgents = []string{"*"}
		response.UserAgents = append([]UserAgentGroup{globalGroup}, response.UserAgents...)
	}

	return response
}

// compilePattern converts a robots.txt glob pattern into an anchored
// regular expression: "*" matches any run, "?" one character, and a
// trailing "$" pins the match to the end of the path.
func compilePattern(glob string) (*regexp.Regexp, error) {
	anchorEnd := strings.HasSuffix(glob, "$")
	if anchorEnd {
		glob = strings.TrimSuffix(glob, "$")
	}

	var b strings.Builder
	b.WriteString("^")
	for _, ch := range glob {
		switch ch {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	if anchorEnd {
		b.WriteString("$")
	}

	return regexp.Compile(b.String())
}

// compileResponse turns a parsed RobotsResponse into the evaluated
// hostRules form. Patterns that fail to compile are dropped, matching the
// line-skipping behavior of the parser.
func compileResponse(response RobotsResponse, fetchedAt time.Time) hostRules {
	rules := hostRules{
		host:        response.Host,
		lastUpdated: fetchedAt,
	}

	for _, group := range response.UserAgents {
		compiled := agentRules{agents: group.UserAgents}

		for _, allow := range group.Allows {
			if pattern, err := compilePattern(normalizePath(allow.Path)); err == nil {
				compiled.allowRules = append(compiled.allowRules, compiledRule{
					raw:     allow.Path,
					pattern: pattern,
				})
			}
		}
		for _, disallow := range group.Disallows {
			if pattern, err := compilePattern(normalizePath(disallow.Path)); err == nil {
				compiled.disallowRules = append(compiled.disallowRules, compiledRule{
					raw:     disallow.Path,
					pattern: pattern,
				})
			}
		}
		if group.CrawlDelay != nil {
			delay := *group.CrawlDelay
			compiled.crawlDelay = &delay
		}

		rules.groups = append(rules.groups, compiled)
	}

	// resolve the "*" group after the slice has settled
	for i := range rules.groups {
		for _, agent := range rules.groups[i].agents {
			if agent == "*" {
				rules.defaultGroup = &rules.groups[i]
				break
			}
		}
		if rules.defaultGroup != nil {
			break
		}
	}

	return rules
}

// normalizePath ensures the pattern starts with "/".
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
