package fetcher

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

/*
SPA detection

A page is treated as a single-page application when its static HTML is a
client-rendered shell: a known framework mount point, or framework
bootstrap code inside a script.

False positives are expensive (every one costs a headless render), so the
detector only trusts structural evidence:
- mount points are matched as elements, never as text
- bootstrap calls are matched inside <script> contents only, so prose
  mentioning "ReactDOM.render" does not trigger
- Alpine.js attributes (x-data, x-show, @click) are not SPA markers;
  Alpine enhances server-rendered pages
*/

// vueDirectives are the attribute prefixes that mark a Vue-controlled
// mount point.
var vueDirectives = []string{"v-if", "v-for", "v-bind", "v-on", "v-model", "v-show"}

// scriptBootstrapMarkers identify framework entry points inside script
// bodies.
var scriptBootstrapMarkers = []string{
	"ReactDOM.render",
	"ReactDOM.createRoot",
	"new Vue(",
	"platformBrowserDynamic",
	"platformBrowser",
}

// IsSpaPage reports whether the HTML is an SPA shell that needs headless
// rendering to produce its content. Unparseable input is never an SPA.
func IsSpaPage(htmlContent string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return false
	}

	// React / Next.js mount points
	if doc.Find("div#root").Length() > 0 {
		return true
	}
	if doc.Find("div#__next").Length() > 0 {
		return true
	}
	if doc.Find(`script#__NEXT_DATA__`).Length() > 0 {
		return true
	}

	// Vue mount point: #app alone is not enough, the subtree must carry
	// Vue directives or template interpolation
	if app := doc.Find("div#app"); app.Length() > 0 {
		if hasVueDirectives(app) {
			return true
		}
	}

	// AngularJS / Angular markers
	if doc.Find("body[ng-app], [ng-app], [ng-controller]").Length() > 0 {
		return true
	}

	// Framework bootstraps in script bodies
	var bootstrapped bool
	doc.Find("script").EachWithBreak(func(i int, s *goquery.Selection) bool {
		script := s.Text()
		for _, marker := range scriptBootstrapMarkers {
			if strings.Contains(script, marker) {
				bootstrapped = true
				return false
			}
		}
		return true
	})

	return bootstrapped
}

// hasVueDirectives scans the selection's subtree for Vue directive
// attributes or {{ }} interpolation.
func hasVueDirectives(sel *goquery.Selection) bool {
	var found bool

	// directives on the mount point itself count too
	for _, node := range sel.Nodes {
		for _, attr := range node.Attr {
			for _, directive := range vueDirectives {
				if attr.Key == directive || strings.HasPrefix(attr.Key, directive+":") {
					return true
				}
			}
		}
	}

	sel.Find("*").EachWithBreak(func(i int, s *goquery.Selection) bool {
		for _, node := range s.Nodes {
			for _, attr := range node.Attr {
				for _, directive := range vueDirectives {
					if attr.Key == directive || strings.HasPrefix(attr.Key, directive+":") {
						found = true
						return false
					}
				}
			}
		}
		return true
	})
	if found {
		return true
	}

	html, err := sel.Html()
	if err != nil {
		return false
	}
	return strings.Contains(html, "{{") && strings.Contains(html, "}}")
}
