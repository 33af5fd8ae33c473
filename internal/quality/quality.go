// Package quality scores generated bundles before they are shipped.
// Checks are heuristic pattern scans over the bundle text, weighted so
// the total is bounded at 100. A bundle below the pass threshold earns
// one regeneration attempt; a second miss still ships.
package quality

import (
	"fmt"
	"regexp"
	"strings"

	"mvpforge/internal/config"
	"mvpforge/internal/types"
)

// localStorage hits above this count suggest the backend is faked
// client-side instead of implemented.
const maxLocalStorageHits = 6

var (
	serverRouteRegex  = regexp.MustCompile(`(?m)export\s+(async\s+)?function\s+(GET|POST|PUT|PATCH|DELETE)|app\.(get|post|put|delete)\s*\(`)
	asyncLogicRegex   = regexp.MustCompile(`await\s+|\.then\s*\(|JSON\.parse|JSON\.stringify|\bfetch\s*\(`)
	ownEndpointRegex  = regexp.MustCompile(`fetch\s*\(\s*['"` + "`" + `]/api/`)
	errorHandlerRegex = regexp.MustCompile(`try\s*\{|\.catch\s*\(|catch\s*\(|onError|error`)
	loadingRegex      = regexp.MustCompile(`(?i)loading|spinner|skeleton|progress`)
	responsiveRegex   = regexp.MustCompile(`@media|(^|[\s"'])(sm|md|lg|xl):|grid-cols|flex-wrap`)
	eventHandlerRegex = regexp.MustCompile(`addEventListener\s*\(\s*['"](click|submit|input|change)|onClick|onSubmit|onChange`)
	localStorageRegex = regexp.MustCompile(`localStorage\.`)
	stateRegex        = regexp.MustCompile(`useState\s*\(|chrome\.storage|localStorage|let\s+\w+\s*=\s*[\[{]`)
	placeholderRegex  = regexp.MustCompile(`(?i)lorem ipsum|coming soon|your text here|example text`)
)

type check struct {
	name   string
	weight int
	passed func(joined string, b types.Bundle) bool
}

// Gate scores bundles against the configured pass threshold.
type Gate struct {
	passThreshold int
	minFiles      int
}

// NewGate creates a quality gate from config.
func NewGate(cfg config.Quality) *Gate {
	return &Gate{passThreshold: cfg.PassThreshold, minFiles: cfg.MinFiles}
}

// PassThreshold returns the configured minimum passing score.
func (g *Gate) PassThreshold() int {
	return g.passThreshold
}

// Pass reports whether a score clears the gate.
func (g *Gate) Pass(score int) bool {
	return score >= g.passThreshold
}

// Score evaluates a bundle for the given idea category. Returns the
// bounded total and the names of the failed checks, most valuable first.
func (g *Gate) Score(bundle types.Bundle, category string) (int, []string) {
	joined := bundle.Joined()
	checks := g.checksFor(category)

	score := 0
	var issues []string
	for _, c := range checks {
		if c.passed(joined, bundle) {
			score += c.weight
		} else {
			issues = append(issues, c.name)
		}
	}
	return score, issues
}

func (g *Gate) checksFor(category string) []check {
	common := []check{
		{"error handling present", 10, func(j string, _ types.Bundle) bool {
			return errorHandlerRegex.MatchString(j)
		}},
		{"loading or progress feedback", 10, func(j string, _ types.Bundle) bool {
			return loadingRegex.MatchString(j)
		}},
		{"responsive layout markers", 10, func(j string, _ types.Bundle) bool {
			return responsiveRegex.MatchString(j)
		}},
		{fmt.Sprintf("at least %d files", g.minFiles), 10, func(_ string, b types.Bundle) bool {
			return len(b.Files) >= g.minFiles
		}},
		{"no placeholder text", 10, func(j string, _ types.Bundle) bool {
			return !placeholderRegex.MatchString(j)
		}},
	}

	switch category {
	case types.CategoryExtension, types.CategoryMobile:
		// No server side to inspect; weight interactivity instead.
		return append([]check{
			{"interactive event handlers", 20, func(j string, _ types.Bundle) bool {
				return len(eventHandlerRegex.FindAllString(j, -1)) >= 2
			}},
			{"client state management", 15, func(j string, _ types.Bundle) bool {
				return stateRegex.MatchString(j)
			}},
			{"state persistence", 15, func(j string, _ types.Bundle) bool {
				return localStorageRegex.MatchString(j) || strings.Contains(j, "chrome.storage") || strings.Contains(j, "AsyncStorage")
			}},
		}, common...)
	default:
		return append([]check{
			{"server endpoints present", 20, func(j string, b types.Bundle) bool {
				return hasServerEndpoint(b)
			}},
			{"endpoints contain real logic", 10, func(_ string, b types.Bundle) bool {
				return endpointLogic(b)
			}},
			{"client calls own endpoints", 10, func(j string, _ types.Bundle) bool {
				return ownEndpointRegex.MatchString(j)
			}},
			{"backend not faked in localStorage", 10, func(j string, _ types.Bundle) bool {
				return len(localStorageRegex.FindAllString(j, -1)) <= maxLocalStorageHits
			}},
		}, common...)
	}
}

// hasServerEndpoint looks for route files or server route declarations.
func hasServerEndpoint(b types.Bundle) bool {
	for _, f := range b.Files {
		if strings.Contains(f.Path, "/api/") || strings.HasSuffix(f.Path, "route.ts") || strings.HasSuffix(f.Path, "route.js") {
			return true
		}
		if serverRouteRegex.MatchString(f.Content) {
			return true
		}
	}
	return false
}

// endpointLogic requires at least one endpoint file to do real work:
// asynchronous I/O, parsing, or external calls, not a stub response.
func endpointLogic(b types.Bundle) bool {
	for _, f := range b.Files {
		if !strings.Contains(f.Path, "/api/") && !serverRouteRegex.MatchString(f.Content) {
			continue
		}
		if asyncLogicRegex.MatchString(f.Content) {
			return true
		}
	}
	return false
}
