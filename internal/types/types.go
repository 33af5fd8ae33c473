// Package types holds the data model shared across the factory:
// ideas, signals, generated bundles, and persisted bookkeeping records.
package types

import "time"

// Idea categories. The build cycle picks the generator by category.
const (
	CategoryWeb       = "web"
	CategorySaaS      = "saas"
	CategoryExtension = "extension"
	CategoryMobile    = "mobile"
)

// Idea is one candidate product awaiting conversion into a generated bundle.
// Created by the discovery cycle, removed from the pending store by the
// build cycle on a terminal outcome. Annotation fields are only written at
// archival time; everything else is immutable after discovery.
type Idea struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Problem     string    `json:"problem,omitempty"`
	TargetUser  string    `json:"target_user,omitempty"`
	Features    []string  `json:"features"`
	Category    string    `json:"category"`
	Complexity  string    `json:"complexity,omitempty"`
	Score       float64   `json:"score"`
	NeedsAI     bool      `json:"needs_ai,omitempty"`
	SignalRefs  []string  `json:"signal_refs,omitempty"`
	Discovered  time.Time `json:"discovered"`

	// Archival annotations.
	QualityScore int       `json:"quality_score,omitempty"`
	BuiltAt      time.Time `json:"built_at,omitzero"`
	SkippedAt    time.Time `json:"skipped_at,omitzero"`
	SkipReason   string    `json:"skip_reason,omitempty"`
	FailCount    int       `json:"fail_count,omitempty"`
	RepoURL      string    `json:"repo_url,omitempty"`
	LiveURL      string    `json:"live_url,omitempty"`
}

// Signal is a read-only community-post summary used as generation context.
// Signals are never queued as work themselves.
type Signal struct {
	Channel    string    `json:"channel"`
	Title      string    `json:"title"`
	Excerpt    string    `json:"excerpt"`
	Engagement int       `json:"engagement"`
	Comments   int       `json:"comments"`
	Permalink  string    `json:"permalink"`
	Created    time.Time `json:"created"`
	Keywords   []string  `json:"keywords,omitempty"`
}

// BundleFile is one generated file: a relative path and its content.
type BundleFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Bundle is the ordered collection of files produced by one generation step.
type Bundle struct {
	Files []BundleFile
}

// Empty reports whether the bundle contains no files.
func (b Bundle) Empty() bool { return len(b.Files) == 0 }

// Joined concatenates all file contents, used by heuristic scoring.
func (b Bundle) Joined() string {
	var n int
	for _, f := range b.Files {
		n += len(f.Content) + 1
	}
	buf := make([]byte, 0, n)
	for _, f := range b.Files {
		buf = append(buf, f.Content...)
		buf = append(buf, '\n')
	}
	return string(buf)
}

// DailyStats tracks per-day operation counts and lifetime totals.
// Today-scoped counters reset exactly when Date differs from the current
// date; lifetime totals only ever grow.
type DailyStats struct {
	Date            string `json:"date"` // YYYY-MM-DD
	IdeasToday      int    `json:"ideas_today"`
	BuildsToday     int    `json:"builds_today"`
	TotalIdeas      int    `json:"total_ideas"`
	TotalBuilds     int    `json:"total_builds"`
	TotalSkipped    int    `json:"total_skipped"`
	TotalDuplicates int    `json:"total_duplicates"`
}

// FailEntry records build failures for one pending idea.
type FailEntry struct {
	Count     int       `json:"count"`
	LastError string    `json:"last_error"`
	LastAt    time.Time `json:"last_at"`
}

// PublishResult is the outcome of one best-effort publish collaborator.
// A failed publish never fails the build; the flag and URL travel together
// so "failed" and "no URL assigned" stay distinguishable.
type PublishResult struct {
	Collaborator string `json:"collaborator"`
	OK           bool   `json:"ok"`
	URL          string `json:"url,omitempty"`
	Detail       string `json:"detail,omitempty"`
}
