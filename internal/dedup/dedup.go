// Package dedup decides whether a candidate idea duplicates work that is
// already queued, built, skipped, or deployed. Comparison is deliberately
// coarse: slugs catch renames and suffixes, keyword Jaccard catches
// rephrasings. Thresholds are empirically chosen and config-tunable.
package dedup

import (
	"fmt"
	"strings"
	"unicode"
)

// stopWords are dropped before keyword comparison: articles, connectives,
// and generic product qualifiers that would otherwise inflate similarity.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "for": true, "and": true, "or": true,
	"of": true, "to": true, "in": true, "on": true, "with": true, "your": true,
	"that": true, "this": true, "is": true, "it": true, "app": true,
	"tool": true, "ai": true, "smart": true, "simple": true, "easy": true,
	"pro": true, "plus": true, "my": true, "get": true, "use": true,
}

// Thresholds configures the similarity cutoffs for IsDuplicate.
type Thresholds struct {
	Title       float64 // title keyword similarity alone (default 0.6)
	LooseTitle  float64 // weaker title similarity, paired with description (default 0.3)
	Description float64 // description similarity required with LooseTitle (default 0.5)
}

// DefaultThresholds returns the tuned defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{Title: 0.6, LooseTitle: 0.3, Description: 0.5}
}

// Entry is one existing unit the candidate is compared against.
type Entry struct {
	Title       string
	Description string
}

// Match describes why a candidate was judged a duplicate.
type Match struct {
	Reason  string
	Against string // title of the matched existing unit
}

// Slug normalizes a name for coarse comparison: lowercase, non-alphanumeric
// runs collapsed to single hyphens, leading/trailing hyphens trimmed.
func Slug(name string) string {
	var b strings.Builder
	prevSep := true
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			prevSep = false
		} else if !prevSep {
			b.WriteByte('-')
			prevSep = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// Keywords lowercases, strips punctuation, splits on whitespace, and drops
// stop words.
func Keywords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, field := range strings.Fields(strings.ToLower(text)) {
		word := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if word == "" || stopWords[word] {
			continue
		}
		words[word] = true
	}
	return words
}

// Similarity is the Jaccard index of two keyword sets. Two empty sets are
// defined as identical (1).
func Similarity(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

// IsDuplicate reports whether the candidate duplicates any existing entry,
// with the rule that fired and the matched title. Rules, in order:
// equal slugs; slug containment when the shorter slug has length >= 5;
// title keyword similarity >= Title; title similarity >= LooseTitle
// combined with description similarity >= Description.
func IsDuplicate(title, description string, existing []Entry, th Thresholds) (bool, *Match) {
	candSlug := Slug(title)
	candTitleKw := Keywords(title)
	candDescKw := Keywords(description)

	candCompact := strings.ReplaceAll(candSlug, "-", "")

	for _, e := range existing {
		slug := Slug(e.Title)

		if candSlug != "" && candSlug == slug {
			return true, &Match{Reason: "identical slug", Against: e.Title}
		}

		// Containment ignores separators so "invoice-forge" is caught
		// inside "invoiceforge-pro".
		compact := strings.ReplaceAll(slug, "-", "")
		shorter := candCompact
		if len(compact) < len(shorter) {
			shorter = compact
		}
		if len(shorter) >= 5 && (strings.Contains(candCompact, compact) || strings.Contains(compact, candCompact)) {
			return true, &Match{Reason: "slug containment", Against: e.Title}
		}

		titleSim := Similarity(candTitleKw, Keywords(e.Title))
		if titleSim >= th.Title {
			return true, &Match{
				Reason:  fmt.Sprintf("title similarity %.2f", titleSim),
				Against: e.Title,
			}
		}

		if titleSim >= th.LooseTitle {
			descSim := Similarity(candDescKw, Keywords(e.Description))
			if descSim >= th.Description {
				return true, &Match{
					Reason:  fmt.Sprintf("title %.2f + description %.2f", titleSim, descSim),
					Against: e.Title,
				}
			}
		}
	}
	return false, nil
}
