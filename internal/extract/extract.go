// Package extract turns raw, possibly malformed model output into typed
// records. Extraction is a fixed ordered list of named strategies; the
// first one that yields a non-empty, shape-conforming collection wins.
// Extraction never fails on malformed input; it only returns fewer or
// zero records.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"

	"mvpforge/internal/types"
)

// Precompiled patterns; compiling per call is measurably slower and these
// run on every model response.
var (
	fencedBlockRegex   = regexp.MustCompile("(?s)```(?:json|javascript|js|ts)?\\s*\\n?(.*?)```")
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	unquotedKeyRegex   = regexp.MustCompile(`([{,]\s*)([A-Za-z_$][A-Za-z0-9_$]*)\s*:`)
	singleQuoteRegex   = regexp.MustCompile(`'([^'\\]*)'`)
	fileMarkerRegex    = regexp.MustCompile(`"path"\s*:\s*"((?:[^"\\]|\\.)*)"\s*,\s*"content"\s*:\s*"`)
	ideaMarkerRegex    = regexp.MustCompile(`"title"\s*:\s*"((?:[^"\\]|\\.)*)"\s*,\s*"description"\s*:\s*"`)
)

// IdeaRecord is one idea descriptor as the model emits it during discovery.
type IdeaRecord struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Problem     string   `json:"problem"`
	TargetUser  string   `json:"target_user"`
	Features    []string `json:"features"`
	Category    string   `json:"type"`
	Complexity  string   `json:"complexity"`
	Score       float64  `json:"viability"`
}

// Files extracts a generated file bundle from raw model output.
//
// Strategy order: direct parse, fenced code blocks, string-aware array
// scan (longest wins), and finally marker-based reconstruction which can
// recover partial bundles from a response truncated mid-stream.
func Files(text string) []types.BundleFile {
	conform := func(f types.BundleFile) bool { return f.Path != "" }

	if recs, ok := directArray[types.BundleFile](text, conform); ok {
		return recs
	}
	if recs, ok := fencedArray[types.BundleFile](text, conform); ok {
		return recs
	}
	if recs, ok := scannedArray[types.BundleFile](text, conform); ok {
		return recs
	}
	var files []types.BundleFile
	for _, pair := range reconstructPairs(text, fileMarkerRegex) {
		files = append(files, types.BundleFile{Path: pair[0], Content: pair[1]})
	}
	return files
}

// Ideas extracts an array of idea descriptors from raw model output.
func Ideas(text string) []IdeaRecord {
	conform := func(r IdeaRecord) bool { return r.Title != "" && r.Description != "" }

	if recs, ok := directArray[IdeaRecord](text, conform); ok {
		return recs
	}
	if recs, ok := fencedArray[IdeaRecord](text, conform); ok {
		return recs
	}
	if recs, ok := scannedArray[IdeaRecord](text, conform); ok {
		return recs
	}
	var ideas []IdeaRecord
	for _, pair := range reconstructPairs(text, ideaMarkerRegex) {
		ideas = append(ideas, IdeaRecord{Title: pair[0], Description: pair[1]})
	}
	return ideas
}

// Object extracts a single JSON object, applying heuristic repairs for
// object targets: unquoted keys, single-quoted strings, an unterminated
// trailing string, and missing closing braces/brackets. Returns nil when
// nothing parseable remains.
func Object(text string) map[string]any {
	candidates := []string{strings.TrimSpace(text)}
	for _, block := range fencedBlocks(text) {
		candidates = append(candidates, strings.TrimSpace(block))
	}
	if start := strings.IndexByte(text, '{'); start >= 0 {
		if end, ok := matchDepth(text, start, '{', '}'); ok {
			candidates = append(candidates, text[start:end+1])
		} else {
			// Truncated object: repair whatever is left.
			candidates = append(candidates, text[start:])
		}
	}

	for _, cand := range candidates {
		if !strings.HasPrefix(cand, "{") {
			continue
		}
		for _, repaired := range []string{cand, repairObject(cand)} {
			var obj map[string]any
			if err := json.Unmarshal([]byte(normalizeCommas(repaired)), &obj); err == nil && len(obj) > 0 {
				return obj
			}
		}
	}
	return nil
}

// --- array strategies ---

// directArray parses text that already looks like a complete array.
func directArray[T any](text string, conform func(T) bool) ([]T, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, false
	}
	return decodeArray[T](trimmed, conform)
}

// fencedArray parses the contents of markdown code fences.
func fencedArray[T any](text string, conform func(T) bool) ([]T, bool) {
	for _, block := range fencedBlocks(text) {
		block = strings.TrimSpace(block)
		if !strings.HasPrefix(block, "[") {
			continue
		}
		if recs, ok := decodeArray[T](block, conform); ok {
			return recs, true
		}
	}
	return nil, false
}

// scannedArray locates every candidate record-array start (an opening
// bracket followed, ignoring whitespace, by an opening brace), matches its
// closing bracket with string-aware depth counting, and keeps the longest
// successfully parsed conforming array.
func scannedArray[T any](text string, conform func(T) bool) ([]T, bool) {
	var best []T
	pos := 0
	for pos < len(text) {
		start := strings.IndexByte(text[pos:], '[')
		if start < 0 {
			break
		}
		start += pos
		pos = start + 1

		if next := nextNonSpace(text, start+1); next < 0 || text[next] != '{' {
			continue
		}

		end, ok := matchDepth(text, start, '[', ']')
		if !ok {
			continue
		}
		if recs, ok := decodeArray[T](text[start:end+1], conform); ok && len(recs) > len(best) {
			best = recs
		}
	}
	return best, len(best) > 0
}

// reconstructPairs recovers (first-field, second-field) string pairs from a
// truncated response by locating field markers and walking the following
// quoted content manually, honoring backslash escapes.
func reconstructPairs(text string, marker *regexp.Regexp) [][2]string {
	var pairs [][2]string
	for _, m := range marker.FindAllStringSubmatchIndex(text, -1) {
		rawFirst := text[m[2]:m[3]]
		first, ok := decodeJSONString(rawFirst)
		if !ok {
			continue
		}

		contentStart := m[1]
		contentEnd := -1
		escaped := false
		for i := contentStart; i < len(text); i++ {
			ch := text[i]
			if escaped {
				escaped = false
				continue
			}
			if ch == '\\' {
				escaped = true
				continue
			}
			if ch == '"' {
				// The field only ends where the record does.
				if next := nextNonSpace(text, i+1); next < 0 || text[next] == '}' || text[next] == ',' {
					contentEnd = i
					break
				}
			}
		}
		if contentEnd < 0 {
			continue
		}
		second, ok := decodeJSONString(text[contentStart:contentEnd])
		if !ok {
			continue
		}
		pairs = append(pairs, [2]string{first, second})
	}
	return pairs
}

// --- helpers ---

func decodeArray[T any](text string, conform func(T) bool) ([]T, bool) {
	var recs []T
	if err := json.Unmarshal([]byte(normalizeCommas(text)), &recs); err != nil {
		return nil, false
	}
	if len(recs) == 0 {
		return nil, false
	}
	for _, r := range recs {
		if !conform(r) {
			return nil, false
		}
	}
	return recs, true
}

func fencedBlocks(text string) []string {
	var blocks []string
	for _, m := range fencedBlockRegex.FindAllStringSubmatch(text, -1) {
		blocks = append(blocks, m[1])
	}
	return blocks
}

func normalizeCommas(text string) string {
	return trailingCommaRegex.ReplaceAllString(text, "$1")
}

// matchDepth finds the index of the close matching text[start] (which must
// be open), counting depth while skipping quoted strings and escapes.
func matchDepth(text string, start int, open, close byte) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return -1, false
}

func nextNonSpace(text string, from int) int {
	for i := from; i < len(text); i++ {
		if !unicode.IsSpace(rune(text[i])) {
			return i
		}
	}
	return -1
}

func decodeJSONString(raw string) (string, bool) {
	var s string
	if err := json.Unmarshal([]byte(`"`+raw+`"`), &s); err != nil {
		return "", false
	}
	return s, true
}

// repairObject applies the object-target repairs in order.
func repairObject(text string) string {
	text = unquotedKeyRegex.ReplaceAllString(text, `$1"$2":`)
	text = singleQuoteRegex.ReplaceAllString(text, `"$1"`)
	text = closeUnterminatedString(text)
	text = appendMissingClosers(text)
	return text
}

// closeUnterminatedString appends a closing quote when an odd number of
// unescaped quotes indicates a trailing string was cut off.
func closeUnterminatedString(text string) string {
	count := 0
	escaped := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if ch == '"' {
			count++
		}
	}
	if count%2 == 1 {
		return text + `"`
	}
	return text
}

// appendMissingClosers balances braces and brackets by closing whatever
// remains open, innermost first.
func appendMissingClosers(text string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == ch {
				stack = stack[:len(stack)-1]
			}
		}
	}
	var b strings.Builder
	b.WriteString(text)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}
