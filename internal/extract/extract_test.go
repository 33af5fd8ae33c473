package extract

import (
	"strings"
	"testing"
)

func TestFilesDirectParse(t *testing.T) {
	files := Files(`[{"path":"a.txt","content":"hi"},{"path":"b.txt","content":"yo"}]`)
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].Path != "a.txt" || files[0].Content != "hi" {
		t.Errorf("unexpected first file: %+v", files[0])
	}
}

func TestFilesTrailingCommas(t *testing.T) {
	files := Files(`[{"path":"a.txt","content":"hi",},]`)
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
}

func TestFilesFencedBlock(t *testing.T) {
	text := "Sure! Here's the result:\n```json\n[{\"path\":\"a.txt\",\"content\":\"hi\"}]\n```"
	files := Files(text)
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	if files[0].Path != "a.txt" || files[0].Content != "hi" {
		t.Errorf("unexpected file: %+v", files[0])
	}
}

func TestFilesInterleavedCommentary(t *testing.T) {
	text := `I thought about this for a while. Here is my plan [1] first, then code.

The files are [{"path":"src/app.ts","content":"console.log(\"hello [world]\")"}] and that's it.`
	files := Files(text)
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	if files[0].Content != `console.log("hello [world]")` {
		t.Errorf("unexpected content: %q", files[0].Content)
	}
}

func TestFilesKeepsLongestArray(t *testing.T) {
	text := `[{"path":"only.txt","content":"x"}]
some text
[{"path":"a","content":"1"},{"path":"b","content":"2"}]`
	// Direct parse fails (extra text follows), scan should keep the longer array.
	files := Files("note: " + text)
	if len(files) != 2 {
		t.Fatalf("expected longest array (2 files), got %d", len(files))
	}
}

func TestFilesTruncatedRecovery(t *testing.T) {
	// Response cut off mid-stream after the second file's content opened.
	text := `[{"path":"index.html","content":"<h1>Hi<\/h1>"},{"path":"app.js","content":"const x = \"unfinished`
	files := Files(text)
	if len(files) != 1 {
		t.Fatalf("expected 1 recovered file, got %d", len(files))
	}
	if files[0].Path != "index.html" {
		t.Errorf("expected index.html, got %q", files[0].Path)
	}
	if files[0].Content != "<h1>Hi</h1>" {
		t.Errorf("unescaping failed: %q", files[0].Content)
	}
}

func TestFilesEscapedQuotesInContent(t *testing.T) {
	text := `garbage before [{"path":"a.js","content":"alert(\"hi\\\\\")"}`
	// Unterminated array: scan fails, reconstruction walks the escaped string.
	files := Files(text + `"}`)
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	if !strings.Contains(files[0].Content, `alert("hi`) {
		t.Errorf("unexpected content: %q", files[0].Content)
	}
}

func TestFilesGarbageReturnsEmpty(t *testing.T) {
	if files := Files("no json here at all"); len(files) != 0 {
		t.Errorf("expected no files, got %d", len(files))
	}
	if files := Files(""); len(files) != 0 {
		t.Errorf("expected no files for empty input, got %d", len(files))
	}
}

func TestFilesNonConformingShapeRejected(t *testing.T) {
	// Array of objects without a path field must not be accepted.
	if files := Files(`[{"name":"a","body":"hi"}]`); len(files) != 0 {
		t.Errorf("expected rejection of non-conforming records, got %d", len(files))
	}
}

func TestIdeasFencedBlock(t *testing.T) {
	text := "```json\n[{\"title\":\"Invoice Forge\",\"description\":\"Invoices for freelancers\",\"features\":[\"pdf\"],\"type\":\"web\",\"viability\":8}]\n```"
	ideas := Ideas(text)
	if len(ideas) != 1 {
		t.Fatalf("expected 1 idea, got %d", len(ideas))
	}
	if ideas[0].Title != "Invoice Forge" || ideas[0].Score != 8 {
		t.Errorf("unexpected idea: %+v", ideas[0])
	}
}

func TestIdeasTruncatedRecovery(t *testing.T) {
	text := `[{"title":"Receipt Radar","description":"Scans receipts into CSV"},{"title":"Half`
	ideas := Ideas(text)
	if len(ideas) != 1 {
		t.Fatalf("expected 1 recovered idea, got %d", len(ideas))
	}
	if ideas[0].Title != "Receipt Radar" {
		t.Errorf("unexpected idea: %+v", ideas[0])
	}
}

func TestObjectPlain(t *testing.T) {
	obj := Object(`{"verdict":"pass","score":4}`)
	if obj == nil {
		t.Fatal("expected object")
	}
	if obj["verdict"] != "pass" {
		t.Errorf("unexpected verdict: %v", obj["verdict"])
	}
}

func TestObjectUnquotedKeysAndSingleQuotes(t *testing.T) {
	obj := Object(`{title: 'Ledger Pal', score: 7}`)
	if obj == nil {
		t.Fatal("expected repaired object")
	}
	if obj["title"] != "Ledger Pal" {
		t.Errorf("unexpected title: %v", obj["title"])
	}
}

func TestObjectUnterminatedString(t *testing.T) {
	obj := Object(`{"title": "Cut off mid sent`)
	if obj == nil {
		t.Fatal("expected repaired object")
	}
	if !strings.HasPrefix(obj["title"].(string), "Cut off") {
		t.Errorf("unexpected title: %v", obj["title"])
	}
}

func TestObjectMissingClosers(t *testing.T) {
	obj := Object(`{"a": {"b": [1, 2`)
	if obj == nil {
		t.Fatal("expected repaired object")
	}
	inner, ok := obj["a"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested object, got %T", obj["a"])
	}
	if _, ok := inner["b"]; !ok {
		t.Error("expected nested array to survive repair")
	}
}

func TestObjectGarbage(t *testing.T) {
	if obj := Object("absolutely not json"); obj != nil {
		t.Errorf("expected nil, got %v", obj)
	}
}

func TestAppendMissingClosersBalanced(t *testing.T) {
	in := `{"a": [1, {"b": 2}]}`
	if out := appendMissingClosers(in); out != in {
		t.Errorf("balanced input must be unchanged, got %q", out)
	}
}

func TestCloseUnterminatedStringEvenQuotes(t *testing.T) {
	in := `{"a": "done"}`
	if out := closeUnterminatedString(in); out != in {
		t.Errorf("even quotes must be unchanged, got %q", out)
	}
}
