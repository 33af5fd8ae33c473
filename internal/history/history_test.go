package history

import (
	"path/filepath"
	"testing"
	"time"

	"mvpforge/internal/types"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("failed to open ledger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	db.Close()
}

func TestRecordAndListCycles(t *testing.T) {
	db := openTestDB(t)

	started := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	if err := db.RecordCycle(KindDiscovery, started, true, "4 ideas queued"); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordCycle(KindBuild, started.Add(time.Minute), false, "quality gate miss"); err != nil {
		t.Fatal(err)
	}

	cycles, err := db.RecentCycles(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(cycles) != 2 {
		t.Fatalf("expected 2 cycles, got %d", len(cycles))
	}
	// Most recent first.
	if cycles[0].Kind != KindBuild || cycles[0].OK {
		t.Errorf("unexpected first cycle: %+v", cycles[0])
	}
	if cycles[1].Kind != KindDiscovery || !cycles[1].OK {
		t.Errorf("unexpected second cycle: %+v", cycles[1])
	}
	if !cycles[1].Started.Equal(started) {
		t.Errorf("unexpected start time: %v", cycles[1].Started)
	}
}

func TestSeenSignals(t *testing.T) {
	db := openTestDB(t)

	signals := []types.Signal{
		{Channel: "smallbusiness", Title: "A", Permalink: "https://example.com/a"},
		{Channel: "startups", Title: "B", Permalink: "https://example.com/b"},
	}
	if err := db.MarkSignalsSeen(signals); err != nil {
		t.Fatal(err)
	}
	// Marking again is not an error.
	if err := db.MarkSignalsSeen(signals); err != nil {
		t.Fatal(err)
	}

	mixed := append(signals, types.Signal{Title: "C", Permalink: "https://example.com/c"})
	fresh, err := db.FilterUnseen(mixed)
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 1 || fresh[0].Title != "C" {
		t.Errorf("expected only the unseen signal, got %+v", fresh)
	}
}

func TestRecordBuilds(t *testing.T) {
	db := openTestDB(t)

	idea := types.Idea{
		ID:           "abc",
		Title:        "InvoiceForge",
		Category:     types.CategoryWeb,
		QualityScore: 80,
		RepoURL:      "https://github.com/me/invoice-forge",
		LiveURL:      "https://invoice-forge.vercel.app",
	}
	if err := db.RecordBuild(idea); err != nil {
		t.Fatal(err)
	}

	builds, err := db.RecentBuilds(5)
	if err != nil {
		t.Fatal(err)
	}
	if len(builds) != 1 {
		t.Fatalf("expected 1 build, got %d", len(builds))
	}
	if builds[0].Title != "InvoiceForge" || builds[0].QualityScore != 80 {
		t.Errorf("unexpected build event: %+v", builds[0])
	}
	if builds[0].LiveURL != idea.LiveURL {
		t.Errorf("unexpected live URL: %s", builds[0].LiveURL)
	}
}
