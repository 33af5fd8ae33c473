package history

import (
	"fmt"
	"time"

	"mvpforge/internal/types"
)

// Cycle is one recorded cycle outcome.
type Cycle struct {
	ID      int64
	Kind    string
	Started time.Time
	OK      bool
	Detail  string
}

// Cycle kinds.
const (
	KindDiscovery = "discovery"
	KindBuild     = "build"
	KindHealth    = "health"
)

// RecordCycle appends one cycle outcome to the ledger.
func (db *DB) RecordCycle(kind string, started time.Time, ok bool, detail string) error {
	_, err := db.conn.Exec(
		"INSERT INTO cycles (kind, started_at, ok, detail) VALUES (?, ?, ?, ?)",
		kind, started.UTC().Format(time.RFC3339), boolInt(ok), detail,
	)
	if err != nil {
		return fmt.Errorf("recording cycle: %w", err)
	}
	return nil
}

// RecentCycles returns the newest cycle outcomes, most recent first.
func (db *DB) RecentCycles(limit int) ([]Cycle, error) {
	rows, err := db.conn.Query(
		"SELECT id, kind, started_at, ok, COALESCE(detail, '') FROM cycles ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying cycles: %w", err)
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		var c Cycle
		var started string
		var ok int
		if err := rows.Scan(&c.ID, &c.Kind, &started, &ok, &c.Detail); err != nil {
			return nil, err
		}
		c.Started, _ = time.Parse(time.RFC3339, started)
		c.OK = ok != 0
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}

// MarkSignalsSeen records signal permalinks so later discovery cycles can
// avoid re-feeding the same posts into prompts.
func (db *DB) MarkSignalsSeen(signals []types.Signal) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	for _, sig := range signals {
		if sig.Permalink == "" {
			continue
		}
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO seen_signals (permalink, channel, title) VALUES (?, ?, ?)",
			sig.Permalink, sig.Channel, sig.Title,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("marking signal seen: %w", err)
		}
	}
	return tx.Commit()
}

// FilterUnseen drops signals whose permalink was already recorded.
func (db *DB) FilterUnseen(signals []types.Signal) ([]types.Signal, error) {
	var fresh []types.Signal
	for _, sig := range signals {
		if sig.Permalink == "" {
			fresh = append(fresh, sig)
			continue
		}
		var count int
		err := db.conn.QueryRow(
			"SELECT COUNT(*) FROM seen_signals WHERE permalink = ?", sig.Permalink,
		).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("checking signal: %w", err)
		}
		if count == 0 {
			fresh = append(fresh, sig)
		}
	}
	return fresh, nil
}

// BuildEvent is one archived build outcome.
type BuildEvent struct {
	IdeaID       string
	Title        string
	Category     string
	QualityScore int
	RepoURL      string
	LiveURL      string
	BuiltAt      time.Time
}

// RecordBuild appends a successful build to the ledger.
func (db *DB) RecordBuild(idea types.Idea) error {
	_, err := db.conn.Exec(
		"INSERT INTO build_events (idea_id, title, category, quality_score, repo_url, live_url) VALUES (?, ?, ?, ?, ?, ?)",
		idea.ID, idea.Title, idea.Category, idea.QualityScore, idea.RepoURL, idea.LiveURL,
	)
	if err != nil {
		return fmt.Errorf("recording build: %w", err)
	}
	return nil
}

// RecentBuilds returns the newest build events, most recent first.
func (db *DB) RecentBuilds(limit int) ([]BuildEvent, error) {
	rows, err := db.conn.Query(`
SELECT idea_id, title, COALESCE(category, ''), quality_score,
       COALESCE(repo_url, ''), COALESCE(live_url, ''), built_at
FROM build_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying builds: %w", err)
	}
	defer rows.Close()

	var events []BuildEvent
	for rows.Next() {
		var e BuildEvent
		var builtAt string
		if err := rows.Scan(&e.IdeaID, &e.Title, &e.Category, &e.QualityScore, &e.RepoURL, &e.LiveURL, &builtAt); err != nil {
			return nil, err
		}
		e.BuiltAt, _ = time.Parse("2006-01-02 15:04:05", builtAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
