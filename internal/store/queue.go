package store

import (
	"errors"
	"fmt"
	"log"
	"time"

	"mvpforge/internal/types"
)

// Enqueue persists a new pending idea.
func (s *Store) Enqueue(idea types.Idea) error {
	if idea.ID == "" {
		return errors.New("idea has no id")
	}
	return s.Pending.Save(idea.ID, idea)
}

// PendingIdeas loads every pending idea.
func (s *Store) PendingIdeas() ([]types.Idea, error) {
	return loadAll(s.Pending)
}

// BuiltIdeas loads the built archive.
func (s *Store) BuiltIdeas() ([]types.Idea, error) {
	return loadAll(s.Built)
}

// SkippedIdeas loads the skipped archive.
func (s *Store) SkippedIdeas() ([]types.Idea, error) {
	return loadAll(s.Skipped)
}

// Next returns the pending idea with the highest viability score among
// those whose failure count is below maxFailures; ties break by discovery
// time, then id, so insertion order is stable.
//
// When every pending idea has exhausted its failures, all of them are swept
// into the skipped archive in one pass and nil is returned: one poisoned
// idea, or a systemic upstream outage, must not starve the queue forever.
func (s *Store) Next(maxFailures int) (*types.Idea, error) {
	ideas, err := s.PendingIdeas()
	if err != nil {
		return nil, err
	}
	if len(ideas) == 0 {
		return nil, nil
	}

	fails, err := s.failures()
	if err != nil {
		return nil, err
	}

	var best *types.Idea
	for i := range ideas {
		idea := &ideas[i]
		if fails[idea.ID].Count >= maxFailures {
			continue
		}
		if best == nil || better(idea, best) {
			best = idea
		}
	}
	if best != nil {
		return best, nil
	}

	// Everything pending is at or above the failure cap.
	log.Printf("all %d pending ideas exhausted their failures, sweeping to skipped", len(ideas))
	for _, idea := range ideas {
		entry := fails[idea.ID]
		reason := entry.LastError
		if reason == "" {
			reason = "exceeded failure limit"
		}
		if err := s.ArchiveSkipped(idea, reason, entry.Count); err != nil {
			return nil, fmt.Errorf("sweeping %s: %w", idea.ID, err)
		}
	}
	return nil, nil
}

func better(a, b *types.Idea) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.Discovered.Equal(b.Discovered) {
		return a.Discovered.Before(b.Discovered)
	}
	return a.ID < b.ID
}

// ArchiveBuilt moves a pending idea to the built archive with its archival
// annotations already set, and clears its failure entry.
func (s *Store) ArchiveBuilt(idea types.Idea) error {
	idea.BuiltAt = s.now().UTC()
	if err := s.Built.Save(idea.ID, idea); err != nil {
		return err
	}
	if err := s.Pending.Delete(idea.ID); err != nil {
		return err
	}
	return s.ClearFailure(idea.ID)
}

// ArchiveSkipped moves a pending idea to the permanently-skipped archive,
// annotated with the failure reason and count, and clears its failure entry.
func (s *Store) ArchiveSkipped(idea types.Idea, reason string, failCount int) error {
	idea.SkippedAt = s.now().UTC()
	idea.SkipReason = reason
	idea.FailCount = failCount
	if err := s.Skipped.Save(idea.ID, idea); err != nil {
		return err
	}
	if err := s.Pending.Delete(idea.ID); err != nil {
		return err
	}
	return s.ClearFailure(idea.ID)
}

// Requeue moves a built idea back into the pending queue so it gets rebuilt
// with current prompts. Archival annotations are reset.
func (s *Store) Requeue(id string) (*types.Idea, error) {
	var idea types.Idea
	if err := s.Built.Load(id, &idea); err != nil {
		return nil, err
	}
	idea.BuiltAt = time.Time{}
	idea.QualityScore = 0
	idea.RepoURL = ""
	idea.LiveURL = ""
	if err := s.Enqueue(idea); err != nil {
		return nil, err
	}
	if err := s.Built.Delete(id); err != nil {
		return nil, err
	}
	return &idea, nil
}

func loadAll(repo Repository) ([]types.Idea, error) {
	keys, err := repo.Keys()
	if err != nil {
		return nil, err
	}
	ideas := make([]types.Idea, 0, len(keys))
	for _, key := range keys {
		var idea types.Idea
		if err := repo.Load(key, &idea); err != nil {
			log.Printf("skipping unreadable record %s: %v", key, err)
			continue
		}
		ideas = append(ideas, idea)
	}
	return ideas, nil
}
