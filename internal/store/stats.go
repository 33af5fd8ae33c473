package store

import (
	"errors"

	"mvpforge/internal/types"
)

const statsKey = "stats"

// Stats loads the daily counters. When the stored date differs from today,
// today-scoped counters come back reset to zero while lifetime totals carry
// forward unchanged. The reset is persisted lazily by the next increment.
func (s *Store) Stats() (types.DailyStats, error) {
	var stats types.DailyStats
	err := s.meta.Load(statsKey, &stats)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return stats, err
	}

	today := s.now().Format("2006-01-02")
	if stats.Date != today {
		stats.Date = today
		stats.IdeasToday = 0
		stats.BuildsToday = 0
	}
	return stats, nil
}

// AddIdeas bumps today's discovery counter and the lifetime total.
func (s *Store) AddIdeas(n int) error {
	return s.updateStats(func(st *types.DailyStats) {
		st.IdeasToday += n
		st.TotalIdeas += n
	})
}

// AddBuild bumps today's build counter and the lifetime total.
func (s *Store) AddBuild() error {
	return s.updateStats(func(st *types.DailyStats) {
		st.BuildsToday++
		st.TotalBuilds++
	})
}

// AddSkipped bumps the lifetime skipped total.
func (s *Store) AddSkipped(n int) error {
	return s.updateStats(func(st *types.DailyStats) { st.TotalSkipped += n })
}

// AddDuplicates bumps the lifetime duplicate total.
func (s *Store) AddDuplicates(n int) error {
	return s.updateStats(func(st *types.DailyStats) { st.TotalDuplicates += n })
}

func (s *Store) updateStats(apply func(*types.DailyStats)) error {
	stats, err := s.Stats()
	if err != nil {
		return err
	}
	apply(&stats)
	return s.meta.Save(statsKey, stats)
}
