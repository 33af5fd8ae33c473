package store

import (
	"errors"

	"mvpforge/internal/types"
)

const failuresKey = "failures"

func (s *Store) failures() (map[string]types.FailEntry, error) {
	fails := make(map[string]types.FailEntry)
	err := s.meta.Load(failuresKey, &fails)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return fails, nil
}

// RecordFailure increments the failure count for one idea, storing the
// latest error summary. Returns the new count.
func (s *Store) RecordFailure(id string, cause error) (int, error) {
	fails, err := s.failures()
	if err != nil {
		return 0, err
	}
	entry := fails[id]
	entry.Count++
	entry.LastAt = s.now().UTC()
	if cause != nil {
		entry.LastError = cause.Error()
	}
	fails[id] = entry
	if err := s.meta.Save(failuresKey, fails); err != nil {
		return 0, err
	}
	return entry.Count, nil
}

// ClearFailure removes the tracking entry for one idea. Used on success and
// on permanent quarantine.
func (s *Store) ClearFailure(id string) error {
	fails, err := s.failures()
	if err != nil {
		return err
	}
	if _, ok := fails[id]; !ok {
		return nil
	}
	delete(fails, id)
	return s.meta.Save(failuresKey, fails)
}

// FailCount returns the current failure count for one idea.
func (s *Store) FailCount(id string) (int, error) {
	fails, err := s.failures()
	if err != nil {
		return 0, err
	}
	return fails[id].Count, nil
}
