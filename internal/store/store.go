// Package store persists factory state as one JSON document per key,
// behind a small repository abstraction. Orchestration logic never touches
// the filesystem directly, so the layout could later move to an embedded
// key-value store without changes above this package.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned when a key has no stored document.
var ErrNotFound = errors.New("not found")

// Repository stores one JSON document per key.
type Repository interface {
	Load(key string, v any) error
	Save(key string, v any) error
	Delete(key string) error
	Keys() ([]string, error)
}

// fileRepository keeps each document as <dir>/<key>.json.
type fileRepository struct {
	dir string
}

// NewFileRepository creates dir if needed and returns a Repository over it.
func NewFileRepository(dir string) (Repository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &fileRepository{dir: dir}, nil
}

func (r *fileRepository) path(key string) string {
	return filepath.Join(r.dir, key+".json")
}

func (r *fileRepository) Load(key string, v any) error {
	data, err := os.ReadFile(r.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// Save writes atomically: temp file in the same directory, then rename.
func (r *fileRepository) Save(key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(r.dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing %s: %w", key, err)
	}
	return nil
}

func (r *fileRepository) Delete(key string) error {
	err := os.Remove(r.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (r *fileRepository) Keys() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("listing store: %w", err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(keys)
	return keys, nil
}

// Store aggregates the factory's persisted state: the pending work queue,
// built and skipped archives, the fail tracker, and daily stats.
type Store struct {
	Pending Repository
	Built   Repository
	Skipped Repository
	meta    Repository // failures + stats documents

	now func() time.Time
}

// Open initializes all stores under dataDir.
func Open(dataDir string) (*Store, error) {
	pending, err := NewFileRepository(filepath.Join(dataDir, "ideas"))
	if err != nil {
		return nil, err
	}
	built, err := NewFileRepository(filepath.Join(dataDir, "built"))
	if err != nil {
		return nil, err
	}
	skipped, err := NewFileRepository(filepath.Join(dataDir, "skipped"))
	if err != nil {
		return nil, err
	}
	meta, err := NewFileRepository(dataDir)
	if err != nil {
		return nil, err
	}
	return &Store{
		Pending: pending,
		Built:   built,
		Skipped: skipped,
		meta:    meta,
		now:     time.Now,
	}, nil
}
