// Package logging provides the append-only daemon log with size-based
// rotation. Everything still goes through the standard log package; this
// only supplies its destination.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Rotator is an io.Writer that appends to a file and rotates it when it
// grows past maxSize. The previous file is kept as <name>.1.
type Rotator struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	size    int64
	f       *os.File
}

// NewRotator opens (or creates) the log file at path. maxSizeMB <= 0
// defaults to 10.
func NewRotator(path string, maxSizeMB int) (*Rotator, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	return &Rotator{
		path:    path,
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		size:    info.Size(),
		f:       f,
	}, nil
}

// Write appends p, rotating first if the file would exceed the size cap.
func (r *Rotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size+int64(len(p)) > r.maxSize {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := r.f.Write(p)
	r.size += int64(n)
	return n, err
}

// Close closes the underlying file.
func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}

func (r *Rotator) rotate() error {
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("closing log for rotation: %w", err)
	}
	if err := os.Rename(r.path, r.path+".1"); err != nil {
		return fmt.Errorf("rotating log: %w", err)
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reopening log: %w", err)
	}
	r.f = f
	r.size = 0
	return nil
}

// Setup points the standard logger at the rotating file, teeing to stderr
// when tee is true (foreground runs). Returns the rotator for Close.
func Setup(path string, maxSizeMB int, tee bool) (*Rotator, error) {
	rot, err := NewRotator(path, maxSizeMB)
	if err != nil {
		return nil, err
	}
	if tee {
		log.SetOutput(io.MultiWriter(os.Stderr, rot))
	} else {
		log.SetOutput(rot)
	}
	return rot, nil
}
