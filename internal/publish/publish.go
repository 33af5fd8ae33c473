// Package publish hands finished bundles to external collaborators:
// source hosting, deploy CLIs, and operator notifications. Everything
// here is best effort; a failed publish never fails the build cycle.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"mvpforge/internal/types"
)

// Publisher pushes a bundle workspace somewhere external.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, slug, dir string) types.PublishResult
}

// runner executes an external command in dir and returns combined output.
// Injectable so collaborator tests never shell out.
type runner func(ctx context.Context, dir, name string, args ...string) (string, error)

func execRunner(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

// WriteBundle materializes a bundle under dataDir/<category>/<slug>/ and
// returns the project directory. Paths are kept relative to the project;
// anything trying to escape it is rejected.
func WriteBundle(dataDir, category, slug string, bundle types.Bundle) (string, error) {
	dir := filepath.Join(dataDir, workspaceFor(category), slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating workspace: %w", err)
	}

	for _, file := range bundle.Files {
		rel := filepath.Clean(file.Path)
		if rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
			return "", fmt.Errorf("refusing bundle path %q", file.Path)
		}
		full := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return "", err
		}
		if err := os.WriteFile(full, []byte(file.Content), 0o644); err != nil {
			return "", fmt.Errorf("writing %s: %w", rel, err)
		}
	}
	return dir, nil
}

func workspaceFor(category string) string {
	switch category {
	case types.CategoryExtension:
		return "extension"
	case types.CategoryMobile:
		return "mobile"
	default:
		return "web"
	}
}

func failure(name, detail string) types.PublishResult {
	return types.PublishResult{Collaborator: name, OK: false, Detail: detail}
}
