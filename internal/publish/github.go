package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"mvpforge/internal/types"
)

const githubAPIBase = "https://api.github.com"

// GitHub creates a repository through the REST API and pushes the
// workspace to it with the git CLI.
type GitHub struct {
	token   string
	owner   string
	client  *http.Client
	apiBase string
	run     runner
}

// NewGitHub reads the token from the named env var. An empty token makes
// every publish a no-op failure result rather than an error.
func NewGitHub(tokenEnv, owner string) *GitHub {
	return &GitHub{
		token:   os.Getenv(tokenEnv),
		owner:   owner,
		client:  &http.Client{Timeout: 30 * time.Second},
		apiBase: githubAPIBase,
		run:     execRunner,
	}
}

func (g *GitHub) Name() string { return "github" }

// Publish creates (or reuses) the repo named slug and force-pushes dir to
// its main branch.
func (g *GitHub) Publish(ctx context.Context, slug, dir string) types.PublishResult {
	if g.token == "" {
		return failure(g.Name(), "no token configured")
	}

	repoURL, err := g.ensureRepo(ctx, slug)
	if err != nil {
		return failure(g.Name(), err.Error())
	}

	remote := fmt.Sprintf("https://x-access-token:%s@github.com/%s/%s.git", g.token, g.owner, slug)
	steps := [][]string{
		{"git", "init"},
		{"git", "add", "-A"},
		{"git", "-c", "user.name=mvpforge", "-c", "user.email=mvpforge@localhost", "commit", "-m", "Initial commit"},
		{"git", "branch", "-M", "main"},
		{"git", "remote", "add", "origin", remote},
		{"git", "push", "-u", "origin", "main", "--force"},
	}
	for _, step := range steps {
		if out, err := g.run(ctx, dir, step[0], step[1:]...); err != nil {
			log.Printf("git %s failed: %v", step[1], err)
			return failure(g.Name(), fmt.Sprintf("git %s: %s", step[1], firstLine(out)))
		}
	}

	return types.PublishResult{Collaborator: g.Name(), OK: true, URL: repoURL}
}

// ensureRepo creates the repository, treating "already exists" as success.
func (g *GitHub) ensureRepo(ctx context.Context, slug string) (string, error) {
	body, _ := json.Marshal(map[string]any{
		"name":        slug,
		"private":     false,
		"description": "Generated MVP",
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiBase+"/user/repos", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var created struct {
			HTMLURL string `json:"html_url"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			return "", err
		}
		return created.HTMLURL, nil
	case http.StatusUnprocessableEntity:
		// Name taken, likely by an earlier attempt for the same idea.
		return fmt.Sprintf("https://github.com/%s/%s", g.owner, slug), nil
	default:
		return "", fmt.Errorf("create repo: HTTP %d", resp.StatusCode)
	}
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
