package publish

import (
	"context"
	"os"
	"strings"

	"mvpforge/internal/types"
)

// Vercel deploys a web workspace with the vercel CLI.
type Vercel struct {
	token string
	run   runner
}

// NewVercel reads the deploy token from the named env var.
func NewVercel(tokenEnv string) *Vercel {
	return &Vercel{token: os.Getenv(tokenEnv), run: execRunner}
}

func (v *Vercel) Name() string { return "vercel" }

// Publish runs a production deploy and returns the live URL the CLI prints.
func (v *Vercel) Publish(ctx context.Context, slug, dir string) types.PublishResult {
	if v.token == "" {
		return failure(v.Name(), "no token configured")
	}

	out, err := v.run(ctx, dir, "vercel", "--token", v.token, "--yes", "--prod", "--name", slug)
	if err != nil {
		return failure(v.Name(), firstLine(out))
	}

	url := lastURL(out)
	if url == "" {
		return failure(v.Name(), "deploy produced no URL")
	}
	return types.PublishResult{Collaborator: v.Name(), OK: true, URL: url}
}

// Expo publishes a mobile workspace as an OTA update with the eas CLI.
type Expo struct {
	token string
	run   runner
}

// NewExpo reads the Expo access token from the named env var.
func NewExpo(tokenEnv string) *Expo {
	return &Expo{token: os.Getenv(tokenEnv), run: execRunner}
}

func (e *Expo) Name() string { return "expo" }

func (e *Expo) Publish(ctx context.Context, slug, dir string) types.PublishResult {
	if e.token == "" {
		return failure(e.Name(), "no token configured")
	}

	out, err := e.run(ctx, dir, "npx", "eas", "update", "--auto", "--non-interactive")
	if err != nil {
		return failure(e.Name(), firstLine(out))
	}

	// The CLI prints a dashboard URL for the update when it succeeds.
	return types.PublishResult{Collaborator: e.Name(), OK: true, URL: lastURL(out)}
}

// lastURL returns the last https URL in the output, the convention both
// deploy CLIs follow for the final artifact link.
func lastURL(out string) string {
	var url string
	for _, field := range strings.Fields(out) {
		if strings.HasPrefix(field, "https://") {
			url = field
		}
	}
	return url
}
