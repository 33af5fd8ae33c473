package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Notifier posts operator notifications to a webhook. Disabled when no
// webhook URL is configured.
type Notifier struct {
	url    string
	client *http.Client
}

// NewNotifier reads the webhook URL from the named env var.
func NewNotifier(urlEnv string) *Notifier {
	return &Notifier{
		url:    os.Getenv(urlEnv),
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Notify sends a short text message. Returns nil when disabled.
func (n *Notifier) Notify(ctx context.Context, message string) error {
	if n.url == "" {
		return nil
	}

	body, _ := json.Marshal(map[string]string{"text": message})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: HTTP %d", resp.StatusCode)
	}
	return nil
}
