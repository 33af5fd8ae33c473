package signals

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// ExcerptFetcher pulls the readable text of a signal's permalink.
type ExcerptFetcher struct {
	client *http.Client
}

// NewExcerptFetcher creates a fetcher with the given timeout (0 = 15s).
func NewExcerptFetcher(timeout time.Duration) *ExcerptFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &ExcerptFetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Fetch returns the extracted article text of the page, or "" on any
// failure. Short extractions are discarded as boilerplate.
func (f *ExcerptFetcher) Fetch(ctx context.Context, pageURL string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ""
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return ""
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) > 100 {
		return text
	}
	return ""
}
