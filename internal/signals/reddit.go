package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mvpforge/internal/types"
)

const (
	defaultTokenURL   = "https://www.reddit.com/api/v1/access_token"
	defaultAuthedBase = "https://oauth.reddit.com"
	defaultPublicBase = "https://www.reddit.com"
	permalinkBase     = "https://www.reddit.com"

	userAgent      = "mvpforge/1.0 (idea discovery)"
	maxExcerptLen  = 400
	tokenHeadroom  = time.Minute
	publicInterval = 2 * time.Second
)

// ChannelClient lists posts from named community channels. With API
// credentials it uses the authenticated endpoint; without them it falls
// back to the public JSON listing, which enforces a much stricter rate
// limit and therefore gets paced between requests.
type ChannelClient struct {
	clientID     string
	clientSecret string
	client       *http.Client
	limiter      *rate.Limiter

	// Overridable for tests.
	tokenURL   string
	authedBase string
	publicBase string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewChannelClient creates a channel client, reading credentials from the
// named environment variables. Missing credentials are not an error: the
// client degrades to the unauthenticated path.
func NewChannelClient(clientIDEnv, clientSecretEnv string) *ChannelClient {
	return &ChannelClient{
		clientID:     os.Getenv(clientIDEnv),
		clientSecret: os.Getenv(clientSecretEnv),
		client:       &http.Client{Timeout: 30 * time.Second},
		limiter:      rate.NewLimiter(rate.Every(publicInterval), 1),
		tokenURL:     defaultTokenURL,
		authedBase:   defaultAuthedBase,
		publicBase:   defaultPublicBase,
	}
}

func (c *ChannelClient) authenticated() bool {
	return c.clientID != "" && c.clientSecret != ""
}

// Listing fetches up to pageSize hot posts from one channel.
func (c *ChannelClient) Listing(ctx context.Context, channel string, pageSize int) ([]types.Signal, error) {
	base := c.publicBase
	var bearer string

	if c.authenticated() {
		token, err := c.accessToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("authenticating: %w", err)
		}
		base = c.authedBase
		bearer = token
	} else {
		// Public endpoint: pace requests to stay under the implicit limit.
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	listURL := fmt.Sprintf("%s/r/%s/hot.json?limit=%d&raw_json=1", base, url.PathEscape(channel), pageSize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing %s: HTTP %d", channel, resp.StatusCode)
	}

	var listing struct {
		Data struct {
			Children []struct {
				Data struct {
					Title       string  `json:"title"`
					SelfText    string  `json:"selftext"`
					Score       int     `json:"score"`
					NumComments int     `json:"num_comments"`
					Permalink   string  `json:"permalink"`
					CreatedUTC  float64 `json:"created_utc"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decoding listing: %w", err)
	}

	var signals []types.Signal
	for _, child := range listing.Data.Children {
		post := child.Data
		if strings.TrimSpace(post.Title) == "" {
			continue
		}
		signals = append(signals, types.Signal{
			Channel:    channel,
			Title:      strings.TrimSpace(post.Title),
			Excerpt:    truncate(strings.TrimSpace(post.SelfText), maxExcerptLen),
			Engagement: post.Score,
			Comments:   post.NumComments,
			Permalink:  permalinkBase + post.Permalink,
			Created:    time.Unix(int64(post.CreatedUTC), 0).UTC(),
		})
	}
	return signals, nil
}

// accessToken returns a cached bearer token, refreshing via the
// client-credentials grant when the cached one is absent or near expiry.
func (c *ChannelClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-tokenHeadroom)) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint: HTTP %d", resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decoding token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no token")
	}

	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.token, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
