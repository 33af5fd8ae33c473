package signals

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mvpforge/internal/config"
	"mvpforge/internal/types"
)

const listingBody = `{
	"data": {
		"children": [
			{"data": {"title": "I hate tracking invoices by hand", "selftext": "Every month I waste hours on this", "score": 140, "num_comments": 32, "permalink": "/r/smallbusiness/comments/abc/invoices", "created_utc": 1756200000}},
			{"data": {"title": "Random meme", "selftext": "", "score": 900, "num_comments": 10, "permalink": "/r/smallbusiness/comments/def/meme", "created_utc": 1756200001}},
			{"data": {"title": "Need a tool for invoice reminders", "selftext": "", "score": 3, "num_comments": 1, "permalink": "/r/smallbusiness/comments/ghi/low", "created_utc": 1756200002}}
		]
	}
}`

func testChannelClient(baseURL string) *ChannelClient {
	c := NewChannelClient("MVPFORGE_TEST_ABSENT_ID", "MVPFORGE_TEST_ABSENT_SECRET")
	c.publicBase = baseURL
	c.authedBase = baseURL
	return c
}

func TestListingMapsPosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/r/smallbusiness/hot.json" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("expected a User-Agent header")
		}
		fmt.Fprint(w, listingBody)
	}))
	defer srv.Close()

	c := testChannelClient(srv.URL)
	signals, err := c.Listing(context.Background(), "smallbusiness", 25)
	if err != nil {
		t.Fatalf("listing failed: %v", err)
	}
	if len(signals) != 3 {
		t.Fatalf("expected 3 signals, got %d", len(signals))
	}

	first := signals[0]
	if first.Channel != "smallbusiness" {
		t.Errorf("unexpected channel: %s", first.Channel)
	}
	if first.Engagement != 140 || first.Comments != 32 {
		t.Errorf("unexpected engagement: %+v", first)
	}
	if first.Permalink != "https://www.reddit.com/r/smallbusiness/comments/abc/invoices" {
		t.Errorf("unexpected permalink: %s", first.Permalink)
	}
	if first.Created.IsZero() {
		t.Error("expected created timestamp")
	}
}

func TestListingHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testChannelClient(srv.URL)
	if _, err := c.Listing(context.Background(), "smallbusiness", 25); err == nil {
		t.Fatal("expected error on HTTP 429")
	}
}

func TestAccessTokenIsCached(t *testing.T) {
	tokenCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			t.Errorf("expected basic auth credentials, got %q/%q", user, pass)
		}
		fmt.Fprint(w, `{"access_token": "tok-1", "expires_in": 3600}`)
	})
	mux.HandleFunc("/r/startups/hot.json", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("unexpected authorization header: %q", got)
		}
		fmt.Fprint(w, listingBody)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testChannelClient(srv.URL)
	c.clientID = "id"
	c.clientSecret = "secret"
	c.tokenURL = srv.URL + "/api/v1/access_token"

	for i := 0; i < 3; i++ {
		if _, err := c.Listing(context.Background(), "startups", 25); err != nil {
			t.Fatalf("listing %d failed: %v", i, err)
		}
	}
	if tokenCalls != 1 {
		t.Errorf("expected 1 token fetch, got %d", tokenCalls)
	}
}

func TestGatherFiltersAndSorts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingBody)
	}))
	defer srv.Close()

	src := New(config.Signals{
		Channels:      []string{"smallbusiness"},
		Keywords:      []string{"invoice"},
		PageSize:      25,
		MinEngagement: 10,
	})
	src.channels = testChannelClient(srv.URL)

	got := src.Gather(context.Background())

	// "Random meme" fails the keyword match, the low-score post fails
	// min engagement; only the invoice complaint survives.
	if len(got) != 1 {
		t.Fatalf("expected 1 signal, got %d: %+v", len(got), got)
	}
	if got[0].Title != "I hate tracking invoices by hand" {
		t.Errorf("unexpected signal: %+v", got[0])
	}
	if len(got[0].Keywords) != 1 || got[0].Keywords[0] != "invoice" {
		t.Errorf("unexpected matched keywords: %v", got[0].Keywords)
	}
}

func TestGatherSurvivesDeadChannel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := New(config.Signals{Channels: []string{"broken"}, PageSize: 25})
	src.channels = testChannelClient(srv.URL)

	if got := src.Gather(context.Background()); len(got) != 0 {
		t.Errorf("expected no signals from a dead channel, got %d", len(got))
	}
}

func TestFeedParseAll(t *testing.T) {
	pubDate := time.Now().Add(-24 * time.Hour).UTC().Format(time.RFC1123Z)
	rss := `<?xml version="1.0"?>
<rss version="2.0"><channel>
	<title>Builder Weekly</title>
	<item>
		<title>Freelancers struggle with invoice chasing</title>
		<link>https://example.com/chasing</link>
		<description>&lt;p&gt;A survey of 200 freelancers&lt;/p&gt;</description>
		<pubDate>` + pubDate + `</pubDate>
	</item>
</channel></rss>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rss)
	}))
	defer srv.Close()

	fs := NewFeedSource([]config.Feed{{URL: srv.URL, Name: "builderweekly"}})
	got := fs.ParseAll(context.Background(), 7)
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[0].Channel != "feed:builderweekly" {
		t.Errorf("unexpected channel: %s", got[0].Channel)
	}
	if got[0].Excerpt != "A survey of 200 freelancers" {
		t.Errorf("expected stripped HTML excerpt, got %q", got[0].Excerpt)
	}
	if got[0].Permalink != "https://example.com/chasing" {
		t.Errorf("unexpected permalink: %s", got[0].Permalink)
	}
}

func TestMatchKeywords(t *testing.T) {
	sig := types.Signal{Title: "Invoice tracker needed", Excerpt: "for freelance designers"}
	got := matchKeywords(sig, []string{"invoice", "freelance", "crypto"})
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %v", got)
	}
	if got[0] != "invoice" || got[1] != "freelance" {
		t.Errorf("unexpected matches: %v", got)
	}
	if matchKeywords(sig, nil) != nil {
		t.Error("expected nil for empty keyword list")
	}
}
