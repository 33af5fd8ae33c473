package signals

import (
	"context"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"mvpforge/internal/config"
	"mvpforge/internal/types"
)

const maxPerFeed = 15

// FeedSource pulls supplemental signals from RSS/Atom feeds.
type FeedSource struct {
	feeds  []config.Feed
	parser *gofeed.Parser
}

// NewFeedSource creates a feed source over the configured feeds.
func NewFeedSource(feeds []config.Feed) *FeedSource {
	return &FeedSource{feeds: feeds, parser: gofeed.NewParser()}
}

// ParseAll parses all configured feeds and returns entries published within
// daysBack, mapped into signals. Failed feeds are logged and skipped.
func (fs *FeedSource) ParseAll(ctx context.Context, daysBack int) []types.Signal {
	cutoff := time.Now().AddDate(0, 0, -daysBack)
	var all []types.Signal

	for _, fc := range fs.feeds {
		name := fc.Name
		if name == "" {
			name = feedSourceName(fc.URL)
		}

		feed, err := fs.parser.ParseURLWithContext(fc.URL, ctx)
		if err != nil {
			log.Printf("Failed to parse feed %s: %v", fc.URL, err)
			continue
		}

		count := 0
		for _, item := range feed.Items {
			if count >= maxPerFeed {
				break
			}
			sig := feedItemSignal(item, name)
			if sig == nil {
				continue
			}
			if !sig.Created.IsZero() && sig.Created.Before(cutoff) {
				continue
			}
			all = append(all, *sig)
			count++
		}
		log.Printf("Parsed %d entries from feed %s", count, name)
	}

	return all
}

func feedItemSignal(item *gofeed.Item, source string) *types.Signal {
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	title := strings.TrimSpace(item.Title)
	if link == "" || title == "" {
		return nil
	}

	var created time.Time
	if item.PublishedParsed != nil {
		created = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		created = *item.UpdatedParsed
	}

	body := item.Content
	if body == "" {
		body = item.Description
	}

	return &types.Signal{
		Channel:   "feed:" + source,
		Title:     title,
		Excerpt:   truncate(stripHTML(body), maxExcerptLen),
		Permalink: link,
		Created:   created,
	}
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	// Decode common entities
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")

	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func feedSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return host
}
