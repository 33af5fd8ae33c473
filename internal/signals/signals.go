package signals

import (
	"context"
	"log"
	"sort"
	"strings"

	"mvpforge/internal/config"
	"mvpforge/internal/types"
)

const maxSignals = 20

const feedDaysBack = 7

// Source gathers community signals for the discovery prompt. Everything is
// best effort: a dead channel or feed costs log lines, never a cycle.
type Source struct {
	cfg      config.Signals
	channels *ChannelClient
	feeds    *FeedSource
	fetcher  *ExcerptFetcher
}

// New creates a signal source from config.
func New(cfg config.Signals) *Source {
	s := &Source{
		cfg:      cfg,
		channels: NewChannelClient(cfg.ClientIDEnv, cfg.ClientSecretEnv),
	}
	if len(cfg.Feeds) > 0 {
		s.feeds = NewFeedSource(cfg.Feeds)
	}
	if cfg.FetchTopPost {
		s.fetcher = NewExcerptFetcher(0)
	}
	return s
}

// Gather pulls signals from all configured channels and feeds, filters them
// by keyword and engagement, and returns up to maxSignals sorted by
// engagement. Never returns an error: a fully failed gather yields nil.
func (s *Source) Gather(ctx context.Context) []types.Signal {
	var all []types.Signal

	for _, channel := range s.cfg.Channels {
		posts, err := s.channels.Listing(ctx, channel, s.cfg.PageSize)
		if err != nil {
			log.Printf("Signal channel %s unavailable: %v", channel, err)
			continue
		}
		kept := 0
		for _, sig := range posts {
			if sig.Engagement < s.cfg.MinEngagement {
				continue
			}
			matched := matchKeywords(sig, s.cfg.Keywords)
			if len(s.cfg.Keywords) > 0 && len(matched) == 0 {
				continue
			}
			sig.Keywords = matched
			all = append(all, sig)
			kept++
		}
		log.Printf("Channel %s: %d posts, %d kept", channel, len(posts), kept)
	}

	if s.feeds != nil {
		for _, sig := range s.feeds.ParseAll(ctx, feedDaysBack) {
			matched := matchKeywords(sig, s.cfg.Keywords)
			if len(s.cfg.Keywords) > 0 && len(matched) == 0 {
				continue
			}
			sig.Keywords = matched
			all = append(all, sig)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Engagement > all[j].Engagement
	})
	if len(all) > maxSignals {
		all = all[:maxSignals]
	}

	// Enrich the strongest signal with the full post text when its
	// listing excerpt was thin.
	if s.fetcher != nil && len(all) > 0 && len(all[0].Excerpt) < 80 && all[0].Permalink != "" {
		if text := s.fetcher.Fetch(ctx, all[0].Permalink); len(text) > len(all[0].Excerpt) {
			all[0].Excerpt = truncate(text, maxExcerptLen)
		}
	}

	log.Printf("Gathered %d signals", len(all))
	return all
}

// matchKeywords returns the configured keywords that appear in the signal's
// title or excerpt, case-insensitively.
func matchKeywords(sig types.Signal, keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}
	haystack := strings.ToLower(sig.Title + " " + sig.Excerpt)
	var matched []string
	for _, kw := range keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	return matched
}
