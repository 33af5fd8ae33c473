package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"mvpforge/internal/dedup"
	"mvpforge/internal/extract"
	"mvpforge/internal/history"
	"mvpforge/internal/prompt"
	"mvpforge/internal/types"
)

// Most ideas to request in a single discovery prompt.
const ideasPerCycle = 5

// RunDiscovery executes one discovery cycle: pull signals, generate idea
// candidates, drop duplicates, queue the survivors.
func (o *Orchestrator) RunDiscovery(ctx context.Context) error {
	started := o.now()

	stats, err := o.store.Stats()
	if err != nil {
		return fmt.Errorf("loading stats: %w", err)
	}
	if stats.IdeasToday >= o.cfg.Limits.IdeasPerDay {
		log.Printf("Discovery cap reached (%d/%d today), skipping cycle",
			stats.IdeasToday, o.cfg.Limits.IdeasPerDay)
		o.recordCycle(history.KindDiscovery, started, true, "daily cap reached")
		return nil
	}

	count := o.cfg.Limits.IdeasPerDay - stats.IdeasToday
	if count > ideasPerCycle {
		count = ideasPerCycle
	}

	// Signals are best effort; discovery proceeds with none.
	sigs := o.signals.Gather(ctx)
	if o.ledger != nil {
		if fresh, err := o.ledger.FilterUnseen(sigs); err == nil {
			sigs = fresh
		}
	}

	corpus, titles, err := o.existingCorpus()
	if err != nil {
		return fmt.Errorf("loading corpus: %w", err)
	}

	text, err := o.completer.Complete(ctx,
		prompt.Discovery(sigs, titles, count),
		o.cfg.Completion.MaxTokensIdeas, o.cfg.Completion.Temperature)
	if err != nil {
		o.recordCycle(history.KindDiscovery, started, false, err.Error())
		return fmt.Errorf("completion: %w", err)
	}

	records := extract.Ideas(text)
	if len(records) == 0 {
		log.Println("Discovery produced no parseable ideas")
		o.recordCycle(history.KindDiscovery, started, false, "no parseable ideas")
		return nil
	}

	th := o.thresholds()
	queued, duplicates := 0, 0
	var refs []string
	for _, sig := range sigs {
		if sig.Permalink != "" {
			refs = append(refs, sig.Permalink)
		}
	}

	for _, rec := range records {
		if rec.Title == "" {
			continue
		}
		if dup, match := dedup.IsDuplicate(rec.Title, rec.Description, corpus, th); dup {
			log.Printf("Duplicate idea dropped: %q (%s, matched %q)", rec.Title, match.Reason, match.Against)
			duplicates++
			continue
		}

		idea := types.Idea{
			ID:          uuid.NewString(),
			Title:       rec.Title,
			Description: rec.Description,
			Problem:     rec.Problem,
			TargetUser:  rec.TargetUser,
			Features:    rec.Features,
			Category:    normalizeCategory(rec.Category),
			Complexity:  rec.Complexity,
			Score:       rec.Score,
			SignalRefs:  refs,
			Discovered:  o.now(),
		}
		idea.NeedsAI = prompt.NeedsAI(idea)

		if err := o.store.Enqueue(idea); err != nil {
			return fmt.Errorf("queueing idea: %w", err)
		}
		log.Printf("Queued idea: %q (%s, viability %.0f)", idea.Title, idea.Category, idea.Score)

		// Intra-batch: later candidates in this run must clear this one too.
		corpus = append(corpus, dedup.Entry{Title: rec.Title, Description: rec.Description})
		queued++
	}

	if queued > 0 {
		if err := o.store.AddIdeas(queued); err != nil {
			return fmt.Errorf("updating stats: %w", err)
		}
	}
	if duplicates > 0 {
		if err := o.store.AddDuplicates(duplicates); err != nil {
			return fmt.Errorf("updating stats: %w", err)
		}
	}
	if o.ledger != nil && len(sigs) > 0 {
		if err := o.ledger.MarkSignalsSeen(sigs); err != nil {
			log.Printf("Failed to mark signals seen: %v", err)
		}
	}

	log.Printf("Discovery complete: %d queued, %d duplicates dropped", queued, duplicates)
	o.recordCycle(history.KindDiscovery, started, true,
		fmt.Sprintf("%d queued, %d duplicates", queued, duplicates))
	return nil
}

// existingCorpus assembles the duplicate-detection corpus: every pending,
// built and skipped idea, plus project slugs already on disk from earlier
// deploys.
func (o *Orchestrator) existingCorpus() ([]dedup.Entry, []string, error) {
	var corpus []dedup.Entry
	var titles []string

	for _, load := range []func() ([]types.Idea, error){
		o.store.PendingIdeas, o.store.BuiltIdeas, o.store.SkippedIdeas,
	} {
		ideas, err := load()
		if err != nil {
			return nil, nil, err
		}
		for _, idea := range ideas {
			corpus = append(corpus, dedup.Entry{Title: idea.Title, Description: idea.Description})
			titles = append(titles, idea.Title)
		}
	}

	for _, workspace := range []string{"web", "extension", "mobile"} {
		entries, err := os.ReadDir(filepath.Join(o.cfg.GetDataDir(), workspace))
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				corpus = append(corpus, dedup.Entry{Title: entry.Name()})
			}
		}
	}

	return corpus, titles, nil
}

func normalizeCategory(raw string) string {
	switch raw {
	case types.CategoryExtension:
		return types.CategoryExtension
	case types.CategoryMobile:
		return types.CategoryMobile
	case types.CategorySaaS:
		return types.CategorySaaS
	default:
		return types.CategoryWeb
	}
}
