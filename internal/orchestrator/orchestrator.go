// Package orchestrator drives the two periodic cycles of the factory:
// discovering ideas and building the highest-priority one into a bundle.
// Both run on independent timers under a crash barrier so one bad cycle
// never takes the daemon down.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"mvpforge/internal/config"
	"mvpforge/internal/dedup"
	"mvpforge/internal/history"
	"mvpforge/internal/llm"
	"mvpforge/internal/prompt"
	"mvpforge/internal/publish"
	"mvpforge/internal/quality"
	"mvpforge/internal/signals"
	"mvpforge/internal/store"
	"mvpforge/internal/types"
)

// Completer is the completion service the cycles call.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// SignalSource supplies community signals for discovery prompts.
type SignalSource interface {
	Gather(ctx context.Context) []types.Signal
}

// Notifier posts operator messages.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Orchestrator owns the cycle logic and the wiring between components.
type Orchestrator struct {
	cfg       *config.Config
	store     *store.Store
	ledger    *history.DB // optional
	completer Completer
	signals   SignalSource
	gate      *quality.Gate

	repoHost     publish.Publisher
	webDeployer  publish.Publisher
	mobileDeploy publish.Publisher
	notifier     Notifier

	rand *rand.Rand
	now  func() time.Time
}

// New wires an orchestrator from config. The ledger may be nil; history
// recording is then skipped.
func New(cfg *config.Config, st *store.Store, ledger *history.DB) *Orchestrator {
	completer := llm.New(llm.Options{
		BaseURL:         cfg.Completion.BaseURL,
		Model:           cfg.Completion.Model,
		APIKey:          cfg.Completion.APIKey(),
		SystemPrompt:    prompt.SystemInstruction,
		Retries:         cfg.Completion.Retries,
		Backoff:         cfg.Completion.Backoff(),
		StreamTimeout:   time.Duration(cfg.Completion.StreamTimeoutMin) * time.Minute,
		FallbackTimeout: time.Duration(cfg.Completion.FallbackTimeoutMin) * time.Minute,
	})

	return &Orchestrator{
		cfg:          cfg,
		store:        st,
		ledger:       ledger,
		completer:    completer,
		signals:      signals.New(cfg.Signals),
		gate:         quality.NewGate(cfg.Quality),
		repoHost:     publish.NewGitHub(cfg.Publish.GitHubTokenEnv, cfg.Publish.GitHubOwner),
		webDeployer:  publish.NewVercel(cfg.Publish.VercelTokenEnv),
		mobileDeploy: publish.NewExpo(cfg.Publish.ExpoTokenEnv),
		notifier:     publish.NewNotifier(cfg.Publish.NotifyURLEnv),
		rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
		now:          time.Now,
	}
}

// Run starts the daemon loop: one ticker per cycle kind, each invocation
// guarded by the crash barrier. Returns when ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	discovery := time.NewTicker(time.Duration(o.cfg.Limits.DiscoveryIntervalMin) * time.Minute)
	build := time.NewTicker(time.Duration(o.cfg.Limits.BuildIntervalMin) * time.Minute)
	health := time.NewTicker(time.Duration(o.cfg.Limits.HealthIntervalMin) * time.Minute)
	defer discovery.Stop()
	defer build.Stop()
	defer health.Stop()

	log.Printf("Factory daemon started (discovery every %dm, build every %dm)",
		o.cfg.Limits.DiscoveryIntervalMin, o.cfg.Limits.BuildIntervalMin)

	// Kick off one discovery immediately so a freshly started daemon
	// doesn't idle until the first tick.
	o.safely(history.KindDiscovery, func() error { return o.RunDiscovery(ctx) })

	for {
		select {
		case <-ctx.Done():
			log.Println("Factory daemon stopping")
			return nil
		case <-discovery.C:
			o.safely(history.KindDiscovery, func() error { return o.RunDiscovery(ctx) })
		case <-build.C:
			o.safely(history.KindBuild, func() error { return o.RunBuild(ctx) })
		case <-health.C:
			o.safely(history.KindHealth, func() error { return o.HealthSnapshot() })
		}
	}
}

// safely is the crash barrier: a panic or error inside one scheduled
// invocation is logged and absorbed, never propagated to the timer loop.
func (o *Orchestrator) safely(kind string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("%s cycle panicked: %v", kind, r)
			o.recordCycle(kind, o.now(), false, "panic")
		}
	}()
	if err := fn(); err != nil {
		log.Printf("%s cycle failed: %v", kind, err)
	}
}

func (o *Orchestrator) recordCycle(kind string, started time.Time, ok bool, detail string) {
	if o.ledger == nil {
		return
	}
	if err := o.ledger.RecordCycle(kind, started, ok, detail); err != nil {
		log.Printf("Failed to record %s cycle: %v", kind, err)
	}
}

// HealthSnapshot logs queue depth and today's counters.
func (o *Orchestrator) HealthSnapshot() error {
	started := o.now()

	pending, err := o.store.PendingIdeas()
	if err != nil {
		return err
	}
	built, _ := o.store.BuiltIdeas()
	skipped, _ := o.store.SkippedIdeas()
	stats, err := o.store.Stats()
	if err != nil {
		return err
	}

	log.Printf("Health: %d pending, %d built, %d skipped | today: %d/%d ideas, %d/%d builds",
		len(pending), len(built), len(skipped),
		stats.IdeasToday, o.cfg.Limits.IdeasPerDay,
		stats.BuildsToday, o.cfg.Limits.BuildsPerDay)

	o.recordCycle(history.KindHealth, started, true, fmt.Sprintf(
		"%d pending, %d built, %d skipped, %d ideas today, %d builds today",
		len(pending), len(built), len(skipped), stats.IdeasToday, stats.BuildsToday))
	return nil
}

func (o *Orchestrator) thresholds() dedup.Thresholds {
	return dedup.Thresholds{
		Title:       o.cfg.Dedup.TitleThreshold,
		LooseTitle:  o.cfg.Dedup.LooseTitleThreshold,
		Description: o.cfg.Dedup.DescriptionThreshold,
	}
}
