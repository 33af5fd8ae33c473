package orchestrator

import (
	"context"
	"fmt"
	"log"

	"mvpforge/internal/dedup"
	"mvpforge/internal/extract"
	"mvpforge/internal/history"
	"mvpforge/internal/prompt"
	"mvpforge/internal/publish"
	"mvpforge/internal/types"
)

// RunBuild executes one build cycle: pick the best pending idea, generate
// its bundle, gate it, publish, archive. Internal step failures are
// recorded against the idea and absorbed; only bookkeeping errors
// propagate.
func (o *Orchestrator) RunBuild(ctx context.Context) error {
	started := o.now()

	stats, err := o.store.Stats()
	if err != nil {
		return fmt.Errorf("loading stats: %w", err)
	}
	if stats.BuildsToday >= o.cfg.Limits.BuildsPerDay {
		log.Printf("Build cap reached (%d/%d today), skipping cycle",
			stats.BuildsToday, o.cfg.Limits.BuildsPerDay)
		o.recordCycle(history.KindBuild, started, true, "daily cap reached")
		return nil
	}

	idea, err := o.store.Next(o.cfg.Limits.MaxFailures)
	if err != nil {
		return fmt.Errorf("reading queue: %w", err)
	}
	if idea == nil {
		log.Println("Queue empty, nothing to build")
		o.recordCycle(history.KindBuild, started, true, "queue empty")
		return nil
	}

	log.Printf("Building %q (%s, viability %.0f)", idea.Title, idea.Category, idea.Score)

	// Re-check against the built archive; the queue may have been
	// populated before a colliding idea shipped.
	if skipped, err := o.skipIfBuiltDuplicate(*idea); err != nil || skipped {
		return err
	}

	bundle, score, ok := o.generate(ctx, *idea)
	if !ok {
		o.recordCycle(history.KindBuild, started, false, "generation failed: "+idea.Title)
		return nil
	}

	slug := dedup.Slug(idea.Title)
	dir, err := publish.WriteBundle(o.cfg.GetDataDir(), idea.Category, slug, bundle)
	if err != nil {
		o.failBuild(idea.ID, fmt.Errorf("writing workspace: %w", err))
		o.recordCycle(history.KindBuild, started, false, "workspace write failed")
		return nil
	}

	o.publishBundle(ctx, idea, slug, dir)

	idea.QualityScore = score
	if err := o.store.ArchiveBuilt(*idea); err != nil {
		return fmt.Errorf("archiving built idea: %w", err)
	}
	if err := o.store.AddBuild(); err != nil {
		return fmt.Errorf("updating stats: %w", err)
	}
	if o.ledger != nil {
		if err := o.ledger.RecordBuild(*idea); err != nil {
			log.Printf("Failed to record build: %v", err)
		}
	}

	log.Printf("Built %q: quality %d, repo %s, live %s", idea.Title, score, orDash(idea.RepoURL), orDash(idea.LiveURL))
	o.recordCycle(history.KindBuild, started, true, fmt.Sprintf("built %s (quality %d)", idea.Title, score))
	return nil
}

// generate runs completion + extraction + the quality gate, with the
// single regeneration attempt the gate allows. Reports ok=false after
// recording the failure against the idea.
func (o *Orchestrator) generate(ctx context.Context, idea types.Idea) (types.Bundle, int, bool) {
	design := prompt.RandomDesign(o.rand)

	text, err := o.completer.Complete(ctx, prompt.Build(idea, design),
		o.cfg.Completion.MaxTokensBuild, o.cfg.Completion.Temperature)
	if err != nil {
		o.failBuild(idea.ID, fmt.Errorf("completion: %w", err))
		return types.Bundle{}, 0, false
	}

	files := extract.Files(text)
	if len(files) == 0 {
		o.failBuild(idea.ID, fmt.Errorf("no parseable bundle in response"))
		return types.Bundle{}, 0, false
	}
	bundle := types.Bundle{Files: files}

	score, issues := o.gate.Score(bundle, idea.Category)
	if o.gate.Pass(score) {
		return bundle, score, true
	}

	// One regeneration with the failed checks spelled out. If its output
	// doesn't parse, ship the original low-scoring bundle instead of
	// nothing.
	log.Printf("Quality %d below threshold %d, regenerating (%d issues)", score, o.gate.PassThreshold(), len(issues))
	regenText, err := o.completer.Complete(ctx, prompt.Regenerate(idea, design, issues),
		o.cfg.Completion.MaxTokensBuild, o.cfg.Completion.Temperature)
	if err != nil {
		log.Printf("Regeneration failed, keeping original bundle: %v", err)
		return bundle, score, true
	}
	regenFiles := extract.Files(regenText)
	if len(regenFiles) == 0 {
		log.Println("Regenerated output unparseable, keeping original bundle")
		return bundle, score, true
	}

	regenBundle := types.Bundle{Files: regenFiles}
	regenScore, _ := o.gate.Score(regenBundle, idea.Category)
	log.Printf("Regenerated bundle scored %d (was %d)", regenScore, score)
	if regenScore >= score {
		return regenBundle, regenScore, true
	}
	return bundle, score, true
}

// publishBundle hands the workspace to the collaborators. All of them are
// best effort; the idea still archives as built when every one fails.
func (o *Orchestrator) publishBundle(ctx context.Context, idea *types.Idea, slug, dir string) {
	if res := o.repoHost.Publish(ctx, slug, dir); res.OK {
		idea.RepoURL = res.URL
	} else {
		log.Printf("Repo publish skipped/failed: %s", res.Detail)
	}

	var deployer publish.Publisher
	switch idea.Category {
	case types.CategoryMobile:
		deployer = o.mobileDeploy
	case types.CategoryExtension:
		deployer = nil // extensions ship as repo artifacts only
	default:
		deployer = o.webDeployer
	}
	if deployer != nil {
		if res := deployer.Publish(ctx, slug, dir); res.OK {
			idea.LiveURL = res.URL
		} else {
			log.Printf("Deploy skipped/failed: %s", res.Detail)
		}
	}

	msg := fmt.Sprintf("Built %q (%s)", idea.Title, idea.Category)
	if idea.LiveURL != "" {
		msg += " → " + idea.LiveURL
	}
	if err := o.notifier.Notify(ctx, msg); err != nil {
		log.Printf("Notification failed: %v", err)
	}
}

// skipIfBuiltDuplicate archives the idea as skipped when it collides with
// something already built. Duplicate skips clear failure tracking; they
// are a dedup outcome, not a failure.
func (o *Orchestrator) skipIfBuiltDuplicate(idea types.Idea) (bool, error) {
	built, err := o.store.BuiltIdeas()
	if err != nil {
		return false, fmt.Errorf("loading built archive: %w", err)
	}
	corpus := make([]dedup.Entry, 0, len(built))
	for _, b := range built {
		corpus = append(corpus, dedup.Entry{Title: b.Title, Description: b.Description})
	}

	dup, match := dedup.IsDuplicate(idea.Title, idea.Description, corpus, o.thresholds())
	if !dup {
		return false, nil
	}

	log.Printf("Skipping %q: duplicate of built %q (%s)", idea.Title, match.Against, match.Reason)
	if err := o.store.ArchiveSkipped(idea, fmt.Sprintf("duplicate of %s", match.Against), 0); err != nil {
		return false, err
	}
	if err := o.store.AddSkipped(1); err != nil {
		return false, err
	}
	return true, nil
}

// failBuild records a build failure; the idea stays queued until it
// exhausts its failure budget.
func (o *Orchestrator) failBuild(id string, cause error) {
	log.Printf("Build step failed: %v", cause)
	count, err := o.store.RecordFailure(id, cause)
	if err != nil {
		log.Printf("Failed to record failure: %v", err)
		return
	}
	log.Printf("Failure %d/%d recorded for %s", count, o.cfg.Limits.MaxFailures, id)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
