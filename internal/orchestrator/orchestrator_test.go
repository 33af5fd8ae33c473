package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
	"time"

	"mvpforge/internal/config"
	"mvpforge/internal/quality"
	"mvpforge/internal/store"
	"mvpforge/internal/types"
)

type scriptedCompleter struct {
	responses []string
	errs      []error
	prompts   []string
}

func (s *scriptedCompleter) Complete(_ context.Context, prompt string, _ int, _ float64) (string, error) {
	i := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", errors.New("unscripted completion call")
}

type staticSignals struct{ sigs []types.Signal }

func (s staticSignals) Gather(context.Context) []types.Signal { return s.sigs }

type fakePublisher struct {
	name  string
	url   string
	calls int
}

func (f *fakePublisher) Name() string { return f.name }
func (f *fakePublisher) Publish(context.Context, string, string) types.PublishResult {
	f.calls++
	if f.url == "" {
		return types.PublishResult{Collaborator: f.name, OK: false, Detail: "not configured"}
	}
	return types.PublishResult{Collaborator: f.name, OK: true, URL: f.url}
}

type nopNotifier struct{ messages []string }

func (n *nopNotifier) Notify(_ context.Context, msg string) error {
	n.messages = append(n.messages, msg)
	return nil
}

func testConfig(dataDir string) *config.Config {
	return &config.Config{
		Completion: config.Completion{MaxTokensIdeas: 8192, MaxTokensBuild: 30000, Temperature: 0.7},
		Limits:     config.Limits{IdeasPerDay: 10, BuildsPerDay: 12, MaxFailures: 3},
		Dedup:      config.Dedup{TitleThreshold: 0.6, LooseTitleThreshold: 0.3, DescriptionThreshold: 0.5},
		Quality:    config.Quality{PassThreshold: 60, MinFiles: 2},
		Output:     config.Output{DataDir: dataDir},
	}
}

func testOrchestrator(t *testing.T, completer *scriptedCompleter) (*Orchestrator, *store.Store) {
	t.Helper()
	dataDir := t.TempDir()
	st, err := store.Open(dataDir)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	cfg := testConfig(dataDir)
	o := &Orchestrator{
		cfg:          cfg,
		store:        st,
		completer:    completer,
		signals:      staticSignals{},
		gate:         quality.NewGate(cfg.Quality),
		repoHost:     &fakePublisher{name: "github", url: "https://github.com/me/x"},
		webDeployer:  &fakePublisher{name: "vercel", url: "https://x.vercel.app"},
		mobileDeploy: &fakePublisher{name: "expo"},
		notifier:     &nopNotifier{},
		rand:         rand.New(rand.NewSource(1)),
		now:          time.Now,
	}
	return o, st
}

func ideaJSON(t *testing.T, ideas []map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(ideas)
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}

func bundleJSON(t *testing.T, files []types.BundleFile) string {
	t.Helper()
	raw, err := json.Marshal(files)
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}

// passingWebFiles clears every quality check for the web category.
func passingWebFiles() []types.BundleFile {
	return []types.BundleFile{
		{Path: "src/app/page.tsx", Content: `'use client';
const refresh = async () => {
  setLoading(true);
  try { const res = await fetch('/api/items'); setItems(await res.json()); } catch (err) {}
  setLoading(false);
};
<div className="grid md:grid-cols-2">{loading ? <Spinner/> : null}</div>`},
		{Path: "src/app/api/items/route.ts", Content: `export async function GET() { return Response.json(await loadItems()); }`},
	}
}

func TestDiscoveryQueuesSurvivors(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{ideaJSON(t, []map[string]any{
		{"title": "InvoiceForge", "description": "chase unpaid invoices", "type": "web", "viability": 8, "features": []string{"reminders"}},
		{"title": "LeadLoop", "description": "track sales leads", "type": "extension", "viability": 6},
	})}}
	o, st := testOrchestrator(t, completer)

	if err := o.RunDiscovery(context.Background()); err != nil {
		t.Fatalf("discovery failed: %v", err)
	}

	pending, _ := st.PendingIdeas()
	if len(pending) != 2 {
		t.Fatalf("expected 2 queued ideas, got %d", len(pending))
	}
	stats, _ := st.Stats()
	if stats.IdeasToday != 2 {
		t.Errorf("expected 2 ideas counted today, got %d", stats.IdeasToday)
	}
	for _, idea := range pending {
		if idea.ID == "" || idea.Discovered.IsZero() {
			t.Errorf("idea missing identity fields: %+v", idea)
		}
	}
}

func TestDiscoveryDropsDuplicates(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{ideaJSON(t, []map[string]any{
		{"title": "InvoiceForge Pro", "description": "chase unpaid invoices", "type": "web", "viability": 8},
		{"title": "Garden Planner", "description": "plan vegetable beds", "type": "web", "viability": 5},
	})}}
	o, st := testOrchestrator(t, completer)

	if err := st.Enqueue(types.Idea{ID: "seed", Title: "InvoiceForge", Description: "invoice chasing", Score: 7, Discovered: time.Now()}); err != nil {
		t.Fatal(err)
	}

	if err := o.RunDiscovery(context.Background()); err != nil {
		t.Fatalf("discovery failed: %v", err)
	}

	pending, _ := st.PendingIdeas()
	if len(pending) != 2 { // seed + Garden Planner
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}
	for _, idea := range pending {
		if idea.Title == "InvoiceForge Pro" {
			t.Error("slug-containment duplicate was queued")
		}
	}
	stats, _ := st.Stats()
	if stats.TotalDuplicates != 1 {
		t.Errorf("expected 1 duplicate counted, got %d", stats.TotalDuplicates)
	}
}

func TestDiscoveryIntraBatchDedup(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{ideaJSON(t, []map[string]any{
		{"title": "Invoice Chaser", "description": "chase unpaid invoices automatically", "type": "web", "viability": 8},
		{"title": "Invoice Chaser", "description": "chase unpaid invoices automatically", "type": "web", "viability": 7},
	})}}
	o, st := testOrchestrator(t, completer)

	if err := o.RunDiscovery(context.Background()); err != nil {
		t.Fatal(err)
	}
	pending, _ := st.PendingIdeas()
	if len(pending) != 1 {
		t.Fatalf("expected intra-batch duplicate dropped, got %d pending", len(pending))
	}
}

func TestDiscoveryRespectsDailyCap(t *testing.T) {
	completer := &scriptedCompleter{}
	o, st := testOrchestrator(t, completer)
	if err := st.AddIdeas(o.cfg.Limits.IdeasPerDay); err != nil {
		t.Fatal(err)
	}

	if err := o.RunDiscovery(context.Background()); err != nil {
		t.Fatalf("capped cycle should be a clean no-op, got %v", err)
	}
	if len(completer.prompts) != 0 {
		t.Error("completion should not be called past the daily cap")
	}
}

func TestBuildHappyPath(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{bundleJSON(t, passingWebFiles())}}
	o, st := testOrchestrator(t, completer)

	idea := types.Idea{ID: "a", Title: "InvoiceForge", Description: "x", Category: types.CategoryWeb, Score: 8, Discovered: time.Now()}
	if err := st.Enqueue(idea); err != nil {
		t.Fatal(err)
	}

	if err := o.RunBuild(context.Background()); err != nil {
		t.Fatalf("build failed: %v", err)
	}

	pending, _ := st.PendingIdeas()
	if len(pending) != 0 {
		t.Errorf("expected empty queue, got %d", len(pending))
	}
	built, _ := st.BuiltIdeas()
	if len(built) != 1 {
		t.Fatalf("expected 1 built idea, got %d", len(built))
	}
	if built[0].QualityScore < 60 {
		t.Errorf("expected passing quality score, got %d", built[0].QualityScore)
	}
	if built[0].RepoURL != "https://github.com/me/x" || built[0].LiveURL != "https://x.vercel.app" {
		t.Errorf("publish URLs not recorded: %+v", built[0])
	}
	stats, _ := st.Stats()
	if stats.BuildsToday != 1 {
		t.Errorf("expected 1 build counted, got %d", stats.BuildsToday)
	}
}

func TestBuildRecordsFailureOnUnparseableResponse(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{"I could not generate the app, sorry."}}
	o, st := testOrchestrator(t, completer)

	idea := types.Idea{ID: "a", Title: "X", Category: types.CategoryWeb, Score: 5, Discovered: time.Now()}
	if err := st.Enqueue(idea); err != nil {
		t.Fatal(err)
	}

	if err := o.RunBuild(context.Background()); err != nil {
		t.Fatalf("failed step must not propagate: %v", err)
	}

	count, _ := st.FailCount("a")
	if count != 1 {
		t.Errorf("expected 1 recorded failure, got %d", count)
	}
	pending, _ := st.PendingIdeas()
	if len(pending) != 1 {
		t.Errorf("idea should stay queued, got %d pending", len(pending))
	}
}

func TestBuildRegeneratesOnLowQuality(t *testing.T) {
	lowQuality := bundleJSON(t, []types.BundleFile{
		{Path: "index.html", Content: "<h1>Hello</h1>"},
	})
	completer := &scriptedCompleter{responses: []string{lowQuality, bundleJSON(t, passingWebFiles())}}
	o, st := testOrchestrator(t, completer)

	idea := types.Idea{ID: "a", Title: "X", Category: types.CategoryWeb, Score: 5, Discovered: time.Now()}
	if err := st.Enqueue(idea); err != nil {
		t.Fatal(err)
	}

	if err := o.RunBuild(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(completer.prompts) != 2 {
		t.Fatalf("expected 1 build + 1 regeneration call, got %d", len(completer.prompts))
	}
	built, _ := st.BuiltIdeas()
	if len(built) != 1 {
		t.Fatalf("expected 1 built idea, got %d", len(built))
	}
	if built[0].QualityScore < 60 {
		t.Errorf("expected regenerated bundle to be kept, score %d", built[0].QualityScore)
	}
}

func TestBuildKeepsOriginalWhenRegenerationUnparseable(t *testing.T) {
	lowQuality := bundleJSON(t, []types.BundleFile{
		{Path: "index.html", Content: "<h1>Hello</h1>"},
	})
	completer := &scriptedCompleter{responses: []string{lowQuality, "still no json here"}}
	o, st := testOrchestrator(t, completer)

	idea := types.Idea{ID: "a", Title: "X", Category: types.CategoryWeb, Score: 5, Discovered: time.Now()}
	if err := st.Enqueue(idea); err != nil {
		t.Fatal(err)
	}

	if err := o.RunBuild(context.Background()); err != nil {
		t.Fatal(err)
	}

	// The low-scoring original ships rather than nothing.
	built, _ := st.BuiltIdeas()
	if len(built) != 1 {
		t.Fatalf("expected 1 built idea, got %d", len(built))
	}
	count, _ := st.FailCount("a")
	if count != 0 {
		t.Errorf("shipping the original is not a failure, got count %d", count)
	}
}

func TestBuildSkipsDuplicateOfBuiltArchive(t *testing.T) {
	completer := &scriptedCompleter{}
	o, st := testOrchestrator(t, completer)

	if err := st.Built.Save("old", types.Idea{ID: "old", Title: "InvoiceForge", Description: "chase invoices"}); err != nil {
		t.Fatal(err)
	}
	idea := types.Idea{ID: "a", Title: "InvoiceForge", Description: "chase invoices again", Category: types.CategoryWeb, Score: 5, Discovered: time.Now()}
	if err := st.Enqueue(idea); err != nil {
		t.Fatal(err)
	}

	if err := o.RunBuild(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(completer.prompts) != 0 {
		t.Error("duplicate should be skipped before any completion call")
	}
	skipped, _ := st.SkippedIdeas()
	if len(skipped) != 1 {
		t.Fatalf("expected 1 skipped idea, got %d", len(skipped))
	}
	if skipped[0].SkipReason == "" {
		t.Error("expected a skip reason")
	}
	pending, _ := st.PendingIdeas()
	if len(pending) != 0 {
		t.Errorf("duplicate should leave the queue, got %d pending", len(pending))
	}
}

func TestBuildRespectsDailyCap(t *testing.T) {
	completer := &scriptedCompleter{}
	o, st := testOrchestrator(t, completer)
	for i := 0; i < o.cfg.Limits.BuildsPerDay; i++ {
		if err := st.AddBuild(); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.Enqueue(types.Idea{ID: "a", Title: "X", Score: 5, Discovered: time.Now()}); err != nil {
		t.Fatal(err)
	}

	if err := o.RunBuild(context.Background()); err != nil {
		t.Fatalf("capped cycle should be a clean no-op, got %v", err)
	}
	if len(completer.prompts) != 0 {
		t.Error("completion should not be called past the daily cap")
	}
}

func TestCrashBarrierAbsorbsPanic(t *testing.T) {
	o, _ := testOrchestrator(t, &scriptedCompleter{})
	o.safely("build", func() error { panic("boom") })
	// Reaching here is the assertion: the panic did not propagate.
}

func TestHealthSnapshot(t *testing.T) {
	o, st := testOrchestrator(t, &scriptedCompleter{})
	if err := st.Enqueue(types.Idea{ID: "a", Title: "X", Score: 5, Discovered: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := o.HealthSnapshot(); err != nil {
		t.Fatalf("health snapshot failed: %v", err)
	}
}
