package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/listsync/config"
	"github.com/teranos/listsync/entity"
	"github.com/teranos/listsync/errors"
	"github.com/teranos/listsync/sparql"
	"github.com/teranos/listsync/wiki"
)

func testConfig(pages ...string) *config.Config {
	return &config.Config{
		Wiki: config.WikiConfig{
			StartMarker:     "{{Wikidata list",
			EndMarker:       "{{Wikidata list end}}",
			NamespaceBlocks: []int64{2},
		},
		Render: config.RenderConfig{
			DefaultLanguage:      "en",
			DefaultThumbnailSize: 128,
			LocationTemplates:    map[string]string{"default": "{{Coord|$LAT$|$LON$}}"},
		},
		Engine: config.EngineConfig{Workers: 2, Pages: pages},
	}
}

const listTemplate = "{{Wikidata list |sparql=SELECT ?item WHERE {} |columns=label }}"

func pageText(managed string) string {
	return "Intro\n" + listTemplate + "\n" + managed + "\n{{Wikidata list end}}\nOutro"
}

type fakeQuerier struct {
	mu     sync.Mutex
	result *sparql.Result
	err    error
	delay  time.Duration
	calls  int
}

func (f *fakeQuerier) Execute(ctx context.Context, query string) (*sparql.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.result, f.err
}

type fakeResolver struct {
	entities map[string]*entity.Entity
}

func (f *fakeResolver) ResolveAll(ctx context.Context, ids []string) (map[string]*entity.Entity, map[string]error) {
	found := make(map[string]*entity.Entity)
	for _, id := range ids {
		if e, ok := f.entities[id]; ok {
			found[id] = e
		}
	}
	return found, nil
}

type fakePages struct {
	mu    sync.Mutex
	texts map[string]string
	ns    map[string]int64
}

func (f *fakePages) GetPage(ctx context.Context, title string) (*wiki.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.texts[title]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "page %q", title)
	}
	return &wiki.Page{Title: title, Text: text, RevisionID: 1, Namespace: f.ns[title]}, nil
}

type fakeApplier struct {
	mu      sync.Mutex
	applied map[string]string
	err     error
}

func (f *fakeApplier) Apply(ctx context.Context, p *wiki.Page, newText string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applied == nil {
		f.applied = make(map[string]string)
	}
	f.applied[p.Title] = newText
	return nil
}

type recordingBroadcaster struct {
	mu          sync.Mutex
	transitions []Transition
}

func (r *recordingBroadcaster) BroadcastTransition(tr Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, tr)
}

func (r *recordingBroadcaster) states(page string) []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var states []State
	for _, tr := range r.transitions {
		if tr.Page == page {
			states = append(states, tr.To)
		}
	}
	return states
}

func oneRowResult(id string) *sparql.Result {
	return &sparql.Result{
		Variables: []string{"item"},
		Rows:      []sparql.Row{{"item": sparql.Value{Kind: sparql.KindEntity, Text: id}}},
	}
}

func berlinEntities() map[string]*entity.Entity {
	return map[string]*entity.Entity{
		"Q64": {ID: "Q64", Labels: map[string]string{"en": "Berlin"}},
	}
}

func TestRunOnceEditsChangedPage(t *testing.T) {
	cfg := testConfig("List of cities")
	pages := &fakePages{texts: map[string]string{"List of cities": pageText("stale content")}}
	applier := &fakeApplier{}
	bc := &recordingBroadcaster{}

	e := newEngineWithDeps(cfg, &fakeQuerier{result: oneRowResult("Q64")}, &fakeResolver{entities: berlinEntities()}, pages, applier, nil, nil)
	e.SetBroadcaster(bc)

	summary := e.RunOnce(context.Background())
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Edited)
	assert.Equal(t, 0, summary.Failed)
	assert.True(t, summary.OK())

	newText := applier.applied["List of cities"]
	require.NotEmpty(t, newText)
	assert.Contains(t, newText, "[[:d:Q64|Berlin]]")
	assert.Contains(t, newText, "Intro\n", "unmanaged text preserved")
	assert.Contains(t, newText, "Outro")

	assert.Equal(t,
		[]State{StateQueued, StateQuerying, StateResolvingEntities, StateRendering, StateDiffing, StateEditing, StateDone},
		bc.states("List of cities"))
}

func TestRunOnceUnchangedPageIsNotEdited(t *testing.T) {
	cfg := testConfig("List of cities")
	pages := &fakePages{texts: map[string]string{"List of cities": pageText("stale")}}
	applier := &fakeApplier{}
	querier := &fakeQuerier{result: oneRowResult("Q64")}
	resolver := &fakeResolver{entities: berlinEntities()}

	e := newEngineWithDeps(cfg, querier, resolver, pages, applier, nil, nil)
	require.Equal(t, 1, e.RunOnce(context.Background()).Edited)

	// Second cycle over the already-updated page must be a no-op
	pages.mu.Lock()
	pages.texts["List of cities"] = applier.applied["List of cities"]
	pages.mu.Unlock()
	applier.applied = nil

	summary := e.RunOnce(context.Background())
	assert.Equal(t, 1, summary.Unchanged)
	assert.Equal(t, 0, summary.Edited)
	assert.Empty(t, applier.applied, "identical rendered output never triggers an edit")
}

func TestRunOnceDryRunNeverEdits(t *testing.T) {
	cfg := testConfig("List of cities")
	cfg.Engine.DryRun = true
	pages := &fakePages{texts: map[string]string{"List of cities": pageText("stale content")}}
	applier := &fakeApplier{}
	bc := &recordingBroadcaster{}

	e := newEngineWithDeps(cfg, &fakeQuerier{result: oneRowResult("Q64")}, &fakeResolver{entities: berlinEntities()}, pages, applier, nil, nil)
	e.SetBroadcaster(bc)

	summary := e.RunOnce(context.Background())
	assert.Equal(t, 0, summary.Edited)
	assert.Equal(t, 0, summary.Failed)
	assert.Empty(t, applier.applied)

	// The diff still happens; only the edit is suppressed
	assert.Equal(t,
		[]State{StateQueued, StateQuerying, StateResolvingEntities, StateRendering, StateDiffing, StateDone},
		bc.states("List of cities"))
}

func TestSetPagesAppliesToNextCycle(t *testing.T) {
	cfg := testConfig("Old page")
	pages := &fakePages{texts: map[string]string{"New page": pageText("stale content")}}
	applier := &fakeApplier{}

	e := newEngineWithDeps(cfg, &fakeQuerier{result: oneRowResult("Q64")}, &fakeResolver{entities: berlinEntities()}, pages, applier, nil, nil)
	e.SetPages([]string{"New page"})

	summary := e.RunOnce(context.Background())
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Edited)
	assert.Contains(t, applier.applied, "New page")
}

func TestRunOnceSkipsBlockedNamespace(t *testing.T) {
	cfg := testConfig("User:Someone/List")
	pages := &fakePages{
		texts: map[string]string{"User:Someone/List": pageText("x")},
		ns:    map[string]int64{"User:Someone/List": 2},
	}
	applier := &fakeApplier{}
	bc := &recordingBroadcaster{}

	e := newEngineWithDeps(cfg, &fakeQuerier{result: oneRowResult("Q64")}, &fakeResolver{}, pages, applier, nil, nil)
	e.SetBroadcaster(bc)

	summary := e.RunOnce(context.Background())
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, applier.applied)
	assert.Equal(t, []State{StateSkipped}, bc.states("User:Someone/List"),
		"blocked pages never enter the queue")
}

func TestRunOnceIsolatesFailures(t *testing.T) {
	cfg := testConfig("Broken", "Healthy")
	pages := &fakePages{texts: map[string]string{
		"Broken":  "a page without any markers",
		"Healthy": pageText("stale"),
	}}
	applier := &fakeApplier{}

	e := newEngineWithDeps(cfg, &fakeQuerier{result: oneRowResult("Q64")}, &fakeResolver{entities: berlinEntities()}, pages, applier, nil, nil)

	summary := e.RunOnce(context.Background())
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Edited, "one job's failure never affects the others")
	assert.False(t, summary.OK())

	require.Contains(t, summary.Failures, "Broken")
	assert.True(t, errors.Is(summary.Failures["Broken"], errors.ErrMarkersNotFound))
}

func TestRunOnceMissingSparqlParameterFails(t *testing.T) {
	cfg := testConfig("No query")
	text := "{{Wikidata list |columns=label }}\nx\n{{Wikidata list end}}"
	pages := &fakePages{texts: map[string]string{"No query": text}}

	e := newEngineWithDeps(cfg, &fakeQuerier{result: oneRowResult("Q64")}, &fakeResolver{}, pages, &fakeApplier{}, nil, nil)

	summary := e.RunOnce(context.Background())
	assert.Equal(t, 1, summary.Failed)
}

func TestRunOnceRespectsWorkerCap(t *testing.T) {
	titles := []string{"A", "B", "C", "D", "E", "F"}
	cfg := testConfig(titles...)
	cfg.Engine.Workers = 2

	texts := make(map[string]string, len(titles))
	for _, tt := range titles {
		texts[tt] = pageText("stale")
	}
	querier := &fakeQuerier{result: oneRowResult("Q64"), delay: 20 * time.Millisecond}

	var mu sync.Mutex
	inFlight, maxSeen := 0, 0
	applier := &fakeApplier{}
	gauge := &gaugeQuerier{inner: querier, mu: &mu, inFlight: &inFlight, maxSeen: &maxSeen}

	e := newEngineWithDeps(cfg, gauge, &fakeResolver{entities: berlinEntities()}, &fakePages{texts: texts}, applier, nil, nil)

	summary := e.RunOnce(context.Background())
	assert.Equal(t, len(titles), summary.Processed)
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxSeen, 2, "at most worker-cap jobs execute at once")
}

// gaugeQuerier tracks how many jobs are inside the pipeline concurrently.
type gaugeQuerier struct {
	inner    *fakeQuerier
	mu       *sync.Mutex
	inFlight *int
	maxSeen  *int
}

func (g *gaugeQuerier) Execute(ctx context.Context, query string) (*sparql.Result, error) {
	g.mu.Lock()
	*g.inFlight++
	if *g.inFlight > *g.maxSeen {
		*g.maxSeen = *g.inFlight
	}
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		*g.inFlight--
		g.mu.Unlock()
	}()
	return g.inner.Execute(ctx, query)
}
