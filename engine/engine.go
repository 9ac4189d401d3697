package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/listsync/config"
	"github.com/teranos/listsync/entity"
	"github.com/teranos/listsync/errors"
	"github.com/teranos/listsync/logger"
	"github.com/teranos/listsync/page"
	"github.com/teranos/listsync/render"
	"github.com/teranos/listsync/sparql"
	"github.com/teranos/listsync/store"
	"github.com/teranos/listsync/wiki"
)

// The engine's collaborators, narrowed to what the pipeline calls so
// tests can substitute fakes.
type (
	querier interface {
		Execute(ctx context.Context, query string) (*sparql.Result, error)
	}
	resolver interface {
		ResolveAll(ctx context.Context, ids []string) (map[string]*entity.Entity, map[string]error)
	}
	pageReader interface {
		GetPage(ctx context.Context, title string) (*wiki.Page, error)
	}
	applier interface {
		Apply(ctx context.Context, p *wiki.Page, newText string) error
	}
)

// Engine drives all configured pages through the pipeline with a bounded
// worker pool. Failure of one job never affects the others.
type Engine struct {
	cfg         *config.Config
	queries     querier
	entities    resolver
	renderer    *render.Renderer
	pages       pageReader
	editor      applier
	store       *store.Store // nil when bookkeeping is disabled
	broadcaster Broadcaster  // nil when nothing listens
	log         *zap.SugaredLogger

	pagesMu sync.RWMutex
	pageSet []string
}

// New wires the production pipeline from configuration. The store is
// opened only when a path is configured.
func New(cfg *config.Config, log *zap.SugaredLogger) (*Engine, error) {
	if log == nil {
		log = logger.Logger
	}

	client := wiki.NewClient(cfg.Wiki)
	e := &Engine{
		cfg:      cfg,
		queries:  sparql.NewExecutor(cfg.Sparql, cfg.Retry, log),
		entities: entity.NewCache(entity.NewFetcher(cfg.Entity), cfg.Entity, cfg.Retry, log),
		renderer: render.New(cfg.Render),
		pages:    client,
		editor:   wiki.NewEditor(client, cfg.Wiki, cfg.Retry, log),
		log:      log.Named("engine"),
		pageSet:  cfg.Engine.Pages,
	}

	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store.Path, log)
		if err != nil {
			return nil, err
		}
		e.store = st
	}
	return e, nil
}

// newEngineWithDeps is the test seam.
func newEngineWithDeps(cfg *config.Config, q querier, r resolver, pages pageReader, ed applier, st *store.Store, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{
		cfg:      cfg,
		queries:  q,
		entities: r,
		renderer: render.New(cfg.Render),
		pages:    pages,
		editor:   ed,
		store:    st,
		log:      log.Named("engine"),
		pageSet:  cfg.Engine.Pages,
	}
}

// SetBroadcaster registers the transition listener. Call before Run.
func (e *Engine) SetBroadcaster(b Broadcaster) {
	e.broadcaster = b
}

// SetPages replaces the page set used by subsequent cycles. The cycle in
// progress keeps the set it started with.
func (e *Engine) SetPages(pages []string) {
	e.pagesMu.Lock()
	e.pageSet = append([]string(nil), pages...)
	e.pagesMu.Unlock()
}

func (e *Engine) currentPages() []string {
	e.pagesMu.RLock()
	defer e.pagesMu.RUnlock()
	return e.pageSet
}

// Store exposes the bookkeeping store to the status server; nil when
// disabled.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Close releases the bookkeeping store.
func (e *Engine) Close() error {
	if e.store != nil {
		return e.store.Close()
	}
	return nil
}

// RunOnce processes the full configured page set through the worker pool
// and reports aggregate counts. It returns when every job has finished.
func (e *Engine) RunOnce(ctx context.Context) *Summary {
	pages := e.currentPages()
	if e.store != nil {
		ordered, err := e.store.OrderPages(pages)
		if err != nil {
			e.log.Warnw("could not order pages by last run", "error", err)
		} else {
			pages = ordered
		}
	}

	workers := e.cfg.Engine.Workers
	if workers < 1 {
		workers = 1
	}

	summary := newSummary()
	titles := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for title := range titles {
				job := e.runJob(ctx, title)
				summary.record(job)
				e.recordRun(job)
			}
		}()
	}

	for _, title := range pages {
		select {
		case titles <- title:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(titles)
	wg.Wait()

	e.log.Infow("cycle complete",
		"processed", summary.Processed,
		"edited", summary.Edited,
		"unchanged", summary.Unchanged,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary
}

// Run repeats full cycles on the configured interval until the context is
// cancelled. In-flight jobs finish their current stage before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Duration(e.cfg.Engine.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}

	for {
		summary := e.RunOnce(ctx)
		if summary.Failed > 0 {
			e.log.Warnw("cycle had failures", "failed", summary.Failed)
		}

		select {
		case <-ctx.Done():
			e.log.Infow("engine stopping")
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// runJob drives one page through the pipeline. Every failure is attributed
// to this job alone.
func (e *Engine) runJob(ctx context.Context, title string) *Job {
	job := &Job{Page: title, State: StatePending}

	p, err := e.pages.GetPage(ctx, title)
	if err != nil {
		return e.fail(job, errors.Wrap(err, "reading page"))
	}

	if !e.cfg.Wiki.CanEditNamespace(p.Namespace) {
		e.transition(job, StateSkipped)
		e.log.Infow("page skipped", "page", title, "namespace", p.Namespace)
		return job
	}
	e.transition(job, StateQueued)

	params, err := page.Params(p.Text, e.cfg.Wiki.StartMarker, e.cfg.Wiki.EndMarker)
	if err != nil {
		return e.fail(job, err)
	}
	spec, err := render.ParseSpec(params)
	if err != nil {
		return e.fail(job, err)
	}
	job.Spec = spec

	e.transition(job, StateQuerying)
	result, err := e.queries.Execute(ctx, spec.Sparql)
	if err != nil {
		return e.fail(job, err)
	}

	e.transition(job, StateResolvingEntities)
	ids := append(result.EntityIDs(), columnEntityIDs(spec.Columns)...)
	entities, failures := e.entities.ResolveAll(ctx, ids)
	if len(failures) > 0 {
		// Missing entities degrade to bare identifiers in the output
		e.log.Warnw("entities unresolved", "page", title, "entities", len(failures))
	}

	e.transition(job, StateRendering)
	rendered, warnings := e.renderer.Render(spec, result, entities)
	job.Warnings = len(warnings)
	for _, w := range warnings {
		e.log.Warnw("row skipped", "page", title, "rows", w.Row, "error", w.Message)
	}

	e.transition(job, StateDiffing)
	decision, err := page.Diff(p.Text, rendered, e.cfg.Wiki.StartMarker, e.cfg.Wiki.EndMarker)
	if err != nil {
		return e.fail(job, err)
	}

	if !decision.Changed {
		e.transition(job, StateDone)
		e.log.Infow("page unchanged", "page", title)
		return job
	}

	if e.cfg.Engine.DryRun {
		e.transition(job, StateDone)
		e.log.Infow("edit suppressed", "page", title, "dry_run", true)
		return job
	}

	e.transition(job, StateEditing)
	if err := e.editor.Apply(ctx, p, decision.NewText); err != nil {
		return e.fail(job, err)
	}
	job.Edited = true
	e.transition(job, StateDone)
	return job
}

func (e *Engine) fail(job *Job, err error) *Job {
	job.Err = err
	e.transition(job, StateFailed)
	e.log.Errorw("job failed", "page", job.Page, "error", err)
	return job
}

func (e *Engine) transition(job *Job, to State) {
	from := job.State
	job.State = to
	if e.broadcaster != nil {
		tr := Transition{Page: job.Page, From: from, To: to}
		if job.Err != nil {
			tr.Error = job.Err.Error()
		}
		e.broadcaster.BroadcastTransition(tr)
	}
}

func (e *Engine) recordRun(job *Job) {
	if e.store == nil {
		return
	}
	status := store.StatusOK
	message := ""
	switch job.State {
	case StateFailed:
		status = store.StatusFailed
		message = job.Err.Error()
	case StateSkipped:
		status = store.StatusSkipped
	}
	if err := e.store.RecordRun(job.Page, status, message, job.Edited); err != nil {
		e.log.Warnw("could not record run", "page", job.Page, "error", err)
	}
}

// columnEntityIDs collects the property ids a spec's columns reference, so
// their labels resolve for table headers.
func columnEntityIDs(cols []render.Column) []string {
	var ids []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, col := range cols {
		add(col.Property)
		add(col.Qualifier)
	}
	return ids
}
