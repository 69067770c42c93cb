// Package engine orchestrates pipeline runs: it streams batches out of
// the extract step, walks them through the remaining steps in order,
// checkpoints progress and reports a run summary.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sluicehq/sluice/internal/checkpoint"
	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/entity"
	"github.com/sluicehq/sluice/internal/events"
	"github.com/sluicehq/sluice/internal/loader"
	"github.com/sluicehq/sluice/internal/logger"
	"github.com/sluicehq/sluice/internal/metrics"
	"github.com/sluicehq/sluice/internal/model"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

const defaultBatchSize = 100

// HookFunc handles one named lifecycle hook. Failures are logged and
// otherwise ignored.
type HookFunc func(ctx context.Context, cfg map[string]any, ev events.Event) error

// Engine wires the runtime services together and executes pipelines.
type Engine struct {
	Store     *checkpoint.Store
	Entities  entity.Service
	Journal   *loader.Journal
	Log       *logger.Logger
	Publisher events.Publisher
	Metrics   *metrics.Metrics

	// ResolveSecret and ResolveConnection surface synced configuration
	// to extractor adapters. Optional.
	ResolveSecret     func(ctx context.Context, code string) (string, error)
	ResolveConnection func(ctx context.Context, code string) (map[string]any, error)

	hookMu sync.RWMutex
	hooks  map[string]HookFunc

	runMu   sync.Mutex
	running map[string]context.CancelFunc
}

// New builds an engine. Store may be nil for ephemeral runs without
// durable checkpoints or journaling.
func New(store *checkpoint.Store, entities entity.Service, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{
		Store:    store,
		Entities: entities,
		Journal:  loader.NewJournal(entities, log, loader.JournalOptions{}),
		Log:      log,
		hooks:    make(map[string]HookFunc),
		running:  make(map[string]context.CancelFunc),
	}
}

// RegisterHook installs a handler under its name for definition hooks.
func (e *Engine) RegisterHook(handler string, fn HookFunc) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.hooks[handler] = fn
}

// Options tunes one run.
type Options struct {
	// RunID is assigned when empty.
	RunID string
	// Resume starts from the saved checkpoint instead of the beginning.
	Resume bool
	// DryRun validates and counts without writing entities.
	DryRun bool
	// BatchSize overrides the definition's batch size.
	BatchSize int
	// Level controls per-record logging detail.
	Level logger.PersistenceLevel
}

// Cancel stops a running pipeline. The run finishes its current record
// and reports CANCELLED.
func (e *Engine) Cancel(runID string) bool {
	e.runMu.Lock()
	cancel, ok := e.running[runID]
	e.runMu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (e *Engine) track(runID string, cancel context.CancelFunc) {
	e.runMu.Lock()
	e.running[runID] = cancel
	e.runMu.Unlock()
}

func (e *Engine) untrack(runID string) {
	e.runMu.Lock()
	delete(e.running, runID)
	e.runMu.Unlock()
}

// Execute runs a pipeline to completion, pause or failure and returns
// the run summary. The summary is non-nil whenever a run started, even
// when err is also non-nil.
func (e *Engine) Execute(ctx context.Context, pipeline *config.Pipeline, opts Options) (*model.RunSummary, error) {
	if pipeline == nil {
		return nil, sluiceerrors.NewValidationError("pipeline", "pipeline is nil", nil)
	}
	if !pipeline.Enabled {
		return nil, sluiceerrors.NewValidationError("pipeline", fmt.Sprintf("pipeline %q is disabled", pipeline.Code), nil)
	}
	if err := config.ValidatePipeline(pipeline); err != nil {
		return nil, err
	}

	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.track(opts.RunID, cancel)
	defer e.untrack(opts.RunID)

	st := newRunState(e, pipeline, opts)
	return st.run(runCtx)
}

// publish emits a lifecycle event and fires any definition hooks bound
// to it. Both are best-effort.
func (e *Engine) publish(ctx context.Context, def *config.Definition, ev events.Event) {
	ev.Timestamp = time.Now().UTC()
	if e.Publisher != nil {
		func() {
			defer func() { _ = recover() }()
			e.Publisher.Publish(ev)
		}()
	}

	if def == nil || len(def.Hooks) == 0 {
		return
	}
	for _, hook := range def.Hooks[string(ev.Type)] {
		e.hookMu.RLock()
		fn, ok := e.hooks[hook.Handler]
		e.hookMu.RUnlock()
		if !ok {
			e.Log.Warn(fmt.Sprintf("no handler registered for hook %q", hook.Handler))
			continue
		}
		if err := fn(ctx, hook.Config, ev); err != nil {
			e.Log.Error(err, fmt.Sprintf("hook %q failed", hook.Handler))
		}
	}
}
