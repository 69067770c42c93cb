package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sluicehq/sluice/internal/checkpoint"
	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/events"
	"github.com/sluicehq/sluice/internal/extract"
	"github.com/sluicehq/sluice/internal/loader"
	"github.com/sluicehq/sluice/internal/logger"
	"github.com/sluicehq/sluice/internal/model"
	"github.com/sluicehq/sluice/internal/transform"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

// pauseSignal aborts the batch walk when a gate blocks.
type pauseSignal struct {
	stepKey string
}

func (p pauseSignal) Error() string { return "paused at " + p.stepKey }

// runState carries everything one Execute invocation needs.
type runState struct {
	engine   *Engine
	pipeline *config.Pipeline
	def      *config.Definition
	opts     Options

	runLog    *logger.RunLogger
	evaluator *transform.Evaluator
	runRow    *model.Run
	summary   *model.RunSummary

	batchSize int
	policy    config.ErrorPolicy
	maxErrors int

	// stepStats aggregates per-step counters across batches, keyed by
	// step index so the summary preserves definition order.
	stepStats map[int]*model.StepMetrics

	// cursor is the extract step's resumable state, persisted at
	// checkpoint boundaries together with the last emitted sequence.
	// cpMu guards both: the extract producer writes them while the
	// batch consumer snapshots them for persistence.
	cpMu    sync.Mutex
	cursor  map[string]any
	lastSeq int64

	// Record-level dispositions. Each extracted record settles exactly
	// once as succeeded, failed or skipped; the run aggregate is built
	// from these, not from per-step counters. failMu guards recFailed
	// and the summary error list; transform workers report failures
	// concurrently. recSucceeded and recSkipped are only touched by the
	// goroutine walking batches.
	failMu       sync.Mutex
	recFailed    int
	recSucceeded int
	recSkipped   int
}

func newRunState(e *Engine, pipeline *config.Pipeline, opts Options) *runState {
	def := &pipeline.Definition

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = def.ParallelExecution.BatchSize
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	policy := def.ErrorHandling.Policy
	if policy == "" {
		policy = config.FailFast
	}

	maxErrors := def.ErrorHandling.MaxErrors
	if maxErrors <= 0 {
		maxErrors = 100
	}

	stepStats := make(map[int]*model.StepMetrics, len(def.Steps))
	for i, step := range def.Steps {
		stepStats[i] = &model.StepMetrics{StepKey: step.Key, StepType: string(step.Type)}
	}

	now := time.Now().UTC()
	return &runState{
		engine:   e,
		pipeline: pipeline,
		def:      def,
		opts:     opts,
		runLog:   logger.NewRunLogger(e.Log, pipeline.Code, opts.RunID, opts.Level),
		evaluator: &transform.Evaluator{
			Env:    &transform.Env{Entities: e.Entities, Logger: e.Log},
			Strict: def.ErrorHandling.StrictTransforms,
		},
		runRow: &model.Run{
			ID:         opts.RunID,
			PipelineID: pipeline.Code,
			Status:     model.RunRunning,
			StartedAt:  now,
		},
		summary:   &model.RunSummary{RunID: opts.RunID, Status: model.RunRunning},
		batchSize: batchSize,
		policy:    policy,
		maxErrors: maxErrors,
		stepStats: stepStats,
	}
}

func (st *runState) run(ctx context.Context) (*model.RunSummary, error) {
	steps := st.def.Steps
	if steps[0].Type != config.StepExtract {
		return nil, sluiceerrors.NewValidationError("definition.steps[0].type",
			"the first step must be an EXTRACT step", nil)
	}

	extractor, err := extract.Get(steps[0].AdapterCode)
	if err != nil {
		return nil, err
	}
	if err := config.ValidateAdapterConfig(steps[0].AdapterCode, extractor.Schema(), steps[0].Config); err != nil {
		return nil, err
	}
	if err := extractor.Validate(steps[0].Config); err != nil {
		return nil, err
	}

	if st.opts.Resume {
		if err := st.loadCheckpoint(ctx); err != nil {
			return nil, err
		}
	} else if err := st.clearCheckpoint(ctx); err != nil {
		// A fresh run must not inherit a previous run's position.
		return nil, err
	}

	start := time.Now()
	if err := st.saveRun(ctx); err != nil {
		return nil, err
	}
	st.engine.publish(ctx, st.def, events.Event{
		Type: events.PipelineStarted, PipelineID: st.pipeline.Code, RunID: st.opts.RunID,
	})

	runErr := st.stream(ctx, steps, extractor)
	st.finish(ctx, runErr, time.Since(start))

	if runErr != nil && !isPause(runErr) && !errors.Is(runErr, context.Canceled) {
		return st.summary, runErr
	}
	return st.summary, nil
}

// stream drives extraction and walks every batch through the remaining
// steps. Batches flow through a small buffered channel so a slow load
// step applies backpressure to the extractor.
func (st *runState) stream(ctx context.Context, steps []config.Step, extractor extract.Extractor) error {
	batches := make(chan []model.Envelope, 2)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(batches)
		return st.extract(gctx, extractor, steps[0], batches)
	})

	g.Go(func() error {
		for batch := range batches {
			if err := st.processBatch(gctx, steps, batch); err != nil {
				// Drain so the producer is not blocked on send.
				go func() {
					for range batches {
					}
				}()
				return err
			}
			if err := st.saveCheckpoint(gctx); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}

func (st *runState) extract(ctx context.Context, extractor extract.Extractor, step config.Step, out chan<- []model.Envelope) error {
	stats := st.stats(0)
	stepStart := time.Now()
	st.runLog.OnStepStart(step.Key, string(step.Type), 0)

	ec := st.extractContext(ctx, step.Key)

	batch := make([]model.Envelope, 0, st.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		select {
		case out <- batch:
			batch = make([]model.Envelope, 0, st.batchSize)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	emit := func(env model.Envelope) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		st.cpMu.Lock()
		if env.Meta.Sequence > st.lastSeq {
			st.lastSeq = env.Meta.Sequence
		}
		st.cpMu.Unlock()
		stats.RecordsOut++
		stats.Succeeded++
		batch = append(batch, env)
		if len(batch) >= st.batchSize {
			return flush()
		}
		return nil
	}

	err := extractor.Extract(ctx, ec, step.Config, emit)
	if err == nil {
		err = flush()
	}

	stats.Duration += time.Since(stepStart)
	if err != nil && !errors.Is(err, context.Canceled) {
		st.runLog.OnStepFailed(step.Key, err)
		st.engine.publish(ctx, st.def, events.Event{
			Type: events.StepFailed, PipelineID: st.pipeline.Code, RunID: st.opts.RunID, StepKey: step.Key,
		})
		return sluiceerrors.NewExecutionError(step.Key, err)
	}
	st.runLog.OnStepComplete(step.Key, stats.RecordsOut, stats.Duration.Milliseconds(), nil)
	return err
}

func (st *runState) extractContext(ctx context.Context, stepKey string) *extract.Context {
	ec := &extract.Context{
		PipelineID: st.pipeline.Code,
		RunID:      st.opts.RunID,
		StepKey:    stepKey,
		Logger:     st.runLog,
		Checkpoint: func() map[string]any {
			st.cpMu.Lock()
			defer st.cpMu.Unlock()
			return st.cursor
		},
		SetCheckpoint: func(state map[string]any) {
			st.cpMu.Lock()
			st.cursor = state
			st.cpMu.Unlock()
		},
		IsCancelled: func() bool {
			return ctx.Err() != nil
		},
	}
	if st.engine.ResolveSecret != nil {
		ec.ResolveSecret = func(code string) (string, error) {
			return st.engine.ResolveSecret(ctx, code)
		}
	}
	if st.engine.ResolveConnection != nil {
		ec.ResolveConnection = func(code string) (map[string]any, error) {
			return st.engine.ResolveConnection(ctx, code)
		}
	}
	return ec
}

// processBatch walks one batch through steps[1:]. Branch steps park
// their matching records at the target index; records parked at a step
// join the flow when the walk reaches it.
func (st *runState) processBatch(ctx context.Context, steps []config.Step, batch []model.Envelope) error {
	return st.walkFrom(ctx, steps, 1, batch)
}

// walkFrom walks a batch through steps[start:]. Replays enter here
// directly at the step that originally failed.
func (st *runState) walkFrom(ctx context.Context, steps []config.Step, start int, batch []model.Envelope) error {
	index := config.StepIndex(steps)
	parked := make(map[int][]model.Envelope)
	current := batch
	failedBefore := st.failedCount()
	skippedBefore := st.recSkipped

	for i := start; i < len(steps); i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		step := steps[i]
		current = append(current, parked[i]...)
		delete(parked, i)
		if len(current) == 0 {
			continue
		}

		stats := st.stats(i)
		stats.RecordsIn += len(current)
		stepStart := time.Now()
		st.runLog.OnStepStart(step.Key, string(step.Type), len(current))

		var err error
		switch step.Type {
		case config.StepTransform:
			current, err = st.runTransform(ctx, step, current, stats)
		case config.StepLoad:
			current, err = st.runLoad(ctx, step, current, stats)
		case config.StepGate:
			err = st.runGate(step, current, stats)
		case config.StepBranch:
			var routed []model.Envelope
			routed, current, err = st.runBranch(step, current, stats)
			if err == nil && len(routed) > 0 {
				parked[index[step.Branch.Target]] = append(parked[index[step.Branch.Target]], routed...)
			}
		case config.StepMerge:
			// Arrivals were appended above; pass through.
			stats.RecordsOut += len(current)
			stats.Succeeded += len(current)
		}

		stats.Duration += time.Since(stepStart)
		st.engine.Metrics.ObserveStep(st.pipeline.Code, string(step.Type), time.Since(stepStart))

		if err != nil {
			if isPause(err) || errors.Is(err, context.Canceled) {
				return err
			}
			st.runLog.OnStepFailed(step.Key, err)
			st.engine.publish(ctx, st.def, events.Event{
				Type: events.StepFailed, PipelineID: st.pipeline.Code, RunID: st.opts.RunID, StepKey: step.Key,
			})
			return err
		}

		st.runLog.OnStepComplete(step.Key, len(current), time.Since(stepStart).Milliseconds(), sampleOf(current))
		st.engine.publish(ctx, st.def, events.Event{
			Type: events.StepCompleted, PipelineID: st.pipeline.Code, RunID: st.opts.RunID, StepKey: step.Key,
		})

		if st.def.Checkpointing.After == "STEP" {
			if err := st.saveCheckpoint(ctx); err != nil {
				return err
			}
		}
	}

	// The batch completed: whatever did not fail or skip on the way
	// through succeeded. Records are counted once here, not per step.
	settled := len(batch) - (st.failedCount() - failedBefore) - (st.recSkipped - skippedBefore)
	if settled > 0 {
		st.recSucceeded += settled
	}
	return nil
}

func (st *runState) runTransform(ctx context.Context, step config.Step, in []model.Envelope, stats *model.StepMetrics) ([]model.Envelope, error) {
	mappings := step.Transform.Mappings
	out := make([]model.Envelope, len(in))
	failed := make([]bool, len(in))

	workers := st.def.ParallelExecution.MaxConcurrent
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range in {
		g.Go(func() error {
			mapped, err := st.evaluator.MapRecord(gctx, in[i], mappings)
			if err != nil {
				failed[i] = true
				st.recordFailure(gctx, model.RecordError{
					StepKey:     step.Key,
					Message:     err.Error(),
					Payload:     in[i].Data,
					Recoverable: sluiceerrors.IsRecoverable(err.Error()),
					Timestamp:   time.Now(),
				})
				return nil
			}
			out[i] = mapped
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Sample the first mapped record's before/after values. Throttling
	// and the persistence-level gate live in the run logger.
	for i := range out {
		if failed[i] {
			continue
		}
		for _, m := range mappings {
			before, _ := in[i].Field(m.From)
			after, _ := out[i].Field(m.To)
			st.runLog.OnTransformMapping(step.Key, m.To, before, after)
		}
		break
	}

	// Compact in input order so downstream ordering is stable.
	kept := out[:0]
	for i := range out {
		if failed[i] {
			stats.Failed++
			continue
		}
		kept = append(kept, out[i])
	}
	stats.RecordsOut += len(kept)
	stats.Succeeded += len(kept)

	if stats.Failed > 0 && st.policy == config.FailFast {
		return kept, sluiceerrors.NewExecutionError(step.Key, fmt.Errorf("transform failed for %d record(s)", stats.Failed))
	}
	return kept, nil
}

func (st *runState) runLoad(ctx context.Context, step config.Step, in []model.Envelope, stats *model.StepMetrics) ([]model.Envelope, error) {
	spec, err := loader.Get(step.Load.EntityType)
	if err != nil {
		return nil, sluiceerrors.NewExecutionError(step.Key, err)
	}

	lc := &loader.Context{Entities: st.engine.Entities, Logger: st.engine.Log, DryRun: st.opts.DryRun}
	opts := loader.Options{
		Operation:      model.Operation(step.Load.Operation),
		SkipDuplicates: step.Load.SkipDuplicates,
		DryRun:         st.opts.DryRun,
		StepKey:        step.Key,
	}

	var tx *loader.Tx
	if step.Load.Rollback && !st.opts.DryRun {
		tx = st.engine.Journal.Begin()
		opts.Tx = tx
	}

	result, err := loader.NewEngine(lc).LoadBatch(ctx, spec, in, opts)
	if err != nil {
		return nil, sluiceerrors.NewExecutionError(step.Key, err)
	}

	stats.RecordsOut += result.Succeeded
	stats.Succeeded += result.Succeeded
	stats.Failed += result.Failed
	stats.Skipped += result.Skipped
	st.recSkipped += result.Skipped
	st.runLog.OnLoadData(step.Key, result)

	for _, recErr := range result.Errors {
		st.recordFailure(ctx, recErr)
	}
	for range result.Succeeded {
		st.engine.Metrics.ObserveRecord(st.pipeline.Code, "succeeded")
	}
	for range result.Failed {
		st.engine.Metrics.ObserveRecord(st.pipeline.Code, "failed")
	}
	for range result.Skipped {
		st.engine.Metrics.ObserveRecord(st.pipeline.Code, "skipped")
	}

	if result.Failed > 0 && st.policy == config.FailFast {
		if tx != nil {
			rolled, rbErr := st.engine.Journal.Rollback(ctx, tx.ID)
			if rbErr != nil {
				st.engine.Log.Error(rbErr, "batch rollback failed")
			}
			st.engine.Metrics.ObserveRollback(rolled.Rolled)
		}
		return nil, sluiceerrors.NewExecutionError(step.Key, fmt.Errorf("load failed for %d record(s)", result.Failed))
	}

	if tx != nil {
		if err := st.engine.Journal.Commit(tx.ID); err != nil {
			st.engine.Log.Error(err, "batch commit failed")
		}
	}

	// Records keep flowing so a downstream branch/merge can see them.
	return in, nil
}

// runGate blocks the run when the gate condition holds for any record
// in the batch. An empty condition always blocks.
func (st *runState) runGate(step config.Step, in []model.Envelope, stats *model.StepMetrics) error {
	condition := ""
	if step.Gate != nil {
		condition = step.Gate.Condition
	}

	blocked := condition == ""
	if !blocked {
		for i := range in {
			match, err := transform.EvalPredicate(condition, nil, &in[i])
			if err != nil {
				return sluiceerrors.NewExecutionError(step.Key, err)
			}
			if match {
				blocked = true
				break
			}
		}
	}

	if blocked {
		return pauseSignal{stepKey: step.Key}
	}
	stats.RecordsOut += len(in)
	stats.Succeeded += len(in)
	return nil
}

func (st *runState) runBranch(step config.Step, in []model.Envelope, stats *model.StepMetrics) (routed, rest []model.Envelope, err error) {
	for i := range in {
		match, evalErr := transform.EvalPredicate(step.Branch.Predicate, nil, &in[i])
		if evalErr != nil {
			return nil, nil, sluiceerrors.NewExecutionError(step.Key, evalErr)
		}
		if match {
			routed = append(routed, in[i])
		} else {
			rest = append(rest, in[i])
		}
	}
	stats.RecordsOut += len(in)
	stats.Succeeded += len(in)
	return routed, rest, nil
}

// recordFailure journals one failed record and folds it into the
// summary's bounded error list. Safe for concurrent use.
func (st *runState) recordFailure(ctx context.Context, recErr model.RecordError) {
	recErr.RunID = st.opts.RunID
	if st.engine.Store != nil {
		if err := st.engine.Store.AppendError(ctx, &recErr); err != nil {
			st.engine.Log.Error(err, "error journal append failed")
		}
	}

	st.failMu.Lock()
	st.recFailed++
	if len(st.summary.Errors) < st.maxErrors {
		st.summary.Errors = append(st.summary.Errors, recErr)
	}
	st.failMu.Unlock()
	st.engine.publish(ctx, st.def, events.Event{
		Type: events.RecordFailed, PipelineID: st.pipeline.Code, RunID: st.opts.RunID, StepKey: recErr.StepKey,
		Payload: map[string]any{"message": recErr.Message, "code": recErr.Code},
	})
}

// stats returns the pre-allocated counters for a step index. The map is
// fully populated before the producer and consumer goroutines start, so
// concurrent lookups never write to it.
func (st *runState) stats(i int) *model.StepMetrics {
	return st.stepStats[i]
}

// finish resolves the record-level aggregates and the terminal status
// and persists the run row. Step details keep their per-visit counters;
// the run totals count each record's single disposition.
func (st *runState) finish(ctx context.Context, runErr error, elapsed time.Duration) {
	for i := 0; i < len(st.def.Steps); i++ {
		st.summary.Details = append(st.summary.Details, *st.stepStats[i])
	}
	st.summary.Totals(st.recSucceeded, st.failedCount(), st.recSkipped)
	st.summary.Duration = elapsed

	// finish must persist even when the run context was cancelled.
	ctx = context.WithoutCancel(ctx)

	var pause pauseSignal
	switch {
	case errors.As(runErr, &pause):
		st.summary.Status = model.RunPaused
		st.summary.Paused = true
		st.summary.PausedAtStep = pause.stepKey
		st.runRow.PausedAtStep = pause.stepKey
		_ = st.saveCheckpoint(ctx)
	case errors.Is(runErr, context.Canceled):
		st.summary.Status = model.RunCancelled
	case runErr != nil:
		st.summary.Status = model.RunFailed
	default:
		st.summary.Status = model.RunCompleted
		if err := st.clearCheckpoint(ctx); err != nil {
			st.engine.Log.Error(err, "checkpoint clear failed")
		}
	}

	now := time.Now().UTC()
	st.runRow.Status = st.summary.Status
	st.runRow.FinishedAt = &now
	st.runRow.Processed = st.summary.Processed
	st.runRow.Succeeded = st.summary.Succeeded
	st.runRow.Failed = st.summary.Failed
	st.runRow.Skipped = st.summary.Skipped
	if err := st.saveRun(ctx); err != nil {
		st.engine.Log.Error(err, "run persistence failed")
	}

	st.engine.Metrics.ObserveRun(st.pipeline.Code, string(st.summary.Status))

	switch st.summary.Status {
	case model.RunCompleted:
		st.engine.publish(ctx, st.def, events.Event{
			Type: events.PipelineCompleted, PipelineID: st.pipeline.Code, RunID: st.opts.RunID,
			Payload: map[string]any{"processed": st.summary.Processed, "failed": st.summary.Failed},
		})
	case model.RunFailed:
		st.engine.publish(ctx, st.def, events.Event{
			Type: events.PipelineFailed, PipelineID: st.pipeline.Code, RunID: st.opts.RunID,
			Payload: map[string]any{"error": errString(runErr)},
		})
	}
	// A paused run publishes neither completion nor failure; it is
	// still in flight.
}

func (st *runState) loadCheckpoint(ctx context.Context) error {
	if st.engine.Store == nil {
		return nil
	}
	cp, err := st.engine.Store.Load(ctx, st.pipeline.Code)
	if err != nil {
		return err
	}
	if cp != nil {
		st.cpMu.Lock()
		st.cursor = cp.State
		st.lastSeq = cp.Sequence
		st.cpMu.Unlock()
	}
	return nil
}

func (st *runState) clearCheckpoint(ctx context.Context) error {
	if st.engine.Store == nil {
		return nil
	}
	return st.engine.Store.Clear(ctx, st.pipeline.Code)
}

func (st *runState) saveCheckpoint(ctx context.Context) error {
	if st.engine.Store == nil {
		return nil
	}
	st.cpMu.Lock()
	cursor := st.cursor
	lastSeq := st.lastSeq
	st.cpMu.Unlock()
	if cursor == nil {
		return nil
	}
	return st.engine.Store.Save(ctx, checkpoint.Checkpoint{
		PipelineID: st.pipeline.Code,
		RunID:      st.opts.RunID,
		Sequence:   lastSeq,
		State:      cursor,
	})
}

func (st *runState) failedCount() int {
	st.failMu.Lock()
	defer st.failMu.Unlock()
	return st.recFailed
}

func (st *runState) saveRun(ctx context.Context) error {
	if st.engine.Store == nil {
		return nil
	}
	return st.engine.Store.SaveRun(ctx, st.runRow)
}

func isPause(err error) bool {
	var p pauseSignal
	return errors.As(err, &p)
}

func sampleOf(batch []model.Envelope) any {
	if len(batch) == 0 {
		return nil
	}
	return batch[0].Data
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
