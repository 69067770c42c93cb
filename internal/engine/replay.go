package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/model"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

// ReplayRequest re-runs journaled record errors through the pipeline,
// starting at the step that originally failed. Patch fields overlay the
// journaled payload before the replay; every attempt leaves a retry
// audit row.
type ReplayRequest struct {
	ErrorIDs []string
	Patch    map[string]any
	UserID   string
	DryRun   bool
}

// Replay resolves each journaled error, applies the patch and walks the
// patched records through the remaining steps. Records that fail again
// are journaled as new errors; the originals stay untouched.
func (e *Engine) Replay(ctx context.Context, pipeline *config.Pipeline, req ReplayRequest) (*model.RunSummary, error) {
	if e.Store == nil {
		return nil, sluiceerrors.NewJournalError("", fmt.Errorf("replay requires a durable store"))
	}
	if pipeline == nil {
		return nil, sluiceerrors.NewValidationError("pipeline", "pipeline is nil", nil)
	}
	if err := config.ValidatePipeline(pipeline); err != nil {
		return nil, err
	}
	if len(req.ErrorIDs) == 0 {
		return nil, sluiceerrors.NewValidationError("errorIds", "no errors to replay", nil)
	}

	steps := pipeline.Definition.Steps
	index := config.StepIndex(steps)

	opts := Options{RunID: uuid.NewString(), DryRun: req.DryRun}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.track(opts.RunID, cancel)
	defer e.untrack(opts.RunID)

	st := newRunState(e, pipeline, opts)
	start := time.Now()
	if err := st.saveRun(runCtx); err != nil {
		return nil, err
	}

	// Group the patched payloads by the step they re-enter at, keeping
	// journal order within each group.
	groups := make(map[string][]model.Envelope)
	order := make([]string, 0, len(req.ErrorIDs))
	for _, errorID := range req.ErrorIDs {
		recErr, err := e.Store.GetError(runCtx, errorID)
		if err != nil {
			return nil, err
		}
		if recErr == nil {
			return nil, sluiceerrors.NewJournalError("", fmt.Errorf("unknown error id %q", errorID))
		}
		if _, ok := index[recErr.StepKey]; !ok {
			return nil, sluiceerrors.NewValidationError("errorIds",
				fmt.Sprintf("error %s references step %q which is not in this pipeline", errorID, recErr.StepKey), nil)
		}

		patched := applyPatch(recErr.Payload, req.Patch)

		if err := e.Store.AppendRetryAudit(runCtx, &model.RetryAudit{
			ErrorID:          errorID,
			UserID:           req.UserID,
			PreviousPayload:  recErr.Payload,
			Patch:            req.Patch,
			ResultingPayload: patched,
		}); err != nil {
			return nil, err
		}

		if _, seen := groups[recErr.StepKey]; !seen {
			order = append(order, recErr.StepKey)
		}
		groups[recErr.StepKey] = append(groups[recErr.StepKey], model.NewEnvelope(patched, 0))
	}

	var runErr error
	for _, stepKey := range order {
		if err := st.walkFrom(runCtx, steps, index[stepKey], groups[stepKey]); err != nil {
			runErr = err
			break
		}
	}

	st.finish(runCtx, runErr, time.Since(start))
	if runErr != nil && !isPause(runErr) && !errors.Is(runErr, context.Canceled) {
		return st.summary, runErr
	}
	return st.summary, nil
}

// applyPatch overlays patch fields onto the journaled payload without
// mutating either input.
func applyPatch(payload, patch map[string]any) map[string]any {
	out := make(map[string]any, len(payload)+len(patch))
	for k, v := range payload {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
