package checkpoint

import (
	"context"

	"github.com/sluicehq/sluice/internal/model"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

// SaveRun upserts a run row. Called on start, pause, and completion.
func (s *Store) SaveRun(ctx context.Context, run *model.Run) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO runs (id, pipeline_id, status, started_at, finished_at,
			processed, succeeded, failed, skipped, paused_at_step)
		VALUES (:id, :pipeline_id, :status, :started_at, :finished_at,
			:processed, :succeeded, :failed, :skipped, :paused_at_step)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			finished_at = excluded.finished_at,
			processed = excluded.processed,
			succeeded = excluded.succeeded,
			failed = excluded.failed,
			skipped = excluded.skipped,
			paused_at_step = excluded.paused_at_step`,
		run)
	if err != nil {
		return sluiceerrors.NewJournalError("", err)
	}
	return nil
}

// GetRun fetches one run by id, or nil when it does not exist.
func (s *Store) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var run model.Run
	err := s.db.GetContext(ctx, &run,
		`SELECT id, pipeline_id, status, started_at, finished_at,
			processed, succeeded, failed, skipped, paused_at_step
		FROM runs WHERE id = ?`, runID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, sluiceerrors.NewJournalError("", err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs for a pipeline, newest first.
func (s *Store) ListRuns(ctx context.Context, pipelineID string, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []model.Run
	err := s.db.SelectContext(ctx, &runs,
		`SELECT id, pipeline_id, status, started_at, finished_at,
			processed, succeeded, failed, skipped, paused_at_step
		FROM runs WHERE pipeline_id = ?
		ORDER BY started_at DESC LIMIT ?`, pipelineID, limit)
	if err != nil {
		return nil, sluiceerrors.NewJournalError("", err)
	}
	return runs, nil
}
