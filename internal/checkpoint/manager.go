package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

// Checkpoint is the resumable position of a pipeline. One row per
// pipeline; a new Save replaces the previous position atomically.
type Checkpoint struct {
	PipelineID string         `db:"pipeline_id"`
	RunID      string         `db:"run_id"`
	Sequence   int64          `db:"sequence"`
	State      map[string]any `db:"-"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

type checkpointRow struct {
	PipelineID string    `db:"pipeline_id"`
	RunID      string    `db:"run_id"`
	Sequence   int64     `db:"sequence"`
	State      string    `db:"state"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Load returns the saved checkpoint for a pipeline, or nil when none
// exists.
func (s *Store) Load(ctx context.Context, pipelineID string) (*Checkpoint, error) {
	var row checkpointRow
	err := s.db.GetContext(ctx, &row,
		`SELECT pipeline_id, run_id, sequence, state, updated_at FROM checkpoints WHERE pipeline_id = ?`,
		pipelineID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, sluiceerrors.NewJournalError("", err)
	}

	cp := &Checkpoint{
		PipelineID: row.PipelineID,
		RunID:      row.RunID,
		Sequence:   row.Sequence,
		UpdatedAt:  row.UpdatedAt,
	}
	if row.State != "" {
		if err := json.Unmarshal([]byte(row.State), &cp.State); err != nil {
			return nil, sluiceerrors.NewJournalError("", err)
		}
	}
	return cp, nil
}

// Save upserts the checkpoint. Within a single run the sequence only
// moves forward; a stale write is dropped silently so concurrent batch
// commits cannot rewind the position. A new run always takes over the
// row.
func (s *Store) Save(ctx context.Context, cp Checkpoint) error {
	state, err := json.Marshal(cp.State)
	if err != nil {
		return sluiceerrors.NewJournalError("", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (pipeline_id, run_id, sequence, state, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(pipeline_id) DO UPDATE SET
			run_id = excluded.run_id,
			sequence = excluded.sequence,
			state = excluded.state,
			updated_at = excluded.updated_at
		WHERE checkpoints.run_id != excluded.run_id
			OR excluded.sequence >= checkpoints.sequence`,
		cp.PipelineID, cp.RunID, cp.Sequence, string(state), time.Now().UTC())
	if err != nil {
		return sluiceerrors.NewJournalError("", err)
	}
	return nil
}

// Clear removes the checkpoint after a run completes so the next run
// starts from the beginning.
func (s *Store) Clear(ctx context.Context, pipelineID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE pipeline_id = ?`, pipelineID); err != nil {
		return sluiceerrors.NewJournalError("", err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
