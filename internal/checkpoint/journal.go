package checkpoint

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/sluicehq/sluice/internal/model"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

type recordErrorRow struct {
	ID          string    `db:"id"`
	RunID       string    `db:"run_id"`
	StepKey     string    `db:"step_key"`
	Message     string    `db:"message"`
	Code        string    `db:"code"`
	Payload     string    `db:"payload"`
	Recoverable bool      `db:"recoverable"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r recordErrorRow) toModel() (model.RecordError, error) {
	out := model.RecordError{
		ID:          r.ID,
		RunID:       r.RunID,
		StepKey:     r.StepKey,
		Message:     r.Message,
		Code:        r.Code,
		Recoverable: r.Recoverable,
		Timestamp:   r.CreatedAt,
	}
	if r.Payload != "" && r.Payload != "{}" {
		if err := json.Unmarshal([]byte(r.Payload), &out.Payload); err != nil {
			return out, sluiceerrors.NewJournalError("", err)
		}
	}
	return out, nil
}

// AppendError journals a failed record with its payload so it can be
// inspected and replayed later. Assigns the error an id when missing.
func (s *Store) AppendError(ctx context.Context, recErr *model.RecordError) error {
	if recErr.ID == "" {
		recErr.ID = uuid.NewString()
	}
	if recErr.Timestamp.IsZero() {
		recErr.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(recErr.Payload)
	if err != nil {
		return sluiceerrors.NewJournalError("", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO record_errors (id, run_id, step_key, message, code, payload, recoverable, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		recErr.ID, recErr.RunID, recErr.StepKey, recErr.Message, recErr.Code,
		string(payload), recErr.Recoverable, recErr.Timestamp)
	if err != nil {
		return sluiceerrors.NewJournalError("", err)
	}
	return nil
}

// GetError fetches one journaled error by id, or nil when missing.
func (s *Store) GetError(ctx context.Context, errorID string) (*model.RecordError, error) {
	var row recordErrorRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, run_id, step_key, message, code, payload, recoverable, created_at
		FROM record_errors WHERE id = ?`, errorID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, sluiceerrors.NewJournalError("", err)
	}
	out, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListErrors returns all journaled errors for a run in insertion order.
func (s *Store) ListErrors(ctx context.Context, runID string) ([]model.RecordError, error) {
	var rows []recordErrorRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, run_id, step_key, message, code, payload, recoverable, created_at
		FROM record_errors WHERE run_id = ? ORDER BY created_at, id`, runID)
	if err != nil {
		return nil, sluiceerrors.NewJournalError("", err)
	}

	out := make([]model.RecordError, 0, len(rows))
	for _, row := range rows {
		m, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// AppendRetryAudit records one replay attempt against a journaled
// error. The trail is append-only.
func (s *Store) AppendRetryAudit(ctx context.Context, audit *model.RetryAudit) error {
	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}

	previous, err := json.Marshal(audit.PreviousPayload)
	if err != nil {
		return sluiceerrors.NewJournalError("", err)
	}
	patch, err := json.Marshal(audit.Patch)
	if err != nil {
		return sluiceerrors.NewJournalError("", err)
	}
	resulting, err := json.Marshal(audit.ResultingPayload)
	if err != nil {
		return sluiceerrors.NewJournalError("", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO retry_audits (id, error_id, user_id, previous_payload, patch, resulting_payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		audit.ID, audit.ErrorID, audit.UserID, string(previous), string(patch),
		string(resulting), audit.CreatedAt)
	if err != nil {
		return sluiceerrors.NewJournalError("", err)
	}
	return nil
}

// ListRetryAudits returns the audit trail for one journaled error,
// oldest first.
func (s *Store) ListRetryAudits(ctx context.Context, errorID string) ([]model.RetryAudit, error) {
	type auditRow struct {
		ID               string    `db:"id"`
		ErrorID          string    `db:"error_id"`
		UserID           string    `db:"user_id"`
		PreviousPayload  string    `db:"previous_payload"`
		Patch            string    `db:"patch"`
		ResultingPayload string    `db:"resulting_payload"`
		CreatedAt        time.Time `db:"created_at"`
	}

	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, error_id, user_id, previous_payload, patch, resulting_payload, created_at
		FROM retry_audits WHERE error_id = ? ORDER BY created_at, id`, errorID)
	if err != nil {
		return nil, sluiceerrors.NewJournalError("", err)
	}

	out := make([]model.RetryAudit, 0, len(rows))
	for _, row := range rows {
		audit := model.RetryAudit{
			ID:        row.ID,
			ErrorID:   row.ErrorID,
			UserID:    row.UserID,
			CreatedAt: row.CreatedAt,
		}
		for _, pair := range []struct {
			raw  string
			dest *map[string]any
		}{
			{row.PreviousPayload, &audit.PreviousPayload},
			{row.Patch, &audit.Patch},
			{row.ResultingPayload, &audit.ResultingPayload},
		} {
			if pair.raw == "" || pair.raw == "null" {
				continue
			}
			if err := json.Unmarshal([]byte(pair.raw), pair.dest); err != nil {
				return nil, sluiceerrors.NewJournalError("", err)
			}
		}
		out = append(out, audit)
	}
	return out, nil
}
