package model

import "time"

// RecordError captures one failed record with enough payload to replay it.
type RecordError struct {
	ID          string         `json:"id,omitempty" db:"id"`
	RunID       string         `json:"runId,omitempty" db:"run_id"`
	StepKey     string         `json:"stepKey" db:"step_key"`
	Message     string         `json:"message" db:"message"`
	Code        string         `json:"code,omitempty" db:"code"`
	Payload     map[string]any `json:"payload,omitempty" db:"-"`
	Recoverable bool           `json:"recoverable" db:"recoverable"`
	Timestamp   time.Time      `json:"timestamp" db:"created_at"`
}

// RetryAudit is the immutable trail of one user-initiated replay of a
// journaled record error. Append-only; never updated in place.
type RetryAudit struct {
	ID               string         `json:"id" db:"id"`
	ErrorID          string         `json:"errorId" db:"error_id"`
	UserID           string         `json:"userId,omitempty" db:"user_id"`
	PreviousPayload  map[string]any `json:"previousPayload" db:"-"`
	Patch            map[string]any `json:"patch,omitempty" db:"-"`
	ResultingPayload map[string]any `json:"resultingPayload" db:"-"`
	CreatedAt        time.Time      `json:"createdAt" db:"created_at"`
}
