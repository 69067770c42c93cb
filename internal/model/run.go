package model

import "time"

// RunStatus tracks the lifecycle of a pipeline run.
type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunPaused    RunStatus = "PAUSED"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
	RunCancelled RunStatus = "CANCELLED"
)

// Run is one invocation of a pipeline.
type Run struct {
	ID           string     `json:"id" db:"id"`
	PipelineID   string     `json:"pipelineId" db:"pipeline_id"`
	Status       RunStatus  `json:"status" db:"status"`
	StartedAt    time.Time  `json:"startedAt" db:"started_at"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty" db:"finished_at"`
	Processed    int        `json:"processed" db:"processed"`
	Succeeded    int        `json:"succeeded" db:"succeeded"`
	Failed       int        `json:"failed" db:"failed"`
	Skipped      int        `json:"skipped" db:"skipped"`
	PausedAtStep string     `json:"pausedAtStep,omitempty" db:"paused_at_step"`
}

// StepMetrics aggregates counters for one executed step.
type StepMetrics struct {
	StepKey    string        `json:"stepKey"`
	StepType   string        `json:"stepType"`
	RecordsIn  int           `json:"recordsIn"`
	RecordsOut int           `json:"recordsOut"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Duration   time.Duration `json:"duration"`
}

// Processed returns the step's processed total. The invariant
// processed = succeeded + failed + skipped holds at every step.
func (m StepMetrics) Processed() int {
	return m.Succeeded + m.Failed + m.Skipped
}

// RunSummary is the caller-facing outcome of Execute.
type RunSummary struct {
	RunID        string        `json:"runId"`
	Status       RunStatus     `json:"status"`
	Processed    int           `json:"processed"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	Details      []StepMetrics `json:"details"`
	Errors       []RecordError `json:"errors,omitempty"`
	Paused       bool          `json:"paused,omitempty"`
	PausedAtStep string        `json:"pausedAtStep,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Totals sets the record-level aggregates. Each counter is the number
// of records that settled with that disposition, so
// processed = succeeded + failed + skipped holds by construction.
func (s *RunSummary) Totals(succeeded, failed, skipped int) {
	s.Succeeded = succeeded
	s.Failed = failed
	s.Skipped = skipped
	s.Processed = succeeded + failed + skipped
}
