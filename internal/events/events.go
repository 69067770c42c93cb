// Package events publishes run lifecycle notifications. Delivery is
// best-effort: a failing publisher never affects the run outcome.
package events

import (
	"time"

	"github.com/sluicehq/sluice/internal/logger"
)

// Type enumerates the published lifecycle events.
type Type string

const (
	PipelineStarted   Type = "PIPELINE_STARTED"
	PipelineCompleted Type = "PIPELINE_COMPLETED"
	PipelineFailed    Type = "PIPELINE_FAILED"
	StepCompleted     Type = "STEP_COMPLETED"
	StepFailed        Type = "STEP_FAILED"
	RecordFailed      Type = "RECORD_FAILED"
)

// Event is one lifecycle notification.
type Event struct {
	Type       Type           `json:"type"`
	PipelineID string         `json:"pipelineId"`
	RunID      string         `json:"runId"`
	StepKey    string         `json:"stepKey,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Publisher receives lifecycle events. Implementations must not block
// and must not panic; the runtime ignores their failures.
type Publisher interface {
	Publish(Event)
}

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	log *logger.Logger
}

// NewLogPublisher returns a publisher backed by the given logger.
func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ev Event) {
	if p.log == nil {
		return
	}
	fields := map[string]any{
		"event":       string(ev.Type),
		"pipeline_id": ev.PipelineID,
		"run_id":      ev.RunID,
	}
	if ev.StepKey != "" {
		fields["step_key"] = ev.StepKey
	}
	for k, v := range ev.Payload {
		fields[k] = v
	}
	p.log.WithFields(fields).Info("pipeline event")
}

// Multi fans one event out to several publishers, recovering from any
// publisher panic.
type Multi []Publisher

func (m Multi) Publish(ev Event) {
	for _, p := range m {
		if p == nil {
			continue
		}
		func() {
			defer func() { _ = recover() }()
			p.Publish(ev)
		}()
	}
}
