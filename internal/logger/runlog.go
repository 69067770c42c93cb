package logger

import (
	"fmt"
	"sync"
)

// PersistenceLevel controls how much per-record detail a run emits.
type PersistenceLevel string

const (
	LevelErrorOnly PersistenceLevel = "ERROR_ONLY"
	LevelPipeline  PersistenceLevel = "PIPELINE"
	LevelStep      PersistenceLevel = "STEP"
	LevelDebug     PersistenceLevel = "DEBUG"
)

func (p PersistenceLevel) rank() int {
	switch p {
	case LevelErrorOnly:
		return 0
	case LevelPipeline:
		return 1
	case LevelStep:
		return 2
	case LevelDebug:
		return 3
	default:
		return 1
	}
}

// allows reports whether entries at the required level should be emitted.
func (p PersistenceLevel) allows(required PersistenceLevel) bool {
	return p.rank() >= required.rank()
}

// RunLogger carries pipeline/run identity and exposes the step lifecycle
// callbacks the orchestrator hands to adapters. Record samples are
// throttled by the run's persistence level.
type RunLogger struct {
	base  *Logger
	level PersistenceLevel

	// sampleMu guards sampleSeen; extract and load callbacks fire from
	// different goroutines.
	sampleMu   sync.Mutex
	sampleSeen map[string]int
	sampleCap  int
}

// NewRunLogger derives a RunLogger for one pipeline run.
func NewRunLogger(base *Logger, pipelineID, runID string, level PersistenceLevel) *RunLogger {
	if base == nil {
		base = NewNop()
	}
	if level == "" {
		level = LevelPipeline
	}
	return &RunLogger{
		base:       base.WithFields(map[string]any{"pipeline": pipelineID, "run": runID}),
		level:      level,
		sampleSeen: make(map[string]int),
		sampleCap:  3,
	}
}

// Base returns the underlying field-scoped logger.
func (r *RunLogger) Base() *Logger {
	if r == nil {
		return nil
	}
	return r.base
}

// OnStepStart records that a step began with the given inbound record count.
func (r *RunLogger) OnStepStart(stepKey, stepType string, recordsIn int) {
	if r == nil || !r.level.allows(LevelStep) {
		return
	}
	r.base.WithFields(map[string]any{"step": stepKey, "type": stepType, "records_in": recordsIn}).Info("step started")
}

// OnStepComplete records step counters, duration and one sample output record.
func (r *RunLogger) OnStepComplete(stepKey string, recordsOut int, durationMs int64, sample any) {
	if r == nil || !r.level.allows(LevelStep) {
		return
	}
	fields := map[string]any{"step": stepKey, "records_out": recordsOut, "duration_ms": durationMs}
	if sample != nil && r.level.allows(LevelDebug) {
		fields["sample"] = sample
	}
	r.base.WithFields(fields).Info("step completed")
}

// OnStepFailed records a step failure. Always emitted regardless of level.
func (r *RunLogger) OnStepFailed(stepKey string, err error) {
	if r == nil {
		return
	}
	r.base.WithFields(map[string]any{"step": stepKey}).Error(err, "step failed")
}

// OnExtractData logs a throttled sample of extracted records.
func (r *RunLogger) OnExtractData(stepKey string, count int, sample any) {
	r.sampled("extract", stepKey, map[string]any{"count": count}, sample)
}

// OnLoadData logs a throttled sample of a load result.
func (r *RunLogger) OnLoadData(stepKey string, result any) {
	r.sampled("load", stepKey, nil, result)
}

// OnTransformMapping logs a throttled before/after pair for one field mapping.
func (r *RunLogger) OnTransformMapping(stepKey, field string, before, after any) {
	r.sampled("transform", stepKey, map[string]any{"field": field, "before": before}, after)
}

func (r *RunLogger) sampled(kind, stepKey string, fields map[string]any, sample any) {
	if r == nil || !r.level.allows(LevelDebug) {
		return
	}
	key := fmt.Sprintf("%s/%s", kind, stepKey)
	r.sampleMu.Lock()
	if r.sampleSeen[key] >= r.sampleCap {
		r.sampleMu.Unlock()
		return
	}
	r.sampleSeen[key]++
	r.sampleMu.Unlock()

	out := map[string]any{"step": stepKey}
	for k, v := range fields {
		out[k] = v
	}
	if sample != nil {
		out["sample"] = sample
	}
	r.base.WithFields(out).Debug(kind + " sample")
}
