package extract

import (
	"context"
	"fmt"

	"github.com/sluicehq/sluice/internal/model"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

// inlineExtractor emits records embedded directly in the step config.
// The replay service and tests use it to feed fixed payloads into a run.
type inlineExtractor struct{}

func newInlineExtractor() *inlineExtractor { return &inlineExtractor{} }

func (i *inlineExtractor) Code() string     { return "inline" }
func (i *inlineExtractor) Category() string { return "static" }

func (i *inlineExtractor) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"records"},
		"properties": map[string]any{
			"records": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "object"},
			},
		},
	}
}

func (i *inlineExtractor) Validate(cfg map[string]any) error {
	if _, err := inlineRecords(cfg); err != nil {
		return err
	}
	return nil
}

func (i *inlineExtractor) Extract(_ context.Context, ec *Context, cfg map[string]any, emit EmitFunc) error {
	records, err := inlineRecords(cfg)
	if err != nil {
		return err
	}
	for seq, record := range records {
		if ec.IsCancelled() {
			return context.Canceled
		}
		if err := emit(model.NewEnvelope(record, int64(seq))); err != nil {
			return err
		}
	}
	return nil
}

func (i *inlineExtractor) ExtractAll(_ context.Context, _ *Context, cfg map[string]any) ([]model.Envelope, error) {
	records, err := inlineRecords(cfg)
	if err != nil {
		return nil, err
	}
	out := make([]model.Envelope, len(records))
	for seq, record := range records {
		out[seq] = model.NewEnvelope(record, int64(seq))
	}
	return out, nil
}

func inlineRecords(cfg map[string]any) ([]map[string]any, error) {
	raw, ok := cfg["records"].([]any)
	if !ok {
		// Replay injects already-typed payloads.
		if typed, ok := cfg["records"].([]map[string]any); ok {
			return typed, nil
		}
		return nil, sluiceerrors.NewValidationError("records", "records array is required", nil)
	}
	out := make([]map[string]any, 0, len(raw))
	for idx, item := range raw {
		record, ok := item.(map[string]any)
		if !ok {
			return nil, sluiceerrors.NewValidationError("records",
				fmt.Sprintf("record %d is not an object", idx), nil)
		}
		out = append(out, record)
	}
	return out, nil
}
