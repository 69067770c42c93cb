package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnvelopeField(t *testing.T) {
	t.Parallel()

	env := NewEnvelope(map[string]any{
		"sku": "SHOE-1",
		"dimensions": map[string]any{
			"width": 12,
		},
	}, 7)

	v, ok := env.Field("sku")
	require.True(t, ok)
	require.Equal(t, "SHOE-1", v)

	v, ok = env.Field("dimensions.width")
	require.True(t, ok)
	require.Equal(t, 12, v)

	_, ok = env.Field("dimensions.height")
	require.False(t, ok)

	_, ok = env.Field("missing")
	require.False(t, ok)

	_, ok = env.Field("sku.nested")
	require.False(t, ok)
}

func TestEnvelopeClone(t *testing.T) {
	t.Parallel()

	env := NewEnvelope(map[string]any{"sku": "SHOE-1"}, 3)
	clone := env.Clone()
	clone.Data["sku"] = "CHANGED"
	clone.Data["extra"] = true

	require.Equal(t, "SHOE-1", env.Data["sku"])
	require.NotContains(t, env.Data, "extra")
	require.EqualValues(t, 3, clone.Meta.Sequence)
}

func TestNewEnvelopeNilData(t *testing.T) {
	t.Parallel()

	env := NewEnvelope(nil, 0)
	require.NotNil(t, env.Data)
}

func TestStepMetricsProcessedInvariant(t *testing.T) {
	t.Parallel()

	m := StepMetrics{Succeeded: 7, Failed: 2, Skipped: 1}
	require.Equal(t, 10, m.Processed())
}

func TestRunSummaryTotals(t *testing.T) {
	t.Parallel()

	// Ten records extracted: eight landed, one failed, one was skipped.
	// The aggregate counts each record once, however many steps it
	// passed through.
	s := &RunSummary{RunID: "r1", Status: RunRunning}
	s.Details = append(s.Details,
		StepMetrics{StepKey: "fetch", StepType: "EXTRACT", Succeeded: 10},
		StepMetrics{StepKey: "store", StepType: "LOAD", Succeeded: 8, Failed: 1, Skipped: 1},
	)
	s.Totals(8, 1, 1)

	require.Equal(t, 10, s.Processed)
	require.Equal(t, 8, s.Succeeded)
	require.Equal(t, 1, s.Failed)
	require.Equal(t, 1, s.Skipped)
	require.Equal(t, s.Processed, s.Succeeded+s.Failed+s.Skipped)
	require.Len(t, s.Details, 2)
	require.Equal(t, "fetch", s.Details[0].StepKey)
}

func TestLoadResultAdd(t *testing.T) {
	t.Parallel()

	r := &LoadResult{Created: 1, Succeeded: 1}
	r.Add(LoadResult{
		Updated: 2, Succeeded: 2, Failed: 1,
		Errors:      []RecordError{{StepKey: "store", Message: "boom", Timestamp: time.Now()}},
		AffectedIDs: []string{"5"},
	})

	require.Equal(t, 3, r.Succeeded)
	require.Equal(t, 1, r.Created)
	require.Equal(t, 2, r.Updated)
	require.Equal(t, 1, r.Failed)
	require.Len(t, r.Errors, 1)
	require.Equal(t, []string{"5"}, r.AffectedIDs)
}

func TestValidationResultHelpers(t *testing.T) {
	t.Parallel()

	ok := ValidOK()
	require.True(t, ok.Valid)
	require.Empty(t, ok.Errors)

	bad := Invalid("sku", "missing required field", "MISSING_FIELD")
	require.False(t, bad.Valid)
	require.Len(t, bad.Errors, 1)
	require.Equal(t, "sku", bad.Errors[0].Field)
	require.Equal(t, "MISSING_FIELD", bad.Errors[0].Code)
}
