package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseErrorWrapsUnderlying(t *testing.T) {
	t.Parallel()

	underlying := fmt.Errorf("unexpected token")
	err := NewParseError("pipeline.yaml", 12, underlying)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, "pipeline.yaml", parseErr.Path)
	require.Equal(t, 12, parseErr.Line)
	require.True(t, stdErrors.Is(err, underlying))
	require.Contains(t, err.Error(), "pipeline.yaml:12")
}

func TestValidationErrorCarriesField(t *testing.T) {
	t.Parallel()

	err := NewValidationError("definition.steps[1].key", "duplicate step key", nil)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "definition.steps[1].key", validationErr.Field)
	require.Contains(t, err.Error(), "duplicate step key")
}

func TestExecutionErrorIncludesStepContext(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("load failed for 2 record(s)")
	err := NewExecutionError("store", underlying)

	var executionErr *ExecutionError
	require.ErrorAs(t, err, &executionErr)
	require.Equal(t, "store", executionErr.StepKey)
	require.True(t, stdErrors.Is(err, underlying))
	require.Contains(t, err.Error(), "step store")
}

func TestAdapterErrorIncludesAdapterCode(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("no extractor registered")
	err := NewAdapterError("sftp", underlying)

	var adapterErr *AdapterError
	require.ErrorAs(t, err, &adapterErr)
	require.Equal(t, "sftp", adapterErr.Adapter)
	require.True(t, stdErrors.Is(err, underlying))
}

func TestJournalErrorIncludesTx(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("transaction already rolled back")
	err := NewJournalError("tx-42", underlying)

	var journalErr *JournalError
	require.ErrorAs(t, err, &journalErr)
	require.Equal(t, "tx-42", journalErr.TxID)
	require.Contains(t, err.Error(), "tx-42")
}

func TestIsRecoverable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		message string
		want    bool
	}{
		{"connection refused by upstream", true},
		{"dial tcp: i/o timeout", true},
		{"service temporarily unavailable", true},
		{"Connection reset by peer", true},
		{"zone \"atlantis\" not found", false},
		{"missing required field sku", false},
		{"", false},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, IsRecoverable(tc.message), "message: %q", tc.message)
	}
}
