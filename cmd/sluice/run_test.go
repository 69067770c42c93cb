package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/sluicehq/sluice/internal/logger"
	"github.com/sluicehq/sluice/internal/model"
)

func TestMain(m *testing.M) {
	if err := registerBuiltins(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func writePipelineFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestRunPipelineExitCodes(t *testing.T) {
	t.Parallel()

	t.Run("rejected adapter config exits config-invalid", func(t *testing.T) {
		t.Parallel()
		// timeoutMs violates the http adapter's schema, which the
		// engine checks before the run starts.
		path := writePipelineFile(t, `code: bad-config
name: Bad Config
enabled: true
definition:
  steps:
    - key: fetch
      type: EXTRACT
      adapterCode: http
      config:
        url: https://example.com/items
        timeoutMs: soon
    - key: store
      type: LOAD
      config:
        entityType: product
        operation: CREATE
`)
		root := &rootFlags{storePath: filepath.Join(t.TempDir(), "state.db")}

		err := runPipeline(root, runOptions{PipelinePath: path}, logger.NewNop())
		var exit *exitError
		require.ErrorAs(t, err, &exit)
		require.Equal(t, exitConfigInvalid, exit.code)
	})

	t.Run("failed run exits run-failed", func(t *testing.T) {
		t.Parallel()
		path := writePipelineFile(t, `code: missing-sku
name: Missing SKU
enabled: true
definition:
  steps:
    - key: fetch
      type: EXTRACT
      adapterCode: inline
      config:
        records:
          - name: No SKU
    - key: store
      type: LOAD
      config:
        entityType: product
        operation: CREATE
`)
		root := &rootFlags{storePath: filepath.Join(t.TempDir(), "state.db")}

		err := runPipeline(root, runOptions{PipelinePath: path}, logger.NewNop())
		var exit *exitError
		require.ErrorAs(t, err, &exit)
		require.Equal(t, exitRunFailed, exit.code)
	})

	t.Run("unparseable file exits config-invalid", func(t *testing.T) {
		t.Parallel()
		path := writePipelineFile(t, "code: [broken")
		root := &rootFlags{storePath: filepath.Join(t.TempDir(), "state.db")}

		err := runPipeline(root, runOptions{PipelinePath: path}, logger.NewNop())
		var exit *exitError
		require.ErrorAs(t, err, &exit)
		require.Equal(t, exitConfigInvalid, exit.code)
	})
}

func TestPrintSummaryPlainPunctuation(t *testing.T) {
	restore := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = restore })

	buf := &bytes.Buffer{}
	printSummary(buf, &model.RunSummary{
		RunID:        "r1",
		Status:       model.RunPaused,
		Processed:    2,
		Succeeded:    2,
		Paused:       true,
		PausedAtStep: "approve",
		Duration:     120 * time.Millisecond,
		Details: []model.StepMetrics{
			{StepKey: "fetch", StepType: "EXTRACT", RecordsIn: 2, RecordsOut: 2, Succeeded: 2},
		},
		Errors: []model.RecordError{{StepKey: "store", Code: "MISSING_FIELD", Message: "sku is required"}},
	})

	out := buf.String()
	require.Contains(t, out, "Run r1: PAUSED")
	require.Contains(t, out, "paused at step approve, resume with --resume")
	require.Contains(t, out, "[store] MISSING_FIELD: sku is required")
	require.NotContains(t, out, "—")
}
