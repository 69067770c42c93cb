package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sluicehq/sluice/internal/checkpoint"
	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/engine"
	"github.com/sluicehq/sluice/internal/entity"
	"github.com/sluicehq/sluice/internal/events"
	"github.com/sluicehq/sluice/internal/logger"
	"github.com/sluicehq/sluice/internal/metrics"
	"github.com/sluicehq/sluice/internal/model"
	syncsvc "github.com/sluicehq/sluice/internal/sync"
	sluiceerrors "github.com/sluicehq/sluice/pkg/errors"
)

type runOptions struct {
	PipelinePath string
	Resume       bool
	BatchSize    int
	Level        string
}

var runCmdRunner = runPipeline

func newRunCmd(root *rootFlags, log *logger.Logger) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a pipeline definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validatePipelinePath(opts.PipelinePath); err != nil {
				return err
			}
			return runCmdRunner(root, opts, log)
		},
	}

	cmd.Flags().StringVarP(&opts.PipelinePath, "pipeline", "p", "", "Path to the pipeline definition")
	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "Resume from the saved checkpoint")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "Override the definition's batch size")
	cmd.Flags().StringVar(&opts.Level, "level", "", "Per-record logging detail (ERROR_ONLY|PIPELINE|STEP|DEBUG)")
	cmd.MarkFlagRequired("pipeline") //nolint:errcheck

	return cmd
}

func validatePipelinePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("pipeline file is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("pipeline file does not exist: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("pipeline path %s is a directory", path)
	}
	return nil
}

func runPipeline(root *rootFlags, opts runOptions, log *logger.Logger) error {
	pipeline, err := config.ParsePipeline(opts.PipelinePath)
	if err != nil {
		return &exitError{code: exitConfigInvalid, message: err.Error()}
	}
	if pipeline.Status == "" {
		pipeline.Status = config.StatusPublished
	}
	// Running a definition straight from a file implies it is enabled.
	pipeline.Enabled = true

	store, err := checkpoint.Open(root.storePath)
	if err != nil {
		return &exitError{code: exitConfigInvalid, message: err.Error()}
	}
	defer store.Close()

	eng := buildEngine(store, entity.NewMemoryService(), log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := eng.Execute(ctx, pipeline, engine.Options{
		Resume:    opts.Resume,
		DryRun:    root.dryRun,
		BatchSize: opts.BatchSize,
		Level:     logger.PersistenceLevel(opts.Level),
	})
	if summary != nil {
		printSummary(os.Stdout, summary)
	}

	switch {
	case summary != nil && summary.Status == model.RunCancelled:
		return &exitError{code: exitCancelled}
	case isValidationErr(runErr):
		// A definition or adapter config the engine rejects is a
		// configuration problem, not a failed run.
		return &exitError{code: exitConfigInvalid, message: errMessage(runErr)}
	case runErr != nil || (summary != nil && summary.Status == model.RunFailed):
		return &exitError{code: exitRunFailed, message: errMessage(runErr)}
	default:
		return nil
	}
}

func isValidationErr(err error) bool {
	var valErr *sluiceerrors.ValidationError
	return errors.As(err, &valErr)
}

func buildEngine(store *checkpoint.Store, entities entity.Service, log *logger.Logger) *engine.Engine {
	eng := engine.New(store, entities, log)
	eng.Publisher = events.NewLogPublisher(log)
	eng.Metrics = metrics.New()

	resolver := syncsvc.NewResolver(store)
	eng.ResolveSecret = resolver.Secret
	eng.ResolveConnection = resolver.Connection
	return eng
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
