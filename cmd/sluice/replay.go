package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sluicehq/sluice/internal/checkpoint"
	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/engine"
	"github.com/sluicehq/sluice/internal/entity"
	"github.com/sluicehq/sluice/internal/logger"
	"github.com/sluicehq/sluice/internal/model"
	"gopkg.in/yaml.v3"
)

type replayOptions struct {
	PipelinePath string
	ErrorIDs     []string
	PatchPath    string
	UserID       string
}

func newReplayCmd(root *rootFlags, log *logger.Logger) *cobra.Command {
	opts := replayOptions{}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay journaled record errors with an optional payload patch",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validatePipelinePath(opts.PipelinePath); err != nil {
				return err
			}
			if len(opts.ErrorIDs) == 0 {
				return fmt.Errorf("at least one --error id is required")
			}
			return runReplay(root, opts, log)
		},
	}

	cmd.Flags().StringVarP(&opts.PipelinePath, "pipeline", "p", "", "Path to the pipeline definition")
	cmd.Flags().StringSliceVar(&opts.ErrorIDs, "error", nil, "Journaled error id to replay (repeatable)")
	cmd.Flags().StringVar(&opts.PatchPath, "patch", "", "YAML/JSON file with payload fields to overlay")
	cmd.Flags().StringVar(&opts.UserID, "user", "", "User recorded in the retry audit trail")
	cmd.MarkFlagRequired("pipeline") //nolint:errcheck

	return cmd
}

func runReplay(root *rootFlags, opts replayOptions, log *logger.Logger) error {
	pipeline, err := config.ParsePipeline(opts.PipelinePath)
	if err != nil {
		return &exitError{code: exitConfigInvalid, message: err.Error()}
	}

	var patch map[string]any
	if opts.PatchPath != "" {
		data, err := os.ReadFile(opts.PatchPath)
		if err != nil {
			return &exitError{code: exitConfigInvalid, message: err.Error()}
		}
		if err := yaml.Unmarshal(data, &patch); err != nil {
			return &exitError{code: exitConfigInvalid, message: err.Error()}
		}
	}

	store, err := checkpoint.Open(root.storePath)
	if err != nil {
		return &exitError{code: exitConfigInvalid, message: err.Error()}
	}
	defer store.Close()

	eng := buildEngine(store, entity.NewMemoryService(), log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := eng.Replay(ctx, pipeline, engine.ReplayRequest{
		ErrorIDs: opts.ErrorIDs,
		Patch:    patch,
		UserID:   opts.UserID,
		DryRun:   root.dryRun,
	})
	if summary != nil {
		printSummary(os.Stdout, summary)
	}

	switch {
	case summary != nil && summary.Status == model.RunCancelled:
		return &exitError{code: exitCancelled}
	case isValidationErr(runErr):
		return &exitError{code: exitConfigInvalid, message: errMessage(runErr)}
	case runErr != nil || (summary != nil && summary.Status == model.RunFailed):
		return &exitError{code: exitRunFailed, message: errMessage(runErr)}
	default:
		return nil
	}
}
