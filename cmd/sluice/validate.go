package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sluicehq/sluice/internal/config"
	"github.com/sluicehq/sluice/internal/extract"
)

func newValidateCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a pipeline definition without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validatePipelinePath(path); err != nil {
				return err
			}

			pipeline, err := config.ParsePipeline(path)
			if err != nil {
				return &exitError{code: exitConfigInvalid, message: err.Error()}
			}

			// Extract adapter configs validate against their own schema.
			for _, step := range pipeline.Definition.Steps {
				if step.Type != config.StepExtract {
					continue
				}
				extractor, err := extract.Get(step.AdapterCode)
				if err != nil {
					return &exitError{code: exitConfigInvalid, message: err.Error()}
				}
				if err := extractor.Validate(step.Config); err != nil {
					return &exitError{code: exitConfigInvalid,
						message: fmt.Sprintf("step %s: %v", step.Key, err)}
				}
			}

			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ %s is valid (%d steps)\n",
				path, len(pipeline.Definition.Steps))
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "pipeline", "p", "", "Path to the pipeline definition")
	cmd.MarkFlagRequired("pipeline") //nolint:errcheck

	return cmd
}
