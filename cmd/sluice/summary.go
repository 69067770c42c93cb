package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/sluicehq/sluice/internal/model"
)

// printSummary renders a run summary in the colourised table format.
func printSummary(w io.Writer, s *model.RunSummary) {
	header := color.New(color.Bold)
	header.Fprintf(w, "\nRun %s: %s\n", s.RunID, statusColor(s.Status).Sprint(string(s.Status)))

	fmt.Fprintf(w, "  processed: %d  succeeded: %s  failed: %s  skipped: %d  (%s)\n",
		s.Processed,
		color.GreenString("%d", s.Succeeded),
		color.RedString("%d", s.Failed),
		s.Skipped,
		s.Duration.Round(1e6))

	for _, step := range s.Details {
		fmt.Fprintf(w, "  %-20s %-10s in=%-6d out=%-6d ok=%-6d fail=%-6d skip=%d\n",
			step.StepKey, step.StepType, step.RecordsIn, step.RecordsOut,
			step.Succeeded, step.Failed, step.Skipped)
	}

	if s.Paused {
		color.New(color.FgYellow).Fprintf(w, "  paused at step %s, resume with --resume\n", s.PausedAtStep)
	}

	for i, recErr := range s.Errors {
		if i == 0 {
			fmt.Fprintln(w, "  errors:")
		}
		fmt.Fprintf(w, "    [%s] %s: %s\n", recErr.StepKey, recErr.Code, recErr.Message)
	}
}

func statusColor(status model.RunStatus) *color.Color {
	switch status {
	case model.RunCompleted:
		return color.New(color.FgGreen)
	case model.RunFailed:
		return color.New(color.FgRed)
	case model.RunPaused, model.RunCancelled:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgWhite)
	}
}
