package main

import (
	"github.com/spf13/cobra"

	"github.com/sluicehq/sluice/internal/logger"
)

// Exit codes reported by the binary.
const (
	exitOK            = 0
	exitRunFailed     = 1
	exitConfigInvalid = 2
	exitCancelled     = 3
)

// exitError carries a process exit code up through cobra.
type exitError struct {
	code    int
	message string
}

func (e *exitError) Error() string { return e.message }

type rootFlags struct {
	verbose   bool
	dryRun    bool
	storePath string
}

func newRootCmd(log *logger.Logger) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "sluice",
		Short:         "Sluice runs data-integration pipelines from declarative definitions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().BoolVar(&flags.dryRun, "dry-run", false, "Validate and count without writing entities")
	cmd.PersistentFlags().StringVar(&flags.storePath, "store", "sluice.db", "Path to the run-state database")

	cmd.AddCommand(newRunCmd(flags, log))
	cmd.AddCommand(newReplayCmd(flags, log))
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newSyncCmd(flags, log))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
