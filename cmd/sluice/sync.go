package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sluicehq/sluice/internal/checkpoint"
	"github.com/sluicehq/sluice/internal/logger"
	syncsvc "github.com/sluicehq/sluice/internal/sync"
)

func newSyncCmd(root *rootFlags, log *logger.Logger) *cobra.Command {
	var filePath string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync code-first pipelines, secrets and connections into the store",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := checkpoint.Open(root.storePath)
			if err != nil {
				return &exitError{code: exitConfigInvalid, message: err.Error()}
			}
			defer store.Close()

			res, err := syncsvc.New(store, log).Apply(context.Background(), syncsvc.Options{
				FilePath: filePath,
			})
			if err != nil {
				return &exitError{code: exitConfigInvalid, message: err.Error()}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "synced %d pipeline(s), %d secret(s), %d connection(s)\n",
				res.Pipelines, res.Secrets, res.Connections)
			return nil
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Path to the sync document")
	cmd.MarkFlagRequired("file") //nolint:errcheck

	return cmd
}
