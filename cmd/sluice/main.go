package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sluicehq/sluice/internal/extract"
	"github.com/sluicehq/sluice/internal/loader/loaders"
	"github.com/sluicehq/sluice/internal/logger"
	"github.com/sluicehq/sluice/internal/transform"
)

func main() {
	log, err := logger.New(logger.Options{Level: "info", HumanReadable: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(exitConfigInvalid)
	}

	if err := registerBuiltins(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register adapters: %v\n", err)
		os.Exit(exitConfigInvalid)
	}

	if err := newRootCmd(log).Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			if exit.message != "" {
				fmt.Fprintln(os.Stderr, exit.message)
			}
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigInvalid)
	}
}

func registerBuiltins() error {
	if err := transform.RegisterBuiltins(); err != nil {
		return err
	}
	if err := extract.RegisterBuiltins(); err != nil {
		return err
	}
	return loaders.RegisterAll()
}
