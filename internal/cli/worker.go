package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lucasnoah/ordpilot/internal/worker"
)

// workerCmd is the guest entry point of the worker protocol. The host
// re-invokes this binary with "worker", writes one request frame to stdin,
// and reads stage and report frames from stdout. Stdout carries nothing but
// frames; logging goes to stderr.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Serve one validation request on stdin/stdout (internal)",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer logger.Sync()

		return worker.Serve(cmd.Context(), os.Stdin, os.Stdout, logger)
	},
}
