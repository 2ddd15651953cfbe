// SPDX-License-Identifier: Apache-2.0

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/adiadia/syrphid-receiver/internal/logging"
)

var logger *slog.Logger

var rootCmd = &cobra.Command{
	Use:           "syrphid <command>",
	Short:         "Operator tools for the telemetry receiver",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logging.NewLogger("prod", os.Getenv("LOG_LEVEL"), os.Stderr)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(frameCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if logger == nil {
			logger = logging.NewLogger("prod", os.Getenv("LOG_LEVEL"), os.Stderr)
		}
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
