// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adiadia/syrphid-receiver/internal/config"
	"github.com/adiadia/syrphid-receiver/internal/persistence"
)

var migrateDatabaseURL string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded schema migrations to DATABASE_URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if migrateDatabaseURL != "" {
			cfg.DatabaseURL = migrateDatabaseURL
		}

		started := time.Now()
		db, err := persistence.Open(cmd.Context(), cfg.DatabaseURL, persistence.Options{MaxConns: 1}, logger)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		if err := db.EnsureSchema(cmd.Context()); err != nil {
			return err
		}
		if err := db.Check(cmd.Context()); err != nil {
			return fmt.Errorf("schema not ready after migration: %w", err)
		}

		logger.Info("migrations applied",
			"dialect", db.Dialect,
			"duration_ms", time.Since(started).Milliseconds(),
		)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDatabaseURL, "database-url", "", "database url (overrides DATABASE_URL)")
}
