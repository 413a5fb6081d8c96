// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/opentrusty/tokenscope/internal/store/postgres"
)

func init() {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mg, err := openMigrator()
			if err != nil {
				return err
			}
			defer closeMigrator(cmd, mg)

			applied, err := mg.Up()
			if err != nil {
				return err
			}
			if !applied {
				cmd.Println("No schema changes to apply.")
				return nil
			}
			version, _, err := mg.Version()
			if err != nil {
				return fmt.Errorf("read schema version: %w", err)
			}
			cmd.Printf("Schema migrated to version %d\n", version)
			return nil
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down <steps>",
		Short: "Roll back schema migrations by step count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := strconv.Atoi(args[0])
			if err != nil || steps <= 0 {
				return fmt.Errorf("invalid steps %q: must be a positive integer", args[0])
			}
			mg, err := openMigrator()
			if err != nil {
				return err
			}
			defer closeMigrator(cmd, mg)

			if err := mg.Down(steps); err != nil {
				return err
			}
			cmd.Printf("Rolled back %d migration step(s)\n", steps)
			return nil
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mg, err := openMigrator()
			if err != nil {
				return err
			}
			defer closeMigrator(cmd, mg)

			version, dirty, err := mg.Version()
			if err != nil {
				return err
			}
			cmd.Printf("%d (dirty=%t)\n", version, dirty)
			return nil
		},
	})

	rootCmd.AddCommand(migrateCmd)
}

func openMigrator() (*postgres.Migrator, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return postgres.NewMigrator(dbConfig(cfg))
}

func closeMigrator(cmd *cobra.Command, mg *postgres.Migrator) {
	if err := mg.Close(); err != nil {
		cmd.PrintErrf("warning: failed to close migration runner cleanly: %v\n", err)
	}
}
