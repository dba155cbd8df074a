// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package main

import (
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/trailhead/trailhead/internal/config"
	"github.com/trailhead/trailhead/internal/store"
)

// migrator is the slice of store.Migrator the migrate commands use,
// abstracted so tests can substitute a fake.
type migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() error
}

// newMigrator is swapped out in tests.
var newMigrator = func(databaseURL string) (migrator, error) {
	return store.NewMigrator(databaseURL)
}

func resolveDatabaseURL() (string, error) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return "", err
	}
	if cfg.Database.URL == "" {
		return "", oops.Code("CONFIG_LOAD_FAILED").
			Errorf("database URL is required (set DATABASE_URL or database.url in the config file)")
	}
	return cfg.Database.URL, nil
}

func withMigrator(fn func(cmd *cobra.Command, m migrator) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		databaseURL, err := resolveDatabaseURL()
		if err != nil {
			return err
		}
		m, err := newMigrator(databaseURL)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := m.Close(); closeErr != nil {
				cmd.PrintErrln("warning: failed to close migrator:", closeErr)
			}
		}()
		return fn(cmd, m)
	}
}

// NewMigrateCmd creates the migrate subcommand tree.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back, and inspect schema migrations on the PostgreSQL database.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: withMigrator(func(cmd *cobra.Command, m migrator) error {
			if err := m.Up(); err != nil {
				return err
			}
			cmd.Println("Migrations applied")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: withMigrator(func(cmd *cobra.Command, m migrator) error {
			if err := m.Down(); err != nil {
				return err
			}
			cmd.Println("Migration rolled back")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current schema version",
		RunE: withMigrator(func(cmd *cobra.Command, m migrator) error {
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			if version == 0 {
				cmd.Println("Schema version: none (no migrations applied)")
				return nil
			}
			if dirty {
				cmd.Printf("Schema version: %d (dirty)\n", version)
				return nil
			}
			cmd.Printf("Schema version: %d\n", version)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Force the schema version without running migrations",
		Long: `Force the recorded schema version. Use after manually repairing a
failed migration that left the schema dirty.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_VERSION").
					With("version", args[0]).
					Wrapf(err, "version must be an integer")
			}

			databaseURL, resolveErr := resolveDatabaseURL()
			if resolveErr != nil {
				return resolveErr
			}
			m, newErr := newMigrator(databaseURL)
			if newErr != nil {
				return newErr
			}
			defer func() {
				if closeErr := m.Close(); closeErr != nil {
					cmd.PrintErrln("warning: failed to close migrator:", closeErr)
				}
			}()

			if err := m.Force(version); err != nil {
				return err
			}
			cmd.Printf("Schema version forced to %d\n", version)
			return nil
		},
	})

	return cmd
}
