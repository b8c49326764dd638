package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/sso-registry/sso/internal/config"
	"github.com/sso-registry/sso/internal/db"
	"github.com/sso-registry/sso/internal/storage/sqlite"
)

// connect opens a bare connection pool for cfg without running migrations.
func connect(cfg *config.Config) (*sqlx.DB, error) {
	var dsn string
	switch cfg.Database.Driver {
	case db.DialectPostgres:
		dsn = cfg.Database.GetDSN()
	case db.DialectSQLite:
		dsn = sqlite.DSN(cfg.Database.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
	database, err := db.Connect(cfg.Database.Driver, dsn, 1, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return database, nil
}

func newMigrateCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	run := func(cmd *cobra.Command, fn func(cfg *config.Config, database *sqlx.DB) error) error {
		cfg, err := load()
		if err != nil {
			return err
		}
		database, err := connect(cfg)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := fn(cfg, database); err != nil {
			return err
		}
		v, dirty, err := db.GetMigrationVersion(database.DB, cfg.Database.Driver)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%v\n", v, dirty)
		return nil
	}

	for _, direction := range []string{"up", "down"} {
		cmd.AddCommand(&cobra.Command{
			Use:   direction,
			Short: "Apply migrations " + direction,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd, func(cfg *config.Config, database *sqlx.DB) error {
					slog.Info("running migrations", "direction", direction)
					if err := db.RunMigrations(database.DB, cfg.Database.Driver, direction); err != nil {
						return fmt.Errorf("migration failed: %w", err)
					}
					return nil
				})
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(*config.Config, *sqlx.DB) error { return nil })
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Record VERSION as applied and clear the dirty flag",
		Long: `Force sets the recorded schema version without running any migration.
Use it after a migration was interrupted and the database was repaired by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			return run(cmd, func(cfg *config.Config, database *sqlx.DB) error {
				return db.ForceMigrationVersion(database.DB, cfg.Database.Driver, version)
			})
		},
	})

	return cmd
}
