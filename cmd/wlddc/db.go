package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nerrad567/wlddc/internal/display"
	"github.com/nerrad567/wlddc/internal/infrastructure/database"
	"github.com/nerrad567/wlddc/migrations"
)

func newDBCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect the identity database",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openConfiguredDB(cmd, opts)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // Read-only command

			applied, pending, err := db.MigrationStatus(cmd.Context(), migrations.FS, migrations.Dir)
			if err != nil {
				return err
			}
			return printMigrations(cmd.OutOrStdout(), db.Path(), applied, pending, time.Now())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rollback",
		Short: "Roll back the most recent schema migration",
		Long: `Roll back the most recently applied migration. The next 'wlddc run'
applies it again, so this is only useful before downgrading wlddc.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openConfiguredDB(cmd, opts)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // Closed on exit

			if err := db.MigrateDown(cmd.Context(), migrations.FS, migrations.Dir); err != nil {
				return fmt.Errorf("rolling back: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Rolled back the latest migration.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "forget <unique-id>",
		Short: "Remove a stored display identity",
		Long: `Remove a display identity from the store, e.g. after the monitor was
replaced. A running agent keeps its in-memory copy until restarted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openConfiguredDB(cmd, opts)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // Closed on exit

			if err := db.Migrate(cmd.Context(), migrations.FS, migrations.Dir); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			if err := display.NewSQLiteRepository(db.DB).Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("forgetting %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s.\n", args[0])
			return nil
		},
	})

	return cmd
}

// openConfiguredDB opens the database named in the config without
// migrating it.
func openConfiguredDB(cmd *cobra.Command, opts *globalOptions) (*database.DB, error) {
	cfg, _, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if !cfg.Database.Enabled {
		return nil, errors.New("database is disabled in the config")
	}
	return database.Open(cmd.Context(), cfg.Database)
}

func printMigrations(w io.Writer, path string, applied []database.MigrationRecord, pending []database.Migration, now time.Time) error {
	fmt.Fprintf(w, "Database: %s\n\n", path)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS")
	for _, r := range applied {
		fmt.Fprintf(tw, "%s\t\tapplied %s\n", r.Version, humanize.RelTime(r.AppliedAt, now, "ago", "from now"))
	}
	for _, m := range pending {
		fmt.Fprintf(tw, "%s\t%s\tpending\n", m.Version, m.Name)
	}
	return tw.Flush()
}
