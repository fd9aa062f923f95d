package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-gatepass-api/pkg/database"
)

type preRun func(cmd *cobra.Command, args []string) error

func newMigrateCommand(opts *rootOptions, load preRun) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "migrate",
		Short:             "Manage the database schema",
		PersistentPreRunE: load,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := database.NewPostgres(cmd.Context(), opts.cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := database.Migrate(db); err != nil {
				return err
			}
			fmt.Fprintln(opts.out, "migrations applied")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down STEPS",
		Short: "Roll back the given number of migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := strconv.Atoi(args[0])
			if err != nil || steps <= 0 {
				return fmt.Errorf("steps must be a positive integer, got %q", args[0])
			}
			db, err := database.NewPostgres(cmd.Context(), opts.cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := database.MigrateDown(db, steps); err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "rolled back %d migration(s)\n", steps)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := database.NewPostgres(cmd.Context(), opts.cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			version, dirty, err := database.MigrationVersion(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "version %d dirty=%t\n", version, dirty)
			return nil
		},
	})

	return cmd
}
