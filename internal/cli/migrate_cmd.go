package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	dbpkg "github.com/benedict2310/sensorcast/internal/db"
	"github.com/benedict2310/sensorcast/internal/output"
	"github.com/spf13/cobra"
)

type migrationStatusItem struct {
	Version   int     `json:"version" yaml:"version"`
	Name      string  `json:"name" yaml:"name"`
	Applied   bool    `json:"applied" yaml:"applied"`
	AppliedAt *string `json:"appliedAt,omitempty" yaml:"appliedAt,omitempty"`
}

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect and apply database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newMigrateStatusCmd(opts))
	cmd.AddCommand(newMigrateUpCmd(opts))
	cmd.AddCommand(newMigrateDownCmd(opts))
	return cmd
}

func newMigrateStatusCmd(opts *globalOptions) *cobra.Command {
	var outputMode string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List defined migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(outputMode)
			if err != nil {
				return exitCodeError(exitUsage, err)
			}
			db, _, err := opts.openDB(false)
			if err != nil {
				return err
			}
			defer db.Close()

			states, err := dbpkg.MigrationStatus(cmd.Context(), db)
			if err != nil {
				return err
			}
			items := make([]migrationStatusItem, 0, len(states))
			for _, s := range states {
				items = append(items, migrationStatusItem(s))
			}
			return output.Render(cmd.OutOrStdout(), format, items, func() output.Table {
				table := output.NewTable("VERSION", "NAME", "APPLIED", "APPLIED_AT")
				for _, item := range items {
					table.Add(strconv.Itoa(item.Version), item.Name, output.YesNo(item.Applied), output.OrNone(item.AppliedAt))
				}
				return table
			})
		},
	}

	cmd.Flags().StringVarP(&outputMode, "output", "o", string(output.FormatTable), output.FlagUsage)
	return cmd
}

func newMigrateUpCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := opts.resolveDBPath()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("create database directory: %w", err)
			}
			db, _, err := opts.openDB(true)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := dbpkg.RunMigrations(cmd.Context(), db)
			if err != nil {
				return err
			}
			if applied == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Database schema is up to date.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) to %s.\n", applied, path)
			return nil
		},
	}
}

func newMigrateDownCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recently applied migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := opts.openDB(false)
			if err != nil {
				return err
			}
			defer db.Close()

			version, err := dbpkg.RollbackLatest(cmd.Context(), db)
			if errors.Is(err, dbpkg.ErrMigrationNotApplied) {
				fmt.Fprintln(cmd.OutOrStdout(), "No applied migrations to roll back.")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rolled back migration %d.\n", version)
			return nil
		},
	}
}
