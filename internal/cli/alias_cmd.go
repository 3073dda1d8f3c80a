package cli

import (
	"errors"
	"fmt"

	"github.com/benedict2310/sensorcast/internal/output"
	"github.com/benedict2310/sensorcast/internal/store"
	"github.com/spf13/cobra"
)

func newAliasCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "alias",
		Aliases: []string{"aliases"},
		Short:   "Manage sensor display names",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newAliasListCmd(opts))
	cmd.AddCommand(newAliasSetCmd(opts))
	cmd.AddCommand(newAliasDeleteCmd(opts))
	return cmd
}

func newAliasListCmd(opts *globalOptions) *cobra.Command {
	var outputMode string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sensor aliases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(outputMode)
			if err != nil {
				return exitCodeError(exitUsage, err)
			}
			sess, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.close()

			names, err := sess.store.ListAliases(cmd.Context())
			if err != nil {
				return err
			}
			return output.Render(cmd.OutOrStdout(), format, names, func() output.Table {
				table := output.NewTable("SENSOR", "NAME", "UPDATED")
				for _, n := range names {
					table.Add(n.SensorMAC, n.CustomName, output.Timestamp(n.UpdatedAt))
				}
				return table
			})
		},
	}

	cmd.Flags().StringVarP(&outputMode, "output", "o", string(output.FormatTable), output.FlagUsage)
	return cmd
}

func newAliasSetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <mac> <name>",
		Short: "Set or replace the alias for a sensor",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !store.ValidMAC(store.NormalizeMAC(args[0])) {
				return exitCodeError(exitUsage, fmt.Errorf("invalid sensor mac %q", args[0]))
			}
			sess, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.close()

			name, err := sess.store.SetAlias(cmd.Context(), args[0], args[1])
			if errors.Is(err, store.ErrInvalidAlias) {
				return exitCodeError(exitUsage, err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sensor %s is now named %q.\n", name.SensorMAC, name.CustomName)
			return nil
		},
	}
}

func newAliasDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <mac>",
		Aliases: []string{"rm"},
		Short:   "Remove the alias for a sensor",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.close()

			mac := store.NormalizeMAC(args[0])
			deleted, err := sess.store.DeleteAlias(cmd.Context(), mac)
			if errors.Is(err, store.ErrInvalidAlias) {
				return exitCodeError(exitUsage, err)
			}
			if err != nil {
				return err
			}
			if !deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "Sensor %s has no alias.\n", mac)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed alias for sensor %s.\n", mac)
			return nil
		},
	}
}
