package cli

import "github.com/spf13/cobra"

// NewRootCmd builds the sensorcast root command tree.
func NewRootCmd(version string) *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "sensorcast",
		Short: "Operator CLI for the sensorcast reading store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to sensorcastd config file")
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "Path to the SQLite database (overrides config)")

	cmd.AddCommand(newAliasCmd(opts))
	cmd.AddCommand(newDecodeCmd())
	cmd.AddCommand(newLatestCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newRetentionCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newVersionCmd(version))

	return cmd
}
