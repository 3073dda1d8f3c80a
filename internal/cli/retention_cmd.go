package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRetentionCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retention",
		Short: "Manage stored reading retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newRetentionCleanupCmd(opts))
	return cmd
}

func newRetentionCleanupCmd(opts *globalOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete readings older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return exitCodeError(exitUsage, fmt.Errorf("--days must be positive"))
			}
			sess, err := opts.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.close()

			deleted, err := sess.store.RetentionCleanup(cmd.Context(), days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d reading(s) older than %d day(s).\n", deleted, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 90, "Number of days of readings to keep")
	return cmd
}
