package cli

import (
	"strconv"

	dbpkg "github.com/benedict2310/sensorcast/internal/db"
	"github.com/benedict2310/sensorcast/internal/output"
	"github.com/spf13/cobra"
)

type statusReport struct {
	Database        string `json:"database" yaml:"database"`
	SQLiteVersion   string `json:"sqliteVersion" yaml:"sqliteVersion"`
	JournalMode     string `json:"journalMode" yaml:"journalMode"`
	Readings        int64  `json:"readings" yaml:"readings"`
	Sensors         int64  `json:"sensors" yaml:"sensors"`
	OldestTimestamp *int64 `json:"oldestTimestamp,omitempty" yaml:"oldestTimestamp,omitempty"`
	NewestTimestamp *int64 `json:"newestTimestamp,omitempty" yaml:"newestTimestamp,omitempty"`
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	var outputMode string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show database health and reading counts",
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

			report := statusReport{Database: sess.path}
			if report.SQLiteVersion, err = dbpkg.SQLiteVersion(cmd.Context(), sess.db); err != nil {
				return err
			}
			if report.JournalMode, err = dbpkg.JournalMode(cmd.Context(), sess.db); err != nil {
				return err
			}
			stats, err := sess.store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			report.Readings = stats.Readings
			report.Sensors = stats.Sensors
			report.OldestTimestamp = stats.OldestTimestamp
			report.NewestTimestamp = stats.NewestTimestamp

			return output.Render(cmd.OutOrStdout(), format, report, func() output.Table {
				table := output.NewFieldTable()
				table.Add("database", report.Database)
				table.Add("sqlite_version", report.SQLiteVersion)
				table.Add("journal_mode", report.JournalMode)
				table.Add("readings", strconv.FormatInt(report.Readings, 10))
				table.Add("sensors", strconv.FormatInt(report.Sensors, 10))
				table.Add("oldest_reading", output.OptionalTimestamp(report.OldestTimestamp))
				table.Add("newest_reading", output.OptionalTimestamp(report.NewestTimestamp))
				return table
			})
		},
	}

	cmd.Flags().StringVarP(&outputMode, "output", "o", string(output.FormatTable), output.FlagUsage)
	return cmd
}
