package cli

import (
	"github.com/benedict2310/sensorcast/internal/output"
	"github.com/spf13/cobra"
)

func newLatestCmd(opts *globalOptions) *cobra.Command {
	var outputMode string

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show the most recent reading of every sensor",
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

			latest, err := sess.store.LatestPerSensor(cmd.Context())
			if err != nil {
				return err
			}
			return output.Render(cmd.OutOrStdout(), format, latest, func() output.Table {
				table := output.NewTable("SENSOR", "NAME", "TEMP_C", "HUMIDITY_%", "PRESSURE_HPA", "BATTERY_MV", "AGE")
				for _, r := range latest {
					table.Add(
						r.SensorMAC,
						output.OrNone(r.CustomName),
						output.Temperature(r.Temperature),
						output.Measurement(r.Humidity),
						output.Measurement(r.Pressure),
						output.Count(r.BatteryVoltage),
						output.Age(r.SecondsAgo),
					)
				}
				return table
			})
		},
	}

	cmd.Flags().StringVarP(&outputMode, "output", "o", string(output.FormatTable), output.FlagUsage)
	return cmd
}
