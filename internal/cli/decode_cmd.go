package cli

import (
	"fmt"
	"strings"

	"github.com/benedict2310/sensorcast/internal/output"
	"github.com/benedict2310/sensorcast/internal/ruuvi"
	"github.com/spf13/cobra"
)

func newDecodeCmd() *cobra.Command {
	var outputMode string

	cmd := &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode a Data Format 5 payload or a raw advertisement",
		Long: "Decode a RuuviTag Data Format 5 payload. The argument may be the bare\n" +
			"48 character payload or a full advertisement containing the manufacturer marker.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(outputMode)
			if err != nil {
				return exitCodeError(exitUsage, err)
			}

			payload := strings.TrimSpace(args[0])
			if len(payload) != ruuvi.PayloadHexLength {
				extracted, ok := ruuvi.ExtractPayload(payload)
				if !ok {
					return exitCodeError(exitUsage, fmt.Errorf("no Data Format 5 payload found in %q", payload))
				}
				payload = extracted
			}
			reading := ruuvi.DecodeDataFormat5(payload)
			if reading == nil {
				return exitCodeError(exitUsage, fmt.Errorf("payload %q is not a valid Data Format 5 frame", payload))
			}
			reading.MAC = ruuvi.FormatMAC(reading.MAC)

			return output.Render(cmd.OutOrStdout(), format, reading, func() output.Table {
				table := output.NewFieldTable()
				table.Add("mac", reading.MAC)
				table.Add("temperature_c", output.Measurement(reading.Temperature))
				table.Add("humidity_pct", output.Measurement(reading.Humidity))
				table.Add("pressure_hpa", output.Measurement(reading.Pressure))
				table.Add("acceleration_x_mg", output.Count(reading.AccelerationX))
				table.Add("acceleration_y_mg", output.Count(reading.AccelerationY))
				table.Add("acceleration_z_mg", output.Count(reading.AccelerationZ))
				table.Add("battery_mv", output.Count(reading.BatteryVoltage))
				table.Add("tx_power_dbm", output.Count(reading.TxPower))
				table.Add("movement_counter", output.Count(reading.MovementCounter))
				table.Add("measurement_sequence", output.Count(reading.MeasurementSequence))
				return table
			})
		},
	}

	cmd.Flags().StringVarP(&outputMode, "output", "o", string(output.FormatTable), output.FlagUsage)
	return cmd
}
