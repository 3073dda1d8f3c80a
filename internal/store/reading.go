package store

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

var ErrInvalidReading = errors.New("invalid reading")

const (
	MinTemperature = -40.0
	MaxTemperature = 85.0
	MinHumidity    = 0.0
	MaxHumidity    = 100.0
	MinPressure    = 300.0
	MaxPressure    = 1100.0
	MinBatteryMV   = 1600
	MaxBatteryMV   = 3646

	// MaxTimestampSkew bounds how far a reading's timestamp may be from the
	// receiving clock in either direction.
	MaxTimestampSkew = time.Hour
)

var (
	macStripRE    = regexp.MustCompile(`[^a-f0-9:-]`)
	macValidateRE = regexp.MustCompile(`^[0-9a-f]{2}([:-]?[0-9a-f]{2}){5}$`)
)

// Reading is one decoded measurement as stored and served. Temperature is
// always present; every other physical field may be nil.
type Reading struct {
	SensorMAC           string   `json:"sensorMac"`
	Temperature         float64  `json:"temperature"`
	Humidity            *float64 `json:"humidity"`
	Pressure            *float64 `json:"pressure"`
	BatteryVoltage      *int     `json:"batteryVoltage"`
	TxPower             *int     `json:"txPower"`
	MovementCounter     *int     `json:"movementCounter"`
	MeasurementSequence *int     `json:"measurementSequence"`
	AccelerationX       *int     `json:"accelerationX"`
	AccelerationY       *int     `json:"accelerationY"`
	AccelerationZ       *int     `json:"accelerationZ"`
	RSSI                *int     `json:"rssi,omitempty"`
	GatewayID           string   `json:"gatewayId,omitempty"`
	Timestamp           int64    `json:"timestamp"`
}

// NormalizeMAC lowercases mac and strips every character outside
// [a-f0-9:-].
func NormalizeMAC(mac string) string {
	return macStripRE.ReplaceAllString(strings.ToLower(strings.TrimSpace(mac)), "")
}

// ValidMAC reports whether mac is a 48-bit address, with or without ':' or
// '-' separators.
func ValidMAC(mac string) bool {
	return macValidateRE.MatchString(mac)
}

// checkStorable is the minimum a row needs to be written.
func checkStorable(r Reading) error {
	if strings.TrimSpace(r.SensorMAC) == "" {
		return fmt.Errorf("%w: sensor mac is required", ErrInvalidReading)
	}
	if math.IsNaN(r.Temperature) || math.IsInf(r.Temperature, 0) {
		return fmt.Errorf("%w: temperature must be finite", ErrInvalidReading)
	}
	if r.Timestamp <= 0 {
		return fmt.Errorf("%w: timestamp must be positive", ErrInvalidReading)
	}
	return nil
}

// ValidateReading applies the physical plausibility rules a reading must
// pass before it is stored or broadcast. now is the receiving clock.
func ValidateReading(r Reading, now time.Time) error {
	if err := checkStorable(r); err != nil {
		return err
	}
	if !ValidMAC(r.SensorMAC) {
		return fmt.Errorf("%w: malformed sensor mac %q", ErrInvalidReading, r.SensorMAC)
	}
	if r.Temperature < MinTemperature || r.Temperature > MaxTemperature {
		return fmt.Errorf("%w: temperature %.2f outside [%.0f, %.0f]", ErrInvalidReading, r.Temperature, MinTemperature, MaxTemperature)
	}
	if r.Humidity != nil && (*r.Humidity < MinHumidity || *r.Humidity > MaxHumidity) {
		return fmt.Errorf("%w: humidity %.2f outside [%.0f, %.0f]", ErrInvalidReading, *r.Humidity, MinHumidity, MaxHumidity)
	}
	if r.Pressure != nil && (*r.Pressure < MinPressure || *r.Pressure > MaxPressure) {
		return fmt.Errorf("%w: pressure %.2f outside [%.0f, %.0f]", ErrInvalidReading, *r.Pressure, MinPressure, MaxPressure)
	}
	if r.BatteryVoltage != nil && (*r.BatteryVoltage < MinBatteryMV || *r.BatteryVoltage > MaxBatteryMV) {
		return fmt.Errorf("%w: battery voltage %d outside [%d, %d]", ErrInvalidReading, *r.BatteryVoltage, MinBatteryMV, MaxBatteryMV)
	}
	skew := now.Unix() - r.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(MaxTimestampSkew/time.Second) {
		return fmt.Errorf("%w: timestamp %d is %ds away from now", ErrInvalidReading, r.Timestamp, skew)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round2Ptr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := round2(*v)
	return &r
}
