// Package ruuvi decodes RuuviTag broadcast payloads.
package ruuvi

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"strings"
)

const (
	DataFormat5       = 5
	DataFormat5Length = 24

	// ManufacturerMarker precedes the Data Format 5 payload inside a BLE
	// advertisement: Ruuvi Innovations company ID 0x0499, little-endian.
	ManufacturerMarker = "9904"
	PayloadHexLength   = DataFormat5Length * 2

	invalidInt16       = math.MinInt16
	invalidUint16      = math.MaxUint16
	invalidMovement    = math.MaxUint8
	invalidBattery     = 0x7FF
	invalidTxPower     = 0x1F
	batteryOffsetMV    = 1600
	txPowerOffsetDBm   = -40
	pressureOffsetPa   = 50000
	temperatureDivisor = 200.0
	humidityDivisor    = 400.0
)

// Reading is a decoded Data Format 5 payload. Nil fields carry the
// protocol's "not available" value.
type Reading struct {
	Temperature         *float64 `json:"temperature"`
	Humidity            *float64 `json:"humidity"`
	Pressure            *float64 `json:"pressure"`
	AccelerationX       *int     `json:"accelerationX"`
	AccelerationY       *int     `json:"accelerationY"`
	AccelerationZ       *int     `json:"accelerationZ"`
	BatteryVoltage      *int     `json:"batteryVoltage"`
	TxPower             *int     `json:"txPower"`
	MovementCounter     *int     `json:"movementCounter"`
	MeasurementSequence *int     `json:"measurementSequence"`
	MAC                 string   `json:"mac"`
}

// DecodeDataFormat5 decodes a 48 character hex payload. It returns nil for
// anything that is not a well formed Data Format 5 frame.
func DecodeDataFormat5(payload string) *Reading {
	b, err := hex.DecodeString(strings.TrimSpace(payload))
	if err != nil || len(b) != DataFormat5Length || b[0] != DataFormat5 {
		return nil
	}

	out := &Reading{MAC: hex.EncodeToString(b[18:24])}

	if raw := int16(binary.BigEndian.Uint16(b[1:3])); raw != invalidInt16 {
		out.Temperature = float64Ptr(round2(float64(raw) / temperatureDivisor))
	}
	if raw := binary.BigEndian.Uint16(b[3:5]); raw != invalidUint16 {
		out.Humidity = float64Ptr(round2(float64(raw) / humidityDivisor))
	}
	if raw := binary.BigEndian.Uint16(b[5:7]); raw != invalidUint16 {
		out.Pressure = float64Ptr(round2(float64(int(raw)+pressureOffsetPa) / 100))
	}
	out.AccelerationX = acceleration(b[7:9])
	out.AccelerationY = acceleration(b[9:11])
	out.AccelerationZ = acceleration(b[11:13])

	power := binary.BigEndian.Uint16(b[13:15])
	if battery := power >> 5; battery != invalidBattery {
		out.BatteryVoltage = intPtr(int(battery) + batteryOffsetMV)
	}
	if tx := power & 0x1F; tx != invalidTxPower {
		out.TxPower = intPtr(txPowerOffsetDBm + 2*int(tx))
	}
	if movement := b[15]; movement != invalidMovement {
		out.MovementCounter = intPtr(int(movement))
	}
	if seq := binary.BigEndian.Uint16(b[16:18]); seq != invalidUint16 {
		out.MeasurementSequence = intPtr(int(seq))
	}
	return out
}

// ExtractPayload finds the manufacturer marker in a raw advertisement and
// returns the Data Format 5 payload that follows it.
func ExtractPayload(advertisement string) (string, bool) {
	idx := strings.Index(strings.ToLower(advertisement), ManufacturerMarker)
	if idx < 0 {
		return "", false
	}
	start := idx + len(ManufacturerMarker)
	if len(advertisement)-start < PayloadHexLength {
		return "", false
	}
	return advertisement[start : start+PayloadHexLength], true
}

// FormatMAC renders a 12 digit hex address as aa:bb:cc:dd:ee:ff. Inputs of
// any other shape are returned lowercased and otherwise untouched.
func FormatMAC(mac string) string {
	mac = strings.ToLower(mac)
	if len(mac) != 12 {
		return mac
	}
	if _, err := hex.DecodeString(mac); err != nil {
		return mac
	}
	var sb strings.Builder
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteString(mac[i : i+2])
	}
	return sb.String()
}

func acceleration(b []byte) *int {
	raw := int16(binary.BigEndian.Uint16(b))
	if raw == invalidInt16 {
		return nil
	}
	return intPtr(int(raw))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func float64Ptr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }
