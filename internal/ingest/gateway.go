// Package ingest turns gateway messages from the pub/sub transport into
// validated sensor readings.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/benedict2310/sensorcast/internal/metrics"
	"github.com/benedict2310/sensorcast/internal/ruuvi"
	"github.com/benedict2310/sensorcast/internal/store"
)

const (
	MaxMessageBytes = 8 * 1024
	MaxDataChars    = 200
)

const (
	ReasonOversized    = "oversized"
	ReasonTopic        = "topic"
	ReasonJSON         = "json"
	ReasonDataField    = "data_field"
	ReasonNoMarker     = "no_marker"
	ReasonShortPayload = "short_payload"
	ReasonDecode       = "decode"
	ReasonValidation   = "validation"
)

// Topic filters the gateway publishes under. NATS subjects use the same
// shapes with '.' separators.
var TopicFilters = []string{"ruuvi/+/+", "gateway/+/+", "ruuvi/+"}

var topicRE = regexp.MustCompile(`^(?:(ruuvi|gateway)/([A-Za-z0-9_.:-]{1,64})/([A-Za-z0-9_.:-]{1,64})|ruuvi/([A-Za-z0-9_.:-]{1,64}))$`)

// DropError reports why a message produced no reading.
type DropError struct {
	Reason string
	Err    error
}

func (e *DropError) Error() string {
	if e.Err == nil {
		return "message dropped: " + e.Reason
	}
	return fmt.Sprintf("message dropped: %s: %v", e.Reason, e.Err)
}

func (e *DropError) Unwrap() error {
	return e.Err
}

func drop(reason string, format string, args ...any) error {
	return &DropError{Reason: reason, Err: fmt.Errorf(format, args...)}
}

// Sink receives every accepted reading. Accept must not block.
type Sink interface {
	Accept(store.Reading)
}

type SinkFunc func(store.Reading)

func (f SinkFunc) Accept(r store.Reading) { f(r) }

// MultiSink hands each reading to every sink in order.
type MultiSink []Sink

func (m MultiSink) Accept(r store.Reading) {
	for _, s := range m {
		if s != nil {
			s.Accept(r)
		}
	}
}

type Options struct {
	Sink    Sink
	Logger  *slog.Logger
	Metrics *metrics.IngestMetrics
	NowFn   func() time.Time
}

type Gateway struct {
	sink    Sink
	logger  *slog.Logger
	metrics *metrics.IngestMetrics
	nowFn   func() time.Time
}

func NewGateway(opts Options) *Gateway {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NowFn == nil {
		opts.NowFn = time.Now
	}
	return &Gateway{
		sink:    opts.Sink,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		nowFn:   opts.NowFn,
	}
}

// Deliver runs one transport message through the pipeline and forwards the
// reading to the sink. Drops are logged and counted, never returned.
func (g *Gateway) Deliver(transport, topic string, payload []byte) {
	g.metrics.MessageReceived(transport)
	reading, err := g.HandleMessage(topic, payload)
	if err != nil {
		reason := "unknown"
		var dropErr *DropError
		if errors.As(err, &dropErr) {
			reason = dropErr.Reason
		}
		g.metrics.MessageDropped(reason)
		g.logger.Debug("gateway message dropped", "transport", transport, "topic", topic, "reason", reason, "error", err)
		return
	}
	g.metrics.ReadingAccepted()
	if g.sink != nil {
		g.sink.Accept(reading)
	}
}

type gatewayMessage struct {
	data      string
	timestamp *int64
	rssi      *int
	gatewayID string
}

// HandleMessage is the synchronous decode pipeline for a single message.
// Every failure is a *DropError.
func (g *Gateway) HandleMessage(topic string, payload []byte) (store.Reading, error) {
	if len(payload) > MaxMessageBytes {
		return store.Reading{}, drop(ReasonOversized, "payload is %d bytes (max %d)", len(payload), MaxMessageBytes)
	}
	gatewayID, topicMAC, err := parseTopic(topic)
	if err != nil {
		return store.Reading{}, err
	}
	msg, err := parseMessage(payload)
	if err != nil {
		return store.Reading{}, err
	}
	if gatewayID == "" {
		gatewayID = msg.gatewayID
	}

	hexPayload, err := extractPayload(msg.data)
	if err != nil {
		return store.Reading{}, err
	}
	decoded := ruuvi.DecodeDataFormat5(hexPayload)
	if decoded == nil || decoded.Temperature == nil {
		return store.Reading{}, drop(ReasonDecode, "payload is not a Data Format 5 frame with temperature")
	}

	mac := topicMAC
	if mac == "" {
		mac = strings.ToLower(decoded.MAC)
	}
	timestamp := g.nowFn().Unix()
	if msg.timestamp != nil {
		timestamp = *msg.timestamp
	}

	reading := store.Reading{
		SensorMAC:           mac,
		Temperature:         *decoded.Temperature,
		Humidity:            decoded.Humidity,
		Pressure:            decoded.Pressure,
		BatteryVoltage:      decoded.BatteryVoltage,
		TxPower:             decoded.TxPower,
		MovementCounter:     decoded.MovementCounter,
		MeasurementSequence: decoded.MeasurementSequence,
		AccelerationX:       decoded.AccelerationX,
		AccelerationY:       decoded.AccelerationY,
		AccelerationZ:       decoded.AccelerationZ,
		RSSI:                msg.rssi,
		GatewayID:           gatewayID,
		Timestamp:           timestamp,
	}
	if err := store.ValidateReading(reading, g.nowFn()); err != nil {
		return store.Reading{}, &DropError{Reason: ReasonValidation, Err: err}
	}
	return reading, nil
}

// parseTopic returns the gateway segment and the sensor MAC carried by the
// topic. The MAC is empty when the sensor segment is not an address.
func parseTopic(topic string) (gatewayID, mac string, err error) {
	m := topicRE.FindStringSubmatch(topic)
	if m == nil {
		return "", "", drop(ReasonTopic, "topic %q is not allowed", topic)
	}
	segment := m[4]
	if m[1] != "" {
		gatewayID = m[2]
		segment = m[3]
	}
	if candidate := strings.ToLower(segment); store.ValidMAC(candidate) {
		mac = candidate
	}
	return gatewayID, mac, nil
}

func parseMessage(payload []byte) (gatewayMessage, error) {
	var body map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&body); err != nil || body == nil {
		if err == nil {
			err = fmt.Errorf("body is null")
		}
		return gatewayMessage{}, &DropError{Reason: ReasonJSON, Err: err}
	}

	var out gatewayMessage
	raw, ok := body["data"]
	if !ok {
		return out, drop(ReasonDataField, "data field is missing")
	}
	if err := json.Unmarshal(raw, &out.data); err != nil {
		return out, drop(ReasonDataField, "data field is not a string")
	}
	if len(out.data) > MaxDataChars {
		return out, drop(ReasonDataField, "data field is %d characters (max %d)", len(out.data), MaxDataChars)
	}

	if v, ok := numberField(body["ts"]); ok {
		ts := int64(v)
		out.timestamp = &ts
	}
	if v, ok := numberField(body["rssi"]); ok && v >= math.MinInt16 && v <= math.MaxInt16 {
		rssi := int(v)
		out.rssi = &rssi
	}
	var gw string
	if raw, ok := body["gw_mac"]; ok && json.Unmarshal(raw, &gw) == nil {
		out.gatewayID = strings.ToLower(strings.TrimSpace(gw))
	}
	return out, nil
}

// numberField accepts a JSON number or a string holding one; gateways in the
// wild send both.
func numberField(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func extractPayload(data string) (string, error) {
	idx := strings.Index(strings.ToLower(data), ruuvi.ManufacturerMarker)
	if idx < 0 {
		return "", drop(ReasonNoMarker, "manufacturer marker %s not found", ruuvi.ManufacturerMarker)
	}
	payload, ok := ruuvi.ExtractPayload(data)
	if !ok {
		return "", drop(ReasonShortPayload, "fewer than %d hex characters after marker", ruuvi.PayloadHexLength)
	}
	return payload, nil
}
