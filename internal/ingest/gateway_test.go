package ingest

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/benedict2310/sensorcast/internal/metrics"
	"github.com/benedict2310/sensorcast/internal/store"
)

const knownVector = "050F18FFFFFFFFFFF0FFEC0414AA96A8DE8E123456789ABC"

var testNow = time.Unix(1_700_000_000, 0)

func newTestGateway(sink Sink, m *metrics.IngestMetrics) *Gateway {
	return NewGateway(Options{
		Sink:    sink,
		Metrics: m,
		NowFn:   func() time.Time { return testNow },
	})
}

func advertisement(payload string) string {
	return "0201061BFF9904" + payload
}

func body(data string, extra string) []byte {
	if extra != "" {
		extra = "," + extra
	}
	return []byte(fmt.Sprintf(`{"data":%q%s}`, data, extra))
}

func dropReason(t *testing.T, err error) string {
	t.Helper()
	var dropErr *DropError
	if !errors.As(err, &dropErr) {
		t.Fatalf("expected *DropError, got %T (%v)", err, err)
	}
	return dropErr.Reason
}

func TestHandleMessageKnownVector(t *testing.T) {
	g := newTestGateway(nil, nil)
	r, err := g.HandleMessage("ruuvi/gw1/aa:bb:cc:dd:ee:ff", body(advertisement(knownVector), `"ts":1699999990,"rssi":-71`))
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if r.SensorMAC != "aa:bb:cc:dd:ee:ff" {
		t.Fatalf("expected topic mac to win, got %q", r.SensorMAC)
	}
	if r.Temperature != 19.32 || r.Humidity != nil || r.Pressure != nil {
		t.Fatalf("unexpected environmental fields: %+v", r)
	}
	if r.BatteryVoltage == nil || *r.BatteryVoltage != 2964 || r.TxPower == nil || *r.TxPower != 4 {
		t.Fatalf("unexpected power fields: %+v", r)
	}
	if r.MovementCounter == nil || *r.MovementCounter != 168 || r.MeasurementSequence == nil || *r.MeasurementSequence != 56974 {
		t.Fatalf("unexpected counters: %+v", r)
	}
	if r.Timestamp != 1699999990 || r.GatewayID != "gw1" || r.RSSI == nil || *r.RSSI != -71 {
		t.Fatalf("unexpected metadata: %+v", r)
	}
}

func TestHandleMessageMACResolution(t *testing.T) {
	g := newTestGateway(nil, nil)
	cases := []struct {
		topic string
		want  string
	}{
		{topic: "gateway/gw1/AA:BB:CC:DD:EE:FF", want: "aa:bb:cc:dd:ee:ff"},
		{topic: "ruuvi/aabbccddeeff", want: "aabbccddeeff"},
		{topic: "ruuvi/gw1/kitchen", want: "123456789abc"},
		{topic: "ruuvi/gw1", want: "123456789abc"},
	}
	for _, tc := range cases {
		r, err := g.HandleMessage(tc.topic, body(advertisement(knownVector), ""))
		if err != nil {
			t.Fatalf("HandleMessage(%q) error = %v", tc.topic, err)
		}
		if r.SensorMAC != tc.want {
			t.Fatalf("HandleMessage(%q) mac = %q, want %q", tc.topic, r.SensorMAC, tc.want)
		}
	}
}

func TestHandleMessageTimestampFallback(t *testing.T) {
	g := newTestGateway(nil, nil)
	cases := []struct {
		extra string
		want  int64
	}{
		{extra: ``, want: testNow.Unix()},
		{extra: `"ts":null`, want: testNow.Unix()},
		{extra: `"ts":"soon"`, want: testNow.Unix()},
		{extra: `"ts":"1700000100"`, want: 1700000100},
		{extra: `"ts":1700000050.9`, want: 1700000050},
	}
	for _, tc := range cases {
		r, err := g.HandleMessage("ruuvi/gw1/aa:bb:cc:dd:ee:ff", body(advertisement(knownVector), tc.extra))
		if err != nil {
			t.Fatalf("HandleMessage(%s) error = %v", tc.extra, err)
		}
		if r.Timestamp != tc.want {
			t.Fatalf("HandleMessage(%s) timestamp = %d, want %d", tc.extra, r.Timestamp, tc.want)
		}
	}
}

func TestHandleMessageGatewayFromBody(t *testing.T) {
	g := newTestGateway(nil, nil)
	r, err := g.HandleMessage("ruuvi/aa:bb:cc:dd:ee:ff", body(advertisement(knownVector), `"gw_mac":"C8:25:2D:8E:9C:2C"`))
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if r.GatewayID != "c8:25:2d:8e:9c:2c" {
		t.Fatalf("expected gateway id from body, got %q", r.GatewayID)
	}
}

func TestHandleMessageAcceptsUpperTemperatureBound(t *testing.T) {
	g := newTestGateway(nil, nil)
	r, err := g.HandleMessage("ruuvi/gw1/aa:bb:cc:dd:ee:ff", body(advertisement("054268"+knownVector[6:]), ""))
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if r.Temperature != 85 {
		t.Fatalf("temperature = %v, want 85", r.Temperature)
	}
}

func TestHandleMessageDrops(t *testing.T) {
	g := newTestGateway(nil, nil)
	topic := "ruuvi/gw1/aa:bb:cc:dd:ee:ff"
	hotVector := "054300" + knownVector[6:]
	cases := []struct {
		name    string
		topic   string
		payload []byte
		reason  string
	}{
		{name: "oversized", topic: topic, payload: []byte(`{"data":"` + strings.Repeat("a", MaxMessageBytes) + `"}`), reason: ReasonOversized},
		{name: "unknown topic", topic: "sensors/gw1/aa:bb:cc:dd:ee:ff", payload: body(advertisement(knownVector), ""), reason: ReasonTopic},
		{name: "deep topic", topic: "ruuvi/a/b/c", payload: body(advertisement(knownVector), ""), reason: ReasonTopic},
		{name: "not json", topic: topic, payload: []byte("not json"), reason: ReasonJSON},
		{name: "json array", topic: topic, payload: []byte(`[1,2,3]`), reason: ReasonJSON},
		{name: "json null", topic: topic, payload: []byte(`null`), reason: ReasonJSON},
		{name: "missing data", topic: topic, payload: []byte(`{"ts":1}`), reason: ReasonDataField},
		{name: "numeric data", topic: topic, payload: []byte(`{"data":12}`), reason: ReasonDataField},
		{name: "long data", topic: topic, payload: body(strings.Repeat("0", MaxDataChars+1), ""), reason: ReasonDataField},
		{name: "no marker", topic: topic, payload: body("0201061BFF1234"+knownVector, ""), reason: ReasonNoMarker},
		{name: "short payload", topic: topic, payload: body(advertisement(knownVector[:40]), ""), reason: ReasonShortPayload},
		{name: "wrong format", topic: topic, payload: body(advertisement("03"+knownVector[2:]), ""), reason: ReasonDecode},
		{name: "no temperature", topic: topic, payload: body(advertisement("058000"+knownVector[6:]), ""), reason: ReasonDecode},
		{name: "bad hex", topic: topic, payload: body(advertisement(strings.Repeat("zz", 24)), ""), reason: ReasonDecode},
		{name: "too hot", topic: topic, payload: body(advertisement(hotVector), ""), reason: ReasonValidation},
		{name: "stale", topic: topic, payload: body(advertisement(knownVector), `"ts":1699990000`), reason: ReasonValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := g.HandleMessage(tc.topic, tc.payload)
			if got := dropReason(t, err); got != tc.reason {
				t.Fatalf("drop reason = %q, want %q (%v)", got, tc.reason, err)
			}
		})
	}
}

func TestHandleMessageValidationWrapsSentinel(t *testing.T) {
	g := newTestGateway(nil, nil)
	_, err := g.HandleMessage("ruuvi/gw1/aa:bb:cc:dd:ee:ff", body(advertisement(knownVector), `"ts":1800000000`))
	if !errors.Is(err, store.ErrInvalidReading) {
		t.Fatalf("expected ErrInvalidReading, got %v", err)
	}
}

func TestDeliverEmitsOncePerValidMessage(t *testing.T) {
	reg := metrics.NewRegistry()
	var got []store.Reading
	g := newTestGateway(SinkFunc(func(r store.Reading) { got = append(got, r) }), reg.IngestMetrics())

	msg := body(advertisement(knownVector), "")
	g.Deliver("mqtt", "ruuvi/gw1/aa:bb:cc:dd:ee:ff", msg)
	g.Deliver("mqtt", "ruuvi/gw1/aa:bb:cc:dd:ee:ff", msg)
	g.Deliver("mqtt", "bogus", msg)
	g.Deliver("nats", "ruuvi/gw1/aa:bb:cc:dd:ee:ff", []byte("{"))

	if len(got) != 2 {
		t.Fatalf("expected 2 emissions without dedup, got %d", len(got))
	}
	expected := `
# HELP sensorcast_ingest_messages_dropped_total Messages dropped before producing a reading
# TYPE sensorcast_ingest_messages_dropped_total counter
sensorcast_ingest_messages_dropped_total{reason="json"} 1
sensorcast_ingest_messages_dropped_total{reason="topic"} 1
# HELP sensorcast_ingest_messages_received_total Messages received from the gateway transport
# TYPE sensorcast_ingest_messages_received_total counter
sensorcast_ingest_messages_received_total{transport="mqtt"} 3
sensorcast_ingest_messages_received_total{transport="nats"} 1
# HELP sensorcast_ingest_readings_accepted_total Readings decoded, validated and emitted
# TYPE sensorcast_ingest_readings_accepted_total counter
sensorcast_ingest_readings_accepted_total 2
`
	if err := testutil.GatherAndCompare(reg.Prometheus(), strings.NewReader(expected),
		"sensorcast_ingest_messages_dropped_total",
		"sensorcast_ingest_messages_received_total",
		"sensorcast_ingest_readings_accepted_total",
	); err != nil {
		t.Fatalf("unexpected ingest metrics: %v", err)
	}
}

func TestMultiSink(t *testing.T) {
	var a, b int
	sink := MultiSink{
		SinkFunc(func(store.Reading) { a++ }),
		nil,
		SinkFunc(func(store.Reading) { b++ }),
	}
	sink.Accept(store.Reading{})
	if a != 1 || b != 1 {
		t.Fatalf("expected each sink called once, got %d and %d", a, b)
	}
}
