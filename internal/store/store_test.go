package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	dbpkg "github.com/benedict2310/sensorcast/internal/db"
)

func newTestStore(t *testing.T, now time.Time) *Store {
	t.Helper()
	db, err := dbpkg.Open(dbpkg.DefaultOptions(filepath.Join(t.TempDir(), "sensorcast.db")))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := dbpkg.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	s, err := New(db, Options{NowFn: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func ptrF(v float64) *float64 { return &v }

func ptrInt(v int) *int { return &v }

func TestNewRequiresDB(t *testing.T) {
	if _, err := New(nil, Options{}); err == nil {
		t.Fatalf("expected error for nil database")
	}
}

func TestSaveAndQueryRaw(t *testing.T) {
	now := time.Unix(1_700_003_600, 0)
	s := newTestStore(t, now)
	ctx := context.Background()

	err := s.Save(ctx, Reading{
		SensorMAC:      "AA:BB:CC:DD:EE:FF",
		Temperature:    21.5,
		Humidity:       ptrF(45.25),
		BatteryVoltage: ptrInt(2977),
		RSSI:           ptrInt(-70),
		GatewayID:      "gw1",
		Timestamp:      now.Unix() - 60,
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}

	res, err := s.QueryRaw(ctx, RangeHour)
	if err != nil {
		t.Fatalf("QueryRaw() error = %v", err)
	}
	if len(res.Readings) != 1 || res.Truncated {
		t.Fatalf("unexpected raw result: %+v", res)
	}
	got := res.Readings[0]
	if got.SensorMAC != "aa:bb:cc:dd:ee:ff" {
		t.Fatalf("expected normalized mac, got %q", got.SensorMAC)
	}
	if got.Humidity == nil || *got.Humidity != 45.25 || got.Pressure != nil {
		t.Fatalf("unexpected optional fields: %+v", got)
	}
	if got.BatteryVoltage == nil || *got.BatteryVoltage != 2977 || got.RSSI == nil || *got.RSSI != -70 || got.GatewayID != "gw1" {
		t.Fatalf("unexpected metadata fields: %+v", got)
	}
}

func TestSaveRejectsUnstorableReadings(t *testing.T) {
	s := newTestStore(t, time.Unix(1_700_000_000, 0))
	ctx := context.Background()

	cases := []Reading{
		{SensorMAC: "", Temperature: 20, Timestamp: 1},
		{SensorMAC: "aa:bb:cc:dd:ee:ff", Temperature: math.NaN(), Timestamp: 1},
		{SensorMAC: "aa:bb:cc:dd:ee:ff", Temperature: 20, Timestamp: 0},
	}
	for _, r := range cases {
		if err := s.Save(ctx, r); !errors.Is(err, ErrInvalidReading) {
			t.Fatalf("Save(%+v) error = %v, want ErrInvalidReading", r, err)
		}
		if err := s.SaveSync(ctx, r); !errors.Is(err, ErrInvalidReading) {
			t.Fatalf("SaveSync(%+v) error = %v, want ErrInvalidReading", r, err)
		}
	}
}

func TestSaveAfterClose(t *testing.T) {
	s := newTestStore(t, time.Unix(1_700_000_000, 0))
	ctx := context.Background()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	err := s.Save(ctx, Reading{SensorMAC: "aa:bb:cc:dd:ee:ff", Temperature: 20, Timestamp: 1_700_000_000})
	if !errors.Is(err, errWriterClosed) {
		t.Fatalf("Save() after Close error = %v, want errWriterClosed", err)
	}
}

func TestQueryAggregatedBucketsAndRounding(t *testing.T) {
	now := time.Unix(1_700_006_400, 0)
	s := newTestStore(t, now)
	ctx := context.Background()

	base := now.Unix() - 2*3600
	base -= base % 3600
	readings := []Reading{
		{SensorMAC: "aa:bb:cc:dd:ee:ff", Temperature: 20.001, Humidity: ptrF(40), Timestamp: base + 10},
		{SensorMAC: "aa:bb:cc:dd:ee:ff", Temperature: 21.004, Humidity: ptrF(41), Timestamp: base + 20},
		{SensorMAC: "aa:bb:cc:dd:ee:ff", Temperature: 25, Timestamp: base + 3600},
		{SensorMAC: "11:22:33:44:55:66", Temperature: -5, Timestamp: base + 30},
	}
	for _, r := range readings {
		if err := s.SaveSync(ctx, r); err != nil {
			t.Fatalf("SaveSync() error = %v", err)
		}
	}

	res, err := s.QueryAggregated(ctx, RangeDay)
	if err != nil {
		t.Fatalf("QueryAggregated() error = %v", err)
	}
	if res.BucketSeconds != 3600 || res.Range != RangeDay || res.Truncated {
		t.Fatalf("unexpected result header: %+v", res)
	}
	if len(res.Buckets) != 3 {
		t.Fatalf("expected 3 buckets, got %+v", res.Buckets)
	}
	first := res.Buckets[0]
	if first.SensorMAC != "11:22:33:44:55:66" || first.Timestamp != base || first.DataPoints != 1 {
		t.Fatalf("unexpected first bucket: %+v", first)
	}
	second := res.Buckets[1]
	if second.SensorMAC != "aa:bb:cc:dd:ee:ff" || second.DataPoints != 2 {
		t.Fatalf("unexpected second bucket: %+v", second)
	}
	if second.AvgTemperature != 20.5 || second.MinTemperature != 20 || second.MaxTemperature != 21 {
		t.Fatalf("unexpected temperature aggregates: %+v", second)
	}
	if second.AvgHumidity == nil || *second.AvgHumidity != 40.5 {
		t.Fatalf("unexpected humidity aggregate: %+v", second)
	}
	third := res.Buckets[2]
	if third.Timestamp != base+3600 || third.AvgHumidity != nil {
		t.Fatalf("expected humidity-less bucket at %d, got %+v", base+3600, third)
	}
}

func TestQueryAggregatedBucketCountBounded(t *testing.T) {
	now := time.Unix(1_700_100_000, 0)
	s := newTestStore(t, now)
	ctx := context.Background()

	start := now.Unix() - 3*3600
	for i := 0; i < 10; i++ {
		if err := s.SaveSync(ctx, Reading{SensorMAC: "aa:bb:cc:dd:ee:ff", Temperature: float64(20 + i), Timestamp: start + int64(i)*300}); err != nil {
			t.Fatalf("SaveSync() error = %v", err)
		}
	}
	res, err := s.QueryAggregated(ctx, RangeDay)
	if err != nil {
		t.Fatalf("QueryAggregated() error = %v", err)
	}
	span := int64(9 * 300)
	maxBuckets := int(math.Ceil(float64(span)/3600)) + 1
	if len(res.Buckets) > maxBuckets {
		t.Fatalf("expected at most %d buckets, got %d", maxBuckets, len(res.Buckets))
	}
	var total int64
	for _, b := range res.Buckets {
		if b.Timestamp%3600 != 0 {
			t.Fatalf("bucket timestamp %d is not aligned", b.Timestamp)
		}
		total += b.DataPoints
	}
	if total != 10 {
		t.Fatalf("expected 10 data points, got %d", total)
	}
}

func TestQueryAggregatedExcludesOldReadings(t *testing.T) {
	now := time.Unix(1_700_100_000, 0)
	s := newTestStore(t, now)
	ctx := context.Background()

	if err := s.SaveSync(ctx, Reading{SensorMAC: "aa:bb:cc:dd:ee:ff", Temperature: 20, Timestamp: now.Unix() - 2*3600}); err != nil {
		t.Fatalf("SaveSync() error = %v", err)
	}
	res, err := s.QueryAggregated(ctx, RangeHour)
	if err != nil {
		t.Fatalf("QueryAggregated() error = %v", err)
	}
	if len(res.Buckets) != 0 {
		t.Fatalf("expected no buckets in the last hour, got %+v", res.Buckets)
	}
}

func TestQueryRejectsUnknownRange(t *testing.T) {
	s := newTestStore(t, time.Unix(1_700_000_000, 0))
	if _, err := s.QueryAggregated(context.Background(), TimeRange("decade")); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("QueryAggregated() error = %v, want ErrInvalidRange", err)
	}
	if _, err := s.QueryRaw(context.Background(), TimeRange("")); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("QueryRaw() error = %v, want ErrInvalidRange", err)
	}
}

func TestLatestPerSensorWithAliases(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newTestStore(t, now)
	ctx := context.Background()

	for _, r := range []Reading{
		{SensorMAC: "aa:bb:cc:dd:ee:ff", Temperature: 20, Timestamp: now.Unix() - 120},
		{SensorMAC: "aa:bb:cc:dd:ee:ff", Temperature: 22, Timestamp: now.Unix() - 30},
		{SensorMAC: "11:22:33:44:55:66", Temperature: 5, Timestamp: now.Unix() - 600},
	} {
		if err := s.SaveSync(ctx, r); err != nil {
			t.Fatalf("SaveSync() error = %v", err)
		}
	}
	if _, err := s.SetAlias(ctx, "AA:BB:CC:DD:EE:FF", "  Living Room  "); err != nil {
		t.Fatalf("SetAlias() error = %v", err)
	}

	latest, err := s.LatestPerSensor(ctx)
	if err != nil {
		t.Fatalf("LatestPerSensor() error = %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("expected 2 sensors, got %+v", latest)
	}
	if latest[0].SensorMAC != "11:22:33:44:55:66" || latest[0].CustomName != nil || latest[0].SecondsAgo != 600 {
		t.Fatalf("unexpected first latest row: %+v", latest[0])
	}
	if latest[1].Temperature != 22 || latest[1].SecondsAgo != 30 {
		t.Fatalf("unexpected second latest row: %+v", latest[1])
	}
	if latest[1].CustomName == nil || *latest[1].CustomName != "Living Room" {
		t.Fatalf("expected alias on second latest row, got %+v", latest[1].CustomName)
	}
}

func TestAliasLifecycle(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newTestStore(t, now)
	ctx := context.Background()

	first, err := s.SetAlias(ctx, "aa:bb:cc:dd:ee:ff", "Kitchen")
	if err != nil {
		t.Fatalf("SetAlias() error = %v", err)
	}
	if first.CreatedAt != now.Unix() || first.UpdatedAt != now.Unix() {
		t.Fatalf("unexpected timestamps: %+v", first)
	}

	s.nowFn = func() time.Time { return now.Add(time.Minute) }
	second, err := s.SetAlias(ctx, "aa:bb:cc:dd:ee:ff", "Pantry")
	if err != nil {
		t.Fatalf("SetAlias(update) error = %v", err)
	}
	if second.CustomName != "Pantry" || second.CreatedAt != first.CreatedAt || second.UpdatedAt != now.Add(time.Minute).Unix() {
		t.Fatalf("unexpected updated alias: %+v", second)
	}

	names, err := s.ListAliases(ctx)
	if err != nil {
		t.Fatalf("ListAliases() error = %v", err)
	}
	if len(names) != 1 || names[0].CustomName != "Pantry" {
		t.Fatalf("unexpected aliases: %+v", names)
	}

	deleted, err := s.DeleteAlias(ctx, "AA:BB:CC:DD:EE:FF")
	if err != nil || !deleted {
		t.Fatalf("DeleteAlias() = %v, %v", deleted, err)
	}
	deleted, err = s.DeleteAlias(ctx, "aa:bb:cc:dd:ee:ff")
	if err != nil || deleted {
		t.Fatalf("DeleteAlias(missing) = %v, %v", deleted, err)
	}
}

func TestSetAliasValidation(t *testing.T) {
	s := newTestStore(t, time.Unix(1_700_000_000, 0))
	ctx := context.Background()

	cases := []struct {
		mac  string
		name string
	}{
		{mac: "", name: "Kitchen"},
		{mac: "aa:bb:cc:dd:ee:ff", name: "   "},
		{mac: "aa:bb:cc:dd:ee:ff", name: strings.Repeat("x", MaxAliasLength+1)},
	}
	for _, tc := range cases {
		if _, err := s.SetAlias(ctx, tc.mac, tc.name); !errors.Is(err, ErrInvalidAlias) {
			t.Fatalf("SetAlias(%q, %q) error = %v, want ErrInvalidAlias", tc.mac, tc.name, err)
		}
	}
	if _, err := s.SetAlias(ctx, "aa:bb:cc:dd:ee:ff", strings.Repeat("é", MaxAliasLength)); err != nil {
		t.Fatalf("SetAlias(max length) error = %v", err)
	}
}

func TestRetentionCleanup(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := newTestStore(t, now)
	ctx := context.Background()

	day := int64(24 * 3600)
	for _, ts := range []int64{now.Unix() - 40*day, now.Unix() - 31*day, now.Unix() - 29*day, now.Unix()} {
		if err := s.SaveSync(ctx, Reading{SensorMAC: "aa:bb:cc:dd:ee:ff", Temperature: 20, Timestamp: ts}); err != nil {
			t.Fatalf("SaveSync() error = %v", err)
		}
	}
	deleted, err := s.RetentionCleanup(ctx, 30)
	if err != nil {
		t.Fatalf("RetentionCleanup() error = %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted readings, got %d", deleted)
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Readings != 2 || stats.Sensors != 1 || stats.OldestTimestamp == nil || *stats.OldestTimestamp != now.Unix()-29*day {
		t.Fatalf("unexpected stats after cleanup: %+v", stats)
	}
	if _, err := s.RetentionCleanup(ctx, 0); err == nil {
		t.Fatalf("expected error for non-positive retention days")
	}
}
