// Package store is the time-series reading store: validated writes through a
// single writer, bucketed aggregation, latest-per-sensor snapshots, sensor
// aliases and retention.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	dbpkg "github.com/benedict2310/sensorcast/internal/db"
	"github.com/benedict2310/sensorcast/internal/metrics"
)

const (
	MaxAggregatedRows = 2000
	MaxRawRows        = 10000
	MaxAliasLength    = 50
)

var ErrInvalidAlias = errors.New("invalid sensor alias")

type Bucket struct {
	SensorMAC      string   `json:"sensorMac"`
	Timestamp      int64    `json:"timestamp"`
	AvgTemperature float64  `json:"avgTemperature"`
	MinTemperature float64  `json:"minTemperature"`
	MaxTemperature float64  `json:"maxTemperature"`
	AvgHumidity    *float64 `json:"avgHumidity"`
	MinHumidity    *float64 `json:"minHumidity"`
	MaxHumidity    *float64 `json:"maxHumidity"`
	DataPoints     int64    `json:"dataPoints"`
}

type AggregatedResult struct {
	Range         TimeRange `json:"timeRange"`
	BucketSeconds int64     `json:"bucketSize"`
	Buckets       []Bucket  `json:"data"`
	Truncated     bool      `json:"truncated"`
}

type RawResult struct {
	Range     TimeRange `json:"timeRange"`
	Readings  []Reading `json:"data"`
	Truncated bool      `json:"truncated"`
}

type LatestReading struct {
	Reading
	CustomName *string `json:"customName,omitempty"`
	SecondsAgo int64   `json:"secondsAgo"`
}

type SensorName struct {
	SensorMAC  string `json:"sensorMac"`
	CustomName string `json:"customName"`
	CreatedAt  int64  `json:"createdAt"`
	UpdatedAt  int64  `json:"updatedAt"`
}

type Stats struct {
	Readings        int64  `json:"readings"`
	Sensors         int64  `json:"sensors"`
	OldestTimestamp *int64 `json:"oldestTimestamp,omitempty"`
	NewestTimestamp *int64 `json:"newestTimestamp,omitempty"`
}

type Options struct {
	QueueSize int
	Logger    *slog.Logger
	Metrics   *metrics.StoreMetrics
	NowFn     func() time.Time
}

type Store struct {
	db      *sql.DB
	queries *dbpkg.Queries
	logger  *slog.Logger
	metrics *metrics.StoreMetrics
	nowFn   func() time.Time
	writer  *asyncWriter
}

// New wraps a migrated database. Close must be called to flush pending
// writes.
func New(sqlDB *sql.DB, opts Options) (*Store, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database is nil")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NowFn == nil {
		opts.NowFn = time.Now
	}
	s := &Store{
		db:      sqlDB,
		queries: dbpkg.NewQueries(sqlDB),
		logger:  opts.Logger,
		metrics: opts.Metrics,
		nowFn:   opts.NowFn,
	}
	s.writer = newAsyncWriter(s.insert, opts.QueueSize, func(r Reading, err error) {
		s.metrics.SaveFailed("insert")
		s.logger.Error("failed to save reading", "sensor_mac", r.SensorMAC, "timestamp", r.Timestamp, "error", err)
	})
	return s, nil
}

// Save validates and queues a reading for the writer goroutine. It never
// waits for the insert; a failed insert is logged and the reading is lost.
func (s *Store) Save(_ context.Context, r Reading) error {
	r.SensorMAC = NormalizeMAC(r.SensorMAC)
	if err := checkStorable(r); err != nil {
		s.metrics.SaveFailed("invalid")
		return err
	}
	if err := s.writer.enqueue(r); err != nil {
		s.metrics.SaveFailed("queue")
		s.logger.Warn("reading dropped before write", "sensor_mac", r.SensorMAC, "error", err)
		return err
	}
	return nil
}

// SaveSync validates and inserts a reading on the caller's goroutine.
func (s *Store) SaveSync(ctx context.Context, r Reading) error {
	r.SensorMAC = NormalizeMAC(r.SensorMAC)
	if err := checkStorable(r); err != nil {
		s.metrics.SaveFailed("invalid")
		return err
	}
	if err := s.insert(ctx, r); err != nil {
		s.metrics.SaveFailed("insert")
		return err
	}
	return nil
}

// WaitIdle blocks until every queued reading has been written or dropped.
func (s *Store) WaitIdle(ctx context.Context) error {
	return s.writer.waitIdle(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	return s.writer.close(ctx)
}

func (s *Store) insert(ctx context.Context, r Reading) error {
	if _, err := s.queries.InsertSensorData(ctx, toRow(r)); err != nil {
		return err
	}
	s.metrics.ReadingSaved()
	return nil
}

func (s *Store) QueryAggregated(ctx context.Context, timeRange TimeRange) (AggregatedResult, error) {
	if !timeRange.Valid() {
		return AggregatedResult{}, fmt.Errorf("%w %q", ErrInvalidRange, timeRange)
	}
	defer s.observe("aggregated", time.Now())

	since := s.nowFn().Add(-timeRange.Lookback()).Unix()
	rows, err := s.queries.ListAggregatedSensorData(ctx, dbpkg.ListAggregatedParams{
		Since:         since,
		BucketSeconds: timeRange.BucketSeconds(),
		Limit:         MaxAggregatedRows + 1,
	})
	if err != nil {
		return AggregatedResult{}, err
	}

	out := AggregatedResult{
		Range:         timeRange,
		BucketSeconds: timeRange.BucketSeconds(),
		Buckets:       make([]Bucket, 0, min(len(rows), MaxAggregatedRows)),
	}
	if len(rows) > MaxAggregatedRows {
		rows = rows[:MaxAggregatedRows]
		out.Truncated = true
	}
	for _, row := range rows {
		out.Buckets = append(out.Buckets, Bucket{
			SensorMAC:      row.SensorMAC,
			Timestamp:      row.Timestamp,
			AvgTemperature: round2(row.AvgTemperature),
			MinTemperature: round2(row.MinTemperature),
			MaxTemperature: round2(row.MaxTemperature),
			AvgHumidity:    round2Ptr(row.AvgHumidity),
			MinHumidity:    round2Ptr(row.MinHumidity),
			MaxHumidity:    round2Ptr(row.MaxHumidity),
			DataPoints:     row.DataPoints,
		})
	}
	return out, nil
}

func (s *Store) QueryRaw(ctx context.Context, timeRange TimeRange) (RawResult, error) {
	if !timeRange.Valid() {
		return RawResult{}, fmt.Errorf("%w %q", ErrInvalidRange, timeRange)
	}
	defer s.observe("raw", time.Now())

	since := s.nowFn().Add(-timeRange.Lookback()).Unix()
	rows, err := s.queries.ListSensorData(ctx, dbpkg.ListSensorDataParams{Since: since, Limit: MaxRawRows + 1})
	if err != nil {
		return RawResult{}, err
	}
	out := RawResult{Range: timeRange, Readings: make([]Reading, 0, min(len(rows), MaxRawRows))}
	if len(rows) > MaxRawRows {
		rows = rows[:MaxRawRows]
		out.Truncated = true
	}
	for _, row := range rows {
		out.Readings = append(out.Readings, fromRow(row))
	}
	return out, nil
}

func (s *Store) LatestPerSensor(ctx context.Context) ([]LatestReading, error) {
	defer s.observe("latest", time.Now())

	rows, err := s.queries.ListLatestSensorData(ctx)
	if err != nil {
		return nil, err
	}
	now := s.nowFn().Unix()
	out := make([]LatestReading, 0, len(rows))
	for _, row := range rows {
		out = append(out, LatestReading{
			Reading:    fromRow(row.SensorDataRow),
			CustomName: row.CustomName,
			SecondsAgo: now - row.Timestamp,
		})
	}
	return out, nil
}

// SetAlias inserts or replaces the alias for mac.
func (s *Store) SetAlias(ctx context.Context, mac, name string) (SensorName, error) {
	mac = NormalizeMAC(mac)
	name = strings.TrimSpace(name)
	if mac == "" {
		return SensorName{}, fmt.Errorf("%w: sensor mac is required", ErrInvalidAlias)
	}
	if name == "" || utf8.RuneCountInString(name) > MaxAliasLength {
		return SensorName{}, fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidAlias, MaxAliasLength)
	}
	now := s.nowFn().Unix()
	if err := s.queries.UpsertSensorName(ctx, dbpkg.SensorNameRow{
		SensorMAC:  mac,
		CustomName: name,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		return SensorName{}, err
	}
	row, err := s.queries.GetSensorName(ctx, mac)
	if err != nil {
		return SensorName{}, err
	}
	return SensorName(row), nil
}

func (s *Store) DeleteAlias(ctx context.Context, mac string) (bool, error) {
	mac = NormalizeMAC(mac)
	if mac == "" {
		return false, fmt.Errorf("%w: sensor mac is required", ErrInvalidAlias)
	}
	return s.queries.DeleteSensorName(ctx, mac)
}

func (s *Store) ListAliases(ctx context.Context) ([]SensorName, error) {
	rows, err := s.queries.ListSensorNames(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SensorName, 0, len(rows))
	for _, row := range rows {
		out = append(out, SensorName(row))
	}
	return out, nil
}

// RetentionCleanup deletes readings older than daysToKeep days and returns
// the number removed.
func (s *Store) RetentionCleanup(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep <= 0 {
		return 0, fmt.Errorf("days to keep must be positive")
	}
	cutoff := s.nowFn().Add(-time.Duration(daysToKeep) * 24 * time.Hour).Unix()
	deleted, err := s.queries.DeleteSensorDataBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.metrics.RetentionDeleted(deleted)
	return deleted, nil
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	row, err := s.queries.GetSensorDataStats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats(row), nil
}

func (s *Store) observe(query string, start time.Time) {
	s.metrics.ObserveQuery(query, time.Since(start).Seconds())
}

func toRow(r Reading) dbpkg.SensorDataRow {
	return dbpkg.SensorDataRow{
		SensorMAC:           r.SensorMAC,
		Temperature:         r.Temperature,
		Humidity:            r.Humidity,
		Pressure:            r.Pressure,
		BatteryVoltage:      toInt64(r.BatteryVoltage),
		TxPower:             toInt64(r.TxPower),
		MovementCounter:     toInt64(r.MovementCounter),
		MeasurementSequence: toInt64(r.MeasurementSequence),
		AccelerationX:       toInt64(r.AccelerationX),
		AccelerationY:       toInt64(r.AccelerationY),
		AccelerationZ:       toInt64(r.AccelerationZ),
		RSSI:                toInt64(r.RSSI),
		GatewayID:           r.GatewayID,
		Timestamp:           r.Timestamp,
	}
}

func fromRow(row dbpkg.SensorDataRow) Reading {
	return Reading{
		SensorMAC:           row.SensorMAC,
		Temperature:         row.Temperature,
		Humidity:            row.Humidity,
		Pressure:            row.Pressure,
		BatteryVoltage:      toInt(row.BatteryVoltage),
		TxPower:             toInt(row.TxPower),
		MovementCounter:     toInt(row.MovementCounter),
		MeasurementSequence: toInt(row.MeasurementSequence),
		AccelerationX:       toInt(row.AccelerationX),
		AccelerationY:       toInt(row.AccelerationY),
		AccelerationZ:       toInt(row.AccelerationZ),
		RSSI:                toInt(row.RSSI),
		GatewayID:           row.GatewayID,
		Timestamp:           row.Timestamp,
	}
}

func toInt64(v *int) *int64 {
	if v == nil {
		return nil
	}
	out := int64(*v)
	return &out
}

func toInt(v *int64) *int {
	if v == nil {
		return nil
	}
	out := int(*v)
	return &out
}
