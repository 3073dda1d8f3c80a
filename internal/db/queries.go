package db

import (
	"context"
	"database/sql"
	"fmt"
)

type queryer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db queryer
}

const sensorDataColumns = `id, sensor_mac, temperature, humidity, pressure, battery_voltage, tx_power, movement_counter, measurement_sequence, acceleration_x, acceleration_y, acceleration_z, rssi, gateway_id, timestamp, created_at`

func NewQueries(db queryer) *Queries {
	return &Queries{db: db}
}

func (q *Queries) InsertSensorData(ctx context.Context, in SensorDataRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, `
INSERT INTO sensor_data(
  sensor_mac, temperature, humidity, pressure, battery_voltage, tx_power,
  movement_counter, measurement_sequence, acceleration_x, acceleration_y, acceleration_z,
  rssi, gateway_id, timestamp
) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.SensorMAC, in.Temperature, in.Humidity, in.Pressure, in.BatteryVoltage, in.TxPower,
		in.MovementCounter, in.MeasurementSequence, in.AccelerationX, in.AccelerationY, in.AccelerationZ,
		in.RSSI, in.GatewayID, in.Timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("insert sensor data: %w", err)
	}
	return lastInsertID("insert sensor data", res)
}

// ListAggregatedSensorData groups readings newer than Since into fixed width
// buckets keyed by floor(timestamp / width) * width.
func (q *Queries) ListAggregatedSensorData(ctx context.Context, params ListAggregatedParams) ([]AggregatedBucketRow, error) {
	if params.BucketSeconds <= 0 {
		return nil, fmt.Errorf("bucket width must be positive")
	}
	rows, err := q.db.QueryContext(ctx, `
SELECT
  sensor_mac,
  (timestamp / ?) * ? AS bucket,
  AVG(temperature),
  MIN(temperature),
  MAX(temperature),
  AVG(humidity),
  MIN(humidity),
  MAX(humidity),
  COUNT(*)
FROM sensor_data
WHERE timestamp >= ?
GROUP BY sensor_mac, bucket
ORDER BY bucket ASC, sensor_mac ASC
LIMIT ?`, params.BucketSeconds, params.BucketSeconds, params.Since, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("list aggregated sensor data: %w", err)
	}
	defer rows.Close()

	out := []AggregatedBucketRow{}
	for rows.Next() {
		var row AggregatedBucketRow
		if err := rows.Scan(&row.SensorMAC, &row.Timestamp, &row.AvgTemperature, &row.MinTemperature, &row.MaxTemperature, &row.AvgHumidity, &row.MinHumidity, &row.MaxHumidity, &row.DataPoints); err != nil {
			return nil, fmt.Errorf("scan aggregated sensor data row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregated sensor data rows: %w", err)
	}
	return out, nil
}

func (q *Queries) ListSensorData(ctx context.Context, params ListSensorDataParams) ([]SensorDataRow, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+sensorDataColumns+` FROM sensor_data WHERE timestamp >= ? ORDER BY timestamp ASC, sensor_mac ASC, id ASC LIMIT ?`, params.Since, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("list sensor data: %w", err)
	}
	defer rows.Close()

	out := []SensorDataRow{}
	for rows.Next() {
		var row SensorDataRow
		if err := scanSensorData(rows, &row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sensor data rows: %w", err)
	}
	return out, nil
}

// ListLatestSensorData returns the newest reading of every sensor in one
// ranked query, joined with the sensor's alias when one exists.
func (q *Queries) ListLatestSensorData(ctx context.Context) ([]LatestSensorDataRow, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT
  latest.id, latest.sensor_mac, latest.temperature, latest.humidity, latest.pressure,
  latest.battery_voltage, latest.tx_power, latest.movement_counter, latest.measurement_sequence,
  latest.acceleration_x, latest.acceleration_y, latest.acceleration_z,
  latest.rssi, latest.gateway_id, latest.timestamp, latest.created_at,
  n.custom_name
FROM (
  SELECT `+sensorDataColumns+`,
    ROW_NUMBER() OVER (PARTITION BY sensor_mac ORDER BY timestamp DESC, id DESC) AS rn
  FROM sensor_data
) latest
LEFT JOIN sensor_names n ON n.sensor_mac = latest.sensor_mac
WHERE latest.rn = 1
ORDER BY latest.sensor_mac ASC`)
	if err != nil {
		return nil, fmt.Errorf("list latest sensor data: %w", err)
	}
	defer rows.Close()

	out := []LatestSensorDataRow{}
	for rows.Next() {
		var row LatestSensorDataRow
		if err := rows.Scan(
			&row.ID, &row.SensorMAC, &row.Temperature, &row.Humidity, &row.Pressure,
			&row.BatteryVoltage, &row.TxPower, &row.MovementCounter, &row.MeasurementSequence,
			&row.AccelerationX, &row.AccelerationY, &row.AccelerationZ,
			&row.RSSI, &row.GatewayID, &row.Timestamp, &row.CreatedAt,
			&row.CustomName,
		); err != nil {
			return nil, fmt.Errorf("scan latest sensor data row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate latest sensor data rows: %w", err)
	}
	return out, nil
}

func (q *Queries) DeleteSensorDataBefore(ctx context.Context, cutoff int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM sensor_data WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete sensor data before %d: %w", cutoff, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete sensor data rows affected: %w", err)
	}
	return n, nil
}

func (q *Queries) GetSensorDataStats(ctx context.Context) (SensorDataStatsRow, error) {
	var out SensorDataStatsRow
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(DISTINCT sensor_mac), MIN(timestamp), MAX(timestamp) FROM sensor_data`).
		Scan(&out.Readings, &out.Sensors, &out.OldestTimestamp, &out.NewestTimestamp)
	if err != nil {
		return out, fmt.Errorf("get sensor data stats: %w", err)
	}
	return out, nil
}

// UpsertSensorName keeps created_at from the first insert and always stamps
// updated_at with the supplied value.
func (q *Queries) UpsertSensorName(ctx context.Context, in SensorNameRow) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO sensor_names(sensor_mac, custom_name, created_at, updated_at)
VALUES(?, ?, ?, ?)
ON CONFLICT(sensor_mac) DO UPDATE SET
  custom_name=excluded.custom_name,
  updated_at=excluded.updated_at
`, in.SensorMAC, in.CustomName, in.CreatedAt, in.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert sensor name: %w", err)
	}
	return nil
}

func (q *Queries) GetSensorName(ctx context.Context, mac string) (SensorNameRow, error) {
	var out SensorNameRow
	err := q.db.QueryRowContext(ctx, `SELECT sensor_mac, custom_name, created_at, updated_at FROM sensor_names WHERE sensor_mac = ?`, mac).
		Scan(&out.SensorMAC, &out.CustomName, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return out, fmt.Errorf("get sensor name: %w", err)
	}
	return out, nil
}

func (q *Queries) DeleteSensorName(ctx context.Context, mac string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM sensor_names WHERE sensor_mac = ?`, mac)
	if err != nil {
		return false, fmt.Errorf("delete sensor name: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete sensor name rows affected: %w", err)
	}
	return n > 0, nil
}

func (q *Queries) ListSensorNames(ctx context.Context) ([]SensorNameRow, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT sensor_mac, custom_name, created_at, updated_at FROM sensor_names ORDER BY sensor_mac ASC`)
	if err != nil {
		return nil, fmt.Errorf("list sensor names: %w", err)
	}
	defer rows.Close()

	out := []SensorNameRow{}
	for rows.Next() {
		var row SensorNameRow
		if err := rows.Scan(&row.SensorMAC, &row.CustomName, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan sensor name row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sensor name rows: %w", err)
	}
	return out, nil
}

func scanSensorData(rows *sql.Rows, row *SensorDataRow) error {
	if err := rows.Scan(
		&row.ID, &row.SensorMAC, &row.Temperature, &row.Humidity, &row.Pressure,
		&row.BatteryVoltage, &row.TxPower, &row.MovementCounter, &row.MeasurementSequence,
		&row.AccelerationX, &row.AccelerationY, &row.AccelerationZ,
		&row.RSSI, &row.GatewayID, &row.Timestamp, &row.CreatedAt,
	); err != nil {
		return fmt.Errorf("scan sensor data row: %w", err)
	}
	return nil
}

func lastInsertID(op string, res sql.Result) (int64, error) {
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s last insert id: %w", op, err)
	}
	return id, nil
}
