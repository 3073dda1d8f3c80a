package migrations

const sensorDataSchemaSQL = `
CREATE TABLE IF NOT EXISTS sensor_data (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sensor_mac TEXT NOT NULL,
    temperature REAL NOT NULL,
    humidity REAL,
    pressure REAL,
    battery_voltage INTEGER,
    tx_power INTEGER,
    movement_counter INTEGER,
    measurement_sequence INTEGER,
    acceleration_x INTEGER,
    acceleration_y INTEGER,
    acceleration_z INTEGER,
    timestamp INTEGER NOT NULL,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);

CREATE INDEX IF NOT EXISTS idx_sensor_data_timestamp ON sensor_data(timestamp);
CREATE INDEX IF NOT EXISTS idx_sensor_data_sensor_mac ON sensor_data(sensor_mac);
`

const sensorDataDropSQL = `
DROP INDEX IF EXISTS idx_sensor_data_sensor_mac;
DROP INDEX IF EXISTS idx_sensor_data_timestamp;
DROP TABLE IF EXISTS sensor_data;
`
