package migrations

const sensorNamesSchemaSQL = `
CREATE TABLE IF NOT EXISTS sensor_names (
    sensor_mac TEXT PRIMARY KEY,
    custom_name TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
`

const sensorNamesDropSQL = `
DROP TABLE IF EXISTS sensor_names;
`
