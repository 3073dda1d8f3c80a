package migrations

// Serves the latest-per-sensor window query and per-sensor range scans.
const macTimeIndexMigrationSQL = `
CREATE INDEX IF NOT EXISTS idx_sensor_data_mac_timestamp
    ON sensor_data(sensor_mac, timestamp DESC);
`

const macTimeIndexRollbackSQL = `
DROP INDEX IF EXISTS idx_sensor_data_mac_timestamp;
`
