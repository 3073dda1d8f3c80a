package migrations

const gatewayMetadataMigrationSQL = `
ALTER TABLE sensor_data ADD COLUMN rssi INTEGER;
ALTER TABLE sensor_data ADD COLUMN gateway_id TEXT NOT NULL DEFAULT '';
`

const gatewayMetadataRollbackSQL = `
ALTER TABLE sensor_data DROP COLUMN gateway_id;
ALTER TABLE sensor_data DROP COLUMN rssi;
`
