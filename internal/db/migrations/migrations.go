package migrations

import "sort"

// Migration is one schema step. UpSQL and DownSQL may hold several
// statements; each direction runs inside a single transaction.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

func All() []Migration {
	all := []Migration{
		{
			Version: 1,
			Name:    "sensor_data",
			UpSQL:   sensorDataSchemaSQL,
			DownSQL: sensorDataDropSQL,
		},
		{
			Version: 2,
			Name:    "sensor_names",
			UpSQL:   sensorNamesSchemaSQL,
			DownSQL: sensorNamesDropSQL,
		},
		{
			Version: 3,
			Name:    "sensor_data_gateway_metadata",
			UpSQL:   gatewayMetadataMigrationSQL,
			DownSQL: gatewayMetadataRollbackSQL,
		},
		{
			Version: 4,
			Name:    "sensor_data_mac_time_index",
			UpSQL:   macTimeIndexMigrationSQL,
			DownSQL: macTimeIndexRollbackSQL,
		},
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Version < all[j].Version })
	return all
}
