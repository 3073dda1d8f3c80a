package db

type SensorDataRow struct {
	ID                  int64
	SensorMAC           string
	Temperature         float64
	Humidity            *float64
	Pressure            *float64
	BatteryVoltage      *int64
	TxPower             *int64
	MovementCounter     *int64
	MeasurementSequence *int64
	AccelerationX       *int64
	AccelerationY       *int64
	AccelerationZ       *int64
	RSSI                *int64
	GatewayID           string
	Timestamp           int64
	CreatedAt           string
}

type LatestSensorDataRow struct {
	SensorDataRow
	CustomName *string
}

type AggregatedBucketRow struct {
	SensorMAC      string
	Timestamp      int64
	AvgTemperature float64
	MinTemperature float64
	MaxTemperature float64
	AvgHumidity    *float64
	MinHumidity    *float64
	MaxHumidity    *float64
	DataPoints     int64
}

type SensorNameRow struct {
	SensorMAC  string
	CustomName string
	CreatedAt  int64
	UpdatedAt  int64
}

type SensorDataStatsRow struct {
	Readings        int64
	Sensors         int64
	OldestTimestamp *int64
	NewestTimestamp *int64
}

type ListAggregatedParams struct {
	Since         int64
	BucketSeconds int64
	Limit         int
}

type ListSensorDataParams struct {
	Since int64
	Limit int
}
