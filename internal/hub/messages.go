package hub

import "github.com/benedict2310/sensorcast/internal/store"

type RequestKind string

const (
	RequestGetData           RequestKind = "getData"
	RequestGetLatestReadings RequestKind = "getLatestReadings"
	RequestAdminAuth         RequestKind = "adminAuth"
	RequestGetSensorNames    RequestKind = "getSensorNames"
	RequestSetSensorName     RequestKind = "setSensorName"
	RequestDeleteSensorName  RequestKind = "deleteSensorName"
)

const (
	TypeSensorData        = "sensorData"
	TypeHistoricalData    = "historicalData"
	TypeLatestReadings    = "latestReadings"
	TypeAdminAuthResult   = "adminAuthResult"
	TypeSensorNames       = "sensorNames"
	TypeSensorNameSet     = "sensorNameSet"
	TypeSensorNameDeleted = "sensorNameDeleted"
	TypeError             = "error"
)

// Messages sent back to a requester on failure. Details stay in the log.
const (
	msgLoadFailed    = "failed to load data"
	msgInvalidRange  = "invalid time range"
	msgInvalidName   = "invalid sensor name"
	msgSaveFailed    = "failed to save sensor name"
	msgDeleteFailed  = "failed to delete sensor name"
	msgUnauthorized  = "unauthorized"
	msgAdminDisabled = "admin access is not configured"
)

type request struct {
	Type       RequestKind `json:"type"`
	TimeRange  string      `json:"timeRange,omitempty"`
	Password   string      `json:"password,omitempty"`
	SensorMAC  string      `json:"sensorMac,omitempty"`
	CustomName string      `json:"customName,omitempty"`
	AdminToken string      `json:"adminToken,omitempty"`
}

// LiveReading is the broadcast subset of a reading.
type LiveReading struct {
	SensorMAC   string   `json:"sensorMac"`
	Temperature float64  `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Timestamp   int64    `json:"timestamp"`
}

type sensorDataMessage struct {
	Type string      `json:"type"`
	Data LiveReading `json:"data"`
}

type historicalDataMessage struct {
	Type       string          `json:"type"`
	Data       []store.Bucket  `json:"data"`
	TimeRange  store.TimeRange `json:"timeRange"`
	BucketSize int64           `json:"bucketSize"`
	Truncated  bool            `json:"truncated"`
}

type latestReadingsMessage struct {
	Type       string                `json:"type"`
	Data       []store.LatestReading `json:"data"`
	ServerTime int64                 `json:"serverTime"`
}

type adminAuthResultMessage struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
}

type sensorNamesMessage struct {
	Type string             `json:"type"`
	Data []store.SensorName `json:"data"`
}

type sensorNameSetMessage struct {
	Type       string `json:"type"`
	Success    bool   `json:"success"`
	SensorMAC  string `json:"sensorMac"`
	CustomName string `json:"customName"`
}

type sensorNameDeletedMessage struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	SensorMAC string `json:"sensorMac"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
