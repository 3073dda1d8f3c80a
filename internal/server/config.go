package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/benedict2310/sensorcast/internal/hub"
	"github.com/benedict2310/sensorcast/internal/ingest"
	"github.com/benedict2310/sensorcast/internal/store"
)

const (
	DefaultBindAddr          = "127.0.0.1"
	DefaultPort              = 8090
	DefaultDataDir           = "/var/lib/sensorcast"
	DefaultLogLevel          = "info"
	DefaultTransportKind     = "mqtt"
	DefaultTransportURL      = "tcp://127.0.0.1:1883"
	DefaultTransportClientID = "sensorcast"
	DefaultRetentionDays     = 90
	DefaultRetentionInterval = time.Hour

	maxHubRequestBytes = 64 * 1024
)

type Config struct {
	BindAddr  string          `yaml:"bind"`
	Port      int             `yaml:"port"`
	DataDir   string          `yaml:"dataDir"`
	LogLevel  string          `yaml:"logLevel"`
	DBPath    string          `yaml:"dbPath"`
	DBWAL     bool            `yaml:"dbWAL"`
	Transport TransportConfig `yaml:"transport"`
	Admin     AdminConfig     `yaml:"admin"`
	Retention RetentionConfig `yaml:"retention"`
	Hub       HubConfig       `yaml:"hub"`
}

type TransportConfig struct {
	Kind              string        `yaml:"kind"`
	URL               string        `yaml:"url"`
	ClientID          string        `yaml:"clientID"`
	Username          string        `yaml:"username,omitempty"`
	Password          string        `yaml:"password,omitempty"`
	QoS               int           `yaml:"qos"`
	ReconnectInterval time.Duration `yaml:"reconnectInterval"`
}

type AdminConfig struct {
	// Password is plain text or a bcrypt hash. Empty disables admin
	// operations.
	Password    string        `yaml:"password,omitempty"`
	SessionTTL  time.Duration `yaml:"sessionTTL"`
	MaxSessions int           `yaml:"maxSessions"`
}

type RetentionConfig struct {
	// Days of readings to keep; 0 disables the cleanup loop.
	Days     int           `yaml:"days"`
	Interval time.Duration `yaml:"interval"`
}

type HubConfig struct {
	DefaultTimeRange string `yaml:"defaultTimeRange"`
	MaxRequestBytes  int    `yaml:"maxRequestBytes"`
}

func DefaultConfig() Config {
	return Config{
		BindAddr: DefaultBindAddr,
		Port:     DefaultPort,
		DataDir:  DefaultDataDir,
		LogLevel: DefaultLogLevel,
		DBPath:   "",
		DBWAL:    true,
		Transport: TransportConfig{
			Kind:              DefaultTransportKind,
			URL:               DefaultTransportURL,
			ClientID:          DefaultTransportClientID,
			QoS:               0,
			ReconnectInterval: ingest.DefaultReconnectInterval,
		},
		Admin: AdminConfig{
			SessionTTL:  hub.DefaultSessionTTL,
			MaxSessions: hub.DefaultMaxSessions,
		},
		Retention: RetentionConfig{
			Days:     DefaultRetentionDays,
			Interval: DefaultRetentionInterval,
		},
		Hub: HubConfig{
			DefaultTimeRange: string(store.DefaultTimeRange),
			MaxRequestBytes:  hub.DefaultMaxRequestBytes,
		},
	}
}

func LoadConfig(configPath string) (Config, error) {
	cfg := DefaultConfig()

	if strings.TrimSpace(configPath) != "" {
		b, err := os.ReadFile(configPath)
		if err != nil {
			return cfg, fmt.Errorf("read config file %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	}

	envString("SENSORCAST_BIND", &cfg.BindAddr)
	if err := envInt("SENSORCAST_PORT", &cfg.Port); err != nil {
		return cfg, err
	}
	envString("SENSORCAST_DATA_DIR", &cfg.DataDir)
	envString("SENSORCAST_LOG_LEVEL", &cfg.LogLevel)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	envString("SENSORCAST_DB_PATH", &cfg.DBPath)
	if err := envBool("SENSORCAST_DB_WAL", &cfg.DBWAL); err != nil {
		return cfg, err
	}

	envString("SENSORCAST_TRANSPORT_KIND", &cfg.Transport.Kind)
	envString("SENSORCAST_TRANSPORT_URL", &cfg.Transport.URL)
	envString("SENSORCAST_TRANSPORT_CLIENT_ID", &cfg.Transport.ClientID)
	envString("SENSORCAST_TRANSPORT_USERNAME", &cfg.Transport.Username)
	envString("SENSORCAST_TRANSPORT_PASSWORD", &cfg.Transport.Password)
	if err := envInt("SENSORCAST_TRANSPORT_QOS", &cfg.Transport.QoS); err != nil {
		return cfg, err
	}
	if err := envDuration("SENSORCAST_TRANSPORT_RECONNECT_INTERVAL", &cfg.Transport.ReconnectInterval); err != nil {
		return cfg, err
	}

	envString("SENSORCAST_ADMIN_PASSWORD", &cfg.Admin.Password)
	if err := envDuration("SENSORCAST_ADMIN_SESSION_TTL", &cfg.Admin.SessionTTL); err != nil {
		return cfg, err
	}
	if err := envInt("SENSORCAST_ADMIN_MAX_SESSIONS", &cfg.Admin.MaxSessions); err != nil {
		return cfg, err
	}

	if err := envInt("SENSORCAST_RETENTION_DAYS", &cfg.Retention.Days); err != nil {
		return cfg, err
	}
	if err := envDuration("SENSORCAST_RETENTION_INTERVAL", &cfg.Retention.Interval); err != nil {
		return cfg, err
	}

	envString("SENSORCAST_HUB_DEFAULT_TIME_RANGE", &cfg.Hub.DefaultTimeRange)
	if err := envInt("SENSORCAST_HUB_MAX_REQUEST_BYTES", &cfg.Hub.MaxRequestBytes); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func envString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	*dst = parsed
	return nil
}

func envBool(key string, dst *bool) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	*dst = parsed
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s=%q: %w", key, v, err)
	}
	*dst = parsed
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BindAddr) == "" {
		return fmt.Errorf("bind address is required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in range 0..65535")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data directory is required")
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := ingest.ParseTransportKind(c.Transport.Kind); err != nil {
		return err
	}
	if strings.TrimSpace(c.Transport.URL) == "" {
		return fmt.Errorf("transport.url is required")
	}
	if c.Transport.QoS != 0 && c.Transport.QoS != 1 {
		return fmt.Errorf("transport.qos must be 0 or 1")
	}
	if c.Transport.ReconnectInterval <= 0 {
		return fmt.Errorf("transport.reconnectInterval must be positive")
	}
	if c.Admin.SessionTTL <= 0 {
		return fmt.Errorf("admin.sessionTTL must be positive")
	}
	if c.Admin.MaxSessions <= 0 {
		return fmt.Errorf("admin.maxSessions must be positive")
	}
	if c.Retention.Days < 0 {
		return fmt.Errorf("retention.days must not be negative")
	}
	if c.Retention.Days > 0 && c.Retention.Interval <= 0 {
		return fmt.Errorf("retention.interval must be positive when retention is enabled")
	}
	if _, err := store.ParseTimeRange(c.Hub.DefaultTimeRange); err != nil {
		return fmt.Errorf("hub.defaultTimeRange: %w", err)
	}
	if c.Hub.MaxRequestBytes <= 0 || c.Hub.MaxRequestBytes > maxHubRequestBytes {
		return fmt.Errorf("hub.maxRequestBytes must be in range 1..%d", maxHubRequestBytes)
	}
	return nil
}

// ResolveDBPath returns dbPath when set and the default file under dataDir
// otherwise.
func (c Config) ResolveDBPath() string {
	if p := strings.TrimSpace(c.DBPath); p != "" {
		return p
	}
	return filepath.Join(c.DataDir, DBFileName)
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.Port)
}
