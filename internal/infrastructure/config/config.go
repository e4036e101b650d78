package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Inky display agent.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Display   DisplayConfig   `yaml:"display"`
	Store     StoreConfig     `yaml:"store"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	History   HistoryConfig   `yaml:"history"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DeviceConfig identifies this agent to the coordinator.
type DeviceConfig struct {
	// ID is the unique device identifier used in MQTT topics.
	ID string `yaml:"id"`

	// Room is an optional human-readable location label.
	Room string `yaml:"room"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`

	// ClientID is the MQTT client identifier. If empty, one is
	// generated from the device ID.
	ClientID string `yaml:"client_id"`

	// Transport selects the connection transport: "tcp" or "websocket".
	Transport string `yaml:"transport"`

	// WebsocketPath is the broker's websocket endpoint path (e.g. "/mqtt").
	// Only used when Transport is "websocket".
	WebsocketPath string `yaml:"websocket_path"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// DisplayConfig contains display hardware settings.
type DisplayConfig struct {
	// Orientation is "landscape" or "portrait".
	Orientation string `yaml:"orientation"`

	// Saturation is the colour saturation passed to the panel (0.0-1.0).
	Saturation float64 `yaml:"saturation"`

	// Helper is the path to the vendor refresh helper binary.
	Helper string `yaml:"helper"`

	// Mock replaces the hardware panel with an in-memory display.
	Mock bool `yaml:"mock"`

	// MockWidth and MockHeight size the mock display. Ignored for real
	// hardware, where dimensions are discovered from the panel.
	MockWidth  int `yaml:"mock_width"`
	MockHeight int `yaml:"mock_height"`
}

// StoreConfig contains object-store settings.
//
// These are normally supplied by the registration acknowledgment, but
// can be pre-configured for deployments without a coordinator.
type StoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Secure    bool   `yaml:"secure"`
}

// TelemetryConfig contains InfluxDB metrics settings.
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// HistoryConfig contains the local command log settings.
type HistoryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file with environment overrides.
//
// Environment variables follow the pattern INKY_SECTION_KEY.
// For example: INKY_DEVICE_ID, INKY_MQTT_HOST, INKY_STORE_SECRET_KEY.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := Default()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
//
// The defaults match a stock Inky Impression deployment talking to a
// local Mosquitto broker.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			ID: "inky-display",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:      "localhost",
				Port:      1883,
				Transport: "tcp",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 5,
				MaxDelay:     60,
			},
		},
		Display: DisplayConfig{
			Orientation: "landscape",
			Saturation:  0.5,
			Helper:      "/usr/local/bin/inky-refresh",
			MockWidth:   1600,
			MockHeight:  1200,
		},
		Store: StoreConfig{
			Endpoint: "localhost:9000",
			Bucket:   "inky-images",
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			BatchSize:     100,
			FlushInterval: 10,
		},
		History: HistoryConfig{
			Enabled:     false,
			Path:        "./data/inky-agent.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: INKY_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("INKY_DEVICE_ID"); v != "" {
		cfg.Device.ID = v
	}
	if v := os.Getenv("INKY_DEVICE_ROOM"); v != "" {
		cfg.Device.Room = v
	}

	// MQTT
	if v := os.Getenv("INKY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("INKY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("INKY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Store credentials (pre-configuration without a coordinator)
	if v := os.Getenv("INKY_STORE_ACCESS_KEY"); v != "" {
		cfg.Store.AccessKey = v
	}
	if v := os.Getenv("INKY_STORE_SECRET_KEY"); v != "" {
		cfg.Store.SecretKey = v
	}

	// Telemetry
	if v := os.Getenv("INKY_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}

	// History
	if v := os.Getenv("INKY_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Device validation
	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	switch c.MQTT.Broker.Transport {
	case "tcp", "websocket":
	default:
		errs = append(errs, "mqtt.broker.transport must be tcp or websocket")
	}
	if c.MQTT.Reconnect.InitialDelay < 1 {
		errs = append(errs, "mqtt.reconnect.initial_delay must be at least 1 second")
	}
	if c.MQTT.Reconnect.MaxDelay < c.MQTT.Reconnect.InitialDelay {
		errs = append(errs, "mqtt.reconnect.max_delay must not be below initial_delay")
	}

	// Display validation
	switch c.Display.Orientation {
	case "landscape", "portrait":
	default:
		errs = append(errs, "display.orientation must be landscape or portrait")
	}
	if c.Display.Saturation < 0.0 || c.Display.Saturation > 1.0 {
		errs = append(errs, "display.saturation must be between 0.0 and 1.0")
	}
	if c.Display.Mock && (c.Display.MockWidth <= 0 || c.Display.MockHeight <= 0) {
		errs = append(errs, "display.mock_width and display.mock_height must be positive")
	}
	if !c.Display.Mock && c.Display.Helper == "" {
		errs = append(errs, "display.helper is required when display.mock is false")
	}

	// Telemetry validation
	if c.Telemetry.Enabled && c.Telemetry.URL == "" {
		errs = append(errs, "telemetry.url is required when telemetry is enabled")
	}

	// History validation
	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReconnectInitialDelay returns the reconnect floor as a Duration.
func (c *MQTTConfig) ReconnectInitialDelay() time.Duration {
	return time.Duration(c.Reconnect.InitialDelay) * time.Second
}

// ReconnectMaxDelay returns the reconnect cap as a Duration.
func (c *MQTTConfig) ReconnectMaxDelay() time.Duration {
	return time.Duration(c.Reconnect.MaxDelay) * time.Second
}
