package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sgnexus/autobright/internal/state"
)

// Config is the root configuration structure for the autobright daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Display    DisplayConfig    `yaml:"display"`
	Sensor     SensorConfig     `yaml:"sensor"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ControllerConfig tunes the control loop and its strategy.
type ControllerConfig struct {
	// Strategy selects the brightness mapping: "default", "linear" or "banded".
	Strategy string `yaml:"strategy"`

	// MaxLux is the illuminance treated as full scale by the linear and
	// banded strategies.
	MaxLux float64 `yaml:"max_lux"`

	// DefaultLevel is the relative level used until a preference is stored.
	DefaultLevel int `yaml:"default_level"`

	// Step is the increase/decrease increment for the relative level.
	Step int `yaml:"step"`

	// SenseIntervalMs is the minimum spacing between accepted sensor readings.
	SenseIntervalMs int `yaml:"sense_interval_ms"`

	// LuxEpsilon is the smallest lux change that counts as a new reading.
	// Zero means exact equality.
	LuxEpsilon float64 `yaml:"lux_epsilon"`

	// AutoStart starts the control loop when the daemon starts.
	AutoStart bool `yaml:"auto_start"`
}

// DisplayConfig selects the brightness gateway.
type DisplayConfig struct {
	// Backend is "sysfs" for a Linux backlight device or "memory" for development.
	Backend string `yaml:"backend"`

	// BacklightDir is the sysfs backlight class directory,
	// e.g. /sys/class/backlight/intel_backlight.
	BacklightDir string `yaml:"backlight_dir"`

	// ModeFile holds "manual" or "automatic". Missing means manual.
	ModeFile string `yaml:"mode_file"`

	// PollIntervalMs is the fallback polling period for attributes that do
	// not raise inotify events.
	PollIntervalMs int `yaml:"poll_interval_ms"`

	// WatchPower follows bl_power to pause sensing while the panel is off.
	WatchPower bool `yaml:"watch_power"`
}

// SensorConfig selects the light sensor source.
type SensorConfig struct {
	// Backend is "iio" for an industrial-I/O light sensor or "mqtt".
	Backend string `yaml:"backend"`

	// IIODevice is the IIO device directory, e.g. /sys/bus/iio/devices/iio:device0.
	IIODevice string `yaml:"iio_device"`

	// PollIntervalMs is the IIO polling period.
	PollIntervalMs int `yaml:"poll_interval_ms"`

	// Topic is the MQTT topic carrying illuminance readings.
	Topic string `yaml:"topic"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetentionDays bounds the brightness history table. Zero keeps
	// every row.
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// Output is "stdout", "stderr" or a file path.
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: AUTOBRIGHT_SECTION_KEY
// For example: AUTOBRIGHT_DATABASE_PATH, AUTOBRIGHT_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return finish(cfg)
}

// LoadOptional behaves like Load but falls back to the defaults when the
// file does not exist. A desktop install normally runs without any file.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return finish(defaultConfig())
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Controller: ControllerConfig{
			Strategy:        "default",
			MaxLux:          1000,
			DefaultLevel:    50,
			Step:            10,
			SenseIntervalMs: 2000,
			LuxEpsilon:      0.1,
			AutoStart:       true,
		},
		Display: DisplayConfig{
			Backend:        "sysfs",
			BacklightDir:   "/sys/class/backlight/intel_backlight",
			ModeFile:       "/run/autobright/mode",
			PollIntervalMs: 500,
			WatchPower:     true,
		},
		Sensor: SensorConfig{
			Backend:        "iio",
			IIODevice:      "/sys/bus/iio/devices/iio:device0",
			PollIntervalMs: 250,
			Topic:          "autobright/sensor/lux",
		},
		Database: DatabaseConfig{
			Path:                 "./data/autobright.db",
			WALMode:              true,
			BusyTimeout:          5,
			HistoryRetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "autobright",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8765,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Org:           "autobright",
			Bucket:        "brightness",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: AUTOBRIGHT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Controller
	if v := os.Getenv("AUTOBRIGHT_CONTROLLER_STRATEGY"); v != "" {
		cfg.Controller.Strategy = v
	}
	if v, ok := envInt("AUTOBRIGHT_CONTROLLER_SENSE_INTERVAL_MS"); ok {
		cfg.Controller.SenseIntervalMs = v
	}

	// Display / sensor
	if v := os.Getenv("AUTOBRIGHT_DISPLAY_BACKEND"); v != "" {
		cfg.Display.Backend = v
	}
	if v := os.Getenv("AUTOBRIGHT_DISPLAY_BACKLIGHT_DIR"); v != "" {
		cfg.Display.BacklightDir = v
	}
	if v := os.Getenv("AUTOBRIGHT_SENSOR_BACKEND"); v != "" {
		cfg.Sensor.Backend = v
	}
	if v := os.Getenv("AUTOBRIGHT_SENSOR_IIO_DEVICE"); v != "" {
		cfg.Sensor.IIODevice = v
	}

	// Database
	if v := os.Getenv("AUTOBRIGHT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("AUTOBRIGHT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("AUTOBRIGHT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("AUTOBRIGHT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("AUTOBRIGHT_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v, ok := envInt("AUTOBRIGHT_API_PORT"); ok {
		cfg.API.Port = v
	}

	// InfluxDB
	if v := os.Getenv("AUTOBRIGHT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("AUTOBRIGHT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// envInt reads an integer environment variable. Unparseable values are ignored.
func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Controller validation
	switch c.Controller.Strategy {
	case "default", "linear", "banded":
	default:
		errs = append(errs, fmt.Sprintf("controller.strategy %q must be \"default\", \"linear\" or \"banded\"", c.Controller.Strategy))
	}
	if c.Controller.Strategy != "default" && c.Controller.MaxLux <= 0 {
		errs = append(errs, "controller.max_lux must be positive")
	}
	if c.Controller.DefaultLevel < 0 || c.Controller.DefaultLevel > 100 {
		errs = append(errs, "controller.default_level must be between 0 and 100")
	}
	if c.Controller.Step < 1 || c.Controller.Step > 100 {
		errs = append(errs, "controller.step must be between 1 and 100")
	}
	if c.Controller.SenseIntervalMs <= 0 || int64(c.Controller.SenseIntervalMs) > state.MaxSenseInterval.Milliseconds() {
		errs = append(errs, "controller.sense_interval_ms must be positive and at most one day")
	}
	if c.Controller.LuxEpsilon < 0 {
		errs = append(errs, "controller.lux_epsilon must not be negative")
	}

	// Display validation
	switch c.Display.Backend {
	case "sysfs":
		if c.Display.BacklightDir == "" {
			errs = append(errs, "display.backlight_dir is required for the sysfs backend")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("display.backend %q must be \"sysfs\" or \"memory\"", c.Display.Backend))
	}

	// Sensor validation
	switch c.Sensor.Backend {
	case "iio":
		if c.Sensor.IIODevice == "" {
			errs = append(errs, "sensor.iio_device is required for the iio backend")
		}
	case "mqtt":
		if !c.MQTT.Enabled {
			errs = append(errs, "sensor.backend mqtt requires mqtt.enabled")
		}
		if c.Sensor.Topic == "" {
			errs = append(errs, "sensor.topic is required for the mqtt backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("sensor.backend %q must be \"iio\" or \"mqtt\"", c.Sensor.Backend))
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.HistoryRetentionDays < 0 {
		errs = append(errs, "database.history_retention_days must not be negative")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// SenseInterval returns the controller sense interval as a Duration.
func (c *Config) SenseInterval() time.Duration {
	return time.Duration(c.Controller.SenseIntervalMs) * time.Millisecond
}

// DisplayPollInterval returns the display fallback polling period.
func (c *Config) DisplayPollInterval() time.Duration {
	return time.Duration(c.Display.PollIntervalMs) * time.Millisecond
}

// SensorPollInterval returns the IIO polling period.
func (c *Config) SensorPollInterval() time.Duration {
	return time.Duration(c.Sensor.PollIntervalMs) * time.Millisecond
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
