package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned (wrapped) when validation fails.
// The process must refuse to start when Load returns it.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the root configuration structure for wlddc.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT          MQTTConfig          `yaml:"mqtt"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Agent         AgentConfig         `yaml:"agent"`
	Tools         ToolsConfig         `yaml:"tools"`
	Displays      DisplaysConfig      `yaml:"displays"`
	Database      DatabaseConfig      `yaml:"database"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	API           APIConfig           `yaml:"api"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	KeepAlive int                 `yaml:"keepalive"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	// Host is the broker address, or BrokerAuto to find it via mDNS.
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

// MQTTReconnectConfig tunes the agent's reconnect backoff.
type MQTTReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`

	// Jitter is the fraction (0 <= j < 1) by which a delay may be shortened.
	Jitter float64 `yaml:"jitter"`

	// StableAfter is how long a connection must stay up before the
	// backoff attempt counter is reset.
	StableAfter time.Duration `yaml:"stable_after"`
}

// BrokerAuto as the broker host selects mDNS discovery of _mqtt._tcp.
const BrokerAuto = "auto"

// HomeAssistantConfig contains MQTT discovery settings.
type HomeAssistantConfig struct {
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	DeviceID        string `yaml:"device_id"`
	DeviceName      string `yaml:"device_name"`
}

// AgentConfig contains poll and command execution settings.
type AgentConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// CommandRetries is the number of retries after the first attempt.
	CommandRetries int           `yaml:"command_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
	CommandQueue   int           `yaml:"command_queue"`
	WatchConfig    bool          `yaml:"watch_config"`
	ResumeRefresh  bool          `yaml:"resume_refresh"`
}

// ToolsConfig names the external binaries used for enumeration and control.
type ToolsConfig struct {
	WlrRandr string `yaml:"wlr_randr"`
	DDCUtil  string `yaml:"ddcutil"`
}

// DisplaysConfig contains manual correlation overrides.
type DisplaysConfig struct {
	Overrides []OverrideConfig `yaml:"overrides"`
}

// OverrideConfig pins a compositor output to a DDC/CI bus.
type OverrideConfig struct {
	Output string `yaml:"output"`
	Bus    string `yaml:"bus,omitempty"`

	// DDCBus is the legacy numeric form of Bus ("ddc_bus: 7" → /dev/i2c-7).
	DDCBus *int `yaml:"ddc_bus,omitempty"`

	// BrightnessEnabled defaults to true. False forces a power-only display.
	BrightnessEnabled *bool `yaml:"brightness_enabled,omitempty"`
}

// BusPath returns the normalised bus path of the override, or "" for a
// power-only pin.
func (o OverrideConfig) BusPath() string {
	if o.Bus != "" {
		return o.Bus
	}
	if o.DDCBus != nil {
		return "/dev/i2c-" + strconv.Itoa(*o.DDCBus)
	}
	return ""
}

// Brightness reports whether brightness control is allowed for the pin.
func (o OverrideConfig) Brightness() bool {
	return o.BrightnessEnabled == nil || *o.BrightnessEnabled
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// HistoryRetention is how long command history is kept. Zero keeps it forever.
	HistoryRetention time.Duration `yaml:"history_retention"`
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

// APIConfig contains the status HTTP server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`

	// TokenSecret signs bearer tokens for POST endpoints. Empty leaves
	// them open, which is only sensible on a loopback listener.
	TokenSecret string `yaml:"token_secret"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Poll interval bounds accepted by Validate.
const (
	minPollInterval = 5 * time.Second
	maxPollInterval = 5 * time.Minute
	maxRetries      = 5
	minTokenSecret  = 16
)

// topicSafe matches identifiers that can be embedded in a single MQTT topic level.
var topicSafe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: WLDDC_SECTION_KEY
// For example: WLDDC_MQTT_HOST, WLDDC_POLL_INTERVAL
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// ResolvePath picks the configuration file to load.
//
// An explicit path always wins, then WLDDC_CONFIG, then the first existing
// of $XDG_CONFIG_HOME/wlddc/config.yaml and ./config.yaml. An empty result
// means "defaults only".
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v := os.Getenv("WLDDC_CONFIG"); v != "" {
		return v
	}
	for _, candidate := range []string{DefaultPath(), "config.yaml"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// DefaultPath returns the per-user configuration file location.
func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "wlddc", "config.yaml")
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "wlddc", "config.yaml")
}

// defaultStatePath returns the per-user state directory location of the database.
func defaultStatePath() string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", "wlddc.db")
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "wlddc", "wlddc.db")
}

// Default returns a Config populated with defaults only.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "wlddc",
			},
			QoS:       1,
			KeepAlive: 60,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 5 * time.Second,
				MaxDelay:     120 * time.Second,
				Multiplier:   2,
				Jitter:       0.25,
				StableAfter:  30 * time.Second,
			},
		},
		HomeAssistant: HomeAssistantConfig{
			DiscoveryPrefix: "homeassistant",
			DeviceID:        "wlddc",
			DeviceName:      "Wayland Monitor Controller",
		},
		Agent: AgentConfig{
			PollInterval:   30 * time.Second,
			CommandTimeout: 10 * time.Second,
			CommandRetries: 2,
			RetryDelay:     500 * time.Millisecond,
			DrainTimeout:   5 * time.Second,
			CommandQueue:   4,
			WatchConfig:    true,
			ResumeRefresh:  true,
		},
		Tools: ToolsConfig{
			WlrRandr: "wlr-randr",
			DDCUtil:  "ddcutil",
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        defaultStatePath(),
			WALMode:     true,
			BusyTimeout: 5,

			HistoryRetention: 30 * 24 * time.Hour,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 9477,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: WLDDC_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// MQTT
	if v := os.Getenv("WLDDC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("WLDDC_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: WLDDC_MQTT_PORT: %w", ErrInvalidConfig, err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("WLDDC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("WLDDC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("WLDDC_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}

	// Home Assistant
	if v := os.Getenv("WLDDC_DEVICE_ID"); v != "" {
		cfg.HomeAssistant.DeviceID = v
	}

	// Agent
	if v := os.Getenv("WLDDC_POLL_INTERVAL"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("%w: WLDDC_POLL_INTERVAL: %w", ErrInvalidConfig, err)
		}
		cfg.Agent.PollInterval = d
	}

	// Logging
	if v := os.Getenv("WLDDC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	// Database
	if v := os.Getenv("WLDDC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("WLDDC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// API
	if v := os.Getenv("WLDDC_API_TOKEN_SECRET"); v != "" {
		cfg.API.TokenSecret = v
	}

	return nil
}

// parseSeconds accepts either a Go duration ("45s") or a bare number of seconds ("45").
func parseSeconds(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// Validate checks the configuration for errors.
//
// Every problem is collected so a single run reports all of them.
//
// Returns:
//   - error: wraps ErrInvalidConfig, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.KeepAlive < 1 {
		errs = append(errs, "mqtt.keepalive must be positive")
	}

	rc := c.MQTT.Reconnect
	if rc.InitialDelay <= 0 {
		errs = append(errs, "mqtt.reconnect.initial_delay must be positive")
	}
	if rc.MaxDelay < rc.InitialDelay {
		errs = append(errs, "mqtt.reconnect.max_delay must not be less than initial_delay")
	}
	if rc.Multiplier < 1 {
		errs = append(errs, "mqtt.reconnect.multiplier must be at least 1")
	}
	if rc.Jitter < 0 || rc.Jitter >= 1 {
		errs = append(errs, "mqtt.reconnect.jitter must be in [0, 1)")
	}

	// Home Assistant validation
	if c.HomeAssistant.DiscoveryPrefix == "" {
		errs = append(errs, "homeassistant.discovery_prefix is required")
	}
	if !topicSafe.MatchString(c.HomeAssistant.DeviceID) {
		errs = append(errs, "homeassistant.device_id must contain only letters, digits, '_' or '-'")
	}

	// Agent validation
	if c.Agent.PollInterval < minPollInterval || c.Agent.PollInterval > maxPollInterval {
		errs = append(errs, fmt.Sprintf("agent.poll_interval must be between %s and %s", minPollInterval, maxPollInterval))
	}
	if c.Agent.CommandTimeout <= 0 {
		errs = append(errs, "agent.command_timeout must be positive")
	}
	if c.Agent.CommandRetries < 0 || c.Agent.CommandRetries > maxRetries {
		errs = append(errs, fmt.Sprintf("agent.command_retries must be between 0 and %d", maxRetries))
	}
	if c.Agent.RetryDelay < 0 {
		errs = append(errs, "agent.retry_delay must not be negative")
	}
	if c.Agent.CommandQueue < 1 {
		errs = append(errs, "agent.command_queue must be at least 1")
	}

	// Tools validation
	if c.Tools.WlrRandr == "" || c.Tools.DDCUtil == "" {
		errs = append(errs, "tools.wlr_randr and tools.ddcutil are required")
	}

	errs = append(errs, c.Displays.validate()...)

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}
	if c.Database.HistoryRetention < 0 {
		errs = append(errs, "database.history_retention must not be negative")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "" || c.InfluxDB.Org == "" {
			errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.TokenSecret != "" && len(c.API.TokenSecret) < minTokenSecret {
		errs = append(errs, fmt.Sprintf("api.token_secret must be at least %d characters", minTokenSecret))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

// validate checks the override list for missing fields and duplicate pins.
func (d DisplaysConfig) validate() []string {
	var errs []string
	outputs := make(map[string]bool, len(d.Overrides))
	buses := make(map[string]bool, len(d.Overrides))

	for i, o := range d.Overrides {
		if o.Output == "" {
			errs = append(errs, fmt.Sprintf("displays.overrides[%d].output is required", i))
			continue
		}
		if o.Bus != "" && o.DDCBus != nil {
			errs = append(errs, fmt.Sprintf("displays.overrides[%d]: set bus or ddc_bus, not both", i))
		}
		if o.DDCBus != nil && *o.DDCBus < 0 {
			errs = append(errs, fmt.Sprintf("displays.overrides[%d].ddc_bus must not be negative", i))
		}
		if outputs[o.Output] {
			errs = append(errs, fmt.Sprintf("displays.overrides: output %q pinned more than once", o.Output))
		}
		outputs[o.Output] = true

		if bus := o.BusPath(); bus != "" {
			if buses[bus] {
				errs = append(errs, fmt.Sprintf("displays.overrides: bus %q pinned more than once", bus))
			}
			buses[bus] = true
		}
	}

	return errs
}

// MQTTQoS returns the configured QoS as a byte for the MQTT client.
func (c *Config) MQTTQoS() byte {
	return byte(c.MQTT.QoS) //nolint:gosec // validated to 0-2
}
