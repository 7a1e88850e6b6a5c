package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "LUMI_"

// Config is the root configuration structure for lumid.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Ledger    LedgerConfig    `yaml:"ledger"`
	Chain     ChainConfig     `yaml:"chain"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LedgerConfig contains the state machine's authority and policy settings.
// Every executor replaying the same chain must use identical values.
type LedgerConfig struct {
	// Administrator is the identity allowed to register devices.
	Administrator string `yaml:"administrator"`

	// TriggerPolicy is "future" (trigger height must exceed the creation
	// height) or "immediate".
	TriggerPolicy string `yaml:"trigger_policy"`

	// GroupExecution is "best-effort" or "all-or-nothing".
	GroupExecution string `yaml:"group_execution"`
}

// ChainConfig contains block ingestion and keeper settings.
type ChainConfig struct {
	// Enabled starts the block follower. When false lumid only serves reads.
	Enabled bool `yaml:"enabled"`

	// Keeper enables submission of execute-schedule requests for due schedules.
	Keeper KeeperConfig `yaml:"keeper"`
}

// KeeperConfig contains schedule keeper settings.
type KeeperConfig struct {
	Enabled bool `yaml:"enabled"`

	// Identity is the caller the keeper submits requests as.
	Identity string `yaml:"identity"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains the read-only HTTP API settings.
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

// WebSocketConfig contains WebSocket receipt stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LUMI_SECTION_KEY
// For example: LUMI_DATABASE_PATH, LUMI_LEDGER_ADMINISTRATOR
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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Ledger: LedgerConfig{
			TriggerPolicy:  "future",
			GroupExecution: "best-effort",
		},
		Chain: ChainConfig{
			Enabled: true,
		},
		Database: DatabaseConfig{
			Path:        "./data/lumi.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "lumid",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "lumi",
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

// applyEnvOverrides applies LUMI_* environment variable overrides.
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"LEDGER_ADMINISTRATOR":   &cfg.Ledger.Administrator,
		"LEDGER_TRIGGER_POLICY":  &cfg.Ledger.TriggerPolicy,
		"LEDGER_GROUP_EXECUTION": &cfg.Ledger.GroupExecution,
		"CHAIN_KEEPER_IDENTITY":  &cfg.Chain.Keeper.Identity,
		"DATABASE_PATH":          &cfg.Database.Path,
		"MQTT_HOST":              &cfg.MQTT.Broker.Host,
		"MQTT_CLIENT_ID":         &cfg.MQTT.Broker.ClientID,
		"MQTT_USERNAME":          &cfg.MQTT.Auth.Username,
		"MQTT_PASSWORD":          &cfg.MQTT.Auth.Password,
		"API_HOST":               &cfg.API.Host,
		"INFLUXDB_URL":           &cfg.InfluxDB.URL,
		"INFLUXDB_TOKEN":         &cfg.InfluxDB.Token,
		"LOG_LEVEL":              &cfg.Logging.Level,
	}
	for key, dst := range strs {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MQTT_PORT": &cfg.MQTT.Broker.Port,
		"API_PORT":  &cfg.API.Port,
	}
	for key, dst := range ints {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parsing %s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"CHAIN_ENABLED":        &cfg.Chain.Enabled,
		"CHAIN_KEEPER_ENABLED": &cfg.Chain.Keeper.Enabled,
		"API_ENABLED":          &cfg.API.Enabled,
		"INFLUXDB_ENABLED":     &cfg.InfluxDB.Enabled,
	}
	for key, dst := range bools {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("parsing %s%s: %w", EnvPrefix, key, err)
			}
			*dst = b
		}
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Ledger.Administrator == "" {
		errs = append(errs, "ledger.administrator is required (set LUMI_LEDGER_ADMINISTRATOR)")
	}
	switch c.Ledger.TriggerPolicy {
	case "future", "immediate":
	default:
		errs = append(errs, `ledger.trigger_policy must be "future" or "immediate"`)
	}
	switch c.Ledger.GroupExecution {
	case "best-effort", "all-or-nothing":
	default:
		errs = append(errs, `ledger.group_execution must be "best-effort" or "all-or-nothing"`)
	}

	if c.Chain.Keeper.Enabled && c.Chain.Keeper.Identity == "" {
		errs = append(errs, "chain.keeper.identity is required when the keeper is enabled")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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
