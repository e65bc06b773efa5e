package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration of the DCCLite broker. It is loaded from
// YAML and can be overridden by environment variables.
type Config struct {
	Broker    BrokerConfig    `yaml:"broker"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Trace     TraceConfig     `yaml:"trace"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BrokerConfig contains the UDP session protocol settings.
type BrokerConfig struct {
	// Name identifies this broker in logs, MQTT topics and mDNS.
	Name string `yaml:"name"`

	// Port is the UDP port devices talk to.
	Port int `yaml:"port"`

	// DevicesFile lists the registered devices and their decoders.
	DevicesFile string `yaml:"devices_file"`

	// TickInterval is how often the domain loop fires timers.
	TickInterval time.Duration `yaml:"tick_interval"`

	// QueueSize bounds the inbound datagram and command queues.
	QueueSize int `yaml:"queue_size"`

	Timing TimingConfig `yaml:"timing"`
}

// TimingConfig overrides the protocol retry and timeout policy. Zero values
// keep the protocol defaults.
type TimingConfig struct {
	ConfigRetry      time.Duration `yaml:"config_retry"`
	SyncRetry        time.Duration `yaml:"sync_retry"`
	StateTick        time.Duration `yaml:"state_tick"`
	StateMinInterval time.Duration `yaml:"state_min_interval"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	Timeout          time.Duration `yaml:"timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string        `yaml:"path"`
	WALMode     bool          `yaml:"wal_mode"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT bridge settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`

	// HealthInterval is how often the bridge publishes its status.
	HealthInterval time.Duration `yaml:"health_interval"`
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

// MQTTReconnectConfig contains MQTT reconnection settings, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	WS       WebSocketConfig  `yaml:"websocket"`
	Auth     APIAuthConfig    `yaml:"auth"`
}

// APIAuthConfig enables bearer-token authentication on the API. Tokens are
// signed with Secret; TokenTTL (hours) is the lifetime of issued tokens.
type APIAuthConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Secret   string `yaml:"secret"`
	TokenTTL int    `yaml:"token_ttl"`
}

// CORSConfig lists the origins allowed to call the API. An empty list
// allows every origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains event stream settings. Intervals are in seconds.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// APITimeoutConfig contains HTTP timeouts in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// DiscoveryConfig controls the mDNS advertisement of the broker.
type DiscoveryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
}

// TraceConfig controls the packet trace recorder.
type TraceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains rotating file output settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load layers config.yaml over Default, then applies DCCLITE_* environment
// overrides (DCCLITE_BROKER_PORT, DCCLITE_MQTT_PASSWORD, ...) and validates
// the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration. The broker runs with it when
// no config file is given.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Name:         "dcclite",
			Port:         2181,
			DevicesFile:  "./devices.yaml",
			TickInterval: 5 * time.Millisecond,
			QueueSize:    256,
		},
		Database: DatabaseConfig{
			Path:        "./data/dcclite.db",
			WALMode:     true,
			BusyTimeout: 5 * time.Second,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "dcclite-broker",
			},
			QoS:         1,
			TopicPrefix: "dcclite",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			HealthInterval: 30 * time.Second,
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "dcclite",
			Bucket:        "layout",
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8181,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
			WS: WebSocketConfig{
				MaxMessageSize: 4096,
				PingInterval:   30,
				PongTimeout:    10,
			},
			Auth: APIAuthConfig{
				TokenTTL: 24,
			},
		},
		Discovery: DiscoveryConfig{
			Enabled: true,
		},
		Trace: TraceConfig{
			Path: "./data/packets.trace",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies DCCLITE_* environment variables.
func applyEnvOverrides(cfg *Config) error {
	strs := []struct {
		env string
		dst *string
	}{
		{"DCCLITE_BROKER_NAME", &cfg.Broker.Name},
		{"DCCLITE_BROKER_DEVICES_FILE", &cfg.Broker.DevicesFile},
		{"DCCLITE_DATABASE_PATH", &cfg.Database.Path},
		{"DCCLITE_MQTT_HOST", &cfg.MQTT.Broker.Host},
		{"DCCLITE_MQTT_USERNAME", &cfg.MQTT.Auth.Username},
		{"DCCLITE_MQTT_PASSWORD", &cfg.MQTT.Auth.Password},
		{"DCCLITE_INFLUXDB_URL", &cfg.InfluxDB.URL},
		{"DCCLITE_INFLUXDB_TOKEN", &cfg.InfluxDB.Token},
		{"DCCLITE_API_HOST", &cfg.API.Host},
		{"DCCLITE_API_SECRET", &cfg.API.Auth.Secret},
		{"DCCLITE_LOG_LEVEL", &cfg.Logging.Level},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
		}
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"DCCLITE_BROKER_PORT", &cfg.Broker.Port},
		{"DCCLITE_MQTT_PORT", &cfg.MQTT.Broker.Port},
		{"DCCLITE_API_PORT", &cfg.API.Port},
	}
	for _, i := range ints {
		v := os.Getenv(i.env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", i.env, err)
		}
		*i.dst = n
	}

	bools := []struct {
		env string
		dst *bool
	}{
		{"DCCLITE_MQTT_ENABLED", &cfg.MQTT.Enabled},
		{"DCCLITE_INFLUXDB_ENABLED", &cfg.InfluxDB.Enabled},
		{"DCCLITE_API_ENABLED", &cfg.API.Enabled},
		{"DCCLITE_DISCOVERY_ENABLED", &cfg.Discovery.Enabled},
		{"DCCLITE_TRACE_ENABLED", &cfg.Trace.Enabled},
	}
	for _, b := range bools {
		v := os.Getenv(b.env)
		if v == "" {
			continue
		}
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", b.env, err)
		}
		*b.dst = on
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Broker.Name == "" {
		errs = append(errs, "broker.name is required")
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		errs = append(errs, "broker.port must be between 1 and 65535")
	}
	if c.Broker.TickInterval <= 0 {
		errs = append(errs, "broker.tick_interval must be positive")
	}
	if c.Broker.QueueSize < 1 {
		errs = append(errs, "broker.queue_size must be at least 1")
	}
	t := c.Broker.Timing
	if t.Timeout != 0 && t.PingInterval != 0 && t.PingInterval >= t.Timeout {
		errs = append(errs, "broker.timing.ping_interval must be shorter than broker.timing.timeout")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required")
		}
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Enabled && (c.API.WS.PingInterval < 1 || c.API.WS.PongTimeout < 1) {
		errs = append(errs, "api.websocket ping_interval and pong_timeout must be positive")
	}
	if c.API.Auth.Enabled && len(c.API.Auth.Secret) < minAPISecretLength {
		errs = append(errs, fmt.Sprintf("api.auth.secret must be at least %d characters", minAPISecretLength))
	}

	if c.Trace.Enabled && c.Trace.Path == "" {
		errs = append(errs, "trace.path is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// minAPISecretLength matches the shortest secret the token signer accepts.
const minAPISecretLength = 32

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// ReadDuration, WriteDuration and IdleDuration convert the api.timeouts
// values for http.Server.
func (t APITimeoutConfig) ReadDuration() time.Duration  { return seconds(t.Read) }
func (t APITimeoutConfig) WriteDuration() time.Duration { return seconds(t.Write) }
func (t APITimeoutConfig) IdleDuration() time.Duration  { return seconds(t.Idle) }
