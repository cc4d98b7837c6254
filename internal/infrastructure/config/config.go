package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for orderlink.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Broker    BrokerConfig    `yaml:"broker"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Send      SendConfig      `yaml:"send"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Status    StatusConfig    `yaml:"status"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BrokerConfig contains STOMP broker connection settings.
type BrokerConfig struct {
	// URL is the WebSocket endpoint of the broker (ws:// or wss://).
	URL string `yaml:"url"`

	// Host is sent as the STOMP host header (virtual host).
	Host string `yaml:"host"`

	// Login and Passcode are the externally supplied channel credential.
	Login    string `yaml:"login"`
	Passcode string `yaml:"passcode"`

	// ConnectTimeout bounds the socket dial plus the CONNECT/CONNECTED handshake.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// DisconnectTimeout bounds the wait for the DISCONNECT receipt on Close.
	DisconnectTimeout time.Duration `yaml:"disconnect_timeout"`

	// WriteTimeout is the deadline applied to each socket write.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// MaxFrameSize is the largest inbound frame accepted, in bytes.
	MaxFrameSize int64 `yaml:"max_frame_size"`
}

// HeartbeatConfig contains STOMP heart-beat negotiation settings.
type HeartbeatConfig struct {
	// Outgoing is the interval at which this client offers to send keepalives.
	Outgoing time.Duration `yaml:"outgoing"`

	// Incoming is the interval at which this client wants to receive traffic.
	Incoming time.Duration `yaml:"incoming"`

	// Tolerance multiplies the negotiated incoming interval to get the
	// silence deadline after which the connection is considered dead.
	Tolerance float64 `yaml:"tolerance"`
}

// ReconnectConfig contains reconnection backoff settings.
// Attempts are unbounded; only Close stops the loop.
type ReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	Jitter       float64       `yaml:"jitter"`
}

// SendConfig contains outbound message settings.
type SendConfig struct {
	// ContentType selects the body codec for Send (application/json or application/cbor).
	ContentType string `yaml:"content_type"`

	// RateLimit caps SEND frames per second. 0 means unlimited.
	RateLimit float64 `yaml:"rate_limit"`

	// Burst is the limiter bucket size when RateLimit is set.
	Burst int `yaml:"burst"`
}

// DispatchConfig contains inbound delivery settings.
type DispatchConfig struct {
	// MaxBacklog is the per-destination queue depth above which a warning is logged.
	MaxBacklog int `yaml:"max_backlog"`
}

// InfluxDBConfig contains InfluxDB connection settings for connection telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// StatusConfig contains the local status endpoint settings.
type StatusConfig struct {
	// Address is the listen address, e.g. "127.0.0.1:8090". Empty disables the endpoint.
	Address string `yaml:"address"`

	// ReadTimeout and WriteTimeout bound each HTTP request.
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Supported body content types.
const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ORDERLINK_SECTION_KEY
// For example: ORDERLINK_BROKER_URL, ORDERLINK_BROKER_PASSCODE
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			URL:               "ws://localhost:15674/ws",
			Host:              "/",
			ConnectTimeout:    10 * time.Second,
			DisconnectTimeout: 2 * time.Second,
			WriteTimeout:      5 * time.Second,
			MaxFrameSize:      1 << 20,
		},
		Heartbeat: HeartbeatConfig{
			Outgoing:  10 * time.Second,
			Incoming:  10 * time.Second,
			Tolerance: 2.0,
		},
		Reconnect: ReconnectConfig{
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			Jitter:       0.2,
		},
		Send: SendConfig{
			ContentType: ContentTypeJSON,
			Burst:       16,
		},
		Dispatch: DispatchConfig{
			MaxBacklog: 1024,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Status: StatusConfig{
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ORDERLINK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Broker
	if v := os.Getenv("ORDERLINK_BROKER_URL"); v != "" {
		cfg.Broker.URL = v
	}
	if v := os.Getenv("ORDERLINK_BROKER_LOGIN"); v != "" {
		cfg.Broker.Login = v
	}
	if v := os.Getenv("ORDERLINK_BROKER_PASSCODE"); v != "" {
		cfg.Broker.Passcode = v
	}

	// InfluxDB
	if v := os.Getenv("ORDERLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Status
	if v := os.Getenv("ORDERLINK_STATUS_ADDRESS"); v != "" {
		cfg.Status.Address = v
	}

	// Logging
	if v := os.Getenv("ORDERLINK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Broker validation
	if c.Broker.URL == "" {
		errs = append(errs, "broker.url is required")
	} else if u, err := url.Parse(c.Broker.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, "broker.url must be a ws:// or wss:// URL")
	}
	if c.Broker.ConnectTimeout <= 0 {
		errs = append(errs, "broker.connect_timeout must be positive")
	}
	if c.Broker.WriteTimeout <= 0 {
		errs = append(errs, "broker.write_timeout must be positive")
	}
	if c.Broker.MaxFrameSize <= 0 {
		errs = append(errs, "broker.max_frame_size must be positive")
	}

	// Heartbeat validation
	if c.Heartbeat.Outgoing < 0 || c.Heartbeat.Incoming < 0 {
		errs = append(errs, "heartbeat intervals cannot be negative")
	}
	if c.Heartbeat.Incoming > 0 && c.Heartbeat.Tolerance < 1 {
		errs = append(errs, "heartbeat.tolerance must be at least 1")
	}

	// Reconnect validation
	if c.Reconnect.InitialDelay <= 0 {
		errs = append(errs, "reconnect.initial_delay must be positive")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		errs = append(errs, "reconnect.max_delay must be >= reconnect.initial_delay")
	}
	if c.Reconnect.Multiplier < 1 {
		errs = append(errs, "reconnect.multiplier must be at least 1")
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter > 1 {
		errs = append(errs, "reconnect.jitter must be between 0 and 1")
	}

	// Send validation
	switch c.Send.ContentType {
	case ContentTypeJSON, ContentTypeCBOR:
	default:
		errs = append(errs, "send.content_type must be application/json or application/cbor")
	}
	if c.Send.RateLimit < 0 {
		errs = append(errs, "send.rate_limit cannot be negative")
	}
	if c.Send.RateLimit > 0 && c.Send.Burst < 1 {
		errs = append(errs, "send.burst must be at least 1 when send.rate_limit is set")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Status validation
	if c.Status.Address != "" && (c.Status.ReadTimeout <= 0 || c.Status.WriteTimeout <= 0) {
		errs = append(errs, "status timeouts must be positive when status.address is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
