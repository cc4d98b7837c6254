package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
broker:
  url: "wss://broker.example.com/ws"
  host: "orders"
  login: "app"
  connect_timeout: 3s
heartbeat:
  outgoing: 5s
  incoming: 15s
  tolerance: 3
reconnect:
  initial_delay: 250ms
  max_delay: 10s
send:
  content_type: "application/cbor"
  rate_limit: 20
  burst: 5
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Broker.URL != "wss://broker.example.com/ws" {
		t.Errorf("Broker.URL = %q, want %q", cfg.Broker.URL, "wss://broker.example.com/ws")
	}

	if cfg.Broker.ConnectTimeout != 3*time.Second {
		t.Errorf("Broker.ConnectTimeout = %v, want 3s", cfg.Broker.ConnectTimeout)
	}

	if cfg.Heartbeat.Incoming != 15*time.Second {
		t.Errorf("Heartbeat.Incoming = %v, want 15s", cfg.Heartbeat.Incoming)
	}

	if cfg.Reconnect.InitialDelay != 250*time.Millisecond {
		t.Errorf("Reconnect.InitialDelay = %v, want 250ms", cfg.Reconnect.InitialDelay)
	}

	if cfg.Send.ContentType != ContentTypeCBOR {
		t.Errorf("Send.ContentType = %q, want %q", cfg.Send.ContentType, ContentTypeCBOR)
	}

	// Values absent from the file keep their defaults
	if cfg.Broker.WriteTimeout != 5*time.Second {
		t.Errorf("Broker.WriteTimeout = %v, want default 5s", cfg.Broker.WriteTimeout)
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}

	if cfg.Broker.URL == "" {
		t.Error("Load(\"\") should keep the default broker URL")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
broker:
  url: "http://not-a-websocket"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for http broker URL, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing broker URL",
			mutate:  func(c *Config) { c.Broker.URL = "" },
			wantErr: true,
		},
		{
			name:    "non websocket scheme",
			mutate:  func(c *Config) { c.Broker.URL = "tcp://localhost:61613" },
			wantErr: true,
		},
		{
			name:    "zero connect timeout",
			mutate:  func(c *Config) { c.Broker.ConnectTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "negative heartbeat",
			mutate:  func(c *Config) { c.Heartbeat.Outgoing = -time.Second },
			wantErr: true,
		},
		{
			name:    "tolerance below one",
			mutate:  func(c *Config) { c.Heartbeat.Tolerance = 0.5 },
			wantErr: true,
		},
		{
			name:    "heartbeats disabled ignores tolerance",
			mutate:  func(c *Config) { c.Heartbeat.Incoming = 0; c.Heartbeat.Tolerance = 0 },
			wantErr: false,
		},
		{
			name: "max delay below initial",
			mutate: func(c *Config) {
				c.Reconnect.InitialDelay = 5 * time.Second
				c.Reconnect.MaxDelay = time.Second
			},
			wantErr: true,
		},
		{
			name:    "jitter out of range",
			mutate:  func(c *Config) { c.Reconnect.Jitter = 1.5 },
			wantErr: true,
		},
		{
			name:    "unknown content type",
			mutate:  func(c *Config) { c.Send.ContentType = "text/xml" },
			wantErr: true,
		},
		{
			name:    "rate limit without burst",
			mutate:  func(c *Config) { c.Send.RateLimit = 10; c.Send.Burst = 0 },
			wantErr: true,
		},
		{
			name: "status address without timeouts",
			mutate: func(c *Config) {
				c.Status.Address = "127.0.0.1:8090"
				c.Status.ReadTimeout = 0
			},
			wantErr: true,
		},
		{
			name:    "influxdb enabled without URL",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Default()

	t.Setenv("ORDERLINK_BROKER_URL", "wss://override.example.com/ws")
	t.Setenv("ORDERLINK_BROKER_LOGIN", "courier-app")
	t.Setenv("ORDERLINK_BROKER_PASSCODE", "s3cret")
	t.Setenv("ORDERLINK_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("ORDERLINK_LOG_LEVEL", "debug")
	t.Setenv("ORDERLINK_STATUS_ADDRESS", "127.0.0.1:9999")

	applyEnvOverrides(cfg)

	if cfg.Broker.URL != "wss://override.example.com/ws" {
		t.Errorf("Broker.URL = %q, want %q", cfg.Broker.URL, "wss://override.example.com/ws")
	}

	if cfg.Broker.Login != "courier-app" {
		t.Errorf("Broker.Login = %q, want %q", cfg.Broker.Login, "courier-app")
	}

	if cfg.Broker.Passcode != "s3cret" {
		t.Errorf("Broker.Passcode = %q, want %q", cfg.Broker.Passcode, "s3cret")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}

	if cfg.Status.Address != "127.0.0.1:9999" {
		t.Errorf("Status.Address = %q, want %q", cfg.Status.Address, "127.0.0.1:9999")
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default() should validate, got %v", err)
	}

	if cfg.Send.ContentType != ContentTypeJSON {
		t.Errorf("Default Send.ContentType = %q, want %q", cfg.Send.ContentType, ContentTypeJSON)
	}

	if cfg.Reconnect.MaxDelay != 30*time.Second {
		t.Errorf("Default Reconnect.MaxDelay = %v, want 30s", cfg.Reconnect.MaxDelay)
	}
}
