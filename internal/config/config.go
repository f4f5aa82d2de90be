package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds connection and tuning parameters shared by the relay binaries.
type Config struct {
	// ServerAddress is the relay address (host:port) the device dials and
	// the relay derives its listen port from.
	ServerAddress string `yaml:"server_addr"`
	// Timeout is the duration for individual network writes and requests.
	Timeout time.Duration `yaml:"timeout"`
	// DeviceName is the human-readable name the device reports on identify.
	DeviceName string `yaml:"device_name"`
	// ReconnectMaxAttempts bounds automatic reconnection before the device
	// gives up and surfaces a persistent failure.
	ReconnectMaxAttempts int `yaml:"reconnect_max_attempts"`
	// ReconnectBaseDelay is the first reconnection delay; it doubles per
	// attempt up to ReconnectMaxDelay.
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	// ReconnectMaxDelay caps the growing reconnection delay.
	ReconnectMaxDelay time.Duration `yaml:"reconnect_max_delay"`
	// EventsPerSecond is the per-session inbound event rate limit on the relay.
	EventsPerSecond float64 `yaml:"events_per_second"`
	// EventBurst is the per-session inbound burst allowance on the relay.
	EventBurst int `yaml:"event_burst"`
}

const (
	// DefaultConfigFilename is the default filename for connection settings.
	DefaultConfigFilename = "sos-relay-settings.yaml"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultReconnectMaxAttempts is the default reconnection attempt cap.
	DefaultReconnectMaxAttempts = 10

	// DefaultReconnectBaseDelay is the default initial reconnection delay.
	DefaultReconnectBaseDelay = 1 * time.Second

	// DefaultReconnectMaxDelay is the default ceiling for reconnection delays.
	DefaultReconnectMaxDelay = 30 * time.Second

	// DefaultEventsPerSecond is the default per-session inbound rate limit.
	DefaultEventsPerSecond = 20

	// DefaultEventBurst is the default per-session inbound burst allowance.
	DefaultEventBurst = 40

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errServerSocketRequired is returned when server address is missing.
	errServerSocketRequired = errors.New("server address must be provided")
)

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and applies defaults.
func Validate(cfg *Config) error {
	if cfg.ServerAddress == "" {
		return errServerSocketRequired
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.ServerAddress); err != nil {
		return fmt.Errorf("invalid server socket: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.ReconnectMaxAttempts <= 0 {
		cfg.ReconnectMaxAttempts = DefaultReconnectMaxAttempts
	}

	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}

	if cfg.ReconnectMaxDelay < cfg.ReconnectBaseDelay {
		cfg.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}

	if cfg.EventsPerSecond <= 0 {
		cfg.EventsPerSecond = DefaultEventsPerSecond
	}

	if cfg.EventBurst <= 0 {
		cfg.EventBurst = DefaultEventBurst
	}

	return nil
}
