package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the message bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	Broker        BrokerConfig        `yaml:"broker"`
	API           APIConfig           `yaml:"api"`
	WebSocket     WebSocketConfig     `yaml:"websocket"`
	Delivery      DeliveryConfig      `yaml:"delivery"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServiceConfig contains service identification settings.
type ServiceConfig struct {
	Name string `yaml:"name"`
}

// BrokerConfig contains MQTT broker connection settings.
type BrokerConfig struct {
	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	TLS       bool            `yaml:"tls"`
	ClientID  string          `yaml:"client_id"`
	Auth      BrokerAuth      `yaml:"auth"`
	QoS       int             `yaml:"qos"`
	Reconnect BrokerReconnect `yaml:"reconnect"`
}

// BrokerAuth contains MQTT authentication credentials.
type BrokerAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// BrokerReconnect contains MQTT reconnection settings (seconds).
type BrokerReconnect struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket stream endpoint settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// DeliveryConfig contains live-delivery fan-out settings.
type DeliveryConfig struct {
	// QueueCapacity is the bounded per-subscriber queue size.
	// When a subscriber's queue is full, new messages for it are dropped.
	QueueCapacity int `yaml:"queue_capacity"`

	// InboundBuffer is the size of the channel between the broker's
	// message callbacks and the bridge's decode/store pipeline.
	InboundBuffer int `yaml:"inbound_buffer"`

	// ActivityInterval is how often the topic-activity stream samples
	// the store for newly observed topics (seconds).
	ActivityInterval int `yaml:"activity_interval"`
}

// SubscriptionsConfig contains the topic filters subscribed at startup.
type SubscriptionsConfig struct {
	Default []string `yaml:"default"`
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
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MSGBRIDGE_SECTION_KEY
// For example: MSGBRIDGE_BROKER_HOST, MSGBRIDGE_API_PORT
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
// The default subscription set mirrors the broker topics the bridge is
// expected to observe out of the box, including one wildcard filter.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name: "msgbridge",
		},
		Broker: BrokerConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "msgbridge-core",
			QoS:      1,
			Reconnect: BrokerReconnect{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
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
		Delivery: DeliveryConfig{
			QueueCapacity:    256,
			InboundBuffer:    256,
			ActivityInterval: 2,
		},
		Subscriptions: SubscriptionsConfig{
			Default: []string{"test/messages", "sensors/+"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MSGBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Broker
	if v := os.Getenv("MSGBRIDGE_BROKER_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("MSGBRIDGE_BROKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Broker.Port = port
		}
	}
	if v := os.Getenv("MSGBRIDGE_BROKER_CLIENT_ID"); v != "" {
		cfg.Broker.ClientID = v
	}
	if v := os.Getenv("MSGBRIDGE_BROKER_USERNAME"); v != "" {
		cfg.Broker.Auth.Username = v
	}
	if v := os.Getenv("MSGBRIDGE_BROKER_PASSWORD"); v != "" {
		cfg.Broker.Auth.Password = v
	}

	// API
	if v := os.Getenv("MSGBRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("MSGBRIDGE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Logging
	if v := os.Getenv("MSGBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Broker validation
	if c.Broker.Host == "" {
		errs = append(errs, "broker.host is required")
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		errs = append(errs, "broker.port must be between 1 and 65535")
	}
	if c.Broker.ClientID == "" {
		errs = append(errs, "broker.client_id is required")
	}
	if c.Broker.QoS < 0 || c.Broker.QoS > 2 {
		errs = append(errs, "broker.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if !strings.HasPrefix(c.WebSocket.Path, "/") {
		errs = append(errs, "websocket.path must start with /")
	}

	// Delivery validation
	if c.Delivery.QueueCapacity < 1 {
		errs = append(errs, "delivery.queue_capacity must be at least 1")
	}
	if c.Delivery.InboundBuffer < 1 {
		errs = append(errs, "delivery.inbound_buffer must be at least 1")
	}
	if c.Delivery.ActivityInterval < 1 {
		errs = append(errs, "delivery.activity_interval must be at least 1 second")
	}

	// Subscription filters must at least be non-empty strings
	for _, topic := range c.Subscriptions.Default {
		if strings.TrimSpace(topic) == "" {
			errs = append(errs, "subscriptions.default must not contain empty topics")
			break
		}
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

// GetActivityInterval returns the topic-activity sampling interval as a Duration.
func (c *Config) GetActivityInterval() time.Duration {
	return time.Duration(c.Delivery.ActivityInterval) * time.Second
}
