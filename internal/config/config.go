// Package config handles configuration loading for the HL7 exchange
// services.
//
// Configuration is loaded from a YAML file with support for environment
// variable expansion (${VAR} or $VAR syntax), so credentials like a MongoDB
// URI can be injected at runtime.
//
// # Configuration Sections
//
//   - receiver: MLLP listener settings (address, read buffer)
//   - capture: where received messages are persisted (filesystem or mongodb)
//   - status: the liveness/metrics HTTP endpoint
//   - transmitter: outbound delivery settings (target, retry, schedule)
//
// # Example Configuration
//
//	receiver:
//	  listen: ":20480"
//
//	capture:
//	  backend: filesystem
//	  directory: /appdata/epic_hl7/responses
//
//	status:
//	  listen: ":8080"
//	  metrics: true
//
//	transmitter:
//	  host: epic.example.nhs.uk
//	  port: 20480
//	  paths:
//	    - /appdata/epic_hl7/outbound
//	  reconnectBackoff: 5m
//	  ackTimeout: 30s
//
// See [Load] for loading configuration from a file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Receiver    ReceiverConfig    `yaml:"receiver"`
	Capture     CaptureConfig     `yaml:"capture"`
	Status      StatusConfig      `yaml:"status"`
	Transmitter TransmitterConfig `yaml:"transmitter"`
}

// ReceiverConfig holds MLLP listener settings.
type ReceiverConfig struct {
	// Listen is the TCP address to bind, all interfaces by default.
	Listen string `yaml:"listen"`
	// ReadBuffer bounds one socket read in bytes.
	ReadBuffer int `yaml:"readBuffer"`
}

// CaptureConfig selects and configures the capture sink.
type CaptureConfig struct {
	// Backend is "filesystem" or "mongodb".
	Backend   string        `yaml:"backend"`
	Directory string        `yaml:"directory"`
	MongoDB   MongoDBConfig `yaml:"mongodb"`
}

// MongoDBConfig holds MongoDB capture settings.
type MongoDBConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// StatusConfig holds the liveness/metrics endpoint settings.
type StatusConfig struct {
	Listen  string `yaml:"listen"`
	Metrics bool   `yaml:"metrics"`
}

// TransmitterConfig holds outbound delivery settings.
type TransmitterConfig struct {
	Host  string   `yaml:"host"`
	Port  int      `yaml:"port"`
	Paths []string `yaml:"paths"`

	MaxAttempts      int           `yaml:"maxAttempts"`
	ReconnectBackoff time.Duration `yaml:"reconnectBackoff"`
	AckTimeout       time.Duration `yaml:"ackTimeout"`
	FreshnessWindow  time.Duration `yaml:"freshnessWindow"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Receiver.Listen == "" {
		c.Receiver.Listen = ":20480"
	}
	if c.Receiver.ReadBuffer == 0 {
		c.Receiver.ReadBuffer = 1024
	}
	if c.Capture.Backend == "" {
		c.Capture.Backend = "filesystem"
	}
	if c.Capture.Directory == "" {
		c.Capture.Directory = "responses"
	}
	if c.Capture.MongoDB.Database == "" {
		c.Capture.MongoDB.Database = "hl7"
	}
	if c.Capture.MongoDB.Collection == "" {
		c.Capture.MongoDB.Collection = "messages"
	}
	if c.Status.Listen == "" {
		c.Status.Listen = ":8080"
	}
	if c.Transmitter.MaxAttempts == 0 {
		c.Transmitter.MaxAttempts = 5
	}
	if c.Transmitter.ReconnectBackoff == 0 {
		c.Transmitter.ReconnectBackoff = 300 * time.Second
	}
	if c.Transmitter.AckTimeout == 0 {
		c.Transmitter.AckTimeout = 30 * time.Second
	}
	if c.Transmitter.FreshnessWindow == 0 {
		c.Transmitter.FreshnessWindow = time.Hour
	}
}

func (c *Config) validate() error {
	switch c.Capture.Backend {
	case "filesystem":
		if c.Capture.Directory == "" {
			return fmt.Errorf("capture.directory is required for the filesystem backend")
		}
	case "mongodb":
		if c.Capture.MongoDB.URI == "" {
			return fmt.Errorf("capture.mongodb.uri is required for the mongodb backend")
		}
	default:
		return fmt.Errorf("capture.backend must be 'filesystem' or 'mongodb', got '%s'", c.Capture.Backend)
	}
	return nil
}
