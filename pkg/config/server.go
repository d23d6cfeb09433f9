package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the settings of the server process itself. Values are
// layered: defaults, then an optional YAML file, then command line flags.
type ServerConfig struct {
	Port   int    `yaml:"port" validate:"min=1,max=65535"`
	DBPath string `yaml:"dbPath" validate:"required"`

	INDI      INDIConfig      `yaml:"indi"`
	PHD2      PHD2Config      `yaml:"phd2"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Log       LogConfig       `yaml:"log"`
	Discovery DiscoveryConfig `yaml:"discovery"`
}

type INDIConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port" validate:"min=1,max=65535"`
	Driver string `yaml:"driver"`
}

type PHD2Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`
}

// MQTTConfig configures the optional status bridge. An empty broker disables it.
type MQTTConfig struct {
	Broker    string        `yaml:"broker"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	TopicRoot string        `yaml:"topicRoot"`
	Interval  time.Duration `yaml:"interval" validate:"required_with=Broker,gte=0"`
}

type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	Debug      bool   `yaml:"debug"`
}

type DiscoveryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Port    int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// DefaultServerConfig returns the built-in defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:   5000,
		DBPath: "oatcontrol.db",
		INDI: INDIConfig{
			Host:   "localhost",
			Port:   7624,
			Driver: "indi_lx200_OnStep",
		},
		PHD2: PHD2Config{
			Host: "localhost",
			Port: 4400,
		},
		MQTT: MQTTConfig{
			TopicRoot: "oatcontrol",
			Interval:  10 * time.Second,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Discovery: DiscoveryConfig{
			Addr: "0.0.0.0",
			Port: 32228,
		},
	}
}

// LoadServerConfig returns the defaults overlaid with the YAML file at path.
// An empty path returns the defaults unchanged.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the values a YAML file or a flag may have broken.
func (c ServerConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}
	return nil
}
