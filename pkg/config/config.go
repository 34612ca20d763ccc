package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/burrow/pkg/deploy"
	"github.com/cuemby/burrow/pkg/hostfs"
	"github.com/cuemby/burrow/pkg/volume"
)

const (
	DefaultDataDir      = "/var/lib/burrow"
	DefaultPollInterval = 10 * time.Second
	DefaultHTTPAddr     = "127.0.0.1:9090"
	DefaultGRPCAddr     = "127.0.0.1:9091"
)

// Config is the agent configuration file
type Config struct {
	// Hostname identifies this node, defaults to os.Hostname()
	Hostname string `yaml:"hostname"`

	Backend        volume.BackendConfig `yaml:"backend"`
	MountRoot      string               `yaml:"mount_root"`
	FilesystemType string               `yaml:"filesystem_type"`
	PollInterval   time.Duration        `yaml:"poll_interval"`
	DataDir        string               `yaml:"data_dir"`

	API APIConfig `yaml:"api"`
	Log LogConfig `yaml:"log"`
}

// APIConfig holds the listen addresses of the agent's servers.
// An empty address disables that server.
type APIConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
}

// LogConfig configures the global logger
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Backend: volume.BackendConfig{
			Name: volume.BackendLoopback,
			Root: volume.DefaultLoopbackRoot,
		},
		MountRoot:      deploy.DefaultMountRoot,
		FilesystemType: hostfs.DefaultFilesystemType,
		PollInterval:   DefaultPollInterval,
		DataDir:        DefaultDataDir,
		API: APIConfig{
			HTTPAddr: DefaultHTTPAddr,
			GRPCAddr: DefaultGRPCAddr,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the agent configuration at path on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes an agent configuration document on top of the defaults
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.complete(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) complete() error {
	if c.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to determine hostname: %w", err)
		}
		c.Hostname = hostname
	}
	return nil
}

// Validate checks the configuration for values the agent cannot run with
func (c *Config) Validate() error {
	if c.Hostname == "" {
		return errors.New("hostname is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.MountRoot == "" {
		return errors.New("mount_root is required")
	}
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	return nil
}
