// Package config loads the server configuration from YAML, falling back to
// defaults when no file is present.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Server holds all configuration for the Tempest server.
type Server struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// How long a fresh connection has to send its Authenticate record.
	AuthWindow time.Duration `yaml:"auth_window"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// DefaultServer returns the reference configuration: loopback on port 9000,
// a 30-second authentication window.
func DefaultServer() Server {
	return Server{
		BindAddress: "127.0.0.1",
		Port:        9000,
		AuthWindow:  30 * time.Second,
		LogLevel:    "info",
	}
}

// LoadServer loads server config from a YAML file. A missing file yields
// the defaults.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
