// Package config loads the imgxfer configuration file. Command-line flags
// always take precedence over values from the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"
)

// Config is the on-disk configuration.
type Config struct {
	Server Server `json:"server,omitempty"`
	// Metadata is the default provenance field selection applied when
	// --metadata is not given.
	Metadata []string `json:"metadata,omitempty"`
}

// Server describes how to reach the image-repository client tooling.
type Server struct {
	// Binary is the repository client executable driven for file
	// transfer and queries.
	Binary string `json:"binary,omitempty"`
	Host   string `json:"host,omitempty"`
	Port   int    `json:"port,omitempty"`
	User   string `json:"user,omitempty"`
}

// DefaultBinary is the client executable used when none is configured.
const DefaultBinary = "omero"

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "imgxfer", "config.yaml")
}

// Load reads the config file at path. A missing file yields the zero
// configuration when path is the default location; an explicitly given
// path must exist.
func Load(path string, explicit bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

// ClientBinary returns the configured client executable, falling back to
// DefaultBinary.
func (c *Config) ClientBinary() string {
	if c != nil && c.Server.Binary != "" {
		return c.Server.Binary
	}
	return DefaultBinary
}
