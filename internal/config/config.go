// Package config loads the knit-server configuration file.
package config

import (
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/atvirokodosprendimai/knitu/internal/node"
)

type Config struct {
	Node     NodeConfig     `yaml:"node"`
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Log      LogConfig      `yaml:"log"`
}

type NodeConfig struct {
	// Name defaults to the hostname.
	Name             string        `yaml:"name"`
	DataDir          string        `yaml:"data_dir"`
	RegisterInterval time.Duration `yaml:"register_interval"`
	MetricsInterval  time.Duration `yaml:"metrics_interval"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// ExternalURI is how other nodes reach this one. Defaults to http://<name>:<port>.
	ExternalURI string `yaml:"external_uri"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type NATSConfig struct {
	// URL of an external NATS server. When empty an embedded server is started on Addr.
	URL  string `yaml:"url"`
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load reads the YAML file at path, if any, and fills unset values with defaults.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "could not read config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "could not parse config file %s", path)
		}
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults sets every empty field to its default value.
func (c *Config) ApplyDefaults() {
	if c.Node.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown-host"
		}
		c.Node.Name = hostname
	}
	if c.Node.DataDir == "" {
		c.Node.DataDir = "data"
	}
	if c.Node.RegisterInterval <= 0 {
		c.Node.RegisterInterval = time.Minute
	}
	if c.Node.MetricsInterval <= 0 {
		c.Node.MetricsInterval = time.Minute
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "0.0.0.0:8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "knit.db"
	}
	if c.NATS.Addr == "" {
		c.NATS.Addr = "0.0.0.0:4222"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// IdentityPath is where the node identity file lives.
func (c *Config) IdentityPath() string {
	return filepath.Join(c.Node.DataDir, node.IdentityFileName)
}

// ExternalURI parses the configured external URI or derives one from the node
// name and the HTTP port.
func (c *Config) ExternalURI() (*url.URL, error) {
	raw := c.HTTP.ExternalURI
	if raw == "" {
		_, port, err := splitPort(c.HTTP.Addr)
		if err != nil {
			return nil, err
		}
		raw = "http://" + c.Node.Name + ":" + port + "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid external URI %q", raw)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("external URI %q must be absolute", raw)
	}
	return u, nil
}
