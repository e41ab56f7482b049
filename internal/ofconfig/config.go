// Package ofconfig loads the controller's externally-defined configuration:
// listen endpoints, OF versions, TLS identity, the backend subprocess
// command line, and ambient logging/admin settings.
package ofconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// TLSConfig carries the three file paths the core forwards opaquely to the
// backend's OFP.ADD_IDENTITY call; the core never interprets their contents.
type TLSConfig struct {
	Cert    string `yaml:"cert"`
	CACert  string `yaml:"cacert"`
	PrivKey string `yaml:"privkey"`
}

// Config is the controller's full externally-supplied configuration.
type Config struct {
	// Backend is the OF backend subprocess command line, e.g.
	// ["ofbackend", "--loglevel=info"].
	Backend []string `yaml:"backend"`

	// Listen is the set of endpoints ("host:port" strings, or bare port
	// numbers) the backend should accept datapath connections on.
	Listen []string `yaml:"listen"`

	// ListenVersions is the subset of OF protocol versions (1-6) advertised
	// on each listen endpoint.
	ListenVersions []int `yaml:"listen_versions"`

	TLS *TLSConfig `yaml:"tls"`

	// ExitSignals names the OS signals that trigger a graceful EXIT event;
	// defaults to SIGTERM/SIGINT.
	ExitSignals []string `yaml:"exit_signals"`

	// AdminListen is the address the admin/introspection HTTP+WS server
	// binds to; empty disables the admin server.
	AdminListen string `yaml:"admin_listen"`

	LogLevel string `yaml:"log_level"`

	// DrainTimeout bounds each of the STOP->POSTSTOP drain attempts.
	DrainTimeout string `yaml:"drain_timeout"`
}

// DefaultSearchPaths returns the config file locations probed in order when
// no explicit path is given.
func DefaultSearchPaths() []string {
	paths := []string{"./ofcore.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "ofcore", "ofcore.yaml"))
	}
	paths = append(paths, "/config/ofcore.yaml", "/etc/ofcore/ofcore.yaml")
	return paths
}

// FindConfig returns explicit if it is set and exists, and an error if it is
// set but does not exist. With explicit empty it returns the first existing
// path from DefaultSearchPaths, or an error if none exist.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("ofconfig: %s: %w", explicit, err)
		}
		return explicit, nil
	}
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("ofconfig: no config file found in %v", DefaultSearchPaths())
}

// Load reads, expands environment variables in, and parses the YAML config
// at path, then applies defaults and validates it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ofconfig: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(raw))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("ofconfig: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ofconfig: %s: %w", path, err)
	}
	return &cfg, nil
}

// Default returns a fully-defaulted Config with no backend command set
// (the caller must still supply one), useful for tests.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if len(c.ListenVersions) == 0 {
		c.ListenVersions = []int{4}
	}
	if len(c.ExitSignals) == 0 {
		c.ExitSignals = []string{"SIGTERM", "SIGINT"}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DrainTimeout == "" {
		c.DrainTimeout = "5s"
	}
}

// Validate checks the loaded config for obvious misconfiguration.
func (c *Config) Validate() error {
	if len(c.Backend) == 0 {
		return fmt.Errorf("backend command must not be empty")
	}
	for _, v := range c.ListenVersions {
		if v < 1 || v > 6 {
			return fmt.Errorf("listen_versions: %d is out of range 1-6", v)
		}
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
