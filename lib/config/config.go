// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for interactive use on a workstation.
	Development Environment = "development"
	// Production is for long-running servers.
	Production Environment = "production"
)

// Config is the configuration of the muxwire server and attach client.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment"`

	// Server configures the session server.
	Server ServerConfig `yaml:"server"`

	// Control configures control-mode clients.
	Control ControlConfig `yaml:"control"`

	// Log configures logging for both binaries.
	Log LogConfig `yaml:"log"`

	// Development and Production contain per-environment overrides,
	// applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Server  *ServerConfig  `yaml:"server,omitempty"`
	Control *ControlConfig `yaml:"control,omitempty"`
	Log     *LogConfig     `yaml:"log,omitempty"`
}

// ServerConfig configures the session server.
type ServerConfig struct {
	// SocketPath is the Unix socket clients connect to.
	// Default: ${XDG_RUNTIME_DIR:-/tmp}/muxwire.sock
	SocketPath string `yaml:"socket_path"`

	// SessionName names the server's session.
	// Default: 0
	SessionName string `yaml:"session_name"`

	// DefaultCommand is run in windows created without a command.
	// Default: ${SHELL:-/bin/sh}
	DefaultCommand string `yaml:"default_command"`

	// History is each pane's output history in bytes. A control client
	// more than this far behind a pane loses output.
	// Default: 1048576
	History int `yaml:"history"`

	// Columns and Rows are the initial PTY size of new panes.
	// Default: 80x24
	Columns int `yaml:"columns"`
	Rows    int `yaml:"rows"`
}

// ControlConfig configures control-mode clients.
type ControlConfig struct {
	// Flags is the control flag list every client starts with, for
	// example "pause-after=5" or "no-output". Clients add their own
	// flags on top.
	Flags string `yaml:"flags"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info (development), warn (production)
	Level string `yaml:"level"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Environment: Development,
		Server: ServerConfig{
			SocketPath:     "${XDG_RUNTIME_DIR:-/tmp}/muxwire.sock",
			SessionName:    "0",
			DefaultCommand: "${SHELL:-/bin/sh}",
			History:        1024 * 1024,
			Columns:        80,
			Rows:           24,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the MUXWIRE_CONFIG environment
// variable. It fails if the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv("MUXWIRE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("MUXWIRE_CONFIG environment variable not set; " +
			"set it to the path of your muxwire.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path on top of
// Default.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

// Resolve returns the configuration named by path, or by
// MUXWIRE_CONFIG when path is empty, or the defaults when neither is
// set.
func Resolve(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	if os.Getenv("MUXWIRE_CONFIG") != "" {
		return Load()
	}
	cfg := Default()
	cfg.expandVariables()
	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		// Production defaults: quieter logs.
		if overrides == nil {
			overrides = &ConfigOverrides{Log: &LogConfig{Level: "warn"}}
		}
	}

	if overrides == nil {
		return
	}

	if server := overrides.Server; server != nil {
		if server.SocketPath != "" {
			c.Server.SocketPath = server.SocketPath
		}
		if server.SessionName != "" {
			c.Server.SessionName = server.SessionName
		}
		if server.DefaultCommand != "" {
			c.Server.DefaultCommand = server.DefaultCommand
		}
		if server.History != 0 {
			c.Server.History = server.History
		}
		if server.Columns != 0 {
			c.Server.Columns = server.Columns
		}
		if server.Rows != 0 {
			c.Server.Rows = server.Rows
		}
	}

	if overrides.Control != nil && overrides.Control.Flags != "" {
		c.Control.Flags = overrides.Control.Flags
	}

	if overrides.Log != nil && overrides.Log.Level != "" {
		c.Log.Level = overrides.Log.Level
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in the
// socket path and default command.
func (c *Config) expandVariables() {
	c.Server.SocketPath = expandVars(c.Server.SocketPath)
	c.Server.DefaultCommand = expandVars(c.Server.DefaultCommand)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns from the
// environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Server.SocketPath == "" {
		errs = append(errs, errors.New("server.socket_path is required"))
	}
	if c.Server.DefaultCommand == "" {
		errs = append(errs, errors.New("server.default_command is required"))
	}
	if c.Server.History < 1024 {
		errs = append(errs, fmt.Errorf("server.history must be at least 1024 bytes, got %d", c.Server.History))
	}
	if c.Server.Columns < 1 || c.Server.Columns > 65535 {
		errs = append(errs, fmt.Errorf("server.columns out of range: %d", c.Server.Columns))
	}
	if c.Server.Rows < 1 || c.Server.Rows > 65535 {
		errs = append(errs, fmt.Errorf("server.rows out of range: %d", c.Server.Rows))
	}

	if err := validateFlags(c.Control.Flags); err != nil {
		errs = append(errs, fmt.Errorf("control.flags: %w", err))
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// validateFlags checks a control flag list. Clients ignore names they
// do not know, so a typo here would silently do nothing.
func validateFlags(list string) error {
	if list == "" {
		return nil
	}
	var errs []error
	for name := range strings.SplitSeq(list, ",") {
		name = strings.TrimPrefix(name, "!")
		switch {
		case name == "pause-after", name == "no-output", name == "wait-exit":
		case strings.HasPrefix(name, "pause-after="):
			if _, err := strconv.ParseUint(strings.TrimPrefix(name, "pause-after="), 10, 32); err != nil {
				errs = append(errs, fmt.Errorf("bad pause-after age in %q", name))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown flag %q", name))
		}
	}
	return errors.Join(errs...)
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Command returns DefaultCommand split into words.
func (c *Config) Command() []string {
	return strings.Fields(c.Server.DefaultCommand)
}
