// Package config reads target addressing from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"memlayout/platform"
	"memlayout/state"

	"github.com/caarlos0/env/v11"
)

var ErrNoTarget = errors.New("no process name or window title configured")

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// TargetConfig is the environment view of state.Options plus the CLI's ambient settings.
type TargetConfig struct {
	ProcessName string `env:"MEMLAYOUT_PROCESS"`
	Title       string `env:"MEMLAYOUT_TITLE"`
	Bits        int    `env:"MEMLAYOUT_BITS"      envDefault:"0"`
	Platform    string `env:"MEMLAYOUT_PLATFORM"`
	DumpDir     string `env:"MEMLAYOUT_DUMP"`
	LogLevel    string `env:"MEMLAYOUT_LOG_LEVEL" envDefault:"info"`
}

// Load parses a TargetConfig from the environment.
func Load() (TargetConfig, error) {
	var cfg TargetConfig
	if err := ParseEnv(&cfg); err != nil {
		return TargetConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return TargetConfig{}, err
	}
	return cfg, nil
}

// Validate checks the values that can be checked without a target.
func (c TargetConfig) Validate() error {
	if !platform.ValidBits(c.Bits) {
		return fmt.Errorf("MEMLAYOUT_BITS: unsupported pointer width %d", c.Bits)
	}
	if _, err := platform.ParsePlatform(c.Platform); err != nil {
		return fmt.Errorf("MEMLAYOUT_PLATFORM: %w", err)
	}
	switch c.level() {
	case "debug", "info", "quiet":
	default:
		return fmt.Errorf("MEMLAYOUT_LOG_LEVEL: unknown level %q", c.LogLevel)
	}
	return nil
}

func (c TargetConfig) level() string {
	return strings.ToLower(strings.TrimSpace(c.LogLevel))
}

// Debug reports whether debug output was requested.
func (c TargetConfig) Debug() bool { return c.level() == "debug" }

// Quiet reports whether status output should be suppressed.
func (c TargetConfig) Quiet() bool { return c.level() == "quiet" }

// Config returns the platform config override. An empty platform is Unknown,
// which State replaces with the backend's platform.
func (c TargetConfig) Config() (platform.Config, error) {
	p, err := platform.ParsePlatform(c.Platform)
	if err != nil {
		return platform.Config{}, err
	}
	return platform.Config{Platform: p, Bits: c.Bits}, nil
}

// Options converts the config into state options.
func (c TargetConfig) Options() (state.Options, error) {
	if c.ProcessName == "" && c.Title == "" {
		return state.Options{}, ErrNoTarget
	}
	cfg, err := c.Config()
	if err != nil {
		return state.Options{}, err
	}
	return state.Options{ProcessName: c.ProcessName, Title: c.Title, Config: cfg}, nil
}
