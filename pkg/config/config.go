// Package config loads the fwb configuration.
//
// Values come, in increasing priority, from built-in defaults, an optional
// fwb.yaml file, FWB_* environment variables and command line flags bound to
// the same viper instance. The resulting Config is a plain value that is
// never changed after loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/fwbundle/fwbundle/pkg/signature"
)

const (
	// EnvPrefix is the prefix of environment overrides, e.g. FWB_SYSTEM_COMPATIBLE.
	EnvPrefix = "FWB"

	// FileName is the config file name searched for, without extension.
	FileName = "fwb"
)

// SearchPaths are the directories searched for fwb.yaml, in order.
var SearchPaths = []string{".", "/etc/fwbundle"}

// Config represents the complete fwb configuration
type Config struct {
	System  SystemConfig  `mapstructure:"system"`
	Signing SigningConfig `mapstructure:"signing"`
	Keyring KeyringConfig `mapstructure:"keyring"`
	Handler HandlerConfig `mapstructure:"handler"`
	Log     LogConfig     `mapstructure:"log"`
}

// SystemConfig describes the device that bundles are checked against.
type SystemConfig struct {
	// Compatible must equal a manifest's update.compatible for it to verify.
	Compatible string `mapstructure:"compatible"`
}

// SigningConfig points at the credentials used to sign manifests.
type SigningConfig struct {
	CertPath string `mapstructure:"cert_path"`
	KeyPath  string `mapstructure:"key_path"`
}

// KeyringConfig contains signature verification settings
type KeyringConfig struct {
	Path string `mapstructure:"path"`
	Mode string `mapstructure:"mode"`
}

// HandlerConfig contains build-time handler settings
type HandlerConfig struct {
	// Extra is appended to handler.args when a manifest is updated.
	Extra string `mapstructure:"extra"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Keyring: KeyringConfig{
			Mode: signature.ModeAny.String(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.Log.Level) {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log.format must be 'json' or 'console'")
	}

	if _, err := signature.ParseMode(c.Keyring.Mode); err != nil {
		return fmt.Errorf("keyring.mode: %w", err)
	}

	if (c.Signing.CertPath == "") != (c.Signing.KeyPath == "") {
		return fmt.Errorf("signing.cert_path and signing.key_path must be set together")
	}

	return nil
}

// SigningConfigured reports whether both signing credentials are set.
func (c *Config) SigningConfigured() bool {
	return c.Signing.CertPath != "" && c.Signing.KeyPath != ""
}

// KeyringMode returns the parsed keyring mode. Validate has already
// rejected unknown names, which fall back to ModeAny here.
func (c *Config) KeyringMode() signature.Mode {
	mode, _ := signature.ParseMode(c.Keyring.Mode)
	return mode
}

// Load reads the configuration through v.
//
// If v has no explicit config file, fwb.yaml is searched in SearchPaths.
// A missing file is not an error. The loaded configuration is validated.
func Load(v *viper.Viper) (*Config, error) {
	defaults := DefaultConfig()

	v.SetDefault("system.compatible", defaults.System.Compatible)
	v.SetDefault("signing.cert_path", defaults.Signing.CertPath)
	v.SetDefault("signing.key_path", defaults.Signing.KeyPath)
	v.SetDefault("keyring.path", defaults.Keyring.Path)
	v.SetDefault("keyring.mode", defaults.Keyring.Mode)
	v.SetDefault("handler.extra", defaults.Handler.Extra)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if v.ConfigFileUsed() == "" {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		for _, path := range SearchPaths {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// ConfigFileNotFoundError covers the search paths, ErrNotExist an explicit file
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
