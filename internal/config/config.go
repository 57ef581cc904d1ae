// Package config handles application configuration and setup
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/retroenv/retrogolib/log"
)

// FileName is the name of the configuration file next to the plugin.
const FileName = "retrohook.toml"

// EnvPrefix prefixes all environment overrides.
const EnvPrefix = "RETROHOOK_"

// Config is the plugin configuration.
type Config struct {
	Debug bool `toml:"debug" env:"DEBUG"`

	Bridge    Bridge    `toml:"bridge" envPrefix:"BRIDGE_"`
	Dialogue  Dialogue  `toml:"dialogue" envPrefix:"DIALOGUE_"`
	Favorites Favorites `toml:"favorites" envPrefix:"FAVORITES_"`
	Hooks     Hooks     `toml:"hooks"`
}

// Bridge configures the recognizer channel.
type Bridge struct {
	// Address of the recognizer, see bridge.Dial for the supported schemes.
	Address        string `toml:"address" env:"ADDR"`
	OutboundBuffer int    `toml:"outbound_buffer" env:"OUTBOUND_BUFFER"`
}

// Dialogue configures dialogue selection by voice.
type Dialogue struct {
	Enabled bool `toml:"enabled" env:"ENABLED"`
}

// Favorites configures equipping favorites by voice.
type Favorites struct {
	Enabled bool `toml:"enabled" env:"ENABLED"`
}

// Hooks configures the hook site table.
type Hooks struct {
	// Build overrides the detected host build.
	Build string `toml:"build" env:"BUILD"`
	// Table is an optional hook table file replacing the embedded one.
	Table string `toml:"table" env:"HOOK_TABLE"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Bridge: Bridge{
			Address:        "tcp://127.0.0.1:5150",
			OutboundBuffer: 64,
		},
		Dialogue:  Dialogue{Enabled: true},
		Favorites: Favorites{Enabled: true},
	}
}

// Load reads the configuration file at path on top of the defaults and
// applies the environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("parsing config file '%s': %w", path, err)
		}
	}

	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Bridge.OutboundBuffer <= 0 {
		return Config{}, fmt.Errorf("invalid outbound buffer size %d", cfg.Bridge.OutboundBuffer)
	}
	return cfg, nil
}

// ParseEnv applies the environment overrides to target.
func ParseEnv(target any) error {
	opts := env.Options{
		Prefix:      EnvPrefix,
		Environment: env.ToMap(os.Environ()),
	}
	if err := env.ParseWithOptions(target, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// CreateLogger creates a logger with appropriate settings
func CreateLogger(debug, quiet bool) *log.Logger {
	cfg := log.DefaultConfig()
	if debug {
		cfg.Level = log.DebugLevel
	} else if quiet {
		cfg.Level = log.ErrorLevel
	}
	return log.NewWithConfig(cfg)
}
