// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package config loads and validates service configuration.
//
// Configuration is layered: defaults, then a YAML file, then command-line
// flags. A few settings also honor environment variables (DATABASE_URL,
// SESSION_NAME, SESSION_DURATION) so the server picks up the conventional
// deployment knobs without flags.
package config

import (
	"os"
	"strconv"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Listen      string `koanf:"listen" json:"listen" jsonschema:"default=:8080"`
	MetricsAddr string `koanf:"metrics_addr" json:"metrics_addr" jsonschema:"default=127.0.0.1:9100"`
}

// DatabaseConfig holds the PostgreSQL connection settings. An empty URL
// selects the in-memory store.
type DatabaseConfig struct {
	URL string `koanf:"url" json:"url,omitempty"`
}

// SessionConfig holds session cookie and lifetime settings.
// MaxAgeSeconds of 0 means sessions never expire.
type SessionConfig struct {
	CookieName    string `koanf:"cookie_name" json:"cookie_name" jsonschema:"default=_my_session_id"`
	MaxAgeSeconds int    `koanf:"max_age_seconds" json:"max_age_seconds" jsonschema:"minimum=0,default=0"`
}

// AuthConfig selects the request authentication strategy and its exemptions.
type AuthConfig struct {
	Strategy    string   `koanf:"strategy" json:"strategy" jsonschema:"enum=basic,enum=session,default=session"`
	ExemptPaths []string `koanf:"exempt_paths" json:"exempt_paths,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Format string `koanf:"format" json:"format" jsonschema:"enum=json,enum=text,default=json"`
	Level  string `koanf:"level" json:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`
}

// Config is the root configuration for the authgate server.
type Config struct {
	Server   ServerConfig   `koanf:"server" json:"server"`
	Database DatabaseConfig `koanf:"database" json:"database"`
	Session  SessionConfig  `koanf:"session" json:"session"`
	Auth     AuthConfig     `koanf:"auth" json:"auth"`
	Log      LogConfig      `koanf:"log" json:"log"`
}

// Default returns a Config populated with defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Listen:      ":8080",
			MetricsAddr: "127.0.0.1:9100",
		},
		Session: SessionConfig{
			CookieName:    "_my_session_id",
			MaxAgeSeconds: 0,
		},
		Auth: AuthConfig{
			Strategy: "session",
			ExemptPaths: []string{
				"/",
				"/users",
				"/sessions",
				"/reset_password",
				"/healthz/*",
			},
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and an
// optional flag set, in that order of precedence (flags win). path may be
// empty; a missing file at an explicitly given path is an error.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_FILE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_UNMARSHAL_FAILED").Wrap(err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv fills settings from conventional environment variables when the
// file and flags left them at their defaults.
func applyEnv(cfg *Config) {
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	if name := os.Getenv("SESSION_NAME"); name != "" && cfg.Session.CookieName == Default().Session.CookieName {
		cfg.Session.CookieName = name
	}
	if dur := os.Getenv("SESSION_DURATION"); dur != "" && cfg.Session.MaxAgeSeconds == 0 {
		if secs, err := strconv.Atoi(dur); err == nil && secs >= 0 {
			cfg.Session.MaxAgeSeconds = secs
		}
	}
}

// Validate checks the configuration for inconsistencies.
func (c Config) Validate() error {
	if c.Server.Listen == "" {
		return oops.Code("CONFIG_INVALID").Errorf("server.listen must not be empty")
	}
	if c.Auth.Strategy != "basic" && c.Auth.Strategy != "session" {
		return oops.Code("CONFIG_INVALID").
			With("strategy", c.Auth.Strategy).
			Errorf("auth.strategy must be %q or %q", "basic", "session")
	}
	if c.Session.MaxAgeSeconds < 0 {
		return oops.Code("CONFIG_INVALID").
			With("max_age_seconds", c.Session.MaxAgeSeconds).
			Errorf("session.max_age_seconds must be non-negative")
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return oops.Code("CONFIG_INVALID").
			With("format", c.Log.Format).
			Errorf("log.format must be %q or %q", "json", "text")
	}
	return nil
}

// RegisterFlags declares the command-line flags recognized by Load. Flag
// names mirror the koanf key paths. Defaults match Default() so an unchanged
// flag never shadows a value from the config file.
func RegisterFlags(flags *pflag.FlagSet) {
	def := Default()
	flags.String("server.listen", def.Server.Listen, "HTTP listen address")
	flags.String("server.metrics_addr", def.Server.MetricsAddr, "metrics listen address")
	flags.String("database.url", "", "PostgreSQL connection URL")
	flags.String("session.cookie_name", def.Session.CookieName, "session cookie name")
	flags.Int("session.max_age_seconds", def.Session.MaxAgeSeconds, "session lifetime in seconds (0 = unbounded)")
	flags.String("auth.strategy", def.Auth.Strategy, "authentication strategy (basic or session)")
	flags.StringSlice("auth.exempt_paths", def.Auth.ExemptPaths, "paths exempt from authentication")
	flags.String("log.format", def.Log.Format, "log format (json or text)")
	flags.String("log.level", def.Log.Level, "log level (debug, info, warn, error)")
}
