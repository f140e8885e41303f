// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads chatd configuration from defaults, a YAML file, and
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/chatd/internal/auth"
	"github.com/holomush/chatd/internal/logging"
	"github.com/holomush/chatd/internal/store"
	"github.com/holomush/chatd/internal/xdg"
)

// Config is the complete server configuration.
type Config struct {
	ListenAddr  string         `koanf:"listen_addr"`
	MetricsAddr string         `koanf:"metrics_addr"`
	LogFormat   string         `koanf:"log_format"`
	LogLevel    string         `koanf:"log_level"`
	DatabaseURL string         `koanf:"database_url"`
	Database    DatabaseConfig `koanf:"database"`
	Names       NamesConfig    `koanf:"names"`
}

// DatabaseConfig tunes the PostgreSQL connection.
type DatabaseConfig struct {
	ConnectAttempts uint64 `koanf:"connect_attempts"`
}

// NamesConfig holds the naming rules for claimed names.
type NamesConfig struct {
	Pattern   string   `koanf:"pattern"`
	MinLength int      `koanf:"min_length"`
	MaxLength int      `koanf:"max_length"`
	Reserved  []string `koanf:"reserved"`
}

// PolicyConfig converts the naming rules to an auth.NamePolicyConfig.
func (n NamesConfig) PolicyConfig() auth.NamePolicyConfig {
	return auth.NamePolicyConfig{
		Pattern:   n.Pattern,
		MinLength: n.MinLength,
		MaxLength: n.MaxLength,
		Reserved:  n.Reserved,
	}
}

// defaults are applied before any file or flag is read.
var defaults = map[string]any{
	"listen_addr":               ":4201",
	"metrics_addr":              "127.0.0.1:9100",
	"log_format":                "json",
	"log_level":                 "info",
	"database_url":              "",
	"database.connect_attempts": uint64(store.DefaultConnectAttempts),
	"names.pattern":             auth.DefaultNamePattern,
	"names.min_length":          auth.DefaultMinNameLength,
	"names.max_length":          auth.DefaultMaxNameLength,
	"names.reserved":            []string{},
}

// flagKeys maps command-line flag names to configuration keys. Flags not
// listed here are not configuration.
var flagKeys = map[string]string{
	"listen":           "listen_addr",
	"metrics-addr":     "metrics_addr",
	"log-format":       "log_format",
	"log-level":        "log_level",
	"database-url":     "database_url",
	"connect-attempts": "database.connect_attempts",
}

// RegisterFlags adds the configuration flags to fs. Their defaults are
// informational; unset flags never override the file.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("listen", defaults["listen_addr"].(string), "address for client connections")
	fs.String("metrics-addr", defaults["metrics_addr"].(string), "address for metrics and health endpoints (empty disables)")
	fs.String("log-format", defaults["log_format"].(string), "log format: json or text")
	fs.String("log-level", defaults["log_level"].(string), "log level: debug, info, warn, or error")
	fs.String("database-url", "", "PostgreSQL URL for auth records (empty keeps them in memory)")
	fs.Uint64("connect-attempts", store.DefaultConnectAttempts, "database connection attempts at startup")
}

// Load builds the configuration. path names a YAML file; when empty the XDG
// default file is used if it exists. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, oops.Code("CONFIG_DEFAULTS_FAILED").With("key", key).Wrap(err)
		}
	}

	explicit := path != ""
	if !explicit {
		path = xdg.ConfigFile()
	}
	if err := loadFile(k, path, explicit); err != nil {
		return nil, err
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string, explicit bool) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return oops.Code("CONFIG_FILE_UNREADABLE").With("path", path).Wrap(err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
	}
	return nil
}

// Validate checks that the configuration can start a server. Errors from the
// logging and auth packages keep their own codes.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return oops.Code("CONFIG_INVALID").With("key", "listen_addr").Errorf("listen address is required")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return oops.Code("CONFIG_INVALID").
			With("key", "log_format").
			With("value", c.LogFormat).
			Errorf("log format must be json or text")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return oops.With("key", "log_level").Wrap(err)
	}
	if _, err := auth.NewNamePolicy(c.Names.PolicyConfig()); err != nil {
		return oops.With("key", "names").Wrap(err)
	}
	return nil
}
