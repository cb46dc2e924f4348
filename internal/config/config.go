// Package config loads and writes Heron configuration files and sets up
// logging.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/heron/internal/domain"
)

// EnvPrefix prefixes environment overrides, e.g. HERON_MATCHING_MAX_CANDIDATES.
const EnvPrefix = "HERON"

// DefaultFileName is the config file looked up when no path is given.
const DefaultFileName = "heron.yaml"

// Load builds a Config from defaults, the config file and the environment,
// in increasing precedence. Flags bound to v take precedence over all of
// them. An empty path searches the working directory and
// $HOME/.config/heron; a missing file there is not an error. v may be nil.
func Load(v *viper.Viper, path string) (*domain.Config, error) {
	if v == nil {
		v = viper.New()
	}

	defaults, err := yaml.Marshal(domain.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("encoding defaults: %w", err)
	}
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("reading defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFileName, filepath.Ext(DefaultFileName)))
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "heron"))
		}
	}

	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg domain.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if file := v.ConfigFileUsed(); file != "" {
		slog.Debug("config loaded", "file", file)
	}

	return &cfg, nil
}

// Save writes cfg to path as YAML, creating the directory if needed.
func Save(path string, cfg *domain.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// SetupLogger installs the default slog logger. Format is "json" or
// "console"; logs go to stderr so command output stays clean on stdout.
func SetupLogger(level, format string) error {
	// Parse log level
	var slogLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info", "":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return fmt.Errorf("%w: invalid log level: %s", domain.ErrConfiguration, level)
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}

	switch strings.ToLower(format) {
	case "console", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json", "":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("%w: invalid log format: %s", domain.ErrConfiguration, format)
	}

	// Set default logger
	slog.SetDefault(slog.New(handler))

	return nil
}
