// Package config loads vaultkeeper settings from config.yaml in the
// application directory, overridden by VAULTKEEPER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/forest6511/vaultkeeper/pkg/appdir"
	"github.com/forest6511/vaultkeeper/pkg/worker"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "VAULTKEEPER_"

// PasswordEnv is read once by the CLI for non-interactive unlocks and then
// cleared from the environment.
const PasswordEnv = EnvPrefix + "PASSWORD"

// Errors
var (
	ErrConfigInsecure       = errors.New("config: config file has insecure permissions")
	ErrConfigSymlink        = errors.New("config: config file is a symlink")
	ErrConfigNotOwnedByUser = errors.New("config: config file not owned by current user")
	ErrInvalidConfig        = errors.New("config: invalid configuration")
)

// Config holds the resolved settings.
type Config struct {
	// Dir is the application directory. It can only come from the
	// environment or the command line since the file lives inside it.
	Dir        string `yaml:"-" env:"DIR"`
	QueueSize  int    `yaml:"queue_size" env:"QUEUE_SIZE"`
	HistoryMax int    `yaml:"history_max" env:"HISTORY_MAX"`
	UseKeyring bool   `yaml:"use_keyring" env:"USE_KEYRING"`
	LogLevel   string `yaml:"log_level" env:"LOG_LEVEL"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		QueueSize:  worker.DefaultQueueSize,
		HistoryMax: appdir.DefaultHistoryMax,
		UseKeyring: true,
		LogLevel:   "warn",
	}
}

// Load resolves the configuration. Precedence from lowest to highest:
// defaults, config.yaml, environment. dirOverride, when set, replaces the
// directory from the environment.
func Load(dirOverride string) (*Config, error) {
	cfg := Default()
	if err := parseEnv(&cfg); err != nil {
		return nil, err
	}
	if dirOverride != "" {
		cfg.Dir = dirOverride
	}

	dir, err := appdir.New(cfg.Dir)
	if err != nil {
		return nil, err
	}
	cfg.Dir = dir.Root()

	if err := loadFile(dir.ConfigPath(), &cfg); err != nil {
		return nil, err
	}
	// Environment wins over the file.
	if err := parseEnv(&cfg); err != nil {
		return nil, err
	}
	if dirOverride != "" {
		cfg.Dir = dir.Root()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and the log level.
func (c *Config) Validate() error {
	if c.QueueSize < 1 {
		return fmt.Errorf("%w: queue_size must be positive, got %d", ErrInvalidConfig, c.QueueSize)
	}
	if c.HistoryMax < 1 {
		return fmt.Errorf("%w: history_max must be positive, got %d", ErrInvalidConfig, c.HistoryMax)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %v", ErrInvalidConfig, err)
	}
	return nil
}

// AppDir returns the application directory for c.
func (c *Config) AppDir() (*appdir.Dir, error) {
	return appdir.New(c.Dir)
}

func parseEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("%w: parse env: %v", ErrInvalidConfig, err)
	}
	return nil
}

// loadFile decodes the YAML file at path into cfg. A missing file leaves
// cfg unchanged. The file is opened without following symlinks and must be
// owner-only.
func loadFile(path string, cfg *Config) error {
	f, err := openConfigFile(path)
	if errors.Is(err, errConfigNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := checkFileMode(info); err != nil {
		return err
	}
	if err := checkFileOwnership(info); err != nil {
		return err
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, appdir.ConfigFile, err)
	}
	return nil
}

var errConfigNotFound = errors.New("config: config file not found")
