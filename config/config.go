// Package config loads dmthedev settings from a YAML file, an optional .env
// file and DMTHEDEV_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/TrendsAI-bit/dmthedev"
	"github.com/TrendsAI-bit/dmthedev/errors"
)

// Environment variables that override file settings.
const (
	EnvStoreType      = "DMTHEDEV_STORE_TYPE"
	EnvStorePath      = "DMTHEDEV_STORE_PATH"
	EnvKeystoreDir    = "DMTHEDEV_KEYSTORE_DIR"
	EnvLogLevel       = "DMTHEDEV_LOG_LEVEL"
	EnvLogFormat      = "DMTHEDEV_LOG_FORMAT"
	EnvPromptInterval = "DMTHEDEV_PROMPT_INTERVAL"
)

// Log formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config is the complete dmthedev configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Keystore KeystoreConfig `yaml:"keystore"`
	Log      LogConfig      `yaml:"log"`
	Signer   SignerConfig   `yaml:"signer"`
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	// Type is a registered backend name ("sqlite", "maildir").
	Type string `yaml:"type"`

	// Path is the database file or base directory.
	Path string `yaml:"path"`

	// Options are passed to the backend unchanged.
	Options map[string]string `yaml:"options"`
}

// KeystoreConfig locates passphrase-protected wallet keys.
type KeystoreConfig struct {
	Dir string `yaml:"dir"`
}

// LogConfig controls the CLI logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SignerConfig controls signing prompts.
type SignerConfig struct {
	// PromptInterval is the minimum time between two signing prompts.
	// Zero disables pacing.
	PromptInterval time.Duration `yaml:"promptInterval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Type: "sqlite",
			Path: "dmthedev.db",
		},
		Keystore: KeystoreConfig{
			Dir: "keys",
		},
		Log: LogConfig{
			Level:  "info",
			Format: FormatConsole,
		},
	}
}

// Load reads the YAML file at path over the defaults and then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", errors.ErrConfigInvalid, path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads variables from a .env file into the process environment.
// Variables already set in the environment keep their values.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvStoreType); ok {
		c.Store.Type = v
	}
	if v, ok := lookup(EnvStorePath); ok {
		c.Store.Path = v
	}
	if v, ok := lookup(EnvKeystoreDir); ok {
		c.Keystore.Dir = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.Log.Level = v
	}
	if v, ok := lookup(EnvLogFormat); ok {
		c.Log.Format = v
	}
	if v, ok := lookup(EnvPromptInterval); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", errors.ErrConfigInvalid, EnvPromptInterval, err)
		}
		c.Signer.PromptInterval = d
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Store.Type == "" {
		return fmt.Errorf("%w: store.type is required", errors.ErrConfigInvalid)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("%w: store.path is required", errors.ErrConfigInvalid)
	}
	if c.Keystore.Dir == "" {
		return fmt.Errorf("%w: keystore.dir is required", errors.ErrConfigInvalid)
	}
	if _, err := c.Log.ZapLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case FormatConsole, FormatJSON:
	default:
		return fmt.Errorf("%w: log.format must be %q or %q, got %q", errors.ErrConfigInvalid, FormatConsole, FormatJSON, c.Log.Format)
	}
	if c.Signer.PromptInterval < 0 {
		return fmt.Errorf("%w: signer.promptInterval must not be negative", errors.ErrConfigInvalid)
	}
	return nil
}

// ToStoreConfig converts the store section for dmthedev.Open.
func (c *Config) ToStoreConfig(logger *zap.Logger) dmthedev.StoreConfig {
	return dmthedev.StoreConfig{
		Type:     c.Store.Type,
		BasePath: c.Store.Path,
		Options:  c.Store.Options,
		Logger:   logger,
	}
}

// ZapLevel parses the configured level name.
func (l LogConfig) ZapLevel() (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("%w: log.level: %v", errors.ErrConfigInvalid, err)
	}
	return level, nil
}

// NewLogger builds a zap logger writing to stderr.
func (l LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := l.ZapLevel()
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if strings.ToLower(l.Format) == FormatJSON {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
