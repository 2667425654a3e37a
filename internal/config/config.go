// Package config loads ddup defaults from an optional TOML file and
// environment variables. Command-line flags are applied on top by the cli
// package.
//
// Precedence, lowest first: built-in defaults, config file, environment.
//
// Config file locations, first found wins:
//   - the path given with --config
//   - ./.ddup.toml
//   - ~/.config/ddup/config.toml
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/sokinpui/ddup/internal/detect"
)

const (
	localFileName = ".ddup.toml"
	userDirName   = "ddup"
	userFileName  = "config.toml"
)

// Config holds the persistent defaults.
type Config struct {
	// Criterion is one of exact, case-insensitive, ignore-whitespace, regex, prefix.
	Criterion string `toml:"criterion"`
	// Pattern is the regex used when Criterion is regex.
	Pattern string `toml:"pattern"`
	// IgnoreCase folds case before comparison (exact and prefix only).
	IgnoreCase bool `toml:"ignore_case"`
	// IgnoreWhitespace strips all whitespace before comparison (exact and prefix only).
	IgnoreWhitespace bool `toml:"ignore_whitespace"`
	// ContextSize is the number of lines shown around each duplicate.
	ContextSize int `toml:"context_size"`

	Batch BatchConfig `toml:"batch"`
	Log   LogConfig   `toml:"log"`
}

// BatchConfig controls batch runs.
type BatchConfig struct {
	// Workers is the number of files processed in parallel.
	Workers int `toml:"workers"`
	// MaxOpenFiles caps simultaneously open file handles.
	MaxOpenFiles int `toml:"max_open_files"`
	// Extensions restricts which files are picked up from directories.
	Extensions []string `toml:"extensions"`
	// Purge removes every occurrence of a duplicated value instead of
	// keeping the first.
	Purge bool `toml:"purge"`
}

// LogConfig controls the operational log file.
type LogConfig struct {
	File  string `toml:"file"`
	Level string `toml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Criterion:   "exact",
		ContextSize: detect.DefaultContextSize,
		Batch: BatchConfig{
			Workers:      runtime.NumCPU(),
			MaxOpenFiles: 16,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Validate checks that numeric settings are in range.
func (c Config) Validate() error {
	if c.ContextSize < 0 || c.ContextSize > 100 {
		return fmt.Errorf("context_size must be between 0 and 100 (got %d)", c.ContextSize)
	}
	if c.Batch.Workers < 1 || c.Batch.Workers > 256 {
		return fmt.Errorf("batch.workers must be between 1 and 256 (got %d)", c.Batch.Workers)
	}
	if c.Batch.MaxOpenFiles < 1 || c.Batch.MaxOpenFiles > 4096 {
		return fmt.Errorf("batch.max_open_files must be between 1 and 4096 (got %d)", c.Batch.MaxOpenFiles)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error (got %q)", c.Log.Level)
	}
	return nil
}

// Load builds the configuration from defaults, the first config file found
// and the environment. An explicit path that does not exist is an error;
// missing default locations are not.
func Load(explicitPath string) (Config, error) {
	cfg := Default()

	path, err := locate(explicitPath)
	if err != nil {
		return cfg, err
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func locate(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicitPath, err)
		}
		return explicitPath, nil
	}

	candidates := []string{localFileName}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, userDirName, userFileName))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("config file %s: %w", c, err)
		}
	}
	return "", nil
}

// applyEnv overrides cfg from the environment.
//
// Environment variables:
//   - DDUP_CRITERION: matching criterion
//   - DDUP_PATTERN: regex pattern
//   - DDUP_IGNORE_CASE: fold case (true/false)
//   - DDUP_IGNORE_WHITESPACE: strip whitespace (true/false)
//   - DDUP_CONTEXT: context lines around duplicates
//   - DDUP_WORKERS: batch worker count
//   - DDUP_MAX_OPEN: maximum open files during a batch
//   - DDUP_LOG_FILE: operational log file
//   - DDUP_LOG_LEVEL: debug, info, warn or error
func applyEnv(cfg *Config) error {
	parseEnvString("DDUP_CRITERION", &cfg.Criterion)
	parseEnvString("DDUP_PATTERN", &cfg.Pattern)
	parseEnvString("DDUP_LOG_FILE", &cfg.Log.File)
	parseEnvString("DDUP_LOG_LEVEL", &cfg.Log.Level)

	if err := parseEnvBool("DDUP_IGNORE_CASE", &cfg.IgnoreCase); err != nil {
		return err
	}
	if err := parseEnvBool("DDUP_IGNORE_WHITESPACE", &cfg.IgnoreWhitespace); err != nil {
		return err
	}
	if err := parseEnvInt("DDUP_CONTEXT", &cfg.ContextSize); err != nil {
		return err
	}
	if err := parseEnvInt("DDUP_WORKERS", &cfg.Batch.Workers); err != nil {
		return err
	}
	if err := parseEnvInt("DDUP_MAX_OPEN", &cfg.Batch.MaxOpenFiles); err != nil {
		return err
	}
	return nil
}

func parseEnvString(key string, dest *string) {
	if value := os.Getenv(key); value != "" {
		*dest = value
	}
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}
