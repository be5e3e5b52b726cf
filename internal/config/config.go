// Package config loads and validates CLI configuration from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/alnah/go-tex2html/internal/fileutil"
)

// maxConfigBytes bounds config input size; no configuration file has
// business being larger.
const maxConfigBytes = 1 << 20

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrInvalidValue    = errors.New("invalid config value")
)

// Config holds all configuration for the conversion CLI.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Guardian  GuardianConfig  `yaml:"guardian"`
	Highlight HighlightConfig `yaml:"highlight"`
	Diag      DiagConfig      `yaml:"diag"`
}

// EngineConfig selects and bounds the external conversion engine.
type EngineConfig struct {
	Binary         string `yaml:"binary"`         // Engine executable (empty = "pandoc" from PATH)
	TimeoutSeconds int    `yaml:"timeoutSeconds"` // Per-document deadline cap (0 = default)
}

// ChunkingConfig tunes document decomposition.
type ChunkingConfig struct {
	WindowChars int `yaml:"windowChars"` // Fallback window size (0 = default)
}

// GuardianConfig tunes the resource watchdog.
type GuardianConfig struct {
	HeapMB          int `yaml:"heapMB"`          // Heap threshold in MiB (0 = default)
	MaxNodes        int `yaml:"maxNodes"`        // Rendered node threshold (0 = default)
	MaxMathNodes    int `yaml:"maxMathNodes"`    // Math element threshold (0 = default)
	IntervalSeconds int `yaml:"intervalSeconds"` // Sampling interval (0 = default)
}

// HighlightConfig enables chroma code highlighting.
type HighlightConfig struct {
	Enabled bool   `yaml:"enabled"`
	Style   string `yaml:"style"` // chroma style name (default "github")
}

// DiagConfig enables the diagnostics HTTP server.
type DiagConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"` // listen address, e.g. "localhost:8377"
}

// DefaultConfig returns a neutral configuration with optional features
// disabled.
func DefaultConfig() *Config {
	return &Config{
		Highlight: HighlightConfig{Style: "github"},
		Diag:      DiagConfig{Addr: "localhost:8377"},
	}
}

// Validate checks value ranges. Called automatically by LoadConfig, but
// available for consumers who construct Config manually.
func (c *Config) Validate() error {
	if c.Engine.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: engine.timeoutSeconds must not be negative", ErrInvalidValue)
	}
	if c.Chunking.WindowChars < 0 {
		return fmt.Errorf("%w: chunking.windowChars must not be negative", ErrInvalidValue)
	}
	if c.Guardian.HeapMB < 0 || c.Guardian.MaxNodes < 0 || c.Guardian.MaxMathNodes < 0 {
		return fmt.Errorf("%w: guardian thresholds must not be negative", ErrInvalidValue)
	}
	if c.Guardian.IntervalSeconds < 0 {
		return fmt.Errorf("%w: guardian.intervalSeconds must not be negative", ErrInvalidValue)
	}
	if c.Diag.Enabled && c.Diag.Addr == "" {
		return fmt.Errorf("%w: diag.addr required when diag.enabled", ErrInvalidValue)
	}
	return nil
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's treated as a config name and searched in standard
// locations. Returns error if the file is not found (no silent fallback).
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	var configPath string
	var err error

	if fileutil.IsFilePath(nameOrPath) {
		configPath = nameOrPath
	} else {
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if len(data) > maxConfigBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrConfigParse, maxConfigBytes)
	}

	// Strict decoding surfaces typos in key names instead of silently
	// falling back to defaults.
	cfg := DefaultConfig()
	if err := yaml.UnmarshalWithOptions(data, cfg, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// resolveConfigPath searches for a config file by name in standard locations.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, ~/.config/go-tex2html/
func resolveConfigPath(name string) (string, error) {
	extensions := []string{".yaml", ".yml"}
	triedPaths := make([]string, 0, len(extensions)*2) // 2 locations

	// Try current directory first (both extensions)
	for _, ext := range extensions {
		localPath := name + ext
		if fileutil.FileExists(localPath) {
			return localPath, nil
		}
		triedPaths = append(triedPaths, localPath)
	}

	// Try user config directory (both extensions)
	userConfigDir, err := os.UserConfigDir()
	if err == nil {
		for _, ext := range extensions {
			userPath := filepath.Join(userConfigDir, "go-tex2html", name+ext)
			if fileutil.FileExists(userPath) {
				return userPath, nil
			}
			triedPaths = append(triedPaths, userPath)
		}
	}

	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(triedPaths, ", "))
}
