// Package config handles configuration loading and validation for ibus-afrim.
//
// Configuration is loaded from (in order of precedence):
//  1. Command-line flags (handled by the caller)
//  2. Environment variables (IBUS_AFRIM_*)
//  3. Configuration file (TOML, JSON, or YAML)
//  4. Built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"ibusafrim/internal/ime"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "IBUS_AFRIM_"

// Config is the complete ibus-afrim configuration.
type Config struct {
	mu sync.RWMutex

	// Engine describes the component and engine advertised to IBus.
	Engine EngineConfig `toml:"engine" json:"engine" yaml:"engine"`

	// Lookup controls the candidate table.
	Lookup LookupConfig `toml:"lookup" json:"lookup" yaml:"lookup"`

	// Dictionary locates the afrim dictionary.
	Dictionary DictionaryConfig `toml:"dictionary" json:"dictionary" yaml:"dictionary"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Metrics configuration.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`
}

// EngineConfig holds the fields of the IBus component and engine
// description.
type EngineConfig struct {
	// Name is the engine name ibus-daemon asks the factory for.
	Name string `toml:"name" json:"name" yaml:"name"`

	// BusName is the well-known D-Bus name of the component.
	BusName string `toml:"bus_name" json:"bus_name" yaml:"bus_name"`

	LongName    string `toml:"long_name" json:"long_name" yaml:"long_name"`
	Description string `toml:"description" json:"description" yaml:"description"`
	Language    string `toml:"language" json:"language" yaml:"language"`
	License     string `toml:"license" json:"license" yaml:"license"`
	Author      string `toml:"author" json:"author" yaml:"author"`
	Icon        string `toml:"icon" json:"icon" yaml:"icon"`
	Layout      string `toml:"layout" json:"layout" yaml:"layout"`
	Symbol      string `toml:"symbol" json:"symbol" yaml:"symbol"`
	Version     string `toml:"version" json:"version" yaml:"version"`
	Homepage    string `toml:"homepage" json:"homepage" yaml:"homepage"`

	// Exec is the command ibus-daemon runs to start the engine. Empty
	// means the running executable.
	Exec string `toml:"exec" json:"exec" yaml:"exec"`

	// Rank orders engines of the same language in the IBus preferences.
	Rank uint32 `toml:"rank" json:"rank" yaml:"rank"`
}

// LookupConfig controls the candidate lookup table.
type LookupConfig struct {
	// PageSize is the number of candidates per page (1-16).
	PageSize int `toml:"page_size" json:"page_size" yaml:"page_size"`

	// Orientation is "system", "horizontal" or "vertical".
	Orientation string `toml:"orientation" json:"orientation" yaml:"orientation"`

	// ShowHints appends the remaining input to each candidate label.
	ShowHints bool `toml:"show_hints" json:"show_hints" yaml:"show_hints"`
}

// DictionaryConfig locates the dictionary.
type DictionaryConfig struct {
	// Path is an afrim TOML/JSON/YAML file or a compiled .sqlite/.db file.
	// Empty runs the engine with an empty dictionary.
	Path string `toml:"path" json:"path" yaml:"path"`

	// Watch reloads the dictionary when the file changes.
	Watch bool `toml:"watch" json:"watch" yaml:"watch"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr" or "file".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// LogText disables redaction of typed text in log records.
	LogText bool `toml:"log_text" json:"log_text" yaml:"log_text"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	// Listen is the address of the /metrics endpoint. Empty disables it.
	Listen string `toml:"listen" json:"listen" yaml:"listen"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Name:        "afrim",
			BusName:     "org.freedesktop.IBus.Afrim",
			LongName:    "Afrim",
			Description: "Afrim input method",
			Language:    "other",
			License:     "MIT",
			Author:      "Afrim contributors",
			Icon:        "",
			Layout:      "default",
			Symbol:      "af",
			Version:     "0.1.0",
			Homepage:    "https://github.com/fodydev/afrim",
			Rank:        99,
		},
		Lookup: LookupConfig{
			PageSize:    ime.DefaultPageSize,
			Orientation: "system",
			ShowHints:   true,
		},
		Dictionary: DictionaryConfig{
			Path:  filepath.Join(PlatformConfigDir(), "dictionary.toml"),
			Watch: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformStateDir(), "ibus-afrim.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	// Apply environment variable overrides
	cfg.ApplyEnvOverrides()

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with IBUS_AFRIM_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Engine overrides
	if v := os.Getenv(EnvPrefix + "ENGINE_NAME"); v != "" {
		c.Engine.Name = v
	}
	if v := os.Getenv(EnvPrefix + "BUS_NAME"); v != "" {
		c.Engine.BusName = v
	}
	if v := os.Getenv(EnvPrefix + "EXEC"); v != "" {
		c.Engine.Exec = v
	}

	// Lookup overrides
	if v := os.Getenv(EnvPrefix + "PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Lookup.PageSize = n
		}
	}
	if v := os.Getenv(EnvPrefix + "ORIENTATION"); v != "" {
		c.Lookup.Orientation = strings.ToLower(v)
	}

	// Dictionary overrides
	if v := os.Getenv(EnvPrefix + "DICTIONARY"); v != "" {
		c.Dictionary.Path = v
	}

	// Logging overrides
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvPrefix + "LOG_PATH"); v != "" {
		c.Logging.Output = "file"
		c.Logging.FilePath = v
	}

	// Metrics overrides
	if v, ok := os.LookupEnv(EnvPrefix + "METRICS_LISTEN"); ok {
		c.Metrics.Listen = v
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Config{
		Engine:     c.Engine,
		Lookup:     c.Lookup,
		Dictionary: c.Dictionary,
		Logging:    c.Logging,
		Metrics:    c.Metrics,
	}
}

// Component builds the IBus component description. An empty exec falls
// back to the running executable.
func (c *Config) Component() (ime.ComponentInfo, error) {
	c.mu.RLock()
	e := c.Engine
	c.mu.RUnlock()

	exec := e.Exec
	if exec == "" {
		self, err := os.Executable()
		if err != nil {
			return ime.ComponentInfo{}, fmt.Errorf("locate executable: %w", err)
		}
		exec = self
	}

	return ime.ComponentInfo{
		BusName:     e.BusName,
		EngineName:  e.Name,
		LongName:    e.LongName,
		Description: e.Description,
		Language:    e.Language,
		License:     e.License,
		Author:      e.Author,
		Icon:        e.Icon,
		Layout:      e.Layout,
		Rank:        e.Rank,
		Symbol:      e.Symbol,
		Version:     e.Version,
		Homepage:    e.Homepage,
		Exec:        exec,
		TextDomain:  "ibus-afrim",
	}, nil
}

// LookupTable converts the lookup section into table rendering options.
func (c *Config) LookupTable() ime.LookupTableOptions {
	c.mu.RLock()
	defer c.mu.RUnlock()

	opts := ime.LookupTableOptions{
		Orientation: ime.OrientationSystem,
		ShowHints:   c.Lookup.ShowHints,
	}
	switch c.Lookup.Orientation {
	case "horizontal":
		opts.Orientation = ime.OrientationHorizontal
	case "vertical":
		opts.Orientation = ime.OrientationVertical
	}
	return opts
}
