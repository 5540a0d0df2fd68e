package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// MaxPageSize bounds the lookup table page size.
const MaxPageSize = 16

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateConfig performs validation of every section.
func ValidateConfig(c *Config) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs ValidationErrors
	errs = append(errs, validateEngine(&c.Engine)...)
	errs = append(errs, validateLookup(&c.Lookup)...)
	errs = append(errs, validateDictionary(&c.Dictionary)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateEngine(e *EngineConfig) ValidationErrors {
	var errs ValidationErrors

	if e.Name == "" {
		errs = append(errs, *RequiredFieldError("engine.name"))
	}
	if e.BusName == "" {
		errs = append(errs, *RequiredFieldError("engine.bus_name"))
	} else if !isValidBusName(e.BusName) {
		errs = append(errs, ValidationError{
			Field:   "engine.bus_name",
			Message: fmt.Sprintf("invalid D-Bus name: %s", e.BusName),
		})
	}

	return errs
}

func validateLookup(l *LookupConfig) ValidationErrors {
	var errs ValidationErrors

	if l.PageSize < 1 || l.PageSize > MaxPageSize {
		errs = append(errs, *RangeError("lookup.page_size", 1, MaxPageSize))
	}

	switch l.Orientation {
	case "system", "horizontal", "vertical":
		// Valid orientations
	default:
		errs = append(errs, ValidationError{
			Field:   "lookup.orientation",
			Message: fmt.Sprintf("invalid orientation: %s (valid: system, horizontal, vertical)", l.Orientation),
		})
	}

	return errs
}

func validateDictionary(d *DictionaryConfig) ValidationErrors {
	var errs ValidationErrors

	if d.Path == "" {
		if d.Watch {
			errs = append(errs, ValidationError{
				Field:   "dictionary.watch",
				Message: "watch requires a dictionary path",
			})
		}
		return errs
	}

	switch strings.ToLower(filepath.Ext(d.Path)) {
	case ".toml", ".json", ".yaml", ".yml", ".sqlite", ".sqlite3", ".db":
		// Valid formats
	default:
		errs = append(errs, ValidationError{
			Field:   "dictionary.path",
			Message: fmt.Sprintf("unsupported dictionary format: %s", d.Path),
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
		// Valid formats
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}

	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	var errs ValidationErrors

	if m.Listen == "" {
		return errs
	}
	if _, _, err := net.SplitHostPort(m.Listen); err != nil {
		errs = append(errs, ValidationError{
			Field:   "metrics.listen",
			Message: fmt.Sprintf("invalid listen address: %s", m.Listen),
		})
	}

	return errs
}

// isValidBusName checks the well-known name rules: at least two
// dot-separated elements of [A-Za-z0-9_-], none starting with a digit.
func isValidBusName(name string) bool {
	if len(name) > 255 || strings.HasPrefix(name, ":") {
		return false
	}
	parts := strings.Split(name, ".")
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts {
		if p == "" || (p[0] >= '0' && p[0] <= '9') {
			return false
		}
		for _, r := range p {
			ok := r == '_' || r == '-' ||
				(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			if !ok {
				return false
			}
		}
	}
	return true
}

// ExpandPath expands a leading ~ and environment variables.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return os.ExpandEnv(path)
}

// RequiredFieldError creates a validation error for a missing required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
