package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
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
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateStore()...)
	errors = append(errors, c.validateDetector()...)
	errors = append(errors, c.validateLocking()...)
	errors = append(errors, c.validateMetrics()...)
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateStore() ValidationErrors {
	var errors ValidationErrors

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			errors = append(errors, ValidationError{
				Field:   "store.path",
				Message: "path is required for the sqlite driver",
			})
		}
	case "mysql":
		errors = append(errors, c.validateDatabase("store.mysql", &c.Store.MySQL)...)
	case "memory":
	default:
		errors = append(errors, ValidationError{
			Field:   "store.driver",
			Message: "driver must be 'sqlite', 'mysql', or 'memory'",
		})
	}

	if c.Store.DefaultAccount.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "store.default_account.name",
			Message: "default account name is required",
		})
	}

	return errors
}

func (c *Config) validateDatabase(prefix string, db *DatabaseConfig) ValidationErrors {
	var errors ValidationErrors

	if db.Host == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".host",
			Message: "host is required",
		})
	}

	if db.Port <= 0 || db.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".port",
			Message: "port must be between 1 and 65535",
		})
	}

	if db.User == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".user",
			Message: "user is required",
		})
	}

	if db.Database == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".database",
			Message: "database name is required",
		})
	}

	validTLS := map[string]bool{"disable": true, "preferred": true, "required": true, "": true}
	if !validTLS[db.TLS] {
		errors = append(errors, ValidationError{
			Field:   prefix + ".tls",
			Message: "tls must be 'disable', 'preferred', or 'required'",
		})
	}

	if db.MaxConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".max_connections",
			Message: "max_connections cannot be negative",
		})
	}

	if db.MaxIdleConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".max_idle_connections",
			Message: "max_idle_connections cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateDetector() ValidationErrors {
	var errors ValidationErrors

	if c.Detector.DebounceMillis < 0 {
		errors = append(errors, ValidationError{
			Field:   "detector.debounce_ms",
			Message: "debounce_ms cannot be negative",
		})
	}

	if c.Detector.PollIntervalSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "detector.poll_interval_seconds",
			Message: "poll_interval_seconds cannot be negative",
		})
	}

	if c.Detector.WatchFile && c.Store.Driver == "mysql" {
		errors = append(errors, ValidationError{
			Field:   "detector.watch_file",
			Message: "watch_file requires the sqlite driver; use poll_interval_seconds for mysql",
		})
	}

	return errors
}

func (c *Config) validateLocking() ValidationErrors {
	var errors ValidationErrors

	switch c.Locking.Mode {
	case "local", "":
	case "advisory":
		if c.Store.Driver != "mysql" {
			errors = append(errors, ValidationError{
				Field:   "locking.mode",
				Message: "advisory locking requires the mysql driver",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "locking.mode",
			Message: "mode must be 'local' or 'advisory'",
		})
	}

	if c.Locking.TimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "locking.timeout_seconds",
			Message: "timeout_seconds cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateMetrics() ValidationErrors {
	var errors ValidationErrors

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errors = append(errors, ValidationError{
			Field:   "metrics.address",
			Message: "address is required when metrics are enabled",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging",
			Message: "rotation settings cannot be negative",
		})
	}

	return errors
}
