package config

import (
	"strings"
	"testing"
)

func validMySQLConfig() *Config {
	cfg := DefaultConfig()
	cfg.Store.Driver = "mysql"
	cfg.Store.MySQL.Host = "localhost"
	cfg.Store.MySQL.User = "root"
	cfg.Store.MySQL.Database = "contacts"
	cfg.Detector.WatchFile = false
	return cfg
}

func TestValidConfig(t *testing.T) {
	if err := validMySQLConfig().Validate(); err != nil {
		t.Errorf("expected no validation errors, got: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "postgres" }, "store.driver"},
		{"sqlite without path", func(c *Config) { c.Store.Driver = "sqlite"; c.Store.Path = "" }, "store.path"},
		{"mysql missing host", func(c *Config) { c.Store.MySQL.Host = "" }, "store.mysql.host"},
		{"mysql bad port", func(c *Config) { c.Store.MySQL.Port = 70000 }, "store.mysql.port"},
		{"mysql missing user", func(c *Config) { c.Store.MySQL.User = "" }, "store.mysql.user"},
		{"mysql missing database", func(c *Config) { c.Store.MySQL.Database = "" }, "store.mysql.database"},
		{"mysql bad tls", func(c *Config) { c.Store.MySQL.TLS = "maybe" }, "store.mysql.tls"},
		{"negative connections", func(c *Config) { c.Store.MySQL.MaxConnections = -1 }, "store.mysql.max_connections"},
		{"missing account", func(c *Config) { c.Store.DefaultAccount.Name = "" }, "store.default_account.name"},
		{"negative debounce", func(c *Config) { c.Detector.DebounceMillis = -5 }, "detector.debounce_ms"},
		{"negative poll", func(c *Config) { c.Detector.PollIntervalSeconds = -1 }, "detector.poll_interval_seconds"},
		{"watch file on mysql", func(c *Config) { c.Detector.WatchFile = true }, "detector.watch_file"},
		{"bad lock mode", func(c *Config) { c.Locking.Mode = "global" }, "locking.mode"},
		{"negative lock timeout", func(c *Config) { c.Locking.TimeoutSeconds = -1 }, "locking.timeout_seconds"},
		{"metrics without address", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Address = "" }, "metrics.address"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validMySQLConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected error to mention %q, got: %v", tt.field, err)
			}
		})
	}
}

func TestAdvisoryLockingRequiresMySQL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Locking.Mode = "advisory"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for advisory locking on sqlite")
	}
	if !strings.Contains(err.Error(), "advisory locking requires the mysql driver") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidationErrorsAggregate(t *testing.T) {
	cfg := validMySQLConfig()
	cfg.Store.MySQL.Host = ""
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(verrs) != 2 {
		t.Errorf("expected 2 errors, got %d: %v", len(verrs), verrs)
	}
	if !strings.HasPrefix(err.Error(), "validation failed:") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestValidationErrorsEmpty(t *testing.T) {
	var errs ValidationErrors
	if errs.Error() != "" {
		t.Errorf("expected empty message, got %q", errs.Error())
	}
}
