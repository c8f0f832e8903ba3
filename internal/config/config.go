// Package config provides configuration structures and loading for gocontacts.
package config

// Config represents the complete application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Detector DetectorConfig `yaml:"detector" mapstructure:"detector"`
	Locking  LockingConfig  `yaml:"locking" mapstructure:"locking"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
}

// StoreConfig selects and configures the record store backend.
type StoreConfig struct {
	Driver         string         `yaml:"driver" mapstructure:"driver"` // sqlite, mysql, memory
	Path           string         `yaml:"path" mapstructure:"path"`     // sqlite database file
	MySQL          DatabaseConfig `yaml:"mysql" mapstructure:"mysql"`
	DefaultAccount AccountConfig  `yaml:"default_account" mapstructure:"default_account"`
	CreateSchema   bool           `yaml:"create_schema" mapstructure:"create_schema"`
}

// DatabaseConfig represents a MySQL database connection configuration.
type DatabaseConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	Database           string `yaml:"database" mapstructure:"database"`
	TLS                string `yaml:"tls" mapstructure:"tls"` // disable, preferred, required
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
}

// AccountConfig is the account assigned to logical records created without one.
type AccountConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	Type string `yaml:"type" mapstructure:"type"`
}

// DetectorConfig controls the change detector and its notification sources.
type DetectorConfig struct {
	Enabled             bool `yaml:"enabled" mapstructure:"enabled"`
	DebounceMillis      int  `yaml:"debounce_ms" mapstructure:"debounce_ms"`
	PollIntervalSeconds int  `yaml:"poll_interval_seconds" mapstructure:"poll_interval_seconds"` // 0 disables polling
	WatchFile           bool `yaml:"watch_file" mapstructure:"watch_file"`
	ResumeOnSIGCONT     bool `yaml:"resume_on_sigcont" mapstructure:"resume_on_sigcont"`
}

// LockingConfig selects how concurrent saves of one contact are serialized.
type LockingConfig struct {
	Mode           string `yaml:"mode" mapstructure:"mode"` // local or advisory
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Address string `yaml:"address" mapstructure:"address"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format     string `yaml:"format" mapstructure:"format"` // json or text
	Output     string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "contacts.db",
			MySQL: DatabaseConfig{
				Port:               3306,
				TLS:                "preferred",
				MaxConnections:     10,
				MaxIdleConnections: 5,
			},
			DefaultAccount: AccountConfig{
				Name: "local",
				Type: "gocontacts",
			},
			CreateSchema: true,
		},
		Detector: DetectorConfig{
			Enabled:             true,
			DebounceMillis:      100,
			PollIntervalSeconds: 0,
			WatchFile:           true,
			ResumeOnSIGCONT:     true,
		},
		Locking: LockingConfig{
			Mode:           "local",
			TimeoutSeconds: 10,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9464",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stderr",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}
