// Package database provides connection management for the gocontacts
// record store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver

	"github.com/dbsmedya/gocontacts/internal/config"
	"github.com/dbsmedya/gocontacts/internal/store"
)

// Supported store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Manager owns the connection to the configured record store.
type Manager struct {
	DB     *sql.DB
	config *config.StoreConfig

	maxRetries int
	backoff    time.Duration
}

// NewManager creates a new database manager from configuration.
func NewManager(cfg *config.StoreConfig) *Manager {
	return &Manager{
		config:     cfg,
		maxRetries: 3,
		backoff:    time.Second,
	}
}

// Dialect returns the SQL dialect of the configured driver.
func (m *Manager) Dialect() (store.Dialect, error) {
	switch m.config.Driver {
	case DriverSQLite:
		return store.DialectSQLite, nil
	case DriverMySQL:
		return store.DialectMySQL, nil
	default:
		return "", fmt.Errorf("driver %q has no SQL dialect", m.config.Driver)
	}
}

// Connect establishes the connection. The memory driver needs none.
func (m *Manager) Connect(ctx context.Context) error {
	if m.config.Driver == DriverMemory {
		return nil
	}

	db, err := m.connectWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to %s store: %w", m.config.Driver, err)
	}
	m.DB = db
	return nil
}

// connectWithRetry attempts to connect with exponential backoff.
func (m *Manager) connectWithRetry(ctx context.Context) (*sql.DB, error) {
	var db *sql.DB
	var err error

	backoff := m.backoff
	for i := 0; i < m.maxRetries; i++ {
		db, err = m.connect()
		if err == nil {
			// Verify connection
			if pingErr := db.PingContext(ctx); pingErr == nil {
				return db, nil
			} else {
				db.Close()
				err = pingErr
			}
		}

		if i < m.maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}
	}

	return nil, fmt.Errorf("failed after %d retries: %w", m.maxRetries, err)
}

// connect opens a pool for the configured driver.
func (m *Manager) connect() (*sql.DB, error) {
	switch m.config.Driver {
	case DriverSQLite:
		db, err := sql.Open("sqlite3", BuildSQLiteDSN(m.config.Path))
		if err != nil {
			return nil, err
		}
		// SQLite allows one writer; a single connection avoids busy errors.
		db.SetMaxOpenConns(1)
		return db, nil

	case DriverMySQL:
		cfg := &m.config.MySQL
		db, err := sql.Open("mysql", BuildDSN(cfg))
		if err != nil {
			return nil, err
		}
		if cfg.MaxConnections > 0 {
			db.SetMaxOpenConns(cfg.MaxConnections)
		}
		if cfg.MaxIdleConnections > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConnections)
		}
		db.SetConnMaxLifetime(10 * time.Minute)
		return db, nil

	default:
		return nil, fmt.Errorf("unsupported driver %q", m.config.Driver)
	}
}

// BuildDSN constructs a MySQL DSN from configuration.
func BuildDSN(cfg *config.DatabaseConfig) string {
	// Format: user:password@tcp(host:port)/database?params
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
	)

	if cfg.Database != "" {
		dsn += cfg.Database
	}

	params := "?parseTime=true"
	switch cfg.TLS {
	case "disable":
		params += "&tls=false"
	case "required":
		params += "&tls=true"
	case "preferred", "":
		params += "&tls=preferred"
	}

	return dsn + params
}

// BuildSQLiteDSN constructs a go-sqlite3 DSN for a database file with a
// busy timeout, WAL journaling and foreign keys enabled.
func BuildSQLiteDSN(path string) string {
	params := url.Values{}
	params.Set("_busy_timeout", "5000")
	params.Set("_journal_mode", "WAL")
	params.Set("_foreign_keys", "on")
	return "file:" + strings.ReplaceAll(path, " ", "%20") + "?" + params.Encode()
}

// Close closes the connection gracefully.
func (m *Manager) Close() error {
	if m.DB == nil {
		return nil
	}
	if err := m.DB.Close(); err != nil {
		return fmt.Errorf("store close: %w", err)
	}
	return nil
}

// Ping verifies the connection is alive.
func (m *Manager) Ping(ctx context.Context) error {
	if m.DB == nil {
		return nil
	}
	if err := m.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("store ping failed: %w", err)
	}
	return nil
}
