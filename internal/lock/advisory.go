// Package lock serializes work on one logical contact, either inside one
// process or across processes sharing a MySQL store.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrLockTimeout is returned when lock acquisition times out because
// another holder keeps the lock.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Common timeout values for lock acquisition (in seconds).
const (
	// TimeoutImmediate returns immediately if lock cannot be acquired (no wait).
	TimeoutImmediate = 0

	// TimeoutMedium provides a reasonable wait for a concurrent save of the same contact.
	TimeoutMedium = 10

	// TimeoutInfinite waits indefinitely until the lock is acquired.
	// Note: MySQL treats negative values as infinite wait.
	TimeoutInfinite = -1
)

// AdvisoryLock is a MySQL named lock taken with GET_LOCK().
// GET_LOCK is scoped to a session, so the lock pins one connection from the
// pool between acquire and release.
type AdvisoryLock struct {
	db       *sql.DB
	conn     *sql.Conn
	lockName string
	held     bool
}

// NewAdvisoryLock creates a new advisory lock with the given name.
// The lock is not acquired until AcquireLock is called.
func NewAdvisoryLock(db *sql.DB, lockName string) *AdvisoryLock {
	return &AdvisoryLock{
		db:       db,
		lockName: lockName,
	}
}

// AcquireLock attempts to acquire the advisory lock with the specified timeout.
// Returns true if the lock was acquired, false if timeout was reached.
//
// MySQL GET_LOCK() return values:
//   - 1: Lock was obtained successfully
//   - 0: Timeout was reached without obtaining the lock
//   - NULL: An error occurred (e.g., out of memory, thread killed)
func (a *AdvisoryLock) AcquireLock(ctx context.Context, timeoutSeconds int) (bool, error) {
	if a.held {
		return true, nil
	}

	if a.conn == nil {
		conn, err := a.db.Conn(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to reserve connection for lock %q: %w", a.lockName, err)
		}
		a.conn = conn
	}

	var result sql.NullInt64
	err := a.conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", a.lockName, timeoutSeconds).Scan(&result)
	if err != nil {
		a.closeConn()
		return false, fmt.Errorf("failed to execute GET_LOCK: %w", err)
	}

	if !result.Valid {
		a.closeConn()
		return false, fmt.Errorf("GET_LOCK returned NULL for lock %q (possible database error)", a.lockName)
	}

	switch result.Int64 {
	case 1:
		a.held = true
		return true, nil
	case 0:
		a.closeConn()
		return false, nil
	default:
		a.closeConn()
		return false, fmt.Errorf("unexpected GET_LOCK return value: %d", result.Int64)
	}
}

// ReleaseLock releases the advisory lock and returns its connection to the pool.
// Returns true if the lock was released, false if it was not held.
//
// MySQL RELEASE_LOCK() return values:
//   - 1: Lock was released successfully
//   - 0: Lock was not established by this session
//   - NULL: Named lock did not exist
func (a *AdvisoryLock) ReleaseLock(ctx context.Context) (bool, error) {
	if !a.held {
		return false, nil
	}
	defer a.closeConn()

	var result sql.NullInt64
	err := a.conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", a.lockName).Scan(&result)
	a.held = false
	if err != nil {
		return false, fmt.Errorf("failed to execute RELEASE_LOCK: %w", err)
	}

	if !result.Valid {
		return false, fmt.Errorf("RELEASE_LOCK returned NULL for lock %q (lock did not exist)", a.lockName)
	}

	switch result.Int64 {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected RELEASE_LOCK return value: %d", result.Int64)
	}
}

func (a *AdvisoryLock) closeConn() {
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
}

// IsHeld returns true if this lock is currently held by this instance.
func (a *AdvisoryLock) IsHeld() bool {
	return a.held
}

// LockName returns the name of the advisory lock.
func (a *AdvisoryLock) LockName() string {
	return a.lockName
}

// WithLock executes fn while holding the lock. The lock is released even if
// fn panics.
//
// Returns ErrLockTimeout if the lock cannot be acquired within timeoutSeconds.
func (a *AdvisoryLock) WithLock(ctx context.Context, timeoutSeconds int, fn func() error) error {
	acquired, err := a.AcquireLock(ctx, timeoutSeconds)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another session", ErrLockTimeout, a.lockName)
	}

	defer func() {
		// Release in a fresh context so a cancelled caller still unlocks.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// The server drops the lock with the session if this fails.
		_, _ = a.ReleaseLock(releaseCtx)
	}()

	return fn()
}

// GenerateContactLockName creates a consistent lock name for a contact key.
// Lock names follow the format "gocontacts:contact:{key}". Characters outside
// [A-Za-z0-9_-] are replaced with underscores.
//
// Example: GenerateContactLockName("42") → "gocontacts:contact:42"
func GenerateContactLockName(key string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, key)

	return fmt.Sprintf("gocontacts:contact:%s", sanitized)
}

// AdvisoryLocker is a Locker backed by MySQL named locks, shared by every
// process connected to the same server.
type AdvisoryLocker struct {
	db             *sql.DB
	timeoutSeconds int
}

// NewAdvisoryLocker returns a Locker that takes one GET_LOCK per key.
func NewAdvisoryLocker(db *sql.DB, timeoutSeconds int) *AdvisoryLocker {
	return &AdvisoryLocker{db: db, timeoutSeconds: timeoutSeconds}
}

// WithLock implements Locker.
func (l *AdvisoryLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	return NewAdvisoryLock(l.db, GenerateContactLockName(key)).WithLock(ctx, l.timeoutSeconds, fn)
}
