package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/go-sql-driver/mysql"
)

var (
	getLockQuery     = regexp.QuoteMeta("SELECT GET_LOCK(?, ?)")
	releaseLockQuery = regexp.QuoteMeta("SELECT RELEASE_LOCK(?)")
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestGenerateContactLockName(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"42", "gocontacts:contact:42"},
		{"new-1", "gocontacts:contact:new-1"},
		{"a b;c", "gocontacts:contact:a_b_c"},
	}

	for _, tt := range tests {
		if got := GenerateContactLockName(tt.key); got != tt.want {
			t.Errorf("GenerateContactLockName(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestAdvisoryLock_AcquireAndRelease(t *testing.T) {
	db, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery(getLockQuery).WithArgs("gocontacts:contact:1", 10).
		WillReturnRows(sqlmock.NewRows([]string{"r"}).AddRow(1))
	mock.ExpectQuery(releaseLockQuery).WithArgs("gocontacts:contact:1").
		WillReturnRows(sqlmock.NewRows([]string{"r"}).AddRow(1))

	lock := NewAdvisoryLock(db, "gocontacts:contact:1")
	acquired, err := lock.AcquireLock(ctx, 10)
	if err != nil || !acquired {
		t.Fatalf("AcquireLock = %v, %v", acquired, err)
	}
	if !lock.IsHeld() {
		t.Error("lock should be held")
	}

	// Re-acquiring a held lock is a no-op
	acquired, err = lock.AcquireLock(ctx, 10)
	if err != nil || !acquired {
		t.Fatalf("second AcquireLock = %v, %v", acquired, err)
	}

	released, err := lock.ReleaseLock(ctx)
	if err != nil || !released {
		t.Fatalf("ReleaseLock = %v, %v", released, err)
	}
	if lock.IsHeld() {
		t.Error("lock should not be held after release")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAdvisoryLock_Timeout(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(getLockQuery).WithArgs("x", 0).
		WillReturnRows(sqlmock.NewRows([]string{"r"}).AddRow(0))

	lock := NewAdvisoryLock(db, "x")
	acquired, err := lock.AcquireLock(context.Background(), TimeoutImmediate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acquired || lock.IsHeld() {
		t.Error("lock should not be acquired on timeout")
	}
}

func TestAdvisoryLock_NullResult(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(getLockQuery).WithArgs("x", 1).
		WillReturnRows(sqlmock.NewRows([]string{"r"}).AddRow(nil))

	lock := NewAdvisoryLock(db, "x")
	if _, err := lock.AcquireLock(context.Background(), 1); err == nil {
		t.Error("expected error for NULL result")
	}
}

func TestAdvisoryLock_ReleaseNotHeld(t *testing.T) {
	db, _ := newMock(t)

	released, err := NewAdvisoryLock(db, "x").ReleaseLock(context.Background())
	if err != nil || released {
		t.Errorf("ReleaseLock on unheld lock = %v, %v", released, err)
	}
}

func TestAdvisoryLocker_WithLock(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(getLockQuery).WithArgs("gocontacts:contact:9", 5).
		WillReturnRows(sqlmock.NewRows([]string{"r"}).AddRow(1))
	mock.ExpectQuery(releaseLockQuery).WithArgs("gocontacts:contact:9").
		WillReturnRows(sqlmock.NewRows([]string{"r"}).AddRow(1))

	var locker Locker = NewAdvisoryLocker(db, 5)
	want := errors.New("apply failed")
	err := locker.WithLock(context.Background(), "9", func() error { return want })
	if !errors.Is(err, want) {
		t.Errorf("expected fn error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAdvisoryLocker_HeldElsewhere(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(getLockQuery).WillReturnRows(sqlmock.NewRows([]string{"r"}).AddRow(0))

	called := false
	err := NewAdvisoryLocker(db, 0).WithLock(context.Background(), "9", func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout, got %v", err)
	}
	if called {
		t.Error("fn must not run without the lock")
	}
}

// ============================================================================
// Live MySQL
// ============================================================================

func getTestDSN() string {
	host := getEnv("TEST_MYSQL_HOST", "127.0.0.1")
	port := getEnv("TEST_MYSQL_PORT", "3305")
	user := getEnv("TEST_MYSQL_USER", "root")
	pass := getEnv("TEST_MYSQL_PASS", "qazokm")

	return fmt.Sprintf("%s:%s@tcp(%s:%s)/?parseTime=true", user, pass, host, port)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func connectToTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("mysql", getTestDSN())
	if err != nil {
		t.Fatalf("Failed to open database connection: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		t.Skipf("MySQL test server not available: %v", err)
	}

	return db
}

func TestAdvisoryLocker_Live_ExcludesSecondSession(t *testing.T) {
	db := connectToTestDB(t)
	defer db.Close()

	key := fmt.Sprintf("t%d", time.Now().UnixNano()%1000000)
	ctx := context.Background()
	locker := NewAdvisoryLocker(db, TimeoutImmediate)

	err := locker.WithLock(ctx, key, func() error {
		// A second session must not get the same lock
		inner := NewAdvisoryLock(db, GenerateContactLockName(key))
		acquired, err := inner.AcquireLock(ctx, TimeoutImmediate)
		if err != nil {
			return err
		}
		if acquired {
			t.Error("second session acquired a held lock")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock failed: %v", err)
	}

	// Released afterwards
	again := NewAdvisoryLock(db, GenerateContactLockName(key))
	acquired, err := again.AcquireLock(ctx, TimeoutImmediate)
	if err != nil || !acquired {
		t.Fatalf("lock not released: %v, %v", acquired, err)
	}
	_, _ = again.ReleaseLock(ctx)
}
