package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dbsmedya/gocontacts/internal/builder"
	"github.com/dbsmedya/gocontacts/internal/config"
	"github.com/dbsmedya/gocontacts/internal/database"
	"github.com/dbsmedya/gocontacts/internal/detector"
	"github.com/dbsmedya/gocontacts/internal/dispatch"
	"github.com/dbsmedya/gocontacts/internal/finder"
	"github.com/dbsmedya/gocontacts/internal/groups"
	"github.com/dbsmedya/gocontacts/internal/lock"
	"github.com/dbsmedya/gocontacts/internal/logger"
	"github.com/dbsmedya/gocontacts/internal/notify"
	"github.com/dbsmedya/gocontacts/internal/store"
)

// writeNotifier is implemented by stores that report committed writes.
type writeNotifier interface {
	SetOnWrite(fn func())
}

// app holds the components shared by the commands.
type app struct {
	cfg        *config.Config
	log        *logger.Logger
	db         *database.Manager
	store      store.RecordStore
	resolver   *groups.Resolver
	builder    *builder.Builder
	finder     *finder.Finder
	dispatcher *dispatch.Dispatcher
}

// loadConfig reads the config file, applies CLI overrides and validates the
// result. A missing default config file yields the built-in defaults.
func loadConfig() (*config.Config, error) {
	configFile := GetConfigFile()

	var cfg *config.Config
	if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) && configFile == defaultConfigFile {
		cfg = config.DefaultConfig()
	} else {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat, overrides.Driver, overrides.StorePath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp loads configuration and opens the store.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{cfg: cfg, log: log, db: database.NewManager(&cfg.Store)}
	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.resolver = groups.NewResolver(a.store, log)
	a.builder = builder.New(a.store, a.resolver, log, builder.WithLocker(a.locker()))
	a.finder = finder.New(a.store, a.resolver, log)
	a.dispatcher = dispatch.New(a.builder, a.finder, a.store, log)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	account := store.Account{Name: a.cfg.Store.DefaultAccount.Name, Type: a.cfg.Store.DefaultAccount.Type}

	if a.cfg.Store.Driver == database.DriverMemory {
		a.store = store.NewMemoryStore(account)
		return nil
	}

	if err := a.db.Connect(ctx); err != nil {
		return err
	}
	dialect, err := a.db.Dialect()
	if err != nil {
		return err
	}
	s, err := store.NewSQLStore(a.db.DB, dialect, account, a.log)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	if a.cfg.Store.CreateSchema {
		if err := s.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	a.store = s
	return nil
}

// locker returns the per-contact lock selected by configuration.
func (a *app) locker() lock.Locker {
	if a.cfg.Locking.Mode == "advisory" && a.db.DB != nil {
		return lock.NewAdvisoryLocker(a.db.DB, a.cfg.Locking.TimeoutSeconds)
	}
	return lock.NewKeyedMutex()
}

// startDetector wires the notification sources to a hub and runs the
// detector in the background. The returned channel yields Run's result.
func (a *app) startDetector(ctx context.Context, listener detector.Listener) (*detector.Detector, <-chan error, error) {
	hub := notify.NewHub()
	dcfg := a.cfg.Detector

	if wn, ok := a.store.(writeNotifier); ok {
		wn.SetOnWrite(func() { hub.Publish(notify.Change) })
	}

	if dcfg.WatchFile && a.cfg.Store.Driver == database.DriverSQLite {
		fw, err := notify.NewFileWatcher(a.cfg.Store.Path, time.Duration(dcfg.DebounceMillis)*time.Millisecond, hub, a.log)
		if err != nil {
			return nil, nil, err
		}
		go func() {
			if err := fw.Run(ctx); err != nil {
				a.log.Warnf("File watcher stopped: %v", err)
			}
		}()
	}

	notify.Tick(ctx, hub, time.Duration(dcfg.PollIntervalSeconds)*time.Second)
	if dcfg.ResumeOnSIGCONT {
		notify.ResumeOnSignal(ctx, hub)
	}

	d := detector.New(a.store, listener, a.log)
	if err := d.Start(ctx); err != nil {
		return nil, nil, err
	}

	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx, hub)
		hub.Close()
	}()
	return d, done, nil
}

// Close releases the store and flushes the logger.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warnf("Failed to close store: %v", err)
		}
	} else if err := a.db.Close(); err != nil {
		a.log.Warnf("Failed to close database: %v", err)
	}
	_ = a.log.Sync()
}
