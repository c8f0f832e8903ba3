package cmd

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/gocontacts/internal/database"
	"github.com/dbsmedya/gocontacts/internal/events"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve contact commands over stdin/stdout",
	Long: `Serve reads one JSON command per line from stdin and writes one JSON
reply per line to stdout. Change events are written to stdout as they are
detected.

Commands:
  {"cmd":"save","contact":{...},"_promise_id":"1"}
  {"cmd":"find","options":{"id":"7"},"_promise_id":"2"}
  {"cmd":"remove","contactId":"7","_promise_id":"3"}

Example:
  gocontacts serve --config gocontacts.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// syncWriter serializes writes from replies and change events.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := database.ShutdownContext(context.Background(), nil)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := &syncWriter{w: cmd.OutOrStdout()}

	if a.cfg.Metrics.Enabled {
		srv := startMetricsServer(a)
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var detectorDone <-chan error
	if a.cfg.Detector.Enabled {
		_, done, err := a.startDetector(ctx, events.NewJSONWriter(out, a.log))
		if err != nil {
			return err
		}
		detectorDone = done
	}

	a.log.Infof("Serving contact commands (driver=%s)", a.cfg.Store.Driver)
	served := make(chan error, 1)
	go func() { served <- a.dispatcher.Serve(ctx, cmd.InOrStdin(), out) }()

	var serveErr error
	select {
	case serveErr = <-served:
	case <-ctx.Done():
		a.log.Info("Received shutdown signal")
	}

	cancel()
	if detectorDone != nil {
		if err := <-detectorDone; err != nil {
			a.log.Warnf("Change detector stopped with error: %v", err)
		}
	}
	a.log.Info("Shutting down")
	return serveErr
}

func startMetricsServer(a *app) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: a.cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.log.Infof("Metrics listening on %s", a.cfg.Metrics.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Errorf("Metrics server failed: %v", err)
		}
	}()
	return srv
}

// stdinIsPipe reports whether stdin is redirected rather than a terminal.
func stdinIsPipe() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice == 0
}
