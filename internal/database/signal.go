package database

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// ShutdownContext returns a context derived from parent that is cancelled
// on SIGTERM or SIGINT. onSignal, when set, runs before cancellation so the
// caller can log which signal arrived. The returned cancel releases the
// signal subscription.
func ShutdownContext(parent context.Context, onSignal func(os.Signal)) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			if onSignal != nil {
				onSignal(sig)
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
