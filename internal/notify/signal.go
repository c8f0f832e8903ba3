package notify

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// ResumeOnSignal publishes Resume each time the process receives one of
// sigs (SIGCONT when none are given) until ctx is done.
func ResumeOnSignal(ctx context.Context, p Publisher, sigs ...os.Signal) {
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGCONT}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, sigs...)

	go func() {
		defer signal.Stop(sigChan)
		for {
			select {
			case <-sigChan:
				p.Publish(Resume)
			case <-ctx.Done():
				return
			}
		}
	}()
}
