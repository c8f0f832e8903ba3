package notify

import (
	"context"
	"time"
)

// Tick publishes Change every interval until ctx is done. Stores with no
// file to watch rely on it. A non-positive interval does nothing.
func Tick(ctx context.Context, p Publisher, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				p.Publish(Change)
			case <-ctx.Done():
				return
			}
		}
	}()
}
