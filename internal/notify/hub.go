// Package notify carries payload-less change edges from their sources to
// the change detector.
package notify

import (
	"context"
	"sync"
)

// Signal is an edge delivered to the detector.
type Signal int

const (
	// Change means something in the store may have changed.
	Change Signal = iota + 1
	// Resume means the process resumed after a pause and a full
	// comparison is due.
	Resume
)

func (s Signal) String() string {
	switch s {
	case Change:
		return "change"
	case Resume:
		return "resume"
	default:
		return "unknown"
	}
}

// Publisher accepts signals.
type Publisher interface {
	Publish(Signal)
}

// Hub merges signals from any number of publishers. Signals arriving while
// one is pending coalesce: repeated Change edges collapse into one and a
// pending Resume absorbs any Change.
type Hub struct {
	mu      sync.Mutex
	pending Signal
	ready   chan struct{}
	done    chan struct{}
	closed  bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{ready: make(chan struct{}, 1), done: make(chan struct{})}
}

// Publish records a signal. It never blocks.
func (h *Hub) Publish(s Signal) {
	if s != Change && s != Resume {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if s > h.pending {
		h.pending = s
	}
	select {
	case h.ready <- struct{}{}:
	default:
	}
}

// Next blocks until a signal is pending, the hub is closed or ctx is done.
func (h *Hub) Next(ctx context.Context) (Signal, error) {
	for {
		h.mu.Lock()
		if s := h.pending; s != 0 {
			h.pending = 0
			h.mu.Unlock()
			return s, nil
		}
		closed := h.closed
		h.mu.Unlock()
		if closed {
			return 0, ErrClosed
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-h.ready:
		case <-h.done:
		}
	}
}

// Close wakes any waiter and rejects further signals.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.done)
}
