package database

import (
	"context"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestShutdownContext_NotCancelledWithoutSignal(t *testing.T) {
	ctx, cancel := ShutdownContext(context.Background(), nil)
	defer cancel()

	time.Sleep(20 * time.Millisecond)

	select {
	case <-ctx.Done():
		t.Error("Context should not be cancelled without signal")
	default:
	}
}

func TestShutdownContext_ParentCancel(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := ShutdownContext(parent, nil)
	defer cancel()

	cancelParent()

	select {
	case <-ctx.Done():
	case <-time.After(100 * time.Millisecond):
		t.Error("Context was not cancelled with its parent")
	}
}

func TestShutdownContext_SignalCallback(t *testing.T) {
	if os.Getenv("CI") == "true" {
		t.Skip("Skipping signal test in CI environment")
	}

	var mu sync.Mutex
	var received os.Signal
	ctx, cancel := ShutdownContext(context.Background(), func(sig os.Signal) {
		mu.Lock()
		received = sig
		mu.Unlock()
	})
	defer cancel()

	time.Sleep(10 * time.Millisecond)
	syscall.Kill(syscall.Getpid(), syscall.SIGINT)

	select {
	case <-ctx.Done():
		mu.Lock()
		defer mu.Unlock()
		if received != syscall.SIGINT {
			t.Errorf("Expected signal SIGINT, got %v", received)
		}
	case <-time.After(200 * time.Millisecond):
		t.Error("Context was not cancelled after receiving signal")
	}
}
