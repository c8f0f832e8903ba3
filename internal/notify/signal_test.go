package notify

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestResumeOnSignal(t *testing.T) {
	if os.Getenv("CI") == "true" {
		t.Skip("Skipping signal test in CI environment")
	}

	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ResumeOnSignal(ctx, h, syscall.SIGUSR1)

	time.Sleep(10 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("Failed to send signal: %v", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	s, err := h.Next(waitCtx)
	if err != nil {
		t.Fatalf("No signal delivered: %v", err)
	}
	if s != Resume {
		t.Errorf("Expected Resume, got %v", s)
	}
}

func TestResumeOnSignal_StopsWithContext(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	ResumeOnSignal(ctx, h, syscall.SIGUSR2)
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer waitCancel()
	if _, err := h.Next(waitCtx); err == nil {
		t.Error("Expected no signal without a delivered os signal")
	}
}
