package lifecycle

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"
)

type closeFunc func() error

func (f closeFunc) Close() error { return f() }

func noopCloser() io.Closer { return closeFunc(func() error { return nil }) }

func TestRegisterAndRelease(t *testing.T) {
	c := NewCoordinator(nil)
	release, err := c.Register(noopCloser())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := c.InFlight(); got != 1 {
		t.Fatalf("in-flight = %d, want 1", got)
	}
	release()
	release() // release is idempotent
	if got := c.InFlight(); got != 0 {
		t.Fatalf("in-flight after release = %d, want 0", got)
	}
}

func TestRegisterRejectedWhileDraining(t *testing.T) {
	c := NewCoordinator(nil)
	release, err := c.Register(noopCloser())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- c.Shutdown(ctx)
	}()

	// Wait for the coordinator to leave the running phase.
	deadline := time.After(time.Second)
	for c.Phase() == PhaseRunning {
		select {
		case <-deadline:
			t.Fatal("coordinator never started draining")
		case <-time.After(time.Millisecond):
		}
	}

	if _, err := c.Register(noopCloser()); !errors.Is(err, ErrDraining) {
		t.Fatalf("expected ErrDraining, got %v", err)
	}

	release()
	if err := <-done; err != nil {
		t.Fatalf("shutdown after drain: %v", err)
	}
	if c.Phase() != PhaseStopped {
		t.Fatalf("phase = %v, want stopped", c.Phase())
	}
}

func TestShutdownForceClosesOnTimeout(t *testing.T) {
	c := NewCoordinator(nil)
	var closed atomic.Int32
	_, err := c.Register(closeFunc(func() error {
		closed.Add(1)
		return nil
	}))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if closed.Load() != 1 {
		t.Fatalf("leftover session was not force-closed")
	}
	if c.InFlight() != 0 {
		t.Fatalf("in-flight after shutdown = %d, want 0", c.InFlight())
	}
}

func TestShutdownWithNoWorkIsImmediate(t *testing.T) {
	c := NewCoordinator(nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	// A second call is a no-op.
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("repeated shutdown: %v", err)
	}
}
