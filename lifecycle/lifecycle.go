// Package lifecycle coordinates server shutdown. A Coordinator tracks the
// in-flight sessions of a running server so that shutdown can drain them
// within a bounded grace period before force-closing what remains.
package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// Phase is the coordinator's lifecycle phase. Transitions are one-way:
// Running to Draining to Stopped.
type Phase int32

const (
	PhaseRunning Phase = iota
	PhaseDraining
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "running"
	case PhaseDraining:
		return "draining"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrDraining rejects new work once shutdown has begun.
var ErrDraining = errors.New("server is draining")

// Coordinator admits and tracks in-flight work. The zero value is not usable;
// construct with NewCoordinator.
type Coordinator struct {
	log *slog.Logger

	mu      sync.Mutex
	phase   Phase
	nextID  uint64
	active  map[uint64]io.Closer
	drained chan struct{}
}

// NewCoordinator returns a running coordinator.
func NewCoordinator(log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		log:     log,
		active:  map[uint64]io.Closer{},
		drained: make(chan struct{}),
	}
}

// Phase reports the current lifecycle phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Register admits a unit of in-flight work. The returned release function
// must be called exactly once when the work finishes; it is safe to call
// after shutdown has started. Registration fails with ErrDraining once the
// coordinator has left the running phase.
func (c *Coordinator) Register(closer io.Closer) (release func(), err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseRunning {
		return nil, ErrDraining
	}
	id := c.nextID
	c.nextID++
	c.active[id] = closer

	var once sync.Once
	return func() {
		once.Do(func() { c.unregister(id) })
	}, nil
}

func (c *Coordinator) unregister(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, id)
	if c.phase == PhaseDraining && len(c.active) == 0 {
		close(c.drained)
	}
}

// InFlight reports the number of registered units of work.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// Shutdown moves the coordinator to draining, waits for in-flight work to
// finish or the context to expire, then force-closes whatever remains and
// moves to stopped. It is safe to call once; subsequent calls return nil
// immediately.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhaseRunning {
		c.mu.Unlock()
		return nil
	}
	c.phase = PhaseDraining
	remaining := len(c.active)
	if remaining == 0 {
		close(c.drained)
	}
	c.mu.Unlock()

	c.log.Info("lifecycle.drain.start", slog.Int("in_flight", remaining))

	var drainErr error
	select {
	case <-c.drained:
	case <-ctx.Done():
		drainErr = ctx.Err()
	}

	c.mu.Lock()
	leftover := make([]io.Closer, 0, len(c.active))
	for _, closer := range c.active {
		leftover = append(leftover, closer)
	}
	c.active = map[uint64]io.Closer{}
	c.phase = PhaseStopped
	c.mu.Unlock()

	for _, closer := range leftover {
		if closer == nil {
			continue
		}
		if err := closer.Close(); err != nil {
			c.log.Warn("lifecycle.force_close.error", slog.String("err", err.Error()))
		}
	}

	c.log.Info("lifecycle.drain.done",
		slog.Int("force_closed", len(leftover)),
		slog.Bool("graceful", drainErr == nil),
	)
	return drainErr
}
