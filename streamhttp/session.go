package streamhttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/arunksingh16/mcp/internal/jsonrpc"
)

// SessionState tracks a transport session through its lifecycle. Transitions
// are one-way: created to connected to closed.
type SessionState int32

const (
	SessionCreated SessionState = iota
	SessionConnected
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionCreated:
		return "created"
	case SessionConnected:
		return "connected"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrSessionClosed rejects writes after the session has been closed.
var ErrSessionClosed = errors.New("session closed")

// lockedWriteFlusher wraps an io.Writer + http.Flusher with a mutex and an
// optional context. It serializes concurrent writes/flushes and avoids
// writing after ctx is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

// Session is the per-request transport session. It owns the response stream
// for exactly one POST exchange and serializes all writes to it. The session
// ID exists for log correlation only; it is never exposed to the client.
type Session struct {
	id string

	mu      sync.Mutex
	state   SessionState
	sse     bool
	started bool
	wf      *lockedWriteFlusher
	header  http.Header
}

// NewSession returns a session in the created state.
func NewSession() *Session {
	return &Session{id: uuid.NewString()}
}

// newRequestCorrelationID mints the per-request id attached to log records.
func newRequestCorrelationID() string {
	return uuid.NewString()
}

// ID returns the session's correlation identifier.
func (s *Session) ID() string { return s.id }

// State reports the session's current state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Started reports whether any response bytes have been committed.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Bind attaches the session to a response writer, moving it to connected.
// sse selects the response framing: Server-Sent Events when true, a single
// JSON body otherwise. The writer must support http.Flusher.
func (s *Session) Bind(w http.ResponseWriter, r *http.Request, sse bool) error {
	f, ok := w.(http.Flusher)
	if !ok {
		return errors.New("response writer does not support flushing")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case SessionConnected:
		return errors.New("session already connected")
	case SessionClosed:
		return ErrSessionClosed
	}
	s.state = SessionConnected
	s.sse = sse
	s.wf = &lockedWriteFlusher{Writer: w, Flusher: f, ctx: r.Context()}
	s.header = w.Header()
	return nil
}

// WriteEnvelope commits the response headers on first use and writes one
// JSON-RPC envelope in the negotiated framing.
func (s *Session) WriteEnvelope(e *jsonrpc.Envelope) error {
	payload, err := e.Encode()
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}
	return s.writePayload(payload)
}

func (s *Session) writePayload(payload []byte) error {
	s.mu.Lock()
	if s.state != SessionConnected {
		defer s.mu.Unlock()
		if s.state == SessionClosed {
			return ErrSessionClosed
		}
		return errors.New("session not connected")
	}
	if !s.started {
		if s.sse {
			s.header.Set("Content-Type", "text/event-stream")
			s.header.Set("Cache-Control", "no-cache")
			s.header.Set("Connection", "keep-alive")
		} else {
			s.header.Set("Content-Type", "application/json")
		}
		s.started = true
	}
	sse := s.sse
	wf := s.wf
	s.mu.Unlock()

	if sse {
		return writeSSEEvent(wf, payload)
	}
	if _, err := wf.Write(payload); err != nil {
		return err
	}
	wf.Flush()
	return nil
}

// Close moves the session to closed. It is idempotent and safe to call from
// any state; further writes fail with ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SessionClosed
	s.wf = nil
	return nil
}

// writeSSEEvent writes one Server-Sent Event carrying the payload as its
// data field, then flushes the frame. The frame goes out in a single write so
// concurrent frames cannot interleave.
func writeSSEEvent(wf *lockedWriteFlusher, payload []byte) error {
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, "\n\n"...)
	if _, err := wf.Write(frame); err != nil {
		return fmt.Errorf("failed to write SSE frame: %w", err)
	}
	wf.Flush()
	return nil
}
