// Package logctx enriches slog records with request, envelope, and
// capability data carried on the context, so call sites log terse event
// names and still emit full correlation detail.
package logctx

import (
	"context"
	"log/slog"
)

// Handler wraps another slog.Handler and appends context-carried groups to
// every record it handles.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("id", rd.RequestID),
			slog.String("method", rd.Method),
			slog.String("remote_addr", rd.RemoteAddr),
			slog.String("path", rd.Path),
		))
	}
	if ed, ok := ctx.Value(envelopeDataKey{}).(*EnvelopeData); ok {
		r.AddAttrs(slog.Group("rpc",
			slog.String("method", ed.Method),
			slog.String("id", ed.ID),
		))
	}
	if cd, ok := ctx.Value(capabilityDataKey{}).(*CapabilityData); ok {
		r.AddAttrs(slog.Group("capability",
			slog.String("kind", cd.Kind),
			slog.String("name", cd.Name),
		))
	}
	if sd, ok := ctx.Value(sessionDataKey{}).(*SessionData); ok {
		r.AddAttrs(slog.Group("sess",
			slog.String("id", sd.SessionID),
			slog.String("state", sd.State),
		))
	}
	return h.Handler.Handle(ctx, r)
}

type requestDataKey struct{}

// RequestData identifies one inbound HTTP exchange.
type RequestData struct {
	RequestID  string
	Method     string
	RemoteAddr string
	Path       string
}

func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

type envelopeDataKey struct{}

// EnvelopeData identifies the protocol envelope being dispatched.
type EnvelopeData struct {
	Method string
	ID     string
}

func WithEnvelopeData(ctx context.Context, data *EnvelopeData) context.Context {
	return context.WithValue(ctx, envelopeDataKey{}, data)
}

type capabilityDataKey struct{}

// CapabilityData identifies the capability a handler is executing.
type CapabilityData struct {
	Kind string
	Name string
}

func WithCapabilityData(ctx context.Context, data *CapabilityData) context.Context {
	return context.WithValue(ctx, capabilityDataKey{}, data)
}

type sessionDataKey struct{}

// SessionData identifies the ephemeral transport session.
type SessionData struct {
	SessionID string
	State     string
}

func WithSessionData(ctx context.Context, data *SessionData) context.Context {
	return context.WithValue(ctx, sessionDataKey{}, data)
}
