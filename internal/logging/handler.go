package logging

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	SessionIDKey  contextKey = "session_id"
	MSISDNKey     contextKey = "msisdn"
	LinkidKey     contextKey = "linkid"
	MessageIDKey  contextKey = "msg_id"
	CorrelatorKey contextKey = "correlator"
	OperationKey  contextKey = "operation"
)

// ContextHandler wraps another slog.Handler and adds attributes from context.
type ContextHandler struct {
	slog.Handler
}

// NewContextHandler creates a handler that extracts values from context.
func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{Handler: h}
}

// Handle adds context attributes before calling the wrapped handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok {
		r.AddAttrs(slog.String("session_id", sessionID))
	}
	if msisdn, ok := ctx.Value(MSISDNKey).(string); ok {
		r.AddAttrs(slog.String("msisdn", msisdn))
	}
	if linkid, ok := ctx.Value(LinkidKey).(string); ok && linkid != "" {
		r.AddAttrs(slog.String("linkid", linkid))
	}
	if msgID, ok := ctx.Value(MessageIDKey).(string); ok {
		r.AddAttrs(slog.String("msg_id", msgID))
	}
	if correlator, ok := ctx.Value(CorrelatorKey).(string); ok {
		r.AddAttrs(slog.String("correlator", correlator))
	}
	if op, ok := ctx.Value(OperationKey).(string); ok {
		r.AddAttrs(slog.String("operation", op))
	}
	return h.Handler.Handle(ctx, r)
}

// Helper functions to add values to context
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

func ContextWithMSISDN(ctx context.Context, msisdn string) context.Context {
	return context.WithValue(ctx, MSISDNKey, msisdn)
}

func ContextWithLinkid(ctx context.Context, linkid string) context.Context {
	return context.WithValue(ctx, LinkidKey, linkid)
}

func ContextWithMessageID(ctx context.Context, msgID string) context.Context {
	return context.WithValue(ctx, MessageIDKey, msgID)
}

func ContextWithCorrelator(ctx context.Context, correlator string) context.Context {
	return context.WithValue(ctx, CorrelatorKey, correlator)
}

func ContextWithOperation(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, OperationKey, op)
}
