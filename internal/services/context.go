package services

import "context"

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	turnStateKey contextKey = "turn_state"
)

// WithSessionID annotates context with the session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the session identifier if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithTurnState annotates context with the current turn state name.
func WithTurnState(ctx context.Context, state string) context.Context {
	if state == "" {
		return ctx
	}
	return context.WithValue(ctx, turnStateKey, state)
}

// TurnStateFromContext returns the turn state name if present.
func TurnStateFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(turnStateKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
