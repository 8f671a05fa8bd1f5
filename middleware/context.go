package middleware

import (
	"context"

	"github.com/digitechhorizons/portal/session"
)

// Context key type to avoid collisions
type contextKey string

// SnapshotKey is the context key for the session snapshot a guard admitted
const SnapshotKey contextKey = "session_snapshot"

// GetSnapshotFromContext returns the snapshot stored by a guard, or nil
func GetSnapshotFromContext(ctx context.Context) *session.Snapshot {
	if val := ctx.Value(SnapshotKey); val != nil {
		if snap, ok := val.(*session.Snapshot); ok {
			return snap
		}
	}
	return nil
}

// WithSnapshot adds a session snapshot to the context
func WithSnapshot(ctx context.Context, snap *session.Snapshot) context.Context {
	return context.WithValue(ctx, SnapshotKey, snap)
}
