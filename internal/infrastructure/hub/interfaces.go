package hub

import (
	"context"

	"github.com/vijay324/expense-tracker-sub000/internal/event"
)

// Connection is one live server-push stream (SSE, WebSocket, ...) owned by an
// authenticated user. A connection belongs to exactly one user for its whole
// lifetime.
type Connection interface {
	ID() string
	UserID() string
	Send(ctx context.Context, ev event.Event) error
	Close() error
	IsClosed() bool
	Context() context.Context
}

// Publisher is the narrow seam mutation handlers use for fan-out. Publish is
// fire-and-forget: it never returns an error and never blocks the mutation
// path on delivery.
type Publisher interface {
	Publish(ctx context.Context, t event.Type, payload any, opts ...PublishOption)
}
