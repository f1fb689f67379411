package hub

import (
	"context"

	"github.com/vijay324/expense-tracker-sub000/internal/event"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/logger"
)

type publishOptions struct {
	directedTo  string
	excludeUser string
}

// PublishOption narrows the set of connections a publish reaches.
type PublishOption func(*publishOptions)

// DirectedTo delivers only to connections owned by userID.
func DirectedTo(userID string) PublishOption {
	return func(o *publishOptions) { o.directedTo = userID }
}

// ExcludeUser never delivers to connections owned by userID, even when it
// holds several.
func ExcludeUser(userID string) PublishOption {
	return func(o *publishOptions) { o.excludeUser = userID }
}

// FanoutPublisher turns a domain event into wire frames and hands them to
// every matching registered connection. Called by mutation handlers after the
// data-store write committed; a failed write to one sink removes that
// connection but never affects the others or the caller.
type FanoutPublisher struct {
	registry *Registry
	logger   logger.Logger
}

var _ Publisher = (*FanoutPublisher)(nil)

func NewFanoutPublisher(registry *Registry, log logger.Logger) *FanoutPublisher {
	return &FanoutPublisher{
		registry: registry,
		logger:   log.WithField("component", "publisher"),
	}
}

func (p *FanoutPublisher) Publish(ctx context.Context, t event.Type, payload any, opts ...PublishOption) {
	var o publishOptions
	for _, opt := range opts {
		opt(&o)
	}

	ev := event.Event{Type: t, Data: payload}

	p.registry.ForEachMatching(o.match(), func(conn Connection) {
		if err := conn.Send(ctx, ev); err != nil {
			p.logger.Warnf("dropping connection %s after failed write: %v", conn.ID(), err)
			p.registry.Unregister(conn.ID())
		}
	})
}

func (o publishOptions) match() Match {
	switch {
	case o.directedTo != "" && o.excludeUser != "":
		directed, excluded := o.directedTo, o.excludeUser
		return func(owner string) bool { return owner == directed && owner != excluded }
	case o.directedTo != "":
		return MatchUser(o.directedTo)
	case o.excludeUser != "":
		return MatchExceptUser(o.excludeUser)
	default:
		return MatchAll()
	}
}
