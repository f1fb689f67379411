package hub

import (
	"sync"

	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/logger"
)

// Match decides whether a connection owned by the given user should receive
// an event.
type Match func(userID string) bool

// MatchAll matches every connection.
func MatchAll() Match {
	return func(string) bool { return true }
}

// MatchUser matches only connections owned by the given user.
func MatchUser(userID string) Match {
	return func(owner string) bool { return owner == userID }
}

// MatchExceptUser matches every connection not owned by the given user.
func MatchExceptUser(userID string) Match {
	return func(owner string) bool { return owner != userID }
}

// Registry is the process-wide set of open connections. It is the only shared
// mutable state of the fan-out subsystem; every mutation goes through
// Register/Unregister and reads go through snapshots, so concurrent stream
// handlers and publishers never corrupt the set.
//
// Registries are plain values handed around by the constructor, not package
// singletons, so tests can run isolated instances.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]Connection
	logger logger.Logger
}

func NewRegistry(log logger.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]Connection),
		logger: log.WithField("component", "registry"),
	}
}

// Register adds a connection to the set. The connection id acts as the
// removal handle. One user may hold many simultaneous connections.
func (r *Registry) Register(conn Connection) {
	r.mu.Lock()
	r.conns[conn.ID()] = conn
	r.mu.Unlock()

	r.logger.Infof("connection %s registered for user %s", conn.ID(), conn.UserID())
}

// Unregister removes and closes the connection with the given id. Removing an
// unknown or already-removed id is a no-op.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if ok {
		delete(r.conns, connID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	if err := conn.Close(); err != nil {
		r.logger.Warnf("closing connection %s: %v", connID, err)
	}
	r.logger.Infof("connection %s unregistered", connID)
}

// ForEachMatching invokes fn for every connection, in a current snapshot,
// whose owner satisfies match. fn runs outside the registry lock, so it may
// call Unregister.
func (r *Registry) ForEachMatching(match Match, fn func(Connection)) {
	r.mu.RLock()
	snapshot := make([]Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		if match(conn.UserID()) {
			snapshot = append(snapshot, conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range snapshot {
		fn(conn)
	}
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll closes every connection and clears the set. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]Connection)
	r.mu.Unlock()

	for id, conn := range conns {
		if err := conn.Close(); err != nil {
			r.logger.Warnf("closing connection %s: %v", id, err)
		}
	}

	if len(conns) > 0 {
		r.logger.Infof("closed %d connections", len(conns))
	}
}
