package hub

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/vijay324/expense-tracker-sub000/internal/event"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/logger"
)

// SSEConnection is a Connection over a long-lived text/event-stream response.
// Writes are serialized with a mutex because the stream handler's keepalive
// ticker and concurrent publishes share the same ResponseWriter.
type SSEConnection struct {
	id     string
	userID string

	writer  http.ResponseWriter
	flusher http.Flusher
	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex

	logger logger.Logger
}

var _ Connection = (*SSEConnection)(nil)

// NewSSEConnection wraps an open response stream. The writer must support
// flushing; callers check that before registering.
func NewSSEConnection(
	ctx context.Context,
	id, userID string,
	w http.ResponseWriter,
	flusher http.Flusher,
	log logger.Logger,
) *SSEConnection {
	cctx, cancel := context.WithCancel(ctx)
	return &SSEConnection{
		id:      id,
		userID:  userID,
		writer:  w,
		flusher: flusher,
		ctx:     cctx,
		cancel:  cancel,
		logger:  log.WithField("connection_id", id),
	}
}

func (c *SSEConnection) ID() string     { return c.id }
func (c *SSEConnection) UserID() string { return c.userID }

// Send writes one framed event and flushes it out.
func (c *SSEConnection) Send(ctx context.Context, ev event.Event) error {
	frame, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return c.write(frame)
}

// SendKeepAlive writes the comment frame that keeps proxies from timing out
// the stream.
func (c *SSEConnection) SendKeepAlive() error {
	return c.write(event.KeepAliveFrame)
}

func (c *SSEConnection) write(frame []byte) error {
	if c.IsClosed() {
		return fmt.Errorf("connection is closed")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.writer.Write(frame); err != nil {
		c.Close()
		return fmt.Errorf("write frame: %w", err)
	}
	c.flusher.Flush()
	return nil
}

func (c *SSEConnection) Close() error {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()

	c.logger.Debug("sse connection closed")
	return nil
}

func (c *SSEConnection) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

func (c *SSEConnection) Context() context.Context {
	return c.ctx
}
