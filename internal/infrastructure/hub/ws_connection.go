package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vijay324/expense-tracker-sub000/internal/event"
	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/logger"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	// Ping period must stay under the pong timeout.
	wsPingPeriod = 54 * time.Second

	wsSendBuffer = 256
)

// WebSocketConnection is a Connection over an upgraded WebSocket. Events are
// delivered as JSON text frames; a write pump owns the socket so Send never
// races the ping ticker.
type WebSocketConnection struct {
	id     string
	userID string
	conn   *websocket.Conn

	send chan event.Event

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex

	logger logger.Logger
}

var _ Connection = (*WebSocketConnection)(nil)

func NewWebSocketConnection(id, userID string, conn *websocket.Conn, log logger.Logger) *WebSocketConnection {
	ctx, cancel := context.WithCancel(context.Background())

	c := &WebSocketConnection{
		id:     id,
		userID: userID,
		conn:   conn,
		send:   make(chan event.Event, wsSendBuffer),
		ctx:    ctx,
		cancel: cancel,
		logger: log.WithField("connection_id", id),
	}

	conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	go c.writePump()
	go c.readPump()

	return c
}

func (c *WebSocketConnection) ID() string     { return c.id }
func (c *WebSocketConnection) UserID() string { return c.userID }

func (c *WebSocketConnection) Send(ctx context.Context, ev event.Event) error {
	if c.IsClosed() {
		return fmt.Errorf("connection is closed")
	}

	select {
	case c.send <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return fmt.Errorf("connection is closed")
	}
}

func (c *WebSocketConnection) Close() error {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()

	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	c.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	err := c.conn.Close()

	c.logger.Debug("websocket connection closed")
	return err
}

func (c *WebSocketConnection) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

func (c *WebSocketConnection) Context() context.Context {
	return c.ctx
}

func (c *WebSocketConnection) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.logger.Warnf("websocket write failed: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warnf("websocket ping failed: %v", err)
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// readPump drains the socket only to observe pongs and disconnects; clients
// are not expected to send anything.
func (c *WebSocketConnection) readPump() {
	defer c.Close()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warnf("websocket read failed: %v", err)
			}
			return
		}
	}
}
