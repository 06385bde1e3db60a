package wsserver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/cheese-relay/internal/obslog"
	"github.com/park285/cheese-relay/internal/presence"
)

const writeTimeout = 5 * time.Second

// conn is one accepted socket with a buffered outbound queue drained by writePump.
type conn struct {
	id   presence.ConnID
	ws   *websocket.Conn
	send chan []byte

	readTimeout  time.Duration
	pingInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce   sync.Once
	closeCode   websocket.StatusCode
	closeReason string
}

func newConn(parent context.Context, id presence.ConnID, ws *websocket.Conn, opts Options) *conn {
	ctx, cancel := context.WithCancel(parent)
	return &conn{
		id:           id,
		ws:           ws,
		send:         make(chan []byte, opts.SendBuffer),
		readTimeout:  opts.ReadTimeout,
		pingInterval: opts.PingInterval,
		ctx:          ctx,
		cancel:       cancel,
		closeCode:    websocket.StatusNormalClosure,
	}
}

// enqueue never blocks. It reports false when the queue is full or the conn is closing.
func (c *conn) enqueue(frame []byte) bool {
	if c.ctx.Err() != nil {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// shutdown records the close status and stops both pumps. Only the first call counts.
func (c *conn) shutdown(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		c.cancel()
	})
}

// readPump hands every data frame to deliver until the socket fails or the conn shuts down.
func (c *conn) readPump(deliver func(ctx context.Context, raw []byte) error) error {
	for {
		ctx, cancel := c.readContext()
		_, raw, err := c.ws.Read(ctx)
		cancel()
		if err != nil {
			return err
		}
		if err := deliver(c.ctx, raw); err != nil {
			return err
		}
	}
}

func (c *conn) readContext() (context.Context, context.CancelFunc) {
	if c.readTimeout > 0 {
		return context.WithTimeout(c.ctx, c.readTimeout)
	}
	return context.WithCancel(c.ctx)
}

func (c *conn) writePump() {
	defer func() {
		_ = c.ws.Close(c.closeCode, c.closeReason)
	}()
	for {
		select {
		case <-c.ctx.Done():
			return
		case frame := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := c.ws.Write(ctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				obslog.L().Debug("relay_ws_write_error", zap.String("conn_id", string(c.id)), zap.Error(err))
				c.shutdown(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// pingLoop closes the conn after two consecutive failed pings.
func (c *conn) pingLoop() {
	if c.pingInterval <= 0 {
		return
	}
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(c.ctx, 3*time.Second)
			err := c.ws.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				obslog.L().Info("relay_ws_ping_timeout", zap.String("conn_id", string(c.id)))
				c.shutdown(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}
