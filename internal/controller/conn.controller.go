package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/syncroom/internal/repository/connection"
)

type closeFrame struct {
	code   int
	reason string
}

// wsConn serializes all writes to a websocket through a buffered channel
// drained by writePump. Send never blocks.
type wsConn struct {
	ws           *websocket.Conn
	send         chan []byte
	closeReq     chan closeFrame
	done         chan struct{}
	once         sync.Once
	closeOnce    sync.Once
	writeTimeout time.Duration
	pingPeriod   time.Duration
}

func newWSConn(ws *websocket.Conn, bufferSize int, writeTimeout, pongWait time.Duration) *wsConn {
	return &wsConn{
		ws:           ws,
		send:         make(chan []byte, bufferSize),
		closeReq:     make(chan closeFrame, 1),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		pingPeriod:   pongWait * 9 / 10,
	}
}

// Send marshals msg right away so later mutations of shared state cannot
// leak into a frame that is still queued.
func (c *wsConn) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	select {
	case <-c.done:
		return connection.ErrClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.Close(websocket.ClosePolicyViolation, "send buffer full")
		return connection.ErrSendBufferFull
	}
}

// Close asks the write pump to flush queued frames, send a close frame and
// shut the socket down.
func (c *wsConn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.closeReq <- closeFrame{code: code, reason: reason}
	})

	return nil
}

func (c *wsConn) shutdown() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *wsConn) writePump(ctx context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				logger.DebugContext(ctx, "failed to write message", "error", err)
				return
			}
		case frame := <-c.closeReq:
			c.flush(ctx, logger)
			msg := websocket.FormatCloseMessage(frame.code, frame.reason)
			if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout)); err != nil {
				logger.DebugContext(ctx, "failed to write close frame", "error", err)
			}
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				logger.DebugContext(ctx, "failed to write ping", "error", err)
				return
			}
		}
	}
}

func (c *wsConn) flush(ctx context.Context, logger *slog.Logger) {
	for {
		select {
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				logger.DebugContext(ctx, "failed to flush message", "error", err)
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) write(messageType int, data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}

	return c.ws.WriteMessage(messageType, data)
}
