// Package signal carries connection sessions over websockets.
package signal

import (
	"sync"
	"time"

	"github.com/dkeye/Duet/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
	// AllowedOrigins restricts the Origin header on upgrade; empty allows any.
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	return o
}

// WsSignalConn implements core.Connection on a gorilla websocket.
// Outbound frames go through a bounded queue drained by writePump.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame
	opts Options

	mu     sync.RWMutex
	closed bool
}

func NewWsSignalConn(ws *websocket.Conn, opts Options) *WsSignalConn {
	opts = opts.withDefaults()
	c := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, opts.SendBuffer),
		opts: opts,
	}
	ws.SetReadLimit(opts.ReadLimit)
	_ = ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	})
	return c
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) ReadFrame() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (c *WsSignalConn) CloseWithCode(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteWait)); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("write close frame")
	}
	c.Close()
}
