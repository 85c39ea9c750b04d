package core

import "errors"

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Frame is one encoded outbound event.
type Frame []byte

// SignalConnection abstracts the outbound side of a live connection.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend enqueues without blocking; ErrBackpressure or ErrConnClosed on failure.
	TrySend(Frame) error
	Close()
}

// Connection is the full duplex transport a connection session runs on.
type Connection interface {
	SignalConnection
	// ReadFrame blocks until the next inbound frame arrives or the transport fails.
	ReadFrame() ([]byte, error)
	// CloseWithCode sends a close frame with code and text, then closes.
	CloseWithCode(code int, text string)
}
