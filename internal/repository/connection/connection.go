package connection

import "errors"

var (
	ErrAlreadyExists  = errors.New("connection already exists")
	ErrNotFound       = errors.New("connection not found")
	ErrSendBufferFull = errors.New("send buffer full")
	ErrClosed         = errors.New("connection closed")
)

// Conn is the outbound side of a client connection. Send must not block.
type Conn interface {
	Send(msg any) error
	Close(code int, reason string) error
}
