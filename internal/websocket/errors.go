package websocket

import "errors"

var (
	ErrMessageBufferFull = errors.New("message buffer is full")
	ErrInvalidMessage    = errors.New("message must be a JSON object with a type")
	ErrClientClosed      = errors.New("client is closed")
)
