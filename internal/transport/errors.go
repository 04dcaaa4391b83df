package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportUnavailable is returned by Connect when no opener is configured.
	ErrTransportUnavailable = errors.New("transport unavailable")
	// ErrNotConnected is returned by Write outside a running session.
	ErrNotConnected = errors.New("transport not connected")
	// ErrAlreadyConnected is returned by Connect on a live session.
	ErrAlreadyConnected = errors.New("transport already connected")
	// ErrWriteFailed reports a short write.
	ErrWriteFailed = errors.New("failed to write to port")
)

// ConnectionError reports a failure to open the port.
type ConnectionError struct {
	Path string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Path, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RuntimeError reports a read or write failure on an open port.
type RuntimeError struct {
	Op  string
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }
