package conduit

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced at the connection-driver's own internal
// boundaries. None of these cross a connection boundary: each is
// caught at the loop or write-flow boundary that produced it.
var (
	// ErrClosed is returned by fill/write once the endpoint has been closed.
	ErrClosed = errors.New("conduit: endpoint closed")

	// ErrExecutorRejected is logged (warning) and the endpoint is closed
	// when the connector's executor queue is full.
	ErrExecutorRejected = errors.New("conduit: executor rejected submission")

	// ErrUnexpectedState is returned by the generator when a content
	// write arrives before any commit write for the response.
	ErrUnexpectedState = errors.New("conduit: content write before the response was committed")
)

// badMessage pairs a malformed-request status with the reason the
// parser rejected it.
type badMessage struct {
	status int
	reason string
}

func (e *badMessage) Error() string { return e.reason }

// handlerPanic wraps a recovered panic from an application Handler so
// the connection driver can log it, without losing the original value,
// before answering with 500 (or finishing a response already begun).
type handlerPanic struct {
	value any
}

func (e *handlerPanic) Error() string { return fmt.Sprintf("conduit: handler panicked: %v", e.value) }
