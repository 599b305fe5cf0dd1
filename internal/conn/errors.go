package conn

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a manager that has been stopped.
var ErrClosed = errors.New("connection manager closed")

// ErrAuthRejected marks an explicit server rejection of a bearer token. It
// is surfaced distinctly from transport errors so a caller can choose to
// re-derive credentials; rejection-driven reconnects are capped, unlike
// transport retries.
var ErrAuthRejected = errors.New("authentication rejected by server")

// TransportError wraps a network-level failure. It always triggers a
// reconnect and is never fatal.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
