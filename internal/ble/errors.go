package ble

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned when the operator cancels the wait before a
	// proxy device name is written.
	ErrCancelled = errors.New("ble: cancelled before a proxy device name was written")

	// ErrStreamClosed is returned when the control event stream ends
	// without a write ever arriving.
	ErrStreamClosed = errors.New("ble: control event stream closed before a proxy device name was written")

	// ErrRequestConsumed is returned by WriteRequest.Accept when the
	// request has already been accepted.
	ErrRequestConsumed = errors.New("ble: write request already accepted")
)

// DecodeError reports a written payload that is not valid UTF-8. The raw
// payload is retained for diagnostics.
type DecodeError struct {
	Payload []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("ble: written proxy device name is not valid UTF-8 (%d bytes)", len(e.Payload))
}
