package ble

import "io"

// controlEventBuffer bounds events queued between backend callbacks and
// the wait loop. The protocol consumes one request at a time, so a small
// buffer suffices.
const controlEventBuffer = 4

// ControlEvent is a closed set of events produced by a served GATT
// application: *WriteRequest and *NotifyRequest. Stream termination is
// signaled by closing the event channel, not by a dedicated variant.
type ControlEvent interface {
	controlEvent()
}

// WriteRequest is an incoming write to the characteristic. The payload is
// not buffered by the adapter; it is read directly from the stream obtained
// via Accept. A request may be accepted at most once, and must be consumed
// before the next control event is awaited.
type WriteRequest struct {
	mtu      int
	accept   func() (io.ReadCloser, error)
	accepted bool
}

// NewWriteRequest is used by adapter backends to construct a write request.
// accept is invoked at most once.
func NewWriteRequest(mtu int, accept func() (io.ReadCloser, error)) *WriteRequest {
	return &WriteRequest{mtu: mtu, accept: accept}
}

// MTU returns the negotiated maximum transfer size for this request. A
// single read of up to MTU bytes retrieves the whole payload.
func (r *WriteRequest) MTU() int { return r.mtu }

// Accept consumes the request and returns the payload stream. Accepting a
// request twice fails with ErrRequestConsumed.
func (r *WriteRequest) Accept() (io.ReadCloser, error) {
	if r.accepted {
		return nil, ErrRequestConsumed
	}
	r.accepted = true
	return r.accept()
}

func (r *WriteRequest) controlEvent() {}

// NotifyRequest is a subscription attempt on the characteristic. The
// bootstrap characteristic is write-only, so these are never serviced;
// the wait loop logs and ignores them.
type NotifyRequest struct {
	mtu int
}

// NewNotifyRequest is used by adapter backends to construct a notify request.
func NewNotifyRequest(mtu int) *NotifyRequest {
	return &NotifyRequest{mtu: mtu}
}

// MTU returns the maximum transfer size the subscriber negotiated.
func (r *NotifyRequest) MTU() int { return r.mtu }

func (r *NotifyRequest) controlEvent() {}
