package ble

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
)

// countingHandle records how often it was released, for teardown tests.
type countingHandle struct {
	mu     sync.Mutex
	closes int
	err    error
}

func (h *countingHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	return h.err
}

func (h *countingHandle) closeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closes
}

// mockAdapter simulates a BLE adapter. Control events are queued with the
// Simulate* helpers before or while AwaitProxyName runs.
type mockAdapter struct {
	advertiseErr error
	serveErr     error

	advHandle *countingHandle
	appHandle *countingHandle
	events    chan ControlEvent

	mu      sync.Mutex
	lastAdv Advertisement
	lastSvc Service
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{
		advHandle: &countingHandle{},
		appHandle: &countingHandle{},
		events:    make(chan ControlEvent, 8),
	}
}

func (a *mockAdapter) Advertise(_ context.Context, adv Advertisement) (Handle, error) {
	if a.advertiseErr != nil {
		return nil, a.advertiseErr
	}
	a.mu.Lock()
	a.lastAdv = adv
	a.mu.Unlock()
	return a.advHandle, nil
}

func (a *mockAdapter) ServeGATT(_ context.Context, svc Service) (<-chan ControlEvent, Handle, error) {
	if a.serveErr != nil {
		return nil, nil, a.serveErr
	}
	a.mu.Lock()
	a.lastSvc = svc
	a.mu.Unlock()
	return a.events, a.appHandle, nil
}

// SimulateWrite queues a write request whose accepted stream yields payload.
func (a *mockAdapter) SimulateWrite(payload []byte, mtu int) {
	a.events <- NewWriteRequest(mtu, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(payload)), nil
	})
}

// SimulateNotify queues a notify request.
func (a *mockAdapter) SimulateNotify(mtu int) {
	a.events <- NewNotifyRequest(mtu)
}

// CloseStream ends the control event stream.
func (a *mockAdapter) CloseStream() {
	close(a.events)
}

func TestMockAdapterImplementsInterface(t *testing.T) {
	var _ Adapter = (*mockAdapter)(nil)
}

func TestCountingHandleImplementsInterface(t *testing.T) {
	var _ Handle = (*countingHandle)(nil)
}
