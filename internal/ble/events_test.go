package ble

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestWriteRequestAcceptOnce(t *testing.T) {
	req := NewWriteRequest(23, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader([]byte("pixel-7"))), nil
	})

	r, err := req.Accept()
	if err != nil {
		t.Fatalf("first Accept() error = %v", err)
	}
	defer r.Close()

	if _, err := req.Accept(); !errors.Is(err, ErrRequestConsumed) {
		t.Errorf("second Accept() error = %v, want ErrRequestConsumed", err)
	}
}

func TestWriteRequestMTU(t *testing.T) {
	req := NewWriteRequest(185, func() (io.ReadCloser, error) { return nil, nil })
	if req.MTU() != 185 {
		t.Errorf("MTU() = %d, want 185", req.MTU())
	}
}

func TestNotifyRequestMTU(t *testing.T) {
	req := NewNotifyRequest(247)
	if req.MTU() != 247 {
		t.Errorf("MTU() = %d, want 247", req.MTU())
	}
}
