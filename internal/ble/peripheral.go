package ble

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"
)

// testingManufacturerID keys the manufacturer-data entry in the
// advertisement. 0xffff is the Bluetooth SIG testing ID; centrals use the
// entry's presence to spot bootstrap devices, its content is not parsed.
const testingManufacturerID = 0xffff

// testingManufacturerData is an arbitrary non-empty payload for the
// manufacturer-data entry.
var testingManufacturerData = []byte{0x21, 0x22, 0x23, 0x24}

// Options configures a single bootstrap run.
type Options struct {
	// DeviceName is the local name carried in the advertisement. It
	// identifies this device to scanners and is unrelated to the proxy
	// device name eventually written by the central.
	DeviceName string
	// ServiceUUID identifies both the advertised service and the GATT
	// service containing the proxy-name characteristic.
	ServiceUUID uuid.UUID
	// ProxyNameCharUUID identifies the write-only characteristic the
	// central writes the proxy device name to.
	ProxyNameCharUUID uuid.UUID
}

// AwaitProxyName advertises this device, serves a GATT application with a
// single write-only characteristic, and blocks until a remote central
// writes a payload to it. The payload is decoded as UTF-8 and returned.
//
// The run is one-shot: the first write terminates it, whether it decodes
// or not. Cancelling ctx aborts the wait with ErrCancelled; when ctx is
// cancelled while a control event is simultaneously ready, cancellation
// wins. The advertisement and the GATT registration are each released
// exactly once, on every exit path.
func AwaitProxyName(ctx context.Context, adapter Adapter, opts Options) (string, error) {
	adv := Advertisement{
		ServiceUUIDs: []uuid.UUID{opts.ServiceUUID},
		ManufacturerData: map[uint16][]byte{
			testingManufacturerID: testingManufacturerData,
		},
		Discoverable: true,
		LocalName:    opts.DeviceName,
	}
	advHandle, err := adapter.Advertise(ctx, adv)
	if err != nil {
		return "", fmt.Errorf("ble: register advertisement: %w", err)
	}
	defer closeHandle(advHandle, "advertisement")
	slog.Info("[BLE] registered advertisement", "name", opts.DeviceName, "service", opts.ServiceUUID)

	svc := Service{
		UUID:    opts.ServiceUUID,
		Primary: true,
		Characteristics: []Characteristic{{
			UUID:                 opts.ProxyNameCharUUID,
			Write:                true,
			WriteWithoutResponse: true,
		}},
	}
	events, appHandle, err := adapter.ServeGATT(ctx, svc)
	if err != nil {
		return "", fmt.Errorf("ble: register GATT application: %w", err)
	}
	defer closeHandle(appHandle, "gatt application")
	slog.Info("[BLE] serving proxy-name characteristic", "characteristic", opts.ProxyNameCharUUID)

	for {
		// Cancellation takes precedence over a ready control event.
		select {
		case <-ctx.Done():
			return "", ErrCancelled
		default:
		}

		select {
		case <-ctx.Done():
			return "", ErrCancelled
		case evt, ok := <-events:
			if !ok {
				return "", ErrStreamClosed
			}
			switch e := evt.(type) {
			case *WriteRequest:
				slog.Debug("[BLE] accepting write request", "mtu", e.MTU())
				return handleWrite(e)
			case *NotifyRequest:
				slog.Warn("[BLE] ignoring notify request on write-only characteristic", "mtu", e.MTU())
			default:
				slog.Warn("[BLE] ignoring unknown control event")
			}
		}
	}
}

// handleWrite consumes a write request: accept once, read a single chunk of
// at most MTU bytes, decode as UTF-8. Payloads larger than one MTU are not
// supported by this protocol version.
func handleWrite(req *WriteRequest) (string, error) {
	r, err := req.Accept()
	if err != nil {
		return "", fmt.Errorf("ble: accept write request: %w", err)
	}
	defer r.Close()

	buf := make([]byte, req.MTU())
	n, err := r.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("ble: read write payload: %w", err)
	}

	payload := buf[:n]
	if !utf8.Valid(payload) {
		return "", &DecodeError{Payload: payload}
	}
	return string(payload), nil
}

// closeHandle releases a registration handle, logging any release failure.
// Release errors do not change the run's outcome.
func closeHandle(h Handle, what string) {
	if err := h.Close(); err != nil {
		slog.Warn("[BLE] failed to release "+what, "error", err)
	}
}
