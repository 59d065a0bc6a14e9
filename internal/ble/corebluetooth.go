//go:build darwin

package ble

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"tinygo.org/x/bluetooth"
)

// CoreBluetoothAdapter wraps tinygo-org/bluetooth for macOS. CoreBluetooth
// buffers write payloads itself, so write requests surfaced by this backend
// carry the already-received payload rather than a live socket.
type CoreBluetoothAdapter struct {
	adapter *bluetooth.Adapter
}

// NewCoreBluetoothAdapter enables the default CoreBluetooth adapter.
func NewCoreBluetoothAdapter() (*CoreBluetoothAdapter, error) {
	a := &CoreBluetoothAdapter{adapter: bluetooth.DefaultAdapter}
	if err := a.adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}
	return a, nil
}

// Advertise configures and starts the default advertisement.
func (a *CoreBluetoothAdapter) Advertise(_ context.Context, adv Advertisement) (Handle, error) {
	serviceUUIDs := make([]bluetooth.UUID, 0, len(adv.ServiceUUIDs))
	for _, u := range adv.ServiceUUIDs {
		parsed, err := bluetooth.ParseUUID(u.String())
		if err != nil {
			return nil, fmt.Errorf("parse service UUID: %w", err)
		}
		serviceUUIDs = append(serviceUUIDs, parsed)
	}
	manufacturerData := make([]bluetooth.ManufacturerDataElement, 0, len(adv.ManufacturerData))
	for vendor, data := range adv.ManufacturerData {
		manufacturerData = append(manufacturerData, bluetooth.ManufacturerDataElement{
			CompanyID: vendor,
			Data:      data,
		})
	}

	defaultAdv := a.adapter.DefaultAdvertisement()
	err := defaultAdv.Configure(bluetooth.AdvertisementOptions{
		LocalName:        adv.LocalName,
		ServiceUUIDs:     serviceUUIDs,
		ManufacturerData: manufacturerData,
	})
	if err != nil {
		return nil, fmt.Errorf("configure advertisement: %w", err)
	}
	if err := defaultAdv.Start(); err != nil {
		return nil, fmt.Errorf("start advertisement: %w", err)
	}
	return handleFunc(defaultAdv.Stop), nil
}

// ServeGATT registers the service with CoreBluetooth. Writes arrive fully
// buffered through the characteristic's write callback and are re-surfaced
// as control events; the transfer size is the payload length.
func (a *CoreBluetoothAdapter) ServeGATT(_ context.Context, svc Service) (<-chan ControlEvent, Handle, error) {
	svcUUID, err := bluetooth.ParseUUID(svc.UUID.String())
	if err != nil {
		return nil, nil, fmt.Errorf("parse service UUID: %w", err)
	}

	events := make(chan ControlEvent, controlEventBuffer)

	// Write callbacks arrive on CoreBluetooth's dispatch queue; the mutex
	// orders them against handle teardown so no event is emitted after the
	// stream is closed.
	var mu sync.Mutex
	closed := false
	emit := func(evt ControlEvent) bool {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return false
		}
		select {
		case events <- evt:
			return true
		default:
			return false
		}
	}

	chars := make([]bluetooth.CharacteristicConfig, 0, len(svc.Characteristics))
	for _, char := range svc.Characteristics {
		charUUID, err := bluetooth.ParseUUID(char.UUID.String())
		if err != nil {
			return nil, nil, fmt.Errorf("parse characteristic UUID: %w", err)
		}
		var flags bluetooth.CharacteristicPermissions
		if char.Write {
			flags |= bluetooth.CharacteristicWritePermission
		}
		if char.WriteWithoutResponse {
			flags |= bluetooth.CharacteristicWriteWithoutResponsePermission
		}
		chars = append(chars, bluetooth.CharacteristicConfig{
			UUID:  charUUID,
			Flags: flags,
			WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
				payload := make([]byte, len(value))
				copy(payload, value)
				req := NewWriteRequest(len(payload), func() (io.ReadCloser, error) {
					return io.NopCloser(bytes.NewReader(payload)), nil
				})
				if !emit(req) {
					slog.Warn("[BLE] dropping write request, event stream closed or full")
				}
			},
		})
	}

	if err := a.adapter.AddService(&bluetooth.Service{UUID: svcUUID, Characteristics: chars}); err != nil {
		return nil, nil, fmt.Errorf("add service: %w", err)
	}

	// CoreBluetooth offers no way to remove a registered service; closing
	// the handle only ends event delivery.
	return events, handleFunc(func() error {
		mu.Lock()
		closed = true
		mu.Unlock()
		close(events)
		return nil
	}), nil
}

// handleFunc adapts a teardown closure to the Handle interface.
type handleFunc func() error

func (f handleFunc) Close() error { return f() }
