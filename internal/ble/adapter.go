// Package ble implements the peripheral side of the proxy-name bootstrap
// protocol: advertise this device, expose a single write-only GATT
// characteristic, and wait for a remote central to write a UTF-8 proxy
// device name to it. The underlying BLE stack is abstracted behind the
// Adapter interface so the protocol logic can be tested without a radio.
package ble

import (
	"context"

	"github.com/google/uuid"
)

// Advertisement describes an LE advertisement to be registered with an
// adapter. It is immutable once handed to Advertise.
type Advertisement struct {
	ServiceUUIDs     []uuid.UUID
	ManufacturerData map[uint16][]byte
	Discoverable     bool
	LocalName        string
}

// Characteristic describes a single GATT characteristic. Only write
// permissions are modeled; this protocol never exposes read or notify.
type Characteristic struct {
	UUID                 uuid.UUID
	Write                bool
	WriteWithoutResponse bool
}

// Service describes a GATT service and its characteristics.
type Service struct {
	UUID            uuid.UUID
	Primary         bool
	Characteristics []Characteristic
}

// Handle is a live registration (advertisement or GATT application).
// Close deactivates it. Close is called exactly once by the wait loop.
type Handle interface {
	Close() error
}

// Adapter abstracts a powered BLE controller for testing. It carries
// exactly the two capabilities the bootstrap protocol needs.
type Adapter interface {
	// Advertise registers the advertisement and activates it. The returned
	// handle deactivates the advertisement when closed.
	Advertise(ctx context.Context, adv Advertisement) (Handle, error)
	// ServeGATT registers the GATT application containing svc. It returns
	// a stream of control events for the service's characteristics and a
	// handle that unregisters the application when closed. The stream is
	// closed when no further events will be delivered.
	ServeGATT(ctx context.Context, svc Service) (<-chan ControlEvent, Handle, error)
}
