//go:build linux

package ble

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
)

// DefaultAdapterID is the BlueZ adapter used when none is configured.
const DefaultAdapterID = "hci0"

const (
	bluezBusName = "org.bluez"

	adapter1Interface        = "org.bluez.Adapter1"
	advertisement1Interface  = "org.bluez.LEAdvertisement1"
	advertisingMgr1Interface = "org.bluez.LEAdvertisingManager1"
	gattManager1Interface    = "org.bluez.GattManager1"
	gattService1Interface    = "org.bluez.GattService1"
	gattCharacteristic1      = "org.bluez.GattCharacteristic1"
	objectManagerInterface   = "org.freedesktop.DBus.ObjectManager"
	dbusPropertiesInterface  = "org.freedesktop.DBus.Properties"
	bluezErrorDoesNotExist   = "org.bluez.Error.DoesNotExist"
	bluezErrorNotSupported   = "org.bluez.Error.NotSupported"
	dbusErrorUnknownObject   = "org.freedesktop.DBus.Error.UnknownObject"
	objectPathBase           = "/com/chaz8081/proxyname"
)

var advertisementID uint64

// BlueZAdapter drives a BlueZ-managed controller over the system D-Bus.
type BlueZAdapter struct {
	id      string
	conn    *dbus.Conn
	adapter dbus.BusObject
}

// NewBlueZAdapter connects to the system bus and binds to the BlueZ adapter
// with the given ID (e.g. "hci0"). It fails if the adapter does not exist
// or is not powered.
func NewBlueZAdapter(id string) (*BlueZAdapter, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("ble: connect to system bus: %w", err)
	}

	a := &BlueZAdapter{
		id:      id,
		conn:    conn,
		adapter: conn.Object(bluezBusName, dbus.ObjectPath("/org/bluez/"+id)),
	}

	v, err := a.adapter.GetProperty(adapter1Interface + ".Powered")
	if err != nil {
		if err, ok := err.(dbus.Error); ok && err.Name == dbusErrorUnknownObject {
			return nil, fmt.Errorf("ble: adapter %s does not exist", id)
		}
		return nil, fmt.Errorf("ble: query adapter %s: %w", id, err)
	}
	var powered bool
	if err := v.Store(&powered); err != nil {
		return nil, fmt.Errorf("ble: adapter %s powered property: %w", id, err)
	}
	if !powered {
		return nil, fmt.Errorf("ble: adapter %s is not powered", id)
	}
	return a, nil
}

// bluezAdvertisement is the org.bluez.LEAdvertisement1 object exported for
// the lifetime of one advertisement registration.
type bluezAdvertisement struct{}

// Release is called by BlueZ when it forcibly unregisters the
// advertisement. Nothing to do; the handle owns the real teardown.
func (a *bluezAdvertisement) Release() *dbus.Error { return nil }

// Advertise exports an LEAdvertisement1 object and registers it with the
// adapter's advertising manager.
func (a *BlueZAdapter) Advertise(ctx context.Context, adv Advertisement) (Handle, error) {
	id := atomic.AddUint64(&advertisementID, 1)
	path := dbus.ObjectPath(fmt.Sprintf("%s/advertisement%d", objectPathBase, id))

	serviceUUIDs := make([]string, 0, len(adv.ServiceUUIDs))
	for _, u := range adv.ServiceUUIDs {
		serviceUUIDs = append(serviceUUIDs, u.String())
	}
	manufacturerData := make(map[uint16]any, len(adv.ManufacturerData))
	for vendor, data := range adv.ManufacturerData {
		manufacturerData[vendor] = data
	}

	propsSpec := map[string]map[string]*prop.Prop{
		advertisement1Interface: {
			"Type":             {Value: "peripheral"},
			"ServiceUUIDs":     {Value: serviceUUIDs},
			"ManufacturerData": {Value: manufacturerData},
			"LocalName":        {Value: adv.LocalName},
			"Discoverable":     {Value: adv.Discoverable},
		},
	}
	if _, err := prop.Export(a.conn, path, propsSpec); err != nil {
		return nil, fmt.Errorf("export advertisement properties: %w", err)
	}
	if err := a.conn.Export(&bluezAdvertisement{}, path, advertisement1Interface); err != nil {
		return nil, fmt.Errorf("export advertisement object: %w", err)
	}

	call := a.adapter.CallWithContext(ctx, advertisingMgr1Interface+".RegisterAdvertisement", 0,
		path, map[string]dbus.Variant{})
	if call.Err != nil {
		a.unexport(path, advertisement1Interface)
		return nil, fmt.Errorf("RegisterAdvertisement: %w", call.Err)
	}

	return &bluezHandle{
		close: func() error {
			defer a.unexport(path, advertisement1Interface)
			err := a.adapter.Call(advertisingMgr1Interface+".UnregisterAdvertisement", 0, path).Err
			if err, ok := err.(dbus.Error); ok && err.Name == bluezErrorDoesNotExist {
				return nil
			}
			return err
		},
	}, nil
}

// bluezHandle wraps a teardown closure as a Handle.
type bluezHandle struct {
	close func() error
}

func (h *bluezHandle) Close() error { return h.close() }

// unexport removes a previously exported object from the bus, best effort.
func (a *BlueZAdapter) unexport(path dbus.ObjectPath, iface string) {
	a.conn.Export(nil, path, iface)
	a.conn.Export(nil, path, dbusPropertiesInterface)
}
