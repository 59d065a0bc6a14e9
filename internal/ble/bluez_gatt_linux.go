//go:build linux

package ble

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
	"golang.org/x/sys/unix"
)

// attDefaultMTU is the ATT protocol minimum. BlueZ always supplies the
// negotiated MTU in the AcquireWrite options; this is only a fallback.
const attDefaultMTU = 23

var applicationID uint64

// ServeGATT exports a GATT application (one service, its characteristics)
// and registers it with the adapter's GATT manager. Incoming writes are
// surfaced as control events; the payload is transferred over a file
// descriptor acquired by BlueZ rather than round-tripped through D-Bus
// method calls.
func (a *BlueZAdapter) ServeGATT(ctx context.Context, svc Service) (<-chan ControlEvent, Handle, error) {
	id := atomic.AddUint64(&applicationID, 1)
	appPath := dbus.ObjectPath(fmt.Sprintf("%s/app%d", objectPathBase, id))
	svcPath := appPath + "/service0"

	events := make(chan ControlEvent, controlEventBuffer)

	svcSpec := map[string]map[string]*prop.Prop{
		gattService1Interface: {
			"UUID":    {Value: svc.UUID.String()},
			"Primary": {Value: svc.Primary},
		},
	}
	if _, err := prop.Export(a.conn, svcPath, svcSpec); err != nil {
		return nil, nil, fmt.Errorf("export service properties: %w", err)
	}

	charPaths := make([]dbus.ObjectPath, 0, len(svc.Characteristics))
	charObjs := make([]*bluezChar, 0, len(svc.Characteristics))
	for i, char := range svc.Characteristics {
		charPath := svcPath + dbus.ObjectPath(fmt.Sprintf("/char%d", i))
		charSpec := map[string]map[string]*prop.Prop{
			gattCharacteristic1: {
				"UUID":          {Value: char.UUID.String()},
				"Service":       {Value: svcPath},
				"Flags":         {Value: charFlags(char)},
				"WriteAcquired": {Value: false, Writable: true, Emit: prop.EmitTrue},
			},
		}
		props, err := prop.Export(a.conn, charPath, charSpec)
		if err != nil {
			a.unexportApp(appPath, svcPath, charPaths)
			return nil, nil, fmt.Errorf("export characteristic properties: %w", err)
		}
		obj := &bluezChar{events: events, props: props}
		if err := a.conn.Export(obj, charPath, gattCharacteristic1); err != nil {
			a.unexportApp(appPath, svcPath, charPaths)
			return nil, nil, fmt.Errorf("export characteristic object: %w", err)
		}
		charPaths = append(charPaths, charPath)
		charObjs = append(charObjs, obj)
	}

	om := &objectManager{objects: managedObjects(svc, svcPath)}
	if err := a.conn.Export(om, appPath, objectManagerInterface); err != nil {
		a.unexportApp(appPath, svcPath, charPaths)
		return nil, nil, fmt.Errorf("export object manager: %w", err)
	}

	call := a.adapter.CallWithContext(ctx, gattManager1Interface+".RegisterApplication", 0,
		appPath, map[string]dbus.Variant{})
	if call.Err != nil {
		a.unexportApp(appPath, svcPath, charPaths)
		return nil, nil, fmt.Errorf("RegisterApplication: %w", call.Err)
	}

	handle := &bluezHandle{
		close: func() error {
			for _, obj := range charObjs {
				obj.shutdown()
			}
			defer close(events)
			defer a.unexportApp(appPath, svcPath, charPaths)
			err := a.adapter.Call(gattManager1Interface+".UnregisterApplication", 0, appPath).Err
			if err, ok := err.(dbus.Error); ok && err.Name == bluezErrorDoesNotExist {
				return nil
			}
			return err
		},
	}
	return events, handle, nil
}

func (a *BlueZAdapter) unexportApp(appPath, svcPath dbus.ObjectPath, charPaths []dbus.ObjectPath) {
	a.conn.Export(nil, appPath, objectManagerInterface)
	a.unexport(svcPath, gattService1Interface)
	for _, p := range charPaths {
		a.unexport(p, gattCharacteristic1)
	}
}

// charFlags maps characteristic permissions to BlueZ flag strings.
// "write-without-response" is required for BlueZ to route writes through
// AcquireWrite.
func charFlags(c Characteristic) []string {
	var flags []string
	if c.WriteWithoutResponse {
		flags = append(flags, "write-without-response")
	}
	if c.Write {
		flags = append(flags, "write")
	}
	return flags
}

// managedObjects builds the GetManagedObjects reply for one registered
// application: the service object plus each characteristic object.
func managedObjects(svc Service, svcPath dbus.ObjectPath) map[dbus.ObjectPath]map[string]map[string]dbus.Variant {
	objects := map[dbus.ObjectPath]map[string]map[string]dbus.Variant{
		svcPath: {
			gattService1Interface: {
				"UUID":    dbus.MakeVariant(svc.UUID.String()),
				"Primary": dbus.MakeVariant(svc.Primary),
			},
		},
	}
	for i, char := range svc.Characteristics {
		charPath := svcPath + dbus.ObjectPath(fmt.Sprintf("/char%d", i))
		objects[charPath] = map[string]map[string]dbus.Variant{
			gattCharacteristic1: {
				"UUID":    dbus.MakeVariant(char.UUID.String()),
				"Service": dbus.MakeVariant(svcPath),
				"Flags":   dbus.MakeVariant(charFlags(char)),
			},
		}
	}
	return objects
}

// objectManager implements org.freedesktop.DBus.ObjectManager for the
// application root. BlueZ calls GetManagedObjects during registration to
// discover the application's services and characteristics.
type objectManager struct {
	objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
}

func (om *objectManager) GetManagedObjects() (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, *dbus.Error) {
	return om.objects, nil
}

// bluezChar is the org.bluez.GattCharacteristic1 object exported for the
// proxy-name characteristic. D-Bus method calls arrive on the connection's
// dispatch goroutine; the mutex orders them against handle teardown so no
// event is emitted after the stream is closed.
type bluezChar struct {
	events chan<- ControlEvent
	props  *prop.Properties

	mu     sync.Mutex
	closed bool
}

// emit queues a control event unless the stream has shut down or the
// buffer is full. It reports whether the event was queued.
func (c *bluezChar) emit(evt ControlEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.events <- evt:
		return true
	default:
		return false
	}
}

// shutdown stops event emission. The stream channel may be closed safely
// afterwards.
func (c *bluezChar) shutdown() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// AcquireWrite is called by BlueZ when a central starts writing to the
// characteristic. It hands BlueZ one end of a socket pair and surfaces the
// other end as a WriteRequest control event; the protocol reads the
// payload directly from the socket.
func (c *bluezChar) AcquireWrite(options map[string]dbus.Variant) (dbus.UnixFD, uint16, *dbus.Error) {
	mtu := optionMTU(options)

	fds, err := unix.Socketpair(unix.AF_LOCAL, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return 0, 0, dbus.MakeFailedError(fmt.Errorf("socketpair: %w", err))
	}
	local := os.NewFile(uintptr(fds[0]), "proxyname-gatt-write")

	req := NewWriteRequest(int(mtu), func() (io.ReadCloser, error) {
		return local, nil
	})
	if !c.emit(req) {
		local.Close()
		unix.Close(fds[1])
		slog.Warn("[BLE] dropping write request, event stream closed or full")
		return 0, 0, dbus.MakeFailedError(fmt.Errorf("write request dropped"))
	}

	c.props.SetMust(gattCharacteristic1, "WriteAcquired", true)
	return dbus.UnixFD(fds[1]), mtu, nil
}

// AcquireNotify is surfaced as a control event so the wait loop can log
// it, but always fails: the characteristic does not support notify.
func (c *bluezChar) AcquireNotify(options map[string]dbus.Variant) (dbus.UnixFD, uint16, *dbus.Error) {
	c.emit(NewNotifyRequest(int(optionMTU(options))))
	return 0, 0, dbus.NewError(bluezErrorNotSupported, nil)
}

// optionMTU extracts the negotiated MTU from D-Bus call options.
func optionMTU(options map[string]dbus.Variant) uint16 {
	mtu := uint16(attDefaultMTU)
	if v, ok := options["mtu"]; ok {
		v.Store(&mtu)
	}
	return mtu
}
