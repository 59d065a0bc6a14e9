//go:build darwin

package ble

// NewDefaultAdapter returns the platform adapter: CoreBluetooth via
// tinygo-org/bluetooth. The adapter ID is meaningless on macOS and is
// ignored.
func NewDefaultAdapter(_ string) (Adapter, error) {
	return NewCoreBluetoothAdapter()
}
