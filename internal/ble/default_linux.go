//go:build linux

package ble

// NewDefaultAdapter returns the platform adapter: BlueZ over the system
// D-Bus. id selects the controller (e.g. "hci0").
func NewDefaultAdapter(id string) (Adapter, error) {
	return NewBlueZAdapter(id)
}
