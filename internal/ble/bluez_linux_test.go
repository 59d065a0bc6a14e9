package ble

import (
	"reflect"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

func TestCharFlags(t *testing.T) {
	tests := []struct {
		name string
		char Characteristic
		want []string
	}{
		{
			name: "write only",
			char: Characteristic{Write: true},
			want: []string{"write"},
		},
		{
			name: "write without response only",
			char: Characteristic{WriteWithoutResponse: true},
			want: []string{"write-without-response"},
		},
		{
			name: "both",
			char: Characteristic{Write: true, WriteWithoutResponse: true},
			want: []string{"write-without-response", "write"},
		},
		{
			name: "none",
			char: Characteristic{},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := charFlags(tt.char); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("charFlags() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestManagedObjects(t *testing.T) {
	svcUUID := uuid.MustParse("a7b2ffb6-2f54-4f3a-9c2e-0f52cbd1e6da")
	charUUID := uuid.MustParse("f1d0f897-4a2b-4b5c-8f3d-6e2a9b8c7d01")
	svc := Service{
		UUID:    svcUUID,
		Primary: true,
		Characteristics: []Characteristic{
			{UUID: charUUID, Write: true, WriteWithoutResponse: true},
		},
	}
	svcPath := dbus.ObjectPath("/com/chaz8081/proxyname/app1/service0")

	objects := managedObjects(svc, svcPath)
	if len(objects) != 2 {
		t.Fatalf("managedObjects() has %d objects, want 2", len(objects))
	}

	svcProps, ok := objects[svcPath][gattService1Interface]
	if !ok {
		t.Fatalf("missing service object at %s", svcPath)
	}
	if got := svcProps["UUID"].Value(); got != svcUUID.String() {
		t.Errorf("service UUID = %v, want %v", got, svcUUID)
	}
	if got := svcProps["Primary"].Value(); got != true {
		t.Errorf("service Primary = %v, want true", got)
	}

	charPath := svcPath + "/char0"
	charProps, ok := objects[charPath][gattCharacteristic1]
	if !ok {
		t.Fatalf("missing characteristic object at %s", charPath)
	}
	if got := charProps["Service"].Value(); got != svcPath {
		t.Errorf("characteristic Service = %v, want %v", got, svcPath)
	}
	flags, _ := charProps["Flags"].Value().([]string)
	if !reflect.DeepEqual(flags, []string{"write-without-response", "write"}) {
		t.Errorf("characteristic Flags = %v", flags)
	}
}

func TestOptionMTU(t *testing.T) {
	if got := optionMTU(nil); got != attDefaultMTU {
		t.Errorf("optionMTU(nil) = %d, want %d", got, attDefaultMTU)
	}
	opts := map[string]dbus.Variant{"mtu": dbus.MakeVariant(uint16(517))}
	if got := optionMTU(opts); got != 517 {
		t.Errorf("optionMTU() = %d, want 517", got)
	}
}
