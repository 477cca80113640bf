package license

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveDeviceIDStable(t *testing.T) {
	info := DeviceInfo{Name: "Workstation", Platform: "linux", MachineID: "abc-123"}

	first := DeriveDeviceID(info)
	second := DeriveDeviceID(info)

	assert.Equal(t, first, second)
	assert.Len(t, first, deviceIDLength)
}

func TestDeriveDeviceIDCanonicalization(t *testing.T) {
	base := DeviceInfo{Name: "Workstation", Platform: "Linux", MachineID: "ABC-123"}
	messy := DeviceInfo{Name: "  workstation ", Platform: "linux", MachineID: "abc-123  "}

	assert.Equal(t, DeriveDeviceID(base), DeriveDeviceID(messy),
		"case and surrounding whitespace must not change the identity")
}

func TestDeriveDeviceIDDistinguishesIdentities(t *testing.T) {
	a := DeviceInfo{Name: "workstation", Platform: "linux", MachineID: "abc-123"}
	b := DeviceInfo{Name: "workstation", Platform: "linux", MachineID: "abc-124"}
	c := DeviceInfo{Name: "workstation", Platform: "darwin", MachineID: "abc-123"}

	assert.NotEqual(t, DeriveDeviceID(a), DeriveDeviceID(b))
	assert.NotEqual(t, DeriveDeviceID(a), DeriveDeviceID(c))
}

func TestDeriveDeviceIDFieldBoundaries(t *testing.T) {
	// Joining with a separator keeps "ab"+"c" distinct from "a"+"bc".
	a := DeviceInfo{Name: "ab", Platform: "c", MachineID: "x"}
	b := DeviceInfo{Name: "a", Platform: "bc", MachineID: "x"}

	assert.NotEqual(t, DeriveDeviceID(a), DeriveDeviceID(b))
}
