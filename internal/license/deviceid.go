package license

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// deviceIDLength is the truncated hex length of a device identifier.
const deviceIDLength = 16

// DeriveDeviceID derives the stable device identifier from a device
// identity. Fields are joined in a fixed order (name, platform, machine
// ID), each trimmed and lowercased, so the ID never depends on incidental
// serialization order and the same device always hashes to the same ID.
func DeriveDeviceID(info DeviceInfo) string {
	canonical := strings.Join([]string{
		canonicalField(info.Name),
		canonicalField(info.Platform),
		canonicalField(info.MachineID),
	}, "|")

	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:deviceIDLength]
}

func canonicalField(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
