package license

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLicenseKeyDeterministicBytes(t *testing.T) {
	r := bytes.NewReader([]byte{0x1a, 0x2b, 0x3c, 0x4d, 0x5e, 0x6f, 0x7a, 0x8b})

	key, err := generateLicenseKey(r)
	require.NoError(t, err)
	assert.Equal(t, "VL-1A2B-3C4D-5E6F-7A8B", key)
}

func TestGenerateLicenseKeyFormat(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		key, err := generateLicenseKey(rand.Reader)
		require.NoError(t, err)
		assert.True(t, ValidLicenseKeyFormat(key), "generated key %q does not match format", key)

		_, dup := seen[key]
		assert.False(t, dup, "duplicate key %q in 200 generations", key)
		seen[key] = struct{}{}
	}
}

func TestGenerateLicenseKeyShortRandSource(t *testing.T) {
	_, err := generateLicenseKey(bytes.NewReader([]byte{0x01, 0x02}))
	require.Error(t, err)
}

func TestValidLicenseKeyFormat(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		valid bool
	}{
		{"canonical", "VL-1A2B-3C4D-5E6F-7A8B", true},
		{"all zeros", "VL-0000-0000-0000-0000", true},
		{"lowercase hex", "VL-1a2b-3c4d-5e6f-7a8b", false},
		{"wrong prefix", "XL-1A2B-3C4D-5E6F-7A8B", false},
		{"missing group", "VL-1A2B-3C4D-5E6F", false},
		{"non-hex chars", "VL-1A2B-3C4D-5E6F-7A8G", false},
		{"trailing garbage", "VL-1A2B-3C4D-5E6F-7A8B ", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidLicenseKeyFormat(tt.key))
		})
	}
}
