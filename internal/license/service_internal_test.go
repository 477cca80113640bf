package license

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodelicense/internal/config"
	apperrors "nodelicense/internal/errors"
	"nodelicense/internal/store"
)

func TestMalformedKeyDoesNotGrowRegistries(t *testing.T) {
	ctx := context.Background()

	st, err := store.OpenFileStore(filepath.Join(t.TempDir(), "licenses.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	cfg := config.Default()
	cfg.RateLimit.Enabled = true
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(st, clock, &cfg, nil)

	info := DeviceInfo{Name: "workstation", Platform: "linux", MachineID: "m-1"}
	for _, key := range []string{"", "bogus", "vl-1a2b-3c4d-5e6f-7a8b", "VL-1A2B"} {
		_, err := svc.ActivateDevice(ctx, key, info)
		require.ErrorIs(t, err, apperrors.ErrInvalidLicenseKey, "key %q", key)
		_, err = svc.DeactivateDevice(ctx, key, "0123456789abcdef")
		require.ErrorIs(t, err, apperrors.ErrInvalidLicenseKey, "key %q", key)
		_, err = svc.AddPurchasedDevices(ctx, key, 1)
		require.ErrorIs(t, err, apperrors.ErrInvalidLicenseKey, "key %q", key)
		err = svc.RevokeLicense(ctx, key, "reason")
		require.ErrorIs(t, err, apperrors.ErrInvalidLicenseKey, "key %q", key)
	}

	// Malformed keys never reach the lock registry or the rate limiter.
	assert.Empty(t, svc.locks.locks)
	assert.Empty(t, svc.limiter.limiters)
}
