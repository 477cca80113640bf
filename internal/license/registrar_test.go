package license_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "nodelicense/internal/errors"
	"nodelicense/internal/license"
	"nodelicense/internal/testutil"
)

func TestRegisterLifecycle(t *testing.T) {
	h := testutil.NewHarness(t, nil)
	ctx := context.Background()
	node := testutil.Node("a")

	res, err := h.Reg.Register(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeRegistered, res.Status)
	assert.Equal(t, 15, res.DelayMinutes)
	assert.Empty(t, res.LicenseKey)

	// Polling during the delay reports the remaining wait, rounded up.
	h.Clock.Advance(10 * time.Minute)
	res, err = h.Reg.Register(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, license.OutcomePending, res.Status)
	assert.Equal(t, 5, res.RemainingMinutes)

	// Once the delay has elapsed, the same call promotes and returns the key.
	h.Clock.Advance(6 * time.Minute)
	res, err = h.Reg.Register(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeLicensed, res.Status)
	assert.True(t, license.ValidLicenseKeyFormat(res.LicenseKey))
	assert.Equal(t, 3, res.MaxDevices)
	assert.Equal(t, 0, res.ActivatedDevices)

	key := res.LicenseKey

	// Registering again never re-issues.
	res, err = h.Reg.Register(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeAlreadyLicensed, res.Status)
	assert.Equal(t, key, res.LicenseKey)
}

func TestRegisterAutoActivatesFirstDevice(t *testing.T) {
	h := testutil.NewHarness(t, nil)
	ctx := context.Background()

	node := testutil.Node("a")
	dev := testutil.Device("a")
	node.DeviceInfo = &dev

	_, err := h.Reg.Register(ctx, node)
	require.NoError(t, err)
	h.Clock.Advance(16 * time.Minute)

	res, err := h.Reg.Register(ctx, node)
	require.NoError(t, err)
	require.Equal(t, license.OutcomeLicensed, res.Status)
	assert.Equal(t, 1, res.ActivatedDevices)

	vres, err := h.Svc.ValidateLicense(ctx, res.LicenseKey, &dev)
	require.NoError(t, err)
	assert.True(t, vres.Valid)
	assert.True(t, vres.DeviceActivated)
}

func TestRegisterAutoActivateDisabled(t *testing.T) {
	cfg := testutil.TestConfig()
	cfg.Quota.AutoActivate = false
	h := testutil.NewHarness(t, cfg)
	ctx := context.Background()

	node := testutil.Node("a")
	dev := testutil.Device("a")
	node.DeviceInfo = &dev

	_, err := h.Reg.Register(ctx, node)
	require.NoError(t, err)
	h.Clock.Advance(16 * time.Minute)

	res, err := h.Reg.Register(ctx, node)
	require.NoError(t, err)
	require.Equal(t, license.OutcomeLicensed, res.Status)
	assert.Equal(t, 0, res.ActivatedDevices)
}

func TestRegisterInvalidNode(t *testing.T) {
	h := testutil.NewHarness(t, nil)

	_, err := h.Reg.Register(context.Background(), license.NodeInfo{NodeID: "only-node-id"})
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestStatusLifecycle(t *testing.T) {
	h := testutil.NewHarness(t, nil)
	ctx := context.Background()
	node := testutil.Node("a")

	_, err := h.Reg.Status(ctx, node)
	require.ErrorIs(t, err, apperrors.ErrNotRegistered)

	_, err = h.Reg.Register(ctx, node)
	require.NoError(t, err)

	st, err := h.Reg.Status(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, license.OutcomePending, st.Status)
	assert.Equal(t, 15, st.RemainingMinutes)

	// Status alone promotes once the delay has elapsed; a node polling only
	// status still obtains its license.
	h.Clock.Advance(16 * time.Minute)
	st, err = h.Reg.Status(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeLicensed, st.Status)
	assert.True(t, license.ValidLicenseKeyFormat(st.LicenseKey))

	// Never both pending and licensed: subsequent status reports the same key.
	again, err := h.Reg.Status(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeLicensed, again.Status)
	assert.Equal(t, st.LicenseKey, again.LicenseKey)
}

func TestRegistrationExpiresAfterGraceWindow(t *testing.T) {
	h := testutil.NewHarness(t, nil)
	ctx := context.Background()
	node := testutil.Node("a")

	_, err := h.Reg.Register(ctx, node)
	require.NoError(t, err)

	// Past delay plus grace the registration is abandoned, even before the
	// sweep runs.
	h.Clock.Advance(2 * time.Hour)

	_, err = h.Reg.Status(ctx, node)
	require.ErrorIs(t, err, apperrors.ErrNotRegistered)

	// Registering again starts a fresh cycle rather than promoting.
	res, err := h.Reg.Register(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, license.OutcomeRegistered, res.Status)
}

func TestRegisterDistinctNodesGetDistinctKeys(t *testing.T) {
	h := testutil.NewHarness(t, nil)

	keyA := h.IssueLicense(t, testutil.Node("a"))
	keyB := h.IssueLicense(t, testutil.Node("b"))

	assert.NotEqual(t, keyA, keyB)
}
