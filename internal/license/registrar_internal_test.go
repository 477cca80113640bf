package license

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodelicense/internal/config"
	"nodelicense/internal/store"
)

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *clockwork.FakeClock) {
	t.Helper()
	st, err := store.OpenFileStore(filepath.Join(t.TempDir(), "licenses.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })

	cfg := config.Default()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewService(st, clock, &cfg, nil, opts...), clock
}

func TestUniqueLicenseKeyRetriesOnCollision(t *testing.T) {
	ctx := context.Background()

	colliding := []byte{0x1a, 0x2b, 0x3c, 0x4d, 0x5e, 0x6f, 0x7a, 0x8b}
	fresh := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	svc, _ := newTestService(t, WithRandSource(bytes.NewReader(append(colliding, fresh...))))

	taken, err := json.Marshal(&License{LicenseKey: "VL-1A2B-3C4D-5E6F-7A8B", Status: LicenseActive})
	require.NoError(t, err)
	require.NoError(t, svc.store.Put(ctx, store.LicensePrefix+"VL-1A2B-3C4D-5E6F-7A8B", taken))

	key, err := svc.uniqueLicenseKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "VL-0000-0000-0000-0000", key)
}

func TestUniqueLicenseKeyGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()

	// Every attempt reads the same bytes, so every attempt collides.
	same := bytes.Repeat([]byte{0x1a, 0x2b, 0x3c, 0x4d, 0x5e, 0x6f, 0x7a, 0x8b}, maxKeyAttempts)
	svc, _ := newTestService(t, WithRandSource(bytes.NewReader(same)))

	taken, err := json.Marshal(&License{LicenseKey: "VL-1A2B-3C4D-5E6F-7A8B", Status: LicenseActive})
	require.NoError(t, err)
	require.NoError(t, svc.store.Put(ctx, store.LicensePrefix+"VL-1A2B-3C4D-5E6F-7A8B", taken))

	_, err = svc.uniqueLicenseKey(ctx)
	require.Error(t, err)
}

func TestSweepExpiredRemovesOnlyExpired(t *testing.T) {
	svc, clock := newTestService(t)
	cfg := config.RegistrationConfig{
		Delay:         15 * time.Minute,
		GraceWindow:   time.Hour,
		SweepInterval: time.Minute,
	}
	r := NewRegistrar(svc, clock, cfg, nil)

	now := clock.Now()
	r.pending["server-a/node-a"] = &registration{
		node:      NodeInfo{NodeID: "node-a", ServerID: "server-a"},
		startedAt: now.Add(-2 * time.Hour),
		expiresAt: now.Add(-45 * time.Minute),
	}
	r.pending["server-b/node-b"] = &registration{
		node:      NodeInfo{NodeID: "node-b", ServerID: "server-b"},
		startedAt: now,
		expiresAt: now.Add(cfg.Delay + cfg.GraceWindow),
	}

	swept := r.sweepExpired(context.Background())

	assert.Equal(t, 1, swept)
	assert.NotContains(t, r.pending, "server-a/node-a")
	assert.Contains(t, r.pending, "server-b/node-b")
}

func TestRegistrarStartStop(t *testing.T) {
	svc, clock := newTestService(t)
	cfg := config.RegistrationConfig{
		Delay:         15 * time.Minute,
		GraceWindow:   time.Hour,
		SweepInterval: time.Minute,
	}
	r := NewRegistrar(svc, clock, cfg, nil)

	r.Start()
	clock.BlockUntil(1)
	r.Stop()
}

func TestCeilMinutes(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{-time.Minute, 0},
		{time.Nanosecond, 1},
		{59 * time.Second, 1},
		{time.Minute, 1},
		{time.Minute + time.Second, 2},
		{15 * time.Minute, 15},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ceilMinutes(tt.d), "ceilMinutes(%s)", tt.d)
	}
}
