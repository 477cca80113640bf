// Package testutil provides shared fixtures for licensing service tests.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"nodelicense/internal/config"
	"nodelicense/internal/license"
	"nodelicense/internal/store"
)

// Epoch is the fixed instant fake clocks start at.
var Epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestConfig returns a config with the standard timings used in tests.
func TestConfig() *config.Config {
	cfg := config.Default()
	cfg.Registration.Delay = 15 * time.Minute
	cfg.Registration.GraceWindow = time.Hour
	cfg.Registration.SweepInterval = time.Minute
	cfg.Quota.MaxDevices = 3
	cfg.Quota.AutoActivate = true
	return &cfg
}

// NewStore opens a file store under a temp directory.
func NewStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.OpenFileStore(filepath.Join(t.TempDir(), "licenses.json"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	return st
}

// Harness wires a licensing service and registrar on a fake clock and a
// temp file store. The sweep loop is not started; tests drive time
// explicitly through Clock.
type Harness struct {
	Cfg   *config.Config
	Store store.Store
	Clock *clockwork.FakeClock
	Svc   *license.Service
	Reg   *license.Registrar
}

// NewHarness builds the full fixture. A nil cfg uses TestConfig. The clock
// starts at Epoch.
func NewHarness(t *testing.T, cfg *config.Config, opts ...license.ServiceOption) *Harness {
	t.Helper()
	if cfg == nil {
		cfg = TestConfig()
	}
	st := NewStore(t)
	clock := clockwork.NewFakeClockAt(Epoch)
	svc := license.NewService(st, clock, cfg, discardLogger(), opts...)
	reg := license.NewRegistrar(svc, clock, cfg.Registration, discardLogger())
	return &Harness{
		Cfg:   cfg,
		Store: st,
		Clock: clock,
		Svc:   svc,
		Reg:   reg,
	}
}

// IssueLicense walks a node through the full registration cycle and
// returns the issued license key. It advances the clock past the delay.
func (h *Harness) IssueLicense(t *testing.T, node license.NodeInfo) string {
	t.Helper()
	ctx := context.Background()

	res, err := h.Reg.Register(ctx, node)
	require.NoError(t, err)
	require.Equal(t, license.OutcomeRegistered, res.Status)

	h.Clock.Advance(h.Cfg.Registration.Delay + time.Second)

	res, err = h.Reg.Register(ctx, node)
	require.NoError(t, err)
	require.Equal(t, license.OutcomeLicensed, res.Status)
	require.NotEmpty(t, res.LicenseKey)
	return res.LicenseKey
}

// Node returns a valid node identity. Suffix varies the identity so tests
// can register distinct nodes.
func Node(suffix string) license.NodeInfo {
	return license.NodeInfo{
		NodeID:   "node-" + suffix,
		ServerID: "server-" + suffix,
		NodeURL:  "https://node-" + suffix + ".example.com",
		Version:  "1.4.2",
	}
}

// Device returns a valid device identity varying on suffix.
func Device(suffix string) license.DeviceInfo {
	return license.DeviceInfo{
		Name:      "workstation-" + suffix,
		Platform:  "linux",
		MachineID: "machine-" + suffix,
	}
}
