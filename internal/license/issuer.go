package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"nodelicense/internal/store"
)

// maxKeyAttempts bounds the uniqueness re-check loop during key generation.
const maxKeyAttempts = 5

// uniqueLicenseKey generates a license key and verifies it is globally
// unused before returning it.
func (s *Service) uniqueLicenseKey(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key, err := generateLicenseKey(s.rand)
		if err != nil {
			return "", err
		}

		_, err = s.store.Get(ctx, store.LicensePrefix+key)
		if errors.Is(err, store.ErrNotFound) {
			return key, nil
		}
		if err != nil {
			return "", fmt.Errorf("check key uniqueness: %w", err)
		}
		s.logWarn(ctx, "license_key_collision", "Generated license key already exists, retrying",
			slog.Int("attempt", attempt+1))
	}
	return "", fmt.Errorf("no unique license key after %d attempts", maxKeyAttempts)
}

// issueLicense mints a license for a node whose registration delay has
// elapsed. When auto-activation is enabled and the registration carried a
// device snapshot, the first device is activated in the same step. The
// caller (the registrar) holds its own lock, so issuance and registration
// removal appear atomic to all readers.
func (s *Service) issueLicense(ctx context.Context, node NodeInfo) (*License, error) {
	key, err := s.uniqueLicenseKey(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	lic := &License{
		LicenseKey:       key,
		NodeID:           node.NodeID,
		ServerID:         node.ServerID,
		NodeURL:          node.NodeURL,
		Version:          node.Version,
		Status:           LicenseActive,
		MaxDevices:       s.quota.MaxDevices,
		ActivatedDevices: []string{},
		IssuedAt:         now,
		LastSeen:         now,
	}

	if s.quota.AutoActivate && node.DeviceInfo != nil {
		if _, err := s.attachDevice(ctx, lic, *node.DeviceInfo, true); err != nil {
			return nil, err
		}
	} else if err := s.putLicense(ctx, lic); err != nil {
		return nil, err
	}

	s.metrics.recordIssuance(ctx)
	attrs := append(licenseAttrs(key),
		slog.String("registration_id", node.RegistrationID()),
		slog.Int("max_devices", lic.MaxDevices),
		slog.Bool("auto_activated", len(lic.ActivatedDevices) > 0),
	)
	s.logInfo(ctx, "license_issued", "License issued for node", attrs...)

	return lic, nil
}
