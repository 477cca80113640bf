package license

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	apperrors "nodelicense/internal/errors"
	"nodelicense/internal/store"
)

// RevokeLicense terminally disables a license and cascades to its devices.
// The license record is the source of truth, so it is flipped first; a
// crash mid-cascade leaves devices marked active under a revoked license,
// which every read path already rejects.
func (s *Service) RevokeLicense(ctx context.Context, licenseKey, reason string) error {
	if !ValidLicenseKeyFormat(licenseKey) {
		return apperrors.ErrInvalidLicenseKey
	}

	unlock := s.locks.acquire(licenseKey)
	defer unlock()

	lic, err := s.getLicense(ctx, licenseKey)
	if err != nil {
		return err
	}
	if lic.Status == LicenseRevoked {
		return apperrors.ErrLicenseRevoked
	}

	now := s.clock.Now()
	lic.Status = LicenseRevoked
	lic.RevokedAt = &now
	lic.RevokeReason = reason
	if err := s.putLicense(ctx, lic); err != nil {
		return err
	}

	for _, deviceID := range lic.ActivatedDevices {
		dev, err := s.getDevice(ctx, deviceID)
		if err != nil {
			s.logWarn(ctx, "license_revocation", "Device record missing during revocation cascade",
				slog.String("device_id", deviceID))
			continue
		}
		dev.Status = DeviceRevoked
		dev.RevokedAt = &now
		if err := s.putDevice(ctx, dev); err != nil {
			return fmt.Errorf("revoke device %s: %w", deviceID, err)
		}
	}

	s.metrics.recordRevocation(ctx)
	attrs := append(licenseAttrs(licenseKey),
		slog.String("reason", reason),
		slog.Int("devices_revoked", len(lic.ActivatedDevices)),
	)
	s.logInfo(ctx, "license_revocation", "License revoked", attrs...)

	return nil
}

// ListLicenses returns administrative summaries of every license, active
// and revoked, ordered by license key for stable output.
func (s *Service) ListLicenses(ctx context.Context) ([]LicenseSummary, error) {
	records, err := s.store.List(ctx, store.LicensePrefix)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}

	summaries := make([]LicenseSummary, 0, len(records))
	for key, data := range records {
		var lic License
		if err := json.Unmarshal(data, &lic); err != nil {
			return nil, fmt.Errorf("decode license record %s: %w", key, err)
		}
		summaries = append(summaries, summarize(&lic))
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LicenseKey < summaries[j].LicenseKey
	})
	return summaries, nil
}
