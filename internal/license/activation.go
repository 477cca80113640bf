package license

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "nodelicense/internal/errors"
	"nodelicense/internal/store"
)

// attachDevice creates or reactivates the device for info and appends it to
// the license's active set, persisting the device record before the license
// so the set never references a missing record. Callers must hold the
// per-license lock (or the registrar lock during issuance) and must have
// verified a free slot.
func (s *Service) attachDevice(ctx context.Context, lic *License, info DeviceInfo, autoActivated bool) (*Device, error) {
	now := s.clock.Now()
	id := DeriveDeviceID(info)

	dev, err := s.getDevice(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		dev = newDevice(info, lic.LicenseKey, now, autoActivated)
	case err != nil:
		return nil, err
	default:
		dev.reactivate(lic.LicenseKey, now)
		dev.AutoActivated = autoActivated
	}

	lic.ActivatedDevices = append(lic.ActivatedDevices, id)
	lic.LastSeen = now

	if err := s.putDevice(ctx, dev); err != nil {
		return nil, err
	}
	if err := s.putLicense(ctx, lic); err != nil {
		return nil, err
	}
	return dev, nil
}

// touchLicense refreshes liveness timestamps under the per-license lock,
// re-reading the record so the write can never clobber a concurrent
// mutation of the active set.
func (s *Service) touchLicense(ctx context.Context, licenseKey, deviceID string) error {
	unlock := s.locks.acquire(licenseKey)
	defer unlock()

	lic, err := s.getLicense(ctx, licenseKey)
	if err != nil {
		return err
	}
	return s.touchLocked(ctx, lic, deviceID)
}

// touchLocked updates LastSeen on the license and, when the device is on
// the active set, on its record. Callers must hold the per-license lock.
func (s *Service) touchLocked(ctx context.Context, lic *License, deviceID string) error {
	now := s.clock.Now()
	lic.LastSeen = now
	if err := s.putLicense(ctx, lic); err != nil {
		return err
	}
	if deviceID == "" || !lic.HasDevice(deviceID) {
		return nil
	}

	dev, err := s.getDevice(ctx, deviceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	dev.LastSeen = now
	return s.putDevice(ctx, dev)
}

// ActivateDevice activates a device under the license, enforcing the quota
// ceiling. Activating a device that is already on the active set behaves as
// a heartbeat and reports already_activated.
func (s *Service) ActivateDevice(ctx context.Context, licenseKey string, info DeviceInfo) (*ActivateResult, error) {
	start := time.Now()
	defer func() { s.metrics.recordDuration(ctx, "activate", start) }()

	// Reject malformed keys before they reach the limiter or the lock
	// registry, so neither grows with garbage input.
	if !ValidLicenseKeyFormat(licenseKey) {
		s.metrics.recordActivation(ctx, "invalid_key")
		return nil, apperrors.ErrInvalidLicenseKey
	}
	if err := s.validate.Struct(info); err != nil {
		return nil, apperrors.InvalidInput("device info: %v", err)
	}
	if !s.limiter.allow(licenseKey) {
		s.metrics.recordActivation(ctx, "rate_limited")
		s.logWarn(ctx, "device_activation", "Activation rate limit hit", licenseAttrs(licenseKey)...)
		return nil, apperrors.ErrRateLimited
	}

	unlock := s.locks.acquire(licenseKey)
	defer unlock()

	lic, err := s.getLicense(ctx, licenseKey)
	if err != nil {
		s.metrics.recordActivation(ctx, "invalid_key")
		return nil, err
	}
	if lic.Status == LicenseRevoked {
		s.metrics.recordActivation(ctx, "revoked")
		return nil, apperrors.ErrLicenseRevoked
	}

	id := DeriveDeviceID(info)

	if lic.HasDevice(id) {
		if err := s.touchLocked(ctx, lic, id); err != nil {
			return nil, err
		}
		s.metrics.recordActivation(ctx, "already_activated")
		return &ActivateResult{
			DeviceID:         id,
			Status:           "already_activated",
			ActivatedDevices: len(lic.ActivatedDevices),
			RemainingSlots:   lic.RemainingSlots(),
		}, nil
	}

	if len(lic.ActivatedDevices) >= lic.DeviceCeiling() {
		s.metrics.recordActivation(ctx, "limit_reached")
		attrs := append(licenseAttrs(licenseKey),
			slog.Int("activated_devices", len(lic.ActivatedDevices)),
			slog.Int("device_ceiling", lic.DeviceCeiling()),
		)
		s.logInfo(ctx, "device_activation", "Device limit reached", attrs...)
		return nil, apperrors.ErrDeviceLimitReached
	}

	dev, err := s.attachDevice(ctx, lic, info, false)
	if err != nil {
		return nil, err
	}

	s.metrics.recordActivation(ctx, "activated")
	attrs := append(licenseAttrs(licenseKey),
		slog.String("device_id", dev.ID),
		slog.Int("activated_devices", len(lic.ActivatedDevices)),
		slog.Int("remaining_slots", lic.RemainingSlots()),
	)
	s.logInfo(ctx, "device_activation", "Device activated", attrs...)

	return &ActivateResult{
		DeviceID:         dev.ID,
		Status:           "activated",
		ActivatedDevices: len(lic.ActivatedDevices),
		RemainingSlots:   lic.RemainingSlots(),
	}, nil
}

// DeactivateDevice removes a device from the license's active set and flips
// its record to deactivated. This is the only way to free a quota slot
// without purchasing more.
func (s *Service) DeactivateDevice(ctx context.Context, licenseKey, deviceID string) (*DeactivateResult, error) {
	start := time.Now()
	defer func() { s.metrics.recordDuration(ctx, "deactivate", start) }()

	if !ValidLicenseKeyFormat(licenseKey) {
		return nil, apperrors.ErrInvalidLicenseKey
	}

	unlock := s.locks.acquire(licenseKey)
	defer unlock()

	lic, err := s.getLicense(ctx, licenseKey)
	if err != nil {
		return nil, err
	}
	if lic.Status == LicenseRevoked {
		return nil, apperrors.ErrLicenseRevoked
	}
	if !lic.removeDevice(deviceID) {
		return nil, apperrors.ErrDeviceNotFound
	}

	now := s.clock.Now()
	lic.LastSeen = now

	// Flip the device record before shrinking the active set, the inverse
	// of attachDevice's order: a failure here leaves the slot consumed, not
	// an active device that no license references.
	dev, err := s.getDevice(ctx, deviceID)
	if err == nil {
		dev.Status = DeviceDeactivated
		dev.DeactivatedAt = &now
		dev.LastSeen = now
		if err := s.putDevice(ctx, dev); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if err := s.putLicense(ctx, lic); err != nil {
		return nil, err
	}

	attrs := append(licenseAttrs(licenseKey),
		slog.String("device_id", deviceID),
		slog.Int("remaining_slots", lic.RemainingSlots()),
	)
	s.logInfo(ctx, "device_deactivation", "Device deactivated", attrs...)

	return &DeactivateResult{
		ActivatedDevices: len(lic.ActivatedDevices),
		RemainingSlots:   lic.RemainingSlots(),
	}, nil
}

// AddPurchasedDevices raises the license's effective device ceiling by
// quantity purchased slots. The active set is untouched.
func (s *Service) AddPurchasedDevices(ctx context.Context, licenseKey string, quantity int) (*AddDevicesResult, error) {
	if quantity < 1 {
		return nil, apperrors.InvalidInput("quantity must be at least 1, got %d", quantity)
	}
	if !ValidLicenseKeyFormat(licenseKey) {
		return nil, apperrors.ErrInvalidLicenseKey
	}

	unlock := s.locks.acquire(licenseKey)
	defer unlock()

	lic, err := s.getLicense(ctx, licenseKey)
	if err != nil {
		return nil, err
	}
	if lic.Status == LicenseRevoked {
		return nil, apperrors.ErrLicenseRevoked
	}

	lic.PurchasedDevices += quantity
	if err := s.putLicense(ctx, lic); err != nil {
		return nil, err
	}

	attrs := append(licenseAttrs(licenseKey),
		slog.Int("quantity", quantity),
		slog.Int("new_ceiling", lic.DeviceCeiling()),
	)
	s.logInfo(ctx, "purchased_devices_added", "Purchased device slots added", attrs...)

	return &AddDevicesResult{
		PurchasedDevices: lic.PurchasedDevices,
		NewMaxDevices:    lic.DeviceCeiling(),
	}, nil
}

// ValidateLicense is the hot path invoked on every authenticated use. When
// a device snapshot is presented and the device is not yet activated, it
// attempts transparent auto-activation; if the quota is exhausted the
// license stays valid but the device is reported as not activated, with a
// distinct error body the caller can surface for device management.
//
// Reads are lock-free; every license write, including LastSeen refreshes,
// is serialized through the per-license lock against a re-read record.
func (s *Service) ValidateLicense(ctx context.Context, licenseKey string, info *DeviceInfo) (*ValidateResult, error) {
	start := time.Now()
	defer func() { s.metrics.recordDuration(ctx, "validate", start) }()

	lic, err := s.getLicense(ctx, licenseKey)
	if err != nil {
		s.metrics.recordValidation(ctx, "invalid_key")
		return nil, err
	}
	if lic.Status != LicenseActive {
		s.metrics.recordValidation(ctx, "revoked")
		return nil, apperrors.ErrLicenseRevoked
	}

	result := &ValidateResult{
		Valid:    true,
		Features: featuresFor(lic),
	}

	if info == nil {
		if err := s.touchLicense(ctx, licenseKey, ""); err != nil {
			return nil, err
		}
		s.metrics.recordValidation(ctx, "valid")
		return result, nil
	}

	id := DeriveDeviceID(*info)
	result.DeviceID = id

	if lic.HasDevice(id) {
		if err := s.touchLicense(ctx, licenseKey, id); err != nil {
			return nil, err
		}
		result.DeviceActivated = true
		s.metrics.recordValidation(ctx, "valid")
		return result, nil
	}

	// The device is not on the snapshot we read; re-check and auto-activate
	// under the per-license lock.
	unlock := s.locks.acquire(licenseKey)
	defer unlock()

	lic, err = s.getLicense(ctx, licenseKey)
	if err != nil {
		return nil, err
	}
	if lic.Status != LicenseActive {
		s.metrics.recordValidation(ctx, "revoked")
		return nil, apperrors.ErrLicenseRevoked
	}
	result.Features = featuresFor(lic)

	switch {
	case lic.HasDevice(id):
		// Another caller activated this device since the first read.
		if err := s.touchLocked(ctx, lic, id); err != nil {
			return nil, err
		}

	case len(lic.ActivatedDevices) >= lic.DeviceCeiling():
		if err := s.touchLocked(ctx, lic, ""); err != nil {
			return nil, err
		}
		result.Error = apperrors.BodyFor(apperrors.ErrDeviceLimitReached)
		s.metrics.recordValidation(ctx, "valid_device_untracked")
		return result, nil

	default:
		if _, err := s.attachDevice(ctx, lic, *info, true); err != nil {
			return nil, err
		}
		s.metrics.recordActivation(ctx, "auto_activated")
		attrs := append(licenseAttrs(licenseKey), slog.String("device_id", id))
		s.logInfo(ctx, "device_auto_activation", "Device auto-activated during validation", attrs...)
		result.Features = featuresFor(lic)
	}

	result.DeviceActivated = true
	s.metrics.recordValidation(ctx, "valid")
	return result, nil
}

// Heartbeat refreshes liveness timestamps. It never enforces quota and
// tolerates unknown devices: an already-activated client must not be
// blocked by a stale or missing device record.
func (s *Service) Heartbeat(ctx context.Context, licenseKey string, info *DeviceInfo) (*HeartbeatResult, error) {
	lic, err := s.getLicense(ctx, licenseKey)
	if err != nil {
		return nil, err
	}
	if lic.Status != LicenseActive {
		return nil, apperrors.ErrLicenseRevoked
	}

	deviceID := ""
	if info != nil {
		deviceID = DeriveDeviceID(*info)
	}
	if err := s.touchLicense(ctx, licenseKey, deviceID); err != nil {
		return nil, err
	}
	return &HeartbeatResult{OK: true}, nil
}

// featuresFor builds the entitlement summary returned on validation.
func featuresFor(lic *License) map[string]any {
	return map[string]any{
		"federation":        true,
		"max_devices":       lic.DeviceCeiling(),
		"base_devices":      lic.MaxDevices,
		"purchased_devices": lic.PurchasedDevices,
		"active_devices":    len(lic.ActivatedDevices),
	}
}
