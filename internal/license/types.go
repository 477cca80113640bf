package license

import (
	"time"

	"github.com/google/uuid"

	apperrors "nodelicense/internal/errors"
)

// LicenseStatus is the lifecycle state of a license.
type LicenseStatus string

const (
	LicenseActive  LicenseStatus = "active"
	LicenseRevoked LicenseStatus = "revoked"
)

// DeviceStatus is the lifecycle state of a device.
type DeviceStatus string

const (
	DeviceActive      DeviceStatus = "active"
	DeviceDeactivated DeviceStatus = "deactivated"
	DeviceRevoked     DeviceStatus = "revoked"
)

// DeviceInfo identifies a client installation. The same identity always
// derives the same device ID regardless of where the fields came from.
type DeviceInfo struct {
	Name      string `json:"name" validate:"required"`
	Platform  string `json:"platform" validate:"required"`
	MachineID string `json:"machine_id" validate:"required"`
}

// NodeInfo identifies a federation-capable server node asking for a license.
type NodeInfo struct {
	NodeID     string      `json:"node_id" validate:"required"`
	ServerID   string      `json:"server_id" validate:"required"`
	NodeURL    string      `json:"node_url" validate:"omitempty,url"`
	Version    string      `json:"version"`
	DeviceInfo *DeviceInfo `json:"device_info,omitempty"`
}

// RegistrationID is the composite key identifying a node across the
// registration and licensing lifecycle.
func (n NodeInfo) RegistrationID() string {
	return n.ServerID + "/" + n.NodeID
}

// License is the durable grant issued to a node. Licenses are never
// deleted; revocation is a status change.
type License struct {
	LicenseKey       string        `json:"license_key"`
	NodeID           string        `json:"node_id"`
	ServerID         string        `json:"server_id"`
	NodeURL          string        `json:"node_url"`
	Version          string        `json:"version"`
	Status           LicenseStatus `json:"status"`
	MaxDevices       int           `json:"max_devices"`
	PurchasedDevices int           `json:"purchased_devices"`
	// ActivatedDevices is an ordered set of device IDs; insertion order is
	// activation order and IDs never repeat.
	ActivatedDevices []string   `json:"activated_devices"`
	IssuedAt         time.Time  `json:"issued_at"`
	LastSeen         time.Time  `json:"last_seen"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	RevokeReason     string     `json:"revoke_reason,omitempty"`
}

// RegistrationID returns the composite node key this license was issued for.
func (l *License) RegistrationID() string {
	return l.ServerID + "/" + l.NodeID
}

// DeviceCeiling is the effective quota: base plus purchased slots.
func (l *License) DeviceCeiling() int {
	return l.MaxDevices + l.PurchasedDevices
}

// RemainingSlots reports how many more devices may activate.
func (l *License) RemainingSlots() int {
	remaining := l.DeviceCeiling() - len(l.ActivatedDevices)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HasDevice reports whether the device ID is in the active set.
func (l *License) HasDevice(deviceID string) bool {
	for _, id := range l.ActivatedDevices {
		if id == deviceID {
			return true
		}
	}
	return false
}

// removeDevice drops the device ID from the active set, preserving order.
// Returns false when the ID was not present.
func (l *License) removeDevice(deviceID string) bool {
	for i, id := range l.ActivatedDevices {
		if id == deviceID {
			l.ActivatedDevices = append(l.ActivatedDevices[:i], l.ActivatedDevices[i+1:]...)
			return true
		}
	}
	return false
}

// Device is a durable record of a client installation that activated under
// a license. Devices are never deleted; state changes flip the status.
type Device struct {
	ID            string       `json:"id"`
	LicenseKey    string       `json:"license_key"`
	Name          string       `json:"name"`
	Platform      string       `json:"platform"`
	Status        DeviceStatus `json:"status"`
	ActivationID  string       `json:"activation_id"`
	ActivatedAt   time.Time    `json:"activated_at"`
	LastSeen      time.Time    `json:"last_seen"`
	DeactivatedAt *time.Time   `json:"deactivated_at,omitempty"`
	RevokedAt     *time.Time   `json:"revoked_at,omitempty"`
	AutoActivated bool         `json:"auto_activated"`
}

// newDevice builds an active device record for a first-time activation.
func newDevice(info DeviceInfo, licenseKey string, now time.Time, autoActivated bool) *Device {
	return &Device{
		ID:            DeriveDeviceID(info),
		LicenseKey:    licenseKey,
		Name:          info.Name,
		Platform:      info.Platform,
		Status:        DeviceActive,
		ActivationID:  uuid.NewString(),
		ActivatedAt:   now,
		LastSeen:      now,
		AutoActivated: autoActivated,
	}
}

// reactivate returns a previously deactivated device to the active state
// under licenseKey, keeping its stable ID but minting a new activation ID.
func (d *Device) reactivate(licenseKey string, now time.Time) {
	d.LicenseKey = licenseKey
	d.Status = DeviceActive
	d.ActivationID = uuid.NewString()
	d.ActivatedAt = now
	d.LastSeen = now
	d.DeactivatedAt = nil
	d.AutoActivated = false
}

// RegistrationOutcome is the status reported by register and status calls.
type RegistrationOutcome string

const (
	OutcomeRegistered      RegistrationOutcome = "registered"
	OutcomePending         RegistrationOutcome = "pending"
	OutcomeAlreadyLicensed RegistrationOutcome = "already_licensed"
	OutcomeLicensed        RegistrationOutcome = "licensed"
)

// RegisterResult is returned by Registrar.Register.
type RegisterResult struct {
	Status           RegistrationOutcome `json:"status"`
	DelayMinutes     int                 `json:"delay_minutes,omitempty"`
	RemainingMinutes int                 `json:"remaining_minutes,omitempty"`
	LicenseKey       string              `json:"license_key,omitempty"`
	MaxDevices       int                 `json:"max_devices,omitempty"`
	PurchasedDevices int                 `json:"purchased_devices,omitempty"`
	ActivatedDevices int                 `json:"activated_devices,omitempty"`
}

// StatusResult is returned by Registrar.Status.
type StatusResult struct {
	Status           RegistrationOutcome `json:"status"`
	LicenseKey       string              `json:"license_key,omitempty"`
	RemainingMinutes int                 `json:"remaining_minutes,omitempty"`
	MaxDevices       int                 `json:"max_devices,omitempty"`
	PurchasedDevices int                 `json:"purchased_devices,omitempty"`
	ActivatedDevices int                 `json:"activated_devices,omitempty"`
}

// ActivateResult is returned by Service.ActivateDevice.
type ActivateResult struct {
	DeviceID         string `json:"device_id"`
	Status           string `json:"status"` // activated | already_activated
	ActivatedDevices int    `json:"activated_devices"`
	RemainingSlots   int    `json:"remaining_slots"`
}

// DeactivateResult is returned by Service.DeactivateDevice.
type DeactivateResult struct {
	ActivatedDevices int `json:"activated_devices"`
	RemainingSlots   int `json:"remaining_slots"`
}

// AddDevicesResult is returned by Service.AddPurchasedDevices.
type AddDevicesResult struct {
	PurchasedDevices int `json:"purchased_devices"`
	NewMaxDevices    int `json:"new_max_devices"`
}

// ValidateResult is returned by Service.ValidateLicense. Valid and
// DeviceActivated are deliberately independent: a license can be valid
// while the presented device is not tracked (quota exhausted).
type ValidateResult struct {
	Valid           bool             `json:"valid"`
	DeviceActivated bool             `json:"device_activated"`
	DeviceID        string           `json:"device_id,omitempty"`
	Features        map[string]any   `json:"features,omitempty"`
	Error           *apperrors.ErrorBody `json:"error,omitempty"`
}

// HeartbeatResult is returned by Service.Heartbeat.
type HeartbeatResult struct {
	OK bool `json:"ok"`
}

// LicenseSummary is the administrative projection of a license: counts
// only, no device detail.
type LicenseSummary struct {
	LicenseKey       string        `json:"license_key"`
	NodeID           string        `json:"node_id"`
	ServerID         string        `json:"server_id"`
	NodeURL          string        `json:"node_url"`
	Version          string        `json:"version"`
	Status           LicenseStatus `json:"status"`
	MaxDevices       int           `json:"max_devices"`
	PurchasedDevices int           `json:"purchased_devices"`
	ActivatedDevices int           `json:"activated_devices"`
	IssuedAt         time.Time     `json:"issued_at"`
	LastSeen         time.Time     `json:"last_seen"`
	RevokedAt        *time.Time    `json:"revoked_at,omitempty"`
	RevokeReason     string        `json:"revoke_reason,omitempty"`
}

// summarize projects a license onto its administrative summary.
func summarize(l *License) LicenseSummary {
	return LicenseSummary{
		LicenseKey:       l.LicenseKey,
		NodeID:           l.NodeID,
		ServerID:         l.ServerID,
		NodeURL:          l.NodeURL,
		Version:          l.Version,
		Status:           l.Status,
		MaxDevices:       l.MaxDevices,
		PurchasedDevices: l.PurchasedDevices,
		ActivatedDevices: len(l.ActivatedDevices),
		IssuedAt:         l.IssuedAt,
		LastSeen:         l.LastSeen,
		RevokedAt:        l.RevokedAt,
		RevokeReason:     l.RevokeReason,
	}
}
