// Package errors defines the licensing service error taxonomy. Domain
// failures are sentinel errors so call sites can use errors.Is, and every
// sentinel maps onto a stable error code plus a structured result envelope
// for callers at the service boundary. Nothing here is fatal to the process.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for license and device operations.
var (
	ErrInvalidLicenseKey  = errors.New("invalid license key")
	ErrNotRegistered      = errors.New("node is not registered")
	ErrDeviceLimitReached = errors.New("device limit reached")
	ErrDeviceNotFound     = errors.New("device not found on license")
	ErrLicenseRevoked     = errors.New("license is revoked")
	ErrRateLimited        = errors.New("too many activation attempts")
	ErrInvalidInput       = errors.New("invalid input")
)

// Stable error codes returned to callers.
const (
	CodeInvalidLicenseKey  = "INVALID_LICENSE_KEY"
	CodeNotRegistered      = "NOT_REGISTERED"
	CodeDeviceLimitReached = "DEVICE_LIMIT_REACHED"
	CodeDeviceNotFound     = "DEVICE_NOT_FOUND"
	CodeLicenseRevoked     = "LICENSE_REVOKED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeInternal           = "INTERNAL_ERROR"
)

// ErrorBody is the error half of a structured result.
type ErrorBody struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Guidance string         `json:"guidance,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// Result is the envelope every operation result is reported in. Errors are
// returned as data, never thrown across the service boundary.
type Result struct {
	Success bool       `json:"success"`
	Error   *ErrorBody `json:"error,omitempty"`
	Data    any        `json:"data,omitempty"`
}

// OK wraps a successful operation payload.
func OK(data any) *Result {
	return &Result{Success: true, Data: data}
}

// Failure builds the failed-result envelope for a domain error.
func Failure(err error) *Result {
	return &Result{Success: false, Error: BodyFor(err)}
}

// BodyFor maps a domain error onto its code, message, and guidance text.
// Unrecognized errors map to INTERNAL_ERROR with the message preserved.
func BodyFor(err error) *ErrorBody {
	switch {
	case errors.Is(err, ErrInvalidLicenseKey):
		return &ErrorBody{
			Code:    CodeInvalidLicenseKey,
			Message: "The provided license key is unknown.",
		}
	case errors.Is(err, ErrNotRegistered):
		return &ErrorBody{
			Code:     CodeNotRegistered,
			Message:  "No pending registration or license exists for this node.",
			Guidance: "Call register to start the licensing process.",
		}
	case errors.Is(err, ErrDeviceLimitReached):
		return &ErrorBody{
			Code:     CodeDeviceLimitReached,
			Message:  "All device slots for this license are in use.",
			Guidance: "Deactivate an existing device or purchase additional device slots.",
		}
	case errors.Is(err, ErrDeviceNotFound):
		return &ErrorBody{
			Code:    CodeDeviceNotFound,
			Message: "The device is not on this license's active set.",
		}
	case errors.Is(err, ErrLicenseRevoked):
		return &ErrorBody{
			Code:     CodeLicenseRevoked,
			Message:  "This license has been revoked.",
			Guidance: "Revocation is permanent; register the node again to obtain a new license.",
		}
	case errors.Is(err, ErrRateLimited):
		return &ErrorBody{
			Code:     CodeRateLimited,
			Message:  "Too many activation attempts for this license.",
			Guidance: "Wait before retrying.",
		}
	case errors.Is(err, ErrInvalidInput):
		return &ErrorBody{
			Code:    CodeInvalidInput,
			Message: err.Error(),
		}
	default:
		return &ErrorBody{
			Code:    CodeInternal,
			Message: err.Error(),
		}
	}
}

// InvalidInput wraps a validation failure so it maps to INVALID_INPUT while
// keeping the field-level detail in the message.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
