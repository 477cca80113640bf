package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBodyForCodes(t *testing.T) {
	tests := []struct {
		err          error
		code         string
		wantGuidance bool
	}{
		{ErrInvalidLicenseKey, CodeInvalidLicenseKey, false},
		{ErrNotRegistered, CodeNotRegistered, true},
		{ErrDeviceLimitReached, CodeDeviceLimitReached, true},
		{ErrDeviceNotFound, CodeDeviceNotFound, false},
		{ErrLicenseRevoked, CodeLicenseRevoked, true},
		{ErrRateLimited, CodeRateLimited, true},
		{errors.New("disk on fire"), CodeInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			body := BodyFor(tt.err)
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Message)
			if tt.wantGuidance {
				assert.NotEmpty(t, body.Guidance, "callers need an actionable next step")
			}
		})
	}
}

func TestBodyForWrappedError(t *testing.T) {
	wrapped := InvalidInput("quantity must be at least 1, got %d", 0)

	require.ErrorIs(t, wrapped, ErrInvalidInput)
	body := BodyFor(wrapped)
	assert.Equal(t, CodeInvalidInput, body.Code)
	assert.Contains(t, body.Message, "quantity must be at least 1")
}

func TestResultEnvelopes(t *testing.T) {
	ok := OK(map[string]int{"devices": 2})
	assert.True(t, ok.Success)
	assert.Nil(t, ok.Error)
	assert.NotNil(t, ok.Data)

	failed := Failure(ErrDeviceLimitReached)
	assert.False(t, failed.Success)
	require.NotNil(t, failed.Error)
	assert.Equal(t, CodeDeviceLimitReached, failed.Error.Code)
	assert.Nil(t, failed.Data)
}
