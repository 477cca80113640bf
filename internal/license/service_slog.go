package license

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
)

// logAction logs a structured service action. License keys must never be
// logged verbatim; callers pass them through maskLicenseKey and
// hashLicenseKey.
func (s *Service) logAction(ctx context.Context, level slog.Level, action, result string, attrs ...slog.Attr) {
	if s.logger == nil {
		return
	}
	all := []slog.Attr{
		slog.String("component", "license_service"),
		slog.String("action", action),
	}
	all = append(all, attrs...)
	s.logger.LogAttrs(ctx, level, result, all...)
}

func (s *Service) logDebug(ctx context.Context, action, result string, attrs ...slog.Attr) {
	s.logAction(ctx, slog.LevelDebug, action, result, attrs...)
}

func (s *Service) logInfo(ctx context.Context, action, result string, attrs ...slog.Attr) {
	s.logAction(ctx, slog.LevelInfo, action, result, attrs...)
}

func (s *Service) logWarn(ctx context.Context, action, result string, attrs ...slog.Attr) {
	s.logAction(ctx, slog.LevelWarn, action, result, attrs...)
}

func (s *Service) logError(ctx context.Context, action, result string, attrs ...slog.Attr) {
	s.logAction(ctx, slog.LevelError, action, result, attrs...)
}

// licenseAttrs returns the standard masked attributes for a license key.
func licenseAttrs(licenseKey string) []slog.Attr {
	return []slog.Attr{
		slog.String("license_key_masked", maskLicenseKey(licenseKey)),
		slog.String("license_key_hash", hashLicenseKey(licenseKey)),
	}
}

// maskLicenseKey keeps the first and last groups for operator recognition.
func maskLicenseKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:7] + "****" + key[len(key)-4:]
}

// hashLicenseKey returns a short hash for audit correlation across logs.
func hashLicenseKey(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}
