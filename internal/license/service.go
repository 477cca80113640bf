package license

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"

	"nodelicense/internal/config"
	apperrors "nodelicense/internal/errors"
	"nodelicense/internal/store"
)

// Service is the licensing core: license issuance, device activation with
// quota enforcement, validation, heartbeats, revocation, and listing. It is
// constructed with injected store and clock dependencies so persistence and
// time can be substituted in tests.
type Service struct {
	store    store.Store
	clock    clockwork.Clock
	quota    config.QuotaConfig
	logger   *slog.Logger
	validate *validator.Validate
	metrics  *Metrics
	locks    *keyLocks
	limiter  *activationLimiter
	rand     io.Reader
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMetrics attaches OpenTelemetry metrics to the service.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRandSource overrides the randomness source used for license keys.
func WithRandSource(r io.Reader) ServiceOption {
	return func(s *Service) {
		s.rand = r
	}
}

// NewService creates the licensing service.
func NewService(st store.Store, clock clockwork.Clock, cfg *config.Config, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:    st,
		clock:    clock,
		quota:    cfg.Quota,
		logger:   logger,
		validate: validator.New(),
		locks:    newKeyLocks(),
		limiter:  newActivationLimiter(cfg.RateLimit),
		rand:     rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// getLicense loads a license record, mapping a missing key onto the
// domain's invalid-key error.
func (s *Service) getLicense(ctx context.Context, licenseKey string) (*License, error) {
	data, err := s.store.Get(ctx, store.LicensePrefix+licenseKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.ErrInvalidLicenseKey
	}
	if err != nil {
		return nil, fmt.Errorf("load license: %w", err)
	}

	var lic License
	if err := json.Unmarshal(data, &lic); err != nil {
		return nil, fmt.Errorf("decode license %s: %w", maskLicenseKey(licenseKey), err)
	}
	return &lic, nil
}

func (s *Service) putLicense(ctx context.Context, lic *License) error {
	data, err := json.Marshal(lic)
	if err != nil {
		return fmt.Errorf("encode license: %w", err)
	}
	if err := s.store.Put(ctx, store.LicensePrefix+lic.LicenseKey, data); err != nil {
		return fmt.Errorf("persist license: %w", err)
	}
	return nil
}

func (s *Service) getDevice(ctx context.Context, deviceID string) (*Device, error) {
	data, err := s.store.Get(ctx, store.DevicePrefix+deviceID)
	if err != nil {
		return nil, err
	}

	var dev Device
	if err := json.Unmarshal(data, &dev); err != nil {
		return nil, fmt.Errorf("decode device %s: %w", deviceID, err)
	}
	return &dev, nil
}

func (s *Service) putDevice(ctx context.Context, dev *Device) error {
	data, err := json.Marshal(dev)
	if err != nil {
		return fmt.Errorf("encode device: %w", err)
	}
	if err := s.store.Put(ctx, store.DevicePrefix+dev.ID, data); err != nil {
		return fmt.Errorf("persist device: %w", err)
	}
	return nil
}

// findActiveLicense scans for the active license issued to a registration
// ID. Revoked licenses are skipped: a revoked node must run a fresh
// registration cycle, and at most one active license exists per node.
func (s *Service) findActiveLicense(ctx context.Context, registrationID string) (*License, error) {
	records, err := s.store.List(ctx, store.LicensePrefix)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}

	for _, data := range records {
		var lic License
		if err := json.Unmarshal(data, &lic); err != nil {
			return nil, fmt.Errorf("decode license record: %w", err)
		}
		if lic.Status == LicenseActive && lic.RegistrationID() == registrationID {
			return &lic, nil
		}
	}
	return nil, nil
}
