package license

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"nodelicense/internal/config"
	apperrors "nodelicense/internal/errors"
)

// registration is a node waiting out the issuance delay. Entries live in
// memory only; a restart simply restarts the delay.
type registration struct {
	node      NodeInfo
	startedAt time.Time
	expiresAt time.Time
}

// Registrar tracks node registrations and promotes them to licenses once
// the issuance delay has elapsed. Promotion is lazy (checked on every
// Register and Status call) so a stalled sweep never delays a node, and a
// background sweep evicts registrations that outlived the grace window
// without ever polling.
type Registrar struct {
	svc    *Service
	clock  clockwork.Clock
	cfg    config.RegistrationConfig
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*registration

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewRegistrar creates a registrar on top of the licensing service. Call
// Start to run the expiry sweep and Stop on shutdown.
func NewRegistrar(svc *Service, clock clockwork.Clock, cfg config.RegistrationConfig, logger *slog.Logger) *Registrar {
	return &Registrar{
		svc:     svc,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
		pending: make(map[string]*registration),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Register records a node's intent to obtain a license. The call is
// idempotent: repeating it reports progress, and once the delay has
// elapsed it promotes the registration and returns the fresh license.
func (r *Registrar) Register(ctx context.Context, node NodeInfo) (*RegisterResult, error) {
	if err := r.svc.validate.Struct(node); err != nil {
		return nil, apperrors.InvalidInput("node info: %v", err)
	}
	if node.DeviceInfo != nil {
		if err := r.svc.validate.Struct(*node.DeviceInfo); err != nil {
			return nil, apperrors.InvalidInput("device info: %v", err)
		}
	}

	regID := node.RegistrationID()

	r.mu.Lock()
	defer r.mu.Unlock()

	lic, err := r.svc.findActiveLicense(ctx, regID)
	if err != nil {
		return nil, err
	}
	if lic != nil {
		r.svc.metrics.recordRegistration(ctx, string(OutcomeAlreadyLicensed))
		return &RegisterResult{
			Status:           OutcomeAlreadyLicensed,
			LicenseKey:       lic.LicenseKey,
			MaxDevices:       lic.MaxDevices,
			PurchasedDevices: lic.PurchasedDevices,
			ActivatedDevices: len(lic.ActivatedDevices),
		}, nil
	}

	now := r.clock.Now()

	if reg, ok := r.pending[regID]; ok && now.After(reg.expiresAt) {
		// Outlived the grace window without claiming its license; the node
		// starts a fresh cycle below.
		delete(r.pending, regID)
	} else if ok {
		remaining := r.cfg.Delay - now.Sub(reg.startedAt)
		if remaining > 0 {
			r.svc.metrics.recordRegistration(ctx, string(OutcomePending))
			return &RegisterResult{
				Status:           OutcomePending,
				RemainingMinutes: ceilMinutes(remaining),
			}, nil
		}

		lic, err := r.promoteLocked(ctx, reg)
		if err != nil {
			return nil, err
		}
		r.svc.metrics.recordRegistration(ctx, string(OutcomeLicensed))
		return &RegisterResult{
			Status:           OutcomeLicensed,
			LicenseKey:       lic.LicenseKey,
			MaxDevices:       lic.MaxDevices,
			PurchasedDevices: lic.PurchasedDevices,
			ActivatedDevices: len(lic.ActivatedDevices),
		}, nil
	}

	r.pending[regID] = &registration{
		node:      node,
		startedAt: now,
		expiresAt: now.Add(r.cfg.Delay + r.cfg.GraceWindow),
	}

	r.svc.metrics.recordRegistration(ctx, string(OutcomeRegistered))
	r.logInfo(ctx, "node_registration", "Node registered, license issuance delayed",
		slog.String("registration_id", regID),
		slog.Int("delay_minutes", ceilMinutes(r.cfg.Delay)),
	)

	return &RegisterResult{
		Status:       OutcomeRegistered,
		DelayMinutes: ceilMinutes(r.cfg.Delay),
	}, nil
}

// Status reports where a node stands in the lifecycle. Like Register, it
// promotes a registration whose delay has elapsed, so a node polling
// Status alone still obtains its license.
func (r *Registrar) Status(ctx context.Context, node NodeInfo) (*StatusResult, error) {
	if err := r.svc.validate.Struct(node); err != nil {
		return nil, apperrors.InvalidInput("node info: %v", err)
	}

	regID := node.RegistrationID()

	r.mu.Lock()
	defer r.mu.Unlock()

	lic, err := r.svc.findActiveLicense(ctx, regID)
	if err != nil {
		return nil, err
	}
	if lic != nil {
		return &StatusResult{
			Status:           OutcomeLicensed,
			LicenseKey:       lic.LicenseKey,
			MaxDevices:       lic.MaxDevices,
			PurchasedDevices: lic.PurchasedDevices,
			ActivatedDevices: len(lic.ActivatedDevices),
		}, nil
	}

	reg, ok := r.pending[regID]
	if !ok {
		return nil, apperrors.ErrNotRegistered
	}

	now := r.clock.Now()
	if now.After(reg.expiresAt) {
		delete(r.pending, regID)
		return nil, apperrors.ErrNotRegistered
	}

	remaining := r.cfg.Delay - now.Sub(reg.startedAt)
	if remaining > 0 {
		return &StatusResult{
			Status:           OutcomePending,
			RemainingMinutes: ceilMinutes(remaining),
		}, nil
	}

	promoted, err := r.promoteLocked(ctx, reg)
	if err != nil {
		return nil, err
	}
	return &StatusResult{
		Status:           OutcomeLicensed,
		LicenseKey:       promoted.LicenseKey,
		MaxDevices:       promoted.MaxDevices,
		PurchasedDevices: promoted.PurchasedDevices,
		ActivatedDevices: len(promoted.ActivatedDevices),
	}, nil
}

// promoteLocked issues the license and removes the registration in one
// step under r.mu, so no reader ever observes a node as both pending and
// licensed.
func (r *Registrar) promoteLocked(ctx context.Context, reg *registration) (*License, error) {
	lic, err := r.svc.issueLicense(ctx, reg.node)
	if err != nil {
		return nil, err
	}
	delete(r.pending, reg.node.RegistrationID())

	r.logInfo(ctx, "node_registration", "Registration promoted to license",
		slog.String("registration_id", reg.node.RegistrationID()))
	return lic, nil
}

// Start launches the background sweep that evicts registrations whose
// grace window has passed.
func (r *Registrar) Start() {
	go r.sweepLoop()
}

// Stop terminates the sweep loop and waits for it to exit. Safe to call
// more than once.
func (r *Registrar) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	<-r.done
}

func (r *Registrar) sweepLoop() {
	defer close(r.done)

	ticker := r.clock.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.Chan():
			r.sweepExpired(context.Background())
		}
	}
}

// sweepExpired removes registrations that were never claimed within the
// delay plus grace window.
func (r *Registrar) sweepExpired(ctx context.Context) int {
	now := r.clock.Now()

	r.mu.Lock()
	var swept []string
	for regID, reg := range r.pending {
		if now.After(reg.expiresAt) {
			delete(r.pending, regID)
			swept = append(swept, regID)
		}
	}
	r.mu.Unlock()

	for _, regID := range swept {
		r.logInfo(ctx, "registration_sweep", "Expired registration removed",
			slog.String("registration_id", regID))
	}
	r.svc.metrics.recordSwept(ctx, len(swept))

	return len(swept)
}

func (r *Registrar) logInfo(ctx context.Context, action, result string, attrs ...slog.Attr) {
	if r.logger == nil {
		return
	}
	all := []slog.Attr{
		slog.String("component", "registrar"),
		slog.String("action", action),
	}
	all = append(all, attrs...)
	r.logger.LogAttrs(ctx, slog.LevelInfo, result, all...)
}

// ceilMinutes rounds a duration up to whole minutes for operator-facing
// countdowns; 1ns remaining still reports one minute.
func ceilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}
