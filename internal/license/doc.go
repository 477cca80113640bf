// Package license implements the node licensing core: the registration
// tracker that delays license issuance, the issuer that mints license keys
// and device identities, the device activation manager that enforces
// per-license quotas, and revocation with cascade to devices.
//
// The package is transport-agnostic. Operations take a context, return
// typed results plus sentinel errors from internal/errors, and persist
// through the injected store.Store. Time comes from an injected
// clockwork.Clock so registration delays and sweeps are testable with
// virtual time.
//
// Concurrency: every write to a license record, including the liveness
// refreshes on validation and heartbeat, is serialized through a per-key
// lock registry, never a process-wide lock; reads stay lock-free. The
// registration tracker serializes registration and promotion under its own
// mutex so no caller ever observes a pending registration and its license
// at the same time.
package license
