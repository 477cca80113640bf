// Package store provides the durable key-value storage used by the licensing
// service. License and device records are serialized as JSON values under
// prefixed keys ("license:<key>", "device:<id>"), so any implementation that
// can get, put, delete, and list by prefix can back the service.
//
// Three implementations are provided:
//
//   - FileStore: whole-file JSON snapshot, the reference persistence layout
//   - PostgresStore: a single key/value table via pgx
//   - MongoStore: a single collection keyed by _id
package store

import (
	"context"
	"errors"
)

// Key prefixes for the two durable record maps.
const (
	LicensePrefix = "license:"
	DevicePrefix  = "device:"
)

// ErrNotFound is returned by Get when no value exists for the key.
var ErrNotFound = errors.New("store: key not found")

// Store is the abstract key-value interface the licensing service persists
// through. Writes are last-writer-wins at record granularity; the service
// serializes mutations per license before calling Put.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, overwriting any existing value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all key/value pairs whose key starts with prefix.
	List(ctx context.Context, prefix string) (map[string][]byte, error)

	// Ping verifies the store is reachable and readable. Called once at
	// startup; a failure must abort initialization rather than let the
	// service run against an empty store silently.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close(ctx context.Context) error
}
