// Package storage defines the key-value collaborator the persisted state
// layout is written through.
package storage

import "context"

// Driver stores opaque values under string keys.
type Driver interface {
	// Get returns the value stored under key. The boolean reports whether the
	// key exists; a missing key is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error

	// Keys returns every stored key with the given prefix in sorted order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the driver.
	Close() error
}
