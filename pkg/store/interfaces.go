package store

import "context"

// CacheStore handles generic key-value caching (directions responses).
type CacheStore interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
}

// StateStore handles persistent application state: the user preference
// whitelist and the last selected destination.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}

// Store composes all sub-interfaces for full store access.
// Consumers should depend on the specific sub-interface when possible.
type Store interface {
	CacheStore
	StateStore

	// Close closes the store connection.
	Close() error
}
