package domain

import (
	"context"
	"math/big"
	"time"
)

// ListingCache is the shared read cache for listing snapshots, written by the
// chain reader and served to the site API. Mutation happens on-chain; the
// cache is only ever overwritten with fresher reads.
type ListingCache interface {
	SetListing(ctx context.Context, l Listing) error
	// GetListing returns ErrNotFound when no snapshot exists for the token.
	GetListing(ctx context.Context, tokenID uint64) (Listing, error)
	SetActiveIDs(ctx context.Context, ids []uint64) error
	// GetActiveIDs returns ErrNotFound when no snapshot has been stored yet,
	// which is distinct from an empty (but known) id set.
	GetActiveIDs(ctx context.Context) ([]uint64, error)
}

// FloorCache stores the scanned floor price. A nil floor means "no market"
// and must stay distinguishable from a zero-priced listing.
type FloorCache interface {
	SetFloor(ctx context.Context, price *big.Int) error
	// GetFloor returns (nil, nil) when the scanner found no qualifying
	// listing, and ErrNotFound when no scan result has been stored yet.
	GetFloor(ctx context.Context) (*big.Int, error)
}

// SignalBus is a lightweight publish/subscribe fabric used to push operation
// and floor events to the WebSocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns a channel of raw payloads that closes when ctx ends.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter bounds request rates per key over a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager hands out distributed locks. The daemon takes an operator lock
// at startup so two instances can never submit for the same wallet; the
// single-operation invariant would not survive a second signer.
type LockManager interface {
	// Acquire returns an unlock function, or ErrLockHeld when another holder
	// owns the key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)

	// Hold acquires the lock and keeps renewing it until the returned release
	// function is called or ctx ends. A crashed holder loses the lock after at
	// most one ttl.
	Hold(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
