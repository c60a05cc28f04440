package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/basedguardians/marketd/internal/domain"
)

// listingTTL bounds staleness if the chain reader stops writing; the reader
// refreshes well inside this window.
const listingTTL = 5 * time.Minute

// ListingCache implements domain.ListingCache. Listing snapshots are stored
// as JSON at "listing:{tokenID}"; the active id set is one JSON array at
// "listings:active".
type ListingCache struct {
	rdb *redis.Client
}

// NewListingCache creates a ListingCache backed by the given Client.
func NewListingCache(c *Client) *ListingCache {
	return &ListingCache{rdb: c.Underlying()}
}

func listingKey(tokenID uint64) string {
	return fmt.Sprintf("listing:%d", tokenID)
}

const activeIDsKey = "listings:active"

// SetListing stores one listing snapshot.
func (lc *ListingCache) SetListing(ctx context.Context, l domain.Listing) error {
	payload, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("redis: marshal listing %d: %w", l.TokenID, err)
	}
	if err := lc.rdb.Set(ctx, listingKey(l.TokenID), payload, listingTTL).Err(); err != nil {
		return fmt.Errorf("redis: set listing %d: %w", l.TokenID, err)
	}
	return nil
}

// GetListing returns the stored snapshot, or domain.ErrNotFound when none
// exists.
func (lc *ListingCache) GetListing(ctx context.Context, tokenID uint64) (domain.Listing, error) {
	payload, err := lc.rdb.Get(ctx, listingKey(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, fmt.Errorf("redis: get listing %d: %w", tokenID, err)
	}
	var l domain.Listing
	if err := json.Unmarshal(payload, &l); err != nil {
		return domain.Listing{}, fmt.Errorf("redis: unmarshal listing %d: %w", tokenID, err)
	}
	return l, nil
}

// SetActiveIDs stores the active token id set. An empty set is stored as an
// empty array, which stays distinguishable from a missing key.
func (lc *ListingCache) SetActiveIDs(ctx context.Context, ids []uint64) error {
	if ids == nil {
		ids = []uint64{}
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("redis: marshal active ids: %w", err)
	}
	if err := lc.rdb.Set(ctx, activeIDsKey, payload, listingTTL).Err(); err != nil {
		return fmt.Errorf("redis: set active ids: %w", err)
	}
	return nil
}

// GetActiveIDs returns the stored id set, or domain.ErrNotFound when no
// snapshot has been written yet.
func (lc *ListingCache) GetActiveIDs(ctx context.Context) ([]uint64, error) {
	payload, err := lc.rdb.Get(ctx, activeIDsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get active ids: %w", err)
	}
	var ids []uint64
	if err := json.Unmarshal(payload, &ids); err != nil {
		return nil, fmt.Errorf("redis: unmarshal active ids: %w", err)
	}
	return ids, nil
}

// Compile-time interface check.
var _ domain.ListingCache = (*ListingCache)(nil)
