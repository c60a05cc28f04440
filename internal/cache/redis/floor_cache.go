package redis

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/redis/go-redis/v9"

	"github.com/basedguardians/marketd/internal/domain"
)

const floorKey = "market:floor"

// floorNone marks a completed scan that found no qualifying listing. A nil
// floor must survive the round trip distinct from both zero and "never
// scanned".
const floorNone = "none"

// FloorCache implements domain.FloorCache with a single string key holding
// the wei value in decimal, or the none sentinel.
type FloorCache struct {
	rdb *redis.Client
}

// NewFloorCache creates a FloorCache backed by the given Client.
func NewFloorCache(c *Client) *FloorCache {
	return &FloorCache{rdb: c.Underlying()}
}

// SetFloor stores the scan result. price may be nil.
func (fc *FloorCache) SetFloor(ctx context.Context, price *big.Int) error {
	value := floorNone
	if price != nil {
		value = price.String()
	}
	if err := fc.rdb.Set(ctx, floorKey, value, 0).Err(); err != nil {
		return fmt.Errorf("redis: set floor: %w", err)
	}
	return nil
}

// GetFloor returns (nil, nil) for a stored empty market and domain.ErrNotFound
// when no scan result has ever been written.
func (fc *FloorCache) GetFloor(ctx context.Context) (*big.Int, error) {
	value, err := fc.rdb.Get(ctx, floorKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get floor: %w", err)
	}
	if value == floorNone {
		return nil, nil
	}
	price, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("redis: corrupt floor value %q", value)
	}
	return price, nil
}

// Compile-time interface check.
var _ domain.FloorCache = (*FloorCache)(nil)
