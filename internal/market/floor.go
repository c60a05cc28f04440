package market

import (
	"context"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/basedguardians/marketd/internal/domain"
)

// defaultFloorInterval is how often the floor is rescanned.
const defaultFloorInterval = 30 * time.Second

// FloorScanner derives the collection floor price: the minimum price over
// listings that are active with a price greater than zero. A nil floor means
// no qualifying listing exists and is kept distinct from a zero price.
//
// The scan is resilient: a listing that fails to read is skipped, so one bad
// record cannot blank out the floor.
type FloorScanner struct {
	caller   domain.MarketReader
	cache    domain.FloorCache // optional
	bus      domain.SignalBus  // optional
	interval time.Duration
	logger   *slog.Logger

	mu    sync.RWMutex
	floor *big.Int
	known bool
}

// NewFloorScanner creates a FloorScanner. cache and bus may be nil; a zero
// interval selects the default.
func NewFloorScanner(caller domain.MarketReader, cache domain.FloorCache, bus domain.SignalBus, interval time.Duration, logger *slog.Logger) *FloorScanner {
	if interval <= 0 {
		interval = defaultFloorInterval
	}
	return &FloorScanner{
		caller:   caller,
		cache:    cache,
		bus:      bus,
		interval: interval,
		logger:   logger.With(slog.String("component", "floor_scanner")),
	}
}

// Floor returns the last scanned floor. known is false until a scan has
// completed; a nil floor with known=true means no qualifying listing.
func (f *FloorScanner) Floor() (floor *big.Int, known bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.known {
		return nil, false
	}
	if f.floor == nil {
		return nil, true
	}
	return new(big.Int).Set(f.floor), true
}

// Run rescans on the configured interval until ctx is cancelled, with one
// immediate scan at startup.
func (f *FloorScanner) Run(ctx context.Context) error {
	f.logger.InfoContext(ctx, "floor scanner started", slog.Duration("interval", f.interval))
	defer f.logger.Info("floor scanner stopped")

	if _, err := f.Scan(ctx); err != nil {
		f.logger.WarnContext(ctx, "floor scan failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := f.Scan(ctx); err != nil {
				f.logger.WarnContext(ctx, "floor scan failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Scan walks the active listings and recomputes the floor. The id fetch
// failing fails the whole scan; individual listing reads failing are skipped.
func (f *FloorScanner) Scan(ctx context.Context) (*big.Int, error) {
	ids, err := f.caller.ActiveListingIDs(ctx)
	if err != nil {
		return nil, err
	}

	var floor *big.Int
	for _, id := range ids {
		listing, err := f.caller.Listing(ctx, id)
		if err != nil {
			f.logger.WarnContext(ctx, "floor scan skipping listing",
				slog.Uint64("token_id", id), slog.String("error", err.Error()))
			continue
		}
		if !listing.Active || listing.Price == nil || listing.Price.Sign() <= 0 {
			continue
		}
		if floor == nil || listing.Price.Cmp(floor) < 0 {
			floor = new(big.Int).Set(listing.Price)
		}
	}

	f.store(ctx, floor)
	return floor, nil
}

// store records the scan result, updates the cache, and publishes a floor
// event when the value changed.
func (f *FloorScanner) store(ctx context.Context, floor *big.Int) {
	f.mu.Lock()
	changed := !f.known || !floorEqual(f.floor, floor)
	f.floor = floor
	f.known = true
	f.mu.Unlock()

	if f.cache != nil {
		if err := f.cache.SetFloor(ctx, floor); err != nil {
			f.logger.WarnContext(ctx, "floor cache write failed", slog.String("error", err.Error()))
		}
	}
	if changed {
		payload := FloorPayload{Known: true}
		if floor != nil {
			payload.Floor = FormatAmount(floor)
		}
		publishEvent(ctx, f.bus, f.logger, ChannelFloor, Event{Type: EventFloor, Payload: payload})
	}
}

func floorEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Cmp(b) == 0
}
