// Package market contains the marketplace transaction orchestrator: the
// polled chain reader, pre-flight validation, the operation state machine,
// confirmation tracking, and the floor price scanner.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/basedguardians/marketd/internal/domain"
)

// Default polling intervals for the read projections.
const (
	defaultApprovalInterval = 5 * time.Second
	defaultListingsInterval = 15 * time.Second
)

// ReaderConfig holds the reader's polling intervals.
type ReaderConfig struct {
	ApprovalInterval time.Duration
	ListingsInterval time.Duration
}

// Reader polls the contract's read projections on fixed intervals and caches
// the latest known values. Each projection refreshes independently; there is
// no guarantee that approval, ids, and count reflect the same block. Values
// are undefined until the first successful read, and consumers must treat
// "undefined" as distinct from "false/empty".
//
// The reader is the only writer of its cached values; all other components
// observe chain mutations through Refetch calls.
type Reader struct {
	caller domain.MarketReader
	owner  common.Address
	cache  domain.ListingCache // optional, may be nil
	bus    domain.SignalBus    // optional, may be nil
	logger *slog.Logger

	approvalInterval time.Duration
	listingsInterval time.Duration

	mu       sync.RWMutex
	approval *bool
	ids      []uint64
	idsKnown bool
	count    *uint64
}

// NewReader creates a Reader for the given owner address. cache and bus may
// be nil.
func NewReader(caller domain.MarketReader, owner common.Address, cache domain.ListingCache, bus domain.SignalBus, cfg ReaderConfig, logger *slog.Logger) *Reader {
	if cfg.ApprovalInterval <= 0 {
		cfg.ApprovalInterval = defaultApprovalInterval
	}
	if cfg.ListingsInterval <= 0 {
		cfg.ListingsInterval = defaultListingsInterval
	}
	return &Reader{
		caller:           caller,
		owner:            owner,
		cache:            cache,
		bus:              bus,
		logger:           logger.With(slog.String("component", "chain_reader")),
		approvalInterval: cfg.ApprovalInterval,
		listingsInterval: cfg.ListingsInterval,
	}
}

// Run polls the projections until the context is cancelled. Each projection
// is fetched once immediately so consumers do not wait a full interval for
// the first value.
func (r *Reader) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "chain reader started",
		slog.Duration("approval_interval", r.approvalInterval),
		slog.Duration("listings_interval", r.listingsInterval),
	)
	defer r.logger.Info("chain reader stopped")

	r.pollApproval(ctx)
	r.pollListings(ctx)

	approvalTicker := time.NewTicker(r.approvalInterval)
	defer approvalTicker.Stop()
	listingsTicker := time.NewTicker(r.listingsInterval)
	defer listingsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-approvalTicker.C:
			r.pollApproval(ctx)
		case <-listingsTicker.C:
			r.pollListings(ctx)
		}
	}
}

func (r *Reader) pollApproval(ctx context.Context) {
	if _, err := r.RefetchApproval(ctx); err != nil {
		r.logger.WarnContext(ctx, "approval poll failed", slog.String("error", err.Error()))
	}
}

func (r *Reader) pollListings(ctx context.Context) {
	if _, err := r.RefetchActiveIDs(ctx); err != nil {
		r.logger.WarnContext(ctx, "active listings poll failed", slog.String("error", err.Error()))
	}
	if _, err := r.RefetchCount(ctx); err != nil {
		r.logger.WarnContext(ctx, "listing count poll failed", slog.String("error", err.Error()))
	}
}

// Approved returns the cached approval flag. ok is false until the first
// successful read.
func (r *Reader) Approved() (approved, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.approval == nil {
		return false, false
	}
	return *r.approval, true
}

// ActiveIDs returns the cached active listing ids. ok is false until the
// first successful read; an empty slice with ok=true means a known-empty
// market.
func (r *Reader) ActiveIDs() (ids []uint64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.idsKnown {
		return nil, false
	}
	out := make([]uint64, len(r.ids))
	copy(out, r.ids)
	return out, true
}

// Count returns the cached active listing count. ok is false until the first
// successful read.
func (r *Reader) Count() (count uint64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.count == nil {
		return 0, false
	}
	return *r.count, true
}

// RefetchApproval reads the approval flag fresh from the chain, updates the
// cached value, and returns the fresh read. The returned value (rather than
// the cache) is what the pre-flight approval gate retries against.
func (r *Reader) RefetchApproval(ctx context.Context) (bool, error) {
	approved, err := r.caller.Approval(ctx, r.owner)
	if err != nil {
		return false, fmt.Errorf("reader: refetch approval: %w", err)
	}
	r.mu.Lock()
	r.approval = &approved
	r.mu.Unlock()
	return approved, nil
}

// RefetchActiveIDs reads the active listing ids fresh, updates the cache, and
// returns them.
func (r *Reader) RefetchActiveIDs(ctx context.Context) ([]uint64, error) {
	ids, err := r.caller.ActiveListingIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("reader: refetch active ids: %w", err)
	}
	r.mu.Lock()
	changed := !r.idsKnown || !idsEqual(r.ids, ids)
	r.ids = ids
	r.idsKnown = true
	r.mu.Unlock()

	if r.cache != nil {
		if err := r.cache.SetActiveIDs(ctx, ids); err != nil {
			r.logger.WarnContext(ctx, "active ids cache write failed", slog.String("error", err.Error()))
		}
	}
	if changed {
		publishEvent(ctx, r.bus, r.logger, ChannelListings, Event{
			Type:    EventListings,
			Payload: ListingsPayload{TokenIDs: ids, Count: len(ids)},
		})
	}
	return ids, nil
}

func idsEqual(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RefetchCount reads the active listing count fresh, updates the cache, and
// returns it.
func (r *Reader) RefetchCount(ctx context.Context) (uint64, error) {
	count, err := r.caller.ActiveListingCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("reader: refetch count: %w", err)
	}
	r.mu.Lock()
	r.count = &count
	r.mu.Unlock()
	return count, nil
}

// Listing reads a single listing fresh from the chain and stores the snapshot
// in the shared cache.
func (r *Reader) Listing(ctx context.Context, tokenID uint64) (domain.Listing, error) {
	l, err := r.caller.Listing(ctx, tokenID)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("reader: listing %d: %w", tokenID, err)
	}
	if r.cache != nil {
		if err := r.cache.SetListing(ctx, l); err != nil {
			r.logger.WarnContext(ctx, "listing cache write failed",
				slog.Uint64("token_id", tokenID),
				slog.String("error", err.Error()),
			)
		}
	}
	return l, nil
}

// OfferFor reads a single offer fresh from the chain.
func (r *Reader) OfferFor(ctx context.Context, tokenID uint64, offerer common.Address) (domain.Offer, error) {
	o, err := r.caller.OfferFor(ctx, tokenID, offerer)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("reader: offer %d/%s: %w", tokenID, offerer, err)
	}
	return o, nil
}
