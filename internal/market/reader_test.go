package market

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basedguardians/marketd/internal/domain"
)

var testOwner = common.HexToAddress("0x1111111111111111111111111111111111111111")

func TestReaderUndefinedBeforeFirstRead(t *testing.T) {
	r := NewReader(&fakeCaller{}, testOwner, nil, nil, ReaderConfig{}, testLogger())

	_, ok := r.Approved()
	assert.False(t, ok)
	_, ok = r.ActiveIDs()
	assert.False(t, ok)
	_, ok = r.Count()
	assert.False(t, ok)
}

func TestRefetchApprovalReturnsFreshValue(t *testing.T) {
	ctx := context.Background()
	current := false
	caller := &fakeCaller{
		approvalFn: func(ctx context.Context, owner common.Address) (bool, error) {
			assert.Equal(t, testOwner, owner)
			return current, nil
		},
	}
	r := NewReader(caller, testOwner, nil, nil, ReaderConfig{}, testLogger())

	got, err := r.RefetchApproval(ctx)
	require.NoError(t, err)
	assert.False(t, got)

	// The chain flips; a refetch must return the fresh value, not the cache.
	current = true
	got, err = r.RefetchApproval(ctx)
	require.NoError(t, err)
	assert.True(t, got)

	cached, ok := r.Approved()
	assert.True(t, ok)
	assert.True(t, cached)
}

func TestRefetchApprovalErrorKeepsLastValue(t *testing.T) {
	ctx := context.Background()
	fail := false
	caller := &fakeCaller{
		approvalFn: func(ctx context.Context, owner common.Address) (bool, error) {
			if fail {
				return false, errors.New("rpc down")
			}
			return true, nil
		},
	}
	r := NewReader(caller, testOwner, nil, nil, ReaderConfig{}, testLogger())

	_, err := r.RefetchApproval(ctx)
	require.NoError(t, err)

	fail = true
	_, err = r.RefetchApproval(ctx)
	require.Error(t, err)

	cached, ok := r.Approved()
	assert.True(t, ok, "a failed poll must not blank the projection")
	assert.True(t, cached)
}

func TestRefetchActiveIDs(t *testing.T) {
	ctx := context.Background()
	ids := []uint64{3, 7, 12}
	caller := &fakeCaller{
		idsFn: func(ctx context.Context) ([]uint64, error) {
			return ids, nil
		},
	}
	cache := newFakeListingCache()
	bus := newFakeBus()
	r := NewReader(caller, testOwner, cache, bus, ReaderConfig{}, testLogger())

	got, err := r.RefetchActiveIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 7, 12}, got)

	cached, ok := r.ActiveIDs()
	assert.True(t, ok)
	assert.Equal(t, []uint64{3, 7, 12}, cached)
	assert.Equal(t, []uint64{3, 7, 12}, cache.activeIDs)

	// First read publishes, an identical read does not.
	assert.Len(t, bus.published[ChannelListings], 1)
	_, err = r.RefetchActiveIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, bus.published[ChannelListings], 1)

	// A changed set publishes again.
	ids = []uint64{3, 12}
	_, err = r.RefetchActiveIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, bus.published[ChannelListings], 2)
}

func TestEmptyActiveIDsIsKnown(t *testing.T) {
	ctx := context.Background()
	caller := &fakeCaller{
		idsFn: func(ctx context.Context) ([]uint64, error) {
			return []uint64{}, nil
		},
	}
	r := NewReader(caller, testOwner, nil, nil, ReaderConfig{}, testLogger())

	_, err := r.RefetchActiveIDs(ctx)
	require.NoError(t, err)

	got, ok := r.ActiveIDs()
	assert.True(t, ok, "an empty market is a known state, not an undefined one")
	assert.Empty(t, got)
}

func TestRefetchCount(t *testing.T) {
	ctx := context.Background()
	caller := &fakeCaller{
		countFn: func(ctx context.Context) (uint64, error) {
			return 5, nil
		},
	}
	r := NewReader(caller, testOwner, nil, nil, ReaderConfig{}, testLogger())

	got, err := r.RefetchCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), got)

	cached, ok := r.Count()
	assert.True(t, ok)
	assert.Equal(t, uint64(5), cached)
}

func TestListingWritesThroughCache(t *testing.T) {
	ctx := context.Background()
	caller := &fakeCaller{
		listingFn: func(ctx context.Context, tokenID uint64) (domain.Listing, error) {
			return domain.Listing{TokenID: tokenID, Active: true, Price: wei("2000000000000000000")}, nil
		},
	}
	cache := newFakeListingCache()
	r := NewReader(caller, testOwner, cache, nil, ReaderConfig{}, testLogger())

	l, err := r.Listing(ctx, 7)
	require.NoError(t, err)
	assert.True(t, l.Active)

	cached, err := cache.GetListing(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, cached.Price.Cmp(l.Price))
}
