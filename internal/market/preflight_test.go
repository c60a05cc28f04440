package market

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basedguardians/marketd/internal/domain"
)

func newTestValidator(caller domain.MarketReader, approvals ApprovalRefetcher, wallet domain.WalletReader, estimator domain.BuyCostEstimator) *Validator {
	return NewValidator(caller, approvals, wallet, estimator, ValidatorConfig{
		ApprovalAttempts: 3,
		ApprovalDelay:    time.Millisecond,
	}, testLogger())
}

func TestParseListPrice(t *testing.T) {
	v := newTestValidator(nil, nil, nil, nil)

	t.Run("accepts the floor exactly", func(t *testing.T) {
		price, err := v.ParseListPrice("1")
		require.NoError(t, err)
		assert.Zero(t, price.Cmp(wei("1000000000000000000")))
	})

	t.Run("accepts above the floor", func(t *testing.T) {
		price, err := v.ParseListPrice("500.5")
		require.NoError(t, err)
		assert.Zero(t, price.Cmp(wei("500500000000000000000")))
	})

	t.Run("rejects below the floor", func(t *testing.T) {
		_, err := v.ParseListPrice("0.5")
		assert.ErrorIs(t, err, domain.ErrPriceTooLow)
	})

	t.Run("rejects zero", func(t *testing.T) {
		_, err := v.ParseListPrice("0")
		assert.ErrorIs(t, err, domain.ErrPriceTooLow)
	})

	t.Run("rejects malformed before the floor check", func(t *testing.T) {
		_, err := v.ParseListPrice("abc")
		assert.ErrorIs(t, err, domain.ErrPriceInvalid)
	})
}

func TestParseOfferAmount(t *testing.T) {
	v := newTestValidator(nil, nil, nil, nil)

	t.Run("offers have no listing floor", func(t *testing.T) {
		amount, err := v.ParseOfferAmount("0.5")
		require.NoError(t, err)
		assert.Zero(t, amount.Cmp(wei("500000000000000000")))
	})

	t.Run("rejects zero", func(t *testing.T) {
		_, err := v.ParseOfferAmount("0")
		assert.ErrorIs(t, err, domain.ErrPriceInvalid)
	})
}

func TestCheckNotListed(t *testing.T) {
	ctx := context.Background()

	t.Run("clean read, not listed", func(t *testing.T) {
		caller := &fakeCaller{
			listingFn: func(ctx context.Context, tokenID uint64) (domain.Listing, error) {
				return domain.Listing{TokenID: tokenID, Active: false}, nil
			},
		}
		v := newTestValidator(caller, nil, nil, nil)
		inconclusive, err := v.CheckNotListed(ctx, 7)
		require.NoError(t, err)
		assert.False(t, inconclusive)
	})

	t.Run("clean read, already listed rejects", func(t *testing.T) {
		caller := &fakeCaller{
			listingFn: func(ctx context.Context, tokenID uint64) (domain.Listing, error) {
				return domain.Listing{TokenID: tokenID, Active: true, Price: wei("2000000000000000000")}, nil
			},
		}
		v := newTestValidator(caller, nil, nil, nil)
		inconclusive, err := v.CheckNotListed(ctx, 7)
		assert.ErrorIs(t, err, domain.ErrAlreadyListed)
		assert.False(t, inconclusive)
	})

	t.Run("failed probe proceeds inconclusive", func(t *testing.T) {
		caller := &fakeCaller{
			listingFn: func(ctx context.Context, tokenID uint64) (domain.Listing, error) {
				return domain.Listing{}, errors.New("rpc timeout")
			},
		}
		v := newTestValidator(caller, nil, nil, nil)
		inconclusive, err := v.CheckNotListed(ctx, 7)
		require.NoError(t, err)
		assert.True(t, inconclusive)
	})
}

func TestCheckApproved(t *testing.T) {
	ctx := context.Background()

	t.Run("approved on first attempt", func(t *testing.T) {
		approvals := &fakeApprovals{results: []func() (bool, error){
			func() (bool, error) { return true, nil },
		}}
		v := newTestValidator(nil, approvals, nil, nil)
		require.NoError(t, v.CheckApproved(ctx))
		assert.Equal(t, 1, approvals.calls)
	})

	t.Run("approved on a later attempt", func(t *testing.T) {
		approvals := &fakeApprovals{results: []func() (bool, error){
			func() (bool, error) { return false, nil },
			func() (bool, error) { return false, nil },
			func() (bool, error) { return true, nil },
		}}
		v := newTestValidator(nil, approvals, nil, nil)
		require.NoError(t, v.CheckApproved(ctx))
		assert.Equal(t, 3, approvals.calls)
	})

	t.Run("never approved fails after the attempt budget", func(t *testing.T) {
		approvals := &fakeApprovals{results: []func() (bool, error){
			func() (bool, error) { return false, nil },
		}}
		v := newTestValidator(nil, approvals, nil, nil)
		err := v.CheckApproved(ctx)
		assert.ErrorIs(t, err, domain.ErrNotApproved)
		assert.Equal(t, 3, approvals.calls)
	})

	t.Run("read errors count as failed attempts", func(t *testing.T) {
		approvals := &fakeApprovals{results: []func() (bool, error){
			func() (bool, error) { return false, errors.New("rpc down") },
			func() (bool, error) { return false, errors.New("rpc down") },
			func() (bool, error) { return true, nil },
		}}
		v := newTestValidator(nil, approvals, nil, nil)
		require.NoError(t, v.CheckApproved(ctx))
		assert.Equal(t, 3, approvals.calls)
	})

	t.Run("cancelled context stops the gate", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		approvals := &fakeApprovals{results: []func() (bool, error){
			func() (bool, error) { return false, nil },
		}}
		v := newTestValidator(nil, approvals, nil, nil)
		err := v.CheckApproved(cancelled)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCheckAffordable(t *testing.T) {
	ctx := context.Background()
	price := wei("5000000000000000000") // 5
	gas := wei("10000000000000000")     // 0.01

	t.Run("balance covers price plus gas", func(t *testing.T) {
		wallet := &fakeWallet{balance: wei("5010000000000000000")}
		v := newTestValidator(nil, nil, wallet, &fakeEstimator{cost: gas})
		require.NoError(t, v.CheckAffordable(ctx, 1, price))
	})

	t.Run("balance covers price but not gas", func(t *testing.T) {
		wallet := &fakeWallet{balance: new(big.Int).Set(price)}
		v := newTestValidator(nil, nil, wallet, &fakeEstimator{cost: gas})
		err := v.CheckAffordable(ctx, 1, price)
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	})

	t.Run("balance read failure fails closed", func(t *testing.T) {
		wallet := &fakeWallet{err: errors.New("rpc down")}
		v := newTestValidator(nil, nil, wallet, &fakeEstimator{cost: gas})
		err := v.CheckAffordable(ctx, 1, price)
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrInsufficientFunds)
	})

	t.Run("estimate failure fails closed", func(t *testing.T) {
		wallet := &fakeWallet{balance: wei("100000000000000000000")}
		v := newTestValidator(nil, nil, wallet, &fakeEstimator{err: errors.New("execution reverted")})
		err := v.CheckAffordable(ctx, 1, price)
		require.Error(t, err)
	})
}
