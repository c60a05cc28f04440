package market

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/basedguardians/marketd/internal/domain"
)

// Pre-flight defaults.
const (
	defaultApprovalAttempts = 3
	defaultApprovalDelay    = time.Second
)

// minListPrice is the contract's listing floor: 1 whole unit of the native
// currency.
var minListPrice = new(big.Int).Exp(big.NewInt(10), big.NewInt(CurrencyDecimals), nil)

// ApprovalRefetcher re-reads the operator approval flag fresh from the chain.
// The approval gate retries against fresh reads, never the cache, so an
// approval confirmed moments ago is seen without waiting for the next poll.
type ApprovalRefetcher interface {
	RefetchApproval(ctx context.Context) (bool, error)
}

// ValidatorConfig tunes the pre-flight checks. Zero values select defaults.
type ValidatorConfig struct {
	ApprovalAttempts int
	ApprovalDelay    time.Duration
}

// Validator runs the local checks that gate every submission: price parsing
// and bounds, the duplicate-listing probe, the approval gate, and buy
// affordability. Local rejections cost no gas; the checks exist to catch
// certain on-chain reverts before they are paid for.
type Validator struct {
	caller    domain.MarketReader
	approvals ApprovalRefetcher
	wallet    domain.WalletReader
	estimator domain.BuyCostEstimator
	logger    *slog.Logger

	approvalAttempts int
	approvalDelay    time.Duration
}

// NewValidator creates a Validator.
func NewValidator(caller domain.MarketReader, approvals ApprovalRefetcher, wallet domain.WalletReader, estimator domain.BuyCostEstimator, cfg ValidatorConfig, logger *slog.Logger) *Validator {
	if cfg.ApprovalAttempts <= 0 {
		cfg.ApprovalAttempts = defaultApprovalAttempts
	}
	if cfg.ApprovalDelay <= 0 {
		cfg.ApprovalDelay = defaultApprovalDelay
	}
	return &Validator{
		caller:           caller,
		approvals:        approvals,
		wallet:           wallet,
		estimator:        estimator,
		logger:           logger.With(slog.String("component", "preflight")),
		approvalAttempts: cfg.ApprovalAttempts,
		approvalDelay:    cfg.ApprovalDelay,
	}
}

// ParseListPrice parses a human decimal price and enforces the contract's
// 1-unit listing floor. Rejections here make no chain call.
func (v *Validator) ParseListPrice(s string) (*big.Int, error) {
	price, err := ParseAmount(s)
	if err != nil {
		return nil, err
	}
	if price.Cmp(minListPrice) < 0 {
		return nil, fmt.Errorf("market: price %s below minimum %s: %w",
			FormatAmount(price), FormatAmount(minListPrice), domain.ErrPriceTooLow)
	}
	return price, nil
}

// ParseOfferAmount parses a human decimal offer amount. Offers have no
// contract floor but must be positive.
func (v *Validator) ParseOfferAmount(s string) (*big.Int, error) {
	amount, err := ParseAmount(s)
	if err != nil {
		return nil, err
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("market: offer amount must be positive: %w", domain.ErrPriceInvalid)
	}
	return amount, nil
}

// CheckNotListed probes the listing record for tokenID before a list
// submission. A clean read showing an active listing rejects with
// domain.ErrAlreadyListed. A failed probe does NOT block: the submission
// proceeds and inconclusive=true is reported so the caller can surface that
// the duplicate guard did not run. This is the only permissive failure in
// pre-flight; every other check fails closed.
func (v *Validator) CheckNotListed(ctx context.Context, tokenID uint64) (inconclusive bool, err error) {
	listing, probeErr := v.caller.Listing(ctx, tokenID)
	if probeErr != nil {
		v.logger.WarnContext(ctx, "duplicate-listing probe failed, proceeding",
			slog.Uint64("token_id", tokenID),
			slog.String("error", probeErr.Error()),
		)
		return true, nil
	}
	if listing.Active {
		return false, fmt.Errorf("market: token %d: %w", tokenID, domain.ErrAlreadyListed)
	}
	return false, nil
}

// CheckApproved gates actions that require the marketplace's operator
// approval. The flag is re-read fresh up to the configured attempt count with
// a fixed delay between attempts, so an approval that just confirmed is
// picked up. Read errors count as failed attempts.
func (v *Validator) CheckApproved(ctx context.Context) error {
	for attempt := 1; attempt <= v.approvalAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(v.approvalDelay):
			}
		}
		approved, err := v.approvals.RefetchApproval(ctx)
		if err != nil {
			v.logger.WarnContext(ctx, "approval gate read failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			continue
		}
		if approved {
			return nil
		}
	}
	return fmt.Errorf("market: marketplace not approved after %d checks; approve the marketplace first: %w",
		v.approvalAttempts, domain.ErrNotApproved)
}

// CheckAffordable verifies the wallet can cover price plus the estimated gas
// cost of the exact buy call. No signature prompt ever happens for a purchase
// the wallet cannot fund.
func (v *Validator) CheckAffordable(ctx context.Context, tokenID uint64, price *big.Int) error {
	balance, err := v.wallet.Balance(ctx)
	if err != nil {
		return fmt.Errorf("market: affordability check: %w", err)
	}
	gasCost, err := v.estimator.EstimateBuyGasCost(ctx, tokenID, price)
	if err != nil {
		return fmt.Errorf("market: affordability check: %w", err)
	}
	total := new(big.Int).Add(price, gasCost)
	if balance.Cmp(total) < 0 {
		return fmt.Errorf("market: need %s, have %s: %w",
			FormatAmount(total), FormatAmount(balance), domain.ErrInsufficientFunds)
	}
	return nil
}
