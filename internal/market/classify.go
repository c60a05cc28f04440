package market

import (
	"context"
	"errors"
	"strings"

	"github.com/basedguardians/marketd/internal/domain"
)

// ErrorKind is a stable machine-readable category attached to failed
// operations. API and notification consumers key off it instead of parsing
// human messages.
type ErrorKind string

const (
	KindPriceInvalid      ErrorKind = "price_invalid"
	KindPriceTooLow       ErrorKind = "price_too_low"
	KindAlreadyListed     ErrorKind = "already_listed"
	KindNotApproved       ErrorKind = "not_approved"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindWrongNetwork      ErrorKind = "wrong_network"
	KindSigningFailed     ErrorKind = "signing_failed"
	KindListingInactive   ErrorKind = "listing_inactive"
	KindNotOwner          ErrorKind = "not_owner"
	KindNotSeller         ErrorKind = "not_seller"
	KindOfferExpired      ErrorKind = "offer_expired"
	KindOfferInactive     ErrorKind = "offer_inactive"
	KindOwnListing        ErrorKind = "own_listing"
	KindPaymentMismatch   ErrorKind = "payment_mismatch"
	KindReverted          ErrorKind = "reverted"
	KindUnknown           ErrorKind = "unknown"
)

// revertRules maps contract revert-string fragments to a kind and a human
// message. Matching is case-insensitive substring, first hit wins.
var revertRules = []struct {
	fragment string
	kind     ErrorKind
	message  string
}{
	{"already listed", KindAlreadyListed, "This Guardian is already listed"},
	{"not approved", KindNotApproved, "The marketplace is not approved to transfer this Guardian"},
	{"price too low", KindPriceTooLow, "The price is below the marketplace minimum"},
	{"not the owner", KindNotOwner, "The wallet does not own this Guardian"},
	{"not owner", KindNotOwner, "The wallet does not own this Guardian"},
	{"not listed", KindListingInactive, "This Guardian is not listed"},
	{"listing not active", KindListingInactive, "This listing is no longer active"},
	{"not the seller", KindNotSeller, "Only the seller can modify this listing"},
	{"not seller", KindNotSeller, "Only the seller can modify this listing"},
	{"cannot buy your own", KindOwnListing, "You cannot buy your own listing"},
	{"own listing", KindOwnListing, "You cannot buy your own listing"},
	{"incorrect payment", KindPaymentMismatch, "The payment does not match the listing price"},
	{"insufficient payment", KindPaymentMismatch, "The payment does not match the listing price"},
	{"offer expired", KindOfferExpired, "This offer has expired"},
	{"offer not active", KindOfferInactive, "This offer is no longer active"},
	{"no active offer", KindOfferInactive, "There is no active offer to act on"},
	{"insufficient funds", KindInsufficientFunds, "The wallet balance cannot cover this transaction"},
}

// ClassifyRevert maps a recovered revert reason to an error kind and a human
// message. An unmatched non-empty reason is surfaced verbatim as KindReverted;
// an empty reason becomes KindUnknown.
func ClassifyRevert(reason string) (ErrorKind, string) {
	if reason == "" {
		return KindUnknown, "Transaction failed on chain without a revert reason"
	}
	lower := strings.ToLower(reason)
	for _, rule := range revertRules {
		if strings.Contains(lower, rule.fragment) {
			return rule.kind, rule.message
		}
	}
	return KindReverted, "Transaction reverted: " + reason
}

// ClassifyLocal maps errors raised before submission (validation, gating,
// signing, RPC) to an error kind.
func ClassifyLocal(err error) ErrorKind {
	switch {
	case errors.Is(err, domain.ErrPriceTooLow):
		return KindPriceTooLow
	case errors.Is(err, domain.ErrPriceInvalid):
		return KindPriceInvalid
	case errors.Is(err, domain.ErrAlreadyListed):
		return KindAlreadyListed
	case errors.Is(err, domain.ErrNotApproved):
		return KindNotApproved
	case errors.Is(err, domain.ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, domain.ErrWrongNetwork):
		return KindWrongNetwork
	case errors.Is(err, domain.ErrSigningFailed):
		return KindSigningFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindUnknown
	default:
		return KindUnknown
	}
}
