package market

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/basedguardians/marketd/internal/domain"
)

func TestClassifyRevert(t *testing.T) {
	tests := []struct {
		name   string
		reason string
		want   ErrorKind
	}{
		{"already listed", "Token already listed", KindAlreadyListed},
		{"not approved", "Marketplace not approved", KindNotApproved},
		{"price too low", "Price too low", KindPriceTooLow},
		{"not owner", "Caller is not the owner", KindNotOwner},
		{"not listed", "Token not listed", KindListingInactive},
		{"inactive listing", "Listing not active", KindListingInactive},
		{"not seller", "Caller is not the seller", KindNotSeller},
		{"own listing", "Cannot buy your own listing", KindOwnListing},
		{"payment mismatch", "Incorrect payment amount", KindPaymentMismatch},
		{"offer expired", "Offer expired", KindOfferExpired},
		{"offer inactive", "Offer not active", KindOfferInactive},
		{"no offer", "No active offer", KindOfferInactive},
		{"case insensitive", "ALREADY LISTED", KindAlreadyListed},
		{"unmatched reason", "some novel contract error", KindReverted},
		{"empty reason", "", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, message := ClassifyRevert(tt.reason)
			assert.Equal(t, tt.want, kind)
			assert.NotEmpty(t, message)
		})
	}
}

func TestClassifyRevertUnmatchedKeepsReason(t *testing.T) {
	_, message := ClassifyRevert("weird failure xyz")
	assert.Contains(t, message, "weird failure xyz")
}

func TestClassifyLocal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"price too low", fmt.Errorf("wrap: %w", domain.ErrPriceTooLow), KindPriceTooLow},
		{"price invalid", domain.ErrPriceInvalid, KindPriceInvalid},
		{"already listed", domain.ErrAlreadyListed, KindAlreadyListed},
		{"not approved", domain.ErrNotApproved, KindNotApproved},
		{"insufficient funds", domain.ErrInsufficientFunds, KindInsufficientFunds},
		{"wrong network", domain.ErrWrongNetwork, KindWrongNetwork},
		{"signing failed", domain.ErrSigningFailed, KindSigningFailed},
		{"cancelled context", context.Canceled, KindUnknown},
		{"arbitrary", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyLocal(tt.err))
		})
	}
}
