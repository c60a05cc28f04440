package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Listing is an on-chain record offering a token for sale. The contract owns
// the authoritative copy; instances held here are cached reads and may be
// stale.
type Listing struct {
	TokenID  uint64         `json:"token_id"`
	Seller   common.Address `json:"seller"`
	Price    *big.Int       `json:"price"` // wei
	ListedAt time.Time      `json:"listed_at"`
	Active   bool           `json:"active"`
}

// Offer is an on-chain, time-bounded bid on a token from a specific address.
// The contract keeps expired offers marked active until an accept or cancel
// touches them, so Active alone never implies unexpired.
type Offer struct {
	TokenID   uint64         `json:"token_id"`
	Offerer   common.Address `json:"offerer"`
	Amount    *big.Int       `json:"amount"` // wei
	ExpiresAt time.Time      `json:"expires_at"`
	Active    bool           `json:"active"`
}

// Expired reports whether the offer's expiry has passed at the given instant.
func (o Offer) Expired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt)
}
