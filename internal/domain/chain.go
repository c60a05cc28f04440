package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MarketReader is the read-only surface of the marketplace contract.
type MarketReader interface {
	// Approval returns the operator-approval flag for owner. The flag is
	// eventually consistent: a just-confirmed approval transaction may not be
	// visible yet on the next read.
	Approval(ctx context.Context, owner common.Address) (bool, error)

	// ActiveListingIDs returns the token ids with an active listing.
	ActiveListingIDs(ctx context.Context) ([]uint64, error)

	// ActiveListingCount returns the number of active listings.
	ActiveListingCount(ctx context.Context) (uint64, error)

	// Listing returns the listing record for tokenID, active or not.
	Listing(ctx context.Context, tokenID uint64) (Listing, error)

	// OfferFor returns the offer placed on tokenID by offerer.
	OfferFor(ctx context.Context, tokenID uint64, offerer common.Address) (Offer, error)
}

// TxHandle is an opaque reference to a submitted transaction. It carries
// enough of the original call to replay it read-only when the receipt reports
// a revert, so the revert reason can be recovered.
type TxHandle struct {
	Hash     common.Hash
	From     common.Address
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
}

// MarketWriter is the mutating surface of the marketplace contract. Each
// method signs and submits one transaction and returns its handle, or fails
// synchronously when signing fails or the connected network does not match
// the required chain id (ErrWrongNetwork; no call is attempted).
type MarketWriter interface {
	SetApprovalForAll(ctx context.Context, approved bool) (TxHandle, error)
	ListNFT(ctx context.Context, tokenID uint64, price *big.Int) (TxHandle, error)
	DelistNFT(ctx context.Context, tokenID uint64) (TxHandle, error)
	UpdatePrice(ctx context.Context, tokenID uint64, newPrice *big.Int) (TxHandle, error)
	BuyNFT(ctx context.Context, tokenID uint64, price *big.Int) (TxHandle, error)
	MakeOffer(ctx context.Context, tokenID uint64, amount *big.Int, expirationDays uint64) (TxHandle, error)
	CancelOffer(ctx context.Context, tokenID uint64) (TxHandle, error)
	AcceptOffer(ctx context.Context, tokenID uint64, offerer common.Address) (TxHandle, error)
}

// TxReceipt is the terminal outcome of a submitted transaction.
type TxReceipt struct {
	Hash        common.Hash
	BlockNumber uint64
	Success     bool
	// RevertReason is the decoded revert string when Success is false and the
	// reason could be recovered; empty otherwise.
	RevertReason string
}

// TxWaiter blocks until the transaction behind a handle is mined. There is no
// timeout by design; cancellation happens only through the context.
type TxWaiter interface {
	WaitMined(ctx context.Context, h TxHandle) (TxReceipt, error)
}

// WalletReader exposes the operator wallet's identity and native balance.
type WalletReader interface {
	Address() common.Address
	Balance(ctx context.Context) (*big.Int, error)
}

// BuyCostEstimator estimates the gas cost (gas * gas price, in wei) of the
// exact buy call about to be made, for the affordability pre-flight check.
type BuyCostEstimator interface {
	EstimateBuyGasCost(ctx context.Context, tokenID uint64, price *big.Int) (*big.Int, error)
}
