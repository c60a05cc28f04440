package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/basedguardians/marketd/internal/domain"
)

// Caller implements domain.MarketReader with raw eth_call reads against the
// marketplace and collection contracts.
type Caller struct {
	client        *Client
	market        common.Address
	collection    common.Address
	marketABI     abi.ABI
	collectionABI abi.ABI
}

// NewCaller creates a Caller for the given contract addresses.
func NewCaller(client *Client, market, collection common.Address) (*Caller, error) {
	mABI, cABI, err := parseABIs()
	if err != nil {
		return nil, err
	}
	return &Caller{
		client:        client,
		market:        market,
		collection:    collection,
		marketABI:     mABI,
		collectionABI: cABI,
	}, nil
}

// call packs a method call against `to` and executes it read-only at the
// latest block.
func (c *Caller) call(ctx context.Context, contractABI abi.ABI, to common.Address, method string, args ...any) ([]byte, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	out, err := c.client.Eth().CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s: %w", method, err)
	}
	return out, nil
}

// Approval reads the operator-approval flag for owner toward the marketplace
// contract.
func (c *Caller) Approval(ctx context.Context, owner common.Address) (bool, error) {
	out, err := c.call(ctx, c.collectionABI, c.collection, "isApprovedForAll", owner, c.market)
	if err != nil {
		return false, err
	}
	var approved bool
	if err := c.collectionABI.UnpackIntoInterface(&approved, "isApprovedForAll", out); err != nil {
		return false, fmt.Errorf("chain: unpack isApprovedForAll: %w", err)
	}
	return approved, nil
}

// ActiveListingIDs returns the token ids currently listed.
func (c *Caller) ActiveListingIDs(ctx context.Context) ([]uint64, error) {
	out, err := c.call(ctx, c.marketABI, c.market, "getActiveListings")
	if err != nil {
		return nil, err
	}
	var raw []*big.Int
	if err := c.marketABI.UnpackIntoInterface(&raw, "getActiveListings", out); err != nil {
		return nil, fmt.Errorf("chain: unpack getActiveListings: %w", err)
	}
	ids := make([]uint64, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, id.Uint64())
	}
	return ids, nil
}

// ActiveListingCount returns the number of active listings.
func (c *Caller) ActiveListingCount(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, c.marketABI, c.market, "getActiveListingsCount")
	if err != nil {
		return 0, err
	}
	var count *big.Int
	if err := c.marketABI.UnpackIntoInterface(&count, "getActiveListingsCount", out); err != nil {
		return 0, fmt.Errorf("chain: unpack getActiveListingsCount: %w", err)
	}
	return count.Uint64(), nil
}

// Listing returns the listing record for tokenID, active or not.
func (c *Caller) Listing(ctx context.Context, tokenID uint64) (domain.Listing, error) {
	out, err := c.call(ctx, c.marketABI, c.market, "listings", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return domain.Listing{}, err
	}
	var rec struct {
		Seller   common.Address
		Price    *big.Int
		ListedAt *big.Int
		Active   bool
	}
	if err := c.marketABI.UnpackIntoInterface(&rec, "listings", out); err != nil {
		return domain.Listing{}, fmt.Errorf("chain: unpack listings(%d): %w", tokenID, err)
	}
	return domain.Listing{
		TokenID:  tokenID,
		Seller:   rec.Seller,
		Price:    rec.Price,
		ListedAt: time.Unix(rec.ListedAt.Int64(), 0).UTC(),
		Active:   rec.Active,
	}, nil
}

// OfferFor returns the offer placed on tokenID by offerer.
func (c *Caller) OfferFor(ctx context.Context, tokenID uint64, offerer common.Address) (domain.Offer, error) {
	out, err := c.call(ctx, c.marketABI, c.market, "offers", new(big.Int).SetUint64(tokenID), offerer)
	if err != nil {
		return domain.Offer{}, err
	}
	var rec struct {
		Amount    *big.Int
		ExpiresAt *big.Int
		Active    bool
	}
	if err := c.marketABI.UnpackIntoInterface(&rec, "offers", out); err != nil {
		return domain.Offer{}, fmt.Errorf("chain: unpack offers(%d, %s): %w", tokenID, offerer, err)
	}
	return domain.Offer{
		TokenID:   tokenID,
		Offerer:   offerer,
		Amount:    rec.Amount,
		ExpiresAt: time.Unix(rec.ExpiresAt.Int64(), 0).UTC(),
		Active:    rec.Active,
	}, nil
}

// Compile-time interface check.
var _ domain.MarketReader = (*Caller)(nil)
