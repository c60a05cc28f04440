package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/basedguardians/marketd/internal/domain"
)

// Static gas ceilings per intent type. Submission deliberately uses
// conservative fixed limits instead of per-call estimation; estimation is
// reserved for the buy affordability pre-flight.
var gasLimits = map[domain.Action]uint64{
	domain.ActionApprove:     90_000,
	domain.ActionList:        220_000,
	domain.ActionDelist:      120_000,
	domain.ActionUpdatePrice: 100_000,
	domain.ActionBuy:         320_000,
	domain.ActionOffer:       200_000,
	domain.ActionCancelOffer: 120_000,
	domain.ActionAcceptOffer: 320_000,
}

// Transactor implements domain.MarketWriter, domain.WalletReader, and
// domain.BuyCostEstimator using the operator wallet key. Every mutating call
// re-verifies the connected chain id before any signing happens.
type Transactor struct {
	client        *Client
	key           *ecdsa.PrivateKey
	from          common.Address
	market        common.Address
	collection    common.Address
	marketABI     abi.ABI
	collectionABI abi.ABI
	logger        *slog.Logger
}

// NewTransactor creates a Transactor signing with the given key.
func NewTransactor(client *Client, key *ecdsa.PrivateKey, market, collection common.Address, logger *slog.Logger) (*Transactor, error) {
	mABI, cABI, err := parseABIs()
	if err != nil {
		return nil, err
	}
	return &Transactor{
		client:        client,
		key:           key,
		from:          ethcrypto.PubkeyToAddress(key.PublicKey),
		market:        market,
		collection:    collection,
		marketABI:     mABI,
		collectionABI: cABI,
		logger:        logger.With(slog.String("component", "transactor")),
	}, nil
}

// Address returns the operator wallet address.
func (t *Transactor) Address() common.Address {
	return t.from
}

// Balance returns the wallet's native balance at the latest block.
func (t *Transactor) Balance(ctx context.Context) (*big.Int, error) {
	bal, err := t.client.Eth().BalanceAt(ctx, t.from, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: balance of %s: %w", t.from, err)
	}
	return bal, nil
}

// EstimateBuyGasCost estimates gas * gas price for the exact buy call about
// to be made.
func (t *Transactor) EstimateBuyGasCost(ctx context.Context, tokenID uint64, price *big.Int) (*big.Int, error) {
	data, err := t.marketABI.Pack("buyNFT", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, fmt.Errorf("chain: pack buyNFT: %w", err)
	}
	gas, err := t.client.Eth().EstimateGas(ctx, ethereum.CallMsg{
		From:  t.from,
		To:    &t.market,
		Value: price,
		Data:  data,
	})
	if err != nil {
		return nil, fmt.Errorf("chain: estimate buyNFT gas: %w", err)
	}
	gasPrice, err := t.client.Eth().SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: suggest gas price: %w", err)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(gas), gasPrice), nil
}

// submit signs and sends one transaction with the action's static gas limit.
// The chain id is re-verified first; a mismatched network never reaches the
// signer.
func (t *Transactor) submit(ctx context.Context, action domain.Action, to common.Address, data []byte, value *big.Int) (domain.TxHandle, error) {
	if err := t.client.VerifyNetwork(ctx); err != nil {
		return domain.TxHandle{}, err
	}

	nonce, err := t.client.Eth().PendingNonceAt(ctx, t.from)
	if err != nil {
		return domain.TxHandle{}, fmt.Errorf("chain: pending nonce: %w", err)
	}
	gasPrice, err := t.client.Eth().SuggestGasPrice(ctx)
	if err != nil {
		return domain.TxHandle{}, fmt.Errorf("chain: suggest gas price: %w", err)
	}

	gasLimit := gasLimits[action]
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(t.client.ChainID()), t.key)
	if err != nil {
		return domain.TxHandle{}, fmt.Errorf("chain: sign %s: %w: %v", action, domain.ErrSigningFailed, err)
	}

	if err := t.client.Eth().SendTransaction(ctx, signed); err != nil {
		return domain.TxHandle{}, fmt.Errorf("chain: send %s: %w", action, err)
	}

	t.logger.InfoContext(ctx, "transaction submitted",
		slog.String("action", string(action)),
		slog.String("tx_hash", signed.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas_limit", gasLimit),
	)

	return domain.TxHandle{
		Hash:     signed.Hash(),
		From:     t.from,
		To:       to,
		Data:     data,
		Value:    value,
		GasLimit: gasLimit,
	}, nil
}

// packMarket packs a marketplace method call.
func (t *Transactor) packMarket(method string, args ...any) ([]byte, error) {
	data, err := t.marketABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	return data, nil
}

// SetApprovalForAll grants or revokes the marketplace's operator approval on
// the collection contract.
func (t *Transactor) SetApprovalForAll(ctx context.Context, approved bool) (domain.TxHandle, error) {
	data, err := t.collectionABI.Pack("setApprovalForAll", t.market, approved)
	if err != nil {
		return domain.TxHandle{}, fmt.Errorf("chain: pack setApprovalForAll: %w", err)
	}
	return t.submit(ctx, domain.ActionApprove, t.collection, data, nil)
}

// ListNFT lists tokenID at the given price.
func (t *Transactor) ListNFT(ctx context.Context, tokenID uint64, price *big.Int) (domain.TxHandle, error) {
	data, err := t.packMarket("listNFT", new(big.Int).SetUint64(tokenID), price)
	if err != nil {
		return domain.TxHandle{}, err
	}
	return t.submit(ctx, domain.ActionList, t.market, data, nil)
}

// DelistNFT removes the active listing for tokenID.
func (t *Transactor) DelistNFT(ctx context.Context, tokenID uint64) (domain.TxHandle, error) {
	data, err := t.packMarket("delistNFT", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return domain.TxHandle{}, err
	}
	return t.submit(ctx, domain.ActionDelist, t.market, data, nil)
}

// UpdatePrice changes the price of the active listing for tokenID.
func (t *Transactor) UpdatePrice(ctx context.Context, tokenID uint64, newPrice *big.Int) (domain.TxHandle, error) {
	data, err := t.packMarket("updatePrice", new(big.Int).SetUint64(tokenID), newPrice)
	if err != nil {
		return domain.TxHandle{}, err
	}
	return t.submit(ctx, domain.ActionUpdatePrice, t.market, data, nil)
}

// BuyNFT purchases tokenID, paying the listing price as transaction value.
func (t *Transactor) BuyNFT(ctx context.Context, tokenID uint64, price *big.Int) (domain.TxHandle, error) {
	data, err := t.packMarket("buyNFT", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return domain.TxHandle{}, err
	}
	return t.submit(ctx, domain.ActionBuy, t.market, data, price)
}

// MakeOffer places an offer of amount wei on tokenID, expiring after
// expirationDays.
func (t *Transactor) MakeOffer(ctx context.Context, tokenID uint64, amount *big.Int, expirationDays uint64) (domain.TxHandle, error) {
	data, err := t.packMarket("makeOffer", new(big.Int).SetUint64(tokenID), new(big.Int).SetUint64(expirationDays))
	if err != nil {
		return domain.TxHandle{}, err
	}
	return t.submit(ctx, domain.ActionOffer, t.market, data, amount)
}

// CancelOffer withdraws the wallet's own offer on tokenID. This is a new
// transaction, not a cancellation of a pending one.
func (t *Transactor) CancelOffer(ctx context.Context, tokenID uint64) (domain.TxHandle, error) {
	data, err := t.packMarket("cancelOffer", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return domain.TxHandle{}, err
	}
	return t.submit(ctx, domain.ActionCancelOffer, t.market, data, nil)
}

// AcceptOffer accepts offerer's offer on tokenID.
func (t *Transactor) AcceptOffer(ctx context.Context, tokenID uint64, offerer common.Address) (domain.TxHandle, error) {
	data, err := t.packMarket("acceptOffer", new(big.Int).SetUint64(tokenID), offerer)
	if err != nil {
		return domain.TxHandle{}, err
	}
	return t.submit(ctx, domain.ActionAcceptOffer, t.market, data, nil)
}

// Compile-time interface checks.
var (
	_ domain.MarketWriter     = (*Transactor)(nil)
	_ domain.WalletReader     = (*Transactor)(nil)
	_ domain.BuyCostEstimator = (*Transactor)(nil)
)
