package market

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/basedguardians/marketd/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCaller is a scriptable domain.MarketReader.
type fakeCaller struct {
	approvalFn func(ctx context.Context, owner common.Address) (bool, error)
	idsFn      func(ctx context.Context) ([]uint64, error)
	countFn    func(ctx context.Context) (uint64, error)
	listingFn  func(ctx context.Context, tokenID uint64) (domain.Listing, error)
	offerFn    func(ctx context.Context, tokenID uint64, offerer common.Address) (domain.Offer, error)
}

func (f *fakeCaller) Approval(ctx context.Context, owner common.Address) (bool, error) {
	return f.approvalFn(ctx, owner)
}

func (f *fakeCaller) ActiveListingIDs(ctx context.Context) ([]uint64, error) {
	return f.idsFn(ctx)
}

func (f *fakeCaller) ActiveListingCount(ctx context.Context) (uint64, error) {
	return f.countFn(ctx)
}

func (f *fakeCaller) Listing(ctx context.Context, tokenID uint64) (domain.Listing, error) {
	return f.listingFn(ctx, tokenID)
}

func (f *fakeCaller) OfferFor(ctx context.Context, tokenID uint64, offerer common.Address) (domain.Offer, error) {
	return f.offerFn(ctx, tokenID, offerer)
}

// fakeApprovals returns scripted results per RefetchApproval call and counts
// the calls.
type fakeApprovals struct {
	results []func() (bool, error)
	calls   int
}

func (f *fakeApprovals) RefetchApproval(ctx context.Context) (bool, error) {
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i]()
}

// fakeWallet is a fixed-balance domain.WalletReader.
type fakeWallet struct {
	addr    common.Address
	balance *big.Int
	err     error
}

func (f *fakeWallet) Address() common.Address { return f.addr }

func (f *fakeWallet) Balance(ctx context.Context) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return new(big.Int).Set(f.balance), nil
}

// fakeEstimator is a fixed-cost domain.BuyCostEstimator.
type fakeEstimator struct {
	cost *big.Int
	err  error
}

func (f *fakeEstimator) EstimateBuyGasCost(ctx context.Context, tokenID uint64, price *big.Int) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return new(big.Int).Set(f.cost), nil
}

// writerCall records one submission through fakeWriter.
type writerCall struct {
	method   string
	tokenID  uint64
	price    *big.Int
	amount   *big.Int
	days     uint64
	offerer  common.Address
	approved bool
}

// fakeWriter records every submission and returns a fixed handle or error.
type fakeWriter struct {
	handle domain.TxHandle
	err    error
	calls  []writerCall
}

func (f *fakeWriter) record(c writerCall) (domain.TxHandle, error) {
	f.calls = append(f.calls, c)
	if f.err != nil {
		return domain.TxHandle{}, f.err
	}
	return f.handle, nil
}

func (f *fakeWriter) SetApprovalForAll(ctx context.Context, approved bool) (domain.TxHandle, error) {
	return f.record(writerCall{method: "approve", approved: approved})
}

func (f *fakeWriter) ListNFT(ctx context.Context, tokenID uint64, price *big.Int) (domain.TxHandle, error) {
	return f.record(writerCall{method: "list", tokenID: tokenID, price: price})
}

func (f *fakeWriter) DelistNFT(ctx context.Context, tokenID uint64) (domain.TxHandle, error) {
	return f.record(writerCall{method: "delist", tokenID: tokenID})
}

func (f *fakeWriter) UpdatePrice(ctx context.Context, tokenID uint64, newPrice *big.Int) (domain.TxHandle, error) {
	return f.record(writerCall{method: "update_price", tokenID: tokenID, price: newPrice})
}

func (f *fakeWriter) BuyNFT(ctx context.Context, tokenID uint64, price *big.Int) (domain.TxHandle, error) {
	return f.record(writerCall{method: "buy", tokenID: tokenID, price: price})
}

func (f *fakeWriter) MakeOffer(ctx context.Context, tokenID uint64, amount *big.Int, expirationDays uint64) (domain.TxHandle, error) {
	return f.record(writerCall{method: "offer", tokenID: tokenID, amount: amount, days: expirationDays})
}

func (f *fakeWriter) CancelOffer(ctx context.Context, tokenID uint64) (domain.TxHandle, error) {
	return f.record(writerCall{method: "cancel_offer", tokenID: tokenID})
}

func (f *fakeWriter) AcceptOffer(ctx context.Context, tokenID uint64, offerer common.Address) (domain.TxHandle, error) {
	return f.record(writerCall{method: "accept_offer", tokenID: tokenID, offerer: offerer})
}

// fakeWaiter returns a fixed receipt or error.
type fakeWaiter struct {
	receipt domain.TxReceipt
	err     error
}

func (f *fakeWaiter) WaitMined(ctx context.Context, h domain.TxHandle) (domain.TxReceipt, error) {
	if f.err != nil {
		return domain.TxReceipt{}, f.err
	}
	r := f.receipt
	r.Hash = h.Hash
	return r, nil
}

// fakeChainState counts post-confirmation refetches.
type fakeChainState struct {
	approvalCalls int
	idsCalls      int
	countCalls    int
}

func (f *fakeChainState) RefetchApproval(ctx context.Context) (bool, error) {
	f.approvalCalls++
	return true, nil
}

func (f *fakeChainState) RefetchActiveIDs(ctx context.Context) ([]uint64, error) {
	f.idsCalls++
	return nil, nil
}

func (f *fakeChainState) RefetchCount(ctx context.Context) (uint64, error) {
	f.countCalls++
	return 0, nil
}

// fakeIntentStore keeps records in memory.
type fakeIntentStore struct {
	created      []domain.IntentRecord
	outcomes     []outcomeCall
	inconclusive []string
}

type outcomeCall struct {
	id     string
	phase  domain.Phase
	txHash string
	errMsg string
}

func (f *fakeIntentStore) Create(ctx context.Context, rec domain.IntentRecord) error {
	f.created = append(f.created, rec)
	return nil
}

func (f *fakeIntentStore) UpdateOutcome(ctx context.Context, id string, phase domain.Phase, txHash, errMsg string) error {
	f.outcomes = append(f.outcomes, outcomeCall{id: id, phase: phase, txHash: txHash, errMsg: errMsg})
	return nil
}

func (f *fakeIntentStore) SetProbeInconclusive(ctx context.Context, id string) error {
	f.inconclusive = append(f.inconclusive, id)
	return nil
}

func (f *fakeIntentStore) Get(ctx context.Context, id string) (domain.IntentRecord, error) {
	for _, rec := range f.created {
		if rec.Intent.ID == id {
			return rec, nil
		}
	}
	return domain.IntentRecord{}, domain.ErrNotFound
}

func (f *fakeIntentStore) ListRecent(ctx context.Context, limit int) ([]domain.IntentRecord, error) {
	return f.created, nil
}

func (f *fakeIntentStore) ListTerminalBefore(ctx context.Context, before time.Time, limit int) ([]domain.IntentRecord, error) {
	return nil, nil
}

// fakeBus collects published payloads per channel.
type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: make(map[string][][]byte)}
}

func (f *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

// fakeListingCache records cache writes.
type fakeListingCache struct {
	listings  map[uint64]domain.Listing
	activeIDs []uint64
	idsSet    bool
}

func newFakeListingCache() *fakeListingCache {
	return &fakeListingCache{listings: make(map[uint64]domain.Listing)}
}

func (f *fakeListingCache) SetListing(ctx context.Context, l domain.Listing) error {
	f.listings[l.TokenID] = l
	return nil
}

func (f *fakeListingCache) GetListing(ctx context.Context, tokenID uint64) (domain.Listing, error) {
	l, ok := f.listings[tokenID]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return l, nil
}

func (f *fakeListingCache) SetActiveIDs(ctx context.Context, ids []uint64) error {
	f.activeIDs = ids
	f.idsSet = true
	return nil
}

func (f *fakeListingCache) GetActiveIDs(ctx context.Context) ([]uint64, error) {
	if !f.idsSet {
		return nil, domain.ErrNotFound
	}
	return f.activeIDs, nil
}

// fakeFloorCache records the last stored floor.
type fakeFloorCache struct {
	floor *big.Int
	set   bool
}

func (f *fakeFloorCache) SetFloor(ctx context.Context, price *big.Int) error {
	f.floor = price
	f.set = true
	return nil
}

func (f *fakeFloorCache) GetFloor(ctx context.Context) (*big.Int, error) {
	if !f.set {
		return nil, domain.ErrNotFound
	}
	return f.floor, nil
}
