package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basedguardians/marketd/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubReads is a canned MarketReads.
type stubReads struct {
	approved   bool
	approvedOK bool
	ids        []uint64
	idsOK      bool
	count      uint64
	countOK    bool
	listing    domain.Listing
	listingErr error
	offer      domain.Offer
	offerErr   error
}

func (s *stubReads) Approved() (bool, bool)      { return s.approved, s.approvedOK }
func (s *stubReads) ActiveIDs() ([]uint64, bool) { return s.ids, s.idsOK }
func (s *stubReads) Count() (uint64, bool)       { return s.count, s.countOK }

func (s *stubReads) Listing(ctx context.Context, tokenID uint64) (domain.Listing, error) {
	return s.listing, s.listingErr
}

func (s *stubReads) OfferFor(ctx context.Context, tokenID uint64, offerer common.Address) (domain.Offer, error) {
	return s.offer, s.offerErr
}

// stubFloor is a canned FloorSource.
type stubFloor struct {
	floor *big.Int
	known bool
}

func (s *stubFloor) Floor() (*big.Int, bool) { return s.floor, s.known }

// stubOrch records the last orchestration call and returns a scripted error.
type stubOrch struct {
	state    domain.OperationState
	err      error
	lastCall string
	tokenID  uint64
	price    string
	priceWei *big.Int
}

func (s *stubOrch) State() domain.OperationState { return s.state }

func (s *stubOrch) ApproveMarketplace(ctx context.Context, approved bool) error {
	s.lastCall = "approve"
	return s.err
}

func (s *stubOrch) ListNFT(ctx context.Context, tokenID uint64, price string) error {
	s.lastCall, s.tokenID, s.price = "list", tokenID, price
	return s.err
}

func (s *stubOrch) DelistNFT(ctx context.Context, tokenID uint64) error {
	s.lastCall, s.tokenID = "delist", tokenID
	return s.err
}

func (s *stubOrch) UpdatePrice(ctx context.Context, tokenID uint64, price string) error {
	s.lastCall, s.tokenID, s.price = "update_price", tokenID, price
	return s.err
}

func (s *stubOrch) BuyNFT(ctx context.Context, tokenID uint64, price *big.Int) error {
	s.lastCall, s.tokenID, s.priceWei = "buy", tokenID, price
	return s.err
}

func (s *stubOrch) MakeOffer(ctx context.Context, tokenID uint64, amount string, days uint64) error {
	s.lastCall, s.tokenID, s.price = "offer", tokenID, amount
	return s.err
}

func (s *stubOrch) CancelOffer(ctx context.Context, tokenID uint64) error {
	s.lastCall, s.tokenID = "cancel_offer", tokenID
	return s.err
}

func (s *stubOrch) AcceptOffer(ctx context.Context, tokenID uint64, offerer common.Address) error {
	s.lastCall, s.tokenID = "accept_offer", tokenID
	return s.err
}

func (s *stubOrch) Retry(ctx context.Context) error   { s.lastCall = "retry"; return s.err }
func (s *stubOrch) Reset(ctx context.Context) error   { s.lastCall = "reset"; return s.err }
func (s *stubOrch) Refresh(ctx context.Context) error { s.lastCall = "refresh"; return s.err }

func marketMux(reads MarketReads, floor FloorSource, intents domain.IntentStore) *http.ServeMux {
	h := NewMarketHandler(reads, floor, intents, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/market/listings", h.ListListings)
	mux.HandleFunc("GET /api/market/listings/{id}", h.GetListing)
	mux.HandleFunc("GET /api/market/offers/{id}/{offerer}", h.GetOffer)
	mux.HandleFunc("GET /api/market/approval", h.GetApproval)
	mux.HandleFunc("GET /api/market/floor", h.GetFloor)
	mux.HandleFunc("GET /api/market/intents", h.ListIntents)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestListListings(t *testing.T) {
	t.Run("known set", func(t *testing.T) {
		mux := marketMux(&stubReads{ids: []uint64{3, 7}, idsOK: true, count: 2, countOK: true}, nil, nil)
		rec, body := doJSON(t, mux, http.MethodGet, "/api/market/listings", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["known"])
		assert.Equal(t, float64(2), body["count"])
	})

	t.Run("undefined before first read", func(t *testing.T) {
		mux := marketMux(&stubReads{}, nil, nil)
		rec, body := doJSON(t, mux, http.MethodGet, "/api/market/listings", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, false, body["known"])
		assert.Equal(t, false, body["count_known"])
	})
}

func TestGetListing(t *testing.T) {
	reads := &stubReads{listing: domain.Listing{
		TokenID: 7,
		Seller:  common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Price:   big.NewInt(0).Mul(big.NewInt(5), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)),
		Active:  true,
	}}
	mux := marketMux(reads, nil, nil)

	t.Run("ok", func(t *testing.T) {
		rec, body := doJSON(t, mux, http.MethodGet, "/api/market/listings/7", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "5000000000000000000", body["price_wei"])
		assert.Equal(t, "5", body["price"])
		assert.Equal(t, true, body["active"])
	})

	t.Run("bad id", func(t *testing.T) {
		rec, _ := doJSON(t, mux, http.MethodGet, "/api/market/listings/abc", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("chain failure is 502", func(t *testing.T) {
		failing := marketMux(&stubReads{listingErr: errors.New("rpc down")}, nil, nil)
		rec, _ := doJSON(t, failing, http.MethodGet, "/api/market/listings/7", "")
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestGetOffer(t *testing.T) {
	reads := &stubReads{offer: domain.Offer{
		TokenID:   7,
		Offerer:   common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Amount:    big.NewInt(1),
		ExpiresAt: time.Now().Add(time.Hour),
		Active:    true,
	}}
	mux := marketMux(reads, nil, nil)

	t.Run("ok", func(t *testing.T) {
		rec, body := doJSON(t, mux, http.MethodGet, "/api/market/offers/7/0x2222222222222222222222222222222222222222", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["active"])
		assert.Equal(t, false, body["expired"])
	})

	t.Run("bad offerer", func(t *testing.T) {
		rec, _ := doJSON(t, mux, http.MethodGet, "/api/market/offers/7/nothex", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetFloor(t *testing.T) {
	t.Run("known floor", func(t *testing.T) {
		floor := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
		mux := marketMux(&stubReads{}, &stubFloor{floor: floor, known: true}, nil)
		rec, body := doJSON(t, mux, http.MethodGet, "/api/market/floor", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["known"])
		assert.Equal(t, "1", body["floor"])
	})

	t.Run("known nil floor omits the value", func(t *testing.T) {
		mux := marketMux(&stubReads{}, &stubFloor{known: true}, nil)
		rec, body := doJSON(t, mux, http.MethodGet, "/api/market/floor", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, body["known"])
		_, present := body["floor"]
		assert.False(t, present)
	})

	t.Run("no scanner", func(t *testing.T) {
		mux := marketMux(&stubReads{}, nil, nil)
		rec, body := doJSON(t, mux, http.MethodGet, "/api/market/floor", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, false, body["known"])
	})
}

func TestGetApproval(t *testing.T) {
	mux := marketMux(&stubReads{approved: true, approvedOK: true}, nil, nil)
	rec, body := doJSON(t, mux, http.MethodGet, "/api/market/approval", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["approved"])
	assert.Equal(t, true, body["known"])
}

func opMux(orch Orchestration) *http.ServeMux {
	h := NewOperationHandler(orch, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/market/operation", h.GetOperation)
	mux.HandleFunc("POST /api/market/operation/retry", h.Retry)
	mux.HandleFunc("POST /api/market/operation/reset", h.Reset)
	mux.HandleFunc("POST /api/market/approve", h.Approve)
	mux.HandleFunc("POST /api/market/list", h.List)
	mux.HandleFunc("POST /api/market/buy", h.Buy)
	mux.HandleFunc("POST /api/market/offer", h.Offer)
	mux.HandleFunc("POST /api/market/offer/accept", h.AcceptOffer)
	return mux
}

func TestListOperation(t *testing.T) {
	t.Run("accepted returns 202 with state", func(t *testing.T) {
		orch := &stubOrch{state: domain.OperationState{Action: domain.ActionList, Phase: domain.PhaseConfirming}}
		rec, body := doJSON(t, opMux(orch), http.MethodPost, "/api/market/list", `{"token_id":7,"price":"500"}`)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "list", orch.lastCall)
		assert.Equal(t, uint64(7), orch.tokenID)
		assert.Equal(t, "500", orch.price)
		assert.Equal(t, "confirming", body["phase"])
	})

	t.Run("busy orchestrator is 409", func(t *testing.T) {
		orch := &stubOrch{err: domain.ErrOperationInFlight}
		rec, _ := doJSON(t, opMux(orch), http.MethodPost, "/api/market/list", `{"token_id":7,"price":"500"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("bad price is 400 with kind", func(t *testing.T) {
		orch := &stubOrch{err: domain.ErrPriceTooLow}
		rec, body := doJSON(t, opMux(orch), http.MethodPost, "/api/market/list", `{"token_id":7,"price":"0.5"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "price_too_low", body["kind"])
	})

	t.Run("unknown body field rejected", func(t *testing.T) {
		orch := &stubOrch{}
		rec, _ := doJSON(t, opMux(orch), http.MethodPost, "/api/market/list", `{"token_id":7,"prize":"500"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, orch.lastCall)
	})
}

func TestBuyOperation(t *testing.T) {
	t.Run("price_wei parsed as wei", func(t *testing.T) {
		orch := &stubOrch{}
		rec, _ := doJSON(t, opMux(orch), http.MethodPost, "/api/market/buy", `{"token_id":7,"price_wei":"5000000000000000000"}`)
		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "buy", orch.lastCall)
		assert.Zero(t, orch.priceWei.Cmp(big.NewInt(0).Mul(big.NewInt(5), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))))
	})

	t.Run("malformed price_wei is 400", func(t *testing.T) {
		orch := &stubOrch{}
		rec, _ := doJSON(t, opMux(orch), http.MethodPost, "/api/market/buy", `{"token_id":7,"price_wei":"5.5"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, orch.lastCall)
	})

	t.Run("insufficient funds is 402", func(t *testing.T) {
		orch := &stubOrch{err: domain.ErrInsufficientFunds}
		rec, _ := doJSON(t, opMux(orch), http.MethodPost, "/api/market/buy", `{"token_id":7,"price_wei":"1"}`)
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	})
}

func TestAcceptOfferValidatesAddress(t *testing.T) {
	orch := &stubOrch{}
	rec, _ := doJSON(t, opMux(orch), http.MethodPost, "/api/market/offer/accept", `{"token_id":7,"offerer":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, orch.lastCall)
}

func TestRetryAndReset(t *testing.T) {
	t.Run("nothing to retry is 404", func(t *testing.T) {
		orch := &stubOrch{err: domain.ErrNoOperation}
		rec, _ := doJSON(t, opMux(orch), http.MethodPost, "/api/market/operation/retry", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("reset while confirming is 409", func(t *testing.T) {
		orch := &stubOrch{err: domain.ErrOperationInFlight}
		rec, _ := doJSON(t, opMux(orch), http.MethodPost, "/api/market/operation/reset", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("reset ok returns idle state", func(t *testing.T) {
		orch := &stubOrch{state: domain.OperationState{Action: domain.ActionIdle, Phase: domain.PhaseIdle}}
		rec, body := doJSON(t, opMux(orch), http.MethodPost, "/api/market/operation/reset", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "idle", body["phase"])
	})

	t.Run("read-only daemon is 503", func(t *testing.T) {
		orch := &stubOrch{err: domain.ErrNotRunning}
		rec, _ := doJSON(t, opMux(orch), http.MethodPost, "/api/market/operation/retry", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestGetOperation(t *testing.T) {
	orch := &stubOrch{state: domain.OperationState{
		Action:            domain.ActionList,
		Phase:             domain.PhaseError,
		Error:             "This Guardian is already listed",
		ErrorKind:         "already_listed",
		ProbeInconclusive: true,
	}}
	rec, body := doJSON(t, opMux(orch), http.MethodGet, "/api/market/operation", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "error", body["phase"])
	assert.Equal(t, "already_listed", body["error_kind"])
	assert.Equal(t, true, body["probe_inconclusive"])
}
