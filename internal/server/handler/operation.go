package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/basedguardians/marketd/internal/domain"
)

// Orchestration is the slice of the transaction orchestrator the operation
// handler consumes.
type Orchestration interface {
	State() domain.OperationState
	ApproveMarketplace(ctx context.Context, approved bool) error
	ListNFT(ctx context.Context, tokenID uint64, price string) error
	DelistNFT(ctx context.Context, tokenID uint64) error
	UpdatePrice(ctx context.Context, tokenID uint64, price string) error
	BuyNFT(ctx context.Context, tokenID uint64, price *big.Int) error
	MakeOffer(ctx context.Context, tokenID uint64, amount string, expirationDays uint64) error
	CancelOffer(ctx context.Context, tokenID uint64) error
	AcceptOffer(ctx context.Context, tokenID uint64, offerer common.Address) error
	Retry(ctx context.Context) error
	Reset(ctx context.Context) error
	Refresh(ctx context.Context) error
}

// OperationHandler serves the mutating side of the marketplace API. Every
// route funnels into the orchestrator, which enforces the one-live-operation
// rule; a busy orchestrator surfaces as 409.
type OperationHandler struct {
	orch   Orchestration
	logger *slog.Logger
}

// NewOperationHandler creates an OperationHandler.
func NewOperationHandler(orch Orchestration, logger *slog.Logger) *OperationHandler {
	return &OperationHandler{orch: orch, logger: logHandler(logger, "operation")}
}

// GetOperation returns the live operation record.
// GET /api/market/operation
func (h *OperationHandler) GetOperation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.State())
}

// respond reports the operation outcome: errors carry their mapped status,
// an accepted submission returns 202 with the current state.
func (h *OperationHandler) respond(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		h.logger.WarnContext(r.Context(), "operation rejected", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.orch.State())
}

// Approve grants or revokes the marketplace's operator approval.
// POST /api/market/approve
func (h *OperationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Approved *bool `json:"approved"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	approved := true
	if req.Approved != nil {
		approved = *req.Approved
	}
	h.respond(w, r, h.orch.ApproveMarketplace(r.Context(), approved))
}

// List creates a listing.
// POST /api/market/list
func (h *OperationHandler) List(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TokenID uint64 `json:"token_id"`
		Price   string `json:"price"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.respond(w, r, h.orch.ListNFT(r.Context(), req.TokenID, req.Price))
}

// Delist removes a listing.
// POST /api/market/delist
func (h *OperationHandler) Delist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TokenID uint64 `json:"token_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.respond(w, r, h.orch.DelistNFT(r.Context(), req.TokenID))
}

// UpdatePrice changes a listing's price.
// POST /api/market/price
func (h *OperationHandler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TokenID uint64 `json:"token_id"`
		Price   string `json:"price"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.respond(w, r, h.orch.UpdatePrice(r.Context(), req.TokenID, req.Price))
}

// Buy purchases a listed token. The price is the listing price in wei, echoed
// back by the caller so the purchase pays exactly what was displayed.
// POST /api/market/buy
func (h *OperationHandler) Buy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TokenID  uint64 `json:"token_id"`
		PriceWei string `json:"price_wei"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	price, ok := new(big.Int).SetString(req.PriceWei, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid price_wei")
		return
	}
	h.respond(w, r, h.orch.BuyNFT(r.Context(), req.TokenID, price))
}

// Offer places an offer on a token.
// POST /api/market/offer
func (h *OperationHandler) Offer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TokenID        uint64 `json:"token_id"`
		Amount         string `json:"amount"`
		ExpirationDays uint64 `json:"expiration_days"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.respond(w, r, h.orch.MakeOffer(r.Context(), req.TokenID, req.Amount, req.ExpirationDays))
}

// CancelOffer withdraws the wallet's own offer.
// POST /api/market/offer/cancel
func (h *OperationHandler) CancelOffer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TokenID uint64 `json:"token_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.respond(w, r, h.orch.CancelOffer(r.Context(), req.TokenID))
}

// AcceptOffer accepts a third party's offer on a token the wallet owns.
// POST /api/market/offer/accept
func (h *OperationHandler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TokenID uint64 `json:"token_id"`
		Offerer string `json:"offerer"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !common.IsHexAddress(req.Offerer) {
		writeError(w, http.StatusBadRequest, "invalid offerer address")
		return
	}
	h.respond(w, r, h.orch.AcceptOffer(r.Context(), req.TokenID, common.HexToAddress(req.Offerer)))
}

// Retry resubmits the failed operation with its original arguments.
// POST /api/market/operation/retry
func (h *OperationHandler) Retry(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.orch.Retry(r.Context()))
}

// Reset clears a terminal operation back to idle.
// POST /api/market/operation/reset
func (h *OperationHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.Reset(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.orch.State())
}

// Refresh forces a fresh read of all chain projections.
// POST /api/market/refresh
func (h *OperationHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.Refresh(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "refresh failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}
