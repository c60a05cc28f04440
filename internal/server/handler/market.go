package handler

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/basedguardians/marketd/internal/domain"
	"github.com/basedguardians/marketd/internal/market"
)

// MarketReads is the slice of the chain reader the market handler consumes.
type MarketReads interface {
	Approved() (approved, ok bool)
	ActiveIDs() (ids []uint64, ok bool)
	Count() (count uint64, ok bool)
	Listing(ctx context.Context, tokenID uint64) (domain.Listing, error)
	OfferFor(ctx context.Context, tokenID uint64, offerer common.Address) (domain.Offer, error)
}

// FloorSource exposes the latest floor scan.
type FloorSource interface {
	Floor() (floor *big.Int, known bool)
}

// MarketHandler serves the read side of the marketplace API: cached chain
// projections, fresh per-token reads, the floor, and the intent audit log.
type MarketHandler struct {
	reads   MarketReads
	floor   FloorSource
	intents domain.IntentStore // optional
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler. floor and intents may be nil.
func NewMarketHandler(reads MarketReads, floor FloorSource, intents domain.IntentStore, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		reads:   reads,
		floor:   floor,
		intents: intents,
		logger:  logHandler(logger, "market"),
	}
}

type listingView struct {
	TokenID  uint64 `json:"token_id"`
	Seller   string `json:"seller"`
	PriceWei string `json:"price_wei"`
	Price    string `json:"price"`
	ListedAt string `json:"listed_at"`
	Active   bool   `json:"active"`
}

func toListingView(l domain.Listing) listingView {
	v := listingView{
		TokenID: l.TokenID,
		Seller:  l.Seller.Hex(),
		Active:  l.Active,
	}
	if l.Price != nil {
		v.PriceWei = l.Price.String()
		v.Price = market.FormatAmount(l.Price)
	}
	if !l.ListedAt.IsZero() {
		v.ListedAt = l.ListedAt.UTC().Format(time.RFC3339)
	}
	return v
}

type offerView struct {
	TokenID   uint64 `json:"token_id"`
	Offerer   string `json:"offerer"`
	AmountWei string `json:"amount_wei"`
	Amount    string `json:"amount"`
	ExpiresAt string `json:"expires_at"`
	Active    bool   `json:"active"`
	Expired   bool   `json:"expired"`
}

func toOfferView(o domain.Offer) offerView {
	v := offerView{
		TokenID: o.TokenID,
		Offerer: o.Offerer.Hex(),
		Active:  o.Active,
		Expired: o.Expired(time.Now().UTC()),
	}
	if o.Amount != nil {
		v.AmountWei = o.Amount.String()
		v.Amount = market.FormatAmount(o.Amount)
	}
	if !o.ExpiresAt.IsZero() {
		v.ExpiresAt = o.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return v
}

// ListListings returns the cached active token id set. known=false means no
// successful chain read has happened yet, distinct from a known-empty market.
// GET /api/market/listings
func (h *MarketHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	ids, ok := h.reads.ActiveIDs()
	count, countOK := h.reads.Count()
	writeJSON(w, http.StatusOK, map[string]any{
		"token_ids":   ids,
		"known":       ok,
		"count":       count,
		"count_known": countOK,
	})
}

// GetListing reads one listing fresh from the chain.
// GET /api/market/listings/{id}
func (h *MarketHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	tokenID, err := pathUint64(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return
	}
	listing, err := h.reads.Listing(r.Context(), tokenID)
	if err != nil {
		h.logger.WarnContext(r.Context(), "listing read failed",
			slog.Uint64("token_id", tokenID), slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "listing read failed")
		return
	}
	writeJSON(w, http.StatusOK, toListingView(listing))
}

// GetOffer reads one offer fresh from the chain.
// GET /api/market/offers/{id}/{offerer}
func (h *MarketHandler) GetOffer(w http.ResponseWriter, r *http.Request) {
	tokenID, err := pathUint64(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return
	}
	offererHex := r.PathValue("offerer")
	if !common.IsHexAddress(offererHex) {
		writeError(w, http.StatusBadRequest, "invalid offerer address")
		return
	}
	offer, err := h.reads.OfferFor(r.Context(), tokenID, common.HexToAddress(offererHex))
	if err != nil {
		h.logger.WarnContext(r.Context(), "offer read failed",
			slog.Uint64("token_id", tokenID), slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "offer read failed")
		return
	}
	writeJSON(w, http.StatusOK, toOfferView(offer))
}

// GetApproval returns the cached operator approval flag.
// GET /api/market/approval
func (h *MarketHandler) GetApproval(w http.ResponseWriter, r *http.Request) {
	approved, ok := h.reads.Approved()
	writeJSON(w, http.StatusOK, map[string]any{
		"approved": approved,
		"known":    ok,
	})
}

// GetFloor returns the latest floor scan. A null floor with known=true means
// no active listing with a positive price exists.
// GET /api/market/floor
func (h *MarketHandler) GetFloor(w http.ResponseWriter, r *http.Request) {
	if h.floor == nil {
		writeJSON(w, http.StatusOK, map[string]any{"known": false})
		return
	}
	floor, known := h.floor.Floor()
	resp := map[string]any{"known": known}
	if floor != nil {
		resp["floor_wei"] = floor.String()
		resp["floor"] = market.FormatAmount(floor)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListIntents returns the most recent intent audit records.
// GET /api/market/intents
func (h *MarketHandler) ListIntents(w http.ResponseWriter, r *http.Request) {
	if h.intents == nil {
		writeJSON(w, http.StatusOK, map[string]any{"intents": []domain.IntentRecord{}})
		return
	}
	records, err := h.intents.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"intents": []domain.IntentRecord{}})
			return
		}
		h.logger.ErrorContext(r.Context(), "intent list failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "intent list failed")
		return
	}
	if records == nil {
		records = []domain.IntentRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"intents": records})
}
