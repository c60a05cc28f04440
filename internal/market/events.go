package market

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/basedguardians/marketd/internal/domain"
)

// Signal bus channels consumed by the WebSocket hub.
const (
	ChannelOperations = "market:ops"
	ChannelFloor      = "market:floor"
	ChannelListings   = "market:listings"
)

// Event type tags.
const (
	EventOperation = "operation"
	EventFloor     = "floor"
	EventListings  = "active_listings"
)

// Event is the envelope published on the signal bus and relayed verbatim to
// WebSocket clients.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// FloorPayload carries a floor scan result. Floor is the decimal string form
// of the price; Known=false means no scan has completed, an empty Floor with
// Known=true means no qualifying listing exists.
type FloorPayload struct {
	Floor string `json:"floor,omitempty"`
	Known bool   `json:"known"`
}

// ListingsPayload carries the active token id set.
type ListingsPayload struct {
	TokenIDs []uint64 `json:"token_ids"`
	Count    int      `json:"count"`
}

// publishEvent marshals and publishes one event, logging instead of failing:
// the bus is advisory and never blocks chain work.
func publishEvent(ctx context.Context, bus domain.SignalBus, logger *slog.Logger, channel string, ev Event) {
	if bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.WarnContext(ctx, "event marshal failed", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	if err := bus.Publish(ctx, channel, payload); err != nil {
		logger.WarnContext(ctx, "event publish failed", slog.String("channel", channel), slog.String("error", err.Error()))
	}
}
