package domain

import (
	"context"
	"time"
)

// IntentRecord is the persisted audit form of an Intent together with its
// latest known outcome. Records are written when an operation is invoked and
// updated as the operation progresses; they survive daemon restarts so a
// failed intent can be inspected and resubmitted later.
type IntentRecord struct {
	Intent
	Phase             Phase     `json:"phase"`
	TxHash            string    `json:"tx_hash,omitempty"`
	Error             string    `json:"error,omitempty"`
	ProbeInconclusive bool      `json:"probe_inconclusive,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// IntentStore persists intent audit records.
type IntentStore interface {
	Create(ctx context.Context, rec IntentRecord) error
	// UpdateOutcome records a phase transition. txHash and errMsg may be empty.
	UpdateOutcome(ctx context.Context, id string, phase Phase, txHash, errMsg string) error
	// SetProbeInconclusive marks the record's duplicate-probe result.
	SetProbeInconclusive(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (IntentRecord, error)
	ListRecent(ctx context.Context, limit int) ([]IntentRecord, error)
	// ListTerminalBefore returns success/error records last updated strictly
	// before the cutoff, oldest first, for archival.
	ListTerminalBefore(ctx context.Context, before time.Time, limit int) ([]IntentRecord, error)
}
