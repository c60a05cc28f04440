package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Action identifies which marketplace operation an intent or operation record
// refers to.
type Action string

const (
	ActionIdle        Action = "idle"
	ActionApprove     Action = "approve"
	ActionList        Action = "list"
	ActionDelist      Action = "delist"
	ActionUpdatePrice Action = "update_price"
	ActionBuy         Action = "buy"
	ActionOffer       Action = "offer"
	ActionCancelOffer Action = "cancel_offer"
	ActionAcceptOffer Action = "accept_offer"
)

// Phase is the lifecycle stage of the current operation.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhasePending    Phase = "pending"    // submitted to the wallet, awaiting inclusion
	PhaseConfirming Phase = "confirming" // transaction sent, awaiting receipt
	PhaseSuccess    Phase = "success"
	PhaseError      Phase = "error"
)

// Terminal reports whether the phase is a resting state that a new operation
// may replace.
func (p Phase) Terminal() bool {
	return p == PhaseIdle || p == PhaseSuccess || p == PhaseError
}

// Intent is a serializable description of one mutating marketplace call:
// the action plus the exact arguments it was invoked with. Retrying an
// operation re-dispatches its stored Intent, which guarantees the resubmission
// carries byte-identical arguments. Intents are persisted for audit.
type Intent struct {
	ID             string         `json:"id"`
	Action         Action         `json:"action"`
	TokenID        uint64         `json:"token_id,omitempty"`
	Price          *big.Int       `json:"price,omitempty"`  // list / update_price / buy, wei
	Amount         *big.Int       `json:"amount,omitempty"` // offer amount, wei
	ExpirationDays uint64         `json:"expiration_days,omitempty"`
	Offerer        common.Address `json:"offerer,omitempty"` // accept_offer target
	Approved       bool           `json:"approved,omitempty"`
	Description    string         `json:"description"` // human text reused for success and failure notices
	CreatedAt      time.Time      `json:"created_at"`
}

// OperationState is the single live operation record of an orchestrator
// instance. Exactly one is live at a time; a new operation may only begin
// once the phase is terminal.
type OperationState struct {
	Action      Action `json:"action"`
	Phase       Phase  `json:"phase"`
	TxHash      string `json:"tx_hash,omitempty"`
	Error       string `json:"error,omitempty"`
	ErrorKind   string `json:"error_kind,omitempty"`
	Description string `json:"description,omitempty"`
	// ProbeInconclusive is set when the duplicate-listing probe failed and the
	// submission proceeded anyway, letting the contract arbitrate.
	ProbeInconclusive bool    `json:"probe_inconclusive,omitempty"`
	Intent            *Intent `json:"intent,omitempty"`
}

// IsPending and friends mirror the booleans the site front end consumes.
func (s OperationState) IsPending() bool    { return s.Phase == PhasePending }
func (s OperationState) IsConfirming() bool { return s.Phase == PhaseConfirming }
func (s OperationState) IsSuccess() bool    { return s.Phase == PhaseSuccess }
func (s OperationState) IsError() bool      { return s.Phase == PhaseError }
