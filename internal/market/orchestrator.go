package market

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/basedguardians/marketd/internal/domain"
)

// Notifier pushes operator-facing notices about finished operations. Failures
// are logged, never propagated: notification is best-effort.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Notification events.
const (
	EventOpSuccess = "operation_success"
	EventOpError   = "operation_error"
)

// ChainState exposes the fresh-read refetches the orchestrator performs after
// a confirmed mutation, so cached projections converge without waiting for
// the next poll.
type ChainState interface {
	RefetchApproval(ctx context.Context) (bool, error)
	RefetchActiveIDs(ctx context.Context) ([]uint64, error)
	RefetchCount(ctx context.Context) (uint64, error)
}

// tracked is one submitted transaction awaiting its receipt.
type tracked struct {
	intent domain.Intent
	handle domain.TxHandle
}

// Orchestrator owns the single live operation of the daemon. Every mutating
// call runs the same pipeline: claim the operation slot, pre-flight, submit,
// then confirm asynchronously. A second operation invoked while the current
// one is not in a terminal phase is rejected with domain.ErrOperationInFlight
// rather than silently replacing it.
//
// Each accepted operation is captured as a domain.Intent before submission;
// Retry re-dispatches the stored intent, so a resubmission always carries the
// original arguments.
type Orchestrator struct {
	validator *Validator
	writer    domain.MarketWriter
	waiter    domain.TxWaiter
	chain     ChainState
	intents   domain.IntentStore // optional
	notifier  Notifier           // optional
	bus       domain.SignalBus   // optional
	logger    *slog.Logger

	mu    sync.Mutex
	state domain.OperationState

	trackCh chan tracked
}

// NewOrchestrator creates an Orchestrator. intents, notifier, and bus may be
// nil.
func NewOrchestrator(validator *Validator, writer domain.MarketWriter, waiter domain.TxWaiter, chain ChainState, intents domain.IntentStore, notifier Notifier, bus domain.SignalBus, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		validator: validator,
		writer:    writer,
		waiter:    waiter,
		chain:     chain,
		intents:   intents,
		notifier:  notifier,
		bus:       bus,
		logger:    logger.With(slog.String("component", "orchestrator")),
		state:     domain.OperationState{Action: domain.ActionIdle, Phase: domain.PhaseIdle},
		// One slot: at most one operation can be awaiting confirmation.
		trackCh: make(chan tracked, 1),
	}
}

// Run drives confirmation tracking until ctx is cancelled. Operations submit
// synchronously from their callers; this loop waits out inclusion and applies
// the terminal transition.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "orchestrator started")
	defer o.logger.Info("orchestrator stopped")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-o.trackCh:
			o.track(ctx, t)
		}
	}
}

// State returns a copy of the live operation record.
func (o *Orchestrator) State() domain.OperationState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// ApproveMarketplace grants (or revokes) the marketplace's operator approval
// over the wallet's Guardians.
func (o *Orchestrator) ApproveMarketplace(ctx context.Context, approved bool) error {
	verb := "Approving"
	if !approved {
		verb = "Revoking"
	}
	return o.dispatch(ctx, domain.Intent{
		ID:          uuid.NewString(),
		Action:      domain.ActionApprove,
		Approved:    approved,
		Description: fmt.Sprintf("%s marketplace operator access", verb),
		CreatedAt:   time.Now().UTC(),
	})
}

// ListNFT lists tokenID at the given decimal price. Price parsing and bounds
// run before the operation slot is claimed; a malformed or under-floor price
// is returned directly and never enters the state machine.
func (o *Orchestrator) ListNFT(ctx context.Context, tokenID uint64, priceText string) error {
	price, err := o.validator.ParseListPrice(priceText)
	if err != nil {
		return err
	}
	return o.dispatch(ctx, domain.Intent{
		ID:          uuid.NewString(),
		Action:      domain.ActionList,
		TokenID:     tokenID,
		Price:       price,
		Description: fmt.Sprintf("Listing Guardian #%d for %s BASED", tokenID, FormatAmount(price)),
		CreatedAt:   time.Now().UTC(),
	})
}

// DelistNFT removes the active listing for tokenID.
func (o *Orchestrator) DelistNFT(ctx context.Context, tokenID uint64) error {
	return o.dispatch(ctx, domain.Intent{
		ID:          uuid.NewString(),
		Action:      domain.ActionDelist,
		TokenID:     tokenID,
		Description: fmt.Sprintf("Delisting Guardian #%d", tokenID),
		CreatedAt:   time.Now().UTC(),
	})
}

// UpdatePrice changes the price of the active listing for tokenID. The new
// price is validated like a fresh listing price.
func (o *Orchestrator) UpdatePrice(ctx context.Context, tokenID uint64, priceText string) error {
	price, err := o.validator.ParseListPrice(priceText)
	if err != nil {
		return err
	}
	return o.dispatch(ctx, domain.Intent{
		ID:          uuid.NewString(),
		Action:      domain.ActionUpdatePrice,
		TokenID:     tokenID,
		Price:       price,
		Description: fmt.Sprintf("Updating Guardian #%d price to %s BASED", tokenID, FormatAmount(price)),
		CreatedAt:   time.Now().UTC(),
	})
}

// BuyNFT purchases tokenID at the given listing price (wei).
func (o *Orchestrator) BuyNFT(ctx context.Context, tokenID uint64, price *big.Int) error {
	if price == nil || price.Sign() <= 0 {
		return fmt.Errorf("market: buy price must be positive: %w", domain.ErrPriceInvalid)
	}
	return o.dispatch(ctx, domain.Intent{
		ID:          uuid.NewString(),
		Action:      domain.ActionBuy,
		TokenID:     tokenID,
		Price:       new(big.Int).Set(price),
		Description: fmt.Sprintf("Buying Guardian #%d for %s BASED", tokenID, FormatAmount(price)),
		CreatedAt:   time.Now().UTC(),
	})
}

// MakeOffer places an offer of the given decimal amount on tokenID, expiring
// after expirationDays.
func (o *Orchestrator) MakeOffer(ctx context.Context, tokenID uint64, amountText string, expirationDays uint64) error {
	amount, err := o.validator.ParseOfferAmount(amountText)
	if err != nil {
		return err
	}
	return o.dispatch(ctx, domain.Intent{
		ID:             uuid.NewString(),
		Action:         domain.ActionOffer,
		TokenID:        tokenID,
		Amount:         amount,
		ExpirationDays: expirationDays,
		Description:    fmt.Sprintf("Offering %s BASED for Guardian #%d (expires in %dd)", FormatAmount(amount), tokenID, expirationDays),
		CreatedAt:      time.Now().UTC(),
	})
}

// CancelOffer withdraws the wallet's own offer on tokenID.
func (o *Orchestrator) CancelOffer(ctx context.Context, tokenID uint64) error {
	return o.dispatch(ctx, domain.Intent{
		ID:          uuid.NewString(),
		Action:      domain.ActionCancelOffer,
		TokenID:     tokenID,
		Description: fmt.Sprintf("Cancelling offer on Guardian #%d", tokenID),
		CreatedAt:   time.Now().UTC(),
	})
}

// AcceptOffer accepts offerer's offer on tokenID.
func (o *Orchestrator) AcceptOffer(ctx context.Context, tokenID uint64, offerer common.Address) error {
	return o.dispatch(ctx, domain.Intent{
		ID:          uuid.NewString(),
		Action:      domain.ActionAcceptOffer,
		TokenID:     tokenID,
		Offerer:     offerer,
		Description: fmt.Sprintf("Accepting offer from %s on Guardian #%d", offerer.Hex(), tokenID),
		CreatedAt:   time.Now().UTC(),
	})
}

// Retry re-dispatches the stored intent of a failed operation under a fresh
// intent id. The arguments are exactly those of the original submission.
func (o *Orchestrator) Retry(ctx context.Context) error {
	o.mu.Lock()
	st := o.state
	o.mu.Unlock()

	if st.Phase != domain.PhaseError || st.Intent == nil {
		return fmt.Errorf("market: nothing to retry: %w", domain.ErrNoOperation)
	}
	intent := *st.Intent
	intent.ID = uuid.NewString()
	intent.CreatedAt = time.Now().UTC()
	return o.dispatch(ctx, intent)
}

// Reset clears a terminal operation back to idle. An operation that is still
// pending or confirming cannot be reset away.
func (o *Orchestrator) Reset(ctx context.Context) error {
	o.mu.Lock()
	if !o.state.Phase.Terminal() {
		phase := o.state.Phase
		o.mu.Unlock()
		return fmt.Errorf("market: operation still %s: %w", phase, domain.ErrOperationInFlight)
	}
	o.state = domain.OperationState{Action: domain.ActionIdle, Phase: domain.PhaseIdle}
	o.mu.Unlock()

	o.publishState(ctx)
	return nil
}

// Refresh forces a fresh read of all chain projections.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	if _, err := o.chain.RefetchApproval(ctx); err != nil {
		return err
	}
	if _, err := o.chain.RefetchActiveIDs(ctx); err != nil {
		return err
	}
	if _, err := o.chain.RefetchCount(ctx); err != nil {
		return err
	}
	return nil
}

// dispatch runs the shared pipeline for one intent: claim the slot, run the
// action's pre-flight checks, submit, and hand the transaction to the
// confirmation tracker. Retry calls this with a stored intent, so the
// pipeline must stay argument-complete.
func (o *Orchestrator) dispatch(ctx context.Context, intent domain.Intent) error {
	if err := o.begin(ctx, intent); err != nil {
		return err
	}

	o.logger.InfoContext(ctx, "operation started",
		slog.String("intent_id", intent.ID),
		slog.String("action", string(intent.Action)),
		slog.Uint64("token_id", intent.TokenID),
	)

	probeInconclusive, err := o.preflight(ctx, intent)
	if err != nil {
		return o.fail(ctx, intent, err, ClassifyLocal(err), err.Error())
	}
	if probeInconclusive {
		o.markProbeInconclusive(ctx, intent)
	}

	handle, err := o.submit(ctx, intent)
	if err != nil {
		return o.fail(ctx, intent, err, ClassifyLocal(err), err.Error())
	}

	o.markConfirming(ctx, intent, handle)
	return nil
}

// preflight runs the local checks for the intent's action. For list intents
// the duplicate probe's inconclusive flag is surfaced to the caller.
func (o *Orchestrator) preflight(ctx context.Context, intent domain.Intent) (probeInconclusive bool, err error) {
	switch intent.Action {
	case domain.ActionList:
		probeInconclusive, err = o.validator.CheckNotListed(ctx, intent.TokenID)
		if err != nil {
			return probeInconclusive, err
		}
		return probeInconclusive, o.validator.CheckApproved(ctx)
	case domain.ActionUpdatePrice, domain.ActionAcceptOffer:
		return false, o.validator.CheckApproved(ctx)
	case domain.ActionBuy:
		return false, o.validator.CheckAffordable(ctx, intent.TokenID, intent.Price)
	default:
		return false, nil
	}
}

// submit maps the intent onto the wallet-side contract call.
func (o *Orchestrator) submit(ctx context.Context, intent domain.Intent) (domain.TxHandle, error) {
	switch intent.Action {
	case domain.ActionApprove:
		return o.writer.SetApprovalForAll(ctx, intent.Approved)
	case domain.ActionList:
		return o.writer.ListNFT(ctx, intent.TokenID, intent.Price)
	case domain.ActionDelist:
		return o.writer.DelistNFT(ctx, intent.TokenID)
	case domain.ActionUpdatePrice:
		return o.writer.UpdatePrice(ctx, intent.TokenID, intent.Price)
	case domain.ActionBuy:
		return o.writer.BuyNFT(ctx, intent.TokenID, intent.Price)
	case domain.ActionOffer:
		return o.writer.MakeOffer(ctx, intent.TokenID, intent.Amount, intent.ExpirationDays)
	case domain.ActionCancelOffer:
		return o.writer.CancelOffer(ctx, intent.TokenID)
	case domain.ActionAcceptOffer:
		return o.writer.AcceptOffer(ctx, intent.TokenID, intent.Offerer)
	default:
		return domain.TxHandle{}, fmt.Errorf("market: unknown action %q", intent.Action)
	}
}

// begin claims the single operation slot or rejects with ErrOperationInFlight.
func (o *Orchestrator) begin(ctx context.Context, intent domain.Intent) error {
	o.mu.Lock()
	if !o.state.Phase.Terminal() {
		current, phase := o.state.Action, o.state.Phase
		o.mu.Unlock()
		return fmt.Errorf("market: %s is still %s: %w", current, phase, domain.ErrOperationInFlight)
	}
	ic := intent
	o.state = domain.OperationState{
		Action:      intent.Action,
		Phase:       domain.PhasePending,
		Description: intent.Description,
		Intent:      &ic,
	}
	o.mu.Unlock()

	o.persistCreate(ctx, intent)
	o.publishState(ctx)
	return nil
}

// markProbeInconclusive records that the duplicate-listing probe did not run
// cleanly and the contract will arbitrate.
func (o *Orchestrator) markProbeInconclusive(ctx context.Context, intent domain.Intent) {
	o.mu.Lock()
	o.state.ProbeInconclusive = true
	o.mu.Unlock()

	if o.intents != nil {
		if err := o.intents.SetProbeInconclusive(ctx, intent.ID); err != nil {
			o.logger.WarnContext(ctx, "intent probe flag write failed",
				slog.String("intent_id", intent.ID), slog.String("error", err.Error()))
		}
	}
}

// markConfirming transitions to confirming and enqueues receipt tracking.
func (o *Orchestrator) markConfirming(ctx context.Context, intent domain.Intent, handle domain.TxHandle) {
	o.mu.Lock()
	o.state.Phase = domain.PhaseConfirming
	o.state.TxHash = handle.Hash.Hex()
	o.mu.Unlock()

	o.persistOutcome(ctx, intent.ID, domain.PhaseConfirming, handle.Hash.Hex(), "")
	o.publishState(ctx)
	o.trackCh <- tracked{intent: intent, handle: handle}
}

// track waits out one transaction and applies its terminal transition.
func (o *Orchestrator) track(ctx context.Context, t tracked) {
	receipt, err := o.waiter.WaitMined(ctx, t.handle)
	if err != nil {
		// Shutdown mid-confirmation; the record stays confirming and the
		// intent can be retried after restart.
		o.logger.WarnContext(ctx, "confirmation tracking interrupted",
			slog.String("intent_id", t.intent.ID),
			slog.String("tx_hash", t.handle.Hash.Hex()),
			slog.String("error", err.Error()),
		)
		return
	}

	if receipt.Success {
		o.succeed(ctx, t)
		return
	}

	kind, message := ClassifyRevert(receipt.RevertReason)
	o.logger.WarnContext(ctx, "operation reverted",
		slog.String("intent_id", t.intent.ID),
		slog.String("tx_hash", t.handle.Hash.Hex()),
		slog.String("kind", string(kind)),
		slog.String("revert_reason", receipt.RevertReason),
	)
	o.finishError(ctx, t.intent, kind, message)
}

// succeed applies the success transition and refetches every chain projection
// a mutation can move, so the cached reads converge immediately.
func (o *Orchestrator) succeed(ctx context.Context, t tracked) {
	o.mu.Lock()
	o.state.Phase = domain.PhaseSuccess
	o.mu.Unlock()

	o.persistOutcome(ctx, t.intent.ID, domain.PhaseSuccess, t.handle.Hash.Hex(), "")
	o.publishState(ctx)

	o.logger.InfoContext(ctx, "operation confirmed",
		slog.String("intent_id", t.intent.ID),
		slog.String("action", string(t.intent.Action)),
		slog.String("tx_hash", t.handle.Hash.Hex()),
	)

	if _, err := o.chain.RefetchApproval(ctx); err != nil {
		o.logger.WarnContext(ctx, "post-confirm approval refetch failed", slog.String("error", err.Error()))
	}
	if _, err := o.chain.RefetchActiveIDs(ctx); err != nil {
		o.logger.WarnContext(ctx, "post-confirm active ids refetch failed", slog.String("error", err.Error()))
	}
	if _, err := o.chain.RefetchCount(ctx); err != nil {
		o.logger.WarnContext(ctx, "post-confirm count refetch failed", slog.String("error", err.Error()))
	}

	o.notify(ctx, EventOpSuccess, "Operation confirmed", t.intent.Description)
}

// fail applies the error transition for a pre-submission failure and returns
// the original error to the caller.
func (o *Orchestrator) fail(ctx context.Context, intent domain.Intent, err error, kind ErrorKind, message string) error {
	o.finishError(ctx, intent, kind, message)
	return err
}

// finishError applies the error transition shared by pre-flight failures and
// on-chain reverts.
func (o *Orchestrator) finishError(ctx context.Context, intent domain.Intent, kind ErrorKind, message string) {
	o.mu.Lock()
	o.state.Phase = domain.PhaseError
	o.state.Error = message
	o.state.ErrorKind = string(kind)
	o.mu.Unlock()

	o.persistOutcome(ctx, intent.ID, domain.PhaseError, "", message)
	o.publishState(ctx)
	o.notify(ctx, EventOpError, "Operation failed", fmt.Sprintf("%s: %s", intent.Description, message))
}

func (o *Orchestrator) persistCreate(ctx context.Context, intent domain.Intent) {
	if o.intents == nil {
		return
	}
	rec := domain.IntentRecord{
		Intent:    intent,
		Phase:     domain.PhasePending,
		UpdatedAt: time.Now().UTC(),
	}
	if err := o.intents.Create(ctx, rec); err != nil {
		o.logger.WarnContext(ctx, "intent record create failed",
			slog.String("intent_id", intent.ID), slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) persistOutcome(ctx context.Context, id string, phase domain.Phase, txHash, errMsg string) {
	if o.intents == nil {
		return
	}
	if err := o.intents.UpdateOutcome(ctx, id, phase, txHash, errMsg); err != nil {
		o.logger.WarnContext(ctx, "intent record update failed",
			slog.String("intent_id", id), slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) publishState(ctx context.Context) {
	publishEvent(ctx, o.bus, o.logger, ChannelOperations, Event{Type: EventOperation, Payload: o.State()})
}

func (o *Orchestrator) notify(ctx context.Context, event, title, message string) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, event, title, message); err != nil {
		o.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event), slog.String("error", err.Error()))
	}
}
