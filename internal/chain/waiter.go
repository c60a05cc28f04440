package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/basedguardians/marketd/internal/domain"
)

// defaultPollInterval is how often the waiter polls for a receipt.
const defaultPollInterval = 2 * time.Second

// Waiter implements domain.TxWaiter by polling for the transaction receipt.
// It has no timeout of its own; callers cancel through the context.
type Waiter struct {
	client   *Client
	interval time.Duration
	logger   *slog.Logger
}

// NewWaiter creates a Waiter polling at the given interval (the default is
// used when interval is zero).
func NewWaiter(client *Client, interval time.Duration, logger *slog.Logger) *Waiter {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Waiter{
		client:   client,
		interval: interval,
		logger:   logger.With(slog.String("component", "tx_waiter")),
	}
}

// WaitMined blocks until the transaction behind h is included in a block,
// then reports success or failure. On a reverted transaction it replays the
// original call read-only at the inclusion block to recover the revert
// reason.
func (w *Waiter) WaitMined(ctx context.Context, h domain.TxHandle) (domain.TxReceipt, error) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		receipt, err := w.client.Eth().TransactionReceipt(ctx, h.Hash)
		if err == nil {
			return w.fromReceipt(ctx, h, receipt), nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			w.logger.WarnContext(ctx, "receipt poll failed",
				slog.String("tx_hash", h.Hash.Hex()),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return domain.TxReceipt{}, fmt.Errorf("chain: wait for %s: %w", h.Hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// fromReceipt converts an Ethereum receipt into the domain form, recovering
// the revert reason for failed transactions when possible.
func (w *Waiter) fromReceipt(ctx context.Context, h domain.TxHandle, receipt *types.Receipt) domain.TxReceipt {
	out := domain.TxReceipt{
		Hash:        h.Hash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		Success:     receipt.Status == types.ReceiptStatusSuccessful,
	}
	if !out.Success {
		out.RevertReason = w.revertReason(ctx, h, receipt.BlockNumber)
	}
	return out
}

// revertReason replays the failed call read-only at the block it was included
// in. The node surfaces the revert string in the call error; an empty string
// is returned when nothing could be recovered.
func (w *Waiter) revertReason(ctx context.Context, h domain.TxHandle, block *big.Int) string {
	msg := ethereum.CallMsg{
		From:  h.From,
		To:    &h.To,
		Gas:   h.GasLimit,
		Value: h.Value,
		Data:  h.Data,
	}
	_, err := w.client.Eth().CallContract(ctx, msg, block)
	if err == nil {
		return ""
	}
	return parseRevertError(err.Error())
}

// parseRevertError strips the node's error framing around a revert string.
func parseRevertError(s string) string {
	const marker = "execution reverted"
	idx := strings.Index(s, marker)
	if idx < 0 {
		return s
	}
	reason := strings.TrimLeft(s[idx+len(marker):], ": ")
	return strings.TrimSpace(reason)
}

// Compile-time interface check.
var _ domain.TxWaiter = (*Waiter)(nil)
