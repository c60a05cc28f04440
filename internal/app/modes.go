package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/basedguardians/marketd/internal/domain"
	"github.com/basedguardians/marketd/internal/market"
	"github.com/basedguardians/marketd/internal/server"
	"github.com/basedguardians/marketd/internal/server/handler"
	"github.com/basedguardians/marketd/internal/server/ws"
)

// operatorLockTTL is the lease on the operator lock in full mode. A crashed
// instance frees the wallet after at most this long.
const operatorLockTTL = 30 * time.Second

// WatchMode runs the chain reader and floor scanner with no API surface.
// Useful for warming the Redis projections on a box that never signs.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")

	g, ctx := errgroup.WithContext(ctx)

	reader := a.newReader(deps)
	g.Go(func() error {
		return reader.Run(ctx)
	})

	floor := a.newFloorScanner(deps)
	g.Go(func() error {
		return floor.Run(ctx)
	})

	return g.Wait()
}

// ServeMode runs the reader, floor scanner, WebSocket hub, and HTTP API. The
// operation endpoints are registered but answer 503: this mode carries no
// signer and no orchestrator.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	reader := a.newReader(deps)
	g.Go(func() error {
		return reader.Run(ctx)
	})

	floor := a.newFloorScanner(deps)
	g.Go(func() error {
		return floor.Run(ctx)
	})

	a.startServer(ctx, g, deps, reader, floor, readOnlyOps{})

	return g.Wait()
}

// FullMode runs everything: reader, floor scanner, orchestrator, HTTP +
// WebSocket API, and the intent archiver when configured. It holds the
// operator lock for the wallet so a second instance cannot double-submit.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.String("wallet", deps.Owner.Hex()),
	)

	release, err := deps.LockManager.Hold(ctx, "operator:"+strings.ToLower(deps.Owner.Hex()), operatorLockTTL)
	if err != nil {
		return fmt.Errorf("app: operator lock: %w", err)
	}
	defer release()

	g, ctx := errgroup.WithContext(ctx)

	reader := a.newReader(deps)
	g.Go(func() error {
		return reader.Run(ctx)
	})

	floor := a.newFloorScanner(deps)
	g.Go(func() error {
		return floor.Run(ctx)
	})

	validator := market.NewValidator(
		deps.Caller,
		reader,
		deps.Transactor,
		deps.Transactor,
		market.ValidatorConfig{
			ApprovalAttempts: a.cfg.Market.ApprovalGateAttempts,
			ApprovalDelay:    a.cfg.Market.ApprovalGateDelay.Duration,
		},
		a.logger,
	)
	orch := market.NewOrchestrator(
		validator,
		deps.Transactor,
		deps.Waiter,
		reader,
		deps.IntentStore,
		deps.Notifier,
		deps.SignalBus,
		a.logger,
	)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx)
		})
	}

	a.startServer(ctx, g, deps, reader, floor, orch)

	return g.Wait()
}

// newReader builds the chain reader polling the approval and listing
// projections for the configured wallet.
func (a *App) newReader(deps *Dependencies) *market.Reader {
	return market.NewReader(
		deps.Caller,
		deps.Owner,
		deps.ListingCache,
		deps.SignalBus,
		market.ReaderConfig{
			ApprovalInterval: a.cfg.Market.ApprovalPollInterval.Duration,
			ListingsInterval: a.cfg.Market.ListingsPollInterval.Duration,
		},
		a.logger,
	)
}

// newFloorScanner builds the floor scanner over the active listing set.
func (a *App) newFloorScanner(deps *Dependencies) *market.FloorScanner {
	return market.NewFloorScanner(
		deps.Caller,
		deps.FloorCache,
		deps.SignalBus,
		a.cfg.Market.FloorScanInterval.Duration,
		a.logger,
	)
}

// startServer assembles the HTTP handlers, the WebSocket hub, and the server,
// and registers their goroutines on g. Skipped when the server is disabled.
func (a *App) startServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	reader *market.Reader,
	floor *market.FloorScanner,
	ops handler.Orchestration,
) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "http server disabled")
		return
	}

	wallet := ""
	if deps.Owner != (common.Address{}) {
		wallet = deps.Owner.Hex()
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.cfg.Mode, wallet, time.Now().UTC(), a.logger),
		Market:    handler.NewMarketHandler(reader, floor, deps.IntentStore, a.logger),
		Operation: handler.NewOperationHandler(ops, a.logger),
	}

	hub := ws.NewHub(deps.SignalBus, a.cfg.Mode, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}

// readOnlyOps is the Orchestration served in modes without a signer. Every
// mutating call answers ErrNotRunning; the state is permanently idle.
type readOnlyOps struct{}

func (readOnlyOps) State() domain.OperationState {
	return domain.OperationState{Phase: domain.PhaseIdle}
}

func (readOnlyOps) ApproveMarketplace(context.Context, bool) error { return domain.ErrNotRunning }
func (readOnlyOps) ListNFT(context.Context, uint64, string) error  { return domain.ErrNotRunning }
func (readOnlyOps) DelistNFT(context.Context, uint64) error        { return domain.ErrNotRunning }
func (readOnlyOps) UpdatePrice(context.Context, uint64, string) error {
	return domain.ErrNotRunning
}
func (readOnlyOps) BuyNFT(context.Context, uint64, *big.Int) error { return domain.ErrNotRunning }
func (readOnlyOps) MakeOffer(context.Context, uint64, string, uint64) error {
	return domain.ErrNotRunning
}
func (readOnlyOps) CancelOffer(context.Context, uint64) error { return domain.ErrNotRunning }
func (readOnlyOps) AcceptOffer(context.Context, uint64, common.Address) error {
	return domain.ErrNotRunning
}
func (readOnlyOps) Retry(context.Context) error   { return domain.ErrNotRunning }
func (readOnlyOps) Reset(context.Context) error   { return domain.ErrNotRunning }
func (readOnlyOps) Refresh(context.Context) error { return domain.ErrNotRunning }

var _ handler.Orchestration = readOnlyOps{}
