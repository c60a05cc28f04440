package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/basedguardians/marketd/internal/blob/s3"
	"github.com/basedguardians/marketd/internal/cache/redis"
	"github.com/basedguardians/marketd/internal/chain"
	"github.com/basedguardians/marketd/internal/config"
	"github.com/basedguardians/marketd/internal/crypto"
	"github.com/basedguardians/marketd/internal/domain"
	"github.com/basedguardians/marketd/internal/notify"
	"github.com/basedguardians/marketd/internal/store/postgres"
)

// Dependencies bundles every concrete dependency the application modes need.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Chain access
	Chain      *chain.Client
	Caller     *chain.Caller
	Transactor *chain.Transactor // nil outside full mode
	Waiter     *chain.Waiter

	// Owner is the wallet whose approval and balance the daemon tracks. In
	// full mode it is derived from the signer key; in read-only modes it comes
	// from wallet.address and may be the zero address.
	Owner common.Address

	// Redis-backed caches and fabric
	ListingCache domain.ListingCache
	FloorCache   domain.FloorCache
	SignalBus    domain.SignalBus
	RateLimiter  domain.RateLimiter
	LockManager  domain.LockManager

	// Persistence (nil when postgres is disabled)
	IntentStore domain.IntentStore

	// Archival (nil when s3 is disabled)
	Archiver *s3blob.IntentArchiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Chain ---
	chainClient, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.ChainID)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain: %w", err)
	}
	closers = append(closers, chainClient.Close)
	deps.Chain = chainClient

	marketAddr := common.HexToAddress(cfg.Market.MarketplaceAddress)
	collectionAddr := common.HexToAddress(cfg.Market.CollectionAddress)

	caller, err := chain.NewCaller(chainClient, marketAddr, collectionAddr)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: caller: %w", err)
	}
	deps.Caller = caller

	deps.Waiter = chain.NewWaiter(chainClient, cfg.Market.ReceiptPollInterval.Duration, logger)

	if cfg.NeedsWallet() {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
		}
		transactor, err := chain.NewTransactor(chainClient, key, marketAddr, collectionAddr, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: transactor: %w", err)
		}
		deps.Transactor = transactor
		deps.Owner = transactor.Address()
	} else if cfg.Wallet.Address != "" {
		deps.Owner = common.HexToAddress(cfg.Wallet.Address)
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.ListingCache = redis.NewListingCache(redisClient)
	deps.FloorCache = redis.NewFloorCache(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)

	// --- PostgreSQL (intent audit log) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.IntentStore = postgres.NewIntentStore(pgClient.Pool())
	}

	// --- S3 (terminal-intent archival) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		if deps.IntentStore != nil {
			deps.Archiver = s3blob.NewIntentArchiver(
				s3blob.NewWriter(s3Client),
				deps.IntentStore,
				cfg.S3.ArchiveInterval.Duration,
				cfg.S3.ArchiveRetention.Duration,
				cfg.S3.ArchiveBatch,
				logger,
			)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
