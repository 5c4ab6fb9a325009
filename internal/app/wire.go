package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/stakevest/internal/blob/s3"
	"github.com/alanyoungcy/stakevest/internal/cache/redis"
	"github.com/alanyoungcy/stakevest/internal/chain"
	"github.com/alanyoungcy/stakevest/internal/config"
	"github.com/alanyoungcy/stakevest/internal/crypto"
	"github.com/alanyoungcy/stakevest/internal/domain"
	"github.com/alanyoungcy/stakevest/internal/notify"
	"github.com/alanyoungcy/stakevest/internal/service"
	"github.com/alanyoungcy/stakevest/internal/store/memory"
	"github.com/alanyoungcy/stakevest/internal/store/postgres"
	"github.com/alanyoungcy/stakevest/internal/vesting"
)

// Dependencies bundles every domain-level dependency that the application modes
// and CLI commands need. It is constructed by Wire and torn down by the
// returned cleanup function. Optional backends are nil when disabled.
type Dependencies struct {
	// Ledger
	Ledger  *vesting.Ledger
	Staking *service.StakingService
	Clock   vesting.Clock

	// Stores
	LedgerStore domain.LedgerStore
	AuditStore  domain.AuditStore
	Postgres    *postgres.Client

	// Redis
	Redis       *redis.Client
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter  domain.BlobWriter
	BlobReader  domain.BlobReader
	BlobDeleter domain.BlobDeleter
	Snapshotter *s3blob.Snapshotter

	// Chain
	Chain  *chain.Client
	Signer *crypto.Signer

	// Notifications
	Notifier *notify.Notifier
	Relay    *service.EventRelay
}

// WireOption adjusts how Wire builds dependencies.
type WireOption func(*wireOptions)

type wireOptions struct {
	clock      vesting.Clock
	skipSigner bool
}

// WithClock replaces the configured time oracle.
func WithClock(c vesting.Clock) WireOption {
	return func(o *wireOptions) { o.clock = c }
}

// WithoutSigner skips loading the wallet key even when snapshot.sign is set.
func WithoutSigner() WireOption {
	return func(o *wireOptions) { o.skipSigner = true }
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...WireOption) (*Dependencies, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o wireOptions
	for _, fn := range opts {
		fn(&o)
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}

	// --- Ledger store ---
	switch strings.ToLower(cfg.Store.Backend) {
	case "memory":
		deps.LedgerStore = memory.New()
		deps.AuditStore = memory.NewAuditStore()
	default:
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
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			applied, err := pgClient.RunMigrations(ctx)
			if err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
			if len(applied) > 0 {
				logger.InfoContext(ctx, "wire: applied migrations", slog.Any("files", applied))
			}
		}

		deps.Postgres = pgClient
		deps.LedgerStore = postgres.NewLedgerStore(pgClient.Pool())
		deps.AuditStore = postgres.NewAuditStore(pgClient.Pool())
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Redis = redisClient
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewEventBus(redisClient)
	}

	// --- Time oracle ---
	if cfg.Chain.RPCURL != "" {
		chainClient, err := chain.Dial(ctx, cfg.Chain.RPCURL)
		if err != nil {
			return fail(fmt.Errorf("wire: chain: %w", err))
		}
		closers = append(closers, chainClient.Close)
		deps.Chain = chainClient
	}
	switch {
	case o.clock != nil:
		deps.Clock = o.clock
	case cfg.Chain.UseBlockTime && deps.Chain != nil:
		deps.Clock = vesting.NewMonotonicClock(chain.NewBlockClock(deps.Chain.Eth(), cfg.Chain.MaxBlockAge.Duration))
	default:
		deps.Clock = vesting.NewMonotonicClock(vesting.SystemClock{})
	}

	// --- Ledger ---
	if cfg.Pool.LockDays > domain.MaxDurationDays || cfg.Pool.LinearDays > domain.MaxDurationDays {
		return fail(fmt.Errorf("wire: pool durations exceed %d days: %w", domain.MaxDurationDays, domain.ErrInvalidRate))
	}
	genesis := vesting.DefaultPoolConfig(cfg.Pool.AdminAddress())
	genesis.BonusRateBps = cfg.Pool.BonusRateBps
	genesis.LockDuration = cfg.Pool.LockDays * domain.SecondsPerDay
	genesis.LinearDuration = cfg.Pool.LinearDays * domain.SecondsPerDay
	genesis.InitialUnlockRateBps = cfg.Pool.InitialUnlockRateBps
	genesis.WithdrawFeeRateBps = cfg.Pool.WithdrawFeeRateBps

	ledger, err := vesting.New(deps.LedgerStore, deps.Clock, vesting.Options{
		Token:   cfg.Pool.TokenAddress(),
		Pool:    cfg.Pool.PoolAddress(),
		Genesis: genesis,
		IDBase:  cfg.Pool.StakeIDBase,
		Locks:   deps.LockManager,
		LockTTL: cfg.Redis.LockTTL.Duration,
		Logger:  logger,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: ledger: %w", err))
	}
	if err := ledger.Init(ctx); err != nil {
		return fail(fmt.Errorf("wire: ledger init: %w", err))
	}
	deps.Ledger = ledger
	deps.Staking = service.NewStakingService(
		ledger,
		deps.SignalBus,
		deps.AuditStore,
		deps.RateLimiter,
		service.RateLimit{Requests: cfg.Redis.RateLimit, Window: cfg.Redis.RateWindow.Duration},
		logger.With(slog.String("component", "staking_service")),
	)

	// --- Snapshot signer ---
	if cfg.Snapshot.Sign && !o.skipSigner {
		signer, err := crypto.LoadSigner(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		}, cfg.Chain.ChainID)
		if err != nil {
			return fail(fmt.Errorf("wire: signer: %w", err))
		}
		deps.Signer = signer
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		writer := s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobWriter = writer
		deps.BlobReader = reader
		deps.BlobDeleter = reader // same type implements BlobDeleter

		deps.Snapshotter = s3blob.NewSnapshotter(ledger, blobStore{writer, reader}, deps.AuditStore, logger)
		if deps.Signer != nil {
			deps.Snapshotter.WithSigner(deps.Signer, cfg.Chain.ChainID)
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
	if deps.SignalBus != nil {
		deps.Relay = service.NewEventRelay(deps.SignalBus, deps.Notifier, logger)
	}

	return deps, cleanup, nil
}

// blobStore joins the S3 writer and reader into the snapshotter's store.
type blobStore struct {
	*s3blob.Writer
	*s3blob.Reader
}
