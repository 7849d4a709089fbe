package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/tng25/lino/internal/blob/s3"
	"github.com/tng25/lino/internal/cache/redis"
	"github.com/tng25/lino/internal/config"
	"github.com/tng25/lino/internal/executor"
	"github.com/tng25/lino/internal/jupiter"
	"github.com/tng25/lino/internal/notify"
	"github.com/tng25/lino/internal/oracle"
	"github.com/tng25/lino/internal/solana"
	"github.com/tng25/lino/internal/store/postgres"
)

// Dependencies bundles the infrastructure every mode builds on. Concrete
// types are kept here (rather than the domain interfaces) because the
// archiver and the solana client expose methods beyond the interfaces.
type Dependencies struct {
	Positions *postgres.PositionStore
	Events    *postgres.EventStore

	Cooldowns *redis.CooldownStore
	Prices    *redis.PriceCache

	Chain    *solana.Client
	Wallet   *solana.Wallet
	Jupiter  *jupiter.Client
	Oracle   *oracle.Oracle
	Executor *executor.Executor

	Blob     *s3blob.Client
	Notifier *notify.Notifier
}

// needsS3 reports whether the mode uploads archives.
func needsS3(cfg *config.Config) bool {
	return cfg.Archive.Enabled && strings.ToLower(cfg.Mode) == "full"
}

// Wire constructs all concrete dependencies from the configuration and
// returns them with a cleanup function to be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
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

	deps.Positions = postgres.NewPositionStore(pgClient.Pool())
	deps.Events = postgres.NewEventStore(pgClient.Pool())

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

	deps.Cooldowns = redis.NewCooldownStore(redisClient)
	deps.Prices = redis.NewPriceCache(redisClient, 5*time.Minute)

	// --- Solana + Jupiter ---
	wallet, err := solana.LoadWallet(solana.WalletConfig{
		KeypairPath:      cfg.Wallet.KeypairPath,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: wallet: %w", err)
	}
	deps.Wallet = wallet

	deps.Chain = solana.New(solana.ClientConfig{
		RPCURL:         cfg.Solana.RPCURL,
		Commitment:     cfg.Solana.Commitment,
		RequestTimeout: cfg.Solana.RequestTimeout.Duration,
		ConfirmTimeout: cfg.Solana.ConfirmTimeout.Duration,
	}, logger)

	deps.Jupiter = jupiter.New(jupiter.ClientConfig{
		BaseURL:     cfg.Jupiter.BaseURL,
		PriceURL:    cfg.Jupiter.PriceURL,
		APIKey:      cfg.Jupiter.APIKey,
		SlippageBps: cfg.Jupiter.SlippageBps,
		HTTPTimeout: cfg.Jupiter.HTTPTimeout.Duration,
	}, logger)

	deps.Oracle = oracle.New(deps.Jupiter, deps.Prices, 0, logger)
	deps.Executor = executor.New(deps.Jupiter, deps.Chain, deps.Wallet, logger)

	// --- S3 ---
	if needsS3(cfg) {
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
		deps.Blob = s3Client
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
