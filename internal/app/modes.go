package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/tng25/lino/internal/blob/s3"
	"github.com/tng25/lino/internal/engine"
	"github.com/tng25/lino/internal/feed"
	"github.com/tng25/lino/internal/jupiter"
	"github.com/tng25/lino/internal/risk"
	"github.com/tng25/lino/internal/trader"
)

// SellMode runs the exit engine only: it manages positions already in the
// store and never opens new ones.
func (a *App) SellMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sell mode",
		slog.String("wallet", deps.Wallet.PublicKey().String()))

	g, ctx := errgroup.WithContext(ctx)
	a.startExitEngine(ctx, g, deps)
	return g.Wait()
}

// TradeMode runs the full loop: token discovery, the buy pipeline, and the
// exit engine.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.String("wallet", deps.Wallet.PublicKey().String()))

	g, ctx := errgroup.WithContext(ctx)
	a.startExitEngine(ctx, g, deps)
	a.startBuyPipeline(ctx, g, deps)
	return g.Wait()
}

// FullMode is trade mode plus the S3 audit archiver.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.String("wallet", deps.Wallet.PublicKey().String()))

	g, ctx := errgroup.WithContext(ctx)
	a.startExitEngine(ctx, g, deps)
	a.startBuyPipeline(ctx, g, deps)

	if deps.Blob != nil {
		archiver := s3blob.NewArchiver(deps.Blob, deps.Events, deps.Positions, s3blob.ArchiverConfig{
			Prefix:   a.cfg.Archive.Prefix,
			Interval: a.cfg.Archive.Interval.Duration,
		}, a.logger)
		g.Go(func() error {
			return archiver.Run(ctx)
		})
	} else {
		a.logger.WarnContext(ctx, "archive.enabled is false, full mode runs without exports")
	}

	return g.Wait()
}

// startExitEngine adds the exit decision loop to the errgroup. Pass errors
// are logged and the loop keeps ticking; only context cancellation stops it.
func (a *App) startExitEngine(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	eng := engine.New(
		deps.Positions, deps.Events, deps.Cooldowns, deps.Oracle,
		deps.Executor, deps.Notifier,
		engine.Config{
			TP1Pct:             a.cfg.Engine.TP1Pct,
			TP1Size:            a.cfg.Engine.TP1Size,
			TP2Pct:             a.cfg.Engine.TP2Pct,
			TP2Size:            a.cfg.Engine.TP2Size,
			HardSLPct:          a.cfg.Engine.HardSLPct,
			TrailTight:         a.cfg.Engine.TrailTight,
			TrailWide:          a.cfg.Engine.TrailWide,
			TimeStop:           a.cfg.Engine.TimeStop.Duration,
			TimeStopMinPnl:     a.cfg.Engine.TimeStopMinPnl,
			RateLimitCooldown:  a.cfg.Engine.RateLimitCooldown.Duration,
			InsufFundsCooldown: a.cfg.Engine.InsufFundsCooldown.Duration,
			RouteFailCooldown:  a.cfg.Engine.RouteFailCooldown.Duration,
		},
		a.logger,
	)

	interval := a.cfg.Engine.Interval.Duration
	if interval <= 0 {
		interval = 2 * time.Second
	}

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := eng.RunOnce(ctx); err != nil && ctx.Err() == nil {
					a.logger.ErrorContext(ctx, "exit pass failed",
						slog.String("error", err.Error()))
				}
			}
		}
	})
}

// startBuyPipeline adds the discovery feed and the buy pipeline to the
// errgroup.
func (a *App) startBuyPipeline(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	gate := risk.New(deps.Chain, risk.Config{
		MaxTop1Pct:          a.cfg.Risk.MaxTop1Pct,
		MaxTop10Pct:         a.cfg.Risk.MaxTop10Pct,
		RequireRenounced:    a.cfg.Risk.RequireRenounced,
		BlockToken2022:      a.cfg.Risk.BlockToken2022,
		FallbackMaxAccounts: a.cfg.Risk.FallbackMaxAccounts,
		MinLiquidityUSD:     a.cfg.Risk.MinLiquidityUSD,
		MinMarketCapUSD:     a.cfg.Risk.MinMarketCapUSD,
	}, a.logger)

	tr := trader.New(
		deps.Positions, deps.Events, deps.Cooldowns,
		gate, deps.Executor, deps.Chain, deps.Wallet.PublicKey(), deps.Notifier,
		trader.Config{
			BuySizeSOL:          a.cfg.Trader.BuySizeSOL,
			MaxPositions:        a.cfg.Trader.MaxPositions,
			MinSolFees:          a.cfg.Trader.MinSolFees,
			TransientBlacklist:  a.cfg.Risk.TransientBlacklist.Duration,
			StructuralBlacklist: a.cfg.Risk.StructuralBlacklist.Duration,
		},
		a.logger,
	)

	// Candidate USD figures arrive denominated in SOL; the oracle supplies
	// the conversion rate.
	solPrice := func(ctx context.Context) (float64, bool) {
		return deps.Oracle.Price(ctx, jupiter.SOLMint)
	}

	wsFeed := feed.New(a.cfg.Feed.WSURL, tr.HandleCandidate, solPrice, a.logger)
	g.Go(func() error {
		defer wsFeed.Close()
		return wsFeed.Run(ctx)
	})
}
