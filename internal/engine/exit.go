// Package engine implements the exit decision loop: each pass re-derives
// every open position's next action from its stored state and the current
// price, applies at most one exit rule per position, and persists the
// transition before anything else happens.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tng25/lino/internal/domain"
)

// Seller executes sells. reason names the rule that fired so the sell can
// be attributed end to end; the engine branches on the outcome kind only.
type Seller interface {
	Sell(ctx context.Context, mint string, qtyUI float64, reason string) domain.ExecResult
}

// Notifier delivers operator alerts. Delivery failures never affect the
// state machine.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the exit rule thresholds.
type Config struct {
	TP1Pct  float64
	TP1Size float64
	TP2Pct  float64
	TP2Size float64

	HardSLPct float64

	TrailTight float64
	TrailWide  float64

	TimeStop       time.Duration
	TimeStopMinPnl float64

	RateLimitCooldown  time.Duration
	InsufFundsCooldown time.Duration
	RouteFailCooldown  time.Duration
}

// Engine evaluates open positions against the exit rules. It holds no
// in-memory position state: every pass reads the store fresh, so restarts
// and duplicate passes are harmless.
type Engine struct {
	positions domain.PositionStore
	events    domain.EventStore
	cooldowns domain.CooldownStore
	oracle    domain.PriceOracle
	seller    Seller
	notifier  Notifier
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// New creates an Engine. notifier may be nil.
func New(
	positions domain.PositionStore,
	events domain.EventStore,
	cooldowns domain.CooldownStore,
	oracle domain.PriceOracle,
	seller Seller,
	notifier Notifier,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		positions: positions,
		events:    events,
		cooldowns: cooldowns,
		oracle:    oracle,
		seller:    seller,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "engine")),
		now:       time.Now,
	}
}

// RunOnce performs one evaluation pass over all open positions. A position
// whose evaluation fails is logged and skipped; it never blocks the rest of
// the pass. When a sell sets the global cooldown mid-pass the remaining
// positions are left for the next pass.
func (e *Engine) RunOnce(ctx context.Context) error {
	if e.globalCooldownActive(ctx) {
		return nil
	}

	positions, err := e.positions.GetOpen(ctx)
	if err != nil {
		return fmt.Errorf("engine: load open positions: %w", err)
	}

	for i, pos := range positions {
		if err := ctx.Err(); err != nil {
			return err
		}
		// A 429 or funds cooldown triggered by an earlier position applies
		// to the whole sell path.
		if i > 0 && e.globalCooldownActive(ctx) {
			return nil
		}

		if err := e.evaluate(ctx, pos); err != nil {
			e.logger.Error("position evaluation failed",
				slog.String("mint", pos.Mint),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

func (e *Engine) globalCooldownActive(ctx context.Context) bool {
	blocked, reason, err := e.cooldowns.Blocked(ctx, domain.CooldownGlobalKey())
	if err != nil {
		// Cooldown state unavailable: evaluating anyway risks hammering a
		// rate-limited venue, skipping risks missing a stop. Evaluate.
		e.logger.Warn("cooldown lookup failed", slog.String("error", err.Error()))
		return false
	}
	if blocked {
		e.logger.Info("sell path on global cooldown", slog.String("reason", reason))
	}
	return blocked
}

// evaluate runs the rule chain for one position. Rule priority is fixed:
// hard stop loss, time stop, tier 1, tier 2, trailing stop. At most one
// rule fires per pass.
func (e *Engine) evaluate(ctx context.Context, pos domain.Position) error {
	blocked, reason, err := e.cooldowns.Blocked(ctx, domain.CooldownMintKey(pos.Mint))
	if err != nil {
		e.logger.Warn("mint cooldown lookup failed",
			slog.String("mint", pos.Mint),
			slog.String("error", err.Error()))
	} else if blocked {
		e.logger.Debug("mint on cooldown",
			slog.String("mint", pos.Mint),
			slog.String("reason", reason))
		return nil
	}

	price, ok := e.oracle.Price(ctx, pos.Mint)
	if !ok || price <= 0 {
		e.logger.Debug("no price this pass", slog.String("mint", pos.Mint))
		return nil
	}

	now := e.now()

	// First price observation seeds the entry. The position starts at
	// zero pnl from here; evaluation continues so the time stop still
	// applies to stale rows.
	if pos.EntryPrice <= 0 {
		upd := domain.PositionUpdate{EntryPrice: &price}
		if pos.HighWater <= 0 {
			upd.HighWater = &price
		}
		if err := e.positions.Update(ctx, pos.Mint, upd); err != nil {
			return fmt.Errorf("bootstrap entry: %w", err)
		}
		e.logger.Info("entry price bootstrapped",
			slog.String("mint", pos.Mint),
			slog.Float64("price", price))
		pos.EntryPrice = price
		if pos.HighWater <= 0 {
			pos.HighWater = price
		}
	}

	if pos.HighWater <= 0 {
		pos.HighWater = pos.EntryPrice
	}
	if price > pos.HighWater {
		if err := e.positions.Update(ctx, pos.Mint, domain.PositionUpdate{HighWater: &price}); err != nil {
			return fmt.Errorf("update high water: %w", err)
		}
		pos.HighWater = price
	}

	pnl := pos.PnL(price)

	e.logger.Debug("tick",
		slog.String("mint", pos.Mint),
		slog.Float64("price", price),
		slog.Float64("pnl", pnl),
		slog.Float64("high_water", pos.HighWater),
		slog.Bool("tp1", pos.Tp1Done),
		slog.Bool("tp2", pos.Tp2Done))

	switch {
	case pnl <= e.cfg.HardSLPct:
		return e.sellAll(ctx, pos, domain.CloseReasonHardSL, price, pnl)

	case pos.Age(now) > e.cfg.TimeStop && pnl < e.cfg.TimeStopMinPnl:
		return e.sellAll(ctx, pos, domain.CloseReasonTimeStop, price, pnl)

	case !pos.Tp1Done && pnl >= e.cfg.TP1Pct:
		return e.sellPartial(ctx, pos, 1, price, pnl)

	case pos.Tp1Done && !pos.Tp2Done && pnl >= e.cfg.TP2Pct:
		return e.sellPartial(ctx, pos, 2, price, pnl)
	}

	trail := e.cfg.TrailTight
	if pos.Tp2Done {
		trail = e.cfg.TrailWide
	}
	if stop := pos.HighWater * (1 - trail); pos.HighWater > 0 && price <= stop {
		e.logger.Info("trailing stop hit",
			slog.String("mint", pos.Mint),
			slog.Float64("price", price),
			slog.Float64("stop", stop),
			slog.Float64("high_water", pos.HighWater))
		return e.sellAll(ctx, pos, domain.CloseReasonTrailingStop, price, pnl)
	}

	return nil
}

// sellAll liquidates the whole position and closes it on success.
func (e *Engine) sellAll(ctx context.Context, pos domain.Position, reason string, price, pnl float64) error {
	e.logger.Info("exit rule fired",
		slog.String("mint", pos.Mint),
		slog.String("reason", reason),
		slog.Float64("pnl", pnl))

	res := e.seller.Sell(ctx, pos.Mint, pos.QtyToken, reason)
	if res.Sent() {
		if err := e.positions.Close(ctx, pos.Mint, reason, &price, e.now()); err != nil {
			return fmt.Errorf("close after %s: %w", reason, err)
		}
		e.appendEvent(ctx, domain.Event{
			Mint:   pos.Mint,
			Action: domain.EventClose,
			Reason: reason,
			Data: map[string]any{
				"price":     price,
				"pnl":       pnl,
				"qty":       pos.QtyToken,
				"tx":        res.TxSignature,
				"confirmed": res.Confirmed,
			},
		})
		e.alert(ctx, domain.EventClose, fmt.Sprintf("CLOSE %s", pos.Symbol),
			fmt.Sprintf("%s %s pnl=%.1f%% tx=%s", reason, pos.Mint, pnl*100, res.TxSignature))
		return nil
	}

	return e.handleFailure(ctx, pos, reason, res)
}

// sellPartial sells the configured tier fraction and marks the tier flag on
// success. The stored quantity is intentionally untouched: the executor
// reconciles against the live balance on every sell, so carrying the
// original size keeps later full exits correct even if a partial landed
// twice.
func (e *Engine) sellPartial(ctx context.Context, pos domain.Position, tier int, price, pnl float64) error {
	size := e.cfg.TP1Size
	reason := "tp1"
	if tier == 2 {
		size = e.cfg.TP2Size
		reason = "tp2"
	}

	qty := pos.QtyToken * size
	if qty <= 0 {
		return nil
	}

	e.logger.Info("take profit fired",
		slog.String("mint", pos.Mint),
		slog.String("tier", reason),
		slog.Float64("qty", qty),
		slog.Float64("pnl", pnl))

	res := e.seller.Sell(ctx, pos.Mint, qty, reason)
	if res.Sent() {
		var err error
		if tier == 1 {
			err = e.positions.MarkTP1(ctx, pos.Mint)
		} else {
			err = e.positions.MarkTP2(ctx, pos.Mint)
		}
		if err != nil {
			return fmt.Errorf("mark %s: %w", reason, err)
		}
		e.appendEvent(ctx, domain.Event{
			Mint:   pos.Mint,
			Action: domain.EventPartialSell,
			Reason: reason,
			Data: map[string]any{
				"price":     price,
				"pnl":       pnl,
				"qty":       qty,
				"tx":        res.TxSignature,
				"confirmed": res.Confirmed,
			},
		})
		e.alert(ctx, domain.EventPartialSell, fmt.Sprintf("%s %s", reason, pos.Symbol),
			fmt.Sprintf("%s pnl=%.1f%% qty=%.4f tx=%s", pos.Mint, pnl*100, qty, res.TxSignature))
		return nil
	}

	return e.handleFailure(ctx, pos, reason, res)
}

// handleFailure applies the uniform non-SENT policy: rate limits and missing
// funds pause the whole sell path, a dead route pauses just the mint, dust
// closes the position locally, and anything else is retried next pass.
func (e *Engine) handleFailure(ctx context.Context, pos domain.Position, attempted string, res domain.ExecResult) error {
	switch res.Outcome {
	case domain.ExecRateLimited:
		e.block(ctx, domain.CooldownGlobalKey(), e.cfg.RateLimitCooldown, string(res.Outcome), pos.Mint)

	case domain.ExecInsufficientFunds:
		e.block(ctx, domain.CooldownGlobalKey(), e.cfg.InsufFundsCooldown, string(res.Outcome), pos.Mint)

	case domain.ExecRouteFail:
		e.block(ctx, domain.CooldownMintKey(pos.Mint), e.cfg.RouteFailCooldown, string(res.Outcome), pos.Mint)

	case domain.ExecDustUntradeable:
		zero := 0.0
		if err := e.positions.Close(ctx, pos.Mint, domain.CloseReasonDust, &zero, e.now()); err != nil {
			return fmt.Errorf("close dust position: %w", err)
		}
		e.appendEvent(ctx, domain.Event{
			Mint:   pos.Mint,
			Action: domain.EventClose,
			Reason: domain.CloseReasonDust,
			Data:   map[string]any{"attempted": attempted},
		})
		e.alert(ctx, domain.EventClose, fmt.Sprintf("DUST %s", pos.Symbol),
			fmt.Sprintf("%s closed as untradeable dust", pos.Mint))

	default:
		e.logger.Warn("sell attempt failed, retrying next pass",
			slog.String("mint", pos.Mint),
			slog.String("attempted", attempted),
			slog.String("outcome", string(res.Outcome)))
	}
	return nil
}

func (e *Engine) block(ctx context.Context, key string, d time.Duration, reason, mint string) {
	if err := e.cooldowns.Block(ctx, key, d, reason); err != nil {
		e.logger.Error("cooldown write failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
	e.logger.Warn("cooldown set",
		slog.String("key", key),
		slog.Duration("for", d),
		slog.String("reason", reason))
	e.appendEvent(ctx, domain.Event{
		Mint:   mint,
		Action: domain.EventCooldown,
		Reason: reason,
		Data:   map[string]any{"key": key, "seconds": d.Seconds()},
	})
}

// appendEvent writes to the audit log; failures are logged, never propagated.
func (e *Engine) appendEvent(ctx context.Context, ev domain.Event) {
	if ev.Ts.IsZero() {
		ev.Ts = e.now()
	}
	if err := e.events.Append(ctx, ev); err != nil {
		e.logger.Error("audit append failed",
			slog.String("mint", ev.Mint),
			slog.String("action", ev.Action),
			slog.String("error", err.Error()))
	}
}

func (e *Engine) alert(ctx context.Context, event, title, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, event, title, message); err != nil {
		e.logger.Warn("notification failed", slog.String("error", err.Error()))
	}
}
