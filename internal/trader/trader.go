// Package trader implements the buy pipeline: candidate filtering, the
// anti-rug gate, swap execution, and position creation.
package trader

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/tng25/lino/internal/domain"
	"github.com/tng25/lino/internal/solana"
)

// Gater evaluates a candidate against the anti-rug rules.
type Gater interface {
	Check(ctx context.Context, cand domain.Candidate) domain.RiskResult
}

// Buyer executes buys.
type Buyer interface {
	Buy(ctx context.Context, mint string, solAmount float64, tokenDecimals uint8) (domain.BuyReceipt, domain.ExecResult)
}

// Chain is the RPC surface the trader needs.
type Chain interface {
	MintInfo(ctx context.Context, mint string) (solana.MintInfo, error)
	SolBalance(ctx context.Context, owner solanago.PublicKey) (uint64, error)
	TokenBalance(ctx context.Context, owner solanago.PublicKey, mint string) (uint64, uint8, error)
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds buy pipeline parameters.
type Config struct {
	BuySizeSOL   float64
	MaxPositions int
	MinSolFees   float64 // SOL reserve that must remain after a buy

	TransientBlacklist  time.Duration
	StructuralBlacklist time.Duration
}

// Trader consumes candidates and opens positions for the ones that survive
// the filters and the gate.
type Trader struct {
	positions domain.PositionStore
	events    domain.EventStore
	cooldowns domain.CooldownStore
	gate      Gater
	buyer     Buyer
	chain     Chain
	wallet    solanago.PublicKey
	notifier  Notifier
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Trader. notifier may be nil.
func New(
	positions domain.PositionStore,
	events domain.EventStore,
	cooldowns domain.CooldownStore,
	gate Gater,
	buyer Buyer,
	chain Chain,
	wallet solanago.PublicKey,
	notifier Notifier,
	cfg Config,
	logger *slog.Logger,
) *Trader {
	return &Trader{
		positions: positions,
		events:    events,
		cooldowns: cooldowns,
		gate:      gate,
		buyer:     buyer,
		chain:     chain,
		wallet:    wallet,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "trader")),
		now:       time.Now,
	}
}

// HandleCandidate runs the full buy pipeline for one candidate. Every
// rejection path is cheap-first: blacklists and capacity before any RPC,
// the gate before any capital.
func (t *Trader) HandleCandidate(ctx context.Context, cand domain.Candidate) {
	if t.blacklisted(ctx, cand) {
		return
	}

	open, err := t.positions.GetOpen(ctx)
	if err != nil {
		t.logger.Error("cannot load open positions", slog.String("error", err.Error()))
		return
	}
	if len(open) >= t.cfg.MaxPositions {
		t.logger.Debug("at position capacity",
			slog.String("mint", cand.Mint),
			slog.Int("open", len(open)))
		return
	}
	for _, p := range open {
		if p.Mint == cand.Mint {
			return
		}
	}

	lamports, err := t.chain.SolBalance(ctx, t.wallet)
	if err != nil {
		t.logger.Warn("cannot read wallet balance", slog.String("error", err.Error()))
		return
	}
	if sol := float64(lamports) / 1e9; sol < t.cfg.BuySizeSOL+t.cfg.MinSolFees {
		t.logger.Warn("insufficient SOL for buy",
			slog.Float64("balance", sol),
			slog.Float64("needed", t.cfg.BuySizeSOL+t.cfg.MinSolFees))
		return
	}

	res := t.gate.Check(ctx, cand)
	if !res.OK {
		t.rejectCandidate(ctx, cand, res)
		return
	}

	t.buy(ctx, cand)
}

// blacklisted checks the mint and dev blacklists.
func (t *Trader) blacklisted(ctx context.Context, cand domain.Candidate) bool {
	keys := []string{domain.BlacklistMintKey(cand.Mint)}
	if cand.Dev != "" {
		keys = append(keys, domain.BlacklistDevKey(cand.Dev))
	}
	for _, key := range keys {
		blocked, reason, err := t.cooldowns.Blocked(ctx, key)
		if err != nil {
			t.logger.Warn("blacklist lookup failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
			continue
		}
		if blocked {
			t.logger.Debug("candidate blacklisted",
				slog.String("mint", cand.Mint),
				slog.String("key", key),
				slog.String("reason", reason))
			return true
		}
	}
	return false
}

// rejectCandidate records the rejection and blacklists the mint. Transient
// rejections (RPC trouble) get a short TTL so the token can be retried;
// structural ones get a long TTL and also blacklist the dev wallet.
func (t *Trader) rejectCandidate(ctx context.Context, cand domain.Candidate, res domain.RiskResult) {
	ttl := t.cfg.StructuralBlacklist
	if res.Transient() {
		ttl = t.cfg.TransientBlacklist
	}

	t.logger.Info("candidate rejected",
		slog.String("mint", cand.Mint),
		slog.String("reason", res.Reason),
		slog.Bool("transient", res.Transient()),
		slog.Duration("blacklist", ttl))

	if err := t.cooldowns.Block(ctx, domain.BlacklistMintKey(cand.Mint), ttl, res.Reason); err != nil {
		t.logger.Error("mint blacklist write failed", slog.String("error", err.Error()))
	}
	if !res.Transient() && cand.Dev != "" {
		if err := t.cooldowns.Block(ctx, domain.BlacklistDevKey(cand.Dev), ttl, res.Reason); err != nil {
			t.logger.Error("dev blacklist write failed", slog.String("error", err.Error()))
		}
	}

	t.appendEvent(ctx, domain.Event{
		Mint:   cand.Mint,
		Action: domain.EventRiskReject,
		Reason: res.Reason,
		Data:   res.Details,
	})
}

func (t *Trader) buy(ctx context.Context, cand domain.Candidate) {
	info, err := t.chain.MintInfo(ctx, cand.Mint)
	if err != nil {
		t.logger.Warn("cannot read mint decimals",
			slog.String("mint", cand.Mint),
			slog.String("error", err.Error()))
		return
	}

	receipt, res := t.buyer.Buy(ctx, cand.Mint, t.cfg.BuySizeSOL, info.Decimals)
	if !res.Sent() {
		t.logger.Warn("buy failed",
			slog.String("mint", cand.Mint),
			slog.String("outcome", string(res.Outcome)))
		return
	}

	qty := receipt.QtyToken
	// Once the transaction confirms, the chain knows better than the quote.
	if res.Confirmed {
		if raw, decimals, err := t.chain.TokenBalance(ctx, t.wallet, cand.Mint); err == nil && raw > 0 {
			qty = float64(raw) / math.Pow10(int(decimals))
		}
	}

	pos := domain.Position{
		Mint:       cand.Mint,
		Symbol:     cand.Symbol,
		Status:     domain.PositionStatusOpen,
		EntryPrice: receipt.Price,
		HighWater:  receipt.Price,
		QtyToken:   qty,
		EntryTs:    t.now(),
		BuyTxSig:   receipt.TxSignature,
	}
	if err := t.positions.Create(ctx, pos); err != nil {
		t.logger.Error("position create failed",
			slog.String("mint", cand.Mint),
			slog.String("error", err.Error()))
		return
	}

	t.appendEvent(ctx, domain.Event{
		Mint:   cand.Mint,
		Action: domain.EventBuy,
		Data: map[string]any{
			"sol":       receipt.SolSpent,
			"qty":       qty,
			"price":     receipt.Price,
			"tx":        receipt.TxSignature,
			"confirmed": res.Confirmed,
			"source":    cand.Source,
		},
	})
	t.alert(ctx, domain.EventBuy, fmt.Sprintf("BUY %s", cand.Symbol),
		fmt.Sprintf("%s sol=%.3f qty=%.4f tx=%s", cand.Mint, receipt.SolSpent, qty, receipt.TxSignature))

	t.logger.Info("position opened",
		slog.String("mint", cand.Mint),
		slog.Float64("sol", receipt.SolSpent),
		slog.Float64("qty", qty),
		slog.String("tx", receipt.TxSignature))
}

func (t *Trader) appendEvent(ctx context.Context, ev domain.Event) {
	if ev.Ts.IsZero() {
		ev.Ts = t.now()
	}
	if err := t.events.Append(ctx, ev); err != nil {
		t.logger.Error("audit append failed",
			slog.String("mint", ev.Mint),
			slog.String("action", ev.Action),
			slog.String("error", err.Error()))
	}
}

func (t *Trader) alert(ctx context.Context, event, title, message string) {
	if t.notifier == nil {
		return
	}
	if err := t.notifier.Notify(ctx, event, title, message); err != nil {
		t.logger.Warn("notification failed", slog.String("error", err.Error()))
	}
}
