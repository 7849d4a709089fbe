// Package risk implements the anti-rug gate that every buy candidate must
// pass before capital is committed.
package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/tng25/lino/internal/domain"
	"github.com/tng25/lino/internal/solana"
)

// ChainReader is the slice of the RPC surface the gate needs.
type ChainReader interface {
	MintInfo(ctx context.Context, mint string) (solana.MintInfo, error)
	LargestAccounts(ctx context.Context, mint string) ([]solana.Holding, error)
	HolderBalancesByMint(ctx context.Context, mint string, maxAccounts int) (map[solanago.PublicKey]uint64, bool, error)
}

// Config holds the gate thresholds.
type Config struct {
	MaxTop1Pct          float64
	MaxTop10Pct         float64
	RequireRenounced    bool
	BlockToken2022      bool
	FallbackMaxAccounts int
	MinLiquidityUSD     float64
	MinMarketCapUSD     float64
}

// Gate evaluates candidates against on-chain structure: owning program,
// authority renouncement, supply sanity, and holder concentration.
type Gate struct {
	chain  ChainReader
	cfg    Config
	logger *slog.Logger
}

// New creates a Gate.
func New(chain ChainReader, cfg Config, logger *slog.Logger) *Gate {
	return &Gate{
		chain:  chain,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "risk")),
	}
}

func reject(reason string, details map[string]any) domain.RiskResult {
	return domain.RiskResult{OK: false, Reason: reason, Details: details}
}

// Check runs the full gate over one candidate. Rejections carry a stable
// reason code; the details map is for the audit log only.
func (g *Gate) Check(ctx context.Context, cand domain.Candidate) domain.RiskResult {
	// Cheap feed-level floors first, no RPC needed. A zero figure means the
	// feed could not price the pool; the floor only applies to known values.
	if g.cfg.MinLiquidityUSD > 0 && cand.LiquidityUSD > 0 && cand.LiquidityUSD < g.cfg.MinLiquidityUSD {
		return reject(domain.RiskLowLiquidity, map[string]any{
			"liquidity_usd": cand.LiquidityUSD,
			"floor":         g.cfg.MinLiquidityUSD,
		})
	}
	if g.cfg.MinMarketCapUSD > 0 && cand.MarketCapUSD > 0 && cand.MarketCapUSD < g.cfg.MinMarketCapUSD {
		return reject(domain.RiskLowMarketCap, map[string]any{
			"market_cap_usd": cand.MarketCapUSD,
			"floor":          g.cfg.MinMarketCapUSD,
		})
	}

	info, err := g.chain.MintInfo(ctx, cand.Mint)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return reject(domain.RiskAccountNotFound, nil)
		}
		return reject(domain.RiskRPCUnavailable, map[string]any{"error": err.Error()})
	}

	switch {
	case info.OwnerProgram.Equals(solanago.TokenProgramID):
		// Classic SPL token, fine.
	case info.OwnerProgram.Equals(solanago.Token2022ProgramID):
		if g.cfg.BlockToken2022 {
			// Token-2022 extensions (transfer hooks, fees) are a honeypot
			// vector this strategy never trades into.
			return reject(domain.RiskBlockedTokenProgram, map[string]any{
				"program": info.OwnerProgram.String(),
			})
		}
	default:
		return reject(domain.RiskBlockedTokenProgram, map[string]any{
			"program": info.OwnerProgram.String(),
		})
	}

	if g.cfg.RequireRenounced && !info.Renounced() {
		details := map[string]any{}
		if info.MintAuthority != nil {
			details["mint_authority"] = info.MintAuthority.String()
		}
		if info.FreezeAuthority != nil {
			details["freeze_authority"] = info.FreezeAuthority.String()
		}
		return reject(domain.RiskAuthorityNotRenounced, details)
	}

	if info.Supply == 0 {
		return reject(domain.RiskSupplyInvalid, nil)
	}

	return g.checkConcentration(ctx, cand.Mint, info.Supply)
}

// checkConcentration measures top-1 and top-10 holder share of supply.
// getTokenLargestAccounts is the primary path; when that call alone is
// rate-limited the gate falls back to a bounded getProgramAccounts scan
// aggregated by owner.
func (g *Gate) checkConcentration(ctx context.Context, mint string, supply uint64) domain.RiskResult {
	holdings, err := g.chain.LargestAccounts(ctx, mint)
	if err != nil {
		if !errors.Is(err, domain.ErrRateLimited) {
			return reject(domain.RiskHoldersUnavailable, map[string]any{"error": err.Error()})
		}

		g.logger.Debug("largest accounts rate limited, falling back to program scan",
			slog.String("mint", mint))

		byOwner, truncated, fbErr := g.chain.HolderBalancesByMint(ctx, mint, g.cfg.FallbackMaxAccounts)
		if fbErr != nil || len(byOwner) == 0 {
			details := map[string]any{"error": err.Error()}
			if fbErr != nil {
				details["fallback_error"] = fbErr.Error()
			}
			return reject(domain.RiskHoldersUnavailable, details)
		}

		// A truncated scan cannot see every holder; a whale beyond the
		// bound would make the concentration figures meaningless. Fail
		// closed rather than approve on a partial view.
		if truncated {
			return reject(domain.RiskHoldersUnavailable, map[string]any{
				"fallback_truncated": true,
				"max_accounts":       g.cfg.FallbackMaxAccounts,
			})
		}

		holdings = make([]solana.Holding, 0, len(byOwner))
		for owner, amount := range byOwner {
			holdings = append(holdings, solana.Holding{Address: owner, Amount: amount})
		}
		sort.Slice(holdings, func(i, j int) bool { return holdings[i].Amount > holdings[j].Amount })
	}

	if len(holdings) == 0 {
		return reject(domain.RiskHoldersUnavailable, nil)
	}

	top1 := float64(holdings[0].Amount) / float64(supply)

	var top10Raw uint64
	for i, h := range holdings {
		if i >= 10 {
			break
		}
		top10Raw += h.Amount
	}
	top10 := float64(top10Raw) / float64(supply)

	details := map[string]any{
		"top1_pct":  top1,
		"top10_pct": top10,
	}
	if g.cfg.MaxTop1Pct > 0 && top1 > g.cfg.MaxTop1Pct {
		details["limit"] = g.cfg.MaxTop1Pct
		return reject(domain.RiskConcentrationTooHigh, details)
	}
	if g.cfg.MaxTop10Pct > 0 && top10 > g.cfg.MaxTop10Pct {
		details["limit"] = g.cfg.MaxTop10Pct
		return reject(domain.RiskConcentrationTooHigh, details)
	}

	return domain.RiskResult{OK: true, Details: details}
}

// Describe renders a compact description of a rejection for logs and alerts.
func Describe(r domain.RiskResult) string {
	if r.OK {
		return "ok"
	}
	if len(r.Details) == 0 {
		return r.Reason
	}
	return fmt.Sprintf("%s %v", r.Reason, r.Details)
}
