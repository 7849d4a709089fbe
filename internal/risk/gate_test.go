package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tng25/lino/internal/domain"
	"github.com/tng25/lino/internal/solana"
)

type fakeChain struct {
	mintInfo    solana.MintInfo
	mintInfoErr error

	largest    []solana.Holding
	largestErr error

	byOwner     map[solanago.PublicKey]uint64
	byOwnerErr  error
	truncated   bool
	scanCalled  bool
}

func (f *fakeChain) MintInfo(context.Context, string) (solana.MintInfo, error) {
	return f.mintInfo, f.mintInfoErr
}

func (f *fakeChain) LargestAccounts(context.Context, string) ([]solana.Holding, error) {
	return f.largest, f.largestErr
}

func (f *fakeChain) HolderBalancesByMint(context.Context, string, int) (map[solanago.PublicKey]uint64, bool, error) {
	f.scanCalled = true
	return f.byOwner, f.truncated, f.byOwnerErr
}

func testConfig() Config {
	return Config{
		MaxTop1Pct:          0.25,
		MaxTop10Pct:         0.60,
		RequireRenounced:    true,
		BlockToken2022:      true,
		FallbackMaxAccounts: 5000,
	}
}

func healthyMint() solana.MintInfo {
	return solana.MintInfo{
		OwnerProgram: solanago.TokenProgramID,
		Supply:       1_000_000,
		Decimals:     6,
	}
}

func addr(n byte) solanago.PublicKey {
	var pk solanago.PublicKey
	pk[0] = n
	return pk
}

func newGate(chain ChainReader, cfg Config) *Gate {
	return New(chain, cfg, slog.New(slog.DiscardHandler))
}

func TestCheckPassesHealthyToken(t *testing.T) {
	chain := &fakeChain{
		mintInfo: healthyMint(),
		largest: []solana.Holding{
			{Address: addr(1), Amount: 100_000},
			{Address: addr(2), Amount: 80_000},
		},
	}

	res := newGate(chain, testConfig()).Check(context.Background(), domain.Candidate{Mint: "Mint"})
	assert.True(t, res.OK)
	assert.InDelta(t, 0.10, res.Details["top1_pct"], 1e-9)
}

func TestCheckRejectionReasons(t *testing.T) {
	auth := addr(9)

	tests := []struct {
		name   string
		chain  *fakeChain
		cand   domain.Candidate
		cfg    func(*Config)
		reason string
	}{
		{
			name:   "mint account missing",
			chain:  &fakeChain{mintInfoErr: fmt.Errorf("solana: mint: %w", domain.ErrNotFound)},
			reason: domain.RiskAccountNotFound,
		},
		{
			name:   "rpc outage",
			chain:  &fakeChain{mintInfoErr: errors.New("connection refused")},
			reason: domain.RiskRPCUnavailable,
		},
		{
			name: "token-2022 blocked",
			chain: &fakeChain{mintInfo: solana.MintInfo{
				OwnerProgram: solanago.Token2022ProgramID,
				Supply:       1,
			}},
			reason: domain.RiskBlockedTokenProgram,
		},
		{
			name: "unknown owner program",
			chain: &fakeChain{mintInfo: solana.MintInfo{
				OwnerProgram: addr(7),
				Supply:       1,
			}},
			reason: domain.RiskBlockedTokenProgram,
		},
		{
			name: "authority not renounced",
			chain: &fakeChain{mintInfo: solana.MintInfo{
				OwnerProgram:  solanago.TokenProgramID,
				Supply:        1,
				MintAuthority: &auth,
			}},
			reason: domain.RiskAuthorityNotRenounced,
		},
		{
			name: "zero supply",
			chain: &fakeChain{mintInfo: solana.MintInfo{
				OwnerProgram: solanago.TokenProgramID,
			}},
			reason: domain.RiskSupplyInvalid,
		},
		{
			name: "top1 concentration",
			chain: &fakeChain{
				mintInfo: healthyMint(),
				largest:  []solana.Holding{{Address: addr(1), Amount: 300_000}},
			},
			reason: domain.RiskConcentrationTooHigh,
		},
		{
			name:   "low liquidity floor",
			chain:  &fakeChain{},
			cand:   domain.Candidate{Mint: "Mint", LiquidityUSD: 10},
			cfg:    func(c *Config) { c.MinLiquidityUSD = 150_000 },
			reason: domain.RiskLowLiquidity,
		},
		{
			name:   "low market cap floor",
			chain:  &fakeChain{},
			cand:   domain.Candidate{Mint: "Mint", LiquidityUSD: 200_000, MarketCapUSD: 5},
			cfg: func(c *Config) {
				c.MinLiquidityUSD = 150_000
				c.MinMarketCapUSD = 10_000
			},
			reason: domain.RiskLowMarketCap,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			cand := tt.cand
			if cand.Mint == "" {
				cand.Mint = "Mint"
			}

			res := newGate(tt.chain, cfg).Check(context.Background(), cand)
			require.False(t, res.OK)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestTop10Concentration(t *testing.T) {
	// Eleven holders of 6.5% each: top1 fine, top10 at 65% over the cap.
	var holdings []solana.Holding
	for i := byte(1); i <= 11; i++ {
		holdings = append(holdings, solana.Holding{Address: addr(i), Amount: 65_000})
	}

	chain := &fakeChain{mintInfo: healthyMint(), largest: holdings}
	res := newGate(chain, testConfig()).Check(context.Background(), domain.Candidate{Mint: "Mint"})
	require.False(t, res.OK)
	assert.Equal(t, domain.RiskConcentrationTooHigh, res.Reason)
	assert.InDelta(t, 0.65, res.Details["top10_pct"], 1e-9)
}

func TestFallbackOnRateLimitOnly(t *testing.T) {
	t.Run("rate limit triggers owner scan", func(t *testing.T) {
		chain := &fakeChain{
			mintInfo:   healthyMint(),
			largestErr: fmt.Errorf("solana: 429: %w", domain.ErrRateLimited),
			byOwner: map[solanago.PublicKey]uint64{
				addr(1): 100_000,
				addr(2): 50_000,
			},
		}

		res := newGate(chain, testConfig()).Check(context.Background(), domain.Candidate{Mint: "Mint"})
		assert.True(t, chain.scanCalled)
		assert.True(t, res.OK)
	})

	t.Run("other errors do not trigger the scan", func(t *testing.T) {
		chain := &fakeChain{
			mintInfo:   healthyMint(),
			largestErr: errors.New("node behind"),
		}

		res := newGate(chain, testConfig()).Check(context.Background(), domain.Candidate{Mint: "Mint"})
		assert.False(t, chain.scanCalled)
		require.False(t, res.OK)
		assert.Equal(t, domain.RiskHoldersUnavailable, res.Reason)
		assert.True(t, res.Transient())
	})

	t.Run("fallback failure is transient", func(t *testing.T) {
		chain := &fakeChain{
			mintInfo:   healthyMint(),
			largestErr: fmt.Errorf("solana: 429: %w", domain.ErrRateLimited),
			byOwnerErr: errors.New("also rate limited"),
		}

		res := newGate(chain, testConfig()).Check(context.Background(), domain.Candidate{Mint: "Mint"})
		require.False(t, res.OK)
		assert.Equal(t, domain.RiskHoldersUnavailable, res.Reason)
		assert.True(t, res.Transient())
	})

	t.Run("truncated scan fails closed", func(t *testing.T) {
		// Only small holders visible within the bound; a whale past it
		// would be invisible, so a partial view must never approve.
		chain := &fakeChain{
			mintInfo:   healthyMint(),
			largestErr: fmt.Errorf("solana: 429: %w", domain.ErrRateLimited),
			byOwner: map[solanago.PublicKey]uint64{
				addr(1): 10_000,
				addr(2): 9_000,
			},
			truncated: true,
		}

		res := newGate(chain, testConfig()).Check(context.Background(), domain.Candidate{Mint: "Mint"})
		assert.True(t, chain.scanCalled)
		require.False(t, res.OK)
		assert.Equal(t, domain.RiskHoldersUnavailable, res.Reason)
		assert.Equal(t, true, res.Details["fallback_truncated"])
		assert.True(t, res.Transient())
	})

	t.Run("fallback catches concentration", func(t *testing.T) {
		chain := &fakeChain{
			mintInfo:   healthyMint(),
			largestErr: fmt.Errorf("solana: 429: %w", domain.ErrRateLimited),
			byOwner: map[solanago.PublicKey]uint64{
				addr(1): 400_000,
				addr(2): 10_000,
			},
		}

		res := newGate(chain, testConfig()).Check(context.Background(), domain.Candidate{Mint: "Mint"})
		require.False(t, res.OK)
		assert.Equal(t, domain.RiskConcentrationTooHigh, res.Reason)
		assert.False(t, res.Transient())
	})
}
