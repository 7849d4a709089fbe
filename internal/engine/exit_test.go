package engine

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tng25/lino/internal/domain"
)

type fakePositions struct {
	open []domain.Position

	updates []domain.PositionUpdate
	updMint []string
	tp1     []string
	tp2     []string

	closedMint   []string
	closedReason []string
	closedPrice  []*float64

	getErr error
}

func (f *fakePositions) Create(context.Context, domain.Position) error { return nil }

func (f *fakePositions) GetOpen(context.Context) ([]domain.Position, error) {
	return f.open, f.getErr
}

func (f *fakePositions) Update(_ context.Context, mint string, upd domain.PositionUpdate) error {
	f.updMint = append(f.updMint, mint)
	f.updates = append(f.updates, upd)
	return nil
}

func (f *fakePositions) MarkTP1(_ context.Context, mint string) error {
	f.tp1 = append(f.tp1, mint)
	return nil
}

func (f *fakePositions) MarkTP2(_ context.Context, mint string) error {
	f.tp2 = append(f.tp2, mint)
	return nil
}

func (f *fakePositions) Close(_ context.Context, mint, reason string, closePrice *float64, _ time.Time) error {
	f.closedMint = append(f.closedMint, mint)
	f.closedReason = append(f.closedReason, reason)
	f.closedPrice = append(f.closedPrice, closePrice)
	return nil
}

type fakeEvents struct {
	events []domain.Event
	err    error
}

func (f *fakeEvents) Append(_ context.Context, ev domain.Event) error {
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeEvents) actions() []string {
	var out []string
	for _, ev := range f.events {
		out = append(out, ev.Action)
	}
	return out
}

type blockCall struct {
	key    string
	d      time.Duration
	reason string
}

type fakeCooldowns struct {
	blocked map[string]string
	calls   []blockCall
}

func newFakeCooldowns() *fakeCooldowns {
	return &fakeCooldowns{blocked: map[string]string{}}
}

func (f *fakeCooldowns) Block(_ context.Context, key string, d time.Duration, reason string) error {
	f.calls = append(f.calls, blockCall{key: key, d: d, reason: reason})
	f.blocked[key] = reason
	return nil
}

func (f *fakeCooldowns) Blocked(_ context.Context, key string) (bool, string, error) {
	reason, ok := f.blocked[key]
	return ok, reason, nil
}

type fakeOracle struct {
	prices map[string]float64
}

func (f *fakeOracle) Price(_ context.Context, mint string) (float64, bool) {
	p, ok := f.prices[mint]
	return p, ok
}

type sellCall struct {
	mint   string
	qty    float64
	reason string
}

type fakeSeller struct {
	result domain.ExecResult
	calls  []sellCall
}

func (f *fakeSeller) Sell(_ context.Context, mint string, qty float64, reason string) domain.ExecResult {
	f.calls = append(f.calls, sellCall{mint: mint, qty: qty, reason: reason})
	return f.result
}

func sentResult() domain.ExecResult {
	return domain.ExecResult{Outcome: domain.ExecSent, TxSignature: "sig", Confirmed: true}
}

func testEngineConfig() Config {
	return Config{
		TP1Pct:             0.30,
		TP1Size:            0.35,
		TP2Pct:             0.80,
		TP2Size:            0.35,
		HardSLPct:          -0.25,
		TrailTight:         0.10,
		TrailWide:          0.20,
		TimeStop:           15 * time.Minute,
		TimeStopMinPnl:     0.05,
		RateLimitCooldown:  90 * time.Second,
		InsufFundsCooldown: 90 * time.Second,
		RouteFailCooldown:  45 * time.Minute,
	}
}

type harness struct {
	engine    *Engine
	positions *fakePositions
	events    *fakeEvents
	cooldowns *fakeCooldowns
	oracle    *fakeOracle
	seller    *fakeSeller
	now       time.Time
}

func newHarness(open []domain.Position, prices map[string]float64, result domain.ExecResult) *harness {
	h := &harness{
		positions: &fakePositions{open: open},
		events:    &fakeEvents{},
		cooldowns: newFakeCooldowns(),
		oracle:    &fakeOracle{prices: prices},
		seller:    &fakeSeller{result: result},
		now:       time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	h.engine = New(h.positions, h.events, h.cooldowns, h.oracle, h.seller, nil,
		testEngineConfig(), slog.New(slog.DiscardHandler))
	h.engine.now = func() time.Time { return h.now }
	return h
}

// openPos builds a position opened 1 minute ago with entry bootstrapped.
func openPos(mint string, entry float64) domain.Position {
	return domain.Position{
		Mint:       mint,
		Symbol:     mint[:3],
		Status:     domain.PositionStatusOpen,
		EntryPrice: entry,
		HighWater:  entry,
		QtyToken:   1000,
		EntryTs:    time.Date(2026, 8, 30, 11, 59, 0, 0, time.UTC),
	}
}

func TestHardStopLossClosesPosition(t *testing.T) {
	pos := openPos("MintAAA", 1.0)
	h := newHarness([]domain.Position{pos}, map[string]float64{"MintAAA": 0.74}, sentResult())

	require.NoError(t, h.engine.RunOnce(context.Background()))

	require.Len(t, h.seller.calls, 1)
	assert.Equal(t, 1000.0, h.seller.calls[0].qty)
	assert.Equal(t, domain.CloseReasonHardSL, h.seller.calls[0].reason)

	require.Equal(t, []string{"MintAAA"}, h.positions.closedMint)
	assert.Equal(t, []string{domain.CloseReasonHardSL}, h.positions.closedReason)
	require.NotNil(t, h.positions.closedPrice[0])
	assert.Equal(t, 0.74, *h.positions.closedPrice[0])

	assert.Equal(t, []string{domain.EventClose}, h.events.actions())
}

func TestHardStopBoundaryIsInclusive(t *testing.T) {
	pos := openPos("MintAAA", 1.0)
	// Exactly -25%.
	h := newHarness([]domain.Position{pos}, map[string]float64{"MintAAA": 0.75}, sentResult())

	require.NoError(t, h.engine.RunOnce(context.Background()))
	assert.Equal(t, []string{domain.CloseReasonHardSL}, h.positions.closedReason)
}

func TestTimeStop(t *testing.T) {
	t.Run("fires when stale and flat", func(t *testing.T) {
		pos := openPos("MintAAA", 1.0)
		pos.EntryTs = time.Date(2026, 8, 30, 11, 30, 0, 0, time.UTC) // 30 minutes old
		h := newHarness([]domain.Position{pos}, map[string]float64{"MintAAA": 1.01}, sentResult())

		require.NoError(t, h.engine.RunOnce(context.Background()))
		assert.Equal(t, []string{domain.CloseReasonTimeStop}, h.positions.closedReason)
	})

	t.Run("held open when pnl clears the floor", func(t *testing.T) {
		pos := openPos("MintAAA", 1.0)
		pos.EntryTs = time.Date(2026, 8, 30, 11, 30, 0, 0, time.UTC)
		pos.HighWater = 1.10
		h := newHarness([]domain.Position{pos}, map[string]float64{"MintAAA": 1.06}, sentResult())

		require.NoError(t, h.engine.RunOnce(context.Background()))
		assert.Empty(t, h.seller.calls)
	})

	t.Run("not before the deadline", func(t *testing.T) {
		pos := openPos("MintAAA", 1.0) // 1 minute old
		h := newHarness([]domain.Position{pos}, map[string]float64{"MintAAA": 1.0}, sentResult())

		require.NoError(t, h.engine.RunOnce(context.Background()))
		assert.Empty(t, h.seller.calls)
	})
}

func TestTakeProfitTiers(t *testing.T) {
	t.Run("tp1 sells the tier fraction and marks the flag", func(t *testing.T) {
		pos := openPos("MintAAA", 1.0)
		h := newHarness([]domain.Position{pos}, map[string]float64{"MintAAA": 1.30}, sentResult())

		require.NoError(t, h.engine.RunOnce(context.Background()))

		require.Len(t, h.seller.calls, 1)
		assert.InDelta(t, 350.0, h.seller.calls[0].qty, 1e-9)
		assert.Equal(t, "tp1", h.seller.calls[0].reason)
		assert.Equal(t, []string{"MintAAA"}, h.positions.tp1)
		assert.Empty(t, h.positions.tp2)
		assert.Empty(t, h.positions.closedMint)
		assert.Equal(t, []string{domain.EventPartialSell}, h.events.actions())
	})

	t.Run("one rule per pass even when both tiers qualify", func(t *testing.T) {
		pos := openPos("MintAAA", 1.0)
		h := newHarness([]domain.Position{pos}, map[string]float64{"MintAAA": 2.0}, sentResult())

		require.NoError(t, h.engine.RunOnce(context.Background()))

		require.Len(t, h.seller.calls, 1)
		assert.Equal(t, []string{"MintAAA"}, h.positions.tp1)
		assert.Empty(t, h.positions.tp2)
	})

	t.Run("tp2 after tp1, same fraction of the original size", func(t *testing.T) {
		pos := openPos("MintAAA", 1.0)
		pos.Tp1Done = true
		h := newHarness([]domain.Position{pos}, map[string]float64{"MintAAA": 1.85}, sentResult())

		require.NoError(t, h.engine.RunOnce(context.Background()))

		require.Len(t, h.seller.calls, 1)
		assert.InDelta(t, 350.0, h.seller.calls[0].qty, 1e-9)
		assert.Equal(t, "tp2", h.seller.calls[0].reason)
		assert.Equal(t, []string{"MintAAA"}, h.positions.tp2)
	})

	t.Run("no re-fire once both flags are set", func(t *testing.T) {
		pos := openPos("MintAAA", 1.0)
		pos.Tp1Done = true
		pos.Tp2Done = true
		pos.HighWater = 1.9
		h := newHarness([]domain.Position{pos}, map[string]float64{"MintAAA": 1.85}, sentResult())

		require.NoError(t, h.engine.RunOnce(context.Background()))
		assert.Empty(t, h.seller.calls)
	})
}

func TestTrailingStop(t *testing.T) {
	t.Run("tight retracement before tp2", func(t *testing.T) {
		pos := openPos("MintAAA", 1.0)
		pos.Tp1Done = true
		pos.HighWater = 1.5
		// 1.35 is exactly the 10% stop.
		h := newHarness([]domain.Position{pos}, map[string]float64{"MintAAA": 1.35}, sentResult())

		require.NoError(t, h.engine.RunOnce(context.Background()))

		require.Len(t, h.seller.calls, 1)
		assert.Equal(t, 1000.0, h.seller.calls[0].qty)
		assert.Equal(t, domain.CloseReasonTrailingStop, h.seller.calls[0].reason)
		assert.Equal(t, []string{domain.CloseReasonTrailingStop}, h.positions.closedReason)
	})

	t.Run("wide retracement after tp2", func(t *testing.T) {
		pos := openPos("MintAAA", 1.0)
		pos.Tp1Done = true
		pos.Tp2Done = true
		pos.HighWater = 2.0

		// 11% off the high: inside the wide band, survives.
		h := newHarness([]domain.Position{pos}, map[string]float64{"MintAAA": 1.78}, sentResult())
		require.NoError(t, h.engine.RunOnce(context.Background()))
		assert.Empty(t, h.seller.calls)

		// 21% off the high: out.
		h = newHarness([]domain.Position{pos}, map[string]float64{"MintAAA": 1.58}, sentResult())
		require.NoError(t, h.engine.RunOnce(context.Background()))
		assert.Equal(t, []string{domain.CloseReasonTrailingStop}, h.positions.closedReason)
	})
}

func TestHighWaterUpdates(t *testing.T) {
	pos := openPos("MintAAA", 1.0)
	h := newHarness([]domain.Position{pos}, map[string]float64{"MintAAA": 1.2}, sentResult())

	require.NoError(t, h.engine.RunOnce(context.Background()))

	require.Len(t, h.positions.updates, 1)
	require.NotNil(t, h.positions.updates[0].HighWater)
	assert.Equal(t, 1.2, *h.positions.updates[0].HighWater)
	// 20% pnl triggers nothing.
	assert.Empty(t, h.seller.calls)
}

func TestEntryBootstrap(t *testing.T) {
	pos := openPos("MintAAA", 0)
	pos.HighWater = 0
	h := newHarness([]domain.Position{pos}, map[string]float64{"MintAAA": 0.5}, sentResult())

	require.NoError(t, h.engine.RunOnce(context.Background()))

	require.Len(t, h.positions.updates, 1)
	require.NotNil(t, h.positions.updates[0].EntryPrice)
	assert.Equal(t, 0.5, *h.positions.updates[0].EntryPrice)
	require.NotNil(t, h.positions.updates[0].HighWater)
	assert.Equal(t, 0.5, *h.positions.updates[0].HighWater)

	// Zero pnl from the fresh entry: no rule fires.
	assert.Empty(t, h.seller.calls)
}

func TestPriceUnavailableSkipsTick(t *testing.T) {
	pos := openPos("MintAAA", 1.0)
	h := newHarness([]domain.Position{pos}, map[string]float64{}, sentResult())

	require.NoError(t, h.engine.RunOnce(context.Background()))

	assert.Empty(t, h.seller.calls)
	assert.Empty(t, h.positions.updates)
	assert.Empty(t, h.positions.closedMint)
}

func TestGlobalCooldownSkipsPass(t *testing.T) {
	pos := openPos("MintAAA", 1.0)
	h := newHarness([]domain.Position{pos}, map[string]float64{"MintAAA": 0.5}, sentResult())
	h.cooldowns.blocked[domain.CooldownGlobalKey()] = "RATE_LIMITED"

	require.NoError(t, h.engine.RunOnce(context.Background()))
	assert.Empty(t, h.seller.calls)
}

func TestMintCooldownSkipsPosition(t *testing.T) {
	a := openPos("MintAAA", 1.0)
	b := openPos("MintBBB", 1.0)
	h := newHarness([]domain.Position{a, b},
		map[string]float64{"MintAAA": 0.5, "MintBBB": 0.5}, sentResult())
	h.cooldowns.blocked[domain.CooldownMintKey("MintAAA")] = "ROUTE_FAIL"

	require.NoError(t, h.engine.RunOnce(context.Background()))

	require.Len(t, h.seller.calls, 1)
	assert.Equal(t, "MintBBB", h.seller.calls[0].mint)
}

func TestFailureHandling(t *testing.T) {
	t.Run("rate limit pauses the whole sell path", func(t *testing.T) {
		pos := openPos("MintAAA", 1.0)
		h := newHarness([]domain.Position{pos}, map[string]float64{"MintAAA": 0.5},
			domain.ExecResult{Outcome: domain.ExecRateLimited})

		require.NoError(t, h.engine.RunOnce(context.Background()))

		require.Len(t, h.cooldowns.calls, 1)
		assert.Equal(t, domain.CooldownGlobalKey(), h.cooldowns.calls[0].key)
		assert.Equal(t, 90*time.Second, h.cooldowns.calls[0].d)
		assert.Empty(t, h.positions.closedMint)
		assert.Equal(t, []string{domain.EventCooldown}, h.events.actions())
	})

	t.Run("insufficient funds pauses the whole sell path", func(t *testing.T) {
		pos := openPos("MintAAA", 1.0)
		h := newHarness([]domain.Position{pos}, map[string]float64{"MintAAA": 0.5},
			domain.ExecResult{Outcome: domain.ExecInsufficientFunds})

		require.NoError(t, h.engine.RunOnce(context.Background()))

		require.Len(t, h.cooldowns.calls, 1)
		assert.Equal(t, domain.CooldownGlobalKey(), h.cooldowns.calls[0].key)
	})

	t.Run("route failure pauses only the mint", func(t *testing.T) {
		pos := openPos("MintAAA", 1.0)
		h := newHarness([]domain.Position{pos}, map[string]float64{"MintAAA": 0.5},
			domain.ExecResult{Outcome: domain.ExecRouteFail})

		require.NoError(t, h.engine.RunOnce(context.Background()))

		require.Len(t, h.cooldowns.calls, 1)
		assert.Equal(t, domain.CooldownMintKey("MintAAA"), h.cooldowns.calls[0].key)
		assert.Equal(t, 45*time.Minute, h.cooldowns.calls[0].d)
	})

	t.Run("dust closes locally at price zero", func(t *testing.T) {
		pos := openPos("MintAAA", 1.0)
		h := newHarness([]domain.Position{pos}, map[string]float64{"MintAAA": 0.5},
			domain.ExecResult{Outcome: domain.ExecDustUntradeable})

		require.NoError(t, h.engine.RunOnce(context.Background()))

		require.Equal(t, []string{domain.CloseReasonDust}, h.positions.closedReason)
		require.NotNil(t, h.positions.closedPrice[0])
		assert.Zero(t, *h.positions.closedPrice[0])
	})

	t.Run("unclassified failure changes nothing", func(t *testing.T) {
		pos := openPos("MintAAA", 1.0)
		h := newHarness([]domain.Position{pos}, map[string]float64{"MintAAA": 0.5},
			domain.ExecResult{Outcome: domain.ExecFailed})

		require.NoError(t, h.engine.RunOnce(context.Background()))

		assert.Empty(t, h.cooldowns.calls)
		assert.Empty(t, h.positions.closedMint)
		assert.Empty(t, h.positions.tp1)
	})
}

func TestMidPassGlobalCooldownStopsRemaining(t *testing.T) {
	a := openPos("MintAAA", 1.0)
	b := openPos("MintBBB", 1.0)
	h := newHarness([]domain.Position{a, b},
		map[string]float64{"MintAAA": 0.5, "MintBBB": 0.5},
		domain.ExecResult{Outcome: domain.ExecRateLimited})

	require.NoError(t, h.engine.RunOnce(context.Background()))

	// The first position's 429 stops the pass before the second sells.
	require.Len(t, h.seller.calls, 1)
	assert.Equal(t, "MintAAA", h.seller.calls[0].mint)
}

func TestPositionIsolation(t *testing.T) {
	// First position has no price; second still gets evaluated.
	a := openPos("MintAAA", 1.0)
	b := openPos("MintBBB", 1.0)
	h := newHarness([]domain.Position{a, b}, map[string]float64{"MintBBB": 0.5}, sentResult())

	require.NoError(t, h.engine.RunOnce(context.Background()))

	require.Len(t, h.seller.calls, 1)
	assert.Equal(t, "MintBBB", h.seller.calls[0].mint)
}

func TestAuditFailureDoesNotBlockTransition(t *testing.T) {
	pos := openPos("MintAAA", 1.0)
	h := newHarness([]domain.Position{pos}, map[string]float64{"MintAAA": 0.5}, sentResult())
	h.events.err = errors.New("db down")

	require.NoError(t, h.engine.RunOnce(context.Background()))
	assert.Equal(t, []string{"MintAAA"}, h.positions.closedMint)
}

func TestGetOpenErrorPropagates(t *testing.T) {
	h := newHarness(nil, nil, sentResult())
	h.positions.getErr = errors.New("pool closed")

	err := h.engine.RunOnce(context.Background())
	require.Error(t, err)
}
