package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tng25/lino/internal/domain"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	addr := os.Getenv("LINO_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LINO_TEST_REDIS_ADDR not set")
	}

	client, err := New(context.Background(), ClientConfig{Addr: addr, PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestCooldownStoreBlockAndExpiry(t *testing.T) {
	client := newTestClient(t)
	store := NewCooldownStore(client)
	ctx := context.Background()

	key := domain.CooldownMintKey("TestMint")
	_ = store.Clear(ctx, key)

	blocked, _, err := store.Blocked(ctx, key)
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, store.Block(ctx, key, time.Second, "ROUTE_FAIL"))

	blocked, reason, err := store.Blocked(ctx, key)
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, "ROUTE_FAIL", reason)

	// The TTL, not a sweeper, removes the entry.
	time.Sleep(1100 * time.Millisecond)
	blocked, _, err = store.Blocked(ctx, key)
	require.NoError(t, err)
	assert.False(t, blocked)

	// Zero duration is a no-op.
	require.NoError(t, store.Block(ctx, key, 0, "ignored"))
	blocked, _, err = store.Blocked(ctx, key)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestPriceCacheRoundTrip(t *testing.T) {
	client := newTestClient(t)
	cache := NewPriceCache(client, time.Minute)
	ctx := context.Background()

	_, _, err := cache.GetPrice(ctx, "NoSuchMint")
	require.ErrorIs(t, err, domain.ErrNotFound)

	ts := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, cache.SetPrice(ctx, "MintEEE", 0.00042, ts))

	price, gotTs, err := cache.GetPrice(ctx, "MintEEE")
	require.NoError(t, err)
	assert.Equal(t, 0.00042, price)
	assert.Equal(t, ts.UnixNano(), gotTs.UnixNano())

	prices, err := cache.GetPrices(ctx, []string{"MintEEE", "NoSuchMint"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"MintEEE": 0.00042}, prices)
}
