package domain

import (
	"context"
	"time"
)

// PositionStore is the durable record of open and closed positions. The exit
// engine is the only writer besides the buy pipeline (which only creates);
// all writes are narrow, field-scoped updates keyed by mint.
type PositionStore interface {
	// Create inserts a new OPEN position. Fails if an OPEN row for the mint
	// already exists.
	Create(ctx context.Context, p Position) error

	// GetOpen returns a consistent snapshot of all OPEN positions, oldest
	// entry first.
	GetOpen(ctx context.Context) ([]Position, error)

	// Update applies a partial update to the OPEN row for mint. It is a
	// no-op when no OPEN row exists.
	Update(ctx context.Context, mint string, upd PositionUpdate) error

	// MarkTP1 and MarkTP2 set the take-profit flags. Both are idempotent:
	// setting an already-true flag is a no-op, never an error.
	MarkTP1(ctx context.Context, mint string) error
	MarkTP2(ctx context.Context, mint string) error

	// Close transitions the OPEN row for mint to CLOSED, recording the
	// reason, close price, and timestamp (zero closeTs means now). It is a
	// no-op when no OPEN row exists, to tolerate duplicate exit signals.
	Close(ctx context.Context, mint, reason string, closePrice *float64, closeTs time.Time) error
}

// EventStore appends to the audit log. Append failures must never block a
// state transition; callers log and continue.
type EventStore interface {
	Append(ctx context.Context, ev Event) error
}

// CooldownStore is shared time-bounded block state for mints, devs, and the
// global sell path. Entries expire on their own; lookups never return stale
// blocks.
type CooldownStore interface {
	// Block records a cooldown for key lasting d, annotated with reason.
	Block(ctx context.Context, key string, d time.Duration, reason string) error

	// Blocked reports whether key is under an active cooldown, and the
	// reason recorded when it was set.
	Blocked(ctx context.Context, key string) (bool, string, error)
}

// PriceOracle returns a current reference price for a mint. ok=false (or a
// non-positive price) means "unavailable right now" and is not an error:
// callers skip the tick and retry later.
type PriceOracle interface {
	Price(ctx context.Context, mint string) (price float64, ok bool)
}

// Cooldown key helpers. The global key gates the whole sell path (wallet-
// or venue-level trouble); per-mint keys gate a single token.
const cooldownGlobalKey = "sell:global"

func CooldownGlobalKey() string { return cooldownGlobalKey }

func CooldownMintKey(m string) string { return "sell:mint:" + m }

func BlacklistMintKey(m string) string { return "blacklist:mint:" + m }

func BlacklistDevKey(d string) string { return "blacklist:dev:" + d }
