package domain

import "time"

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// Close reasons written by the exit engine. These are stable identifiers:
// they end up in the positions table, the events log, and operator alerts.
const (
	CloseReasonHardSL       = "hard_sl"
	CloseReasonTimeStop     = "time_stop"
	CloseReasonTrailingStop = "trailing_stop"
	CloseReasonDust         = "dust_untradeable"
	CloseReasonManual       = "manual"
)

// Position is the canonical record of a token holding. There is at most one
// OPEN row per mint; a position transitions OPEN -> CLOSED exactly once and
// is never mutated afterwards.
type Position struct {
	Mint       string
	Symbol     string
	Status     PositionStatus
	EntryPrice float64 // quote-asset price at acquisition; 0 until bootstrapped
	HighWater  float64 // max observed price since entry, non-decreasing while OPEN
	QtyToken   float64 // held quantity in UI units, reconciled against chain
	Tp1Done    bool
	Tp2Done    bool
	EntryTs    time.Time
	BuyTxSig   string

	CloseTs     *time.Time
	ClosePrice  *float64
	CloseReason string
}

// Age returns how long the position has been open relative to now.
func (p Position) Age(now time.Time) time.Duration {
	return now.Sub(p.EntryTs)
}

// PnL returns the profit-and-loss ratio of price against the entry price.
// It returns 0 when the entry price is not yet bootstrapped.
func (p Position) PnL(price float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice
}

// PositionUpdate is a partial update of an OPEN position's mutable fields.
// Nil fields are left untouched.
type PositionUpdate struct {
	EntryPrice *float64
	HighWater  *float64
	QtyToken   *float64
}

// Event is one row of the append-only audit log. Every state transition
// (buy, partial sell, close, cooldown, risk rejection) appends one, so the
// state machine's path can be reconstructed without re-running it.
type Event struct {
	ID     string
	Ts     time.Time
	Mint   string
	Action string
	Reason string
	Data   map[string]any
}

// Audit event actions.
const (
	EventBuy         = "buy"
	EventPartialSell = "partial_sell"
	EventClose       = "close"
	EventCooldown    = "cooldown"
	EventRiskReject  = "risk_reject"
)
