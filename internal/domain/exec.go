package domain

// ExecOutcome is the closed set of results a swap attempt can produce.
// Callers branch on the outcome kind only, never on raw error text;
// classification happens once, at the executor boundary.
type ExecOutcome string

const (
	// ExecSent means the transaction was submitted; TxSignature is set.
	ExecSent ExecOutcome = "SENT"
	// ExecRouteFail means the aggregator found no viable route. Retrying
	// soon is wasteful; the mint should be put on a long cooldown.
	ExecRouteFail ExecOutcome = "ROUTE_FAIL"
	// ExecRateLimited means the aggregator or RPC returned HTTP 429.
	ExecRateLimited ExecOutcome = "RATE_LIMITED"
	// ExecInsufficientFunds means the wallet lacks SOL for fees/rent.
	ExecInsufficientFunds ExecOutcome = "INSUFFICIENT_FUNDS"
	// ExecDustUntradeable means the remaining balance is too small to sell
	// economically; the position should be closed locally at price 0.
	ExecDustUntradeable ExecOutcome = "DUST_UNTRADEABLE"
	// ExecFailed is any unclassified failure; safe to retry next tick.
	ExecFailed ExecOutcome = "FAILED"
)

// ExecResult is the outcome of one sell attempt.
type ExecResult struct {
	Outcome     ExecOutcome
	TxSignature string // set only when Outcome == ExecSent
	Confirmed   bool   // false when confirmation timed out (tx may still land)
}

// Sent reports whether the attempt got a transaction on the wire.
func (r ExecResult) Sent() bool { return r.Outcome == ExecSent }

// BuyReceipt summarises a confirmed buy for position creation.
type BuyReceipt struct {
	TxSignature string
	SolSpent    float64 // SOL paid, UI units
	QtyToken    float64 // tokens received, UI units (best-effort, reconciled later)
	Price       float64 // SolSpent / QtyToken when both known, else 0
}
