package domain

// Stable machine-checkable risk rejection reasons. The buy pipeline maps
// transient reasons to short blacklist TTLs and structural reasons to long
// ones, so the classification here is part of the contract.
const (
	RiskRPCUnavailable        = "RPC_UNAVAILABLE"
	RiskAccountNotFound       = "ACCOUNT_NOT_FOUND"
	RiskBlockedTokenProgram   = "BLOCKED_TOKEN_PROGRAM"
	RiskAuthorityNotRenounced = "AUTHORITY_NOT_RENOUNCED"
	RiskSupplyInvalid         = "SUPPLY_INVALID"
	RiskConcentrationTooHigh  = "CONCENTRATION_TOO_HIGH"
	RiskHoldersUnavailable    = "HOLDERS_UNAVAILABLE"
	RiskMintBlacklisted       = "MINT_BLACKLISTED"
	RiskDevBlacklisted        = "DEV_BLACKLISTED"
	RiskLowLiquidity          = "LOW_LIQUIDITY"
	RiskLowMarketCap          = "LOW_MARKET_CAP"
)

// RiskResult is the outcome of one anti-rug evaluation. It is transient:
// rejections may be converted into a blacklist entry but the result itself
// is never persisted.
type RiskResult struct {
	OK      bool
	Reason  string // one of the Risk* codes when !OK
	Details map[string]any
}

// Transient reports whether the rejection is infrastructure trouble
// (rate limit, RPC outage) rather than a property of the token itself.
// Transient rejections warrant a short blacklist TTL; structural ones a
// long TTL.
func (r RiskResult) Transient() bool {
	switch r.Reason {
	case RiskRPCUnavailable, RiskHoldersUnavailable:
		return true
	}
	return false
}

// Candidate is a newly discovered token produced by a listing feed and
// consumed by the buy pipeline.
type Candidate struct {
	Mint         string
	Symbol       string
	Name         string
	Dev          string // creator wallet, empty when unknown
	LiquidityUSD float64
	MarketCapUSD float64
	Source       string
}
