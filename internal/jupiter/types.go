package jupiter

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// SOLMint is the wrapped-SOL mint every route quotes against.
const SOLMint = "So11111111111111111111111111111111111111112"

// SwapMode selects which leg of the quote is exact.
const (
	SwapModeExactIn  = "ExactIn"
	SwapModeExactOut = "ExactOut"
)

// QuoteParams describes a quote request.
type QuoteParams struct {
	InputMint   string
	OutputMint  string
	Amount      uint64 // raw units of the exact leg
	SlippageBps int
	SwapMode    string // defaults to ExactIn
}

// Quote is a decoded quote response. The raw body is retained because the
// swap endpoint wants the quote passed back verbatim.
type Quote struct {
	InputMint            string `json:"inputMint"`
	InAmount             string `json:"inAmount"`
	OutputMint           string `json:"outputMint"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
	SwapMode             string `json:"swapMode"`
	SlippageBps          int    `json:"slippageBps"`
	PriceImpactPct       string `json:"priceImpactPct"`

	raw json.RawMessage
}

// InAmountRaw returns the input leg in raw units.
func (q *Quote) InAmountRaw() uint64 {
	v, _ := strconv.ParseUint(q.InAmount, 10, 64)
	return v
}

// OutAmountRaw returns the output leg in raw units.
func (q *Quote) OutAmountRaw() uint64 {
	v, _ := strconv.ParseUint(q.OutAmount, 10, 64)
	return v
}

// swapRequest is the POST body for the swap endpoint.
type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports string          `json:"prioritizationFeeLamports,omitempty"`
}

// swapResponse carries the unsigned transaction to submit.
type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// apiErrorBody is the error shape both endpoints return.
type apiErrorBody struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

// APIError is a non-2xx response from the aggregator. Status and Code are
// what the executor's failure classification branches on.
type APIError struct {
	Status  int    // HTTP status
	Code    string // aggregator error code, e.g. "COULD_NOT_FIND_ANY_ROUTE"
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("jupiter: http %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("jupiter: http %d: %s", e.Status, e.Message)
}

// priceResponse is the price API v2 shape.
type priceResponse struct {
	Data map[string]struct {
		ID    string `json:"id"`
		Price string `json:"price"`
	} `json:"data"`
}
