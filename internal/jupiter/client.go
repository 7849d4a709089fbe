// Package jupiter is a minimal REST client for the Jupiter swap aggregator:
// quote, swap-transaction build, and spot price lookup.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tng25/lino/internal/domain"
)

// ClientConfig holds endpoint and trade parameters.
type ClientConfig struct {
	BaseURL     string // e.g. https://lite-api.jup.ag
	PriceURL    string // e.g. https://lite-api.jup.ag/price/v2
	APIKey      string
	SlippageBps int
	HTTPTimeout time.Duration
}

// Client talks to the aggregator over HTTP. Non-2xx responses surface as
// *APIError so callers can classify by status and code rather than text.
type Client struct {
	baseURL     string
	priceURL    string
	apiKey      string
	slippageBps int
	httpClient  *http.Client
	logger      *slog.Logger
}

// New creates a Client.
func New(cfg ClientConfig, logger *slog.Logger) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	slippage := cfg.SlippageBps
	if slippage <= 0 {
		slippage = 300
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		priceURL:    cfg.PriceURL,
		apiKey:      cfg.APIKey,
		slippageBps: slippage,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger.With(slog.String("component", "jupiter")),
	}
}

// Quote fetches a route quote. Route availability is volatile for fresh
// meme coins, so a missing route is an expected outcome, not an exception;
// it arrives as *APIError with the aggregator's no-route code.
func (c *Client) Quote(ctx context.Context, params QuoteParams) (*Quote, error) {
	swapMode := params.SwapMode
	if swapMode == "" {
		swapMode = SwapModeExactIn
	}
	slippage := params.SlippageBps
	if slippage <= 0 {
		slippage = c.slippageBps
	}

	q := url.Values{}
	q.Set("inputMint", params.InputMint)
	q.Set("outputMint", params.OutputMint)
	q.Set("amount", strconv.FormatUint(params.Amount, 10))
	q.Set("slippageBps", strconv.Itoa(slippage))
	q.Set("swapMode", swapMode)

	body, err := c.get(ctx, c.baseURL+"/swap/v1/quote?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var quote Quote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("jupiter: decode quote: %w", err)
	}
	quote.raw = body
	return &quote, nil
}

// Swap builds the swap transaction for a previously fetched quote and
// returns it base64-encoded, unsigned.
func (c *Client) Swap(ctx context.Context, quote *Quote, userPublicKey string) (string, error) {
	reqBody, err := json.Marshal(swapRequest{
		QuoteResponse:             quote.raw,
		UserPublicKey:             userPublicKey,
		WrapAndUnwrapSol:          true,
		DynamicComputeUnitLimit:   true,
		PrioritizationFeeLamports: "auto",
	})
	if err != nil {
		return "", fmt.Errorf("jupiter: marshal swap request: %w", err)
	}

	body, err := c.post(ctx, c.baseURL+"/swap/v1/swap", reqBody)
	if err != nil {
		return "", err
	}

	var resp swapResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("jupiter: decode swap response: %w", err)
	}
	if resp.SwapTransaction == "" {
		return "", fmt.Errorf("jupiter: swap response has no transaction")
	}
	return resp.SwapTransaction, nil
}

// Price returns the current USD price for a mint from the price API.
func (c *Client) Price(ctx context.Context, mint string) (float64, error) {
	body, err := c.get(ctx, c.priceURL+"?ids="+url.QueryEscape(mint))
	if err != nil {
		return 0, err
	}

	var resp priceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("jupiter: decode price response: %w", err)
	}

	entry, ok := resp.Data[mint]
	if !ok || entry.Price == "" {
		return 0, fmt.Errorf("jupiter: no price for %s: %w", mint, domain.ErrNotFound)
	}
	price, err := strconv.ParseFloat(entry.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("jupiter: parse price %q: %w", entry.Price, err)
	}
	return price, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("jupiter: build request: %w", err)
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("jupiter: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jupiter: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("jupiter: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: string(body)}
		var parsed apiErrorBody
		if json.Unmarshal(body, &parsed) == nil {
			if parsed.Error != "" {
				apiErr.Message = parsed.Error
			}
			apiErr.Code = parsed.ErrorCode
		}
		return nil, apiErr
	}

	// Some endpoints report errors with a 200 status and an error body.
	var parsed apiErrorBody
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
		return nil, &APIError{Status: resp.StatusCode, Code: parsed.ErrorCode, Message: parsed.Error}
	}

	return body, nil
}
