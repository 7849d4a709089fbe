// Package solana wraps the gagliardetto RPC client behind the narrow chain
// surface the bot needs: mint metadata, holder enumeration, balances, and
// transaction submission.
package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/tng25/lino/internal/domain"
)

// ClientConfig holds RPC endpoint and commitment parameters.
type ClientConfig struct {
	RPCURL         string
	Commitment     string
	RequestTimeout time.Duration
	ConfirmTimeout time.Duration
}

// Client is the RPC wrapper. All methods classify HTTP 429 responses as
// domain.ErrRateLimited so callers can branch with errors.Is.
type Client struct {
	rpc            *rpc.Client
	commitment     rpc.CommitmentType
	requestTimeout time.Duration
	confirmTimeout time.Duration
	logger         *slog.Logger
}

// New creates a Client against the configured RPC endpoint.
func New(cfg ClientConfig, logger *slog.Logger) *Client {
	commitment := rpc.CommitmentProcessed
	switch strings.ToLower(cfg.Commitment) {
	case "confirmed":
		commitment = rpc.CommitmentConfirmed
	case "finalized":
		commitment = rpc.CommitmentFinalized
	}

	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 20 * time.Second
	}
	confirmTimeout := cfg.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = 35 * time.Second
	}

	return &Client{
		rpc:            rpc.New(cfg.RPCURL),
		commitment:     commitment,
		requestTimeout: requestTimeout,
		confirmTimeout: confirmTimeout,
		logger:         logger.With(slog.String("component", "solana")),
	}
}

// MintInfo is the decoded SPL mint account plus its owning program.
type MintInfo struct {
	OwnerProgram    solana.PublicKey
	Supply          uint64
	Decimals        uint8
	MintAuthority   *solana.PublicKey
	FreezeAuthority *solana.PublicKey
}

// Renounced reports whether both the mint and freeze authority are unset.
func (m MintInfo) Renounced() bool {
	return m.MintAuthority == nil && m.FreezeAuthority == nil
}

// MintInfo fetches and decodes a mint account. Missing accounts map to
// domain.ErrNotFound.
func (c *Client) MintInfo(ctx context.Context, mint string) (MintInfo, error) {
	pk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return MintInfo{}, fmt.Errorf("solana: parse mint %s: %w", mint, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	res, err := c.rpc.GetAccountInfoWithOpts(ctx, pk, &rpc.GetAccountInfoOpts{
		Commitment: c.commitment,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return MintInfo{}, fmt.Errorf("solana: mint %s: %w", mint, domain.ErrNotFound)
		}
		return MintInfo{}, c.wrapRPC("get mint account", err)
	}
	if res == nil || res.Value == nil {
		return MintInfo{}, fmt.Errorf("solana: mint %s: %w", mint, domain.ErrNotFound)
	}

	var decoded token.Mint
	if err := bin.NewBinDecoder(res.Value.Data.GetBinary()).Decode(&decoded); err != nil {
		return MintInfo{}, fmt.Errorf("solana: decode mint %s: %w", mint, err)
	}

	return MintInfo{
		OwnerProgram:    res.Value.Owner,
		Supply:          decoded.Supply,
		Decimals:        decoded.Decimals,
		MintAuthority:   decoded.MintAuthority,
		FreezeAuthority: decoded.FreezeAuthority,
	}, nil
}

// TokenSupply returns the raw supply and decimals reported by the RPC node.
func (c *Client) TokenSupply(ctx context.Context, mint string) (uint64, uint8, error) {
	pk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, 0, fmt.Errorf("solana: parse mint %s: %w", mint, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	res, err := c.rpc.GetTokenSupply(ctx, pk, c.commitment)
	if err != nil {
		return 0, 0, c.wrapRPC("get token supply", err)
	}
	if res == nil || res.Value == nil {
		return 0, 0, fmt.Errorf("solana: token supply %s: empty response", mint)
	}

	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("solana: parse supply %q: %w", res.Value.Amount, err)
	}
	return amount, res.Value.Decimals, nil
}

// Holding is one token account balance attributed to its address.
type Holding struct {
	Address solana.PublicKey
	Amount  uint64
}

// LargestAccounts returns the top token accounts for a mint, largest first,
// as reported by getTokenLargestAccounts (at most 20 entries).
func (c *Client) LargestAccounts(ctx context.Context, mint string) ([]Holding, error) {
	pk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return nil, fmt.Errorf("solana: parse mint %s: %w", mint, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	res, err := c.rpc.GetTokenLargestAccounts(ctx, pk, c.commitment)
	if err != nil {
		return nil, c.wrapRPC("get largest accounts", err)
	}

	holdings := make([]Holding, 0, len(res.Value))
	for _, acc := range res.Value {
		amount, err := strconv.ParseUint(acc.Amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("solana: parse holding amount %q: %w", acc.Amount, err)
		}
		holdings = append(holdings, Holding{Address: acc.Address, Amount: amount})
	}
	return holdings, nil
}

// HolderBalancesByMint enumerates SPL token accounts for a mint via
// getProgramAccounts and aggregates balances by owner. maxAccounts bounds
// how many accounts are processed; the second return value reports whether
// the enumeration was truncated at that bound.
func (c *Client) HolderBalancesByMint(ctx context.Context, mint string, maxAccounts int) (map[solana.PublicKey]uint64, bool, error) {
	pk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return nil, false, fmt.Errorf("solana: parse mint %s: %w", mint, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	// SPL token accounts are 165 bytes with the mint at offset 0.
	res, err := c.rpc.GetProgramAccountsWithOpts(ctx, solana.TokenProgramID, &rpc.GetProgramAccountsOpts{
		Commitment: c.commitment,
		Filters: []rpc.RPCFilter{
			{DataSize: 165},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(pk.Bytes())}},
		},
	})
	if err != nil {
		return nil, false, c.wrapRPC("get program accounts", err)
	}

	truncated := false
	byOwner := make(map[solana.PublicKey]uint64)
	for i, keyed := range res {
		if maxAccounts > 0 && i >= maxAccounts {
			truncated = true
			break
		}
		var acc token.Account
		if err := bin.NewBinDecoder(keyed.Account.Data.GetBinary()).Decode(&acc); err != nil {
			c.logger.Debug("skipping undecodable token account",
				slog.String("account", keyed.Pubkey.String()))
			continue
		}
		byOwner[acc.Owner] += acc.Amount
	}
	return byOwner, truncated, nil
}

// TokenBalance returns the wallet's raw balance for a mint, summed across its
// token accounts. A wallet with no token account holds zero; that is not an
// error.
func (c *Client) TokenBalance(ctx context.Context, owner solana.PublicKey, mint string) (uint64, uint8, error) {
	pk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, 0, fmt.Errorf("solana: parse mint %s: %w", mint, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	res, err := c.rpc.GetTokenAccountsByOwner(ctx, owner,
		&rpc.GetTokenAccountsConfig{Mint: &pk},
		&rpc.GetTokenAccountsOpts{Commitment: c.commitment},
	)
	if err != nil {
		return 0, 0, c.wrapRPC("get token accounts", err)
	}

	var total uint64
	var decimals uint8
	for _, keyed := range res.Value {
		var acc token.Account
		if err := bin.NewBinDecoder(keyed.Account.Data.GetBinary()).Decode(&acc); err != nil {
			continue
		}
		total += acc.Amount
	}
	if total > 0 {
		// Decimals come from the mint, not the token account.
		info, err := c.MintInfo(ctx, mint)
		if err != nil {
			return 0, 0, err
		}
		decimals = info.Decimals
	}
	return total, decimals, nil
}

// SolBalance returns the wallet's SOL balance in lamports.
func (c *Client) SolBalance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	res, err := c.rpc.GetBalance(ctx, owner, c.commitment)
	if err != nil {
		return 0, c.wrapRPC("get balance", err)
	}
	return res.Value, nil
}

// Simulate runs the transaction through simulateTransaction and returns an
// error carrying the program logs when the simulation fails.
func (c *Client) Simulate(ctx context.Context, tx *solana.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	sim, err := c.rpc.SimulateTransaction(ctx, tx)
	if err != nil {
		return c.wrapRPC("simulate transaction", err)
	}
	if sim.Value != nil && sim.Value.Err != nil {
		return fmt.Errorf("solana: simulation failed: %v (logs: %s)",
			sim.Value.Err, strings.Join(sim.Value.Logs, " | "))
	}
	return nil
}

// SendTransaction submits a signed transaction, skipping preflight (the
// caller simulates separately when it cares).
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return solana.Signature{}, c.wrapRPC("send transaction", err)
	}
	return sig, nil
}

// Confirm polls signature status until the transaction reaches confirmed or
// finalized commitment, the transaction fails on chain, or the confirm
// timeout elapses. A timeout returns (false, nil): the transaction may still
// land later.
func (c *Client) Confirm(ctx context.Context, sig solana.Signature) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
			statuses, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
			if err != nil {
				c.logger.Debug("signature status poll failed", slog.String("error", err.Error()))
				continue
			}
			if len(statuses.Value) == 0 || statuses.Value[0] == nil {
				continue
			}
			status := statuses.Value[0]
			if status.Err != nil {
				return false, fmt.Errorf("solana: transaction %s failed on chain: %v", sig, status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return true, nil
			}
		}
	}
}

// wrapRPC normalizes RPC errors. Rate-limit responses wrap
// domain.ErrRateLimited so callers can branch on the class, not the text.
func (c *Client) wrapRPC(op string, err error) error {
	if isRateLimited(err) {
		return fmt.Errorf("solana: %s: %s: %w", op, err.Error(), domain.ErrRateLimited)
	}
	return fmt.Errorf("solana: %s: %w", op, err)
}

func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "too many requests")
}
