// Package executor turns sell and buy decisions into signed Jupiter swaps
// and classifies every failure into a closed outcome set.
package executor

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/tng25/lino/internal/domain"
	"github.com/tng25/lino/internal/jupiter"
)

// balanceClampMargin shaves a sliver off the on-chain balance when the
// requested amount exceeds it, so rounding drift never produces an
// oversized transfer.
const balanceClampMargin = 0.995

// Swapper is the aggregator surface the executor needs.
type Swapper interface {
	Quote(ctx context.Context, params jupiter.QuoteParams) (*jupiter.Quote, error)
	Swap(ctx context.Context, quote *jupiter.Quote, userPublicKey string) (string, error)
}

// Chain is the RPC surface the executor needs.
type Chain interface {
	TokenBalance(ctx context.Context, owner solanago.PublicKey, mint string) (uint64, uint8, error)
	SolBalance(ctx context.Context, owner solanago.PublicKey) (uint64, error)
	SendTransaction(ctx context.Context, tx *solanago.Transaction) (solanago.Signature, error)
	Confirm(ctx context.Context, sig solanago.Signature) (bool, error)
}

// Signer signs transactions with the bot wallet.
type Signer interface {
	PublicKey() solanago.PublicKey
	SignTransaction(tx *solanago.Transaction) error
}

// Executor submits swaps. All failures come back as an ExecResult outcome,
// never as raw errors: callers branch on the kind, the executor logs the
// detail.
type Executor struct {
	swapper Swapper
	chain   Chain
	signer  Signer
	logger  *slog.Logger
}

// New creates an Executor.
func New(swapper Swapper, chain Chain, signer Signer, logger *slog.Logger) *Executor {
	return &Executor{
		swapper: swapper,
		chain:   chain,
		signer:  signer,
		logger:  logger.With(slog.String("component", "executor")),
	}
}

// Sell swaps qtyUI tokens of mint into SOL; reason names the exit rule that
// requested it and appears in the logs only. The requested amount is
// reconciled against the live on-chain balance: a request at or above the
// balance is clamped with a small margin (selling the exact balance trips
// rounding-dust simulation failures), and a zero balance or zero raw amount
// is DUST_UNTRADEABLE so the caller can close the position locally.
func (e *Executor) Sell(ctx context.Context, mint string, qtyUI float64, reason string) domain.ExecResult {
	balanceRaw, decimals, err := e.chain.TokenBalance(ctx, e.signer.PublicKey(), mint)
	if err != nil {
		return e.fail("read token balance", mint, err)
	}
	if balanceRaw == 0 {
		e.logger.Info("no balance on chain, treating as dust",
			slog.String("mint", mint),
			slog.String("reason", reason))
		return domain.ExecResult{Outcome: domain.ExecDustUntradeable}
	}

	requestedRaw := uint64(qtyUI * math.Pow10(int(decimals)))
	if requestedRaw >= balanceRaw {
		requestedRaw = uint64(float64(balanceRaw) * balanceClampMargin)
	}
	if requestedRaw == 0 {
		return domain.ExecResult{Outcome: domain.ExecDustUntradeable}
	}

	quote, err := e.swapper.Quote(ctx, jupiter.QuoteParams{
		InputMint:  mint,
		OutputMint: jupiter.SOLMint,
		Amount:     requestedRaw,
	})
	if err != nil {
		return e.fail("quote", mint, err)
	}
	if quote.OutAmountRaw() == 0 {
		// A route that pays nothing is no route.
		return e.fail("quote", mint, domain.ErrNoRoute)
	}

	sig, confirmed, err := e.submit(ctx, quote)
	if err != nil {
		return e.fail("submit", mint, err)
	}

	e.logger.Info("sell sent",
		slog.String("mint", mint),
		slog.String("reason", reason),
		slog.Uint64("amount_raw", requestedRaw),
		slog.String("tx", sig.String()),
		slog.Bool("confirmed", confirmed))

	return domain.ExecResult{
		Outcome:     domain.ExecSent,
		TxSignature: sig.String(),
		Confirmed:   confirmed,
	}
}

// Buy swaps solAmount SOL into mint. On success the receipt carries the
// realised quantities for position creation.
func (e *Executor) Buy(ctx context.Context, mint string, solAmount float64, tokenDecimals uint8) (domain.BuyReceipt, domain.ExecResult) {
	lamports := uint64(solAmount * 1e9)
	if lamports == 0 {
		return domain.BuyReceipt{}, domain.ExecResult{Outcome: domain.ExecDustUntradeable}
	}

	quote, err := e.swapper.Quote(ctx, jupiter.QuoteParams{
		InputMint:  jupiter.SOLMint,
		OutputMint: mint,
		Amount:     lamports,
	})
	if err != nil {
		return domain.BuyReceipt{}, e.fail("quote", mint, err)
	}
	if quote.OutAmountRaw() == 0 {
		return domain.BuyReceipt{}, e.fail("quote", mint, domain.ErrNoRoute)
	}

	sig, confirmed, err := e.submit(ctx, quote)
	if err != nil {
		return domain.BuyReceipt{}, e.fail("submit", mint, err)
	}

	qtyToken := float64(quote.OutAmountRaw()) / math.Pow10(int(tokenDecimals))
	receipt := domain.BuyReceipt{
		TxSignature: sig.String(),
		SolSpent:    solAmount,
		QtyToken:    qtyToken,
	}
	if qtyToken > 0 {
		receipt.Price = solAmount / qtyToken
	}

	e.logger.Info("buy sent",
		slog.String("mint", mint),
		slog.Float64("sol", solAmount),
		slog.Float64("qty", qtyToken),
		slog.String("tx", sig.String()),
		slog.Bool("confirmed", confirmed))

	return receipt, domain.ExecResult{
		Outcome:     domain.ExecSent,
		TxSignature: sig.String(),
		Confirmed:   confirmed,
	}
}

// submit builds, signs, and sends the swap transaction, then waits for
// confirmation. A confirmation timeout is not an error: the transaction was
// sent and may still land.
func (e *Executor) submit(ctx context.Context, quote *jupiter.Quote) (solanago.Signature, bool, error) {
	txBase64, err := e.swapper.Swap(ctx, quote, e.signer.PublicKey().String())
	if err != nil {
		return solanago.Signature{}, false, err
	}

	txBytes, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return solanago.Signature{}, false, fmt.Errorf("executor: decode swap transaction: %w", err)
	}
	tx, err := solanago.TransactionFromBytes(txBytes)
	if err != nil {
		return solanago.Signature{}, false, fmt.Errorf("executor: parse swap transaction: %w", err)
	}

	if err := e.signer.SignTransaction(tx); err != nil {
		return solanago.Signature{}, false, err
	}

	var sig solanago.Signature
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return solanago.Signature{}, false, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
		sig, lastErr = e.chain.SendTransaction(ctx, tx)
		if lastErr == nil {
			break
		}
		// Classified failures carry a decision; only generic ones get retried.
		if Classify(lastErr) != domain.ExecFailed {
			return solanago.Signature{}, false, lastErr
		}
	}
	if lastErr != nil {
		return solanago.Signature{}, false, lastErr
	}

	confirmed, err := e.chain.Confirm(ctx, sig)
	if err != nil {
		// On-chain failure after send: surface for classification.
		return solanago.Signature{}, false, err
	}
	return sig, confirmed, nil
}

func (e *Executor) fail(op, mint string, err error) domain.ExecResult {
	outcome := Classify(err)
	e.logger.Warn("swap attempt failed",
		slog.String("op", op),
		slog.String("mint", mint),
		slog.String("outcome", string(outcome)),
		slog.String("error", err.Error()))
	return domain.ExecResult{Outcome: outcome}
}
