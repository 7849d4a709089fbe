// Package feed streams newly created pump.fun tokens over the pumpportal
// WebSocket and turns them into buy candidates.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tng25/lino/internal/domain"
)

const (
	readDeadline = 90 * time.Second
	pingInterval = 30 * time.Second
)

// CandidateHandler is called for each new token event. Handlers must not
// block: the read loop falls behind the stream otherwise.
type CandidateHandler func(ctx context.Context, cand domain.Candidate)

// SolPriceFunc resolves the current SOL/USD price so SOL-denominated pool
// figures can be expressed in USD. ok=false leaves the figures at zero
// (unknown).
type SolPriceFunc func(ctx context.Context) (float64, bool)

// newTokenEvent is the pumpportal create message.
type newTokenEvent struct {
	TxType             string  `json:"txType"`
	Mint               string  `json:"mint"`
	Name               string  `json:"name"`
	Symbol             string  `json:"symbol"`
	TraderPublicKey    string  `json:"traderPublicKey"`
	MarketCapSol       float64 `json:"marketCapSol"`
	VSolInBondingCurve float64 `json:"vSolInBondingCurve"`
}

// PumpfunFeed connects to the pumpportal data stream, subscribes to new
// token events, and invokes the handler for each create. It reconnects with
// backoff on disconnect.
type PumpfunFeed struct {
	wsURL    string
	handler  CandidateHandler
	solPrice SolPriceFunc
	logger   *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a PumpfunFeed. solPrice may be nil.
func New(wsURL string, handler CandidateHandler, solPrice SolPriceFunc, logger *slog.Logger) *PumpfunFeed {
	return &PumpfunFeed{
		wsURL:    wsURL,
		handler:  handler,
		solPrice: solPrice,
		logger:   logger.With(slog.String("component", "feed")),
		done:     make(chan struct{}),
	}
}

// Run connects and streams until ctx is cancelled or Close is called.
func (f *PumpfunFeed) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}

		f.logger.Warn("feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (f *PumpfunFeed) runConnection(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"method": "subscribeNewToken"}); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("subscribed to new token stream", slog.String("url", f.wsURL))

	// Close the connection when the context ends so ReadMessage unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-f.done:
			_ = conn.Close()
		case <-stop:
		}
	}()

	go f.pingLoop(conn, stop)

	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed: read: %v: %w", err, domain.ErrWSDisconnect)
		}
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))

		var ev newTokenEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			f.logger.Debug("undecodable feed message", slog.Int("len", len(data)))
			continue
		}
		if ev.TxType != "create" || ev.Mint == "" {
			continue
		}

		f.handler(ctx, f.toCandidate(ctx, ev))
	}
}

func (f *PumpfunFeed) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

// toCandidate converts a create event, pricing the SOL-denominated pool
// figures in USD when a SOL price is available.
func (f *PumpfunFeed) toCandidate(ctx context.Context, ev newTokenEvent) domain.Candidate {
	cand := domain.Candidate{
		Mint:   ev.Mint,
		Symbol: ev.Symbol,
		Name:   ev.Name,
		Dev:    ev.TraderPublicKey,
		Source: "pumpfun",
	}
	if f.solPrice != nil {
		if usd, ok := f.solPrice(ctx); ok && usd > 0 {
			cand.LiquidityUSD = ev.VSolInBondingCurve * usd
			cand.MarketCapUSD = ev.MarketCapSol * usd
		}
	}
	return cand
}

// Close stops the feed.
func (f *PumpfunFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
