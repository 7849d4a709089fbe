package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tng25/lino/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

var _ domain.PositionStore = (*PositionStore)(nil)

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `mint, symbol, status, entry_price, high_water,
	qty_token, tp1_done, tp2_done, entry_ts, buy_tx_sig,
	close_ts, close_price, close_reason`

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var status string

		if err := rows.Scan(
			&p.Mint, &p.Symbol, &status,
			&p.EntryPrice, &p.HighWater, &p.QtyToken,
			&p.Tp1Done, &p.Tp2Done,
			&p.EntryTs, &p.BuyTxSig,
			&p.CloseTs, &p.ClosePrice, &p.CloseReason,
		); err != nil {
			return nil, err
		}
		p.Status = domain.PositionStatus(status)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new OPEN position. A second OPEN row for the same mint
// violates the partial unique index and maps to domain.ErrAlreadyExists.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			mint, symbol, status, entry_price, high_water,
			qty_token, tp1_done, tp2_done, entry_ts, buy_tx_sig, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, NOW()
		)`

	status := p.Status
	if status == "" {
		status = domain.PositionStatusOpen
	}
	entryTs := p.EntryTs
	if entryTs.IsZero() {
		entryTs = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, query,
		p.Mint, p.Symbol, string(status),
		p.EntryPrice, p.HighWater, p.QtyToken,
		p.Tp1Done, p.Tp2Done,
		entryTs, p.BuyTxSig,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: create position %s: %w", p.Mint, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: create position %s: %w", p.Mint, err)
	}
	return nil
}

// GetOpen returns all OPEN positions ordered by entry time, oldest first.
func (s *PositionStore) GetOpen(ctx context.Context) ([]domain.Position, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM positions
		WHERE status = 'OPEN'
		ORDER BY entry_ts ASC`, positionSelectCols)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: get open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// ClosedSince returns positions closed at or after since, oldest first. The
// archiver uses this to build periodic exports.
func (s *PositionStore) ClosedSince(ctx context.Context, since time.Time) ([]domain.Position, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM positions
		WHERE status = 'CLOSED' AND close_ts >= $1
		ORDER BY close_ts ASC`, positionSelectCols)

	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: closed positions since %s: %w", since.Format(time.RFC3339), err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return positions, nil
}

// Update applies a partial update to the OPEN row for mint. Nil fields are
// left untouched. It is a no-op when no OPEN row exists.
func (s *PositionStore) Update(ctx context.Context, mint string, upd domain.PositionUpdate) error {
	if upd.EntryPrice == nil && upd.HighWater == nil && upd.QtyToken == nil {
		return nil
	}

	const query = `
		UPDATE positions SET
			entry_price = COALESCE($2, entry_price),
			high_water  = COALESCE($3, high_water),
			qty_token   = COALESCE($4, qty_token),
			updated_at  = NOW()
		WHERE mint = $1 AND status = 'OPEN'`

	_, err := s.pool.Exec(ctx, query, mint, upd.EntryPrice, upd.HighWater, upd.QtyToken)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", mint, err)
	}
	return nil
}

// MarkTP1 sets tp1_done on the OPEN row for mint. Idempotent.
func (s *PositionStore) MarkTP1(ctx context.Context, mint string) error {
	return s.markFlag(ctx, mint, "tp1_done")
}

// MarkTP2 sets tp2_done on the OPEN row for mint. Idempotent.
func (s *PositionStore) MarkTP2(ctx context.Context, mint string) error {
	return s.markFlag(ctx, mint, "tp2_done")
}

func (s *PositionStore) markFlag(ctx context.Context, mint, col string) error {
	// col is always one of the two fixed flag columns.
	query := fmt.Sprintf(`
		UPDATE positions SET %s = TRUE, updated_at = NOW()
		WHERE mint = $1 AND status = 'OPEN'`, col)

	if _, err := s.pool.Exec(ctx, query, mint); err != nil {
		return fmt.Errorf("postgres: mark %s for %s: %w", col, mint, err)
	}
	return nil
}

// Close transitions the OPEN row for mint to CLOSED. A zero closeTs records
// the current time. It is a no-op when no OPEN row exists, so duplicate exit
// signals are harmless.
func (s *PositionStore) Close(ctx context.Context, mint, reason string, closePrice *float64, closeTs time.Time) error {
	if closeTs.IsZero() {
		closeTs = time.Now().UTC()
	}

	const query = `
		UPDATE positions SET
			status       = 'CLOSED',
			close_ts     = $2,
			close_price  = $3,
			close_reason = $4,
			updated_at   = NOW()
		WHERE mint = $1 AND status = 'OPEN'`

	_, err := s.pool.Exec(ctx, query, mint, closeTs, closePrice, reason)
	if err != nil {
		return fmt.Errorf("postgres: close position %s: %w", mint, err)
	}
	return nil
}
