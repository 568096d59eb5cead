package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gitco/alphatrader/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, symbol, strategy, entry_price, quantity,
	used_usd, fees_usd, realized_pnl, unrealized_pnl, current_price,
	highest_price, stop_loss, take_profit, trail_active, trail_stop,
	status, opened_at, closed_at, exit_price`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var status string

	err := row.Scan(
		&p.ID, &p.Symbol, &p.Strategy,
		&p.EntryPrice, &p.Quantity,
		&p.UsedUSD, &p.FeesUSD, &p.RealizedPnL, &p.UnrealizedPnL, &p.CurrentPrice,
		&p.HighestPrice, &p.StopLoss, &p.TakeProfit, &p.TrailActive, &p.TrailStop,
		&status, &p.OpenedAt, &p.ClosedAt, &p.ExitPrice,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Status = domain.PositionStatus(status)
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, symbol, strategy, entry_price, quantity,
			used_usd, fees_usd, realized_pnl, unrealized_pnl, current_price,
			highest_price, stop_loss, take_profit, trail_active, trail_stop,
			status, opened_at, closed_at, exit_price, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18, $19, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Symbol, p.Strategy,
		p.EntryPrice, p.Quantity,
		p.UsedUSD, p.FeesUSD, p.RealizedPnL, p.UnrealizedPnL, p.CurrentPrice,
		p.HighestPrice, p.StopLoss, p.TakeProfit, p.TrailActive, p.TrailStop,
		string(p.Status), p.OpenedAt, p.ClosedAt, p.ExitPrice,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// Update replaces all mutable fields of a position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE positions SET
			symbol         = $2,
			strategy       = $3,
			entry_price    = $4,
			quantity       = $5,
			used_usd       = $6,
			fees_usd       = $7,
			realized_pnl   = $8,
			unrealized_pnl = $9,
			current_price  = $10,
			highest_price  = $11,
			stop_loss      = $12,
			take_profit    = $13,
			trail_active   = $14,
			trail_stop     = $15,
			status         = $16,
			closed_at      = $17,
			exit_price     = $18,
			updated_at     = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.Symbol, p.Strategy,
		p.EntryPrice, p.Quantity,
		p.UsedUSD, p.FeesUSD, p.RealizedPnL, p.UnrealizedPnL, p.CurrentPrice,
		p.HighestPrice, p.StopLoss, p.TakeProfit, p.TrailActive, p.TrailStop,
		string(p.Status), p.ClosedAt, p.ExitPrice,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateIfOpen writes the position's mutable fields only while the stored row
// is still open. The status guard is the last-writer check that keeps a stale
// mark-price refresh from reopening a row the reconciler just closed.
func (s *PositionStore) UpdateIfOpen(ctx context.Context, p domain.Position) (bool, error) {
	const query = `
		UPDATE positions SET
			quantity       = $2,
			used_usd       = $3,
			fees_usd       = $4,
			realized_pnl   = $5,
			unrealized_pnl = $6,
			current_price  = $7,
			highest_price  = $8,
			stop_loss      = $9,
			take_profit    = $10,
			trail_active   = $11,
			trail_stop     = $12,
			updated_at     = NOW()
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, p.Quantity,
		p.UsedUSD, p.FeesUSD, p.RealizedPnL, p.UnrealizedPnL, p.CurrentPrice,
		p.HighestPrice, p.StopLoss, p.TakeProfit, p.TrailActive, p.TrailStop,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: update open position %s: %w", p.ID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPositionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListOpen returns all open positions, oldest first.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'open'
		 ORDER BY opened_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// FindOpen returns the open position for the symbol+strategy pair, if any.
func (s *PositionStore) FindOpen(ctx context.Context, symbol, strategy string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE symbol = $1 AND strategy = $2 AND status = 'open'`,
		symbol, strategy)

	p, err := scanPositionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: find open position %s/%s: %w", symbol, strategy, err)
	}
	return p, nil
}

// ListAll returns positions of any status with pagination and optional time filtering.
func (s *PositionStore) ListAll(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	query, args := pagedQuery(
		`SELECT `+positionSelectCols+` FROM positions`,
		"opened_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return positions, nil
}

// ListClosedBetween returns closed positions with closed_at in [since, until).
func (s *PositionStore) ListClosedBetween(ctx context.Context, since, until time.Time) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'closed' AND closed_at >= $1 AND closed_at < $2
		 ORDER BY closed_at ASC`,
		since, until)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return positions, nil
}

// CloseIfOpen transitions a position to closed only if it is still open.
// The WHERE status guard makes concurrent closers race safely: exactly one
// writer wins and the loser sees changed=false.
func (s *PositionStore) CloseIfOpen(ctx context.Context, id string, exitPrice, pnl float64, closedAt time.Time) (bool, error) {
	const query = `
		UPDATE positions SET
			status       = 'closed',
			exit_price   = $2,
			realized_pnl = $3,
			closed_at    = $4,
			updated_at   = NOW()
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query, id, exitPrice, pnl, closedAt)
	if err != nil {
		return false, fmt.Errorf("postgres: close position %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
