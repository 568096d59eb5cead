package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gitco/alphatrader/internal/domain"
)

// StateStore implements domain.StateStore over the app_state key/value table.
// Values are stored as JSONB; each Set is a single-row upsert, which is the
// unit of atomicity the engine relies on.
type StateStore struct {
	pool *pgxpool.Pool
}

// NewStateStore creates a new StateStore backed by the given connection pool.
func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{pool: pool}
}

// Get loads the value stored under key into out. Missing keys return
// domain.ErrNotFound and leave out untouched.
func (s *StateStore) Get(ctx context.Context, key string, out any) error {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM app_state WHERE key = $1`, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("postgres: get state %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("postgres: decode state %s: %w", key, err)
	}
	return nil
}

// Set upserts the value under key.
func (s *StateStore) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("postgres: encode state %s: %w", key, err)
	}

	const query = `
		INSERT INTO app_state (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, key, raw); err != nil {
		return fmt.Errorf("postgres: set state %s: %w", key, err)
	}
	return nil
}

// Snapshot loads every well-known key into a typed BotState, applying
// defaults for keys never written.
func (s *StateStore) Snapshot(ctx context.Context) (domain.BotState, error) {
	state := domain.DefaultBotState()

	rows, err := s.pool.Query(ctx, `SELECT key, value FROM app_state`)
	if err != nil {
		return state, fmt.Errorf("postgres: snapshot state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return state, fmt.Errorf("postgres: scan state row: %w", err)
		}

		var dest any
		switch key {
		case domain.StateKillSwitch:
			dest = &state.KillSwitch
		case domain.StateAutoTrading:
			dest = &state.AutoTrading
		case domain.StateTradeUSD:
			dest = &state.TradeUSD
		case domain.StateTradesToday:
			dest = &state.TradesToday
		case domain.StateDailyRealizedPnL:
			dest = &state.DailyRealizedPnL
		case domain.StateTotalRealizedPnL:
			dest = &state.TotalRealizedPnL
		case domain.StateLastResetDate:
			dest = &state.LastResetDate
		case domain.StateLastTradeAt:
			dest = &state.LastTradeAt
		case domain.StateExitCooldowns:
			dest = &state.ExitCooldowns
		default:
			continue
		}
		if err := json.Unmarshal(raw, dest); err != nil {
			return state, fmt.Errorf("postgres: decode state %s: %w", key, err)
		}
	}
	if err := rows.Err(); err != nil {
		return state, fmt.Errorf("postgres: snapshot state rows: %w", err)
	}

	if state.LastTradeAt == nil {
		state.LastTradeAt = map[string]time.Time{}
	}
	if state.ExitCooldowns == nil {
		state.ExitCooldowns = map[string]time.Time{}
	}
	return state, nil
}

var _ domain.StateStore = (*StateStore)(nil)
