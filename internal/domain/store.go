package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionStore persists positions. Mutation is owned by the lifecycle
// manager; the reconciler, allocator, and admin surface only read, except for
// CloseIfOpen which the reconciler uses for forced closure.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	Update(ctx context.Context, pos Position) error
	// UpdateIfOpen writes pos only while the stored row is still open,
	// reporting whether a row changed. Closed is terminal: readers holding a
	// stale open copy must not write it back over a concurrent closure.
	UpdateIfOpen(ctx context.Context, pos Position) (bool, error)
	GetByID(ctx context.Context, id string) (Position, error)
	ListOpen(ctx context.Context) ([]Position, error)
	// FindOpen returns the open position for a symbol+strategy pair, or
	// ErrNotFound. At most one such row exists (entries merge).
	FindOpen(ctx context.Context, symbol, strategy string) (Position, error)
	ListAll(ctx context.Context, opts ListOpts) ([]Position, error)
	// ListClosedBetween returns closed positions with ClosedAt in [since, until).
	ListClosedBetween(ctx context.Context, since, until time.Time) ([]Position, error)
	// CloseIfOpen transitions a position to closed only when it is still open,
	// returning whether a row was changed. This is the last-writer check that
	// lets the reconciler race safely against the lifecycle manager.
	CloseIfOpen(ctx context.Context, id string, exitPrice, pnl float64, closedAt time.Time) (bool, error)
}

// StateStore persists the process-wide key/value state. A single key write is
// the unit of atomicity.
type StateStore interface {
	Get(ctx context.Context, key string, out any) error
	Set(ctx context.Context, key string, value any) error
	// Snapshot loads every well-known key into a typed BotState, applying
	// defaults for missing keys.
	Snapshot(ctx context.Context) (BotState, error)
}

// AuditEntry is a single append-only audit row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// TickerCache caches scan-cycle market snapshots so handlers and the ws hub
// can serve prices without extra exchange calls.
type TickerCache interface {
	SetAll(ctx context.Context, tickers map[string]Ticker) error
	Get(ctx context.Context, symbol string) (Ticker, error)
}

// EventBus fans engine events (position opened/closed, stats, signals) out to
// interested subscribers such as the websocket hub.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload any) error
	Subscribe(ctx context.Context, channels ...string) (<-chan BusMessage, func(), error)
}

// BusMessage is one message received from the EventBus.
type BusMessage struct {
	Channel string
	Payload []byte
}

// LockManager provides a distributed mutex so only one engine instance trades
// against the account at a time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Refresh(ctx context.Context, key, token string, ttl time.Duration) error
	Release(ctx context.Context, key, token string) error
}

// RateLimiter bounds outbound exchange calls with a sliding window.
type RateLimiter interface {
	// Allow reports whether one more call under key is permitted within the
	// window of the given capacity.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter uploads a blob to object storage.
type BlobWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Archiver copies aged records to cold storage. Archival never deletes from
// the primary store.
type Archiver interface {
	ArchivePositions(ctx context.Context, since, until time.Time) (int64, error)
}
