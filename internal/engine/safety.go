package engine

import (
	"log/slog"
	"sync"
	"time"
)

// SafetyMonitor owns the consecutive exchange-failure counter and the
// circuit-breaker pause timestamp. Every component that talks to the exchange
// reports outcomes here; the admission controller consults Paused on every
// check. All access is serialized through one mutex.
type SafetyMonitor struct {
	mu          sync.Mutex
	consecutive int
	pauseUntil  time.Time

	threshold int
	pause     time.Duration
	logger    *slog.Logger
}

// NewSafetyMonitor creates a SafetyMonitor that opens the circuit after
// threshold consecutive failures and holds it open for pause.
func NewSafetyMonitor(threshold int, pause time.Duration, logger *slog.Logger) *SafetyMonitor {
	return &SafetyMonitor{
		threshold: threshold,
		pause:     pause,
		logger:    logger.With(slog.String("component", "safety_monitor")),
	}
}

// RecordFailure increments the consecutive-failure counter and reports
// whether this failure tripped the circuit breaker. A tripped breaker sets
// the pause-until timestamp; it self-expires, no reset call is needed.
func (m *SafetyMonitor) RecordFailure() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consecutive++
	if m.consecutive < m.threshold {
		return false
	}

	m.consecutive = 0
	m.pauseUntil = time.Now().Add(m.pause)
	m.logger.Warn("circuit breaker tripped",
		slog.Int("threshold", m.threshold),
		slog.Time("pause_until", m.pauseUntil),
	)
	return true
}

// RecordSuccess resets the consecutive-failure counter. It does not clear an
// active pause: a pause runs its full window even if calls recover early.
func (m *SafetyMonitor) RecordSuccess() {
	m.mu.Lock()
	m.consecutive = 0
	m.mu.Unlock()
}

// Record routes a call outcome to RecordFailure or RecordSuccess.
func (m *SafetyMonitor) Record(err error) {
	if err != nil {
		m.RecordFailure()
		return
	}
	m.RecordSuccess()
}

// Paused reports whether the circuit breaker holds trading paused at now.
func (m *SafetyMonitor) Paused(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return now.Before(m.pauseUntil)
}

// PausedUntil returns the pause expiry, zero when no pause is active.
func (m *SafetyMonitor) PausedUntil() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pauseUntil
}

// Failures returns the current consecutive-failure count.
func (m *SafetyMonitor) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutive
}
