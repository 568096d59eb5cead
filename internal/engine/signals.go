package engine

import (
	"sync"

	"github.com/gitco/alphatrader/internal/domain"
)

// SignalLog is a fixed-capacity ring of recent strategy evaluations, fired or
// not, served on the admin API for observability.
type SignalLog struct {
	mu      sync.Mutex
	records []domain.SignalRecord
	next    int
	full    bool
}

// NewSignalLog creates a SignalLog holding up to capacity records.
func NewSignalLog(capacity int) *SignalLog {
	if capacity < 1 {
		capacity = 1
	}
	return &SignalLog{records: make([]domain.SignalRecord, capacity)}
}

// Add appends a record, evicting the oldest when full.
func (s *SignalLog) Add(rec domain.SignalRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[s.next] = rec
	s.next++
	if s.next == len(s.records) {
		s.next = 0
		s.full = true
	}
}

// Recent returns up to n records, newest first.
func (s *SignalLog) Recent(n int) []domain.SignalRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := s.next
	if s.full {
		size = len(s.records)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]domain.SignalRecord, 0, n)
	for i := 0; i < n; i++ {
		idx := s.next - 1 - i
		if idx < 0 {
			idx += len(s.records)
		}
		out = append(out, s.records[idx])
	}
	return out
}
