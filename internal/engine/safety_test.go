package engine

import (
	"errors"
	"testing"
	"time"
)

func TestSafetyMonitorTripsAtThreshold(t *testing.T) {
	m := NewSafetyMonitor(3, 15*time.Minute, testLogger())

	if m.RecordFailure() || m.RecordFailure() {
		t.Fatal("breaker tripped before threshold")
	}
	if !m.RecordFailure() {
		t.Fatal("breaker did not trip at threshold")
	}
	if m.Failures() != 0 {
		t.Errorf("counter not reset after trip, got %d", m.Failures())
	}
	if !m.Paused(time.Now()) {
		t.Error("not paused after trip")
	}
	if m.Paused(m.PausedUntil().Add(time.Second)) {
		t.Error("pause did not expire")
	}
}

func TestSafetyMonitorSuccessResetsCounter(t *testing.T) {
	m := NewSafetyMonitor(3, time.Minute, testLogger())

	m.RecordFailure()
	m.RecordFailure()
	m.RecordSuccess()

	if m.RecordFailure() || m.RecordFailure() {
		t.Fatal("counter survived a success")
	}
}

func TestSafetyMonitorPauseOutlivesRecovery(t *testing.T) {
	m := NewSafetyMonitor(1, time.Hour, testLogger())

	m.Record(errors.New("exchange down"))
	m.Record(nil) // recovery does not close an open circuit

	if !m.Paused(time.Now()) {
		t.Error("pause cleared by a success before its window ended")
	}
}
