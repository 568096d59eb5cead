package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (s *recordingSender) Send(ctx context.Context, title, message string) error {
	if s.err != nil {
		return s.err
	}
	s.titles = append(s.titles, title)
	return nil
}

func (s *recordingSender) Name() string { return s.name }

func TestNotifyFiltersByEvent(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{"position_opened", "kill_switch"}, testLogger())
	ctx := context.Background()

	if err := n.Notify(ctx, "position_opened", "Opened", "x"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := n.Notify(ctx, "position_reduced", "Reduced", "x"); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if len(sender.titles) != 1 || sender.titles[0] != "Opened" {
		t.Errorf("delivered = %v, want just Opened", sender.titles)
	}
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	if err := n.Notify(context.Background(), "anything", "T", "m"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sender.titles) != 1 {
		t.Errorf("delivered = %v", sender.titles)
	}
}

func TestNotifyAllBypassesFilter(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{"kill_switch"}, testLogger())

	if err := n.NotifyAll(context.Background(), "Urgent", "m"); err != nil {
		t.Fatalf("notify all: %v", err)
	}
	if len(sender.titles) != 1 {
		t.Errorf("delivered = %v", sender.titles)
	}
}

func TestDispatchContinuesPastFailedSender(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.NotifyAll(context.Background(), "T", "m")
	if err == nil || !strings.Contains(err.Error(), "bad: boom") {
		t.Errorf("err = %v, want bad sender reported", err)
	}
	if len(good.titles) != 1 {
		t.Error("healthy sender skipped after a failure")
	}
}

func TestNotifierNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, testLogger())
	if err := n.NotifyAll(context.Background(), "T", "m"); err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}

func TestDiscordSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	if err := s.Send(context.Background(), "Position closed", "SOL/USDT pnl=1.20"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(got["content"], "**Position closed**") {
		t.Errorf("content = %q", got["content"])
	}
	if !strings.Contains(got["content"], "pnl=1.20") {
		t.Errorf("content = %q", got["content"])
	}
}

func TestDiscordSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	err := s.Send(context.Background(), "T", "m")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v, want status 429 reported", err)
	}
}
