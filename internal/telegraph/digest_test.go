package telegraph

import (
	"fmt"
	"testing"
	"time"

	"github.com/zulandar/switchboard/internal/graph"
	"github.com/zulandar/switchboard/internal/progress"
)

func TestNextCronDuration_ValidExpression(t *testing.T) {
	// "0 9 * * *" = daily at 09:00. Duration should be positive and < 24h.
	d := nextCronDuration("0 9 * * *")
	if d <= 0 {
		t.Fatalf("expected positive duration, got %v", d)
	}
	if d > 24*time.Hour {
		t.Fatalf("expected duration < 24h, got %v", d)
	}
}

func TestNextCronDuration_InvalidExpression(t *testing.T) {
	d := nextCronDuration("not a cron expr")
	if d != 0 {
		t.Fatalf("expected 0 for invalid expression, got %v", d)
	}
}

func TestNextCronDuration_EveryMinute(t *testing.T) {
	// "* * * * *" = every minute. Duration should be < 61s.
	d := nextCronDuration("* * * * *")
	if d <= 0 {
		t.Fatalf("expected positive duration, got %v", d)
	}
	if d > 61*time.Second {
		t.Fatalf("expected duration < 61s, got %v", d)
	}
}

type mockSender struct {
	sent   []Digest
	err    error
	closed bool
}

func (m *mockSender) Send(d Digest) error {
	m.sent = append(m.sent, d)
	return m.err
}

func (m *mockSender) Close() error {
	m.closed = true
	return nil
}

func TestBroadcast_SendsToAllSenders(t *testing.T) {
	a := &mockSender{}
	b := &mockSender{err: fmt.Errorf("rate limited")}
	d := &Digester{
		Scenario: "test",
		Graph:    graph.New(0),
		Tracker:  progress.NewTracker(0),
		Senders:  []Sender{a, b},
	}

	d.Broadcast(Digest{Title: "progress"})
	// A failing sender must not block the others.
	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Errorf("sent counts = %d/%d, want 1/1", len(a.sent), len(b.sent))
	}

	d.CloseAll()
	if !a.closed || !b.closed {
		t.Error("senders not closed")
	}
}
