package calllog

import (
	"errors"
	"testing"
	"time"

	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/explorer"
	"github.com/zulandar/switchboard/internal/graph"
	"github.com/zulandar/switchboard/internal/progress"
)

func TestRecordAndList(t *testing.T) {
	gdb, err := db.Connect(db.DriverSQLite, ":memory:", "", 0, "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ok := explorer.Result{
		Task:      explorer.Task{NodeID: "n-000001", Response: "1"},
		CallID:    "call-1",
		FinalNode: "n-000002",
		NewNodes:  1,
		NewEdges:  1,
		Duration:  3 * time.Second,
	}
	failed := explorer.Result{
		Task:      explorer.Task{NodeID: "n-000001", Response: "2", Attempts: 1},
		CallID:    "call-2",
		FailKind:  explorer.FailWebhook,
		Err:       errors.New("timeout after 5m"),
		Retryable: true,
	}
	if err := Record(gdb, ok); err != nil {
		t.Fatalf("record ok: %v", err)
	}
	if err := Record(gdb, failed); err != nil {
		t.Fatalf("record failed: %v", err)
	}

	all, err := List(gdb, ListFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("records = %d, want 2", len(all))
	}

	failures, err := List(gdb, ListFilters{State: explorer.StateFailed})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failures) != 1 || failures[0].FailureKind != explorer.FailWebhook {
		t.Errorf("failures = %+v", failures)
	}
	if failures[0].Error == "" {
		t.Error("failure row missing error text")
	}
}

func TestRecordRun(t *testing.T) {
	gdb, err := db.Connect(db.DriverSQLite, ":memory:", "", 0, "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	g := graph.New(0)
	id, _ := g.GetOrCreateNode("goodbye now")
	g.MarkTerminal(id, graph.TerminalSuccess)

	stats := progress.NewTracker(0).Snapshot()
	if err := RecordRun(gdb, "test scenario", "+15550100", explorer.StopComplete, "", g.Snapshot(), stats); err != nil {
		t.Fatalf("record run: %v", err)
	}
}
