// Package calllog persists per-call audit rows and run summaries.
package calllog

import (
	"fmt"
	"time"

	"github.com/zulandar/switchboard/internal/explorer"
	"github.com/zulandar/switchboard/internal/graph"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/progress"
	"gorm.io/gorm"
)

// Record writes the audit row for one finished task.
func Record(db *gorm.DB, res explorer.Result) error {
	state := explorer.StateDone
	var errText string
	if res.FailKind != "" {
		state = explorer.StateFailed
		if res.Err != nil {
			errText = res.Err.Error()
		}
	}

	rec := models.CallRecord{
		CallID:      res.CallID,
		NodeID:      res.Task.NodeID,
		Response:    res.Task.Response,
		Attempt:     res.Task.Attempts,
		State:       state,
		FailureKind: res.FailKind,
		Error:       errText,
		FinalNode:   res.FinalNode,
		NewNodes:    res.NewNodes,
		NewEdges:    res.NewEdges,
		DurationMS:  res.Duration.Milliseconds(),
	}
	if err := db.Create(&rec).Error; err != nil {
		return fmt.Errorf("calllog: record call %s: %w", res.CallID, err)
	}
	return nil
}

// ListFilters narrows List results.
type ListFilters struct {
	State       string
	FailureKind string
}

// List returns call records, newest first.
func List(db *gorm.DB, f ListFilters) ([]models.CallRecord, error) {
	q := db.Order("id DESC")
	if f.State != "" {
		q = q.Where("state = ?", f.State)
	}
	if f.FailureKind != "" {
		q = q.Where("failure_kind = ?", f.FailureKind)
	}
	var recs []models.CallRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("calllog: list: %w", err)
	}
	return recs, nil
}

// RecordRun writes the summary row for a finished exploration run.
func RecordRun(db *gorm.DB, scenario, phone, stopReason, gistURL string, snap graph.Snapshot, stats progress.Stats) error {
	terminals := 0
	for _, n := range snap.Nodes {
		if n.Terminal {
			terminals++
		}
	}
	run := models.RunRecord{
		Scenario:       scenario,
		PhoneNumber:    phone,
		StopReason:     stopReason,
		CallsAttempted: stats.CallsAttempted,
		CallsSucceeded: stats.CallsSucceeded,
		CallsFailed:    stats.CallsFailed,
		Nodes:          len(snap.Nodes),
		Edges:          len(snap.Edges),
		Terminals:      terminals,
		GistURL:        gistURL,
		StartedAt:      stats.StartedAt,
		FinishedAt:     time.Now(),
	}
	if err := db.Create(&run).Error; err != nil {
		return fmt.Errorf("calllog: record run: %w", err)
	}
	return nil
}
