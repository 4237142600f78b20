package telegraph

import (
	"fmt"

	"github.com/zulandar/switchboard/internal/graph"
	"github.com/zulandar/switchboard/internal/progress"
)

// FormatProgress builds the periodic in-flight digest.
func FormatProgress(scenario string, snap graph.Snapshot, stats progress.Stats) Digest {
	terminals := 0
	for _, n := range snap.Nodes {
		if n.Terminal {
			terminals++
		}
	}

	severity := "info"
	if stats.CallsFailed > stats.CallsSucceeded {
		severity = "warning"
	}

	return Digest{
		Title:    "Exploration progress",
		Body:     fmt.Sprintf("Mapping %q: %d states, %d transitions discovered so far.", scenario, len(snap.Nodes), len(snap.Edges)),
		Severity: severity,
		Fields: []Field{
			{Name: "Calls", Value: fmt.Sprintf("%d attempted, %d failed", stats.CallsAttempted, stats.CallsFailed)},
			{Name: "Terminals", Value: fmt.Sprintf("%d", terminals)},
			{Name: "Elapsed", Value: fmt.Sprintf("%.0fs", stats.DurationS)},
		},
	}
}

// FormatFinal builds the end-of-run digest. gistURL may be empty.
func FormatFinal(scenario, stopReason, gistURL string, snap graph.Snapshot, stats progress.Stats) Digest {
	terminals := 0
	for _, n := range snap.Nodes {
		if n.Terminal {
			terminals++
		}
	}

	severity := "success"
	if len(snap.Nodes) == 0 {
		severity = "error"
	}

	d := Digest{
		Title:    "Exploration finished: " + stopReason,
		Body:     fmt.Sprintf("Mapped %q: %d states, %d transitions, %d terminal.", scenario, len(snap.Nodes), len(snap.Edges), terminals),
		Severity: severity,
		Fields: []Field{
			{Name: "Calls", Value: fmt.Sprintf("%d attempted, %d succeeded, %d failed", stats.CallsAttempted, stats.CallsSucceeded, stats.CallsFailed)},
			{Name: "Duration", Value: fmt.Sprintf("%.0fs", stats.DurationS)},
		},
	}
	if gistURL != "" {
		d.Fields = append(d.Fields, Field{Name: "Graph", Value: gistURL})
	}
	return d
}
