package telegraph

import (
	"strings"
	"testing"

	"github.com/zulandar/switchboard/internal/graph"
	"github.com/zulandar/switchboard/internal/progress"
)

func sampleGraph() *graph.Graph {
	g := graph.New(0)
	root, _ := g.GetOrCreateNode("greeting")
	leaf, _ := g.GetOrCreateNode("goodbye now")
	g.AddEdge(root, "bye", leaf)
	g.MarkTerminal(leaf, graph.TerminalSuccess)
	return g
}

func TestFormatProgress(t *testing.T) {
	tr := progress.NewTracker(0)
	tr.CallAttempted()
	tr.CallSucceeded(2, 1)

	d := FormatProgress("Acme plumbing", sampleGraph().Snapshot(), tr.Snapshot())
	if !strings.Contains(d.Body, "2 states") || !strings.Contains(d.Body, "1 transitions") {
		t.Errorf("body = %q", d.Body)
	}
	if d.Severity != "info" {
		t.Errorf("severity = %q", d.Severity)
	}
	if len(d.Fields) == 0 {
		t.Error("no fields")
	}
}

func TestFormatProgress_WarnsOnFailures(t *testing.T) {
	tr := progress.NewTracker(0)
	tr.CallFailed("dial_failed", 0, 0)
	tr.CallFailed("dial_failed", 0, 0)

	d := FormatProgress("x", graph.New(0).Snapshot(), tr.Snapshot())
	if d.Severity != "warning" {
		t.Errorf("severity = %q, want warning", d.Severity)
	}
}

func TestFormatFinal(t *testing.T) {
	tr := progress.NewTracker(0)
	d := FormatFinal("Acme", "complete", "https://gist.example/abc", sampleGraph().Snapshot(), tr.Snapshot())
	if !strings.Contains(d.Title, "complete") {
		t.Errorf("title = %q", d.Title)
	}
	if !strings.Contains(d.Body, "1 terminal") {
		t.Errorf("body = %q", d.Body)
	}
	found := false
	for _, f := range d.Fields {
		if f.Value == "https://gist.example/abc" {
			found = true
		}
	}
	if !found {
		t.Error("gist url not in fields")
	}
}

func TestSeverityColor(t *testing.T) {
	if SeverityColor("success") != ColorSuccess {
		t.Error("success color wrong")
	}
	if SeverityColor("unknown") != ColorInfo {
		t.Error("default color wrong")
	}
}
