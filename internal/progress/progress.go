// Package progress tracks exploration counters and detects coverage
// plateaus.
package progress

import (
	"sync"
	"time"
)

// DefaultPlateauWindow is the number of trailing calls examined for
// plateau detection.
const DefaultPlateauWindow = 20

// Stats is a point-in-time copy of the tracker's counters.
type Stats struct {
	CallsAttempted     int            `json:"calls_attempted"`
	CallsSucceeded     int            `json:"calls_succeeded"`
	CallsFailed        int            `json:"calls_failed"`
	FailuresByKind     map[string]int `json:"failures_by_kind"`
	NodesAdded         int            `json:"nodes_added"`
	EdgesAdded         int            `json:"edges_added"`
	TerminalsMarked    int            `json:"terminals_marked"`
	LlmParseFailures   int            `json:"llm_parse_failures"`
	DiarizationSuspect int            `json:"diarization_suspect"`
	StartedAt          time.Time      `json:"started_at"`
	DurationS          float64        `json:"duration_s"`
}

// Tracker accumulates counters from concurrent workers and keeps a rolling
// window of "new entities per call" for plateau detection.
type Tracker struct {
	mu         sync.Mutex
	stats      Stats
	window     []int
	windowSize int
	now        func() time.Time // test override
}

// NewTracker creates a tracker. A non-positive window falls back to
// DefaultPlateauWindow.
func NewTracker(window int) *Tracker {
	if window <= 0 {
		window = DefaultPlateauWindow
	}
	return &Tracker{
		stats: Stats{
			FailuresByKind: make(map[string]int),
			StartedAt:      time.Now(),
		},
		windowSize: window,
		now:        time.Now,
	}
}

// CallAttempted records that a call was placed.
func (t *Tracker) CallAttempted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.CallsAttempted++
}

// CallSucceeded records a completed call and the entities it discovered.
func (t *Tracker) CallSucceeded(newNodes, newEdges int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.CallsSucceeded++
	t.stats.NodesAdded += newNodes
	t.stats.EdgesAdded += newEdges
	t.pushWindowLocked(newNodes + newEdges)
}

// CallFailed records a failed call by failure kind, along with any
// entities the call discovered before failing (an LM parse failure still
// integrates the transcript first; most kinds discover nothing).
func (t *Tracker) CallFailed(kind string, newNodes, newEdges int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.CallsFailed++
	t.stats.FailuresByKind[kind]++
	t.stats.NodesAdded += newNodes
	t.stats.EdgesAdded += newEdges
	t.pushWindowLocked(newNodes + newEdges)
}

// TerminalMarked records a terminal classification.
func (t *Tracker) TerminalMarked() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.TerminalsMarked++
}

// LlmParseFailed records one LM parse failure (one per failed parse
// attempt, the first attempt included).
func (t *Tracker) LlmParseFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.LlmParseFailures++
}

// DiarizationSuspect records a user turn whose speaker tag disagreed with
// the injected script.
func (t *Tracker) DiarizationSuspect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.DiarizationSuspect++
}

// Plateaued reports whether the last windowSize calls discovered nothing
// new. Always false until the window has filled.
func (t *Tracker) Plateaued() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.window) < t.windowSize {
		return false
	}
	for _, n := range t.window {
		if n > 0 {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of the counters.
func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	s.FailuresByKind = make(map[string]int, len(t.stats.FailuresByKind))
	for k, v := range t.stats.FailuresByKind {
		s.FailuresByKind[k] = v
	}
	s.DurationS = t.now().Sub(s.StartedAt).Seconds()
	return s
}

func (t *Tracker) pushWindowLocked(n int) {
	t.window = append(t.window, n)
	if len(t.window) > t.windowSize {
		t.window = t.window[1:]
	}
}
