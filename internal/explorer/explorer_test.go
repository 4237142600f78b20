package explorer

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/switchboard/internal/frontier"
	"github.com/zulandar/switchboard/internal/graph"
	"github.com/zulandar/switchboard/internal/llm"
	"github.com/zulandar/switchboard/internal/progress"
	"github.com/zulandar/switchboard/internal/textnorm"
	"github.com/zulandar/switchboard/internal/transcribe"
	"github.com/zulandar/switchboard/internal/webhook"
)

// simState is one state of the simulated IVR under test.
type simState struct {
	utterance string
	next      map[string]string // normalized caller response -> state name
}

// fakeIVR implements the voice client and transcriber against a scripted
// decision tree, delivering webhook events as a real provider would.
type fakeIVR struct {
	correlator *webhook.Correlator
	states     map[string]simState

	mu          sync.Mutex
	seq         int
	scripts     map[string][]string // call id -> caller script lines
	dropWebhook func(callNum int) bool
}

var scriptLineRe = regexp.MustCompile(`(?m)^\d+\. (.+)$`)

func (f *fakeIVR) PlaceCall(ctx context.Context, persona, phone string) (string, error) {
	f.mu.Lock()
	f.seq++
	callID := fmt.Sprintf("call-%d", f.seq)
	var script []string
	for _, m := range scriptLineRe.FindAllStringSubmatch(persona, -1) {
		script = append(script, m[1])
	}
	f.scripts[callID] = script
	num := f.seq
	f.mu.Unlock()

	drop := f.dropWebhook != nil && f.dropWebhook(num)
	if !drop {
		go f.correlator.Deliver(webhook.Event{CallID: callID, Status: webhook.StatusCompleted, RecordingURL: "fake://" + callID})
	}
	return callID, nil
}

func (f *fakeIVR) FetchRecording(ctx context.Context, callID string) ([]byte, string, error) {
	return []byte(callID), "wav", nil
}

func (f *fakeIVR) Transcribe(ctx context.Context, audio []byte, format string) ([]transcribe.Turn, error) {
	f.mu.Lock()
	script := f.scripts[string(audio)]
	f.mu.Unlock()

	cur := "root"
	turns := []transcribe.Turn{{Speaker: transcribe.SpeakerAgent, Text: f.states[cur].utterance}}
	for _, line := range script {
		turns = append(turns, transcribe.Turn{Speaker: transcribe.SpeakerUser, Text: line})
		if next, ok := f.states[cur].next[textnorm.Normalize(line)]; ok {
			cur = next
		}
		turns = append(turns, transcribe.Turn{Speaker: transcribe.SpeakerAgent, Text: f.states[cur].utterance})
	}
	return turns, nil
}

// fakeLLM answers expansion prompts keyed by the dialogue's last agent
// line. Values are queues so a test can script a failure then a success.
type fakeLLM struct {
	mu        sync.Mutex
	responses map[string][]string // agent utterance substring -> reply queue
}

var agentLineRe = regexp.MustCompile(`(?m)^AGENT: (.+)$`)

func (f *fakeLLM) Complete(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	lines := agentLineRe.FindAllStringSubmatch(prompt, -1)
	if len(lines) == 0 {
		return "", fmt.Errorf("fake llm: no agent line in prompt")
	}
	last := lines[len(lines)-1][1]

	f.mu.Lock()
	defer f.mu.Unlock()
	for key, queue := range f.responses {
		if strings.Contains(last, key) && len(queue) > 0 {
			reply := queue[0]
			if len(queue) > 1 {
				f.responses[key] = queue[1:]
			}
			return reply, nil
		}
	}
	return "", fmt.Errorf("fake llm: no reply for %q", last)
}

func expansionJSON(candidates []string, terminal bool, kind string) string {
	var quoted []string
	for _, c := range candidates {
		quoted = append(quoted, fmt.Sprintf("%q", c))
	}
	return fmt.Sprintf("```json\n{\"candidates\": [%s], \"is_terminal\": %v, \"terminal_kind\": %q, \"confidence\": 0.9}\n```",
		strings.Join(quoted, ", "), terminal, kind)
}

type testEnv struct {
	explorer *Explorer
	ivr      *fakeIVR
	tracker  *progress.Tracker
	graph    *graph.Graph
}

func newTestEnv(t *testing.T, states map[string]simState, responses map[string][]string) *testEnv {
	t.Helper()
	g := graph.New(0)
	tr := progress.NewTracker(0)
	corr := webhook.NewCorrelator(time.Minute)
	ivr := &fakeIVR{correlator: corr, states: states, scripts: make(map[string][]string)}
	lm := &fakeLLM{responses: responses}

	w := &Worker{
		Graph:       g,
		Voice:       ivr,
		Transcriber: ivr,
		LLM:         lm,
		Prompts:     llm.NewContextualizer("test scenario"),
		Correlator:  corr,
		Tracker:     tr,
		Opts: WorkerOpts{
			PhoneNumber: "+15550100",
			CallTimeout: 200 * time.Millisecond,
		},
	}
	return &testEnv{
		explorer: &Explorer{
			Graph:    g,
			Frontier: frontier.New(),
			Tracker:  tr,
			Worker:   w,
			Out:      io.Discard,
			Opts: Options{
				WorkerCount:   2,
				MaxCalls:      30,
				MaxWallTime:   10 * time.Second,
				TaskRetryMax:  3,
				GraceShutdown: time.Second,
			},
		},
		ivr:     ivr,
		tracker: tr,
		graph:   g,
	}
}

// menuStates is a small IVR: greeting menu with a sales and a support leaf.
func menuStates() map[string]simState {
	return map[string]simState{
		"root": {
			utterance: "Thanks for calling Acme. Press 1 for sales, 2 for support.",
			next: map[string]string{
				textnorm.Normalize("1"): "sales",
				textnorm.Normalize("2"): "support",
			},
		},
		"sales":   {utterance: "Sales hours are 9 to 5. Goodbye!"},
		"support": {utterance: "Support is available around the clock. Goodbye!"},
	}
}

func menuResponses() map[string][]string {
	return map[string][]string{
		"Press 1 for sales":    {expansionJSON([]string{"1", "2"}, false, "")},
		"Sales hours":          {expansionJSON(nil, true, "success")},
		"Support is available": {expansionJSON(nil, true, "success")},
	}
}

// Scenario: linear menu fully explored — one cold call plus one per branch.
func TestRun_ExploresMenu(t *testing.T) {
	env := newTestEnv(t, menuStates(), menuResponses())
	reason, err := env.explorer.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reason != StopComplete {
		t.Errorf("reason = %q, want %q", reason, StopComplete)
	}

	snap := env.graph.Snapshot()
	if len(snap.Nodes) != 3 {
		t.Fatalf("nodes = %d, want 3: %+v", len(snap.Nodes), snap.Nodes)
	}
	if len(snap.Edges) != 2 {
		t.Errorf("edges = %d, want 2: %+v", len(snap.Edges), snap.Edges)
	}
	terminals := 0
	for _, n := range snap.Nodes {
		if n.Terminal {
			terminals++
		}
	}
	if terminals != 2 {
		t.Errorf("terminals = %d, want 2", terminals)
	}

	stats := env.tracker.Snapshot()
	if stats.CallsAttempted > env.explorer.Opts.MaxCalls {
		t.Errorf("calls attempted %d exceeds budget", stats.CallsAttempted)
	}
}

// Scenario: terminal nodes gain no outgoing edges from the expander.
func TestRun_TerminalNotExpanded(t *testing.T) {
	env := newTestEnv(t, menuStates(), menuResponses())
	if _, err := env.explorer.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	snap := env.graph.Snapshot()
	terminalIDs := make(map[string]bool)
	for _, n := range snap.Nodes {
		if n.Terminal {
			terminalIDs[n.ID] = true
		}
	}
	for _, e := range snap.Edges {
		if terminalIDs[e.From] {
			t.Errorf("terminal node %s has outgoing edge %+v", e.From, e)
		}
	}
}

// Scenario: webhook timeout then success — task retries and completes.
func TestRun_WebhookTimeoutRetries(t *testing.T) {
	env := newTestEnv(t, menuStates(), map[string][]string{
		"Press 1 for sales": {expansionJSON(nil, true, "success")},
	})
	env.ivr.dropWebhook = func(callNum int) bool { return callNum == 1 }
	env.explorer.Worker.Opts.CallTimeout = 50 * time.Millisecond

	reason, err := env.explorer.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reason != StopComplete {
		t.Errorf("reason = %q, want %q", reason, StopComplete)
	}

	stats := env.tracker.Snapshot()
	if stats.FailuresByKind[FailWebhook] != 1 {
		t.Errorf("webhook_timeout failures = %d, want 1", stats.FailuresByKind[FailWebhook])
	}
	if stats.CallsSucceeded < 1 {
		t.Error("no successful call after retry")
	}
	if env.graph.Root() == "" {
		t.Error("root never established")
	}
}

// Scenario: plateau — repeated fruitless calls stop the run even though
// the frontier still has entries.
func TestRun_PlateauQuiescence(t *testing.T) {
	env := newTestEnv(t, menuStates(), nil)
	env.ivr.dropWebhook = func(callNum int) bool { return true }
	env.explorer.Worker.Opts.CallTimeout = 10 * time.Millisecond
	env.explorer.Worker.Tracker = progress.NewTracker(3)
	env.explorer.Tracker = env.explorer.Worker.Tracker
	env.explorer.Opts.TaskRetryMax = 50
	env.explorer.Opts.WorkerCount = 1

	reason, err := env.explorer.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reason != StopPlateau {
		t.Errorf("reason = %q, want %q", reason, StopPlateau)
	}
}

// Scenario: cycle discovery — the error state loops back to the menu and
// repeat observations add no duplicate edges.
func TestRun_CycleDiscovery(t *testing.T) {
	states := map[string]simState{
		"root": {
			utterance: "Main menu. Press 1 for billing.",
			next: map[string]string{
				textnorm.Normalize("1"):    "billing",
				textnorm.Normalize("nine"): "invalid",
			},
		},
		"billing": {utterance: "Billing is closed today. Goodbye."},
		"invalid": {
			utterance: "Invalid choice, please try again.",
			next: map[string]string{
				textnorm.Normalize("1"):    "invalid2",
				textnorm.Normalize("nine"): "invalid2",
			},
		},
		// Loops back to the menu utterance: dedups onto the root node.
		"invalid2": {
			utterance: "Main menu. Press 1 for billing!",
			next: map[string]string{
				textnorm.Normalize("1"):    "billing",
				textnorm.Normalize("nine"): "invalid",
			},
		},
	}
	responses := map[string][]string{
		"Main menu":      {expansionJSON([]string{"1", "nine"}, false, "")},
		"Billing is":     {expansionJSON(nil, true, "success")},
		"Invalid choice": {expansionJSON([]string{"1"}, false, "")},
	}
	env := newTestEnv(t, states, responses)
	if _, err := env.explorer.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap := env.graph.Snapshot()
	var menuID, invalidID string
	for _, n := range snap.Nodes {
		if strings.HasPrefix(n.Utterance, "Main menu") {
			menuID = n.ID
		}
		if strings.HasPrefix(n.Utterance, "Invalid choice") {
			invalidID = n.ID
		}
	}
	if menuID == "" || invalidID == "" {
		t.Fatalf("expected menu and invalid nodes, got %+v", snap.Nodes)
	}

	cycle := false
	seen := make(map[string]int)
	for _, e := range snap.Edges {
		seen[e.From+"|"+e.NormalizedResponse]++
		if e.From == invalidID && e.To == menuID {
			cycle = true
		}
	}
	if !cycle {
		t.Error("cycle edge from invalid back to menu not found")
	}
	for key, n := range seen {
		if n > 1 {
			t.Errorf("duplicate edge %q observed %d times", key, n)
		}
	}
}

// Scenario: LM parse retry — prose first, valid JSON on the strict
// reprompt; the parse-failure counter records the attempt.
func TestRun_LlmParseRetry(t *testing.T) {
	env := newTestEnv(t, menuStates(), map[string][]string{
		"Press 1 for sales":    {"The caller should probably press one.", expansionJSON([]string{"1"}, false, "")},
		"Sales hours":          {expansionJSON(nil, true, "success")},
		"Support is available": {expansionJSON(nil, true, "success")},
	})
	reason, err := env.explorer.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reason != StopComplete {
		t.Errorf("reason = %q", reason)
	}

	stats := env.tracker.Snapshot()
	if stats.LlmParseFailures != 1 {
		t.Errorf("llm parse failures = %d, want 1", stats.LlmParseFailures)
	}
	// Expansion proceeded after the retry: the sales branch was explored.
	snap := env.graph.Snapshot()
	if len(snap.Edges) == 0 {
		t.Error("no edges explored after parse retry")
	}
}

// Scenario: LM parse retries exhausted — the task fails with
// llm_parse_failed, is not re-enqueued, and the node stays un-expanded
// and non-terminal while its graph additions stand.
func TestRun_LlmParseExhausted(t *testing.T) {
	env := newTestEnv(t, menuStates(), map[string][]string{
		"Press 1 for sales": {expansionJSON([]string{"1"}, false, "")},
		"Sales hours":       {"I could not decide on a list of responses."},
	})
	reason, err := env.explorer.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reason != StopComplete {
		t.Errorf("reason = %q, want %q", reason, StopComplete)
	}

	stats := env.tracker.Snapshot()
	if stats.FailuresByKind[FailLlmParse] != 1 {
		t.Errorf("llm_parse_failed tasks = %d, want 1", stats.FailuresByKind[FailLlmParse])
	}
	// One failed parse per attempt: the initial prompt plus two reprompts.
	if stats.LlmParseFailures != 3 {
		t.Errorf("llm parse failures = %d, want 3", stats.LlmParseFailures)
	}
	// The call's integration still counted: root plus the sales node.
	if stats.NodesAdded != 2 || stats.EdgesAdded != 1 {
		t.Errorf("entities = %d nodes %d edges, want 2/1", stats.NodesAdded, stats.EdgesAdded)
	}

	snap := env.graph.Snapshot()
	if len(snap.Nodes) != 2 || len(snap.Edges) != 1 {
		t.Fatalf("graph = %d nodes %d edges", len(snap.Nodes), len(snap.Edges))
	}
	for _, n := range snap.Nodes {
		if n.Terminal {
			t.Errorf("node %s marked terminal despite failed expansion", n.ID)
		}
	}
}

// Determinism: identical fakes produce identical graphs up to node-id
// relabeling.
func TestRun_DeterministicGraphs(t *testing.T) {
	shape := func() []string {
		env := newTestEnv(t, menuStates(), menuResponses())
		env.explorer.Opts.WorkerCount = 1
		if _, err := env.explorer.Run(context.Background()); err != nil {
			t.Fatalf("Run: %v", err)
		}
		snap := env.graph.Snapshot()
		byID := make(map[string]string)
		var lines []string
		for _, n := range snap.Nodes {
			byID[n.ID] = n.NormalizedUtterance
			lines = append(lines, fmt.Sprintf("node|%s|%v", n.NormalizedUtterance, n.Terminal))
		}
		for _, e := range snap.Edges {
			lines = append(lines, fmt.Sprintf("edge|%s|%s|%s", byID[e.From], e.NormalizedResponse, byID[e.To]))
		}
		sort.Strings(lines)
		return lines
	}

	a := shape()
	b := shape()
	if strings.Join(a, "\n") != strings.Join(b, "\n") {
		t.Errorf("graphs differ between runs:\n%v\n---\n%v", a, b)
	}
}

// The breadth cap bounds how many responses are queued per node.
func TestHandleResult_BreadthCap(t *testing.T) {
	g := graph.New(0)
	root, _ := g.GetOrCreateNode("greeting")
	e := &Explorer{
		Graph:    g,
		Frontier: frontier.New(),
		Tracker:  progress.NewTracker(0),
		Out:      io.Discard,
		Opts:     Options{BreadthCap: 2, TaskRetryMax: 3},
	}
	e.handleResult(Result{
		FinalNode:  root,
		Candidates: []string{"one", "two", "three", "four"},
	})
	if got := e.Frontier.Len(); got != 2 {
		t.Errorf("frontier entries = %d, want breadth cap 2", got)
	}
}

func TestWorker_BuildScript(t *testing.T) {
	g := graph.New(0)
	root, _ := g.GetOrCreateNode("greeting")
	menu, _ := g.GetOrCreateNode("menu")
	g.AddEdge(root, "hello", menu)

	w := &Worker{Graph: g}
	got := w.buildScript(Task{NodeID: menu, Response: "press one"})
	want := []string{"hello", "press one"}
	if len(got) != len(want) {
		t.Fatalf("script = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("script[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if s := w.buildScript(Task{}); len(s) != 0 {
		t.Errorf("seed script = %v, want empty", s)
	}
}

// A successful task walks the full lifecycle in order.
func TestWorker_LifecycleStates(t *testing.T) {
	env := newTestEnv(t, menuStates(), menuResponses())
	var states []string
	env.explorer.Worker.StateChanged = func(callID, state string) {
		states = append(states, state)
	}

	res := env.explorer.Worker.Explore(context.Background(), Task{})
	if res.FailKind != "" {
		t.Fatalf("task failed: %v", res.Err)
	}

	want := []string{StateDialing, StateAwaitingWebhook, StateTranscribing, StateIntegrating, StateDone}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("state %d = %q, want %q", i, states[i], want[i])
		}
	}
}

func TestWorker_ValidateDiarization(t *testing.T) {
	tr := progress.NewTracker(0)
	w := &Worker{Tracker: tr}
	turns := []transcribe.Turn{
		{Speaker: transcribe.SpeakerAgent, Text: "menu"},
		{Speaker: transcribe.SpeakerUser, Text: "completely different words"},
	}
	w.validateDiarization(turns, []string{"press one for sales"})
	if got := tr.Snapshot().DiarizationSuspect; got != 1 {
		t.Errorf("diarization suspect = %d, want 1", got)
	}
}
