package explorer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/zulandar/switchboard/internal/graph"
	"github.com/zulandar/switchboard/internal/llm"
	"github.com/zulandar/switchboard/internal/progress"
	"github.com/zulandar/switchboard/internal/similarity"
	"github.com/zulandar/switchboard/internal/textnorm"
	"github.com/zulandar/switchboard/internal/transcribe"
	"github.com/zulandar/switchboard/internal/voice"
	"github.com/zulandar/switchboard/internal/webhook"
)

// Root-matching modes for the first agent turn of each call.
const (
	RootCanonical   = "canonical"
	RootPerGreeting = "per_greeting"
)

// WorkerOpts tunes per-task behavior.
type WorkerOpts struct {
	PhoneNumber string
	CallTimeout time.Duration // default 5m
	LlmRetryMax int           // reprompt attempts after a parse failure, default 2
	Temperature float64
	Seed        int64
	RootMode    string  // RootCanonical (default) or RootPerGreeting
	Threshold   float64 // similarity threshold, for diarization validation
}

// Worker executes one exploration task end to end: dial, await the
// webhook, transcribe, integrate the turns into the graph, and ask the LM
// for the next candidate responses.
type Worker struct {
	Graph       *graph.Graph
	Voice       voice.Client
	Transcriber transcribe.Transcriber
	LLM         llm.Client
	Prompts     *llm.Contextualizer
	Correlator  *webhook.Correlator
	Tracker     *progress.Tracker
	Opts        WorkerOpts

	// StateChanged, when set, observes task lifecycle transitions. Used by
	// `sb explore` for per-call progress output.
	StateChanged func(callID, state string)
}

// Explore runs one task. The returned Result always has Task filled in;
// on failure FailKind and Retryable are set and graph state is untouched
// beyond what earlier turns already confirmed.
func (w *Worker) Explore(ctx context.Context, task Task) Result {
	start := time.Now()
	res := Result{Task: task}

	script := w.buildScript(task)
	persona := w.Prompts.PersonaPrompt(script)

	w.setState("", StateDialing)
	w.Tracker.CallAttempted()
	callID, err := w.Voice.PlaceCall(ctx, persona, w.Opts.PhoneNumber)
	if err != nil {
		res.FailKind = FailDial
		res.Err = fmt.Errorf("place call: %w", err)
		// An explicit carrier reject never succeeds on retry.
		res.Retryable = !errors.Is(err, voice.ErrCarrierReject)
		res.Duration = time.Since(start)
		return res
	}
	res.CallID = callID

	ev, ok := w.awaitWebhook(ctx, callID)
	if !ok {
		res.FailKind = FailWebhook
		res.Err = fmt.Errorf("webhook for call %s: timeout after %s", callID, w.callTimeout())
		res.Retryable = true
		res.Duration = time.Since(start)
		return res
	}
	if ev.Status != webhook.StatusCompleted {
		res.FailKind = FailDial
		res.Err = fmt.Errorf("call %s ended %s: %s", callID, ev.Status, ev.Error)
		res.Retryable = true
		res.Duration = time.Since(start)
		return res
	}

	w.setState(callID, StateTranscribing)
	audio, format, err := w.Voice.FetchRecording(ctx, callID)
	if err != nil {
		res.FailKind = FailRecording
		res.Err = fmt.Errorf("recording for call %s: %w", callID, err)
		res.Retryable = true
		res.Duration = time.Since(start)
		return res
	}

	turns, err := w.Transcriber.Transcribe(ctx, audio, format)
	if err != nil || len(turns) == 0 {
		res.FailKind = FailTranscription
		if err == nil {
			err = fmt.Errorf("empty transcript")
		}
		res.Err = fmt.Errorf("transcribe call %s: %w", callID, err)
		res.Retryable = true
		res.Duration = time.Since(start)
		return res
	}
	turns = transcribe.AssignRoles(turns)
	w.validateDiarization(turns, script)

	w.setState(callID, StateIntegrating)
	finalNode, newNodes, newEdges, err := w.integrate(turns, script)
	if err != nil {
		res.FailKind = FailTranscription
		res.Err = fmt.Errorf("integrate call %s: %w", callID, err)
		res.Retryable = true
		res.Duration = time.Since(start)
		return res
	}
	res.FinalNode = finalNode
	res.NewNodes = newNodes
	res.NewEdges = newEdges

	res.Terminal, res.Candidates, err = w.expand(ctx, finalNode)
	if err != nil {
		// The call's graph additions above stand; only the expansion was
		// lost. The in-worker reprompts already spent the retry budget, so
		// the task is not re-enqueued — the node stays un-expanded and
		// non-terminal for later frontier visits.
		res.FailKind = FailLlmParse
		res.Err = fmt.Errorf("expand node %s: %w", finalNode, err)
		res.Retryable = false
		res.Duration = time.Since(start)
		return res
	}

	w.setState(callID, StateDone)
	res.Duration = time.Since(start)
	return res
}

// buildScript collects the user lines from root to the task's node, plus
// the task's new response. Empty for the seed task.
func (w *Worker) buildScript(task Task) []string {
	var script []string
	if task.NodeID != "" {
		for _, step := range w.Graph.PathTo(task.NodeID) {
			if step.UserResponse != "" {
				script = append(script, step.UserResponse)
			}
		}
	}
	if task.Response != "" {
		script = append(script, task.Response)
	}
	return script
}

// awaitWebhook blocks until the call's completion event, the per-call
// timeout, or cancellation.
func (w *Worker) awaitWebhook(ctx context.Context, callID string) (webhook.Event, bool) {
	w.setState(callID, StateAwaitingWebhook)
	ch := w.Correlator.Register(callID)
	timer := time.NewTimer(w.callTimeout())
	defer timer.Stop()

	select {
	case ev := <-ch:
		return ev, true
	case <-timer.C:
	case <-ctx.Done():
	}
	w.Correlator.Cancel(callID)
	return webhook.Event{}, false
}

// validateDiarization checks user turns against the injected script lines.
// A mismatch is counted, not fatal: the script lines are ground truth, so
// integration never depends on the transcriber hearing the caller right.
func (w *Worker) validateDiarization(turns []transcribe.Turn, script []string) {
	threshold := w.Opts.Threshold
	if threshold <= 0 {
		threshold = similarity.DefaultThreshold
	}
	i := 0
	for _, t := range turns {
		if t.Speaker != transcribe.SpeakerUser {
			continue
		}
		if i >= len(script) {
			w.Tracker.DiarizationSuspect()
			continue
		}
		got := textnorm.Normalize(t.Text)
		want := textnorm.Normalize(script[i])
		if similarity.Score(got, want) < threshold {
			w.Tracker.DiarizationSuspect()
		}
		i++
	}
}

// integrate walks the call's agent turns against the graph, creating nodes
// and edges along the way, and returns the final node reached.
func (w *Worker) integrate(turns []transcribe.Turn, script []string) (finalNode string, newNodes, newEdges int, err error) {
	var agentTurns []string
	for _, t := range turns {
		if t.Speaker == transcribe.SpeakerAgent {
			agentTurns = append(agentTurns, t.Text)
		}
	}
	if len(agentTurns) == 0 {
		return "", 0, 0, fmt.Errorf("no agent turns in transcript")
	}

	u := w.rootFor(agentTurns[0], &newNodes)
	for i, turn := range agentTurns[1:] {
		if i >= len(script) {
			// The agent spoke more turns than we had script lines; without
			// a response label the transition cannot be recorded.
			break
		}
		v, created := w.Graph.GetOrCreateNode(turn)
		if created {
			newNodes++
		}
		if w.Graph.AddEdge(u, script[i], v) {
			newEdges++
		}
		u = v
	}
	return u, newNodes, newEdges, nil
}

// rootFor resolves the first agent turn of a call to a node. In canonical
// mode every call opens at the root; in per-greeting mode the first turn
// goes through find-or-create, so distinct greetings become distinct nodes.
// Only the first node the graph creates gets depth zero; a later greeting
// keeps an unknown depth unless an edge reaches it.
func (w *Worker) rootFor(firstTurn string, newNodes *int) string {
	if w.Opts.RootMode != RootPerGreeting {
		if root := w.Graph.Root(); root != "" {
			return root
		}
	}
	id, created := w.Graph.GetOrCreateNode(firstTurn)
	if created {
		*newNodes++
	}
	return id
}

// expand asks the LM for next responses at the node, marking it terminal
// when classified as an endpoint. Parse failures reprompt strictly up to
// the configured maximum; when all attempts fail (or the LM transport
// fails) the error is returned and the node is left un-expanded.
func (w *Worker) expand(ctx context.Context, nodeID string) (terminal bool, candidates []string, err error) {
	path := w.Graph.PathTo(nodeID)
	explored := w.Graph.OutgoingResponses(nodeID)
	exploredList := make([]string, 0, len(explored))
	for r := range explored {
		exploredList = append(exploredList, r)
	}

	opts := llm.Options{Temperature: w.Opts.Temperature, Seed: w.Opts.Seed}
	var exp llm.Expansion
	var lastErr error
	parsed := false
	for attempt := 0; attempt <= w.llmRetryMax(); attempt++ {
		raw, err := w.LLM.Complete(ctx, w.Prompts.ExpansionPrompt(path, sorted(exploredList), attempt > 0), opts)
		if err != nil {
			return false, nil, fmt.Errorf("llm request: %w", err)
		}
		exp, err = llm.ParseExpansion(raw)
		if err == nil {
			parsed = true
			break
		}
		lastErr = err
		w.Tracker.LlmParseFailed()
	}
	if !parsed {
		return false, nil, fmt.Errorf("parse retries exhausted: %w", lastErr)
	}

	if exp.IsTerminal {
		w.Graph.MarkTerminal(nodeID, exp.TerminalKind)
		w.Tracker.TerminalMarked()
		return true, nil, nil
	}

	seen := make(map[string]bool)
	for _, c := range exp.Candidates {
		norm := textnorm.Normalize(c)
		if norm == "" || seen[norm] || explored[norm] {
			continue
		}
		seen[norm] = true
		candidates = append(candidates, c)
	}
	return false, candidates, nil
}

func (w *Worker) callTimeout() time.Duration {
	if w.Opts.CallTimeout > 0 {
		return w.Opts.CallTimeout
	}
	return 5 * time.Minute
}

func (w *Worker) llmRetryMax() int {
	if w.Opts.LlmRetryMax > 0 {
		return w.Opts.LlmRetryMax
	}
	return 2
}

// sorted orders the explored-responses list so prompts are deterministic
// regardless of map iteration order.
func sorted(xs []string) []string {
	sort.Strings(xs)
	return xs
}

func (w *Worker) setState(callID, state string) {
	if w.StateChanged != nil {
		w.StateChanged(callID, state)
	}
}
