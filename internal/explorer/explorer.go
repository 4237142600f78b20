package explorer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/zulandar/switchboard/internal/frontier"
	"github.com/zulandar/switchboard/internal/graph"
	"github.com/zulandar/switchboard/internal/progress"
)

// Stop reasons reported by Run.
const (
	StopComplete    = "complete"     // frontier drained, nothing in flight
	StopMaxCalls    = "max_calls"    // call budget exhausted
	StopMaxWallTime = "max_walltime" // wall clock budget exhausted
	StopPlateau     = "plateau"      // no discoveries in the plateau window
	StopRequested   = "stopped"      // external cancellation
)

// Options tunes the exploration run.
type Options struct {
	WorkerCount   int           // default 4
	MaxCalls      int           // default 100
	MaxWallTime   time.Duration // default 1h
	TaskRetryMax  int           // default 3
	BreadthCap    int           // max outgoing responses tried per node; 0 = unlimited
	GraceShutdown time.Duration // default 10s
}

func (o *Options) applyDefaults() {
	if o.WorkerCount <= 0 {
		o.WorkerCount = 4
	}
	if o.MaxCalls <= 0 {
		o.MaxCalls = 100
	}
	if o.MaxWallTime <= 0 {
		o.MaxWallTime = time.Hour
	}
	if o.TaskRetryMax <= 0 {
		o.TaskRetryMax = 3
	}
	if o.GraceShutdown <= 0 {
		o.GraceShutdown = 10 * time.Second
	}
}

// Explorer runs the top-level exploration loop: it pulls frontier entries
// in priority order, dispatches them to the pool, folds results back into
// the frontier, and stops on quiescence or a budget limit.
type Explorer struct {
	Graph    *graph.Graph
	Frontier *frontier.Queue
	Tracker  *progress.Tracker
	Worker   *Worker
	Opts     Options
	Out      io.Writer

	// OnResult, when set, observes every finished task. Used by the call log.
	OnResult func(Result)
}

// Run explores until quiescence or a stop condition, returning the reason.
// Cancelling ctx stops the run; in-flight tasks get GraceShutdown to
// unwind before they are abandoned.
func (e *Explorer) Run(ctx context.Context) (string, error) {
	e.Opts.applyDefaults()
	if e.Out == nil {
		e.Out = io.Discard
	}

	runCtx, cancel := context.WithTimeout(ctx, e.Opts.MaxWallTime)
	defer cancel()

	pool := NewPool(e.Opts.WorkerCount)

	// The seed entry: a cold call that establishes the root.
	if e.Graph.Root() == "" && e.Frontier.Len() == 0 {
		e.Frontier.Push(frontier.Entry{})
	}

	fmt.Fprintf(e.Out, "Exploration starting (workers=%d, max calls=%d)\n", e.Opts.WorkerCount, e.Opts.MaxCalls)

	// In-flight accounting lives in this loop, not the pool: every
	// dispatched task delivers exactly one result, and counting the
	// results consumed here leaves no window where a finished-but-unread
	// task looks idle.
	dispatched := 0
	inflight := 0
	reason := ""
	for reason == "" {
		// Fill free slots in priority order, within the call budget.
		for pool.Available() > 0 && dispatched < e.Opts.MaxCalls {
			entry, ok := e.Frontier.Pop()
			if !ok {
				break
			}
			task := Task{
				NodeID:   entry.NodeID,
				Response: entry.Response,
				Depth:    entry.Depth,
				Attempts: entry.Attempts,
			}
			if pool.Dispatch(runCtx, e.Worker, task) {
				dispatched++
				inflight++
			} else {
				e.Frontier.Push(entry)
				break
			}
		}

		switch {
		case inflight == 0 && e.Frontier.Len() == 0:
			reason = StopComplete
		case inflight == 0 && dispatched >= e.Opts.MaxCalls:
			reason = StopMaxCalls
		case e.Tracker.Plateaued():
			reason = StopPlateau
		}
		if reason != "" {
			break
		}

		select {
		case res := <-pool.Results():
			inflight--
			e.handleResult(res)
		case <-runCtx.Done():
			if ctx.Err() != nil {
				reason = StopRequested
			} else {
				reason = StopMaxWallTime
			}
		}
	}

	cancel()
	e.drain(pool, inflight)
	e.report(reason)
	return reason, nil
}

// handleResult folds a finished task back into the frontier and stats.
func (e *Explorer) handleResult(res Result) {
	if e.OnResult != nil {
		e.OnResult(res)
	}

	if res.FailKind != "" {
		e.Tracker.CallFailed(res.FailKind, res.NewNodes, res.NewEdges)
		if res.Retryable && res.Task.Attempts < retryLimit(res.FailKind, e.Opts.TaskRetryMax) {
			e.Frontier.Push(frontier.Entry{
				NodeID:   res.Task.NodeID,
				Response: res.Task.Response,
				Depth:    res.Task.Depth,
				Attempts: res.Task.Attempts + 1,
			})
		} else {
			fmt.Fprintf(e.Out, "Task dropped after %d attempts (%s): %v\n", res.Task.Attempts+1, res.FailKind, res.Err)
		}
		return
	}

	e.Tracker.CallSucceeded(res.NewNodes, res.NewEdges)

	depth := res.Task.Depth + 1
	if n, ok := e.Graph.Node(res.FinalNode); ok && n.DepthMin >= 0 {
		depth = n.DepthMin
	}
	outgoing := len(e.Graph.OutgoingResponses(res.FinalNode))
	for _, c := range res.Candidates {
		if e.Opts.BreadthCap > 0 && outgoing >= e.Opts.BreadthCap {
			break
		}
		outgoing++
		e.Frontier.Push(frontier.Entry{
			NodeID:   res.FinalNode,
			Response: c,
			Depth:    depth,
		})
	}

	nodes, edges, terminals := e.Graph.Counts()
	fmt.Fprintf(e.Out, "Call %s done: +%d nodes +%d edges (graph: %d nodes, %d edges, %d terminal)\n",
		res.CallID, res.NewNodes, res.NewEdges, nodes, edges, terminals)
}

// drain collects results from cancelled in-flight tasks for up to the
// grace period, then abandons whatever is still running. Abandoned tasks
// never wrote partial data: graph mutations happen only in integrate,
// before the cancellable LM step marks anything terminal.
func (e *Explorer) drain(pool *Pool, inflight int) {
	deadline := time.After(e.Opts.GraceShutdown)
	for inflight > 0 {
		select {
		case res := <-pool.Results():
			inflight--
			e.handleResult(res)
		case <-deadline:
			fmt.Fprintf(e.Out, "Grace period elapsed with %d tasks in flight — abandoning\n", inflight)
			return
		}
	}
}

// report prints the final summary and each terminal node's path from root.
func (e *Explorer) report(reason string) {
	snap := e.Graph.Snapshot()
	stats := e.Tracker.Snapshot()
	fmt.Fprintf(e.Out, "\nExploration finished (%s): %d nodes, %d edges, %d calls (%d failed) in %.1fs\n",
		reason, len(snap.Nodes), len(snap.Edges), stats.CallsAttempted, stats.CallsFailed, stats.DurationS)

	for _, n := range snap.Nodes {
		if !n.Terminal {
			continue
		}
		fmt.Fprintf(e.Out, "\nTerminal [%s] %s\n", n.TerminalKind, firstLine(n.Utterance))
		for _, step := range e.Graph.PathTo(n.ID) {
			if step.UserResponse != "" {
				fmt.Fprintf(e.Out, "  → %s\n", step.UserResponse)
			}
		}
	}
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
