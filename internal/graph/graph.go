// Package graph holds the conversation graph discovered during exploration.
//
// Nodes are equivalence classes of agent utterances under fuzzy matching;
// edges are user responses that transition between them. All mutation is
// serialized through a single writer lock, and readers work from snapshots,
// so concurrent workers observing the same utterance converge on one node.
package graph

import (
	"fmt"
	"sync"

	"github.com/zulandar/switchboard/internal/similarity"
	"github.com/zulandar/switchboard/internal/textnorm"
)

// Terminal kinds, assigned when a node is classified as an endpoint.
const (
	TerminalSuccess  = "success"
	TerminalTransfer = "transfer"
	TerminalFallback = "fallback"
)

// Node is one conversational state of the remote agent.
type Node struct {
	ID                  string
	Utterance           string // first observed form, kept verbatim
	NormalizedUtterance string
	Terminal            bool
	TerminalKind        string
	DepthMin            int // shortest known path length from root
	VisitCount          int

	// First-discovery parent. AddEdge never sets a parent that would close a
	// loop, so walking this chain from any node ends at a node without one:
	// the root, or a node created before any edge reached it.
	ParentID       string
	ParentResponse string
}

// Edge is a labeled transition. Identity is (From, normalized response).
type Edge struct {
	From               string
	To                 string
	Response           string // first observed form
	NormalizedResponse string
	ObservationCount   int
}

// Step is one turn pair on the path from root to a node.
type Step struct {
	AgentUtterance string
	UserResponse   string
}

// Graph is the thread-safe store of nodes and edges.
type Graph struct {
	mu        sync.Mutex
	threshold float64
	seq       int
	rootID    string
	nodes     map[string]*Node
	order     []string          // node ids in creation order, for deterministic iteration
	edges     map[edgeKey]*Edge
	outgoing  map[string][]edgeKey
}

type edgeKey struct {
	from     string
	response string // normalized
}

// New creates an empty graph using the given similarity threshold for node
// identity. A threshold <= 0 falls back to similarity.DefaultThreshold.
func New(threshold float64) *Graph {
	if threshold <= 0 {
		threshold = similarity.DefaultThreshold
	}
	return &Graph{
		threshold: threshold,
		nodes:     make(map[string]*Node),
		edges:     make(map[edgeKey]*Edge),
		outgoing:  make(map[string][]edgeKey),
	}
}

// GetOrCreateNode finds the node matching utterance or inserts a new one.
// Find and insert happen under one lock acquisition, so two workers racing
// on the same utterance always converge on a single node. The first node
// ever created becomes the root at depth 0.
func (g *Graph) GetOrCreateNode(utterance string) (id string, created bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	norm := textnorm.Normalize(utterance)
	if match := g.findMatchLocked(norm); match != nil {
		match.VisitCount++
		return match.ID, false
	}

	g.seq++
	n := &Node{
		ID:                  fmt.Sprintf("n-%06d", g.seq),
		Utterance:           utterance,
		NormalizedUtterance: norm,
		VisitCount:          1,
		DepthMin:            -1, // unknown until linked
	}
	if g.rootID == "" {
		g.rootID = n.ID
		n.DepthMin = 0
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	return n.ID, true
}

// findMatchLocked returns the highest-scoring node at or above the
// threshold, preferring the lower node id on ties.
func (g *Graph) findMatchLocked(norm string) *Node {
	var best *Node
	bestScore := 0.0
	for _, id := range g.order {
		n := g.nodes[id]
		s := similarity.Score(norm, n.NormalizedUtterance)
		if s < g.threshold {
			continue
		}
		// Creation order equals id order, so the first winner at a given
		// score is the lowest id.
		if s > bestScore {
			best, bestScore = n, s
		}
	}
	return best
}

// AddEdge records a transition from one node to another under a user
// response. An equivalent edge (same source, same normalized response) has
// its observation count incremented instead. Referencing a node that does
// not exist is a programming error and panics.
func (g *Graph) AddEdge(fromID, userResponse, toID string) (created bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	from, ok := g.nodes[fromID]
	if !ok {
		panic(fmt.Sprintf("graph: add edge from unknown node %s", fromID))
	}
	to, ok := g.nodes[toID]
	if !ok {
		panic(fmt.Sprintf("graph: add edge to unknown node %s", toID))
	}

	key := edgeKey{from: fromID, response: textnorm.Normalize(userResponse)}
	if e, ok := g.edges[key]; ok {
		e.ObservationCount++
		g.relaxDepthLocked(from, to)
		return false
	}

	g.edges[key] = &Edge{
		From:               fromID,
		To:                 toID,
		Response:           userResponse,
		NormalizedResponse: key.response,
		ObservationCount:   1,
	}
	g.outgoing[fromID] = append(g.outgoing[fromID], key)

	if to.ParentID == "" && to.ID != g.rootID {
		// Skip adoption when the target is already on the source's parent
		// chain (including a self-loop): it would close a loop there.
		onChain := false
		for cur := from; cur != nil; cur = g.nodes[cur.ParentID] {
			if cur == to {
				onChain = true
				break
			}
		}
		if !onChain {
			to.ParentID = fromID
			to.ParentResponse = userResponse
		}
	}
	g.relaxDepthLocked(from, to)
	return true
}

// relaxDepthLocked lowers the target's shortest known depth via the source.
func (g *Graph) relaxDepthLocked(from, to *Node) {
	if from.DepthMin < 0 {
		return
	}
	if d := from.DepthMin + 1; to.DepthMin < 0 || d < to.DepthMin {
		to.DepthMin = d
	}
}

// MarkTerminal classifies a node as a conversation endpoint. An empty kind
// defaults to TerminalSuccess.
func (g *Graph) MarkTerminal(id, kind string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		panic(fmt.Sprintf("graph: mark terminal on unknown node %s", id))
	}
	if kind == "" {
		kind = TerminalSuccess
	}
	n.Terminal = true
	n.TerminalKind = kind
}

// Root returns the root node id, or "" before the first node exists.
func (g *Graph) Root() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rootID
}

// Node returns a copy of the node, or false if it does not exist.
func (g *Graph) Node(id string) (Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// OutgoingResponses returns the set of normalized user responses already
// recorded as edges out of the given node. Used to dedup new candidates.
func (g *Graph) OutgoingResponses(id string) map[string]bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]bool, len(g.outgoing[id]))
	for _, key := range g.outgoing[id] {
		out[key.response] = true
	}
	return out
}

// PathTo returns the (agent utterance, user response) steps from the root
// to the given node, following first-discovery parents. The final step's
// UserResponse is empty: it is the turn awaiting a response.
func (g *Graph) PathTo(id string) []Step {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur, ok := g.nodes[id]
	if !ok {
		return nil
	}

	chain := []*Node{cur}
	for cur.ParentID != "" {
		parent, ok := g.nodes[cur.ParentID]
		if !ok {
			break
		}
		chain = append(chain, parent)
		cur = parent
	}

	steps := make([]Step, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		step := Step{AgentUtterance: chain[i].Utterance}
		if i > 0 {
			step.UserResponse = chain[i-1].ParentResponse
		}
		steps = append(steps, step)
	}
	return steps
}

// FrontierCandidates returns up to limit non-terminal node ids whose
// outgoing edge count is below breadthCap, in creation order.
func (g *Graph) FrontierCandidates(limit, breadthCap int) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []string
	for _, id := range g.order {
		if limit > 0 && len(out) >= limit {
			break
		}
		n := g.nodes[id]
		if n.Terminal {
			continue
		}
		if breadthCap > 0 && len(g.outgoing[id]) >= breadthCap {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Snapshot is a consistent read-only copy of the graph.
type Snapshot struct {
	Root  string
	Nodes []Node
	Edges []Edge
}

// Snapshot copies the graph under the lock. Mutators are blocked only for
// the duration of the copy; write throughput is tiny next to call latency,
// so no finer-grained scheme is needed.
func (g *Graph) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := Snapshot{
		Root:  g.rootID,
		Nodes: make([]Node, 0, len(g.order)),
		Edges: make([]Edge, 0, len(g.edges)),
	}
	for _, id := range g.order {
		snap.Nodes = append(snap.Nodes, *g.nodes[id])
	}
	for _, id := range g.order {
		for _, key := range g.outgoing[id] {
			snap.Edges = append(snap.Edges, *g.edges[key])
		}
	}
	return snap
}

// Counts returns the current node, edge, and terminal totals.
func (g *Graph) Counts() (nodes, edges, terminals int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, n := range g.nodes {
		if n.Terminal {
			terminals++
		}
	}
	return len(g.nodes), len(g.edges), terminals
}
