package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/graph"
	"github.com/zulandar/switchboard/internal/progress"
)

func testRouter(t *testing.T, g *graph.Graph, tracker *progress.Tracker) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	tmpl, err := parseTemplates()
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}
	router.SetHTMLTemplate(tmpl)
	registerRoutes(router, g, tracker, nil)
	return router
}

func seededGraph() *graph.Graph {
	g := graph.New(0)
	root, _ := g.GetOrCreateNode("Thanks for calling Acme.")
	menu, _ := g.GetOrCreateNode("Press one for sales.")
	g.AddEdge(root, "hello", menu)
	g.MarkTerminal(menu, graph.TerminalSuccess)
	return g
}

func TestHandleGraph(t *testing.T) {
	router := testRouter(t, seededGraph(), progress.NewTracker(0))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/graph", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var view graphView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(view.Nodes) != 2 || len(view.Edges) != 1 {
		t.Fatalf("view = %+v", view)
	}
	if view.Edges[0].UserResponse != "hello" || view.Edges[0].ObservationCount != 1 {
		t.Errorf("edge = %+v", view.Edges[0])
	}
	terminal := false
	for _, n := range view.Nodes {
		if n.IsTerminal {
			terminal = true
		}
	}
	if !terminal {
		t.Error("no terminal node in view")
	}
}

// Round-trip: reconstructing a graph from GET /graph yields the same
// shape under node-id relabeling.
func TestHandleGraph_RoundTrip(t *testing.T) {
	g := seededGraph()
	router := testRouter(t, g, progress.NewTracker(0))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/graph", nil))
	var view graphView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rebuilt := graph.New(0)
	newID := make(map[string]string, len(view.Nodes))
	for _, n := range view.Nodes {
		id, _ := rebuilt.GetOrCreateNode(n.Utterance)
		newID[n.ID] = id
		if n.IsTerminal {
			rebuilt.MarkTerminal(id, graph.TerminalSuccess)
		}
	}
	for _, e := range view.Edges {
		rebuilt.AddEdge(newID[e.From], e.UserResponse, newID[e.To])
	}

	orig := g.Snapshot()
	snap := rebuilt.Snapshot()
	if len(snap.Nodes) != len(orig.Nodes) || len(snap.Edges) != len(orig.Edges) {
		t.Errorf("rebuilt graph %d/%d, want %d/%d",
			len(snap.Nodes), len(snap.Edges), len(orig.Nodes), len(orig.Edges))
	}
}

func TestHandleStats(t *testing.T) {
	tracker := progress.NewTracker(0)
	tracker.CallAttempted()
	tracker.CallFailed("webhook_timeout", 0, 0)
	router := testRouter(t, graph.New(0), tracker)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var stats progress.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.CallsAttempted != 1 || stats.FailuresByKind["webhook_timeout"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestHandleFrontier(t *testing.T) {
	router := testRouter(t, seededGraph(), progress.NewTracker(0))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/frontier", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		NodeIDs []string `json:"node_ids"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// The root is open; the terminal menu node is not.
	if len(body.NodeIDs) != 1 {
		t.Errorf("frontier = %v, want one open node", body.NodeIDs)
	}
}

func TestHandleCalls_NilDB(t *testing.T) {
	router := testRouter(t, graph.New(0), progress.NewTracker(0))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/calls", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestEmbeddedAssets(t *testing.T) {
	// Verify embedded files are accessible.
	if _, err := assetsFS.ReadFile("assets/style.css"); err != nil {
		t.Fatalf("style.css not embedded: %v", err)
	}
	if _, err := templatesFS.ReadFile("templates/layout.html"); err != nil {
		t.Fatalf("layout.html not embedded: %v", err)
	}
}

func TestHandleIndex(t *testing.T) {
	router := testRouter(t, graph.New(0), progress.NewTracker(0))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}
