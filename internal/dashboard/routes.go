package dashboard

import (
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/graph"
	"github.com/zulandar/switchboard/internal/progress"
	"gorm.io/gorm"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, g *graph.Graph, tracker *progress.Tracker, db *gorm.DB) {
	// Embedded static assets (served from assets/ subdir of the embed.FS).
	staticFS, _ := fs.Sub(assetsFS, "assets")
	router.StaticFS("/static", http.FS(staticFS))

	// Page.
	router.GET("/", handleIndex())

	// Polling API consumed by the frontend.
	router.GET("/graph", handleGraph(g))
	router.GET("/stats", handleStats(tracker))
	router.GET("/frontier", handleFrontier(g))
	router.GET("/calls", handleCalls(db))

	// SSE stats stream.
	router.GET("/api/events", handleSSE(tracker))
}

func handleIndex() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "layout.html", gin.H{
			"page": "dashboard",
		})
	}
}

// graphView is the wire shape of GET /graph.
type graphView struct {
	Nodes []nodeView `json:"nodes"`
	Edges []edgeView `json:"edges"`
}

type nodeView struct {
	ID         string `json:"id"`
	Utterance  string `json:"utterance"`
	IsTerminal bool   `json:"is_terminal"`
	DepthMin   int    `json:"depth_min"`
	VisitCount int    `json:"visit_count"`
}

type edgeView struct {
	From             string `json:"from"`
	To               string `json:"to"`
	UserResponse     string `json:"user_response"`
	ObservationCount int    `json:"observation_count"`
}

func handleGraph(g *graph.Graph) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := g.Snapshot()
		view := graphView{
			Nodes: make([]nodeView, 0, len(snap.Nodes)),
			Edges: make([]edgeView, 0, len(snap.Edges)),
		}
		for _, n := range snap.Nodes {
			view.Nodes = append(view.Nodes, nodeView{
				ID:         n.ID,
				Utterance:  n.Utterance,
				IsTerminal: n.Terminal,
				DepthMin:   n.DepthMin,
				VisitCount: n.VisitCount,
			})
		}
		for _, e := range snap.Edges {
			view.Edges = append(view.Edges, edgeView{
				From:             e.From,
				To:               e.To,
				UserResponse:     e.Response,
				ObservationCount: e.ObservationCount,
			})
		}
		c.JSON(http.StatusOK, view)
	}
}

func handleStats(tracker *progress.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, tracker.Snapshot())
	}
}

// handleFrontier lists non-terminal nodes still open for exploration:
// those whose outgoing-response count is below the breadth cap.
func handleFrontier(g *graph.Graph) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids := g.FrontierCandidates(100, 8)
		if ids == nil {
			ids = []string{}
		}
		c.JSON(http.StatusOK, gin.H{"node_ids": ids})
	}
}

func handleCalls(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		recent, err := recentCalls(db, 50)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"calls": recent})
	}
}
