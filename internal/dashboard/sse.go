package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/progress"
)

// handleSSE streams stats snapshots so the page can update without
// polling aggressively.
func handleSSE(tracker *progress.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		// Send connected event.
		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		ctx := c.Request.Context()
		ticker := time.NewTicker(3 * time.Second)
		heartbeat := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		defer heartbeat.Stop()

		var last progress.Stats
		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				snap := tracker.Snapshot()
				if snap.CallsAttempted == last.CallsAttempted &&
					snap.NodesAdded == last.NodesAdded &&
					snap.EdgesAdded == last.EdgesAdded {
					continue
				}
				last = snap
				writeSSE(c.Writer, "stats", snap)
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes one SSE frame.
func writeSSE(w io.Writer, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}
