package webhook

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// StartOpts holds configuration for the webhook listener.
type StartOpts struct {
	Correlator *Correlator
	Port       int
	Out        io.Writer
}

// Start launches the webhook HTTP listener. It blocks until ctx is
// cancelled, then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Correlator == nil {
		return fmt.Errorf("webhook: correlator is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8081
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	RegisterRoutes(router, opts.Correlator)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Webhook listener on :%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

// RegisterRoutes sets up the webhook routes on the Gin router.
func RegisterRoutes(router *gin.Engine, c *Correlator) {
	router.POST("/webhook/call-complete", handleCallComplete(c))
}

func handleCallComplete(c *Correlator) gin.HandlerFunc {
	return func(gc *gin.Context) {
		var ev Event
		if err := gc.ShouldBindJSON(&ev); err != nil {
			gc.JSON(http.StatusBadRequest, gin.H{"error": "malformed body"})
			return
		}
		if ev.CallID == "" {
			gc.JSON(http.StatusBadRequest, gin.H{"error": "call_id is required"})
			return
		}
		switch ev.Status {
		case StatusCompleted, StatusFailed, StatusNoAnswer:
		default:
			gc.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown status %q", ev.Status)})
			return
		}

		c.Deliver(ev)
		gc.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
