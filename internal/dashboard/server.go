// Package dashboard serves the read-only graph and stats API polled by
// the frontend.
package dashboard

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/graph"
	"github.com/zulandar/switchboard/internal/progress"
	"gorm.io/gorm"
)

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Graph   *graph.Graph
	Tracker *progress.Tracker
	DB      *gorm.DB // call log; may be nil
	Port    int
	Out     io.Writer
}

// Start launches the dashboard HTTP server. It blocks until ctx is
// cancelled, then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Graph == nil {
		return fmt.Errorf("dashboard: graph is required")
	}
	if opts.Tracker == nil {
		return fmt.Errorf("dashboard: tracker is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// Parse embedded templates.
	tmpl, err := parseTemplates()
	if err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	// Register routes.
	registerRoutes(router, opts.Graph, opts.Tracker, opts.DB)

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// parseTemplates loads the embedded HTML templates.
func parseTemplates() (*template.Template, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return tmpl, nil
}
