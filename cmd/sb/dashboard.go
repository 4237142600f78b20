package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/dashboard"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/graph"
	"github.com/zulandar/switchboard/internal/progress"
)

func newDashboardCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Start the read-only web dashboard standalone",
		Long:  "Serves the dashboard over the call log without running the engine. During exploration the dashboard is served by `sb explore` itself.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to Switchboard config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default: dashboard.port from config)")
	return cmd
}

func runDashboard(cmd *cobra.Command, configPath string, port int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if port <= 0 {
		port = cfg.Dashboard.Port
	}

	gormDB, err := db.Connect(cfg.Store.Driver, cfg.Store.Path, cfg.Store.Host, cfg.Store.Port, cfg.Store.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	return dashboard.Start(ctx, dashboard.StartOpts{
		Graph:   graph.New(cfg.Explore.SimilarityThreshold),
		Tracker: progress.NewTracker(cfg.Explore.PlateauWindow),
		DB:      gormDB,
		Port:    port,
		Out:     cmd.OutOrStdout(),
	})
}
