package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/calllog"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/dashboard"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/explorer"
	"github.com/zulandar/switchboard/internal/export"
	"github.com/zulandar/switchboard/internal/frontier"
	"github.com/zulandar/switchboard/internal/graph"
	"github.com/zulandar/switchboard/internal/llm"
	"github.com/zulandar/switchboard/internal/progress"
	"github.com/zulandar/switchboard/internal/telegraph"
	"github.com/zulandar/switchboard/internal/telegraph/discord"
	"github.com/zulandar/switchboard/internal/telegraph/slack"
	"github.com/zulandar/switchboard/internal/transcribe"
	"github.com/zulandar/switchboard/internal/voice"
	"github.com/zulandar/switchboard/internal/webhook"
	"golang.org/x/term"
)

func newExploreCmd() *cobra.Command {
	var (
		configPath string
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Run the exploration engine",
		Long:  "Places calls to the target agent, builds the conversation graph, and serves the dashboard until quiescence.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplore(cmd, configPath, quiet)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to Switchboard config file")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress per-call progress output")
	return cmd
}

func runExplore(cmd *cobra.Command, configPath string, quiet bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateCredentials(); err != nil {
		return err
	}

	// Per-call progress goes to the terminal only when one is attached;
	// piped output keeps just the final report.
	out := cmd.OutOrStdout()
	progressOut := out
	if quiet || (out == os.Stdout && !term.IsTerminal(int(os.Stdout.Fd()))) {
		progressOut = io.Discard
	}

	gormDB, err := db.Connect(cfg.Store.Driver, cfg.Store.Path, cfg.Store.Host, cfg.Store.Port, cfg.Store.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	g := graph.New(cfg.Explore.SimilarityThreshold)
	tracker := progress.NewTracker(cfg.Explore.PlateauWindow)
	correlator := webhook.NewCorrelator(cfg.LateBuffer())

	voiceClient, err := voice.NewRESTClient(voice.RESTOpts{
		BaseURL:    cfg.Voice.BaseURL,
		APIKey:     cfg.Voice.APIKey,
		WebhookURL: strings.TrimSuffix(cfg.Webhook.PublicURL, "/") + "/webhook/call-complete",
	})
	if err != nil {
		return err
	}
	transcriber, err := transcribe.NewDeepgramClient(transcribe.DeepgramOpts{
		BaseURL: cfg.Speech.BaseURL,
		APIKey:  cfg.Speech.APIKey,
	})
	if err != nil {
		return err
	}
	llmClient, err := llm.NewOpenAIClient(llm.OpenAIOpts{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	// Webhook listener and dashboard run for the lifetime of the run;
	// their errors are fatal only at bind time, reported via errCh.
	errCh := make(chan error, 2)
	go func() {
		errCh <- webhook.Start(ctx, webhook.StartOpts{
			Correlator: correlator,
			Port:       cfg.Webhook.Port,
			Out:        out,
		})
	}()
	go func() {
		errCh <- dashboard.Start(ctx, dashboard.StartOpts{
			Graph:   g,
			Tracker: tracker,
			DB:      gormDB,
			Port:    cfg.Dashboard.Port,
			Out:     out,
		})
	}()

	digester := &telegraph.Digester{
		Scenario: cfg.Scenario,
		CronExpr: cfg.Telegraph.DigestCron,
		Graph:    g,
		Tracker:  tracker,
		Senders:  buildSenders(cfg, out),
	}
	defer digester.CloseAll()
	go digester.Run(ctx)

	worker := &explorer.Worker{
		Graph:       g,
		Voice:       voiceClient,
		Transcriber: transcriber,
		LLM:         llmClient,
		Prompts:     llm.NewContextualizer(cfg.Scenario),
		Correlator:  correlator,
		Tracker:     tracker,
		Opts: explorer.WorkerOpts{
			PhoneNumber: cfg.PhoneNumber,
			CallTimeout: cfg.CallTimeout(),
			LlmRetryMax: cfg.Explore.LlmRetryMax,
			Temperature: cfg.LLM.Temperature,
			Seed:        cfg.Explore.RandomSeed,
			RootMode:    cfg.Explore.RootMode,
			Threshold:   cfg.Explore.SimilarityThreshold,
		},
	}
	worker.StateChanged = func(callID, state string) {
		if callID != "" {
			fmt.Fprintf(progressOut, "  call %s → %s\n", callID, state)
		}
	}
	eng := &explorer.Explorer{
		Graph:    g,
		Frontier: frontier.New(),
		Tracker:  tracker,
		Worker:   worker,
		Out:      progressOut,
		Opts: explorer.Options{
			WorkerCount:   cfg.Explore.Workers,
			MaxCalls:      cfg.Explore.MaxCalls,
			MaxWallTime:   cfg.MaxWallTime(),
			TaskRetryMax:  cfg.Explore.TaskRetryMax,
			BreadthCap:    cfg.Explore.BreadthCap,
			GraceShutdown: cfg.GraceShutdown(),
		},
		OnResult: func(res explorer.Result) {
			if err := calllog.Record(gormDB, res); err != nil {
				log.Printf("call log: %v", err)
			}
		},
	}

	// Fail fast if a server could not bind before exploring.
	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	default:
	}

	reason, err := eng.Run(ctx)
	if err != nil {
		return err
	}

	snap := g.Snapshot()
	stats := tracker.Snapshot()

	gistURL := ""
	if cfg.Export.Gist {
		exporter, err := export.New(export.Opts{Token: cfg.Export.Token, Description: cfg.Export.Description})
		if err != nil {
			log.Printf("export: %v", err)
		} else if gistURL, err = exporter.Upload(context.Background(), snap); err != nil {
			log.Printf("export: %v", err)
			gistURL = ""
		} else {
			fmt.Fprintf(out, "Graph published: %s\n", gistURL)
		}
	}

	digester.Broadcast(telegraph.FormatFinal(cfg.Scenario, reason, gistURL, snap, stats))

	if err := calllog.RecordRun(gormDB, cfg.Scenario, cfg.PhoneNumber, reason, gistURL, snap, stats); err != nil {
		log.Printf("call log: %v", err)
	}

	fmt.Fprintf(out, "Done (%s): %d states, %d transitions, %d calls.\n",
		reason, len(snap.Nodes), len(snap.Edges), stats.CallsAttempted)
	return nil
}

// buildSenders creates the configured chat senders. Failures disable the
// sender rather than the run.
func buildSenders(cfg *config.Config, out io.Writer) []telegraph.Sender {
	var senders []telegraph.Sender
	if cfg.Telegraph.Slack.ChannelID != "" {
		s, err := slack.New(slack.Opts{
			BotToken:  cfg.Telegraph.Slack.BotToken,
			ChannelID: cfg.Telegraph.Slack.ChannelID,
		})
		if err != nil {
			log.Printf("telegraph: slack disabled: %v", err)
		} else {
			senders = append(senders, s)
			fmt.Fprintf(out, "Slack digests enabled (channel %s)\n", cfg.Telegraph.Slack.ChannelID)
		}
	}
	if cfg.Telegraph.Discord.ChannelID != "" {
		d, err := discord.New(discord.Opts{
			BotToken:  cfg.Telegraph.Discord.BotToken,
			ChannelID: cfg.Telegraph.Discord.ChannelID,
		})
		if err != nil {
			log.Printf("telegraph: discord disabled: %v", err)
		} else {
			senders = append(senders, d)
			fmt.Fprintf(out, "Discord digests enabled (channel %s)\n", cfg.Telegraph.Discord.ChannelID)
		}
	}
	return senders
}
