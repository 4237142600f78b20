package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/db"
)

func newDoctorCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and credentials",
		Long:  "Runs diagnostic checks on Switchboard prerequisites: config file, service credentials, webhook URL, and call-log database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to Switchboard config file")
	return cmd
}

type checkResult struct {
	name   string
	status string // "PASS", "FAIL", "WARN"
	detail string
}

func runDoctor(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Switchboard Doctor")
	fmt.Fprintln(out, "==================")

	var results []checkResult

	// 1. Config
	cfg, cfgResult := checkConfig(configPath)
	results = append(results, cfgResult)

	// 2. Credentials
	if cfg != nil {
		results = append(results, checkCredentials(cfg))
	} else {
		results = append(results, checkResult{"Credentials", "FAIL", "skipped (no config)"})
	}

	// 3. Webhook URL
	if cfg != nil {
		results = append(results, checkWebhookURL(cfg))
	} else {
		results = append(results, checkResult{"Webhook URL", "FAIL", "skipped (no config)"})
	}

	// 4. Call-log database
	if cfg != nil {
		results = append(results, checkStore(cfg))
	} else {
		results = append(results, checkResult{"Call log", "FAIL", "skipped (no config)"})
	}

	failed := 0
	for _, r := range results {
		fmt.Fprintf(out, "%-6s %-14s %s\n", r.status, r.name, r.detail)
		if r.status == "FAIL" {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("doctor: %d check(s) failed", failed)
	}
	fmt.Fprintln(out, "\nAll checks passed.")
	return nil
}

func checkConfig(path string) (*config.Config, checkResult) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, checkResult{"Config", "FAIL", err.Error()}
	}
	return cfg, checkResult{"Config", "PASS", path}
}

func checkCredentials(cfg *config.Config) checkResult {
	if err := cfg.ValidateCredentials(); err != nil {
		return checkResult{"Credentials", "FAIL", err.Error()}
	}
	return checkResult{"Credentials", "PASS", "all required secrets set"}
}

func checkWebhookURL(cfg *config.Config) checkResult {
	u, err := url.Parse(cfg.Webhook.PublicURL)
	if err != nil || u.Host == "" {
		return checkResult{"Webhook URL", "FAIL", fmt.Sprintf("%q is not a valid URL", cfg.Webhook.PublicURL)}
	}
	if u.Scheme != "https" {
		return checkResult{"Webhook URL", "WARN", "public_url is not https; most voice providers require TLS"}
	}
	if strings.Contains(u.Host, "localhost") || strings.HasPrefix(u.Host, "127.") {
		return checkResult{"Webhook URL", "WARN", "public_url points at localhost; the voice provider cannot reach it"}
	}
	return checkResult{"Webhook URL", "PASS", cfg.Webhook.PublicURL}
}

func checkStore(cfg *config.Config) checkResult {
	gormDB, err := db.Connect(cfg.Store.Driver, cfg.Store.Path, cfg.Store.Host, cfg.Store.Port, cfg.Store.Database)
	if err != nil {
		return checkResult{"Call log", "FAIL", err.Error()}
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return checkResult{"Call log", "FAIL", err.Error()}
	}
	return checkResult{"Call log", "PASS", cfg.Store.Driver}
}
