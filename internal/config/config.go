// Package config provides YAML-based configuration loading for Switchboard.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Switchboard configuration, loaded from
// switchboard.yaml. Service credentials are not stored in the file; they
// are resolved from environment variables by Load.
type Config struct {
	Scenario    string `yaml:"scenario"`
	PhoneNumber string `yaml:"phone_number"`

	Explore   ExploreConfig   `yaml:"explore"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Store     StoreConfig     `yaml:"store"`
	Voice     VoiceConfig     `yaml:"voice"`
	Speech    SpeechConfig    `yaml:"speech"`
	LLM       LLMConfig       `yaml:"llm"`
	Telegraph TelegraphConfig `yaml:"telegraph"`
	Export    ExportConfig    `yaml:"export"`
}

// ExploreConfig tunes the exploration engine.
type ExploreConfig struct {
	Workers             int     `yaml:"workers"`
	MaxCalls            int     `yaml:"max_calls"`
	MaxWallTimeS        int     `yaml:"max_wall_time_s"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	TaskRetryMax        int     `yaml:"task_retry_max"`
	LlmRetryMax         int     `yaml:"llm_retry_max"`
	CallTimeoutS        int     `yaml:"call_timeout_s"`
	PlateauWindow       int     `yaml:"plateau_window"`
	BreadthCap          int     `yaml:"breadth_cap"`
	RandomSeed          int64   `yaml:"random_seed"`
	RootMode            string  `yaml:"root_mode"` // canonical or per_greeting
	GraceShutdownS      int     `yaml:"grace_shutdown_s"`
}

// WebhookConfig configures the inbound call-completion listener.
type WebhookConfig struct {
	Port        int    `yaml:"port"`
	PublicURL   string `yaml:"public_url"` // URL the voice provider calls back on
	LateBufferS int    `yaml:"late_buffer_s"`
}

// DashboardConfig configures the graph/stats HTTP server.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// StoreConfig selects the call-log database backend.
type StoreConfig struct {
	Driver   string `yaml:"driver"` // sqlite (default) or mysql
	Path     string `yaml:"path"`   // sqlite file, default :memory:
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
}

// VoiceConfig configures the outbound-call provider client.
type VoiceConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"-"` // from VOICE_API_KEY
}

// SpeechConfig configures the transcription provider client.
type SpeechConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"-"` // from DEEPGRAM_API_KEY
}

// LLMConfig configures the language-model client.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	APIKey      string  `yaml:"-"` // from OPENAI_API_KEY
}

// TelegraphConfig configures chat digests of exploration progress.
type TelegraphConfig struct {
	DigestCron string         `yaml:"digest_cron"` // 5-field cron, empty disables
	Slack      SlackConfig    `yaml:"slack"`
	Discord    DiscordConfig  `yaml:"discord"`
}

// SlackConfig configures the Slack digest channel.
type SlackConfig struct {
	ChannelID string `yaml:"channel_id"`
	BotToken  string `yaml:"-"` // from SLACK_BOT_TOKEN
}

// DiscordConfig configures the Discord digest channel.
type DiscordConfig struct {
	ChannelID string `yaml:"channel_id"`
	BotToken  string `yaml:"-"` // from DISCORD_BOT_TOKEN
}

// ExportConfig controls publishing the final graph as a GitHub Gist.
type ExportConfig struct {
	Gist        bool   `yaml:"gist"`
	Description string `yaml:"description"`
	Token       string `yaml:"-"` // from GITHUB_TOKEN
}

// Load reads a YAML config file, resolves credentials from the process
// environment, and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.ResolveCredentials(os.Getenv)
	return cfg, nil
}

// Parse unmarshals YAML bytes into a validated Config. Credentials are not
// resolved; call ResolveCredentials before using the provider clients.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolveCredentials fills in API keys and tokens from the environment.
func (c *Config) ResolveCredentials(getenv func(string) string) {
	c.Voice.APIKey = getenv("VOICE_API_KEY")
	c.Speech.APIKey = getenv("DEEPGRAM_API_KEY")
	c.LLM.APIKey = getenv("OPENAI_API_KEY")
	c.Telegraph.Slack.BotToken = getenv("SLACK_BOT_TOKEN")
	c.Telegraph.Discord.BotToken = getenv("DISCORD_BOT_TOKEN")
	c.Export.Token = getenv("GITHUB_TOKEN")
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Explore.Workers == 0 {
		c.Explore.Workers = 4
	}
	if c.Explore.MaxCalls == 0 {
		c.Explore.MaxCalls = 100
	}
	if c.Explore.MaxWallTimeS == 0 {
		c.Explore.MaxWallTimeS = 3600
	}
	if c.Explore.SimilarityThreshold == 0 {
		c.Explore.SimilarityThreshold = 0.85
	}
	if c.Explore.TaskRetryMax == 0 {
		c.Explore.TaskRetryMax = 3
	}
	if c.Explore.LlmRetryMax == 0 {
		c.Explore.LlmRetryMax = 2
	}
	if c.Explore.CallTimeoutS == 0 {
		c.Explore.CallTimeoutS = 300
	}
	if c.Explore.PlateauWindow == 0 {
		c.Explore.PlateauWindow = 20
	}
	if c.Explore.BreadthCap == 0 {
		c.Explore.BreadthCap = 8
	}
	if c.Explore.RootMode == "" {
		c.Explore.RootMode = "canonical"
	}
	if c.Explore.GraceShutdownS == 0 {
		c.Explore.GraceShutdownS = 10
	}
	if c.Webhook.Port == 0 {
		c.Webhook.Port = 8081
	}
	if c.Webhook.LateBufferS == 0 {
		c.Webhook.LateBufferS = 60
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		c.Store.Path = ":memory:"
	}
	if c.Store.Driver == "mysql" {
		if c.Store.Host == "" {
			c.Store.Host = "127.0.0.1"
		}
		if c.Store.Port == 0 {
			c.Store.Port = 3306
		}
		if c.Store.Database == "" {
			c.Store.Database = "switchboard"
		}
	}
	if c.Voice.BaseURL == "" {
		c.Voice.BaseURL = "https://app.hamming.ai/api"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Scenario == "" {
		errs = append(errs, "scenario is required")
	}
	if c.PhoneNumber == "" {
		errs = append(errs, "phone_number is required")
	}
	if c.Webhook.PublicURL == "" {
		errs = append(errs, "webhook.public_url is required")
	}
	switch c.Explore.RootMode {
	case "canonical", "per_greeting":
	default:
		errs = append(errs, fmt.Sprintf("explore.root_mode %q must be canonical or per_greeting", c.Explore.RootMode))
	}
	if c.Explore.SimilarityThreshold < 0 || c.Explore.SimilarityThreshold > 1 {
		errs = append(errs, "explore.similarity_threshold must be in [0,1]")
	}
	switch c.Store.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or mysql", c.Store.Driver))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateCredentials checks the environment-supplied secrets the run
// needs. Missing credentials are fatal at startup.
func (c *Config) ValidateCredentials() error {
	var errs []string
	if c.Voice.APIKey == "" {
		errs = append(errs, "VOICE_API_KEY is not set")
	}
	if c.Speech.APIKey == "" {
		errs = append(errs, "DEEPGRAM_API_KEY is not set")
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, "OPENAI_API_KEY is not set")
	}
	if c.Telegraph.Slack.ChannelID != "" && c.Telegraph.Slack.BotToken == "" {
		errs = append(errs, "SLACK_BOT_TOKEN is not set but telegraph.slack is configured")
	}
	if c.Telegraph.Discord.ChannelID != "" && c.Telegraph.Discord.BotToken == "" {
		errs = append(errs, "DISCORD_BOT_TOKEN is not set but telegraph.discord is configured")
	}
	if c.Export.Gist && c.Export.Token == "" {
		errs = append(errs, "GITHUB_TOKEN is not set but export.gist is enabled")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: credentials: %s", strings.Join(errs, "; "))
	}
	return nil
}

// CallTimeout returns the per-call timeout as a duration.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Explore.CallTimeoutS) * time.Second
}

// MaxWallTime returns the wall-clock budget as a duration.
func (c *Config) MaxWallTime() time.Duration {
	return time.Duration(c.Explore.MaxWallTimeS) * time.Second
}

// GraceShutdown returns the shutdown grace period as a duration.
func (c *Config) GraceShutdown() time.Duration {
	return time.Duration(c.Explore.GraceShutdownS) * time.Second
}

// LateBuffer returns the webhook late-arrival buffer as a duration.
func (c *Config) LateBuffer() time.Duration {
	return time.Duration(c.Webhook.LateBufferS) * time.Second
}
