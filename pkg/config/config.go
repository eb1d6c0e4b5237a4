// Package config provides configuration loading, validation, and defaults for
// the boardroom server. It handles JSON config files, ${ENV} substitution,
// .env files, and BOARDROOM_* environment overrides.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Defaults.
const (
	DefaultConfigFile   = "boardroom.json"
	DefaultEnvFile      = ".env"
	DefaultOllamaHost   = "http://127.0.0.1:11434"
	DefaultModel        = "llama3:latest"
	DefaultWebUIHost    = "127.0.0.1"
	DefaultWebUIPort    = 8080
	DefaultNamespace    = "boardroom"
	DefaultHistoryCap   = 20
	DefaultMentionWin   = 9
	DefaultMaxMsgChars  = 4096
	EnvPrefix           = "BOARDROOM_"
	defaultShutdownSecs = 10
)

// OllamaConfig configures the completion service.
type OllamaConfig struct {
	Host             string `json:"host"`               // Ollama base URL
	Model            string `json:"model"`              // Model tag, e.g. "llama3:latest"
	ChatTimeoutSec   int    `json:"chat_timeout_sec"`   // Wait for response headers on any request
	StreamTimeoutSec int    `json:"stream_timeout_sec"` // Bound on a streamed turn, until the body is closed
	JudgeTimeoutSec  int    `json:"judge_timeout_sec"`  // Bound on non-streamed requests (the judge panel)
}

// MeetingConfig configures pacing and derived views.
type MeetingConfig struct {
	HistoryCap            int `json:"history_cap"`    // Chat messages sent per prompt
	MentionWindow         int `json:"mention_window"` // Messages scanned for connections
	MaxMessageChars       int `json:"max_message_chars"`
	ChatPacingMinMS       int `json:"chat_pacing_min_ms"`
	ChatPacingMaxMS       int `json:"chat_pacing_max_ms"`
	DiscussionPacingMinMS int `json:"discussion_pacing_min_ms"`
	DiscussionPacingMaxMS int `json:"discussion_pacing_max_ms"`
	DebateTurnDelayMS     int `json:"debate_turn_delay_ms"`
	DebateRoundDelayMS    int `json:"debate_round_delay_ms"`
}

// WebUIConfig configures the HTTP surface.
type WebUIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"`
}

// Config represents the main configuration for the boardroom server.
type Config struct {
	Ollama                     OllamaConfig  `json:"ollama"`
	Meeting                    MeetingConfig `json:"meeting"`
	WebUI                      WebUIConfig   `json:"webui"`
	Metrics                    MetricsConfig `json:"metrics"`
	GracefulShutdownTimeoutSec int           `json:"graceful_shutdown_timeout_sec"`
	Debug                      bool          `json:"debug"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Metrics: MetricsConfig{Enabled: true}}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration.
func applyDefaults(config *Config) {
	setDefault(&config.Ollama.Host, DefaultOllamaHost)
	setDefault(&config.Ollama.Model, DefaultModel)
	setDefault(&config.Ollama.ChatTimeoutSec, 60)
	setDefault(&config.Ollama.StreamTimeoutSec, 90)
	setDefault(&config.Ollama.JudgeTimeoutSec, 120)

	m := &config.Meeting
	setDefault(&m.HistoryCap, DefaultHistoryCap)
	setDefault(&m.MentionWindow, DefaultMentionWin)
	setDefault(&m.MaxMessageChars, DefaultMaxMsgChars)
	setDefault(&m.ChatPacingMinMS, 1000)
	setDefault(&m.ChatPacingMaxMS, 2000)
	setDefault(&m.DiscussionPacingMinMS, 600)
	setDefault(&m.DiscussionPacingMaxMS, 1400)
	setDefault(&m.DebateTurnDelayMS, 800)
	setDefault(&m.DebateRoundDelayMS, 1200)

	setDefault(&config.WebUI.Host, DefaultWebUIHost)
	setDefault(&config.WebUI.Port, DefaultWebUIPort)
	setDefault(&config.Metrics.Namespace, DefaultNamespace)
	setDefault(&config.GracefulShutdownTimeoutSec, defaultShutdownSecs)
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// Validate checks ranges and formats.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Ollama.Host)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("ollama.host %q must be an absolute URL", c.Ollama.Host)
	}
	if strings.TrimSpace(c.Ollama.Model) == "" {
		return fmt.Errorf("ollama.model is required")
	}
	for name, v := range map[string]int{
		"ollama.chat_timeout_sec":   c.Ollama.ChatTimeoutSec,
		"ollama.stream_timeout_sec": c.Ollama.StreamTimeoutSec,
		"ollama.judge_timeout_sec":  c.Ollama.JudgeTimeoutSec,
		"meeting.history_cap":       c.Meeting.HistoryCap,
		"meeting.mention_window":    c.Meeting.MentionWindow,
		"meeting.max_message_chars": c.Meeting.MaxMessageChars,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative (got %d)", name, v)
		}
	}

	m := c.Meeting
	if m.ChatPacingMinMS > m.ChatPacingMaxMS {
		return fmt.Errorf("meeting.chat_pacing_min_ms (%d) exceeds max (%d)", m.ChatPacingMinMS, m.ChatPacingMaxMS)
	}
	if m.DiscussionPacingMinMS > m.DiscussionPacingMaxMS {
		return fmt.Errorf("meeting.discussion_pacing_min_ms (%d) exceeds max (%d)", m.DiscussionPacingMinMS, m.DiscussionPacingMaxMS)
	}
	if m.DebateTurnDelayMS < 0 || m.DebateRoundDelayMS < 0 {
		return fmt.Errorf("meeting debate delays must not be negative")
	}

	if c.WebUI.Port < 1 || c.WebUI.Port > 65535 {
		return fmt.Errorf("webui.port %d out of range", c.WebUI.Port)
	}
	return nil
}

// Addr is the listen address of the web UI.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.WebUI.Host, c.WebUI.Port)
}

// ChatTimeout bounds the wait for response headers on every request.
func (o OllamaConfig) ChatTimeout() time.Duration {
	return time.Duration(o.ChatTimeoutSec) * time.Second
}

// StreamTimeout bounds a streamed turn.
func (o OllamaConfig) StreamTimeout() time.Duration {
	return time.Duration(o.StreamTimeoutSec) * time.Second
}

// JudgeTimeout bounds non-streamed requests, which only the judge panel makes.
func (o OllamaConfig) JudgeTimeout() time.Duration {
	return time.Duration(o.JudgeTimeoutSec) * time.Second
}

// ShutdownTimeout bounds graceful shutdown.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.GracefulShutdownTimeoutSec) * time.Second
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// ChatPacing returns the pause bounds before a chat reply.
func (m MeetingConfig) ChatPacing() (lo, hi time.Duration) {
	return ms(m.ChatPacingMinMS), ms(m.ChatPacingMaxMS)
}

// DiscussionPacing returns the pause bounds before a discussion turn.
func (m MeetingConfig) DiscussionPacing() (lo, hi time.Duration) {
	return ms(m.DiscussionPacingMinMS), ms(m.DiscussionPacingMaxMS)
}

// DebateDelays returns the pause before a debate turn and between rounds.
func (m MeetingConfig) DebateDelays() (turn, round time.Duration) {
	return ms(m.DebateTurnDelayMS), ms(m.DebateRoundDelayMS)
}
