// Command boardroom serves a simulated executive meeting: nine personas backed
// by a local Ollama model that chat, hold discussions, and debate.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"boardroom/pkg/chat"
	"boardroom/pkg/config"
	"boardroom/pkg/llm"
	metricsmw "boardroom/pkg/llm/middleware/metrics"
	"boardroom/pkg/llm/middleware/timeout"
	"boardroom/pkg/llm/ollama"
	"boardroom/pkg/logx"
	"boardroom/pkg/meeting"
	"boardroom/pkg/metrics"
	"boardroom/pkg/persona"
	"boardroom/pkg/prompt"
	"boardroom/pkg/tokens"
	"boardroom/pkg/version"
	"boardroom/pkg/webui"
)

func main() {
	var (
		configPath  = flag.String("config", config.DefaultConfigFile, "Path to JSON config file")
		envFile     = flag.String("env-file", config.DefaultEnvFile, "Path to .env file (optional)")
		debug       = flag.Bool("debug", false, "Enable debug logging")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	os.Exit(run(*configPath, *envFile, *debug))
}

// run contains the main application logic and returns an exit code.
func run(configPath, envFile string, debug bool) int {
	logger := logx.NewLogger("main")

	if err := config.LoadEnvFile(envFile); err != nil {
		logger.Error("%v", err)
		return 1
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		return 1
	}
	if debug || cfg.Debug {
		logx.SetDebug(true)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	session, gatherer, err := buildSession(cfg)
	if err != nil {
		logger.Error("Failed to build session: %v", err)
		return 1
	}
	defer session.Close()

	logger.Info("%s: model %s at %s", version.String(), cfg.Ollama.Model, cfg.Ollama.Host)

	server := webui.NewServer(session, cfg.Ollama.Model, gatherer)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(gctx, cfg.Addr(), cfg.ShutdownTimeout())
	})
	g.Go(func() error {
		<-gctx.Done()
		session.CancelAll()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped: %v", err)
		return 1
	}
	logger.Info("Shutdown complete")
	return 0
}

// buildSession wires the Ollama client, middleware, metrics, and session.
func buildSession(cfg *config.Config) (*meeting.Session, prometheus.Gatherer, error) {
	var (
		recorder = metrics.Nop()
		gatherer prometheus.Gatherer
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder = metrics.NewPrometheusRecorder(reg, cfg.Metrics.Namespace)
		gatherer = reg
	}

	base := ollama.NewClient(cfg.Ollama.Host, cfg.Ollama.Model, newHTTPClient(cfg.Ollama))

	client := llm.Chain(base,
		metricsmw.Middleware(recorder, tokens.Shared(), logx.NewLogger("llm")),
		timeout.Middleware(cfg.Ollama.JudgeTimeout(), cfg.Ollama.StreamTimeout()),
	)

	roster, err := persona.Default()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load roster: %w", err)
	}
	builder, err := prompt.NewBuilder(roster, cfg.Meeting.HistoryCap)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build prompts: %w", err)
	}

	opts := meeting.DefaultOptions()
	lo, hi := cfg.Meeting.ChatPacing()
	opts.ChatPacing = meeting.Delay{Min: lo, Max: hi}
	lo, hi = cfg.Meeting.DiscussionPacing()
	opts.DiscussionPacing = meeting.Delay{Min: lo, Max: hi}
	opts.DebateTurnDelay, opts.DebateRoundDelay = cfg.Meeting.DebateDelays()
	opts.MentionWindow = cfg.Meeting.MentionWindow

	session := meeting.NewSession(meeting.Deps{
		Client:     client,
		Prompts:    builder,
		Roster:     roster,
		Transcript: chat.NewTranscript(cfg.Meeting.MaxMessageChars),
		Recorder:   recorder,
	}, opts)
	return session, gatherer, nil
}

// newHTTPClient applies the chat timeout as a response header deadline.
// Whole-request bounds come from the timeout middleware.
func newHTTPClient(cfg config.OllamaConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // stdlib default
	transport.ResponseHeaderTimeout = cfg.ChatTimeout()
	return &http.Client{Transport: transport}
}
