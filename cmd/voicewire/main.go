// Command voicewire is the voice streaming gateway server. It relays audio
// between event-socket clients and the speech-to-text, conversation, and
// speech-synthesis providers, pacing synthesized audio back out as 20 ms PCM
// frames.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/voicewire/voicewire/internal/archive"
	"github.com/voicewire/voicewire/internal/config"
	"github.com/voicewire/voicewire/internal/conversation"
	"github.com/voicewire/voicewire/internal/gateway"
	"github.com/voicewire/voicewire/internal/health"
	"github.com/voicewire/voicewire/internal/observe"
	"github.com/voicewire/voicewire/internal/scheduler"
	"github.com/voicewire/voicewire/internal/session"
	"github.com/voicewire/voicewire/pkg/provider/llm"
	"github.com/voicewire/voicewire/pkg/provider/llm/anyllm"
	oaillm "github.com/voicewire/voicewire/pkg/provider/llm/openai"
	"github.com/voicewire/voicewire/pkg/provider/stt/whisperapi"
	"github.com/voicewire/voicewire/pkg/provider/tts/cartesia"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicewire: %v\n", err)
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voicewire starting",
		"version", version,
		"listen_addr", cfg.Addr(),
		"log_level", cfg.Server.LogLevel,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voicewire",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	transcriber, err := whisperapi.New(cfg.STT.APIKey, whisperapi.WithModel(cfg.STT.Model))
	if err != nil {
		slog.Error("failed to create transcriber", "err", err)
		return 1
	}

	model, err := buildModel(cfg)
	if err != nil {
		slog.Error("failed to create reply model", "err", err)
		return 1
	}

	synth, err := cartesia.New(cfg.TTS.APIKey, cartesia.WithModel(cfg.TTS.Model))
	if err != nil {
		slog.Error("failed to create synthesizer", "err", err)
		return 1
	}

	// ── Optional turn archive ─────────────────────────────────────────────────
	var (
		arch     *archive.Archive
		checkers []health.Checker
	)
	if dsn := cfg.Archive.PostgresDSN; dsn != "" {
		arch, err = archive.New(ctx, dsn, logger)
		if err != nil {
			slog.Error("failed to open turn archive", "err", err)
			return 1
		}
		defer arch.Close()
		checkers = append(checkers, health.Checker{Name: "archive", Check: arch.Ping})
		slog.Info("turn archive enabled")
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	sched := scheduler.New(synth,
		scheduler.WithFirstChunkTimeout(cfg.TTSFirstChunkTimeout()),
		scheduler.WithLogger(logger),
	)

	convOpts := []conversation.Option{
		conversation.WithMaxTurns(cfg.Memory.MaxTurns),
		conversation.WithTemperature(cfg.LLM.Temperature),
		conversation.WithMaxTokens(cfg.LLM.MaxTokens),
		conversation.WithTimeout(cfg.LLMTimeout()),
		conversation.WithLogger(logger),
	}
	if cfg.Memory.SystemPrompt != "" {
		convOpts = append(convOpts, conversation.WithSystemPrompt(cfg.Memory.SystemPrompt))
	}

	machineOpts := []gateway.MachineOption{
		gateway.WithSTTTimeout(cfg.STTTimeout()),
		gateway.WithVoiceID(cfg.TTS.VoiceID),
		gateway.WithConversationOptions(convOpts...),
		gateway.WithMachineLogger(logger),
	}
	if arch != nil {
		machineOpts = append(machineOpts, gateway.WithArchive(arch))
	}
	machine := gateway.NewMachine(transcriber, model, sched, machineOpts...)

	store := session.NewStore()
	srv := gateway.NewServer(gateway.ServerConfig{
		Addr:           cfg.Addr(),
		IdleSessionMax: time.Duration(cfg.Server.IdleSessionMinutes) * time.Minute,
		Health:         health.New(store.Len, checkers...),
		Logger:         logger,
	}, store, machine)

	slog.Info("server ready — press Ctrl+C to shut down")
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildModel selects the reply backend: the native SDK for OpenAI, the
// multi-provider backend for everything else.
func buildModel(cfg *config.Config) (llm.Provider, error) {
	if cfg.LLM.Provider == "openai" {
		return oaillm.New(cfg.LLM.APIKey, cfg.LLM.Model)
	}
	var opts []anyllmlib.Option
	if cfg.LLM.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.LLM.APIKey))
	}
	return anyllm.New(cfg.LLM.Provider, cfg.LLM.Model, opts...)
}

// newLogger builds the process logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
