// Package main provides the entry point for the nwbconvertd orchestrator.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentic-neurodata/nwbconvertd/internal/bus"
	"github.com/agentic-neurodata/nwbconvertd/internal/config"
	"github.com/agentic-neurodata/nwbconvertd/internal/conversion"
	"github.com/agentic-neurodata/nwbconvertd/internal/decision"
	"github.com/agentic-neurodata/nwbconvertd/internal/dialogue"
	"github.com/agentic-neurodata/nwbconvertd/internal/evaluation"
	"github.com/agentic-neurodata/nwbconvertd/internal/llm"
	"github.com/agentic-neurodata/nwbconvertd/internal/logging"
	"github.com/agentic-neurodata/nwbconvertd/internal/metadata"
	"github.com/agentic-neurodata/nwbconvertd/internal/report"
	"github.com/agentic-neurodata/nwbconvertd/internal/server"
	"github.com/agentic-neurodata/nwbconvertd/internal/sessionstore"
	"github.com/agentic-neurodata/nwbconvertd/internal/streaming"
)

var (
	port    = flag.Int("port", 0, "HTTP listen port (overrides NWBCONVERTD_PORT)")
	version = flag.Bool("version", false, "Print version and exit")
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("nwbconvertd %s (%s)\n", Version, BuildTime)
		os.Exit(0)
	}

	appCfg := config.Load()
	if *port != 0 {
		appCfg.Port = *port
	}

	logging.Init(logging.Config{
		Level:  logging.ParseLevel(appCfg.LogLevel),
		Pretty: true,
	})

	if err := appCfg.EnsureDirs(); err != nil {
		logging.Fatal().Err(err).Msg("failed to create upload/output directories")
	}

	if appCfg.Degraded() {
		logging.Warn().Msg("ANTHROPIC_API_KEY not set: running in degraded mode, LLM-enhanced behavior falls back to rule-based extraction")
	}

	stream := streaming.New()
	store := sessionstore.New(stream)
	messageBus := bus.New()
	gate := decision.New()
	registry := metadata.Load()

	ctx := context.Background()
	completer, err := llm.NewClaudeCompleter(ctx, appCfg.AnthropicAPIKey, llm.DefaultModel)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize LLM completer")
	}
	extractor := llm.NewFieldExtractor(completer, registry)

	library := conversion.NewCLILibrary(appCfg.ConversionCommand, appCfg.OutputDir)
	validator := evaluation.NewCLIValidator(appCfg.ValidatorCommand)
	renderer := report.NewCLIRenderer(appCfg.PDFRendererCommand)

	conversion.NewWorker(messageBus, library, completer, stream, appCfg.OutputDir)
	evaluation.NewWorker(messageBus, validator, completer)

	dialogueWorker := dialogue.New(store, messageBus, stream, gate, registry, extractor, completer, appCfg.MaxRetryAttempts)

	serverCfg := server.DefaultConfig()
	serverCfg.Port = appCfg.Port
	server.Version = Version

	srv := server.New(serverCfg, appCfg, store, dialogueWorker, gate, stream, renderer)

	go func() {
		logging.Info().Int("port", appCfg.Port).Msg("nwbconvertd listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}

	stream.Close()
	logging.Close()
	logging.Info().Msg("stopped")
}
