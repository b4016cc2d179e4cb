// Command server wires the studyrag components and runs the HTTP API.
// All singletons (model clients, stores, prompt parameters) are built once
// here and injected; no package holds implicit global state.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studyrag/internal/adapters/embedding"
	"studyrag/internal/adapters/filewatcher"
	"studyrag/internal/adapters/llm"
	"studyrag/internal/adapters/parser"
	"studyrag/internal/adapters/sessionstore"
	"studyrag/internal/adapters/vectordb"
	"studyrag/internal/config"
	"studyrag/internal/domain/ports"
	"studyrag/internal/domain/usecases"
	httpserver "studyrag/internal/infrastructure/http"
	"studyrag/internal/log"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := log.New(log.Config{
		Level: logLevel(cfg.Logging.Level),
		JSON:  cfg.Logging.JSON,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	timeout := time.Duration(cfg.Ollama.TimeoutSecs) * time.Second
	embedder := embedding.NewOllamaAdapter(cfg.Ollama.BaseURL, cfg.Ollama.EmbedModel, timeout, logger)
	model := llm.NewOllamaAdapter(cfg.Ollama.BaseURL, cfg.Ollama.LLMModel, timeout, logger)
	docParser := parser.NewMultiParser(parser.NewPDFParser(), parser.NewTextParser())

	indexes, err := vectordb.NewSQLiteStore(cfg.Storage.DataDir, logger)
	if err != nil {
		return fmt.Errorf("opening vector store: %w", err)
	}

	sessions, err := sessionstore.NewSQLiteStore(cfg.Storage.SessionDB)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer sessions.Close()

	splitter := usecases.NewSplitter(cfg.Chunking.Size, cfg.Chunking.Overlap)
	ingest := usecases.NewIngestUseCase(docParser, embedder, indexes, splitter, logger)
	chat := usecases.NewChatUseCase(sessions, indexes, embedder, model,
		cfg.Retrieval.TopK, cfg.Retrieval.ScoreThreshold, logger)
	generate := usecases.NewGenerateUseCase(indexes, model, cfg.Generation.MaxSummaryInputChars, logger)

	if cfg.Storage.Watch {
		if err := startWatcher(ctx, cfg.Storage.DocumentsDir, ingest, logger); err != nil {
			// The drop folder is a convenience; the API still works without it.
			logger.Warn("document watcher disabled", "error", err)
		}
	}

	server := httpserver.NewServer(ingest, chat, generate,
		cfg.Storage.DocumentsDir, cfg.Server.Addr, logger)
	return server.Start(ctx)
}

// startWatcher ingests documents dropped into dir while the server runs.
func startWatcher(ctx context.Context, dir string, ingest *usecases.IngestUseCase, logger log.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating documents dir: %w", err)
	}

	watcher, err := filewatcher.NewFSNotifyWatcher(nil, logger)
	if err != nil {
		return err
	}

	events, err := watcher.Watch(ctx, dir)
	if err != nil {
		watcher.Stop()
		return err
	}

	go func() {
		defer watcher.Stop()
		for event := range events {
			if event.Operation == ports.FileDeleted {
				continue
			}
			// Editors and copies fire several writes per file; a short
			// settle delay avoids ingesting a half-written document.
			time.Sleep(500 * time.Millisecond)
			assetID, count, err := ingest.IngestFile(ctx, event.Path, "")
			if err != nil {
				logger.Error("auto-ingest failed", "path", event.Path, "error", err)
				continue
			}
			logger.Info("auto-ingested document", "path", event.Path,
				"asset_id", assetID, "chunks", count)
		}
	}()
	return nil
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
