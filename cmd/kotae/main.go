// Package main is the Kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/answer"
	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/processor"
	"github.com/hyperjump/kotae/internal/retriever"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/store"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, it first
// looks for config.yaml in the current directory (for development); if
// that exists it is used. A missing default config falls back to the
// built-in defaults plus environment overrides.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "upload":
		runUpload()
	case "ask":
		runAsk()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`Usage: kotae <command> [flags]

Commands:
  server    Run the HTTP API server
  upload    Upload a PDF to a running server
  ask       Ask a question about an uploaded document
  version   Print version
  help      Show this help

Run "kotae <command> -h" for command flags.
`)
}

// components holds everything the server command wires together.
type components struct {
	processor *processor.Processor
	meta      store.Store
	index     vector.Index
	memIndex  *vector.MemoryIndex
	embedder  *embedding.Generator
}

func (c *components) Close() {
	if c.embedder != nil {
		_ = c.embedder.Close()
	}
	if c.index != nil {
		_ = c.index.Close()
	}
	if c.meta != nil {
		_ = c.meta.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	provider, err := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  cfg.Embedding.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}

	cache, err := embedding.OpenCache(cfg.Storage.EmbeddingCachePath)
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}

	embedder := embedding.NewGenerator(provider, cache, cfg.Embedding.Model,
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
		embedding.WithRetryPolicy(embedding.DefaultRetryPolicy(cfg.Embedding.MaxRetries)),
		embedding.WithLogger(logger),
	)

	indexCfg := vector.IndexConfig{
		Type:       cfg.Vector.Type,
		Dimensions: embedder.Dimensions(),
		Pinecone: vector.PineconeConfig{
			Host:   cfg.Vector.PineconeHost,
			APIKey: cfg.Vector.PineconeAPIKey,
		},
	}
	if cfg.Vector.Type == "memory" || cfg.Vector.Type == "" {
		indexCfg.PersistPath = cfg.Storage.VectorIndexPath
	}
	index, err := vector.NewIndex(indexCfg)
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("vector index: %w", err)
	}

	vectors := vector.NewStore(index, embedder,
		vector.WithBatchSize(cfg.Embedding.BatchSize),
		vector.WithLogger(logger),
	)

	meta, err := store.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		_ = embedder.Close()
		_ = index.Close()
		return nil, fmt.Errorf("metadata store: %w", err)
	}

	ch, err := chunker.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	if err != nil {
		_ = embedder.Close()
		_ = index.Close()
		_ = meta.Close()
		return nil, fmt.Errorf("chunker: %w", err)
	}

	ret := retriever.New(vectors,
		retriever.WithThreshold(cfg.Retrieval.ScoreThreshold),
		retriever.WithLogger(logger),
	)

	procOpts := []processor.Option{processor.WithLogger(logger)}
	if cfg.Answer.APIKey != "" {
		llm, llmErr := answer.NewOpenAIChat(answer.OpenAIChatConfig{
			BaseURL: cfg.Answer.BaseURL,
			APIKey:  cfg.Answer.APIKey,
			Model:   cfg.Answer.Model,
		})
		if llmErr != nil {
			logger.Warn("answer synthesis disabled", zap.Error(llmErr))
		} else {
			procOpts = append(procOpts, processor.WithAnswerGenerator(
				answer.NewGenerator(llm, answer.WithLogger(logger))))
		}
	} else {
		logger.Info("answer synthesis disabled, queries return retrieval results only")
	}

	proc := processor.New(ch, extract.PagesFromPDF, meta, vectors, ret, procOpts...)

	c := &components{
		processor: proc,
		meta:      meta,
		index:     index,
		embedder:  embedder,
	}
	if mem, ok := index.(*vector.MemoryIndex); ok {
		c.memIndex = mem
	}
	return c, nil
}

// dropIngestor adapts the processor to the watcher's ingestion contract.
type dropIngestor struct {
	processor *processor.Processor
}

func (d *dropIngestor) ProcessFile(ctx context.Context, path, sessionID string) (string, error) {
	if err := extract.ValidateFilename(path); err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	result, err := d.processor.ProcessDocument(ctx, filepath.Base(path), content, sessionID)
	if err != nil {
		return "", err
	}
	return result.DocumentID, nil
}

func (d *dropIngestor) DeleteDocument(ctx context.Context, documentID string) error {
	return d.processor.DeleteDocument(ctx, documentID)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	comps, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer comps.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watchSvc *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		sessionID := cfg.Watch.SessionID
		if sessionID == "" {
			sessionID = "drop"
		}
		watchOpts := []watcher.Option{watcher.WithLogger(logger)}
		watchSvc = watcher.New(cfg.Watch.Directories, sessionID,
			&dropIngestor{processor: comps.processor}, watchOpts...)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		go watchSvc.SyncExistingFiles(watchCtx)
	}

	srv := server.NewServer(comps.processor, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	if comps.memIndex != nil && cfg.Storage.VectorIndexPath != "" {
		if err := comps.memIndex.Save(cfg.Storage.VectorIndexPath); err != nil {
			logger.Warn("vector index save failed",
				zap.String("path", cfg.Storage.VectorIndexPath),
				zap.Error(err))
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	sessionID := fs.String("session", "", "session id (empty = server mints a fresh one)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: kotae upload [flags] <file.pdf>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", path, err)
		os.Exit(1)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err == nil {
		_, err = fw.Write(content)
	}
	if err == nil {
		err = mw.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build upload: %v\n", err)
		os.Exit(1)
	}

	endpoint := *serverURL + "/upload"
	if *sessionID != "" {
		endpoint += "?session_id=" + url.QueryEscape(*sessionID)
	}
	resp, err := http.Post(endpoint, mw.FormDataContentType(), &body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	printJSONResponse(resp)
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	documentID := fs.String("document", "", "document id to query (required)")
	topK := fs.Int("top-k", 0, "number of results (0 = server default)")
	_ = fs.Parse(os.Args[2:])

	if *documentID == "" || fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: kotae ask -document <id> [flags] <question>")
		os.Exit(1)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"query":       fs.Arg(0),
		"document_id": *documentID,
		"top_k":       *topK,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build request: %v\n", err)
		os.Exit(1)
	}

	resp, err := http.Post(*serverURL+"/query", "application/json", bytes.NewReader(payload))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	printJSONResponse(resp)
}

func printJSONResponse(resp *http.Response) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read response: %v\n", err)
		os.Exit(1)
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(data))
	}
	if resp.StatusCode >= 300 {
		os.Exit(1)
	}
}
