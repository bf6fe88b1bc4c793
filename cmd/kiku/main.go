// Package main is the kiku CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/cli"
	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/server"
	"github.com/hyperjump/kiku/internal/storage"
	"github.com/hyperjump/kiku/internal/watcher"
	"github.com/hyperjump/kiku/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kiku/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// A missing default config falls back to built-in defaults. Returns the config and
// the path that was actually loaded (empty when defaults are used).
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
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads .env, the config file and environment overrides, validates the
// result and creates the logger.
func setup(configPath string, debugFlag bool) (*config.Config, string, *zap.Logger, error) {
	_ = godotenv.Load()
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, "", nil, err
	}
	if err := config.ApplyEnv(cfg, os.Getenv); err != nil {
		return nil, "", nil, err
	}
	if debugFlag {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, resolved, logger, nil
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
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
	case "ingest":
		runIngest()
	case "ask":
		runAsk()
	case "status":
		runStatus()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("kiku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger, err := setup(*configPath, *debug)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("generation_provider", cfg.Generation.Provider),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watchSvc := watcher.NewWatcher(watcher.Options{
		Roots:      cfg.Watch.Directories,
		Extensions: cfg.Watch.Extensions,
		Recursive:  cfg.Watch.RecursiveOrDefault(),
	}, components.Indexer, watcher.WithLogger(logger.Named("watcher")))
	if err := watchSvc.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	go watchSvc.SyncExistingFiles()

	srv := server.NewServer(
		components.Pipeline,
		components.Indexer,
		components.Conversations,
		components.Vectors,
		cfg,
		logger.Named("server"),
		server.WithWatch(watchSvc, resolvedConfigPath),
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	watchSvc.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL; empty ingests directly into the configured backends")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kiku ingest [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}

	if *serverURL != "" {
		res, err := ingestViaHTTP(*serverURL, path)
		if err != nil {
			fail("Ingest failed: %v", err)
		}
		if err := cli.WriteIngestResult(os.Stdout, res, format); err != nil {
			fail("Output failed: %v", err)
		}
		return
	}

	cfg, _, logger, err := setup(*configPath, false)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fail("Failed to stat path: %v", err)
	}
	if info.IsDir() {
		n, err := components.Indexer.IngestDirectory(ctx, path, cfg.Watch.Extensions)
		if err != nil {
			fail("Ingesting directory failed: %v", err)
		}
		fmt.Printf("Ingested %d file(s) from %s\n", n, path)
		return
	}
	// Single file: no extension filter
	res, err := components.Indexer.IngestFile(ctx, path, nil)
	if err != nil {
		fail("Ingest failed: %v", err)
	}
	if err := cli.WriteIngestResult(os.Stdout, res, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func ingestViaHTTP(serverURL, path string) (*models.IngestResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/documents", mw.FormDataContentType(), &body)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	var res models.IngestResult
	if err := decodeResponse(resp, http.StatusCreated, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// buildQuestion joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the question
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL; empty answers directly from the configured backends")
	owner := fs.String("owner", "", "owner id; when set the exchange is saved to a conversation")
	conversationID := fs.String("conversation", "", "conversation id to continue")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kiku ask [flags] <question>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(os.Args[2:]))

	question := buildQuestion(fs.Args())
	if question == "" {
		fs.Usage()
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}
	req := models.AnswerRequest{Question: question, ConversationID: *conversationID, OwnerID: *owner}

	var resp *models.AnswerResponse
	if *serverURL != "" {
		resp, err = askViaHTTP(*serverURL, req)
	} else {
		resp, err = askDirect(*configPath, req)
	}
	if err != nil {
		fail("Ask failed: %v", err)
	}
	if err := cli.WriteAnswer(os.Stdout, resp, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func askDirect(configPath string, req models.AnswerRequest) (*models.AnswerResponse, error) {
	cfg, _, logger, err := setup(configPath, false)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Retrieval.Timeout)
	defer cancel()
	return components.Pipeline.Answer(ctx, req)
}

func askViaHTTP(serverURL string, req models.AnswerRequest) (*models.AnswerResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequest(http.MethodPost, serverURL+"/api/v1/ask", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.OwnerID != "" {
		httpReq.Header.Set(server.OwnerHeader, req.OwnerID)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	var out models.AnswerResponse
	if err := decodeResponse(resp, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func decodeResponse(resp *http.Response, want int, v interface{}) error {
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = inspect the configured backends directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fail("%v", err)
	}
	var status *cli.Status
	if *serverURL != "" {
		status, err = statusViaHTTP(*serverURL)
	} else {
		status, err = statusDirect(*configPath)
	}
	if err != nil {
		fail("Status failed: %v", err)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func statusDirect(configPath string) (*cli.Status, error) {
	cfg, _, logger, err := setup(configPath, false)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()

	ctx := context.Background()
	status := &cli.Status{
		Backends:  components.Vectors.Descriptors(ctx),
		Populated: components.Vectors.Populated(ctx),
		Config:    cfg.Summary(),
	}
	if usage, err := storage.MeasureUsage(storage.ConfiguredLocations(cfg)...); err == nil {
		status.Disk = &usage
	}
	return status, nil
}

func statusViaHTTP(serverURL string) (*cli.Status, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	var s cli.Status
	if err := decodeResponse(resp, http.StatusOK, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: kiku watch <add|remove|list> [path]")
		fmt.Println("  kiku watch add <path>     Add directory to watch")
		fmt.Println("  kiku watch remove <path>  Remove directory from watch")
		fmt.Println("  kiku watch list           List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[3:])
	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fail("Usage: kiku watch add <path>")
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body, _ := json.Marshal(map[string]interface{}{"path": path, "sync": true})
		resp, err := http.Post(*serverURL+"/api/v1/watch/directories", "application/json", bytes.NewReader(body))
		if err != nil {
			fail("Request failed: %v", err)
		}
		defer resp.Body.Close()
		var out map[string]string
		if err := decodeResponse(resp, http.StatusCreated, &out); err != nil {
			fail("Add failed: %v", err)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fail("Usage: kiku watch remove <path>")
		}
		path, _ := filepath.Abs(fs.Arg(0))
		req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/watch/directories?path="+url.QueryEscape(path), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fail("Request failed: %v", err)
		}
		defer resp.Body.Close()
		var out map[string]string
		if err := decodeResponse(resp, http.StatusOK, &out); err != nil {
			fail("Remove failed: %v", err)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		resp, err := http.Get(*serverURL + "/api/v1/watch/directories")
		if err != nil {
			fail("Request failed: %v", err)
		}
		defer resp.Body.Close()
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := decodeResponse(resp, http.StatusOK, &out); err != nil {
			fail("List failed: %v", err)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fail("Unknown watch subcommand: %s", sub)
	}
}

func printUsage() {
	fmt.Println(`kiku - ask questions about your documents

Usage:
  kiku server [flags]                 Start the HTTP server
  kiku ingest [flags] <file-or-dir>   Ingest a document or a directory
  kiku ask [flags] <question>         Ask a question
  kiku status [flags]                 Show backend and storage status
  kiku watch <add|remove|list>        Manage watched directories
  kiku version                        Show version
  kiku help                           Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kiku/config.yaml)
  --debug            Enable debug logging

Ingest Flags:
  --config string    Config file path
  --server string    Upload to a running server instead of ingesting directly
  --output string    Output format: text or json (default: text)

Ask Flags:
  --server string        Server URL (default: http://localhost:8080). Use --server "" to answer directly.
  --owner string         Owner id; saves the exchange to a conversation
  --conversation string  Conversation id to continue
  --output string        Output format: text or json (default: text)

Status Flags:
  --config string    Config file path (direct mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct mode.
  --output string    Output format: text or json (default: text)

Environment:
  KIKU_QDRANT_CLOUD_URL, KIKU_QDRANT_CLOUD_API_KEY, KIKU_QDRANT_URL, KIKU_OLLAMA_URL, KIKU_DEBUG
  (a .env file in the working directory is loaded first)

Examples:
  kiku server
  kiku ingest ~/notes
  kiku ask "how do wildebeest cross the river?"
  kiku ask --owner alice --output json "what changed in the last release?"
  kiku status --output json
  kiku watch add /path/to/docs`)
}
