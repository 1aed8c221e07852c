// Package main is the menurag CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/menurag/internal/cli"
	"github.com/hyperjump/menurag/internal/config"
	"github.com/hyperjump/menurag/internal/ingest"
	"github.com/hyperjump/menurag/internal/models"
	"github.com/hyperjump/menurag/internal/server"
	"github.com/hyperjump/menurag/internal/vector"
	"github.com/hyperjump/menurag/internal/watcher"
	"github.com/hyperjump/menurag/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/menurag/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory wins if it exists, so running from the project directory uses the project's config.
// Returns the config and the path that was actually loaded.
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
	case "serve", "server":
		runServe()
	case "ingest":
		runIngest()
	case "search":
		runSearch()
	case "ask":
		runAsk()
	case "count":
		runCount()
	case "status":
		runStatus()
	case "runs":
		runRuns()
	case "version", "--version", "-v":
		fmt.Printf("menurag version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup parses the shared flags, loads the config, and builds the logger.
func setup(fs *flag.FlagSet, args []string) (*config.Config, *zap.Logger) {
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, resolved, err := loadConfig(*configPath)
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
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	return cfg, logger
}

func mustComponents(cfg *config.Config, logger *zap.Logger) *Components {
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return components
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfg, logger := setup(fs, os.Args[2:])
	defer logger.Sync()

	components := mustComponents(cfg, logger)
	defer components.Close()

	composer, err := newComposer(cfg, components.Pipeline, logger)
	if err != nil {
		logger.Fatal("Failed to initialize answer generator", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	n, err := components.LoadCatalog(ctx)
	if err != nil {
		logger.Fatal("Failed to build retrieval index", zap.Error(err))
	}
	logger.Info("catalog loaded", zap.Int("restaurants", n), zap.String("source", cfg.Catalog.Source))

	if cfg.Catalog.WatchOrDefault() {
		w := watcher.NewWatcher(cfg.Catalog.DataDir, []string{cfg.Catalog.Source},
			func(string) { components.Reload(ctx) },
			watcher.WithLogger(logger))
		if err := w.Start(ctx); err != nil {
			logger.Warn("catalog watcher disabled", zap.Error(err))
		} else {
			defer w.Stop()
		}
	}

	srv := server.NewServer(composer, components.Pipeline, components.Status, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	batchSize := fs.Int("batch-size", 0, "records per batch (default from config)")
	source := fs.String("source", "", "catalog source (default from config)")
	cfg, logger := setup(fs, os.Args[2:])
	defer logger.Sync()

	components := mustComponents(cfg, logger)
	defer components.Close()

	if *source == "" {
		*source = cfg.Catalog.Source
	}
	if *batchSize <= 0 {
		*batchSize = cfg.Catalog.BatchSize
	}
	opts := []ingest.Option{ingest.WithLogger(logger), ingest.WithBatchSize(*batchSize)}
	if components.Runs != nil {
		opts = append(opts, ingest.WithRunStore(components.Runs))
	}
	if vector.IndexType(cfg.Vector.IndexType) == vector.IndexTypeMemory {
		if cfg.Vector.IndexPath == "" {
			fmt.Println("Ingestion into the memory index needs vector.index_path to persist its result")
			os.Exit(1)
		}
		opts = append(opts, ingest.WithSnapshotPath(cfg.Vector.IndexPath))
	}
	in := ingest.NewIngester(components.Loader, components.Embedder, components.Index, opts...)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	run, err := in.Run(ctx, *source)
	if err != nil {
		fmt.Printf("Ingestion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Ingested %d restaurants in %d batches (%d failed embeddings) in %s [run %s]\n",
		run.Records, run.Batches, run.Failed, run.Duration().Round(time.Millisecond), run.ID)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries work the same
// with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves flags that appear after the query to the front so flag.Parse sees
// them; the flag package stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
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

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	limit := fs.Int("limit", 5, "number of results")
	items := fs.Bool("items", false, "search menu items instead of restaurants")
	output := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: menurag search [flags] <query>\n\n")
		fs.PrintDefaults()
	}
	cfg, logger := setup(fs, searchArgsReorder(os.Args[2:]))
	defer logger.Sync()

	query := buildSearchQuery(fs.Args())
	if query == "" {
		fs.Usage()
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	components := mustComponents(cfg, logger)
	defer components.Close()
	ctx := context.Background()
	if _, err := components.LoadCatalog(ctx); err != nil {
		logger.Fatal("Failed to build retrieval index", zap.Error(err))
	}

	if *items {
		err = cli.WriteMenuItems(os.Stdout, query, components.Pipeline.SearchMenuItems(ctx, query, *limit), format)
	} else {
		err = cli.WriteRestaurants(os.Stdout, query, components.Pipeline.SearchRestaurants(ctx, query, *limit), format)
	}
	if err != nil {
		fmt.Printf("Failed to write results: %v\n", err)
		os.Exit(1)
	}
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	serverURL := fs.String("server", "", "ask a running server at this URL instead of loading the catalog locally")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: menurag ask [flags] <question>\n\n")
		fs.PrintDefaults()
	}
	cfg, logger := setup(fs, searchArgsReorder(os.Args[2:]))
	defer logger.Sync()

	question := buildSearchQuery(fs.Args())
	if question == "" {
		fs.Usage()
		os.Exit(1)
	}

	if *serverURL != "" {
		resp, err := askViaHTTP(context.Background(), *serverURL, question)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		printAnswer(os.Stdout, resp)
		return
	}

	components := mustComponents(cfg, logger)
	defer components.Close()
	composer, err := newComposer(cfg, components.Pipeline, logger)
	if err != nil {
		logger.Fatal("Failed to initialize answer generator", zap.Error(err))
	}
	ctx := context.Background()
	if _, err := components.LoadCatalog(ctx); err != nil {
		logger.Fatal("Failed to build retrieval index", zap.Error(err))
	}
	fmt.Println(composer.Answer(ctx, question))
}

// askViaHTTP posts question to a running server's query endpoint.
func askViaHTTP(ctx context.Context, serverURL, question string) (*models.QueryResponse, error) {
	body, err := json.Marshal(models.QueryRequest{Question: question})
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(serverURL, "/") + "/api/restaurant-query"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out models.QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

func printAnswer(w io.Writer, resp *models.QueryResponse) {
	fmt.Fprintln(w, resp.Answer)
	if len(resp.TopRestaurants) > 0 {
		fmt.Fprintln(w, "\nTop restaurants:")
		for _, r := range resp.TopRestaurants {
			fmt.Fprintf(w, "  - %s\n", r)
		}
	}
	if len(resp.TopMenuItems) > 0 {
		fmt.Fprintln(w, "\nTop menu items:")
		for _, it := range resp.TopMenuItems {
			fmt.Fprintf(w, "  - %s\n", it)
		}
	}
}

func runCount() {
	fs := flag.NewFlagSet("count", flag.ExitOnError)
	source := fs.String("source", "", "catalog source (default from config)")
	cfg, logger := setup(fs, os.Args[2:])
	defer logger.Sync()

	if *source == "" {
		*source = cfg.Catalog.Source
	}
	loader := newLoader(cfg, logger)
	fmt.Println(loader.Count(*source))
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	output := fs.String("output", "text", "output format: text or json")
	cfg, logger := setup(fs, os.Args[2:])
	defer logger.Sync()

	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	components := mustComponents(cfg, logger)
	defer components.Close()
	st, err := components.Status(context.Background())
	if err != nil {
		fmt.Printf("Status failed: %v\n", err)
		os.Exit(1)
	}
	if format == cli.OutputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(st)
		return
	}
	fmt.Printf("Catalog:     %s (%d restaurants)\n", st.CatalogSource, st.CatalogSize)
	fmt.Printf("Index:       %s\n", st.IndexType)
	fmt.Printf("Disk usage:  %d bytes\n", st.DiskUsageBytes)
}

func runRuns() {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	limit := fs.Int("limit", 10, "number of runs to show")
	output := fs.String("output", "text", "output format: text or json")
	cfg, logger := setup(fs, os.Args[2:])
	defer logger.Sync()

	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	components := mustComponents(cfg, logger)
	defer components.Close()
	if components.Runs == nil {
		fmt.Println("No run store configured (set embedding.cache_path).")
		os.Exit(1)
	}
	runs, err := components.Runs.ListRuns(context.Background(), *limit)
	if err != nil {
		fmt.Printf("Failed to list runs: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteRuns(os.Stdout, runs, format)
}

func printUsage() {
	fmt.Println(`menurag - Restaurant and menu question answering over a local catalog

Usage:
  menurag serve [flags]              Start the HTTP server
  menurag ingest [flags]             Embed the catalog into the configured index
  menurag search [flags] <query>     Search restaurants (or menu items with --items)
  menurag ask [flags] <question>     Answer a question about the catalog
  menurag count [flags]              Print the number of catalog records
  menurag status [flags]             Show catalog, index, and disk usage
  menurag runs [flags]               List recent ingestion runs
  menurag version                    Show version
  menurag help                       Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/menurag/config.yaml, or ./config.yaml)
  --debug            Enable debug logging

Ingest Flags:
  --batch-size int   Records per batch (default from catalog.batch_size)
  --source string    Catalog source (default from catalog.source)

Search Flags:
  --limit int        Number of results (default: 5)
  --items            Search menu items instead of restaurants
  --output string    Output format: text or json (default: text)

Ask Flags:
  --server string    Ask a running server (e.g. http://localhost:8000) instead of loading locally

Examples:
  menurag serve
  menurag ingest --batch-size 50
  menurag search pho bo
  menurag search --items --limit 10 "bun cha"
  menurag ask "Quán nào bán phở ngon gần Hồ Gươm?"
  menurag runs --output json`)
}
