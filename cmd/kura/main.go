// Package main is the kura CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kura/internal/cli"
	"github.com/hyperjump/kura/internal/config"
	"github.com/hyperjump/kura/internal/embedding"
	"github.com/hyperjump/kura/internal/extract"
	"github.com/hyperjump/kura/internal/generation"
	"github.com/hyperjump/kura/internal/indexer"
	"github.com/hyperjump/kura/internal/metrics"
	"github.com/hyperjump/kura/internal/models"
	"github.com/hyperjump/kura/internal/rag"
	"github.com/hyperjump/kura/internal/registry"
	"github.com/hyperjump/kura/internal/server"
	"github.com/hyperjump/kura/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kura/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory so that "kura server" from a project dir uses
// the project's config. If neither exists, built-in defaults plus environment are used.
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
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			cfg := config.Default()
			if err := cfg.Validate(); err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest", "upload":
		runIngest()
	case "search":
		runSearch()
	case "ask", "rag":
		runAsk()
	case "list":
		runList()
	case "info":
		runInfo()
	case "delete":
		runDelete()
	case "version", "--version", "-v":
		fmt.Printf("kura version %s\n", version)
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
	port := fs.Int("port", 0, "listen port (overrides config)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode, cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
		zap.Bool("mock", cfg.Mock),
		zap.String("vector_db_dir", cfg.Storage.VectorDBDir),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	info := server.Info{
		Version:         version,
		Mock:            cfg.Mock,
		EmbeddingModel:  components.Embedder.ModelID(),
		GenerationModel: components.Generator.ModelID(),
	}
	srv := server.NewServer(
		components.Registry,
		components.Ingestor,
		components.Engine,
		components.Metrics,
		&cfg.Server,
		info,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// clientFlags are shared by every command that talks to a server or a local store root.
type clientFlags struct {
	configPath *string
	serverURL  *string
	output     *string
	timeout    *time.Duration
}

func addClientFlags(fs *flag.FlagSet) clientFlags {
	return clientFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path (direct mode)"),
		serverURL:  fs.String("server", defaultServerURL, "server URL (empty = open the stores directly)"),
		output:     fs.String("output", "text", "output format: text or json"),
		timeout:    fs.Duration("timeout", 2*time.Minute, "request timeout"),
	}
}

// session is an opened backend plus the output format, ready for one command.
type session struct {
	backend backend
	format  cli.OutputFormat
	close   func()
}

// open returns a server-backed session, or a direct one when --server is empty.
func (f clientFlags) open() (*session, error) {
	format, err := cli.ParseOutputFormat(*f.output)
	if err != nil {
		return nil, err
	}
	if *f.serverURL != "" {
		return &session{backend: cli.NewClient(*f.serverURL, *f.timeout), format: format, close: func() {}}, nil
	}

	cfg, _, err := loadConfig(*f.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &session{
		backend: &localBackend{components: components},
		format:  format,
		close: func() {
			components.Close()
			_ = logger.Sync()
		},
	}, nil
}

// run executes fn with a context cancelled on SIGINT/SIGTERM and the command timeout.
func (f clientFlags) run(fn func(ctx context.Context, s *session) error) {
	s, err := f.open()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, *f.timeout)
	err = fn(ctx, s)
	cancel()
	stop()
	s.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	flags := addClientFlags(fs)
	store := fs.String("db", models.DefaultStoreName, "vector store name")
	chunkSize := fs.Int("chunk-size", 0, "chunk size in characters (default from config)")
	chunkOverlap := fs.Int("chunk-overlap", 0, "chunk overlap in characters (default from config)")
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	if fs.NArg() != 1 {
		fmt.Println("Usage: kura ingest [flags] <file>")
		os.Exit(1)
	}
	path := fs.Arg(0)
	flags.run(func(ctx context.Context, s *session) error {
		res, err := s.backend.Upload(ctx, *store, path, setInt(fs, "chunk-size", *chunkSize), setInt(fs, "chunk-overlap", *chunkOverlap))
		if err != nil {
			return err
		}
		return cli.WriteUploadResult(os.Stdout, res, s.format)
	})
}

// printQueryUsage prints usage for the search and ask subcommands.
func printQueryUsage(fs *flag.FlagSet, command string) {
	fmt.Fprintf(fs.Output(), "Usage: kura %s [flags] <query>\n\n", command)
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  kura %[1]s refund policy
  kura %[1]s --db contracts --top-k 5 "termination clause"
  kura %[1]s --server "" --output json what changed in 2024
`, command)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "kura search refunds --top-k 5" would
// otherwise leave --top-k unparsed.
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

// parseQuery parses the flags of search or ask and returns the query to run.
func parseQuery(command string) (clientFlags, models.Query) {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	flags := addClientFlags(fs)
	store := fs.String("db", models.DefaultStoreName, "vector store name")
	topK := fs.Int("top-k", 0, "number of chunks to retrieve (default: server's default_top_k)")
	fs.Usage = func() { printQueryUsage(fs, command) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	text := buildSearchQuery(fs.Args())
	if text == "" {
		printQueryUsage(fs, command)
		os.Exit(1)
	}
	return flags, models.Query{Text: text, TopK: setInt(fs, "top-k", *topK), StoreName: *store}
}

// setInt returns &v when the named flag was given on the command line and nil otherwise,
// so an explicit zero is passed on rather than mistaken for "use the default".
func setInt(fs *flag.FlagSet, name string, v int) *int {
	given := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			given = true
		}
	})
	if !given {
		return nil
	}
	return &v
}

func runSearch() {
	flags, q := parseQuery("search")
	flags.run(func(ctx context.Context, s *session) error {
		resp, err := s.backend.Search(ctx, q)
		if err != nil {
			return err
		}
		return cli.WriteSearchResults(os.Stdout, resp, s.format)
	})
}

func runAsk() {
	flags, q := parseQuery("ask")
	flags.run(func(ctx context.Context, s *session) error {
		ans, err := s.backend.Ask(ctx, q)
		if err != nil {
			return err
		}
		return cli.WriteAnswer(os.Stdout, ans, s.format)
	})
}

func runList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	flags := addClientFlags(fs)
	_ = fs.Parse(os.Args[2:])
	flags.run(func(ctx context.Context, s *session) error {
		list, err := s.backend.List(ctx)
		if err != nil {
			return err
		}
		return cli.WriteStores(os.Stdout, list, s.format)
	})
}

// parseStoreCommand parses a command whose single positional argument is a store name.
func parseStoreCommand(command string) (clientFlags, string) {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	flags := addClientFlags(fs)
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))
	if fs.NArg() != 1 {
		fmt.Printf("Usage: kura %s [flags] <store>\n", command)
		os.Exit(1)
	}
	return flags, fs.Arg(0)
}

func runInfo() {
	flags, name := parseStoreCommand("info")
	flags.run(func(ctx context.Context, s *session) error {
		detail, err := s.backend.Info(ctx, name)
		if err != nil {
			return err
		}
		return cli.WriteStoreDetail(os.Stdout, detail, s.format)
	})
}

func runDelete() {
	flags, name := parseStoreCommand("delete")
	flags.run(func(ctx context.Context, s *session) error {
		res, err := s.backend.Delete(ctx, name)
		if err != nil {
			return err
		}
		return cli.WriteDeleteResult(os.Stdout, res, s.format)
	})
}

// Components holds initialized services.
type Components struct {
	Registry  *registry.Registry
	Embedder  embedding.Embedder
	Generator generation.Generator
	Ingestor  *indexer.Ingestor
	Engine    *rag.Engine
	Metrics   *metrics.Metrics
}

func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	var m *metrics.Metrics
	if cfg.Metrics.EnabledOrDefault() {
		m = metrics.New()
	}

	embedder, err := embedding.New(cfg.Embedding, embedding.WithLogger(logger), embedding.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	generator, err := generation.New(cfg.Generation, generation.WithLogger(logger), generation.WithMetrics(m))
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}
	logger.Info("providers initialized",
		zap.String("embedding_model", embedder.ModelID()),
		zap.Int("dimensions", embedder.Dimensions()),
		zap.String("generation_model", generator.ModelID()),
	)

	if err := os.MkdirAll(cfg.Storage.VectorDBDir, 0755); err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to create vector db dir: %w", err)
	}
	reg := registry.New(cfg.Storage.VectorDBDir,
		registry.WithLogger(logger),
		registry.WithMetrics(m),
		registry.WithCacheSize(cfg.Retrieval.IndexCacheSize),
	)
	if err := reg.Sweep(); err != nil {
		logger.Warn("leftover work directories not removed", zap.Error(err))
	}

	ingestor := indexer.NewIngestor(reg, embedder, extract.NewExtractor(), cfg.Ingest,
		indexer.WithLogger(logger), indexer.WithMetrics(m))
	engine := rag.NewEngine(reg, embedder, generator, cfg.Retrieval,
		rag.WithLogger(logger), rag.WithMetrics(m))

	return &Components{
		Registry:  reg,
		Embedder:  embedder,
		Generator: generator,
		Ingestor:  ingestor,
		Engine:    engine,
		Metrics:   m,
	}, nil
}

func printUsage() {
	fmt.Println(`kura - Named vector stores and retrieval-augmented answers over your documents

Usage:
  kura server [flags]            Start the HTTP server
  kura ingest [flags] <file>     Extract, chunk and embed a document into a store
  kura search [flags] <query>    Similarity search in a store
  kura ask [flags] <question>    Answer a question from a store's documents
  kura list [flags]              List vector stores
  kura info [flags] <store>      Describe a vector store
  kura delete [flags] <store>    Delete a vector store
  kura version                   Show version
  kura help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kura/config.yaml, or ./config.yaml)
  --debug            Enable debug logging
  --port int         Listen port (overrides config)

Client Flags (ingest, search, ask, list, info, delete):
  --server string    Server URL (default: http://localhost:8080). Use --server "" to open the stores directly.
  --config string    Config file path (direct mode)
  --output string    Output format: text or json (default: text)
  --timeout duration Request timeout (default: 2m)

Ingest Flags:
  --db string         Store name (default: default). Ingesting replaces the store.
  --chunk-size int    Chunk size in characters (default from config, 1000)
  --chunk-overlap int Chunk overlap in characters (default from config, 200)

Search / Ask Flags:
  --db string        Store name (default: default)
  --top-k int        Number of chunks to retrieve (default from config, 3; max 10)

Environment:
  OPENAI_API_KEY          Enables the OpenAI providers; without it kura runs with mock providers
  OPENAI_BASE_URL         OpenAI-compatible endpoint
  OPENAI_MODEL            Chat model (default: gpt-4o)
  OPENAI_EMBEDDING_MODEL  Embedding model (default: text-embedding-3-small)
  KURA_MOCK               Force mock providers
  KURA_VECTOR_DB_DIR      Root directory of vector stores

Examples:
  kura server
  kura ingest --db handbook employee-handbook.pdf
  kura search --db handbook vacation days
  kura ask --db handbook "How many vacation days do I get?"
  kura ask --output json --top-k 5 what is the refund policy
  kura list
  kura info handbook
  kura delete handbook`)
}
