// Playbookd is an MCP server that guides project definition through a
// phased workflow and accumulates reusable lessons across projects.
//
// It speaks MCP over stdio. Configuration comes from an optional YAML
// file and PLAYBOOKD_* environment variables.
//
// Usage:
//
//	# Start the server with defaults
//	playbookd serve
//
//	# Use a config file
//	playbookd serve --config ~/.config/playbookd/config.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/playbookd/internal/config"
	"github.com/fyrsmithlabs/playbookd/internal/embeddings"
	"github.com/fyrsmithlabs/playbookd/internal/lessons"
	"github.com/fyrsmithlabs/playbookd/internal/logging"
	"github.com/fyrsmithlabs/playbookd/internal/mcp"
	"github.com/fyrsmithlabs/playbookd/internal/metalearn"
	"github.com/fyrsmithlabs/playbookd/internal/retrieval"
	"github.com/fyrsmithlabs/playbookd/internal/session"
	"github.com/fyrsmithlabs/playbookd/internal/storage"
	"github.com/fyrsmithlabs/playbookd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "playbookd",
	Short: "Project-definition workflow daemon with cross-project learning",
	Long: `playbookd drives project definition through discovery, planning,
roadmap, implementation, and deployment phases, retrieving lessons from
past projects at each step and learning new ones when projects complete.`,
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show detailed version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("playbookd\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return run(ctx)
}

// run initializes every service and blocks until the context is cancelled
// or the transport closes.
func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // stderr sync failure is harmless at exit

	storagePath, err := config.ExpandPath(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("resolve storage path: %w", err)
	}
	db, err := storage.Open(storagePath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	sessionStore := storage.NewSessionStore(db)
	lessonRepo := storage.NewLessonStore(db)
	ledger := storage.NewOutcomeLedger(db)

	// The semantic backend is optional: without it retrieval runs on the
	// lexical signals alone.
	var semantic *retrieval.SemanticIndex
	if cfg.Vectorstore.Enabled {
		cacheDir, perr := config.ExpandPath(cfg.Vectorstore.CacheDir)
		if perr != nil {
			return fmt.Errorf("resolve cache directory: %w", perr)
		}
		vectorPath, perr := config.ExpandPath(cfg.Vectorstore.Path)
		if perr != nil {
			return fmt.Errorf("resolve vector store path: %w", perr)
		}
		provider, perr := embeddings.NewFastEmbedProvider(embeddings.FastEmbedConfig{
			Model:    cfg.Vectorstore.Model,
			CacheDir: cacheDir,
		})
		if perr != nil {
			logger.Warn("embeddings unavailable, semantic retrieval disabled", zap.Error(perr))
		} else {
			store, serr := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
				Path: vectorPath,
			}, provider)
			if serr != nil {
				logger.Warn("vector store unavailable, semantic retrieval disabled", zap.Error(serr))
				provider.Close() //nolint:errcheck // already degrading
			} else {
				semantic = retrieval.NewSemanticIndex(store)
				defer store.Close() //nolint:errcheck // best effort on shutdown
			}
		}
	}

	engine, err := retrieval.NewEngine(lessonRepo, semantic, cfg.Retrieval.Limit, logger)
	if err != nil {
		return fmt.Errorf("create retrieval engine: %w", err)
	}

	machine, err := session.NewMachine(sessionStore, session.Config{
		RetrievalLimit:   cfg.Retrieval.Limit,
		RetrievalTimeout: cfg.Retrieval.Timeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("create session machine: %w", err)
	}
	machine.SetKnowledgeSource(retrieval.NewSessionAdapter(engine))

	var semanticWriter lessons.SemanticIndex
	if semantic != nil {
		semanticWriter = semantic
	}

	extractor, err := metalearn.NewExtractor(lessonRepo, ledger, semanticWriter, logger)
	if err != nil {
		return fmt.Errorf("create extractor: %w", err)
	}
	machine.SetCompletionSink(extractor)

	votes, err := lessons.NewVoteManager(lessonRepo, semanticWriter, cfg.Retrieval.VoteDelta, logger)
	if err != nil {
		return fmt.Errorf("create vote manager: %w", err)
	}

	recommender, err := metalearn.NewRecommender(lessonRepo)
	if err != nil {
		return fmt.Errorf("create recommender: %w", err)
	}

	server, err := mcp.NewServer(&mcp.Config{
		Name:    "playbookd",
		Version: version,
		Logger:  logger,
	}, machine, lessonRepo, votes, engine, recommender)
	if err != nil {
		return fmt.Errorf("create MCP server: %w", err)
	}
	defer server.Close() //nolint:errcheck // drains background work

	logger.Info("playbookd starting",
		zap.String("version", version),
		zap.String("storage", cfg.Storage.Path),
		zap.Bool("semantic", semantic != nil))

	return server.Run(ctx)
}
