package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/pysugar/agent-nexus/internal/config"
	"github.com/pysugar/agent-nexus/internal/db"
	"github.com/pysugar/agent-nexus/internal/functions"
	"github.com/pysugar/agent-nexus/internal/functions/catalog"
	"github.com/pysugar/agent-nexus/internal/llm"
	"github.com/pysugar/agent-nexus/internal/logging"
	"github.com/pysugar/agent-nexus/internal/orchestrator"
	"github.com/pysugar/agent-nexus/internal/scheduler"
	"github.com/pysugar/agent-nexus/internal/storage"
	"github.com/pysugar/agent-nexus/internal/triggerlog"
	"github.com/pysugar/agent-nexus/internal/upstream/market"
	"github.com/pysugar/agent-nexus/internal/upstream/solana"
	"github.com/pysugar/agent-nexus/internal/upstream/telegram"
	"github.com/pysugar/agent-nexus/internal/upstream/twitter"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:           "nexus",
	Short:         "Autonomous social agent scheduler",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("NEXUS_CONFIG"), "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before config")
}

// app holds the wired service. triggers and tweets are nil unless the
// scheduler stack was requested.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	db       *gorm.DB
	logs     *triggerlog.Store
	triggers *scheduler.TriggerScheduler
	tweets   *scheduler.TweetScheduler
}

func openApp(withScheduler bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	database, err := db.InitDB(cfg.Database.Path, cfg.Database.Verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, db: database}

	defs, err := catalog.Load(cfg.Functions.CatalogFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	if _, err := db.EnsureFunctions(database, defs, logger); err != nil {
		a.Close()
		return nil, err
	}
	a.logs = triggerlog.NewStore(database, logger, cfg.Logs.DedupeWindow)

	if withScheduler {
		if err := a.wireScheduler(); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) wireScheduler() error {
	cfg := a.cfg
	if err := cfg.ValidateForScheduler(); err != nil {
		return err
	}

	stored, err := db.LoadFunctions(a.db)
	if err != nil {
		return err
	}
	registry := functions.NewRegistry(functions.Deps{
		Messenger: telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.DefaultChatID, cfg.Telegram.BaseURL, nil),
		Market:    market.NewClient(cfg.Market.APIKey, cfg.Market.Chain, cfg.Market.BaseURL, nil),
		Chain:     solana.NewClient(cfg.Solana.RPCURL, nil),
		Logger:    a.logger,
	})
	if err := registry.Bind(stored); err != nil {
		return fmt.Errorf("stored functions do not match implementations: %w", err)
	}

	chat := llm.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Timeout, cfg.LLM.StaticHeaders)
	orch := orchestrator.New(chat, registry, orchestrator.Config{
		Model:         cfg.LLM.Model,
		MaxTurns:      cfg.LLM.MaxTurns,
		MaxToolErrors: cfg.LLM.MaxToolErrors,
	}, a.logger)

	social := scheduler.NewTwitterFactory(cfg.Twitter, a.db, fileStore(cfg.Storage), a.logger)
	a.triggers = scheduler.NewTriggerScheduler(a.db, a.logs, orch, social, cfg.Scheduler.ClaimTTL, a.logger)
	a.tweets = scheduler.NewTweetScheduler(a.db, a.logs, social, cfg.Scheduler.ClaimTTL, a.logger)
	return nil
}

func fileStore(cfg config.StorageConfig) twitter.FileStore {
	if cfg.BaseURL != "" {
		return storage.NewHTTPStore(cfg.BaseURL, nil)
	}
	return storage.NewLocalStore(cfg.Root)
}

func (a *app) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}
