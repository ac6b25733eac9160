package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/fathom/internal/budget"
	"github.com/opensource-finance/fathom/internal/domain"
	"github.com/opensource-finance/fathom/internal/insight"
	"github.com/opensource-finance/fathom/internal/repository"
	"github.com/opensource-finance/fathom/internal/rules"
)

var (
	flagConfig  string
	flagVerbose bool

	cfg    *domain.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "fathomctl",
	Short:         "Fathom operator CLI",
	Long:          "Print insight reports, import upstream CSV tables and manage advisory rules.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		loaded, err := domain.LoadConfig(flagConfig)
		if err != nil {
			return err
		}
		cfg = loaded

		level := slog.LevelWarn
		if flagVerbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
		return nil
	},
}

// Execute is the main entry point called from main.go.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "fathomctl: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", os.Getenv("FATHOM_CONFIG"), "TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log debug output to stderr")
}

// openRepository opens the configured repository. Callers close it.
func openRepository() (*repository.SQLRepository, error) {
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	return repo, nil
}

// newAggregator builds an aggregator reading straight from repo, with the
// stored advisory rules loaded.
func newAggregator(ctx context.Context, repo domain.SignalRepository) (*insight.Aggregator, error) {
	policy, err := budget.PolicyFromConfig(cfg.Budget)
	if err != nil {
		return nil, err
	}

	engine, err := rules.NewEngine(4)
	if err != nil {
		return nil, err
	}
	stored, err := repo.ListRuleConfigs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	if err := engine.LoadRules(stored); err != nil {
		return nil, err
	}

	return insight.NewAggregator(insight.Deps{
		Source:      repo,
		Recommender: budget.NewRecommender(policy),
		Rules:       engine,
		Logger:      logger,
	})
}
