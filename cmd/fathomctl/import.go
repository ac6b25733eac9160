package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/fathom/internal/cache"
	"github.com/opensource-finance/fathom/internal/ingest"
	"github.com/opensource-finance/fathom/internal/lookup"
)

var importCmd = &cobra.Command{
	Use:   "import <file.csv>...",
	Short: "Import upstream behavior, financial or expense CSV tables",
	Long: "Import upstream CSV tables into the repository. The layout of each file\n" +
		"is detected from its header. With a shared Redis cache, cached rows of\n" +
		"imported users are invalidated.",
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	repo, err := openRepository()
	if err != nil {
		return err
	}
	defer repo.Close()

	// A process-local cache dies with this command, so only a shared one
	// needs invalidating.
	var inv ingest.Invalidator
	if cfg.Cache.Type == "redis" {
		c, err := cache.New(cfg.Cache)
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		defer c.Close()
		inv = lookup.NewCachedSource(repo, c, cfg.Cache.LocalTTLDuration(), logger)
	}

	importer := ingest.NewImporter(repo, inv, logger)
	for _, path := range args {
		stats, err := importer.ImportFile(ctx, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Printf("%s: %s table, %d rows, %d imported, %d skipped\n",
			path, stats.Kind, stats.Rows, stats.Imported, stats.Skipped)
	}
	return nil
}
