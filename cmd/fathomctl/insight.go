package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/fathom/internal/domain"
	"github.com/opensource-finance/fathom/internal/insight"
	"github.com/opensource-finance/fathom/internal/report"
)

var flagJSON bool

var insightCmd = &cobra.Command{
	Use:   "insight <user-id>",
	Short: "Print the insight report for one user",
	Args:  cobra.ExactArgs(1),
	RunE:  runInsight,
}

func init() {
	insightCmd.Flags().BoolVar(&flagJSON, "json", false, "Print the insight as JSON")
	rootCmd.AddCommand(insightCmd)
}

func runInsight(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q", args[0])
	}

	ctx := cmd.Context()
	repo, err := openRepository()
	if err != nil {
		return err
	}
	defer repo.Close()

	agg, err := newAggregator(ctx, repo)
	if err != nil {
		return err
	}

	ins, err := agg.GetInsight(ctx, domain.UserID(id))
	if errors.Is(err, insight.ErrUserNotFound) {
		fmt.Printf("No data available for User ID: %d\n", id)
		return nil
	}
	if err != nil {
		return err
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(ins)
	}
	return report.Write(os.Stdout, ins)
}
