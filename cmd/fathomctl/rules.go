package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/fathom/internal/repository"
	"github.com/opensource-finance/fathom/internal/rules"
)

var flagForce bool

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage advisory rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enabled advisory rules",
	Args:  cobra.NoArgs,
	RunE:  runRulesList,
}

var rulesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Store the starter advisory rules",
	Long: "Store the starter advisory rules. Existing rules with the same ID are\n" +
		"kept unless --force is given. Running servers pick them up on\n" +
		"POST /rules/reload.",
	Args: cobra.NoArgs,
	RunE: runRulesSeed,
}

func init() {
	rulesSeedCmd.Flags().BoolVar(&flagForce, "force", false, "Overwrite existing rules")
	rulesCmd.AddCommand(rulesListCmd, rulesSeedCmd)
	rootCmd.AddCommand(rulesCmd)
}

func runRulesList(cmd *cobra.Command, _ []string) error {
	repo, err := openRepository()
	if err != nil {
		return err
	}
	defer repo.Close()

	stored, err := repo.ListRuleConfigs(cmd.Context())
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		fmt.Println("No enabled rules. Seed the starter set with: fathomctl rules seed")
		return nil
	}

	fmt.Printf("%-24s %-8s %s\n", "ID", "VERSION", "EXPRESSION")
	for _, r := range stored {
		fmt.Printf("%-24s %-8s %s\n", r.ID, r.Version, r.Expression)
	}
	return nil
}

func runRulesSeed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	repo, err := openRepository()
	if err != nil {
		return err
	}
	defer repo.Close()

	engine, err := rules.NewEngine(1)
	if err != nil {
		return err
	}

	var saved, kept int
	for _, r := range rules.StarterRules() {
		if err := engine.ValidateRule(r); err != nil {
			return err
		}
		if !flagForce {
			_, err := repo.GetRuleConfig(ctx, r.ID)
			if err == nil {
				kept++
				continue
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return err
			}
		}
		if err := repo.SaveRuleConfig(ctx, r); err != nil {
			return fmt.Errorf("failed to save rule %s: %w", r.ID, err)
		}
		saved++
	}

	fmt.Printf("%d rules saved, %d existing kept\n", saved, kept)
	return nil
}
