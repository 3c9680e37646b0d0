package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/signalherd/signalherd/internal/models"
	"github.com/signalherd/signalherd/internal/scoring"
)

func newScoreCmd() *cobra.Command {
	var (
		statsPath string
		outPath   string
		topN      int
		table     bool
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score and rank tracked accounts",
		Long: `Reads a JSON array of per-account statistics, computes the
stability-weighted composite skill score for each, and emits the ranked
leaderboard with normalized consensus weights for the top accounts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(statsPath, outPath, topN, table)
		},
	}

	cmd.Flags().StringVar(&statsPath, "stats", "", "Path to JSON account stats (required)")
	cmd.Flags().StringVar(&outPath, "out", "", "Write ranking JSON to file instead of stdout")
	cmd.Flags().IntVar(&topN, "top-n", 0, "Accounts receiving consensus weight (0 = config value)")
	cmd.Flags().BoolVar(&table, "table", false, "Print a human-readable leaderboard instead of JSON")
	cmd.MarkFlagRequired("stats")

	return cmd
}

func runScore(statsPath, outPath string, topN int, table bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if topN == 0 {
		topN = cfg.TopN
	}

	b, err := os.ReadFile(statsPath)
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}
	var accounts []models.AccountStats
	if err := json.Unmarshal(b, &accounts); err != nil {
		return fmt.Errorf("parse stats: %w", err)
	}

	ranked := scoring.RankAccounts(accounts, cfg.Scoring, topN)
	log.Info().
		Int("accounts", len(accounts)).
		Int("ranked", len(ranked)).
		Int("top_n", topN).
		Msg("ranking complete")

	if table {
		printLeaderboard(ranked)
		return nil
	}
	return writeOutput(outPath, ranked)
}

func printLeaderboard(ranked []models.RankedAccount) {
	fmt.Printf("%-5s %-44s %10s %8s %10s %10s\n",
		"RANK", "ADDRESS", "SCORE", "WEIGHT", "STABILITY", "WINRATE")
	for _, r := range ranked {
		fmt.Printf("%-5d %-44s %10.4f %8.4f %10.4f %10.4f\n",
			r.Rank, r.Address, r.Score, r.Weight,
			r.Details.StabilityScore, r.Details.WinRateScore)
	}
}
