package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalherd/signalherd/internal/consensus"
	"github.com/signalherd/signalherd/internal/models"
)

func newConsensusCmd() *cobra.Command {
	var (
		votesPath    string
		corrPath     string
		winRatesPath string
		asset        string
		mid          float64
		stopBps      float64
		volPct       float64
	)

	cmd := &cobra.Command{
		Use:   "consensus",
		Short: "Evaluate the consensus gates over a vote set",
		Long: `Reads a JSON array of votes and runs the ordered gate chain against a
given mid price: supermajority, effective trader count, freshness,
price drift, and net expected value. Prints the full gate breakdown so
a rejection can be attributed to a specific gate.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsensus(votesPath, corrPath, winRatesPath, asset, mid, stopBps, volPct)
		},
	}

	cmd.Flags().StringVar(&votesPath, "votes", "", "Path to JSON vote set (required)")
	cmd.Flags().StringVar(&corrPath, "correlations", "", "Path to JSON pairwise correlation snapshot")
	cmd.Flags().StringVar(&winRatesPath, "win-rates", "", "Path to JSON per-account win-rate posteriors")
	cmd.Flags().StringVar(&asset, "asset", "", "Instrument symbol for the ticket (required)")
	cmd.Flags().Float64Var(&mid, "mid", 0, "Current mid price (required)")
	cmd.Flags().Float64Var(&stopBps, "stop-bps", 100, "Policy stop distance in basis points")
	cmd.Flags().Float64Var(&volPct, "vol-percentile", 0.5, "Current volatility percentile in [0,1]")
	cmd.MarkFlagRequired("votes")
	cmd.MarkFlagRequired("asset")
	cmd.MarkFlagRequired("mid")

	return cmd
}

func runConsensus(votesPath, corrPath, winRatesPath, asset string, mid, stopBps, volPct float64) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var voteSet []models.Vote
	if err := readJSONFile(votesPath, &voteSet); err != nil {
		return fmt.Errorf("votes: %w", err)
	}

	corr := consensus.CorrelationMatrix{}
	if corrPath != "" {
		if err := readJSONFile(corrPath, &corr); err != nil {
			return fmt.Errorf("correlations: %w", err)
		}
	}
	winRates := map[string]models.WinRatePosterior{}
	if winRatesPath != "" {
		if err := readJSONFile(winRatesPath, &winRates); err != nil {
			return fmt.Errorf("win rates: %w", err)
		}
	}

	now := time.Now().UTC()
	window := consensus.AdaptiveWindow(volPct, cfg.Window)
	res := consensus.CheckConsensus(voteSet, now, mid, window, stopBps, corr, winRates, cfg.Consensus)
	ticket := consensus.BuildTicket(asset, res, len(voteSet))

	printGates(res)
	return writeOutput("", struct {
		Ticket consensus.Ticket       `json:"ticket"`
		Result models.ConsensusResult `json:"result"`
	}{ticket, res})
}

func printGates(res models.ConsensusResult) {
	verdict := "REJECT"
	if res.Passes {
		verdict = "PASS"
	}
	fmt.Fprintf(os.Stderr, "Consensus: %s (direction=%s confidence=%.4f)\n",
		verdict, res.Dir, res.Confidence)
	for _, g := range res.Gates.Ordered() {
		status := "skipped"
		if g.Evaluated {
			status = "FAIL"
			if g.Passed {
				status = "pass"
			}
		}
		fmt.Fprintf(os.Stderr, "  %-14s %-8s value=%.4f threshold=%.4f\n",
			g.Name, status, g.Value, g.Threshold)
	}
}

func readJSONFile(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
