package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/signalherd/signalherd/internal/application"
	"github.com/signalherd/signalherd/internal/episode"
	"github.com/signalherd/signalherd/internal/models"
	"github.com/signalherd/signalherd/internal/persistence/postgres"
)

func newEpisodesCmd() *cobra.Command {
	var (
		fillsPath string
		outPath   string
		validate  bool
	)

	cmd := &cobra.Command{
		Use:   "episodes",
		Short: "Reconstruct position episodes from a fill history",
		Long: `Reads a JSON array of fills, groups them by (account, asset), and
reconstructs complete position lifecycles with VWAP entries/exits,
risk-normalized R multiples, and close reasons.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEpisodes(fillsPath, outPath, validate)
		},
	}

	cmd.Flags().StringVar(&fillsPath, "fills", "", "Path to JSON fill history (required)")
	cmd.Flags().StringVar(&outPath, "out", "", "Write episodes JSON to file instead of stdout")
	cmd.Flags().BoolVar(&validate, "validate", false, "Run reconstruction diagnostics and fail on inconsistency")
	cmd.MarkFlagRequired("fills")

	return cmd
}

func runEpisodes(fillsPath, outPath string, validate bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fills, err := readFills(fillsPath)
	if err != nil {
		return err
	}

	episodes := episode.BuildEpisodes(fills, cfg.Episode)
	log.Info().
		Int("fills", len(fills)).
		Int("episodes", len(episodes)).
		Msg("episodes reconstructed")

	if validate {
		res := episode.ValidateEpisodes(episodes, fills)
		for _, d := range res.Diagnostics {
			log.Warn().Str("diagnostic", d).Msg("episode validation")
		}
		if !res.Valid {
			return fmt.Errorf("episode validation failed with %d diagnostics", len(res.Diagnostics))
		}
	}

	if cfg.DB.Enabled {
		if err := persistEpisodes(context.Background(), cfg, episodes); err != nil {
			return err
		}
	}

	return writeOutput(outPath, episodes)
}

// persistEpisodes replaces each account's stored episode set with the
// fresh reconstruction.
func persistEpisodes(ctx context.Context, cfg application.Config, episodes []models.Episode) error {
	db, repo, err := postgres.Connect(postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		QueryTimeout:    cfg.DB.QueryTimeout,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	byAccount := make(map[string][]models.Episode)
	for _, e := range episodes {
		byAccount[e.Address] = append(byAccount[e.Address], e)
	}
	for address, set := range byAccount {
		if err := repo.Episodes.ReplaceForAccount(ctx, address, set); err != nil {
			return fmt.Errorf("persist episodes for %s: %w", address, err)
		}
	}
	log.Info().Int("accounts", len(byAccount)).Msg("episodes persisted")
	return nil
}

func readFills(path string) ([]models.Fill, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fills: %w", err)
	}
	var fills []models.Fill
	if err := json.Unmarshal(b, &fills); err != nil {
		return nil, fmt.Errorf("parse fills: %w", err)
	}
	return fills, nil
}

func writeOutput(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if path == "" {
		_, err = os.Stdout.Write(b)
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
