package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"card-compare-engine/internal/config"
	"card-compare-engine/internal/seed"
	"card-compare-engine/internal/storage"
)

func main() {
	file := flag.String("file", "configs/seed.yaml", "seed file with banks, cards and campaigns")
	migrate := flag.Bool("migrate", false, "apply database migrations first")
	deactivateOnly := flag.Bool("deactivate-only", false, "only deactivate expired campaigns")
	flag.Parse()

	cfg := config.Load()
	config.SetupLogging(cfg.Server.LogLevel, cfg.Server.LogJSON)

	if err := run(cfg, *file, *migrate, *deactivateOnly); err != nil {
		log.Error().Err(err).Msg("import failed")
		os.Exit(1)
	}
}

func run(cfg config.Config, file string, migrate, deactivateOnly bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if migrate {
		if err := storage.RunMigrations(cfg.DSN()); err != nil {
			return err
		}
	}

	store, err := storage.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	today := time.Now()
	if deactivateOnly {
		n, err := store.DeactivateExpired(ctx, today)
		if err != nil {
			return err
		}
		log.Info().Int64("deactivated", n).Msg("expired campaigns deactivated")
		return nil
	}

	f, err := seed.Load(file)
	if err != nil {
		return err
	}
	sum, err := seed.Import(ctx, store, f, today)
	if err != nil {
		return err
	}

	active, err := store.ActiveCampaignCount(ctx)
	if err != nil {
		return err
	}
	log.Info().
		Int("banks", sum.Banks).
		Int("cards", sum.Cards).
		Int("campaigns", sum.Campaigns).
		Int64("deactivated", sum.Deactivated).
		Int64("active", active).
		Msg("import complete")
	return nil
}
