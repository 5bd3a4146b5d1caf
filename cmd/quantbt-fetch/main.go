package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quantbt/internal/config"
	"quantbt/internal/domain"
	"quantbt/internal/gather"
	"quantbt/internal/store"
	"quantbt/internal/util"
)

func main() {
	var (
		configPath = flag.String("config", "config/quantbt.yaml", "path to the configuration file")
		startDate  = flag.String("start", "", "backfill start date (YYYY-MM-DD)")
		endDate    = flag.String("end", "", "backfill end date (YYYY-MM-DD)")
		batchSize  = flag.Int("batch-size", 200, "tickers per bars API call")
		workers    = flag.Int("workers", 4, "concurrent fetch workers")
		withNews   = flag.Bool("news", false, "also backfill news series")
		logLevel   = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	if p := os.Getenv("QUANTBT_CONFIG"); p != "" && *configPath == "config/quantbt.yaml" {
		*configPath = p
	}
	if *startDate == "" || *endDate == "" {
		log.Fatal("both -start and -end are required")
	}

	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		log.Fatalf("invalid start date: %v", err)
	}
	end, err := time.Parse("2006-01-02", *endDate)
	if err != nil {
		log.Fatalf("invalid end date: %v", err)
	}
	rng := gather.DateRange{Start: start, End: end}

	logger := util.NewLogger(*logLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pstore := store.NewParquetStore(cfg.Storage.DataDir)

	for acName, tickers := range cfg.Universe {
		ac := domain.AssetClass(acName)

		bars := gather.NewBarBackfiller(
			cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL,
			pstore, ac, tickers, rng, *batchSize, *workers, logger)
		if err := bars.Run(ctx); err != nil {
			log.Fatalf("bar backfill failed: %v", err)
		}

		if !*withNews {
			continue
		}
		news := gather.NewNewsBackfiller(
			cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL,
			pstore, ac, tickers, rng, 0, *workers, logger)
		if err := news.Run(ctx); err != nil {
			log.Fatalf("news backfill failed: %v", err)
		}
	}

	logger.Info("backfill finished", "asset_classes", len(cfg.Universe))
}
