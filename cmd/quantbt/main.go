package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"quantbt/internal/calendar"
	"quantbt/internal/config"
	"quantbt/internal/data"
	"quantbt/internal/runner"
	"quantbt/internal/store"
	"quantbt/internal/strategy"
	"quantbt/internal/strategy/builtins"
	"quantbt/internal/util"
)

func main() {
	var (
		configPath = flag.String("config", "config/quantbt.yaml", "path to the configuration file")
		mode       = flag.String("mode", "backtest", "run mode: backtest or live")
		startDate  = flag.String("start", "", "run start date (YYYY-MM-DD, inclusive)")
		endDate    = flag.String("end", "", "run end date (YYYY-MM-DD, exclusive)")
		runName    = flag.String("run-name", "", "run name; defaults to <start>_<end>")
		lookback   = flag.String("lookback", "", "observed window override, e.g. 20_days")
		lookahead  = flag.String("lookahead", "", "forward window override, e.g. 2_days")
		workers    = flag.Int("workers", 0, "worker count override")
		logLevel   = flag.String("log-level", "info", "log level: debug, info, warn, error")
		offline    = flag.Bool("offline", false, "build the calendar from weekdays instead of the Alpaca schedule")
	)
	flag.Parse()

	if p := os.Getenv("QUANTBT_CONFIG"); p != "" && *configPath == "config/quantbt.yaml" {
		*configPath = p
	}
	if *startDate == "" || *endDate == "" {
		log.Fatal("both -start and -end are required")
	}

	logger := util.NewLogger(*logLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var schedule calendar.ScheduleSource
	if *offline {
		schedule = calendar.WeekdaySource{}
	} else {
		schedule = calendar.NewAlpacaScheduleSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
	}

	global, err := config.Build(ctx, cfg, schedule, config.Options{
		Mode:      *mode,
		StartDate: *startDate,
		EndDate:   *endDate,
		RunName:   *runName,
		Lookback:  *lookback,
		Lookahead: *lookahead,
		Workers:   *workers,
	})
	if err != nil {
		log.Fatalf("failed to build run configuration: %v", err)
	}

	pstore := store.NewParquetStore(global.Storage.DataDir)
	sources := map[string]data.Source{
		"parquet": data.NewParquetSource(pstore),
		"alpaca":  data.NewAlpacaSource(global.Alpaca.APIKey, global.Alpaca.APISecret, global.Alpaca.DataURL, 0),
	}
	dataManager, err := data.NewManager(global, sources, logger)
	if err != nil {
		log.Fatalf("failed to wire data manager: %v", err)
	}

	var runStore store.RunStore
	if global.Storage.SQLitePath != "" {
		sqlStore, err := store.NewSQLiteStore(global.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open run store: %v", err)
		}
		defer sqlStore.Close()
		runStore = sqlStore
	}

	registry := strategy.NewRegistry()
	builtins.Register(registry)

	engine, err := runner.New(global, runner.Deps{
		Data:     dataManager,
		Registry: registry,
		RunStore: runStore,
		Log:      logger,
	})
	if err != nil {
		log.Fatalf("failed to construct mode: %v", err)
	}

	logger.Info("starting run",
		"run", global.RunName,
		"mode", global.Mode,
		"strategies", len(global.Strategies),
		"symbols", global.Registry.Len())
	if err := engine.Run(ctx); err != nil {
		log.Fatalf("run failed: %v", err)
	}
	logger.Info("run finished", "run", global.RunName)
}
