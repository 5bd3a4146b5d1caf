package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"quantbt/internal/calendar"
	"quantbt/internal/domain"
)

func loadTestConfig(t *testing.T) *Config {
	t.Helper()
	clearEnvOverrides(t)
	cfg, err := Load(writeTestConfig(t, testYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func testOptions() Options {
	return Options{
		Mode:      "backtest",
		StartDate: "2023-02-01",
		EndDate:   "2023-02-15",
		RunName:   "test_run",
	}
}

func TestBuildGlobal(t *testing.T) {
	cfg := loadTestConfig(t)

	global, err := Build(context.Background(), cfg, calendar.WeekdaySource{}, testOptions())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if global.Mode != domain.ModeBacktest {
		t.Errorf("Mode = %q, want backtest", global.Mode)
	}
	if global.RunName != "test_run" {
		t.Errorf("RunName = %q, want test_run", global.RunName)
	}
	if global.RunStart >= global.RunEnd {
		t.Errorf("RunStart %d not before RunEnd %d", global.RunStart, global.RunEnd)
	}

	// The calendar must extend beyond the run window on both sides: doubled
	// lookback before, lookahead after.
	ts := global.Calendar.Timestamps()
	if ts[0] >= global.RunStart {
		t.Errorf("calendar starts at %d, want before run start %d", ts[0], global.RunStart)
	}
	if ts[len(ts)-1] < global.RunEnd {
		t.Errorf("calendar ends at %d, want at or after run end %d", ts[len(ts)-1], global.RunEnd)
	}

	if len(global.Strategies) != 1 {
		t.Fatalf("len(Strategies) = %d, want 1", len(global.Strategies))
	}
	strat := global.Strategies[0]
	if strat.HoldingPeriodSec != 5*86400 {
		t.Errorf("HoldingPeriodSec = %d, want %d", strat.HoldingPeriodSec, 5*86400)
	}
	if strat.StartingCash != 250000 {
		t.Errorf("StartingCash = %v, want 250000", strat.StartingCash)
	}
	if len(strat.Symbols) != 1 || strat.Symbols[0].Ticker != "ACME" {
		t.Errorf("Symbols = %v, want [ACME]", strat.Symbols)
	}

	if !global.Registry.Contains(domain.SymbolKey{Ticker: "GLOBEX", AssetClass: domain.AssetClassUSEquities}) {
		t.Error("registry missing GLOBEX")
	}
}

func TestBuildUnitAllocationCoversRunDays(t *testing.T) {
	cfg := loadTestConfig(t)

	global, err := Build(context.Background(), cfg, calendar.WeekdaySource{}, testOptions())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	runDays := global.Calendar.RangeSearch(global.RunStart, global.RunEnd-1)
	if len(runDays) == 0 {
		t.Fatal("no run days")
	}
	if len(global.Allocations) != len(runDays) {
		t.Fatalf("allocation has %d days, want %d", len(global.Allocations), len(runDays))
	}
	for _, ts := range runDays {
		day, ok := global.Allocations[ts]
		if !ok {
			t.Fatalf("allocation missing day %d", ts)
		}
		if alloc, ok := day["crossover_acme"]; !ok || alloc.Weight != 1.0 {
			t.Errorf("day %d allocation = %+v, want crossover_acme weight 1.0", ts, day)
		}
	}
}

func TestBuildAllocationBothSourcesFails(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.Allocation.Path = "/does/not/matter.yaml"
	cfg.Allocation.GenerateUnit = true

	if _, err := Build(context.Background(), cfg, calendar.WeekdaySource{}, testOptions()); err == nil {
		t.Fatal("Build succeeded with both allocation sources set, want error")
	}
}

func TestBuildAllocationNoSourceFails(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.Allocation.Path = ""
	cfg.Allocation.GenerateUnit = false

	if _, err := Build(context.Background(), cfg, calendar.WeekdaySource{}, testOptions()); err == nil {
		t.Fatal("Build succeeded with no allocation source, want error")
	}
}

func TestBuildAllocationFromFile(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.Allocation.GenerateUnit = false

	allocYAML := `
- date: "2023-02-01"
  weights:
    crossover_acme: 0.5
- date: "2023-02-02"
  weights:
    crossover_acme: 0.7
`
	path := filepath.Join(t.TempDir(), "alloc.yaml")
	if err := os.WriteFile(path, []byte(allocYAML), 0o644); err != nil {
		t.Fatalf("writing allocation file: %v", err)
	}
	cfg.Allocation.Path = path

	global, err := Build(context.Background(), cfg, calendar.WeekdaySource{}, testOptions())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(global.Allocations) != 2 {
		t.Fatalf("allocation has %d days, want 2", len(global.Allocations))
	}
	for _, day := range global.Allocations {
		if _, ok := day["crossover_acme"]; !ok {
			t.Error("allocation day missing crossover_acme")
		}
	}
}

func TestBuildAllocationInconsistentStrategySets(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.Strategies = append(cfg.Strategies, StrategyConfig{
		Name:             "crossover_globex",
		Type:             "open_crossover",
		AssetClass:       "us_equities",
		Symbols:          []string{"GLOBEX"},
		TradeSizeDollars: 50000,
		HoldingPeriod:    "3_days",
		TradeType:        "simple_fixed",
	})
	cfg.Allocation.GenerateUnit = false

	allocYAML := `
- date: "2023-02-01"
  weights:
    crossover_acme: 1.0
    crossover_globex: 1.0
- date: "2023-02-02"
  weights:
    crossover_acme: 1.0
`
	path := filepath.Join(t.TempDir(), "alloc.yaml")
	if err := os.WriteFile(path, []byte(allocYAML), 0o644); err != nil {
		t.Fatalf("writing allocation file: %v", err)
	}
	cfg.Allocation.Path = path

	if _, err := Build(context.Background(), cfg, calendar.WeekdaySource{}, testOptions()); err == nil {
		t.Fatal("Build succeeded with inconsistent allocation strategy sets, want error")
	}
}

func TestBuildAllocationUnknownStrategy(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.Allocation.GenerateUnit = false

	allocYAML := `
- date: "2023-02-01"
  weights:
    phantom: 1.0
`
	path := filepath.Join(t.TempDir(), "alloc.yaml")
	if err := os.WriteFile(path, []byte(allocYAML), 0o644); err != nil {
		t.Fatalf("writing allocation file: %v", err)
	}
	cfg.Allocation.Path = path

	if _, err := Build(context.Background(), cfg, calendar.WeekdaySource{}, testOptions()); err == nil {
		t.Fatal("Build succeeded with unknown allocated strategy, want error")
	}
}

func TestBuildUnknownModeAndSymbol(t *testing.T) {
	cfg := loadTestConfig(t)

	opts := testOptions()
	opts.Mode = "paper"
	if _, err := Build(context.Background(), cfg, calendar.WeekdaySource{}, opts); err == nil {
		t.Error("Build succeeded with unknown mode, want error")
	}

	cfg = loadTestConfig(t)
	cfg.Strategies[0].Symbols = []string{"UNKNOWN"}
	if _, err := Build(context.Background(), cfg, calendar.WeekdaySource{}, testOptions()); err == nil {
		t.Error("Build succeeded with unregistered symbol, want error")
	}
}
