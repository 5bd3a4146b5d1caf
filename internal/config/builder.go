// Package config loads the YAML run configuration and assembles the
// immutable Global configuration the engine runs against: calendar, symbol
// registry, resolved strategies, provider bindings, and allocation table.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"quantbt/internal/calendar"
	"quantbt/internal/domain"
)

// ObservedLookbackScaler widens the data range before the run start so the
// observed window is fully warmed up on the first simulated day.
const ObservedLookbackScaler = 2.0

// Options carries the per-invocation parameters that are not part of the
// configuration file.
type Options struct {
	Mode      string
	StartDate string // YYYY-MM-DD, inclusive
	EndDate   string // YYYY-MM-DD, exclusive
	RunName   string
	Lookback  string // optional override of run.lookback
	Lookahead string // optional override of run.lookahead
	Workers   int    // optional override of run.max_workers
}

// Allocation is one strategy's capital weight for one day.
type Allocation struct {
	Weight float64
}

// AllocationTable maps a calendar timestamp to the strategies allocated that
// day. Exactly one entry per simulated day is required.
type AllocationTable map[int64]map[string]Allocation

// Strategy is a fully resolved strategy configuration.
type Strategy struct {
	Name             string
	Type             string
	AssetClass       domain.AssetClass
	Symbols          []domain.Symbol
	TradeSizeDollars float64
	StartingCash     float64
	HoldingPeriodSec int64
	TradeType        domain.TradeType
	Settings         map[string]float64
}

// ProviderBinding routes one (asset class, data type) pair to a named data
// provider.
type ProviderBinding struct {
	AssetClass domain.AssetClass
	DataType   domain.DataType
	Provider   string
}

// Global is the assembled, read-only configuration for one run. It is built
// once before the simulation loop starts.
type Global struct {
	Mode        domain.Mode
	RunName     string
	TradingTime domain.TradingTime

	Calendar *calendar.TradingCalendar
	RunStart int64 // inclusive
	RunEnd   int64 // exclusive

	Lookback  Window
	Lookahead Window
	Workers   int

	Registry    *domain.SymbolRegistry
	Strategies  []Strategy
	Providers   []ProviderBinding
	Allocations AllocationTable

	Storage Storage
	Alpaca  Alpaca
}

// Build assembles the Global configuration: it parses the run window,
// constructs the trading calendar over the widened data range, resolves the
// symbol universe and strategies, and builds the allocation table.
func Build(ctx context.Context, cfg *Config, src calendar.ScheduleSource, opts Options) (*Global, error) {
	mode := domain.Mode(opts.Mode)
	switch mode {
	case domain.ModeBacktest, domain.ModeLive:
	default:
		return nil, fmt.Errorf("unknown mode %q", opts.Mode)
	}

	tradingTime := domain.TradingTime(cfg.Run.TradingTime)
	if tradingTime == "" {
		tradingTime = domain.TradingTimeNYCDailyOpen
	}

	startDate, err := time.Parse("2006-01-02", opts.StartDate)
	if err != nil {
		return nil, fmt.Errorf("parsing start date %q: %w", opts.StartDate, err)
	}
	endDate, err := time.Parse("2006-01-02", opts.EndDate)
	if err != nil {
		return nil, fmt.Errorf("parsing end date %q: %w", opts.EndDate, err)
	}
	if !startDate.Before(endDate) {
		return nil, fmt.Errorf("start date %s is not before end date %s", opts.StartDate, opts.EndDate)
	}

	lookback, err := ParseWindow(firstNonEmpty(opts.Lookback, cfg.Run.Lookback))
	if err != nil {
		return nil, fmt.Errorf("lookback: %w", err)
	}
	lookahead, err := ParseWindow(firstNonEmpty(opts.Lookahead, cfg.Run.Lookahead))
	if err != nil {
		return nil, fmt.Errorf("lookahead: %w", err)
	}

	deltaStr := cfg.Run.DeltaToClose
	if deltaStr == "" {
		deltaStr = "00:00:00"
	}
	delta, err := calendar.ParseDelta(deltaStr)
	if err != nil {
		return nil, err
	}

	// Widen the loaded range: double the lookback before the run start so the
	// observed window is warm on day one, and the lookahead after the end so
	// the final days can still be scored.
	dataStartDate := startDate.Add(-time.Duration(float64(lookback.Seconds())*ObservedLookbackScaler) * time.Second)
	dataEndDate := endDate.Add(time.Duration(lookahead.Seconds()) * time.Second)

	cal, err := calendar.Build(ctx, src, cfg.Run.CalendarName, dataStartDate, dataEndDate, delta)
	if err != nil {
		return nil, fmt.Errorf("building calendar: %w", err)
	}
	if cal.Len() == 0 {
		return nil, errors.New("calendar has no trading timestamps in the data range")
	}

	runStart := anchorDate(startDate, delta)
	runEnd := anchorDate(endDate, delta)

	registry, err := buildRegistry(cfg.Universe)
	if err != nil {
		return nil, err
	}

	strategies, err := resolveStrategies(cfg.Strategies, registry)
	if err != nil {
		return nil, err
	}

	providers, err := resolveProviders(cfg.Providers)
	if err != nil {
		return nil, err
	}

	allocations, err := buildAllocations(cfg.Allocation, strategies, cal, runStart, runEnd, delta)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = cfg.Run.MaxWorkers
	}
	if workers <= 0 {
		workers = 4
	}

	runName := opts.RunName
	if runName == "" {
		runName = fmt.Sprintf("%s_%s", opts.StartDate, opts.EndDate)
	}

	return &Global{
		Mode:        mode,
		RunName:     runName,
		TradingTime: tradingTime,
		Calendar:    cal,
		RunStart:    runStart,
		RunEnd:      runEnd,
		Lookback:    lookback,
		Lookahead:   lookahead,
		Workers:     workers,
		Registry:    registry,
		Strategies:  strategies,
		Providers:   providers,
		Allocations: allocations,
		Storage:     cfg.Storage,
		Alpaca:      cfg.Alpaca,
	}, nil
}

// anchorDate converts a bare date to its calendar timestamp: midnight
// America/New_York plus the delta-to-close offset, as Unix seconds.
func anchorDate(d time.Time, delta time.Duration) int64 {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		// The IANA database always carries America/New_York; a failure here
		// means the environment is unusable for any calendar work.
		panic(err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, et).Add(delta).Unix()
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func buildRegistry(universe map[string][]string) (*domain.SymbolRegistry, error) {
	if len(universe) == 0 {
		return nil, errors.New("universe is empty")
	}
	var symbols []domain.Symbol
	for acName, tickers := range universe {
		ac, err := parseAssetClass(acName)
		if err != nil {
			return nil, err
		}
		for _, ticker := range tickers {
			symbols = append(symbols, domain.Symbol{Ticker: ticker, AssetClass: ac})
		}
	}
	return domain.NewSymbolRegistry(symbols), nil
}

func resolveStrategies(configs []StrategyConfig, registry *domain.SymbolRegistry) ([]Strategy, error) {
	if len(configs) == 0 {
		return nil, errors.New("no strategies configured")
	}
	seen := make(map[string]struct{}, len(configs))
	out := make([]Strategy, 0, len(configs))
	for _, sc := range configs {
		if sc.Name == "" {
			return nil, errors.New("strategy with empty name")
		}
		if _, dup := seen[sc.Name]; dup {
			return nil, fmt.Errorf("duplicate strategy name %q", sc.Name)
		}
		seen[sc.Name] = struct{}{}

		ac, err := parseAssetClass(firstNonEmpty(sc.AssetClass, string(domain.AssetClassUSEquities)))
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", sc.Name, err)
		}

		symbols := make([]domain.Symbol, 0, len(sc.Symbols))
		for _, ticker := range sc.Symbols {
			sym, err := registry.Resolve(ticker, ac)
			if err != nil {
				return nil, fmt.Errorf("strategy %s: %w", sc.Name, err)
			}
			symbols = append(symbols, sym)
		}

		holding, err := ParseWindow(sc.HoldingPeriod)
		if err != nil {
			return nil, fmt.Errorf("strategy %s holding period: %w", sc.Name, err)
		}

		tradeType := domain.TradeType(sc.TradeType)
		if tradeType == "" {
			tradeType = domain.TradeTypeSimpleFixed
		}

		out = append(out, Strategy{
			Name:             sc.Name,
			Type:             sc.Type,
			AssetClass:       ac,
			Symbols:          symbols,
			TradeSizeDollars: sc.TradeSizeDollars,
			StartingCash:     sc.StartingCash,
			HoldingPeriodSec: holding.Seconds(),
			TradeType:        tradeType,
			Settings:         sc.Settings,
		})
	}
	return out, nil
}

func resolveProviders(configs []ProviderConfig) ([]ProviderBinding, error) {
	if len(configs) == 0 {
		return nil, errors.New("no data providers configured")
	}
	out := make([]ProviderBinding, 0, len(configs))
	for _, pc := range configs {
		ac, err := parseAssetClass(pc.AssetClass)
		if err != nil {
			return nil, err
		}
		dt, err := parseDataType(pc.DataType)
		if err != nil {
			return nil, err
		}
		if pc.Provider == "" {
			return nil, fmt.Errorf("provider name missing for %s/%s", pc.AssetClass, pc.DataType)
		}
		out = append(out, ProviderBinding{AssetClass: ac, DataType: dt, Provider: pc.Provider})
	}
	return out, nil
}

func parseAssetClass(s string) (domain.AssetClass, error) {
	switch ac := domain.AssetClass(s); ac {
	case domain.AssetClassUSEquities:
		return ac, nil
	default:
		return "", fmt.Errorf("unknown asset class %q", s)
	}
}

func parseDataType(s string) (domain.DataType, error) {
	switch dt := domain.DataType(s); dt {
	case domain.DataTypeStock, domain.DataTypeNews:
		return dt, nil
	default:
		return "", fmt.Errorf("unknown data type %q", s)
	}
}

// ---------------------------------------------------------------------------
// Allocation table
// ---------------------------------------------------------------------------

// allocationFileEntry is one day's row in the allocation YAML file.
type allocationFileEntry struct {
	Date    string             `yaml:"date"`
	Weights map[string]float64 `yaml:"weights"`
}

func buildAllocations(cfg AllocationConfig, strategies []Strategy, cal *calendar.TradingCalendar, runStart, runEnd int64, delta time.Duration) (AllocationTable, error) {
	if cfg.Path != "" && cfg.GenerateUnit {
		return nil, errors.New("allocation: both path and generate_unit set; choose one")
	}

	known := make(map[string]struct{}, len(strategies))
	for _, s := range strategies {
		known[s.Name] = struct{}{}
	}

	var table AllocationTable
	switch {
	case cfg.Path != "":
		var err error
		table, err = loadAllocationFile(cfg.Path, delta)
		if err != nil {
			return nil, err
		}
	case cfg.GenerateUnit:
		table = make(AllocationTable)
		for _, ts := range cal.RangeSearch(runStart, runEnd-1) {
			day := make(map[string]Allocation, len(strategies))
			for _, s := range strategies {
				day[s.Name] = Allocation{Weight: 1.0}
			}
			table[ts] = day
		}
	default:
		return nil, errors.New("allocation: neither path nor generate_unit set")
	}

	if len(table) == 0 {
		return nil, errors.New("allocation table is empty")
	}

	// Every referenced strategy must be configured, and the strategy set must
	// be identical across days.
	var reference []string
	for _, day := range table {
		names := make([]string, 0, len(day))
		for name := range day {
			if _, ok := known[name]; !ok {
				return nil, fmt.Errorf("allocation references unknown strategy %q", name)
			}
			names = append(names, name)
		}
		if reference == nil {
			reference = names
			continue
		}
		if !sameNameSet(reference, names) {
			return nil, errors.New("allocation strategy sets are inconsistent across days")
		}
	}

	return table, nil
}

func loadAllocationFile(path string, delta time.Duration) (AllocationTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading allocation file: %w", err)
	}
	var entries []allocationFileEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing allocation file: %w", err)
	}

	table := make(AllocationTable, len(entries))
	for _, e := range entries {
		d, err := time.Parse("2006-01-02", e.Date)
		if err != nil {
			return nil, fmt.Errorf("allocation date %q: %w", e.Date, err)
		}
		day := make(map[string]Allocation, len(e.Weights))
		for name, weight := range e.Weights {
			day[name] = Allocation{Weight: weight}
		}
		table[anchorDate(d, delta)] = day
	}
	return table, nil
}

func sameNameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, name := range a {
		set[name] = struct{}{}
	}
	for _, name := range b {
		if _, ok := set[name]; !ok {
			return false
		}
	}
	return true
}
