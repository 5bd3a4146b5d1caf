package builtins

import (
	"testing"

	"quantbt/internal/config"
	"quantbt/internal/domain"
)

const day = int64(86400)

var testBase = int64(1700000000)

func crossoverConfig() config.Strategy {
	return config.Strategy{
		Name:       "momo_a",
		Type:       TypeOpenCrossover,
		AssetClass: domain.AssetClassUSEquities,
		Symbols: []domain.Symbol{
			{Ticker: "AAPL", AssetClass: domain.AssetClassUSEquities},
		},
		Settings: map[string]float64{
			"short_window": 2,
			"long_window":  3,
			"strength":     0.5,
		},
	}
}

// windowWithOpens builds an observed window for AAPL from a sequence of
// daily open prices.
func windowWithOpens(opens ...float64) domain.Window {
	key := domain.SeriesKey{
		AssetClass: domain.AssetClassUSEquities,
		DataType:   domain.DataTypeStock,
		Ticker:     "AAPL",
	}
	w := make(domain.Window)
	for i, open := range opens {
		w.Append(key, domain.Entry{
			Timestamp: testBase + int64(i)*day,
			Row:       domain.Row{"Open": open},
		}, 0)
	}
	return w
}

func TestOpenCrossoverSignalsOnCross(t *testing.T) {
	s, err := NewOpenCrossover(crossoverConfig())
	if err != nil {
		t.Fatalf("NewOpenCrossover: %v", err)
	}

	// Yesterday: short mean (10, 10) = 10 <= long mean (10, 10, 10) = 10.
	// Today: short mean (10, 22) = 16 > long mean (10, 10, 22) = 14.
	ts := testBase + 10*day
	signals, err := s.GenerateSignals(ts, windowWithOpens(10, 10, 10, 22))
	if err != nil {
		t.Fatalf("GenerateSignals: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("got %d signals, want 1", len(signals))
	}
	sig := signals[0]
	if sig.Type != domain.SignalLong {
		t.Errorf("signal type = %q, want long", sig.Type)
	}
	if sig.Strength != 0.5 {
		t.Errorf("strength = %v, want 0.5", sig.Strength)
	}
	if sig.Timestamp != ts || sig.Strategy != "momo_a" {
		t.Errorf("signal = %+v", sig)
	}
}

func TestOpenCrossoverNoRepeatWhileAbove(t *testing.T) {
	s, err := NewOpenCrossover(crossoverConfig())
	if err != nil {
		t.Fatalf("NewOpenCrossover: %v", err)
	}

	// The short mean was already above the long mean yesterday; staying
	// above is not a fresh cross.
	signals, err := s.GenerateSignals(testBase, windowWithOpens(10, 10, 22, 24))
	if err != nil {
		t.Fatalf("GenerateSignals: %v", err)
	}
	if len(signals) != 0 {
		t.Errorf("got %d signals, want none while already above", len(signals))
	}
}

func TestOpenCrossoverNeedsWarmup(t *testing.T) {
	s, err := NewOpenCrossover(crossoverConfig())
	if err != nil {
		t.Fatalf("NewOpenCrossover: %v", err)
	}

	signals, err := s.GenerateSignals(testBase, windowWithOpens(10, 22))
	if err != nil {
		t.Fatalf("GenerateSignals: %v", err)
	}
	if len(signals) != 0 {
		t.Errorf("got %d signals with insufficient history, want none", len(signals))
	}
}

func TestNewOpenCrossoverValidation(t *testing.T) {
	cfg := crossoverConfig()
	cfg.Settings["short_window"] = 5
	cfg.Settings["long_window"] = 3
	if _, err := NewOpenCrossover(cfg); err == nil {
		t.Error("expected error for short window above long window, got nil")
	}

	cfg = crossoverConfig()
	cfg.Symbols = nil
	if _, err := NewOpenCrossover(cfg); err == nil {
		t.Error("expected error for missing symbols, got nil")
	}
}
