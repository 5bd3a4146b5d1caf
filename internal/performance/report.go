package performance

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/montanaflynn/stats"

	"quantbt/internal/domain"
	"quantbt/internal/util"
)

// Daily bars annualize over the number of US trading days per year.
const AnnualizationFactor = 252.0

// RiskFreeRate is the annual rate subtracted in the Sharpe ratio.
const RiskFreeRate = 0.02

// Metrics summarizes one PnL series.
type Metrics struct {
	Total            float64
	AnnualizedReturn float64
	AnnualizedVol    float64
	Sharpe           float64
	MaxDrawdown      float64
}

// Report holds the end-of-run summary per symbol and per strategy.
type Report struct {
	BySymbol   map[domain.SymbolKey]Metrics
	ByStrategy map[string]Metrics
}

// BuildReport computes summary metrics from the accumulated attribution.
// Per-strategy metrics are computed on the strategy's PnL summed across its
// symbols.
func (m *Manager) BuildReport() (*Report, error) {
	report := &Report{
		BySymbol:   make(map[domain.SymbolKey]Metrics),
		ByStrategy: make(map[string]Metrics),
	}

	for _, key := range m.Symbols() {
		metrics, err := computeMetrics(dailyPnL(m.bySymbol[key]))
		if err != nil {
			return nil, fmt.Errorf("metrics for %s: %w", key.Ticker, err)
		}
		report.BySymbol[key] = metrics
	}

	for _, name := range m.Strategies() {
		var all []Row
		for _, rows := range m.byStrategy[name] {
			all = append(all, rows...)
		}
		metrics, err := computeMetrics(dailyPnL(all))
		if err != nil {
			return nil, fmt.Errorf("metrics for strategy %s: %w", name, err)
		}
		report.ByStrategy[name] = metrics
	}
	return report, nil
}

// aggregateByTimestamp sums the NewTrade and Positional columns of rows
// sharing a timestamp into a single row, ascending. A timestamp can carry
// both an opening trade and a marked position; every saved table holds one
// row per timestamp.
func aggregateByTimestamp(rows []Row) []Row {
	byTS := make(map[int64]Row, len(rows))
	for _, row := range rows {
		agg := byTS[row.Timestamp]
		agg.Timestamp = row.Timestamp
		agg.NewTrade += row.NewTrade
		agg.Positional += row.Positional
		byTS[row.Timestamp] = agg
	}
	out := make([]Row, 0, len(byTS))
	for _, row := range byTS {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// dailyPnL collapses attribution rows into one total PnL per timestamp,
// ascending.
func dailyPnL(rows []Row) []float64 {
	collapsed := aggregateByTimestamp(rows)
	out := make([]float64, len(collapsed))
	for i, row := range collapsed {
		out[i] = row.NewTrade + row.Positional
	}
	return out
}

func computeMetrics(pnl []float64) (Metrics, error) {
	if len(pnl) == 0 {
		return Metrics{}, nil
	}

	mean, err := stats.Mean(pnl)
	if err != nil {
		return Metrics{}, err
	}
	// Volatility is the population standard deviation of the daily PnL.
	sd, err := stats.StandardDeviationPopulation(pnl)
	if err != nil {
		return Metrics{}, err
	}

	total := 0.0
	for _, v := range pnl {
		total += v
	}

	annReturn := mean * AnnualizationFactor
	annVol := sd * math.Sqrt(AnnualizationFactor)
	sharpe := 0.0
	if annVol != 0 {
		sharpe = (annReturn - RiskFreeRate) / annVol
	}

	return Metrics{
		Total:            total,
		AnnualizedReturn: annReturn,
		AnnualizedVol:    annVol,
		Sharpe:           sharpe,
		MaxDrawdown:      maxDrawdown(pnl),
	}, nil
}

// maxDrawdown is the largest peak-to-trough drop of the cumulative PnL
// series, reported as a positive number.
func maxDrawdown(pnl []float64) float64 {
	var cum, peak, worst float64
	for _, v := range pnl {
		cum += v
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > worst {
			worst = dd
		}
	}
	return worst
}

// ---------------------------------------------------------------------------
// CSV output
// ---------------------------------------------------------------------------

// SaveCSVs writes the attribution tables under <dir>: one file per symbol at
// the portfolio level, one per (symbol, strategy), and one aggregated file
// per strategy. Each table is aggregated by timestamp before writing, so a
// file carries one row per timestamp. The human-readable time column exists
// only in the files; it plays no part in the metrics.
func (m *Manager) SaveCSVs(dir, runName string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating pnl dir: %w", err)
	}

	for _, key := range m.Symbols() {
		name := fmt.Sprintf("%s_%s_PnL.csv", key.Ticker, runName)
		if err := writeRows(filepath.Join(dir, name), m.bySymbol[key]); err != nil {
			return err
		}
	}

	for _, strategy := range m.Strategies() {
		rows := m.byStrategy[strategy]
		var all []Row
		for _, key := range sortedKeys(rows) {
			name := fmt.Sprintf("%s_%s_%s_PnL.csv", key.Ticker, strategy, runName)
			if err := writeRows(filepath.Join(dir, name), rows[key]); err != nil {
				return err
			}
			all = append(all, rows[key]...)
		}

		name := fmt.Sprintf("%s_%s_Aggregated_PnL.csv", strategy, runName)
		if err := writeRows(filepath.Join(dir, name), all); err != nil {
			return err
		}
	}
	return nil
}

func writeRows(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Timestamp", "ESTDateStr", "NewTrade", "Positional"}); err != nil {
		return err
	}
	for _, row := range aggregateByTimestamp(rows) {
		record := []string{
			strconv.FormatInt(row.Timestamp, 10),
			util.ESTDate(row.Timestamp),
			strconv.FormatFloat(row.NewTrade, 'f', -1, 64),
			strconv.FormatFloat(row.Positional, 'f', -1, 64),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
