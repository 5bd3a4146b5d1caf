package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
)

// ScheduleSource lists the trading days of a market schedule. Days are
// returned as bare dates (midnight, no location); Build localizes them.
type ScheduleSource interface {
	TradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error)
}

// Compile-time interface checks.
var _ ScheduleSource = (*AlpacaScheduleSource)(nil)
var _ ScheduleSource = (*WeekdaySource)(nil)

// AlpacaScheduleSource reads the trading-day schedule from the Alpaca
// trading calendar API.
type AlpacaScheduleSource struct {
	client *alpaca.Client
}

// NewAlpacaScheduleSource creates a schedule source using the given Alpaca
// credentials.
func NewAlpacaScheduleSource(apiKey, apiSecret, baseURL string) *AlpacaScheduleSource {
	return &AlpacaScheduleSource{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
			BaseURL:   baseURL,
		}),
	}
}

// TradingDays returns the market's trading days in [start, end].
func (s *AlpacaScheduleSource) TradingDays(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	days, err := s.client.GetCalendar(alpaca.GetCalendarRequest{
		Start: start,
		End:   end,
	})
	if err != nil {
		return nil, fmt.Errorf("GetCalendar: %w", err)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("no trading days returned for %s..%s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	out := make([]time.Time, 0, len(days))
	for _, day := range days {
		d, err := time.Parse("2006-01-02", day.Date)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// WeekdaySource generates Monday through Friday as trading days. It ignores
// market holidays and exists for offline runs and tests.
type WeekdaySource struct{}

// TradingDays returns every weekday in [start, end].
func (WeekdaySource) TradingDays(_ context.Context, start, end time.Time) ([]time.Time, error) {
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
		default:
			out = append(out, time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC))
		}
	}
	return out, nil
}

// Build derives a TradingCalendar from a schedule source. Each trading day
// is anchored at midnight America/New_York, shifted by deltaToClose, and
// converted to a Unix timestamp (UTC).
func Build(ctx context.Context, src ScheduleSource, name string, start, end time.Time, deltaToClose time.Duration) (*TradingCalendar, error) {
	days, err := src.TradingDays(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("listing trading days: %w", err)
	}

	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("loading ET timezone: %w", err)
	}

	timestamps := make([]int64, 0, len(days))
	for _, day := range days {
		anchored := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, et)
		timestamps = append(timestamps, anchored.Add(deltaToClose).Unix())
	}
	return New(name, timestamps), nil
}
