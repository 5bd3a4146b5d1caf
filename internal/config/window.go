package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Window is a parsed time-window length such as "5_days" or "30_minutes".
type Window struct {
	Value int
	Unit  string
}

// ParseWindow parses a "<n>_days" or "<n>_minutes" window string.
func ParseWindow(s string) (Window, error) {
	idx := strings.LastIndex(s, "_")
	if idx <= 0 || idx == len(s)-1 {
		return Window{}, fmt.Errorf("invalid window %q: want <n>_days or <n>_minutes", s)
	}
	value, err := strconv.Atoi(s[:idx])
	if err != nil {
		return Window{}, fmt.Errorf("invalid window %q: %w", s, err)
	}
	unit := s[idx+1:]
	switch unit {
	case "days", "minutes":
	default:
		return Window{}, fmt.Errorf("invalid window unit %q: want days or minutes", unit)
	}
	if value < 0 {
		return Window{}, fmt.Errorf("invalid window %q: negative length", s)
	}
	return Window{Value: value, Unit: unit}, nil
}

// Seconds returns the window length in seconds.
func (w Window) Seconds() int64 {
	switch w.Unit {
	case "days":
		return int64(w.Value) * 86400
	case "minutes":
		return int64(w.Value) * 60
	default:
		return 0
	}
}

// Days returns the number of daily entries the window spans. Sub-day windows
// round down to zero.
func (w Window) Days() int {
	return int(w.Seconds() / 86400)
}

func (w Window) String() string {
	return fmt.Sprintf("%d_%s", w.Value, w.Unit)
}
