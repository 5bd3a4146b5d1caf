// Package calendar provides the trading calendar: an ordered, uniformly
// spaced sequence of Unix timestamps for a named market schedule, with
// binary-search lookup and range queries.
package calendar

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Direction selects which neighbour Nearest should return.
type Direction string

const (
	Before  Direction = "before"
	After   Direction = "after"
	Nearest Direction = "nearest"
)

var (
	// ErrNoBefore is returned when no calendar timestamp precedes the query.
	ErrNoBefore = errors.New("no timestamp before the given timestamp")
	// ErrNoAfter is returned when no calendar timestamp follows the query.
	ErrNoAfter = errors.New("no timestamp after the given timestamp")
	// ErrNotFound is returned by Remove for a timestamp not in the calendar.
	ErrNotFound = errors.New("timestamp not found in calendar")
)

// TradingCalendar owns a sorted, duplicate-free sequence of trading
// timestamps at daily frequency.
type TradingCalendar struct {
	name       string
	timestamps []int64
}

// New builds a calendar from the given timestamps. The input is copied and
// sorted; the caller keeps ownership of its slice.
func New(name string, timestamps []int64) *TradingCalendar {
	ts := make([]int64, len(timestamps))
	copy(ts, timestamps)
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
	return &TradingCalendar{name: name, timestamps: ts}
}

// Name returns the market schedule name the calendar was built from.
func (c *TradingCalendar) Name() string { return c.name }

// Timestamps returns the sorted timestamps. The slice is shared; callers
// must not modify it.
func (c *TradingCalendar) Timestamps() []int64 { return c.timestamps }

// Len reports the number of trading timestamps.
func (c *TradingCalendar) Len() int { return len(c.timestamps) }

// bisectLeft returns the leftmost insertion point for ts.
func (c *TradingCalendar) bisectLeft(ts int64) int {
	return sort.Search(len(c.timestamps), func(i int) bool { return c.timestamps[i] >= ts })
}

// bisectRight returns the rightmost insertion point for ts.
func (c *TradingCalendar) bisectRight(ts int64) int {
	return sort.Search(len(c.timestamps), func(i int) bool { return c.timestamps[i] > ts })
}

// Nearest returns the calendar timestamp closest to ts in the given
// direction. Before requires a strictly earlier member and After a member at
// or later than ts; Nearest resolves an exact midpoint to the earlier
// member. An unknown direction is an error.
func (c *TradingCalendar) Nearest(ts int64, dir Direction) (int64, error) {
	idx := c.bisectLeft(ts)
	switch dir {
	case Before:
		if idx == 0 {
			return 0, ErrNoBefore
		}
		return c.timestamps[idx-1], nil
	case After:
		if idx == len(c.timestamps) {
			return 0, ErrNoAfter
		}
		return c.timestamps[idx], nil
	case Nearest:
		if idx == 0 {
			return c.timestamps[0], nil
		}
		if idx == len(c.timestamps) {
			return c.timestamps[len(c.timestamps)-1], nil
		}
		before := c.timestamps[idx-1]
		after := c.timestamps[idx]
		if after-ts < ts-before {
			return after, nil
		}
		return before, nil
	default:
		return 0, fmt.Errorf("invalid direction %q: use %q, %q, or %q", dir, Before, After, Nearest)
	}
}

// RangeSearch returns every calendar timestamp in [start, end] inclusive.
func (c *TradingCalendar) RangeSearch(start, end int64) []int64 {
	lo := c.bisectLeft(start)
	hi := c.bisectRight(end)
	out := make([]int64, hi-lo)
	copy(out, c.timestamps[lo:hi])
	return out
}

// Contains reports whether ts is a calendar timestamp.
func (c *TradingCalendar) Contains(ts int64) bool {
	idx := c.bisectLeft(ts)
	return idx < len(c.timestamps) && c.timestamps[idx] == ts
}

// Add inserts ts into the calendar. Insertion is only allowed in the
// interior, and only if the gap to both neighbours is equal, so the calendar
// stays uniformly sampled.
func (c *TradingCalendar) Add(ts int64) error {
	idx := c.bisectLeft(ts)
	if idx == 0 || idx == len(c.timestamps) {
		return errors.New("adding a timestamp at the edges of the calendar is not supported")
	}
	if c.timestamps[idx]-ts != ts-c.timestamps[idx-1] {
		return errors.New("adding this timestamp would violate uniform sampling")
	}
	c.timestamps = append(c.timestamps, 0)
	copy(c.timestamps[idx+1:], c.timestamps[idx:])
	c.timestamps[idx] = ts
	return nil
}

// Remove deletes ts from the calendar. The timestamp must be an exact
// member.
func (c *TradingCalendar) Remove(ts int64) error {
	idx := c.bisectLeft(ts)
	if idx >= len(c.timestamps) || c.timestamps[idx] != ts {
		return ErrNotFound
	}
	c.timestamps = append(c.timestamps[:idx], c.timestamps[idx+1:]...)
	return nil
}

// ParseDelta parses an "HH:MM:SS" offset string.
func ParseDelta(s string) (time.Duration, error) {
	var hours, minutes, seconds int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &hours, &minutes, &seconds); err != nil {
		return 0, fmt.Errorf("parsing delta-to-close %q: %w", s, err)
	}
	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second, nil
}
