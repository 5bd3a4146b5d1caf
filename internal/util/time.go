package util

import "time"

var eastern = mustLoadEastern()

func mustLoadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
	return loc
}

// ESTDate renders a unix timestamp as a human-readable New York local time.
// Output tables carry this column alongside the raw timestamp.
func ESTDate(ts int64) string {
	return time.Unix(ts, 0).In(eastern).Format("2006-01-02 15:04:05")
}

// MidnightET maps a timestamp to midnight of its trading day in
// America/New_York, the convention calendar anchors use.
func MidnightET(t time.Time) int64 {
	y, m, d := t.In(eastern).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, eastern).Unix()
}
