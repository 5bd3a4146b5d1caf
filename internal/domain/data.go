package domain

import "sort"

// Row is one tabular record for a symbol at one timestamp: column name to
// numeric value. Bar rows carry Open/High/Low/Close/Volume; news rows carry
// whatever numeric columns the provider produced.
type Row map[string]float64

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// SeriesKey addresses one time series: (asset class, data type, ticker).
// Using a flat composite key avoids the accidental-key-creation hazards of
// nested maps read with missing intermediate levels.
type SeriesKey struct {
	AssetClass AssetClass
	DataType   DataType
	Ticker     string
}

// SeriesKeyFor builds the series key for a symbol and data type.
func SeriesKeyFor(sym Symbol, dt DataType) SeriesKey {
	return SeriesKey{AssetClass: sym.AssetClass, DataType: dt, Ticker: sym.Ticker}
}

// Entry is one dated row within a window.
type Entry struct {
	Timestamp int64
	Row       Row
}

// Window is a bounded, ordered run of entries per series. Observed windows
// hold the trailing lookback; future windows hold the forward lookahead.
type Window map[SeriesKey][]Entry

// Append adds an entry at the end of the series and drops the oldest entries
// beyond max. max <= 0 means unbounded.
func (w Window) Append(key SeriesKey, e Entry, max int) {
	entries := append(w[key], e)
	if max > 0 && len(entries) > max {
		entries = entries[len(entries)-max:]
	}
	w[key] = entries
}

// Prepend adds an entry at the front of the series and drops the newest
// entries beyond max. max <= 0 means unbounded.
func (w Window) Prepend(key SeriesKey, e Entry, max int) {
	entries := append([]Entry{e}, w[key]...)
	if max > 0 && len(entries) > max {
		entries = entries[:max]
	}
	w[key] = entries
}

// Clone deep-copies the window, including every row.
func (w Window) Clone() Window {
	out := make(Window, len(w))
	for key, entries := range w {
		copied := make([]Entry, len(entries))
		for i, e := range entries {
			copied[i] = Entry{Timestamp: e.Timestamp, Row: e.Row.Clone()}
		}
		out[key] = copied
	}
	return out
}

// Slice holds every series row present at a single timestamp.
type Slice map[SeriesKey]Row

// DataSet is the fully loaded historical data for a run, indexed by
// timestamp. Timestamps are kept sorted ascending after Finalize.
type DataSet struct {
	byTime map[int64]Slice
	times  []int64
	sorted bool
}

// NewDataSet returns an empty data set.
func NewDataSet() *DataSet {
	return &DataSet{byTime: make(map[int64]Slice)}
}

// Put records a row for one series at one timestamp, replacing any existing
// row for the same series.
func (d *DataSet) Put(ts int64, key SeriesKey, row Row) {
	slice, ok := d.byTime[ts]
	if !ok {
		slice = make(Slice)
		d.byTime[ts] = slice
		d.times = append(d.times, ts)
		d.sorted = false
	}
	slice[key] = row
}

// Finalize sorts the timestamp index. Call once after loading completes.
func (d *DataSet) Finalize() {
	if !d.sorted {
		sort.Slice(d.times, func(i, j int) bool { return d.times[i] < d.times[j] })
		d.sorted = true
	}
}

// Times returns the sorted timestamps with data. The slice is shared; callers
// must not modify it.
func (d *DataSet) Times() []int64 {
	d.Finalize()
	return d.times
}

// At returns every series row at the given timestamp, or nil if the
// timestamp holds no data.
func (d *DataSet) At(ts int64) Slice {
	return d.byTime[ts]
}

// Len reports the number of distinct timestamps with data.
func (d *DataSet) Len() int { return len(d.times) }
