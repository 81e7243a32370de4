package domain

import "time"

// PricePoint is one observation of a single asset.
type PricePoint struct {
	Time  time.Time `json:"ts"`
	Price float64   `json:"price"`
}

// Bar is one aligned observation of both legs, as supplied by the host.
type Bar struct {
	Time   time.Time `json:"ts"`
	PriceX float64   `json:"px"`
	PriceY float64   `json:"py"`
}

// PairSeries is an immutable, aligned snapshot of both legs over a lookback window.
// Construct it with NewPairSeries or PairWindow.Snapshot; never mutate the slices.
type PairSeries struct {
	PairID string
	X      []PricePoint
	Y      []PricePoint
}

// NewPairSeries checks that both legs are aligned and returns the snapshot.
// Both legs must have the same length, identical timestamps at every index and
// strictly increasing time.
func NewPairSeries(pairID string, x, y []PricePoint) (PairSeries, error) {
	if len(x) != len(y) {
		idx := min(len(x), len(y))
		var tx, ty time.Time
		if idx < len(x) {
			tx = x[idx].Time
		}
		if idx < len(y) {
			ty = y[idx].Time
		}
		return PairSeries{}, &MisalignedSeriesError{Index: idx, TimeX: tx, TimeY: ty, Reason: "length mismatch"}
	}

	for i := range x {
		if !x[i].Time.Equal(y[i].Time) {
			return PairSeries{}, &MisalignedSeriesError{Index: i, TimeX: x[i].Time, TimeY: y[i].Time, Reason: "timestamp mismatch"}
		}
		if i > 0 && !x[i].Time.After(x[i-1].Time) {
			return PairSeries{}, &MisalignedSeriesError{Index: i, TimeX: x[i].Time, TimeY: y[i].Time, Reason: "timestamps not increasing"}
		}
	}

	return PairSeries{PairID: pairID, X: x, Y: y}, nil
}

// Len returns the number of aligned points.
func (p PairSeries) Len() int {
	return len(p.X)
}

// Prices returns copies of the raw price columns (x, y).
func (p PairSeries) Prices() ([]float64, []float64) {
	xs := make([]float64, len(p.X))
	ys := make([]float64, len(p.Y))
	for i := range p.X {
		xs[i] = p.X[i].Price
		ys[i] = p.Y[i].Price
	}
	return xs, ys
}

// Last returns the newest aligned bar.
func (p PairSeries) Last() (Bar, bool) {
	n := len(p.X)
	if n == 0 {
		return Bar{}, false
	}
	return Bar{Time: p.X[n-1].Time, PriceX: p.X[n-1].Price, PriceY: p.Y[n-1].Price}, true
}

// Bars returns the series as aligned bars, oldest first.
func (p PairSeries) Bars() []Bar {
	bars := make([]Bar, len(p.X))
	for i := range p.X {
		bars[i] = Bar{Time: p.X[i].Time, PriceX: p.X[i].Price, PriceY: p.Y[i].Price}
	}
	return bars
}

// Tail returns a snapshot of the newest n points (or all if n exceeds the length).
func (p PairSeries) Tail(n int) PairSeries {
	if n <= 0 || n >= len(p.X) {
		return p
	}
	return PairSeries{PairID: p.PairID, X: p.X[len(p.X)-n:], Y: p.Y[len(p.Y)-n:]}
}

// Slice returns the points in [from, to) sharing the backing arrays.
func (p PairSeries) Slice(from, to int) PairSeries {
	from = max(from, 0)
	to = min(to, len(p.X))
	if from >= to {
		return PairSeries{PairID: p.PairID}
	}
	return PairSeries{PairID: p.PairID, X: p.X[from:to], Y: p.Y[from:to]}
}

// PairWindow is the sliding buffer a pair accumulates bars in.
// It is owned by a single strategy instance and is not safe for concurrent use.
type PairWindow struct {
	pairID string
	size   int
	x      []PricePoint
	y      []PricePoint
}

// NewPairWindow creates a window holding at most size bars.
func NewPairWindow(pairID string, size int) *PairWindow {
	if size < 1 {
		size = 1
	}
	return &PairWindow{
		pairID: pairID,
		size:   size,
		x:      make([]PricePoint, 0, size),
		y:      make([]PricePoint, 0, size),
	}
}

// Push appends a bar, dropping the oldest one when full.
// An exact copy of the newest bar is redelivery and returns ErrDuplicateBar
// without changing the window. Any other bar that does not move time forward
// breaks alignment and is rejected.
func (w *PairWindow) Push(bar Bar) error {
	n := len(w.x)
	if n > 0 && bar.Time.Equal(w.x[n-1].Time) && bar.PriceX == w.x[n-1].Price && bar.PriceY == w.y[n-1].Price {
		return ErrDuplicateBar
	}
	if n > 0 && !bar.Time.After(w.x[n-1].Time) {
		return &MisalignedSeriesError{
			Index:  n,
			TimeX:  w.x[n-1].Time,
			TimeY:  bar.Time,
			Reason: "bar does not advance time",
		}
	}

	if len(w.x) == w.size {
		// Shift in place to keep the backing array bounded
		copy(w.x, w.x[1:])
		copy(w.y, w.y[1:])
		w.x = w.x[:w.size-1]
		w.y = w.y[:w.size-1]
	}
	w.x = append(w.x, PricePoint{Time: bar.Time, Price: bar.PriceX})
	w.y = append(w.y, PricePoint{Time: bar.Time, Price: bar.PriceY})
	return nil
}

// Len returns the number of bars currently held.
func (w *PairWindow) Len() int {
	return len(w.x)
}

// Full reports whether the window has reached its configured size.
func (w *PairWindow) Full() bool {
	return len(w.x) == w.size
}

// Snapshot returns an immutable copy of the current window.
func (w *PairWindow) Snapshot() PairSeries {
	x := make([]PricePoint, len(w.x))
	y := make([]PricePoint, len(w.y))
	copy(x, w.x)
	copy(y, w.y)
	return PairSeries{PairID: w.pairID, X: x, Y: y}
}

// Reset drops every buffered bar.
func (w *PairWindow) Reset() {
	w.x = w.x[:0]
	w.y = w.y[:0]
}
