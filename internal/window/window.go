// Package window implements the generic time-bucketed ring buffer that
// backs every sliding-window aggregation in the processor tree: source
// Count windows, anomaly-score immediate/reference windows, and Summary's
// per-bucket digests.
package window

// Window is a ring of numBins contiguous, equal-width time buckets over an
// element of type T. ring[i] is always the current (newest) bucket;
// ring[(i+1) mod len(ring)] is the oldest. start is kept truncated to a
// multiple of binWidth; timestamps are microseconds since the epoch,
// matching span.Span's Start/Duration fields.
type Window[T any] struct {
	i        int
	start    int64
	binWidth int64
	ring     []T
}

// New creates a Window whose current bucket starts at the truncation of
// start to a multiple of binWidth, with every bucket (including bootstrap
// history that was never actually observed) initialised via init. binWidth
// and numBins must be positive; violating that is a programming invariant,
// not a runtime condition a caller can recover from, so New panics.
func New[T any](start, binWidth int64, numBins int, init func(binStart int64) T) *Window[T] {
	if binWidth <= 0 {
		panic("window: non-positive bin width")
	}
	if numBins <= 0 {
		panic("window: non-positive bin count")
	}
	truncStart := truncate(start, binWidth)
	ring := make([]T, numBins)
	for k := range ring {
		ring[k] = init(truncStart)
	}
	return &Window[T]{start: truncStart, binWidth: binWidth, ring: ring}
}

// Restore rebuilds a Window from a previously saved Bins() snapshot
// (oldest-to-newest) plus the start time of the newest (last) bin. It is
// the inverse of New+Bins, used when loading persisted processor state.
func Restore[T any](start, binWidth int64, bins []T) *Window[T] {
	if binWidth <= 0 {
		panic("window: non-positive bin width")
	}
	if len(bins) == 0 {
		panic("window: cannot restore from an empty bin slice")
	}
	ring := make([]T, len(bins))
	copy(ring, bins)
	return &Window[T]{i: len(ring) - 1, start: truncate(start, binWidth), binWidth: binWidth, ring: ring}
}

func truncate(t, binWidth int64) int64 {
	r := t % binWidth
	if r < 0 {
		r += binWidth
	}
	return t - r
}

// Start returns the start time of the current bucket.
func (w *Window[T]) Start() int64 { return w.start }

// BinWidth returns the configured bucket width.
func (w *Window[T]) BinWidth() int64 { return w.binWidth }

// NumBins returns the ring's bucket count.
func (w *Window[T]) NumBins() int { return len(w.ring) }

// Current returns the current (newest) bucket's value.
func (w *Window[T]) Current() T { return w.ring[w.i] }

// CurrentPtr returns a pointer to the current (newest) bucket, for
// in-place mutation (e.g. folding an observation into a running
// accumulator without a full read-modify-write of the slice).
func (w *Window[T]) CurrentPtr() *T { return &w.ring[w.i] }

// First returns the oldest bucket's value.
func (w *Window[T]) First() T { return w.ring[w.oldestIndex()] }

func (w *Window[T]) oldestIndex() int { return (w.i + 1) % len(w.ring) }

// Bins returns the ring's contents in oldest-to-newest order.
func (w *Window[T]) Bins() []T {
	n := len(w.ring)
	out := make([]T, n)
	start := w.oldestIndex()
	for k := 0; k < n; k++ {
		out[k] = w.ring[(start+k)%n]
	}
	return out
}

// CompatibleWith reports whether a config using this bin width and bucket
// count could reuse the window's existing state as-is.
func (w *Window[T]) CompatibleWith(binWidth int64, numBins int) bool {
	return w.binWidth == binWidth && len(w.ring) == numBins
}

// AdvanceInit truncates t to a bucket boundary and, for every fully elapsed
// bucket between the window's current start and that boundary, rotates the
// ring forward and reinitialises the new current bucket via init(newStart).
// A regressed t (out-of-order delivery) makes this a no-op.
func (w *Window[T]) AdvanceInit(t int64, init func(binStart int64) T) {
	tTrunc := truncate(t, w.binWidth)
	for w.start+w.binWidth <= tTrunc {
		newStart := w.start + w.binWidth
		w.i = (w.i + 1) % len(w.ring)
		w.ring[w.i] = init(newStart)
		w.start = newStart
	}
}

// AdvanceWith behaves like AdvanceInit but additionally invokes output once
// per bucket advanced, capturing it against the about-to-be-replaced bucket
// before the rotation so the caller observes the just-completed bucket.
// It is a package-level function, not a method, because it needs a second
// type parameter (the output type) distinct from the window's element type.
func AdvanceWith[T, O any](w *Window[T], t int64, init func(binStart int64) T, output func(*Window[T]) O) []O {
	var results []O
	tTrunc := truncate(t, w.binWidth)
	for w.start+w.binWidth <= tTrunc {
		results = append(results, output(w))
		newStart := w.start + w.binWidth
		w.i = (w.i + 1) % len(w.ring)
		w.ring[w.i] = init(newStart)
		w.start = newStart
	}
	return results
}
