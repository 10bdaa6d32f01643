package numeric

// Welford is the extended-precision online mean/variance accumulator
// described in spec §4.4.1/§4.4.4: count, mean and M2 held in Quad so that
// differencing two snapshots taken far apart in count does not drive M2
// negative.
type Welford struct {
	Count Quad
	Mean  Quad
	M2    Quad
}

// Snapshot is the narrowed float64 view of a Welford accumulator, suitable
// for emission as metric points.
type Snapshot struct {
	Count float64
	Mean  float64
	M2    float64
}

// Insert folds a single observation into the accumulator using the
// numerically stable online update.
func (w *Welford) Insert(x float64) {
	n := NewQuad(x)
	oldMean := w.Mean
	w.Count = w.Count.Add(NewQuad(1))
	w.Mean = w.Mean.Add(n.Sub(oldMean).Div(w.Count))
	w.M2 = w.M2.Add(n.Sub(w.Mean).Mul(n.Sub(oldMean)))
}

// Merge combines two independently accumulated Welford states using Chan's
// parallel formula. A and B with a combined count of zero return A
// unchanged — merging two empty accumulators must not divide by zero, per
// the documented gap in the source formula.
func (a Welford) Merge(b Welford) Welford {
	total := a.Count.Add(b.Count)
	if total.IsZero() {
		return a
	}
	delta := b.Mean.Sub(a.Mean)
	mean := a.Mean.Add(delta.Mul(b.Count).Div(total))
	m2 := a.M2.Add(b.M2).Add(delta.Mul(delta).Mul(a.Count).Mul(b.Count).Div(total))
	return Welford{Count: total, Mean: mean, M2: m2}
}

// Extract narrows the accumulator to a float64 Snapshot for emission.
func (w Welford) Extract() Snapshot {
	return Snapshot{
		Count: w.Count.Float64(),
		Mean:  w.Mean.Float64(),
		M2:    w.M2.Float64(),
	}
}

// Windowed computes the differenced statistics of the spans that entered
// between two Welford snapshots taken at a window's oldest (first) and
// newest (current) bucket boundaries, per spec §4.4.4. When current.Count
// equals first.Count (the window saw nothing), count is exactly zero and
// mean/m2 are undefined; callers must check count before using them.
type Windowed struct {
	Count Quad
	Mean  Quad
	M2    Quad
}

// WindowStats differences two Welford snapshots (oldest "first" and newest
// "current" bucket of a window) into the statistics of just the
// observations that entered during the window.
func WindowStats(first, current Welford) Windowed {
	count := current.Count.Sub(first.Count)
	if count.IsZero() {
		return Windowed{Count: count}
	}
	meanDiff := current.Mean.Sub(first.Mean)
	mean := first.Mean.Add(meanDiff.Mul(current.Count).Div(count))
	m2 := current.M2.Sub(first.M2).Sub(
		meanDiff.Mul(meanDiff).Mul(current.Count).Mul(first.Count).Div(count),
	)
	return Windowed{Count: count, Mean: mean, M2: m2}
}

// Stddev returns the sample standard deviation of w, or 0 when the window
// holds fewer than two observations (division by zero degrees of freedom is
// guarded per spec §7's numerical edge cases).
func (w Windowed) Stddev() float64 {
	df := w.Count.Sub(NewQuad(1))
	if df.hi <= 0 {
		return 0
	}
	variance := w.M2.Div(df)
	if variance.hi < 0 {
		variance = Quad{}
	}
	return variance.Sqrt().Float64()
}

// ConfidenceInterval returns stddev * t_{count-1}(q) / count, the half-width
// used to bound the immediate/reference means in the anomaly score (spec
// §4.4.4). Returns 0 when count <= 1.
func (w Windowed) ConfidenceInterval(q float64) float64 {
	count := w.Count.Float64()
	if count <= 1 {
		return 0
	}
	df := count - 1
	stddev := w.Stddev()
	return stddev * StudentTInverseCDF(q, df) / count
}

// MeanFloat narrows the windowed mean to a float64.
func (w Windowed) MeanFloat() float64 {
	return w.Mean.Float64()
}

// LowerBound returns mean - ConfidenceInterval(q).
func (w Windowed) LowerBound(q float64) float64 {
	return w.MeanFloat() - w.ConfidenceInterval(q)
}

// UpperBound returns mean + ConfidenceInterval(q).
func (w Windowed) UpperBound(q float64) float64 {
	return w.MeanFloat() + w.ConfidenceInterval(q)
}
