// Package accum holds the small per-bucket accumulators that windows and
// statistics processors close over: a bare lifetime/bucket counter, a
// count+sum pair, and a t-digest quantile sketch.
package accum

// Count is the accumulator backing Window[Count] in the source Count
// processor (spec §4.3): one bucket holds the number of spans seen during
// that bucket's interval.
type Count struct {
	N int64
}

// Insert records one occurrence.
func (c *Count) Insert() {
	c.N++
}

// Merge combines two bucket counts; used when differencing or summing
// across a window's bins.
func (c Count) Merge(o Count) Count {
	return Count{N: c.N + o.N}
}

// CountSum is the accumulator for MeanStddev's CountSum algorithm (spec
// §4.4.1) and for the lifetime count/sum fields of Summary and Histogram.
type CountSum struct {
	Count int64
	Sum   float64
}

// Insert folds one observation in.
func (cs *CountSum) Insert(x float64) {
	cs.Count++
	cs.Sum += x
}

// Merge combines two CountSum accumulators.
func (cs CountSum) Merge(o CountSum) CountSum {
	return CountSum{Count: cs.Count + o.Count, Sum: cs.Sum + o.Sum}
}
