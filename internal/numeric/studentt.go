package numeric

import "math"

// StudentTInverseCDF approximates the inverse CDF (quantile function) of
// Student's t distribution with df degrees of freedom at probability p,
// using the Cornish-Fisher expansion around the normal quantile
// (Abramowitz & Stegun 26.7.5). No pack example imports a statistics
// library with a t-distribution quantile (the original used the `distrs`
// crate, which has no Go analogue in the retrieved pack or its transitive
// dependencies), so this is implemented directly against math.Erfinv.
//
// The expansion is accurate to several decimal places for df >= 5 and
// degrades gracefully (but remains finite and monotonic in p) for smaller
// df, which is sufficient for a confidence-interval half-width that is
// itself clamped at the call site.
func StudentTInverseCDF(p, df float64) float64 {
	if df <= 0 || math.IsNaN(p) {
		return math.NaN()
	}
	z := normalQuantile(p)
	if math.IsInf(df, 1) {
		return z
	}

	z2 := z * z
	z3 := z2 * z
	z5 := z3 * z2
	z7 := z5 * z2
	z9 := z7 * z2

	g1 := (z3 + z) / 4
	g2 := (5*z5 + 16*z3 + 3*z) / 96
	g3 := (3*z7 + 19*z5 + 17*z3 - 15*z) / 384
	g4 := (79*z9 + 776*z7 + 1482*z5 - 1920*z3 - 945*z) / 92160

	df2 := df * df
	df3 := df2 * df
	df4 := df3 * df

	return z + g1/df + g2/df2 + g3/df3 + g4/df4
}

// normalQuantile returns the standard normal quantile (inverse CDF) at p,
// via the identity Phi^-1(p) = sqrt(2) * erfinv(2p-1).
func normalQuantile(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	if p >= 1 {
		return math.Inf(1)
	}
	return math.Sqrt2 * math.Erfinv(2*p-1)
}
