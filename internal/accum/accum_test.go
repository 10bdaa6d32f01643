package accum

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountInsertAndMerge(t *testing.T) {
	var a, b Count
	a.Insert()
	a.Insert()
	b.Insert()
	merged := a.Merge(b)
	assert.Equal(t, int64(3), merged.N)
}

func TestCountSumInsertAndMerge(t *testing.T) {
	var a, b CountSum
	a.Insert(10)
	a.Insert(20)
	b.Insert(5)
	merged := a.Merge(b)
	assert.Equal(t, int64(3), merged.Count)
	assert.Equal(t, 35.0, merged.Sum)
}

func TestDigestQuantilesAreMonotonic(t *testing.T) {
	d := NewDigest(100)
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 5000; i++ {
		d.Insert(r.NormFloat64()*10 + 50)
	}
	var prev float64
	for i, q := range []float64{0.01, 0.1, 0.25, 0.5, 0.75, 0.9, 0.99} {
		v := d.Quantile(q)
		if i > 0 {
			assert.GreaterOrEqual(t, v, prev)
		}
		prev = v
	}
	assert.InDelta(t, 50, d.Quantile(0.5), 3)
}

func TestDigestCountAndSum(t *testing.T) {
	d := NewDigest(50)
	for _, x := range []float64{1, 2, 3, 4, 5} {
		d.Insert(x)
	}
	assert.Equal(t, 5.0, d.Count())
	assert.Equal(t, 15.0, d.Sum())
}

func TestDigestMergeCombinesCountAndSum(t *testing.T) {
	a := NewDigest(50)
	b := NewDigest(50)
	for _, x := range []float64{1, 2, 3} {
		a.Insert(x)
	}
	for _, x := range []float64{10, 20} {
		b.Insert(x)
	}
	merged := a.Merge(b)
	require.Equal(t, 5.0, merged.Count())
	assert.Equal(t, 36.0, merged.Sum())
}

func TestDigestSingleValue(t *testing.T) {
	d := NewDigest(100)
	d.Insert(42)
	assert.Equal(t, 42.0, d.Quantile(0.5))
	assert.Equal(t, 42.0, d.Quantile(0.01))
}
