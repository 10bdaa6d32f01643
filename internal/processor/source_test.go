package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnomalyAI/anomalyd/internal/span"
)

func TestSourceDurationEmitsSpanDuration(t *testing.T) {
	src := NewSource(0, SourceConfig{Kind: SourceDuration})
	s := &span.Span{StartTime: 0, Duration: 1234}

	var got []float64
	src.Insert(0, s, nil, nil, func(v float64) { got = append(got, v) })

	assert.Equal(t, []float64{1234}, got)
}

func TestSourceSelfDurationSubtractsChildren(t *testing.T) {
	src := NewSource(0, SourceConfig{Kind: SourceSelfDuration})
	parent := &span.Span{StartTime: 0, Duration: 100}
	a := &span.Span{StartTime: 10, Duration: 30}
	b := &span.Span{StartTime: 30, Duration: 40}

	var got float64
	src.Insert(0, parent, nil, []*span.Span{a, b}, func(v float64) { got = v })

	assert.Equal(t, float64(40), got)
}

func TestSourceTagExtractsNamedIntTag(t *testing.T) {
	src := NewSource(0, SourceConfig{Kind: SourceTag, Tag: "retries"})
	s := &span.Span{Tags: []span.Tag{{Key: "retries", Value: span.TagValue{Kind: span.TagInt64, Int64: 3}}}}

	var got []float64
	src.Insert(0, s, nil, nil, func(v float64) { got = append(got, v) })

	require.Len(t, got, 1)
	assert.Equal(t, float64(3), got[0])
}

func TestSourceTagOmitsObservationWhenTagAbsent(t *testing.T) {
	src := NewSource(0, SourceConfig{Kind: SourceTag, Tag: "retries"})
	s := &span.Span{}

	var got []float64
	src.Insert(0, s, nil, nil, func(v float64) { got = append(got, v) })

	assert.Empty(t, got)
}

func TestSourceTagExceptSubtractsMatchingChildren(t *testing.T) {
	src := NewSource(0, SourceConfig{Kind: SourceTagExcept, TagExceptTag: "busy_ns", TagExceptKey: "thread.id"})
	s := &span.Span{Tags: []span.Tag{
		{Key: "busy_ns", Value: span.TagValue{Kind: span.TagInt64, Int64: 1000}},
		{Key: "thread.id", Value: span.TagValue{Kind: span.TagInt64, Int64: 7}},
	}}
	sameThread := &span.Span{Tags: []span.Tag{
		{Key: "busy_ns", Value: span.TagValue{Kind: span.TagInt64, Int64: 300}},
		{Key: "thread.id", Value: span.TagValue{Kind: span.TagInt64, Int64: 7}},
	}}
	otherThread := &span.Span{Tags: []span.Tag{
		{Key: "busy_ns", Value: span.TagValue{Kind: span.TagInt64, Int64: 900}},
		{Key: "thread.id", Value: span.TagValue{Kind: span.TagInt64, Int64: 9}},
	}}
	noThreadTag := &span.Span{Tags: []span.Tag{
		{Key: "busy_ns", Value: span.TagValue{Kind: span.TagInt64, Int64: 50}},
	}}

	var got float64
	src.Insert(0, s, nil, []*span.Span{sameThread, otherThread, noThreadTag}, func(v float64) { got = v })

	// otherThread is excluded (different thread.id); sameThread and
	// noThreadTag (missing the key tag) both count against the total.
	assert.Equal(t, float64(1000-300-50), got)
}

func TestSourceRateEmitsOneOrZero(t *testing.T) {
	src := NewSource(0, SourceConfig{Kind: SourceRate, RateSelect: span.IsTrue{Key: span.Current(span.SpanTagKey("error"))}})
	errSpan := &span.Span{Tags: []span.Tag{{Key: "error", Value: span.TagValue{Kind: span.TagBool, Bool: true}}}}
	okSpan := &span.Span{}

	var gotErr, gotOK float64
	src.Insert(0, errSpan, nil, nil, func(v float64) { gotErr = v })
	src.Insert(0, okSpan, nil, nil, func(v float64) { gotOK = v })

	assert.Equal(t, float64(1), gotErr)
	assert.Equal(t, float64(0), gotOK)
}

const minute = int64(60_000_000)

func TestSourceCountEmitsRatePerCompletedBucketAndTracksLifetimeCount(t *testing.T) {
	cfg := SourceConfig{Kind: SourceCount, CountWindow: WindowConfig{BinWidth: minute, NumBins: 2}}
	src := NewSource(0, cfg)
	s := &span.Span{}

	for i := 0; i < 3; i++ {
		src.Insert(0, s, nil, nil, func(float64) {})
	}
	var rates []float64
	src.Insert(minute, s, nil, nil, func(v float64) { rates = append(rates, v) })

	require.Len(t, rates, 1)
	// Three spans counted in the first bucket, window total width is
	// two minutes: 3/2 = 1.5 per minute.
	assert.InDelta(t, 1.5, rates[0], 1e-9)
	assert.Equal(t, int64(4), src.count)
}

func TestSourceCountSaveLoadRoundTrips(t *testing.T) {
	cfg := SourceConfig{Kind: SourceCount, CountWindow: WindowConfig{BinWidth: minute, NumBins: 2}}
	src := NewSource(0, cfg)
	s := &span.Span{}
	src.Insert(0, s, nil, nil, func(float64) {})
	src.Insert(0, s, nil, nil, func(float64) {})

	saved := src.Save()
	require.NotNil(t, saved)

	restored := LoadSource(0, saved, cfg)
	assert.Equal(t, src.count, restored.count)
	assert.Equal(t, src.window.Bins(), restored.window.Bins())
}

func TestSourceUpdateDropsStateOnKindChange(t *testing.T) {
	src := NewSource(0, SourceConfig{Kind: SourceDuration})
	updated := src.Update(0, SourceConfig{Kind: SourceSelfDuration})
	assert.Equal(t, SourceSelfDuration, updated.config.Kind)
}

func TestSourceUpdateDropsCountStateOnIncompatibleWindow(t *testing.T) {
	cfg := SourceConfig{Kind: SourceCount, CountWindow: WindowConfig{BinWidth: minute, NumBins: 2}}
	src := NewSource(0, cfg)
	src.Insert(0, &span.Span{}, nil, nil, func(float64) {})

	newCfg := SourceConfig{Kind: SourceCount, CountWindow: WindowConfig{BinWidth: minute, NumBins: 5}}
	updated := src.Update(0, newCfg)
	assert.Equal(t, int64(0), updated.count)
}
