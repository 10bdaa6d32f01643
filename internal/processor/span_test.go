package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnomalyAI/anomalyd/internal/metrics"
	"github.com/AnomalyAI/anomalyd/internal/span"
)

func testSpanConfig() SpanConfig {
	return SpanConfig{
		Key: span.KeySet{span.Current(span.OperationName())},
		Metrics: map[string]MetricConfig{
			"duration": {
				Source: SourceConfig{Kind: SourceDuration},
				Stats:  StatsConfig{MeanStddev: &MeanStddevConfig{Algorithm: AlgorithmCountSum}},
			},
		},
	}
}

func TestSpanProcessorInsertCreatesGroupPerKey(t *testing.T) {
	p := NewSpanProcessor(testSpanConfig())
	p.Insert(0, &span.Span{OperationName: "get"}, nil, nil)
	p.Insert(0, &span.Span{OperationName: "post"}, nil, nil)
	p.Insert(0, &span.Span{OperationName: "get"}, nil, nil)

	assert.Len(t, p.groups, 2)
}

func TestSpanProcessorInsertRefreshesLastSeenOnExistingGroup(t *testing.T) {
	p := NewSpanProcessor(testSpanConfig())
	p.Insert(0, &span.Span{OperationName: "get"}, nil, nil)
	p.Insert(100, &span.Span{OperationName: "get"}, nil, nil)

	require.Len(t, p.groups, 1)
	for _, g := range p.groups {
		assert.Equal(t, int64(100), g.lastSeen)
	}
}

func TestSpanProcessorCleanupDropsStaleGroups(t *testing.T) {
	p := NewSpanProcessor(testSpanConfig())
	p.Insert(0, &span.Span{OperationName: "get"}, nil, nil)
	p.Insert(1000, &span.Span{OperationName: "post"}, nil, nil)

	p.Cleanup(500)

	require.Len(t, p.groups, 1)
	for _, g := range p.groups {
		assert.Equal(t, []span.KeyValue{{Present: true, Value: span.TagValue{Kind: span.TagString, String: "post"}}}, g.keyValues)
	}
}

func TestSpanProcessorUpdateDropsAllGroupsOnKeySetChange(t *testing.T) {
	p := NewSpanProcessor(testSpanConfig())
	p.Insert(0, &span.Span{OperationName: "get"}, nil, nil)

	newCfg := testSpanConfig()
	newCfg.Key = span.KeySet{span.Current(span.ServiceName())}
	updated := p.Update(0, newCfg)

	assert.Empty(t, updated.groups)
}

func TestSpanProcessorUpdatePreservesGroupsOnUnchangedKeySet(t *testing.T) {
	p := NewSpanProcessor(testSpanConfig())
	p.Insert(0, &span.Span{OperationName: "get"}, nil, nil)

	updated := p.Update(0, testSpanConfig())
	assert.Len(t, updated.groups, 1)
}

func TestSpanProcessorSampleEmitsOperationNameLabel(t *testing.T) {
	p := NewSpanProcessor(testSpanConfig())
	p.Insert(0, &span.Span{OperationName: "get", Duration: 10}, nil, nil)

	var gotLabel string
	p.Sample("http", func(pt metrics.Point) {
		if v, ok := pt.Labels["operation_name"]; ok {
			gotLabel = v
		}
	})
	assert.Equal(t, "get", gotLabel)
}

func TestSpanProcessorSaveLoadRoundTrips(t *testing.T) {
	cfg := testSpanConfig()
	p := NewSpanProcessor(cfg)
	p.Insert(0, &span.Span{OperationName: "get", Duration: 10}, nil, nil)

	saved := p.Save()
	restored := LoadSpanProcessor(0, saved, cfg)

	var before, after []metrics.Point
	p.Sample("http", func(pt metrics.Point) { before = append(before, pt) })
	restored.Sample("http", func(pt metrics.Point) { after = append(after, pt) })
	assert.ElementsMatch(t, before, after)
}
