package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AnomalyAI/anomalyd/internal/config"
	"github.com/AnomalyAI/anomalyd/internal/metrics"
	"github.com/AnomalyAI/anomalyd/internal/metricsink"
	"github.com/AnomalyAI/anomalyd/internal/opensearch"
	"github.com/AnomalyAI/anomalyd/internal/processor"
	"github.com/AnomalyAI/anomalyd/internal/span"
	"github.com/AnomalyAI/anomalyd/internal/state"
	"github.com/AnomalyAI/anomalyd/pkg/logging"
)

// cleanupHorizon mirrors the original engine's 30-day group retention
// (spec §6 "Cleanup").
const cleanupHorizon = 30 * 24 * time.Hour

// catchUpSuppress bounds how far behind "now" a sample may be and still
// get emitted: after a long outage, replaying every missed interval
// floods the metric sink with stale points nobody can act on, so the
// orchestrator silently skips emission (while still advancing the
// cursor) for anything more than an hour old (spec §5).
const catchUpSuppress = time.Hour

// Deps are the external collaborators an Orchestrator drives. Store,
// OpenSearch and Sink may be nil: a nil Store skips loading and saving
// state, a nil OpenSearch fetches no traces, and a nil Sink discards the
// sampled points. Watcher and Tracer are optional.
type Deps struct {
	OpenSearch        *opensearch.Client
	Sink              *metricsink.Sink
	Store             *state.Store
	Watcher           *config.Watcher
	Log               *logging.Logger
	Metrics           *TickMetrics
	Tracer            trace.Tracer
	MetricsPerRequest int
}

// Orchestrator owns the processor tree and drives it on a timer,
// mirroring the original engine's spawned processor task (spec §5).
// mu guards cfg/traceCfg/tree/from: they're read and written both by the
// tick goroutine in Run and, if wired to internal/webapi, by an HTTP
// handler goroutine serving config GET/POST.
type Orchestrator struct {
	deps Deps

	mu       sync.Mutex
	cfg      config.Config
	traceCfg processor.TraceConfig
	tree     *processor.Trace
	from     int64 // microseconds since epoch, inclusive lower bound of the next tick's window
}

// New builds an Orchestrator, loading persisted state if present and
// falling back to config defaults otherwise (spec §6 "Startup").
func New(cfg config.Config, deps Deps) (*Orchestrator, error) {
	if deps.Metrics == nil {
		deps.Metrics = NewTickMetrics(nil)
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("anomalyd/orchestrator")
	}

	traceCfg, err := processor.BuildTraceConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build trace config: %w", err)
	}

	maxHistory, err := time.ParseDuration(cfg.MaxHistory)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: max_history %q: %w", cfg.MaxHistory, err)
	}

	now := time.Now().UnixMicro()
	from := now - maxHistory.Microseconds()

	o := &Orchestrator{deps: deps, cfg: cfg, traceCfg: traceCfg}

	if deps.Store != nil {
		snap, ok, err := deps.Store.Load(now)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: load state: %w", err)
		}
		if ok {
			if snap.Last > from {
				from = snap.Last
			}
			priorTraceCfg, err := processor.BuildTraceConfig(snap.Config)
			if err != nil {
				return nil, fmt.Errorf("orchestrator: rebuild persisted trace config: %w", err)
			}
			loaded := processor.LoadTrace(from, snap.Trace, priorTraceCfg)
			o.tree = loaded.Update(from, traceCfg)
		}
	}
	if o.tree == nil {
		o.tree = processor.NewTrace(traceCfg)
	}
	o.from = from
	return o, nil
}

// Run ticks every query_interval until ctx is cancelled, reloading
// config from deps.Watcher (if set) between ticks.
func (o *Orchestrator) Run(ctx context.Context) error {
	interval, err := time.ParseDuration(o.cfg.QueryInterval)
	if err != nil {
		return fmt.Errorf("orchestrator: query_interval %q: %w", o.cfg.QueryInterval, err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var changes <-chan config.Config
	if o.deps.Watcher != nil {
		changes = o.deps.Watcher.Changes()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.tick(ctx)
		case newCfg, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if err := o.ApplyConfig(newCfg); err != nil {
				o.logf("error", "apply config: %v", err)
				continue
			}
			if d, err := time.ParseDuration(o.Current().QueryInterval); err == nil {
				ticker.Reset(d)
			}
		}
	}
}

// Current returns the orchestrator's live configuration, safe to call
// concurrently with Run (spec's config GET endpoint).
func (o *Orchestrator) Current() config.Config {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg
}

// ApplyConfig reconciles the processor tree against a new config and
// persists the result immediately, so a crash between config changes
// doesn't lose the update (spec §4.4 "Update"). Safe to call
// concurrently with Run (spec's config POST endpoint).
func (o *Orchestrator) ApplyConfig(cfg config.Config) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.applyConfigLocked(cfg)
}

func (o *Orchestrator) applyConfigLocked(cfg config.Config) error {
	traceCfg, err := processor.BuildTraceConfig(cfg)
	if err != nil {
		return err
	}
	o.cfg = cfg
	o.traceCfg = traceCfg
	o.tree = o.tree.Update(o.from, traceCfg)
	return o.saveStateLocked(o.from)
}

// tick runs one fetch/sample/insert/cleanup cycle from o.from up to
// now-delay, matching the original engine's process_traces (spec §5).
func (o *Orchestrator) tick(ctx context.Context) {
	start := time.Now()
	tickID := uuid.NewString()

	ctx, otelSpan := o.deps.Tracer.Start(ctx, "orchestrator.tick", trace.WithAttributes(
		attribute.String("tick_id", tickID),
	))
	defer otelSpan.End()

	outcome := "ok"
	if err := o.runTick(ctx); err != nil {
		outcome = "error"
		otelSpan.RecordError(err)
		otelSpan.SetStatus(codes.Error, err.Error())
		o.logf("error", "tick %s failed: %v", tickID, err)
	}

	o.deps.Metrics.TicksTotal.WithLabelValues(outcome).Inc()
	o.deps.Metrics.TickDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func (o *Orchestrator) runTick(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	delay, err := time.ParseDuration(o.cfg.Delay)
	if err != nil {
		return fmt.Errorf("delay %q: %w", o.cfg.Delay, err)
	}
	sampleInterval, err := time.ParseDuration(o.cfg.QueryInterval)
	if err != nil {
		return fmt.Errorf("query_interval %q: %w", o.cfg.QueryInterval, err)
	}

	now := time.Now().UnixMicro()
	to := now - delay.Microseconds()
	if to <= o.from {
		return nil
	}

	o.logf("info", "processing traces from %d to %d", o.from, to)

	nextSample := o.from + sampleInterval.Microseconds()
	minTimestamp := now - catchUpSuppress.Microseconds()
	var buffer []metrics.Point
	var tracesIngested int

	flush := func() error {
		if len(buffer) == 0 {
			return nil
		}
		if o.deps.Sink != nil {
			if err := o.deps.Sink.Push(ctx, buffer); err != nil {
				return fmt.Errorf("push metrics: %w", err)
			}
		}
		o.deps.Metrics.SamplesEmitted.Add(float64(len(buffer)))
		buffer = buffer[:0]
		return nil
	}

	sampleUpTo := func(t int64) error {
		for nextSample < t {
			if nextSample >= minTimestamp {
				o.tree.Sample(func(p metrics.Point) { buffer = append(buffer, p) })
			}
			nextSample += sampleInterval.Microseconds()

			if o.perRequest() > 0 && len(buffer) > o.perRequest() {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if o.deps.OpenSearch != nil {
		err := o.deps.OpenSearch.ForTraces(ctx, o.from, to, func(root *span.Span, spans []*span.Span) error {
			if err := sampleUpTo(root.StartTime); err != nil {
				return err
			}
			o.tree.Insert(root.StartTime, &span.Trace{TraceID: root.TraceID, Spans: spans})
			tracesIngested++
			return nil
		})
		if err != nil {
			return fmt.Errorf("fetch traces: %w", err)
		}
	}

	if err := sampleUpTo(to); err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}

	o.tree.Cleanup(to - cleanupHorizon.Microseconds())
	o.deps.Metrics.TracesIngested.Add(float64(tracesIngested))
	o.deps.Metrics.GroupsActive.Set(float64(o.tree.GroupCount()))

	o.from = to
	if err := o.saveStateLocked(to); err != nil {
		o.logf("warn", "save state: %v", err)
	}
	return nil
}

func (o *Orchestrator) perRequest() int {
	return o.deps.MetricsPerRequest
}

// saveStateLocked persists a snapshot; callers must hold o.mu.
func (o *Orchestrator) saveStateLocked(last int64) error {
	if o.deps.Store == nil {
		return nil
	}
	return o.deps.Store.Save(state.Snapshot{
		Config: o.cfg,
		Last:   last,
		Trace:  o.tree.Save(),
	})
}

func (o *Orchestrator) logf(level, format string, args ...any) {
	if o.deps.Log == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	switch level {
	case "error":
		o.deps.Log.Error(msg)
	case "warn":
		o.deps.Log.Warn(msg)
	default:
		o.deps.Log.Info(msg)
	}
}
