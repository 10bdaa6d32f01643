// Package metricsink batches the points the processor tree produces and
// pushes them to a Prometheus-compatible remote endpoint.
package metricsink

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/AnomalyAI/anomalyd/internal/metrics"
	"github.com/AnomalyAI/anomalyd/pkg/logging"
)

// Config configures a Sink.
type Config struct {
	// URL is the remote-write endpoint (e.g. Prometheus Pushgateway, or a
	// remote-write-compatible receiver fronted by one).
	URL string
	// Job is the Pushgateway job label every pushed batch carries.
	Job string
	// Tenant, when non-empty, is sent as the "X-Scope-OrgID" header on
	// every push — the multi-tenant Prometheus remote-write convention.
	Tenant string
	// MetricsPerRequest caps how many distinct series are pushed in a
	// single request; larger batches are split. Zero means unbounded.
	MetricsPerRequest int
}

// Sink pushes batches of metrics.Point to a remote endpoint.
type Sink struct {
	cfg    Config
	client *http.Client
	log    *logging.Logger
}

// New constructs a Sink. client may be nil to use http.DefaultClient.
func New(cfg Config, client *http.Client, log *logging.Logger) *Sink {
	if client == nil {
		client = http.DefaultClient
	}
	return &Sink{cfg: cfg, client: client, log: log}
}

// tenantRoundTripper stamps every outgoing push request with the tenant
// header, since push.Pusher offers no per-request header hook.
type tenantRoundTripper struct {
	tenant string
	next   http.RoundTripper
}

func (t tenantRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("X-Scope-OrgID", t.tenant)
	return t.next.RoundTrip(req)
}

// Push sends points to the configured endpoint, splitting into batches of
// at most MetricsPerRequest distinct series. Mirrors the original engine's
// split_off batching: batches are bounded by number of series, not by
// total sample count, since each point here is already one fully labelled
// series value.
func (s *Sink) Push(ctx context.Context, points []metrics.Point) error {
	for _, batch := range splitBatches(points, s.cfg.MetricsPerRequest) {
		if err := s.pushBatch(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

func splitBatches(points []metrics.Point, max int) [][]metrics.Point {
	if max <= 0 || len(points) <= max {
		return [][]metrics.Point{points}
	}
	var batches [][]metrics.Point
	for len(points) > 0 {
		n := max
		if n > len(points) {
			n = len(points)
		}
		batches = append(batches, points[:n])
		points = points[n:]
	}
	return batches
}

func (s *Sink) pushBatch(ctx context.Context, points []metrics.Point) error {
	if len(points) == 0 {
		return nil
	}

	reg := prometheus.NewRegistry()
	for i, pt := range points {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        pt.Name,
			Help:        "anomalyd derived metric",
			ConstLabels: prometheus.Labels(pt.Labels),
		})
		g.Set(pt.Value)
		if err := reg.Register(g); err != nil {
			return fmt.Errorf("metricsink: register point %d (%s): %w", i, pt.Name, err)
		}
	}

	client := s.client
	if s.cfg.Tenant != "" {
		rt := client.Transport
		if rt == nil {
			rt = http.DefaultTransport
		}
		wrapped := *client
		wrapped.Transport = tenantRoundTripper{tenant: s.cfg.Tenant, next: rt}
		client = &wrapped
	}

	pusher := push.New(s.cfg.URL, s.cfg.Job).Gatherer(reg).Client(client)
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("metricsink: push %d points: %w", len(points), err)
	}
	if s.log != nil {
		s.log.Debug("pushed metric batch", "count", len(points))
	}
	return nil
}
