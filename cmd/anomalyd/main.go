package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("anomalyd: %v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "anomalyd",
	Short: "Trace-to-metric anomaly detection engine",
	Long: `anomalyd consumes a tracing schema's spans, rolls them up into
statistics per configured group, and periodically pushes anomaly
scores and derived metrics to a Prometheus-compatible remote-write
endpoint.`,
	RunE: runServe,
}

func init() {
	flags := rootCmd.Flags()

	flags.String("opensearch-url", "https://localhost:9200/", "tracing schema backing store URL")
	flags.String("opensearch-ca", "", "path to a CA bundle for the backing store's TLS certificate")
	flags.String("opensearch-cert", "", "path to a client certificate for mTLS against the backing store")
	flags.String("opensearch-key", "", "path to the client certificate's private key")
	flags.String("opensearch-user", "", "basic auth username for the backing store")
	flags.String("opensearch-password", "", "basic auth password for the backing store")
	flags.String("opensearch-index", "jaeger-span-*", "backing store index pattern to query")

	flags.String("prometheus-url", "https://localhost:8080/", "remote-write endpoint for derived metrics")
	flags.String("prometheus-tenant", "", "X-Scope-OrgID header value, for multi-tenant remote-write receivers")
	flags.Int("metrics-per-request", 10000, "maximum metric series per remote-write push")

	flags.String("config", "config.yaml", "path to the rule/grouping configuration file")
	flags.String("state", "state.db", "path to the badger state directory")

	flags.String("bind", "127.0.0.1:9999", "address the config/schema HTTP API listens on")
	flags.String("prefix", "/api/jaeger-anomaly-detection", "URL prefix for the config/schema HTTP API")

	flags.String("otel-endpoint", "", "OTLP gRPC collector endpoint for tick tracing (disabled if empty)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "emit logs as JSON")

	for _, env := range []struct{ flag, env string }{
		{"opensearch-url", "OPENSEARCH_URL"},
		{"opensearch-ca", "OPENSEARCH_CA"},
		{"opensearch-cert", "OPENSEARCH_CERT"},
		{"opensearch-key", "OPENSEARCH_KEY"},
		{"opensearch-user", "OPENSEARCH_USER"},
		{"opensearch-password", "OPENSEARCH_PASSWORD"},
		{"prometheus-url", "PROMETHEUS_URL"},
		{"prometheus-tenant", "PROMETHEUS_TENANT"},
		{"metrics-per-request", "METRICS_PER_REQUEST"},
		{"config", "CONFIG"},
		{"state", "STATE"},
		{"bind", "BIND"},
		{"prefix", "PREFIX"},
		{"otel-endpoint", "OTEL_ENDPOINT"},
	} {
		if v, ok := os.LookupEnv(env.env); ok {
			_ = flags.Set(env.flag, v)
		}
	}
}
