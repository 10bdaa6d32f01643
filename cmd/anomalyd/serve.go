package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	anomalyconfig "github.com/AnomalyAI/anomalyd/internal/config"
	"github.com/AnomalyAI/anomalyd/internal/metricsink"
	"github.com/AnomalyAI/anomalyd/internal/opensearch"
	"github.com/AnomalyAI/anomalyd/internal/orchestrator"
	"github.com/AnomalyAI/anomalyd/internal/state"
	"github.com/AnomalyAI/anomalyd/internal/webapi"
	"github.com/AnomalyAI/anomalyd/pkg/logging"
)

func runServe(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	getStr := func(name string) string { v, _ := flags.GetString(name); return v }
	getInt := func(name string) int { v, _ := flags.GetInt(name); return v }
	getBool := func(name string) bool { v, _ := flags.GetBool(name); return v }

	log := logging.New(logging.Config{
		Level:   parseLevel(getStr("log-level")),
		Service: "anomalyd",
		JSON:    getBool("log-json"),
	})
	defer log.Close()

	cfgPath := getStr("config")
	cfg, err := anomalyconfig.Load(cfgPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("load config %s: %w", cfgPath, err)
		}
		log.Warn("config file not found, starting with defaults", "path", cfgPath)
		cfg = anomalyconfig.Default()
	}

	httpClient, err := buildHTTPClient(getStr("opensearch-ca"), getStr("opensearch-cert"), getStr("opensearch-key"))
	if err != nil {
		return fmt.Errorf("build opensearch tls client: %w", err)
	}

	esClient := opensearch.New(
		getStr("opensearch-url"),
		getStr("opensearch-index"),
		getStr("opensearch-user"),
		getStr("opensearch-password"),
		httpClient,
	)

	sink := metricsink.New(metricsink.Config{
		URL:               getStr("prometheus-url"),
		Job:               "anomalyd",
		Tenant:            getStr("prometheus-tenant"),
		MetricsPerRequest: getInt("metrics-per-request"),
	}, nil, log)

	db, err := state.OpenWithPath(getStr("state"))
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer db.Close()
	store := state.NewStore(db)

	gc, err := state.NewGCRunner(db, 5*time.Minute, 0.5, func(err error) {
		log.Warn("state gc", "error", err)
	})
	if err != nil {
		return fmt.Errorf("build state gc runner: %w", err)
	}
	gc.Start()
	defer gc.Stop()

	watcher, err := anomalyconfig.NewWatcher(cfgPath, log)
	if err != nil {
		log.Warn("config hot-reload disabled", "error", err)
		watcher = nil
	} else {
		defer watcher.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var shutdownTracer func(context.Context)
	if endpoint := getStr("otel-endpoint"); endpoint != "" {
		shutdownTracer, err = orchestrator.InitTracer(ctx, endpoint)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer shutdownTracer(context.Background())
	}

	orch, err := orchestrator.New(cfg, orchestrator.Deps{
		OpenSearch:        esClient,
		Sink:              sink,
		Store:             store,
		Watcher:           watcher,
		Log:               log,
		MetricsPerRequest: getInt("metrics-per-request"),
	})
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	api := webapi.New(orch, log)
	httpSrv := &http.Server{
		Addr:    getStr("bind"),
		Handler: api.Handler(getStr("prefix")),
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("config/schema API stopped", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		cancel()
	}()

	return orch.Run(ctx)
}

func parseLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

// buildHTTPClient builds an http.Client for the backing store, adding
// client TLS (mTLS) if a certificate and key are given and trusting a
// custom CA bundle if one is given. All three flags are optional; the
// default transport is used when none are set.
func buildHTTPClient(caPath, certPath, keyPath string) (*http.Client, error) {
	if caPath == "" && certPath == "" && keyPath == "" {
		return &http.Client{Timeout: 60 * time.Second}, nil
	}

	tlsConfig := &tls.Config{}

	if caPath != "" {
		pemBytes, err := os.ReadFile(caPath)
		if err != nil {
			return nil, fmt.Errorf("read ca bundle %s: %w", caPath, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pemBytes) {
			return nil, fmt.Errorf("no certificates found in %s", caPath)
		}
		tlsConfig.RootCAs = pool
	}

	if certPath != "" && keyPath != "" {
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("load client certificate %s/%s: %w", certPath, keyPath, err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	transport := &http.Transport{TLSClientConfig: tlsConfig}
	return &http.Client{Timeout: 60 * time.Second, Transport: transport}, nil
}
