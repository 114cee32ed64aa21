// Command hl7-receiver runs the inbound HL7/MLLP listener with its capture
// sink and the status endpoint.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/eastgenomics/hl7-epic-integration/internal/capture"
	"github.com/eastgenomics/hl7-epic-integration/internal/capture/filesystem"
	"github.com/eastgenomics/hl7-epic-integration/internal/capture/mongodb"
	"github.com/eastgenomics/hl7-epic-integration/internal/config"
	"github.com/eastgenomics/hl7-epic-integration/internal/metrics"
	"github.com/eastgenomics/hl7-epic-integration/internal/receiver"
	"github.com/eastgenomics/hl7-epic-integration/internal/status"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to the YAML configuration file")
	pflag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(*configPath, logger); err != nil {
		logger.Error("receiver exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, err := newSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer sink.Close(context.Background())

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)

	srv := receiver.New(receiver.Config{
		ListenAddr: cfg.Receiver.Listen,
		ReadBuffer: cfg.Receiver.ReadBuffer,
	}, sink, m, logger)

	var metricsRegistry *prometheus.Registry
	if cfg.Status.Metrics {
		metricsRegistry = registry
	}
	statusSrv := status.New(cfg.Status.Listen, metricsRegistry, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(ctx) })
	g.Go(func() error { return statusSrv.ListenAndServe(ctx) })
	return g.Wait()
}

func newSink(ctx context.Context, cfg *config.Config) (capture.Sink, error) {
	switch cfg.Capture.Backend {
	case "filesystem":
		return filesystem.New(cfg.Capture.Directory)
	case "mongodb":
		return mongodb.New(ctx, &mongodb.Config{
			URI:        cfg.Capture.MongoDB.URI,
			Database:   cfg.Capture.MongoDB.Database,
			Collection: cfg.Capture.MongoDB.Collection,
		})
	default:
		return nil, fmt.Errorf("unknown capture backend %q", cfg.Capture.Backend)
	}
}
