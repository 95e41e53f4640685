package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/docgen"

	httpadapter "github.com/couchcryptid/lcat-climate-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/lcat-climate-service/internal/adapter/kafka"
	"github.com/couchcryptid/lcat-climate-service/internal/adapter/mapbox"
	"github.com/couchcryptid/lcat-climate-service/internal/adapter/postgres"
	"github.com/couchcryptid/lcat-climate-service/internal/catalog"
	"github.com/couchcryptid/lcat-climate-service/internal/config"
	"github.com/couchcryptid/lcat-climate-service/internal/domain"
	"github.com/couchcryptid/lcat-climate-service/internal/observability"
	"github.com/couchcryptid/lcat-climate-service/internal/pipeline"
)

func main() {
	routes := flag.Bool("routes", false, "print the route table as markdown and exit")
	migrate := flag.Bool("migrate", false, "apply schema migrations before serving")
	flag.Parse()

	if err := run(*routes, *migrate); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// routesDoc renders the route table as markdown. It needs no configuration.
func routesDoc() string {
	router := httpadapter.NewRouter(httpadapter.Deps{Metrics: observability.NewMetrics(), Logger: slog.Default()})
	return docgen.MarkdownRoutesDoc(router, docgen.MarkdownOpts{
		ProjectPath: "github.com/couchcryptid/lcat-climate-service",
		Intro:       "Routes served by the LCAT climate service.",
	})
}

func run(printRoutes, migrate bool) error {
	if printRoutes {
		fmt.Println(routesDoc())
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if migrate {
		if err := postgres.Migrate(ctx, cfg.DatabaseURL, logger); err != nil {
			return err
		}
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	boundaries := postgres.NewBoundaryRepository(pool, metrics)
	registry := catalog.New(boundaries, logger, metrics)
	if err := registry.Load(ctx); err != nil {
		// Lookups retry the load, so serve anyway and report not ready.
		logger.Error("boundary registry unavailable at startup", "error", err)
	}

	// Geocoding is feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, cfg.MapboxRateLimit, metrics, logger)
		cached, err := mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		if err != nil {
			return fmt.Errorf("create geocoder cache: %w", err)
		}
		geocoder = cached
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	checks := readiness{postgres.Readiness{DB: pool}, registry}

	var usage httpadapter.UsageRecorder = pipeline.NopRecorder{}
	var publisher *pipeline.Publisher
	var writer *kafkaadapter.Writer
	if cfg.UsageEventsEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = pipeline.New(pipeline.NewTransformer(), writer, logger, metrics, cfg.BatchSize, cfg.BatchFlushInterval)
		usage = publisher
		checks = append(checks, publisher)
		logger.Info("usage events enabled", "topic", cfg.KafkaUsageTopic, "brokers", cfg.KafkaBrokers)
	}

	router := httpadapter.NewRouter(httpadapter.Deps{
		Catalog:        registry,
		Boundaries:     boundaries,
		Climate:        postgres.NewClimateRepository(pool, metrics),
		Content:        postgres.NewContentRepository(pool, metrics),
		Geocoder:       geocoder,
		Usage:          usage,
		Ready:          checks,
		Metrics:        metrics,
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
		CORSOrigin:     cfg.CORSAllowedOrigin,
		StaticDir:      cfg.StaticDir,
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, router, cfg.RequestTimeout+cfg.ShutdownTimeout, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// The publisher outlives ctx so requests still in flight during shutdown
	// can record their events; it is stopped after the HTTP server.
	publisherCtx, stopPublisher := context.WithCancel(context.WithoutCancel(ctx))
	defer stopPublisher()
	publisherDone := make(chan struct{})
	if publisher != nil {
		go func() {
			defer close(publisherDone)
			if err := publisher.Run(publisherCtx); err != nil {
				logger.Error("usage publisher error", "error", err)
			}
		}()
	} else {
		close(publisherDone)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	stopPublisher()

	select {
	case <-publisherDone:
	case <-shutdownCtx.Done():
		logger.Warn("usage publisher did not finish before shutdown timeout")
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// readiness is ready when every check is.
type readiness []sharedobs.ReadinessChecker

func (r readiness) CheckReadiness(ctx context.Context) error {
	var errs []error
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
