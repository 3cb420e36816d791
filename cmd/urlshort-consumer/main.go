// Command urlshort-consumer runs the click-aggregation consumer (spec
// §4.I) as a standalone daemon: it joins the Kafka consumer group, folds
// click events into tumbling windows, and periodically flushes them into
// the daily-summary store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jordigilh/urlshort/internal/aggregator"
	"github.com/jordigilh/urlshort/internal/config"
	"github.com/jordigilh/urlshort/internal/geoip"
	"github.com/jordigilh/urlshort/internal/store"
	"github.com/jordigilh/urlshort/internal/telemetry/log"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	httpAddr := flag.String("http-addr", ":8081", "ops surface listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	mode := log.ModeProduction
	if cfg.Log.Mode == "development" {
		mode = log.ModeDevelopment
	}
	logger, err := log.New(mode, cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	st, err := store.Open(cfg.Store.DSN, cfg.Store.MaxOpenConns, cfg.Store.ConnMaxLifetime, cfg.Store.QueryTimeout)
	if err != nil {
		logger.Fatal("opening store", zap.Error(err))
	}
	defer st.Close() //nolint:errcheck

	resolver := geoip.NewHTTPResolver(cfg.GeoIP.Endpoint, cfg.GeoIP.RequestTimeout)
	geoEnricher := geoip.New(resolver, geoip.OptionsFromLimits(
		cfg.GeoIP.RPM, cfg.GeoIP.MinSpacing, cfg.GeoIP.CacheSize, cfg.GeoIP.CacheTTL, 1_000,
	), logger)

	agg, err := aggregator.New(cfg.Bus.Brokers, st, st, geoEnricher, aggregator.Options{
		Topic:         cfg.Bus.Topic,
		GroupID:       cfg.Bus.Group,
		WindowSize:    cfg.Aggregator.WindowSize,
		FlushInterval: cfg.Aggregator.FlushInterval,
		LateGrace:     cfg.Aggregator.LateGrace,
		GeoTimeout:    cfg.GeoIP.RequestTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("building aggregator", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return geoEnricher.Run(gctx) })
	g.Go(func() error { return agg.Run(gctx) })
	g.Go(func() error { return statsLoop(gctx, logger) })
	g.Go(func() error { return serveOps(gctx, *httpAddr, logger) })

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		logger.Error("consumer exited with error", zap.Error(err))
	}
}

func statsLoop(ctx context.Context, logger *zap.Logger) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			logger.Info("consumer alive")
		}
	}
}

func serveOps(ctx context.Context, addr string, logger *zap.Logger) error {
	started := time.Now()
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok")) //nolint:errcheck
	})
	r.Get("/debug/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"uptime": time.Since(started).String()}) //nolint:errcheck
	})

	srv := &http.Server{Addr: addr, Handler: r}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Warn("ops http server stopped", zap.Error(err))
		}
		return err
	}
}
