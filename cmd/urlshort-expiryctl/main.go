// Command urlshort-expiryctl runs the expiry lifecycle manager (spec
// §4.J): soft-expiring rows past their expiry and hard-deleting old
// tombstones past the retention window. Runs as a daemon by default, or
// as a single pass with -once.
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

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jordigilh/urlshort/internal/archive"
	appconfig "github.com/jordigilh/urlshort/internal/config"
	"github.com/jordigilh/urlshort/internal/distcache"
	"github.com/jordigilh/urlshort/internal/expiry"
	"github.com/jordigilh/urlshort/internal/lookup"
	"github.com/jordigilh/urlshort/internal/lrucache"
	"github.com/jordigilh/urlshort/internal/store"
	"github.com/jordigilh/urlshort/internal/telemetry/log"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	once := flag.Bool("once", false, "run both sweeps a single time and exit")
	httpAddr := flag.String("http-addr", ":8082", "ops surface listen address")
	flag.Parse()

	cfg, err := appconfig.Load(*configPath)
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

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.Addr})
	defer rdb.Close() //nolint:errcheck

	lookupSvc := lookup.New(lrucache.New(cfg.LRU.MaxEntries), distcache.New(rdb, cfg.Cache.DefaultTTL, logger), st, logger)

	var archiver archive.Archiver = archive.NoOp{}
	if cfg.Expiry.ColdStorageEnabled {
		awsCfg, err := awscfg.LoadDefaultConfig(context.Background())
		if err != nil {
			logger.Fatal("loading aws config", zap.Error(err))
		}
		archiver = archive.NewS3Archiver(s3.NewFromConfig(awsCfg), cfg.Expiry.ColdStorageBucket, "urlshort-expired", logger)
	}

	mgr := expiry.New(st, lookupSvc, archiver, expiry.Options{
		SoftExpireInterval: cfg.Expiry.SoftExpireInterval,
		SoftExpireLimit:    cfg.Expiry.SoftBatchSize,
		SoftExpireChunk:    cfg.Expiry.SoftChunkSize,
		HardDeleteInterval: cfg.Expiry.HardDeleteInterval,
		RetentionPeriod:    cfg.Expiry.HardDeleteAfter,
		HardDeleteChunk:    cfg.Expiry.SoftChunkSize,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		if err := mgr.RunSoftExpire(ctx); err != nil {
			logger.Error("soft expire sweep failed", zap.Error(err))
		}
		if err := mgr.RunHardDelete(ctx); err != nil {
			logger.Error("hard delete sweep failed", zap.Error(err))
		}
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mgr.Run(gctx) })
	g.Go(func() error { return serveOps(gctx, *httpAddr, logger) })

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		logger.Error("expiryctl exited with error", zap.Error(err))
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
