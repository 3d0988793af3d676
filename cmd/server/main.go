// Command server runs one escrow sale behind an HTTP API.
//
// Storage is selected by STORAGE_BACKEND (memory, sqlite, postgres). Committed
// operations are journaled, counted in Prometheus and streamed on /feed.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"escrow-sale/internal/api"
	"escrow-sale/internal/config"
	"escrow-sale/internal/feed"
	"escrow-sale/internal/logging"
	"escrow-sale/internal/observability"
	"escrow-sale/internal/sale"
	"escrow-sale/internal/storage"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var cfg config.Config
	if err := config.LoadConfig(&cfg, &os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Color, cfg.Log.IsProd, cfg.Log.JSON)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(&cfg, log); err != nil {
		log.Errorf("server error: %v", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(cfg *config.Config, log *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, log.Named("storage"))
	if err != nil {
		return err
	}
	defer b.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(cfg.Metrics.Namespace, reg)

	hubCfg := feed.DefaultHubConfig()
	hubCfg.SendBuffer = cfg.Web.FeedSendBuffer
	hub := feed.NewHub(log.Named("feed"), &hubCfg)

	opts := []sale.Option{
		sale.WithObserver(metrics),
		sale.WithStrictReclaim(cfg.Sale.StrictReclaim),
		sale.WithSink(storage.NewJournal(b.events)),
		sale.WithSink(metrics),
		sale.WithSink(hub),
	}
	if b.analytics != nil {
		opts = append(opts, sale.WithSink(storage.NewJournal(b.analytics)))
	}

	engine, err := sale.NewEngine(cfg.Sale.ID, b.ledger, log.Named("sale"), opts...)
	if err != nil {
		return err
	}
	log.Infow("sale engine ready", "sale", engine.SaleID(), "escrow", engine.Escrow().String(), "strictReclaim", cfg.Sale.StrictReclaim)

	router := api.NewHTTPHandler(api.Deps{
		Sale:          engine,
		Events:        b.events,
		Feed:          hub,
		Metrics:       observability.Handler(reg),
		TokenDecimals: int32(cfg.Sale.TokenDecimals),
		Log:           log.Named("api"),
	})
	srv := &http.Server{
		Addr:              cfg.Web.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("http server is listening: %s", cfg.Web.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
