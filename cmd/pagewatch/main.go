package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"pagewatch/internal/api"
	"pagewatch/internal/browser"
	"pagewatch/internal/config"
	"pagewatch/internal/extract"
	"pagewatch/internal/logbuf"
	"pagewatch/internal/metrics"
	"pagewatch/internal/notify"
	"pagewatch/internal/registry"
	"pagewatch/internal/scheduler"
	"pagewatch/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	ring := logbuf.NewRing(cfg.LogBuffer, parseLevel(cfg.LogLevel))
	log := newLogger(cfg.LogLevel, ring)

	store, err := openStore(cfg, log)
	if err != nil {
		log.Error("open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	targets := registry.New(store)
	dispatcher := notify.NewDispatcher(newPusher(cfg), cfg.SendInterval, cfg.MessageLimit, m, log)

	sched := scheduler.New(targets, extract.New(cfg.NavTimeout, cfg.SettleDelay), dispatcher, browserFactory(cfg), log)
	sched.SetIdleInterval(cfg.IdleInterval)
	sched.SetMetrics(m)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := api.New(ctx, targets, sched, dispatcher, ring, log)
	srv.SetMetricsHandler(metrics.Handler(reg))
	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("starting pagewatch", "addr", httpSrv.Addr, "store", cfg.StoreDriver, "browser", cfg.Browser, "provider", cfg.Provider)
	sched.Start(ctx)

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}
	sched.Wait()

	log.Info("pagewatch stopped")
}

func openStore(cfg *config.Config, log *slog.Logger) (storage.Store, error) {
	if cfg.StoreDriver == config.DriverSQLite {
		if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			return nil, err
		}
		return storage.NewSQLite(cfg.DatabasePath())
	}
	return storage.NewJSONFile(cfg.DataDir, log)
}

func newPusher(cfg *config.Config) notify.Pusher {
	if cfg.Provider == config.ProviderTelegram {
		return notify.NewTelegram()
	}
	return notify.NewLINE("", &http.Client{Timeout: 30 * time.Second})
}

func browserFactory(cfg *config.Config) scheduler.BrowserFactory {
	if cfg.Browser == config.BrowserHTTP {
		return func(context.Context) (browser.Browser, error) {
			return browser.NewHTTP(&http.Client{}), nil
		}
	}
	return func(context.Context) (browser.Browser, error) {
		return browser.NewRod(browser.RodConfig{Bin: cfg.BrowserBin})
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(level string, ring *logbuf.Ring) *slog.Logger {
	text := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(logbuf.Fanout(text, ring))
}
