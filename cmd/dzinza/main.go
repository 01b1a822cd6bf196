// Command dzinza serves the family tree API and runs the scheduled
// maintenance jobs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/chifamba/dzinza-sub004/internal/core"
	"github.com/chifamba/dzinza-sub004/internal/export"
	"github.com/chifamba/dzinza-sub004/internal/infra/lock"
	"github.com/chifamba/dzinza-sub004/internal/jobs"
	"github.com/chifamba/dzinza-sub004/internal/platform/auth"
	"github.com/chifamba/dzinza-sub004/internal/platform/config"
	"github.com/chifamba/dzinza-sub004/internal/platform/logger"
	"github.com/chifamba/dzinza-sub004/internal/platform/metrics"
	"github.com/chifamba/dzinza-sub004/internal/platform/tracing"
	httptransport "github.com/chifamba/dzinza-sub004/internal/transport/http"
)

var exitFunc = os.Exit

func main() {
	exitFunc(cli(os.Args[1:], os.Stderr))
}

func cli(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("dzinza", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("DZINZA_CONFIG"), "path to YAML config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}
	log, err := logger.New(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "logger: %v\n", err)
		return 2
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log, prometheus.NewRegistry())
	if err != nil {
		log.Error("startup failed", "error", err)
		return 1
	}
	defer a.close()
	if err := a.serve(ctx); err != nil {
		log.Error("server stopped with error", "error", err)
		return 1
	}
	log.Info("server stopped")
	return 0
}

type app struct {
	cfg       config.Config
	logger    *slog.Logger
	svc       *core.Service
	server    *http.Server
	scheduler *jobs.Scheduler
	closers   []func() error
}

// newApp wires storage, locking, the coordinator, exports, jobs and HTTP.
// Resources opened before a failure are released.
func newApp(ctx context.Context, cfg config.Config, log *slog.Logger, reg *prometheus.Registry) (_ *app, err error) {
	a := &app{cfg: cfg, logger: log}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store, closeStore, err := core.OpenPersistentStore(ctx, core.StorageOptions{
		Driver:      core.StorageDriver(cfg.Storage.Driver),
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, closeStore)

	opts := []core.Option{
		core.WithLogger(log),
		core.WithMetricsRecorder(m),
		core.WithTracer(tracing.New(nil)),
		core.WithRetry(cfg.Core.RetryAttempts, cfg.Core.RetryBackoff),
		core.WithOperationTimeout(cfg.Core.OperationTimeout),
	}
	if cfg.Lock.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.Lock.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(redisOpts)
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		opts = append(opts, core.WithLocker(lock.NewRedis(client, lock.WithTTL(cfg.Lock.TTL))))
		log.Info("using redis tree locks")
	}
	a.svc = core.NewService(store, opts...)

	blobs, err := export.OpenStore(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open export store: %w", err)
	}
	exporter := export.New(a.svc, blobs, export.WithLogger(log), export.WithRecorder(m))

	a.scheduler = jobs.NewScheduler(log, m)
	if err := a.scheduler.Register(jobs.JobReconcileStatistics, cfg.Jobs.ReconcileSchedule, jobs.ReconcileAll(a.svc, m, log)); err != nil {
		return nil, err
	}
	if err := a.scheduler.Register(jobs.JobExportTrees, cfg.Jobs.ExportSchedule, jobs.ExportAll(exporter, log)); err != nil {
		return nil, err
	}

	tokens := auth.NewTokenService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer)
	handler := httptransport.NewHandler(a.svc, tokens, log,
		httptransport.WithExports(exporter),
		httptransport.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
	)
	a.server = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	return a, nil
}

// serve runs the HTTP server and scheduler until ctx is cancelled, then
// shuts both down within the configured timeout.
func (a *app) serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	a.scheduler.Start()
	g.Go(func() error {
		a.logger.Info("listening", "addr", a.server.Addr, "jobs", a.scheduler.Jobs())
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return errors.Join(a.server.Shutdown(shutdownCtx), a.scheduler.Stop(shutdownCtx))
	})
	return g.Wait()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
