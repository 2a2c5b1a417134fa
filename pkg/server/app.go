package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	mid "CandleInsight/internal/middleware"
	"CandleInsight/pkg/config"
	xhttp "CandleInsight/pkg/http"
	pkgkafka "CandleInsight/pkg/kafka"
	applogger "CandleInsight/pkg/logger"
	"CandleInsight/pkg/queue"
)

// Runner is a background component started after the HTTP server and stopped before it.
type Runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// App owns the process lifecycle: HTTP server, optional request consumers and the archive pipeline.
type App struct {
	cfg     *config.Config
	log     *applogger.Logger
	http    *xhttp.Server
	runners []namedRunner
	archive *mid.ArchivePipeline
}

type namedRunner struct {
	name string
	r    Runner
}

type Option func(*App)

// WithKafkaConsumer is a no-op for a nil consumer.
func WithKafkaConsumer(c *pkgkafka.Consumer) Option {
	return func(a *App) {
		if c != nil {
			a.runners = append(a.runners, namedRunner{"kafka consumer", c})
		}
	}
}

// WithRequestQueue is a no-op for a nil queue.
func WithRequestQueue(q *queue.RedisQueue) Option {
	return func(a *App) {
		if q != nil {
			a.runners = append(a.runners, namedRunner{"redis queue", q})
		}
	}
}

func WithArchive(p *mid.ArchivePipeline) Option {
	return func(a *App) { a.archive = p }
}

func WithRunner(name string, r Runner) Option {
	return func(a *App) {
		if r != nil {
			a.runners = append(a.runners, namedRunner{name, r})
		}
	}
}

func New(cfg *config.Config, log *applogger.Logger, srv *xhttp.Server, opts ...Option) *App {
	if log == nil {
		log = applogger.NewNop()
	}
	a := &App{cfg: cfg, log: log, http: srv}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run blocks until SIGINT/SIGTERM or a fatal server error, then shuts down.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext is Run with the caller owning cancellation.
func (a *App) RunContext(ctx context.Context) error {
	a.log.Info("starting candle-insight",
		applogger.String("env", a.cfg.Environment),
		applogger.String("archive", a.cfg.Archive.Backend),
		applogger.Bool("clickhouse", a.cfg.ClickHouse.Enabled),
		applogger.Bool("redis", a.cfg.Cache.Redis.Enabled))

	if a.archive != nil {
		a.archive.Start(ctx)
	}

	started := make([]namedRunner, 0, len(a.runners))
	for _, nr := range a.runners {
		if err := nr.r.Start(ctx); err != nil {
			a.log.Error("component start failed", applogger.String("component", nr.name), applogger.Error(err))
			a.stopRunners(started)
			a.stopArchive()
			return fmt.Errorf("start %s: %w", nr.name, err)
		}
		started = append(started, nr)
		a.log.Info("component started", applogger.String("component", nr.name))
	}

	errCh := a.http.Start()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err, ok := <-errCh:
		if ok && err != nil {
			a.log.Error("http server failed", applogger.Error(err))
			runErr = err
		}
	}

	return errors.Join(runErr, a.shutdown(started))
}

// shutdown stops intake first (HTTP, consumers), then the archive that may still hold retries.
func (a *App) shutdown(started []namedRunner) error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := a.http.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}
	if err := a.stopRunnersCtx(ctx, started); err != nil {
		errs = append(errs, err)
	}
	a.stopArchive()
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) stopRunners(started []namedRunner) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.stopRunnersCtx(ctx, started)
}

// stopRunnersCtx stops in reverse start order.
func (a *App) stopRunnersCtx(ctx context.Context, started []namedRunner) error {
	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		nr := started[i]
		if err := nr.r.Stop(ctx); err != nil {
			a.log.Warn("component stop error", applogger.String("component", nr.name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("stop %s: %w", nr.name, err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) stopArchive() {
	if a.archive == nil {
		return
	}
	if n := a.archive.Buffered(); n > 0 {
		a.log.Warn("dropping buffered insights", applogger.Int("count", n))
	}
	a.archive.Stop()
}
