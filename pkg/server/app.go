package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
	mid "CoinPull/internal/middleware"
	"CoinPull/internal/usecase"
	"CoinPull/pkg/config"
	xhttp "CoinPull/pkg/http"
	applogger "CoinPull/pkg/logger"
)

// ErrNothingToCollect is returned when no exchange produced any symbol.
var ErrNothingToCollect = errors.New("no symbols to collect")

// App encapsulates one collection run and the services around it.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	adapters   map[string]drepo.ExchangeAdapter
	symbols    *usecase.SymbolSource
	orch       *usecase.Orchestrator
	pipeline   *mid.MirrorPipeline
	httpServer *xhttp.Server

	mu      sync.Mutex
	reports []models.TaskReport
}

// New creates a new App instance with all dependencies. httpServer may be
// nil when the status API is disabled.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	adapters map[string]drepo.ExchangeAdapter,
	symbols *usecase.SymbolSource,
	orch *usecase.Orchestrator,
	pipeline *mid.MirrorPipeline,
	httpServer *xhttp.Server,
) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{
		cfg:        cfg,
		log:        log,
		adapters:   adapters,
		symbols:    symbols,
		orch:       orch,
		pipeline:   pipeline,
		httpServer: httpServer,
	}
}

// Run resolves symbols, runs every collection task and shuts down. It
// returns early with all running tasks Stopped on SIGINT/SIGTERM or when
// ctx ends.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.log.Error("http server start error", applogger.Error(err))
			return err
		}
	}
	if a.pipeline != nil {
		a.pipeline.Start(ctx)
	}

	exchanges := a.cfg.Collector.Exchanges
	symbols := a.symbols.Resolve(ctx, a.adapters, exchanges)
	total := 0
	for _, s := range symbols {
		total += len(s)
	}

	var runErr error
	if total == 0 {
		runErr = ErrNothingToCollect
		a.log.Error("nothing to collect", applogger.Strings("exchanges", exchanges))
	} else {
		reports := a.orch.Run(ctx, exchanges, symbols, a.cfg.Collector.ConcurrencyCap)
		a.mu.Lock()
		a.reports = reports
		a.mu.Unlock()
	}

	if ctx.Err() != nil {
		a.log.Info("shutdown signal received")
	}
	a.shutdown()
	return runErr
}

// Reports returns the final task reports of the last Run.
func (a *App) Reports() []models.TaskReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.TaskReport(nil), a.reports...)
}

// shutdown gracefully stops all services. It runs on a fresh context so a
// cancelled run still drains the mirror buffer.
func (a *App) shutdown() {
	a.log.Info("shutting down...")

	if a.pipeline != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Mirror.DrainTimeout)
		if err := a.pipeline.Stop(ctx); err != nil {
			a.log.Warn("mirror drain incomplete", applogger.Error(err))
		}
		cancel()
	}

	if a.httpServer != nil {
		if err := a.httpServer.Stop(context.Background()); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
}
