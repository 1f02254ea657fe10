package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	domrepo "FinAlert/internal/domain/repository"
	"FinAlert/internal/usecase"
	"FinAlert/pkg/config"
	xhttp "FinAlert/pkg/http"
	pkgkafka "FinAlert/pkg/kafka"
	applogger "FinAlert/pkg/logger"
)

// Closer is any resource released on shutdown.
type Closer interface {
	Close() error
}

// Deps lists what the App runs. Producer, Consumer and Collector may be nil.
type Deps struct {
	Config    *config.Config
	Logger    *applogger.Logger
	Store     domrepo.Store
	Closers   []Closer
	Producer  *pkgkafka.Producer
	Consumer  *pkgkafka.Consumer
	Handlers  []pkgkafka.MessageHandler
	Collector *usecase.TickCollector
	Evaluator *usecase.SymbolEvaluator
	Scheduler *usecase.Scheduler
	HTTP      *xhttp.Server
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	store      domrepo.Store
	closers    []Closer
	producer   *pkgkafka.Producer
	consumer   *pkgkafka.Consumer
	handlers   []pkgkafka.MessageHandler
	collector  *usecase.TickCollector
	evaluator  *usecase.SymbolEvaluator
	scheduler  *usecase.Scheduler
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(d Deps) *App {
	l := d.Logger
	if l == nil {
		l = applogger.Nop()
	}
	return &App{
		cfg:        d.Config,
		l:          l,
		store:      d.Store,
		closers:    d.Closers,
		producer:   d.Producer,
		consumer:   d.Consumer,
		handlers:   d.Handlers,
		collector:  d.Collector,
		evaluator:  d.Evaluator,
		scheduler:  d.Scheduler,
		httpServer: d.HTTP,
	}
}

// Run starts every component and blocks until ctx ends or SIGINT/SIGTERM arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			// the scheduler still evaluates whatever reaches the store another way
			a.l.Error("collector start failed", applogger.Error(err))
		} else {
			a.l.Info("collector started", applogger.Int("symbols", len(a.cfg.Symbols)))
		}
	}

	if a.consumer != nil {
		for _, h := range a.handlers {
			a.consumer.RegisterHandler(h)
		}
		if err := a.consumer.Start(ctx); err != nil {
			a.l.Error("kafka consumer start failed", applogger.Error(err))
		}
	}

	a.scheduler.Start(ctx)

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		_ = a.shutdown()
		return err
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown()
}

// Evaluate runs a single cycle for symbol outside the scheduler.
func (a *App) Evaluate(ctx context.Context, symbol string) (*usecase.EvaluationResult, error) {
	if !a.watched(symbol) {
		return nil, fmt.Errorf("symbol %s is not configured", symbol)
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Scheduler.CycleTimeout)
	defer cancel()
	return a.evaluator.Evaluate(ctx, symbol)
}

func (a *App) watched(symbol string) bool {
	for _, s := range a.cfg.Symbols {
		if s.Code == symbol {
			return true
		}
	}
	return false
}

// Close releases infrastructure without starting anything.
func (a *App) Close() error {
	return a.closeResources()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	a.l.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	a.scheduler.Stop()

	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.l.Warn("collector stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	err := a.closeResources()
	a.l.Info("shutdown complete")
	return err
}

func (a *App) closeResources() error {
	var errList []error
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			errList = append(errList, fmt.Errorf("kafka producer: %w", err))
		}
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errList = append(errList, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errList = append(errList, fmt.Errorf("store: %w", err))
		}
	}
	if err := errors.Join(errList...); err != nil {
		a.l.Warn("close resources", applogger.Error(err))
		return err
	}
	return nil
}
