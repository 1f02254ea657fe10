package usecase

import (
	"context"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"FinAlert/internal/domain/models"
	domrepo "FinAlert/internal/domain/repository"
	"FinAlert/pkg/config"
	applogger "FinAlert/pkg/logger"
)

// Evaluator runs one cycle for one symbol.
type Evaluator interface {
	Evaluate(ctx context.Context, symbol string) (*EvaluationResult, error)
}

// Scheduler runs an independent evaluation loop per symbol.
type Scheduler struct {
	symbols  []string
	interval time.Duration
	timeout  time.Duration
	stagger  bool
	eval     Evaluator
	metrics  domrepo.Metrics
	l        *applogger.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewScheduler(cfg *config.Config, eval Evaluator, metrics domrepo.Metrics, l *applogger.Logger) *Scheduler {
	symbols := make([]string, 0, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbols = append(symbols, s.Code)
	}
	return &Scheduler{
		symbols:  symbols,
		interval: cfg.Scheduler.Interval,
		timeout:  cfg.Scheduler.CycleTimeout,
		stagger:  cfg.Scheduler.StaggerStart,
		eval:     eval,
		metrics:  metrics,
		l:        l,
	}
}

// Start launches one loop per symbol. Each loop runs a cycle immediately and
// then on its own ticker until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, sym := range s.symbols {
		s.wg.Add(1)
		go s.loop(ctx, sym)
	}
	s.l.Info("scheduler started",
		applogger.Strings("symbols", s.symbols),
		applogger.Duration("interval", s.interval),
	)
}

// Stop cancels all loops and waits for running cycles to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, symbol string) {
	defer s.wg.Done()

	if s.stagger && s.interval > 0 {
		jitter := time.Duration(rand.Int63n(int64(s.interval)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(jitter):
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.RunCycle(ctx, symbol)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunCycle evaluates symbol once under the cycle timeout. Errors and panics are
// logged and never escape.
func (s *Scheduler) RunCycle(ctx context.Context, symbol string) (res *EvaluationResult) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordError("cycle_panic")
			s.l.Error("evaluation cycle panicked",
				applogger.String("symbol", symbol),
				applogger.Error(fmt.Errorf("%v", r)),
				applogger.String("stack", string(debug.Stack())),
			)
			res = nil
		}
	}()

	res, err := s.eval.Evaluate(ctx, symbol)
	if err != nil {
		s.metrics.RecordError("cycle")
		s.l.Error("evaluation cycle failed", applogger.String("symbol", symbol), applogger.Error(err))
	}
	if res != nil {
		s.l.Debug("evaluation cycle done",
			applogger.String("symbol", symbol),
			applogger.Int("alerts", len(res.Alerts)),
			applogger.Int("suppressed", res.Suppressed),
			applogger.Any("unavailable", unavailable(res.Snapshot)),
		)
	}
	return res
}

func unavailable(s *models.SignalSnapshot) map[string]string {
	if s == nil {
		return nil
	}
	return s.Unavailable
}
