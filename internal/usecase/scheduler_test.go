package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	applogger "FinAlert/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedEvaluator struct {
	mu    sync.Mutex
	calls map[string]int
	panic string
	fail  string
}

func (e *scriptedEvaluator) Evaluate(ctx context.Context, symbol string) (*EvaluationResult, error) {
	e.mu.Lock()
	e.calls[symbol]++
	e.mu.Unlock()
	switch symbol {
	case e.panic:
		panic("index out of range")
	case e.fail:
		return nil, errBoom
	}
	return &EvaluationResult{Symbol: symbol}, nil
}

func (e *scriptedEvaluator) count(symbol string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[symbol]
}

func TestRunCycleRecoversPanic(t *testing.T) {
	m := newMetrics()
	s := NewScheduler(testConfig(t), &scriptedEvaluator{calls: map[string]int{}, panic: "600519"}, m, applogger.Nop())

	var res *EvaluationResult
	require.NotPanics(t, func() { res = s.RunCycle(context.Background(), "600519") })
	assert.Nil(t, res)
	assert.Equal(t, 1, m.errorCount("cycle_panic"))
}

func TestRunCycleLogsFailure(t *testing.T) {
	m := newMetrics()
	s := NewScheduler(testConfig(t), &scriptedEvaluator{calls: map[string]int{}, fail: "600519"}, m, applogger.Nop())

	assert.Nil(t, s.RunCycle(context.Background(), "600519"))
	assert.Equal(t, 1, m.errorCount("cycle"))
}

func TestSchedulerIsolatesSymbols(t *testing.T) {
	eval := &scriptedEvaluator{calls: map[string]int{}, panic: "600519"}
	s := NewScheduler(testConfig(t), eval, newMetrics(), applogger.Nop())

	s.Start(context.Background())
	assert.Eventually(t, func() bool {
		return eval.count("000001") >= 3 && eval.count("600519") >= 3
	}, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	after := eval.count("000001")
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, eval.count("000001"))
}
