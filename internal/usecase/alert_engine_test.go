package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"FinAlert/internal/domain/models"
	domrepo "FinAlert/internal/domain/repository"
	"FinAlert/internal/repository"
	"FinAlert/pkg/cache"
	applogger "FinAlert/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingQueue struct{}

func (failingQueue) Push(context.Context, models.Alert) error { return errBoom }

func (failingQueue) Recent(context.Context, int) ([]models.Alert, error) { return nil, errBoom }

// flakyAlertStore fails the first failures upserts.
type flakyAlertStore struct {
	*repository.MemoryStore
	mu       sync.Mutex
	failures int
}

func (s *flakyAlertStore) UpsertAlert(ctx context.Context, a models.Alert) (models.Alert, bool, error) {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return models.Alert{}, false, errBoom
	}
	s.mu.Unlock()
	return s.MemoryStore.UpsertAlert(ctx, a)
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []models.Alert
}

func (p *recordingPublisher) PublishAlert(_ context.Context, a models.Alert) error {
	p.mu.Lock()
	p.got = append(p.got, a)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func candidate(at time.Time) models.AlertCandidate {
	return models.AlertCandidate{
		Symbol:     "600519",
		Name:       "Moutai",
		Type:       models.FactorPriceMove,
		Level:      models.LevelWarning,
		Message:    "price moved +4.2% (threshold 3%)",
		Factors:    []models.FactorHit{{Tag: models.FactorPriceMove, Level: models.LevelWarning}},
		Metrics:    map[string]any{"percent_change": 4.2},
		ObservedAt: at,
	}
}

func newEngine(t *testing.T, store domrepo.AlertStore, queue domrepo.DeliveryQueue, pub domrepo.AlertPublisher) (*AlertEngine, *countingMetrics) {
	t.Helper()
	m := newMetrics()
	reg := repository.NewCacheFingerprintRegistry(cache.NewMemoryCache())
	return NewAlertEngine(testConfig(t), reg, store, queue, pub, m, applogger.Nop()), m
}

func TestFingerprintBuckets(t *testing.T) {
	a := time.Date(2024, 3, 5, 10, 5, 0, 0, time.UTC)
	b := time.Date(2024, 3, 5, 10, 55, 0, 0, time.UTC)
	c := time.Date(2024, 3, 5, 11, 0, 0, 0, time.UTC)
	assert.Equal(t, Fingerprint("600519", models.FactorPriceMove, a, time.Hour), Fingerprint("600519", models.FactorPriceMove, b, time.Hour))
	assert.NotEqual(t, Fingerprint("600519", models.FactorPriceMove, a, time.Hour), Fingerprint("600519", models.FactorPriceMove, c, time.Hour))
	assert.NotEqual(t, Fingerprint("600519", models.FactorPriceMove, a, time.Hour), Fingerprint("600519", models.TypeComposite, a, time.Hour))
	assert.Equal(t, "600519|PRICE_MOVE|1709632800", Fingerprint("600519", models.FactorPriceMove, a, time.Hour))
}

func TestSubmitConcurrentFiresYieldOneAlert(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	queue := repository.NewMemoryDeliveryQueue(100)
	pub := &recordingPublisher{}
	e, m := newEngine(t, store, queue, pub)
	at := time.Date(2024, 3, 5, 10, 5, 0, 0, time.UTC)

	const fires = 20
	var wg sync.WaitGroup
	results := make(chan *models.Alert, fires)
	for i := 0; i < fires; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := e.Submit(ctx, candidate(at.Add(time.Duration(i)*time.Second)))
			assert.NoError(t, err)
			results <- a
		}(i)
	}
	wg.Wait()
	close(results)

	created := 0
	for a := range results {
		if a != nil {
			created++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, fires-1, m.suppressed)

	alerts, err := store.QueryAlerts(ctx, models.AlertQuery{Symbol: "600519"})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.LevelWarning, alerts[0].Level)
	assert.Equal(t, 4.2, alerts[0].Details["percent_change"])

	recent, err := queue.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
	assert.Len(t, pub.got, 1)
}

func TestSubmitNextBucketAlertsAgain(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, repository.NewMemoryStore(), repository.NewMemoryDeliveryQueue(100), nil)
	at := time.Date(2024, 3, 5, 10, 5, 0, 0, time.UTC)

	first, err := e.Submit(ctx, candidate(at))
	require.NoError(t, err)
	require.NotNil(t, first)

	next, err := e.Submit(ctx, candidate(at.Add(time.Hour)))
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.NotEqual(t, first.Fingerprint, next.Fingerprint)
}

func TestSubmitQueueFailureKeepsAlert(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	e, m := newEngine(t, store, failingQueue{}, nil)
	at := time.Date(2024, 3, 5, 10, 5, 0, 0, time.UTC)

	a, err := e.Submit(ctx, candidate(at))
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, 1, m.errorCount("delivery_queue"))

	alerts, err := store.QueryAlerts(ctx, models.AlertQuery{Symbol: "600519"})
	require.NoError(t, err)
	assert.Len(t, alerts, 1)

	// fingerprint stays open
	again, err := e.Submit(ctx, candidate(at))
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestSubmitPersistFailureReleasesFingerprint(t *testing.T) {
	ctx := context.Background()
	store := &flakyAlertStore{MemoryStore: repository.NewMemoryStore(), failures: 1}
	queue := repository.NewMemoryDeliveryQueue(100)
	e, _ := newEngine(t, store, queue, nil)
	at := time.Date(2024, 3, 5, 10, 5, 0, 0, time.UTC)

	a, err := e.Submit(ctx, candidate(at))
	require.ErrorIs(t, err, errBoom)
	assert.Nil(t, a)
	recent, _ := queue.Recent(ctx, 10)
	assert.Empty(t, recent)

	a, err = e.Submit(ctx, candidate(at))
	require.NoError(t, err)
	require.NotNil(t, a)
}
