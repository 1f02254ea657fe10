package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"FinAlert/internal/domain/errs"
	"FinAlert/internal/domain/models"
	mid "FinAlert/internal/middleware"
	"FinAlert/internal/repository"
	applogger "FinAlert/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTickPublisher struct {
	mu  sync.Mutex
	got []models.Tick
	err error
}

func (p *recordingTickPublisher) PublishTicks(_ context.Context, ticks []models.Tick) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.got = append(p.got, ticks...)
	return nil
}

func tick(symbol string, at time.Time, price float64) models.Tick {
	return models.Tick{Symbol: symbol, Timestamp: at, Close: price, High: price, Low: price, Volume: 10}
}

func TestTickProcessorSinks(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	store := repository.NewMemoryStore()
	m := newMetrics()
	require.NoError(t, NewTickProcessor(store, nil, m, "store").Process(ctx, tick("AAPL", at, 190)))
	got, err := store.LatestTicks(ctx, "AAPL", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, m.ingested)

	pub := &recordingTickPublisher{}
	require.NoError(t, NewTickProcessor(store, pub, newMetrics(), "kafka").ProcessBatch(ctx, []models.Tick{tick("AAPL", at, 190), tick("MSFT", at, 410)}))
	assert.Len(t, pub.got, 2)

	m = newMetrics()
	err = NewTickProcessor(store, &recordingTickPublisher{err: errBoom}, m, "kafka").Process(ctx, tick("AAPL", at, 190))
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, m.errorCount("tick_process"))

	assert.Error(t, NewTickProcessor(store, nil, newMetrics(), "kafka").Process(ctx, tick("AAPL", at, 190)))
	assert.Error(t, NewTickProcessor(store, nil, newMetrics(), "s3").Process(ctx, tick("AAPL", at, 190)))
}

type fakeStream struct {
	mu         sync.Mutex
	batches    [][]*models.Tick
	reads      int
	reconnects int
	connected  bool
}

func (s *fakeStream) Connect(context.Context) error {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Subscribe(context.Context) error { return nil }

// Read replays the next batch and then fails the stream; once batches run
// out it stays open until ctx ends.
func (s *fakeStream) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	s.mu.Lock()
	var batch []*models.Tick
	last := s.reads >= len(s.batches)
	if !last {
		batch = s.batches[s.reads]
	}
	s.reads++
	s.mu.Unlock()

	ticks := make(chan *models.Tick, len(batch))
	errCh := make(chan error, 1)
	for _, t := range batch {
		ticks <- t
	}
	go func() {
		if last {
			<-ctx.Done()
		} else {
			errCh <- errors.New("connection reset")
		}
		close(ticks)
		close(errCh)
	}()
	return ticks, errCh
}

func (s *fakeStream) Reconnect(context.Context) error {
	s.mu.Lock()
	s.reconnects++
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func TestTickCollectorReadsAgainAfterReconnect(t *testing.T) {
	at := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	t1, t2 := tick("AAPL", at, 190), tick("AAPL", at.Add(time.Second), 191)
	stream := &fakeStream{batches: [][]*models.Tick{{&t1}, {&t2}}}
	store := repository.NewMemoryStore()
	m := newMetrics()
	pipe := mid.NewTickPipeline(NewTickProcessor(store, nil, m, "store"), m, mid.WithMaxRPS(0))
	c := NewTickCollector(stream, pipe, m, applogger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))
	assert.True(t, c.IsConnected())

	assert.Eventually(t, func() bool {
		got, _ := store.LatestTicks(context.Background(), "AAPL", 10)
		return len(got) == 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-c.Done()
	require.NoError(t, c.Shutdown(context.Background()))
	assert.False(t, c.IsConnected())

	stream.mu.Lock()
	defer stream.mu.Unlock()
	assert.Equal(t, 2, stream.reconnects)
}

func TestKafkaTicksHandler(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	m := newMetrics()
	h := NewKafkaTicksHandler("stock.ticks", store, m, applogger.Nop())
	assert.Equal(t, "stock.ticks", h.Topic())

	b, err := json.Marshal(tick("600519", time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), 1700))
	require.NoError(t, err)
	require.NoError(t, h.Handle(ctx, b))

	assert.NoError(t, h.Handle(ctx, []byte("{not json")))
	assert.NoError(t, h.Handle(ctx, []byte(`{"symbol":"600519","timestamp":"2024-03-05T10:01:00Z","close":-1}`)))
	assert.Equal(t, 2, m.errorCount("consumer_malformed"))

	got, err := store.LatestTicks(ctx, "600519", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

type failingNewsStore struct {
	*repository.MemoryStore
	err error
}

func (s failingNewsStore) UpsertNews(context.Context, models.NewsItem) (bool, error) {
	return false, s.err
}

func TestKafkaNewsHandler(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	store := repository.NewMemoryStore()
	m := newMetrics()
	h := NewKafkaNewsHandler(cfg, store, m, applogger.Nop())
	assert.Equal(t, cfg.Kafka.NewsTopic, h.Topic())

	msg := []byte(`{"source":"sina","published_at":"2024-03-05T09:30:00+08:00","title":"Moutai raises prices","body":"..."}`)
	require.NoError(t, h.Handle(ctx, msg))
	require.NoError(t, h.Handle(ctx, msg))
	assert.Equal(t, 1, m.ingested)

	items, err := store.NewsBetween(ctx, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.NotEmpty(t, items[0].Hash)
	assert.Equal(t, time.Date(2024, 3, 5, 1, 30, 0, 0, time.UTC), items[0].PublishedAt)

	assert.NoError(t, h.Handle(ctx, []byte(`{"title":""}`)))
	assert.NoError(t, h.Handle(ctx, []byte(`[]`)))
	assert.Equal(t, 2, m.errorCount("consumer_malformed"))

	broken := NewKafkaNewsHandler(cfg, failingNewsStore{repository.NewMemoryStore(), errs.WriteConflict("n1")}, newMetrics(), applogger.Nop())
	err = broken.Handle(ctx, msg)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrStoreWriteConflict)
}
