package usecase

import (
	"context"
	"testing"
	"time"

	"FinAlert/internal/domain/models"
	"FinAlert/internal/repository"
	applogger "FinAlert/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectClassifiesMoves(t *testing.T) {
	d := NewAnomalyDetector(testConfig(t), repository.NewMemoryStore(), newMetrics(), applogger.Nop())
	end := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	quiet := d.Detect(rising("600519", end, 5, 100, 101, 100))
	require.NotNil(t, quiet)
	assert.Nil(t, quiet.Anomaly)
	assert.InDelta(t, 1, quiet.PercentChange, 1e-9)

	mild := d.Detect(rising("600519", end, 5, 100, 104.2, 100))
	require.NotNil(t, mild)
	require.NotNil(t, mild.Anomaly)
	assert.Equal(t, models.ClassMild, mild.Anomaly.Classification)
	assert.Equal(t, end, mild.Anomaly.DetectedAt)

	severe := d.Detect(rising("600519", end, 5, 100, 94, 100))
	require.NotNil(t, severe.Anomaly)
	assert.Equal(t, models.ClassSevere, severe.Anomaly.Classification)

	assert.Nil(t, d.Detect(rising("600519", end, 5, 100, 101, 100)[:1]))
}

func TestDetectVolumeOnly(t *testing.T) {
	d := NewAnomalyDetector(testConfig(t), repository.NewMemoryStore(), newMetrics(), applogger.Nop())
	bars := rising("600519", time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), 6, 100, 100.5, 100)
	bars[len(bars)-1].Volume = 2500

	sig := d.Detect(bars)
	require.NotNil(t, sig)
	require.NotNil(t, sig.Anomaly)
	assert.InDelta(t, 2.5, sig.VolumeRatio, 1e-9)
	assert.Equal(t, models.ClassMild, sig.Anomaly.Classification)
}

func TestDetectAndRecordTwiceStoresOnce(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	m := newMetrics()
	d := NewAnomalyDetector(testConfig(t), store, m, applogger.Nop())
	bars := rising("600519", time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), 5, 100, 104.2, 100)

	for i := 0; i < 2; i++ {
		sig, err := d.DetectAndRecord(ctx, bars)
		require.NoError(t, err)
		require.NotNil(t, sig.Anomaly)
	}

	got, err := store.ListAnomalies(ctx, "600519", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, m.anomalies)
}
