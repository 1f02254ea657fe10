package usecase

import (
	"context"
	"math"
	"time"

	"FinAlert/internal/domain/errs"
	"FinAlert/internal/domain/models"
	domrepo "FinAlert/internal/domain/repository"
	"FinAlert/internal/services/features"
	"FinAlert/pkg/config"
	applogger "FinAlert/pkg/logger"
	"FinAlert/pkg/resilience"
)

// AnomalyDetector flags price and volume moves over the latest bars of a symbol.
type AnomalyDetector struct {
	cfg     config.DetectorConfig
	store   domrepo.AnomalyStore
	writes  *resilience.Policy
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func NewAnomalyDetector(cfg *config.Config, store domrepo.AnomalyStore, metrics domrepo.Metrics, l *applogger.Logger) *AnomalyDetector {
	return &AnomalyDetector{
		cfg:     cfg.Detector,
		store:   store,
		writes:  newWritePolicy("anomaly_store", cfg.Resilience),
		metrics: metrics,
		l:       l,
	}
}

// newWritePolicy retries store writes on key races only.
func newWritePolicy(name string, rc config.ResilienceConfig) *resilience.Policy {
	return resilience.New(name,
		resilience.WithAttempts(rc.MaxAttempts),
		resilience.WithBackoff(rc.BaseDelay, rc.MaxDelay),
		resilience.WithTimeout(rc.Timeout),
		resilience.WithRetryIf(errs.IsRetryable),
	)
}

// Detect computes the price state of ticks (ascending, one symbol) and, when a
// threshold is crossed, attaches the anomaly. It returns nil when there are
// fewer than two bars or no usable reference price.
func (d *AnomalyDetector) Detect(ticks []models.Tick) *models.PriceSignal {
	if len(ticks) < 2 {
		return nil
	}
	ref := features.ReferencePrice(ticks)
	if ref <= 0 {
		return nil
	}
	first, last := ticks[0], ticks[len(ticks)-1]

	sig := &models.PriceSignal{
		LastPrice:     last.Close,
		PercentChange: features.PercentChange(ref, last.Close),
		VolumeRatio:   features.VolumeRatio(ticks, d.cfg.VolumePeriod),
	}

	move := math.Abs(sig.PercentChange)
	if move < d.cfg.PriceThreshold && sig.VolumeRatio < d.cfg.VolumeThreshold {
		return sig
	}

	class := models.ClassMild
	if move >= d.cfg.SevereThreshold {
		class = models.ClassSevere
	}
	sig.Anomaly = &models.PriceAnomaly{
		Symbol:         last.Symbol,
		DetectedAt:     last.Timestamp,
		WindowStart:    first.Timestamp,
		WindowEnd:      last.Timestamp,
		ReferencePrice: ref,
		LastPrice:      last.Close,
		PercentChange:  sig.PercentChange,
		VolumeRatio:    sig.VolumeRatio,
		Classification: class,
	}
	return sig
}

// DetectAndRecord runs Detect and upserts a detected anomaly by its natural key.
func (d *AnomalyDetector) DetectAndRecord(ctx context.Context, ticks []models.Tick) (*models.PriceSignal, error) {
	sig := d.Detect(ticks)
	if sig == nil || sig.Anomaly == nil {
		return sig, nil
	}
	a := *sig.Anomaly

	start := time.Now()
	var created bool
	err := d.writes.Do(ctx, func(ctx context.Context) error {
		var err error
		created, err = d.store.UpsertAnomaly(ctx, a)
		return err
	})
	d.metrics.RecordLatency("anomaly_upsert", time.Since(start).Seconds())
	if err != nil {
		d.metrics.RecordError("anomaly_upsert")
		return sig, err
	}
	if created {
		d.metrics.RecordAnomaly(a.Symbol, string(a.Classification))
		d.l.Info("price anomaly detected",
			applogger.String("symbol", a.Symbol),
			applogger.Float64("percent_change", a.PercentChange),
			applogger.Float64("volume_ratio", a.VolumeRatio),
			applogger.String("classification", string(a.Classification)),
			applogger.Time("detected_at", a.DetectedAt),
		)
	}
	return sig, nil
}
