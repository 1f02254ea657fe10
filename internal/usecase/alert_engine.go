package usecase

import (
	"context"
	"fmt"
	"time"

	"FinAlert/internal/domain/models"
	domrepo "FinAlert/internal/domain/repository"
	"FinAlert/pkg/config"
	applogger "FinAlert/pkg/logger"
	"FinAlert/pkg/resilience"
	"FinAlert/pkg/util"

	"github.com/google/uuid"
)

// Fingerprint identifies an alert condition: symbol, type and the start of the
// time bucket it was observed in.
func Fingerprint(symbol string, typ models.FactorTag, observedAt time.Time, bucket time.Duration) string {
	return fmt.Sprintf("%s|%s|%d", symbol, typ, util.Bucket(observedAt, bucket).Unix())
}

// AlertEngine levels, deduplicates, persists and delivers alert candidates.
type AlertEngine struct {
	cfg       config.DedupConfig
	registry  domrepo.FingerprintRegistry
	store     domrepo.AlertStore
	queue     domrepo.DeliveryQueue
	publisher domrepo.AlertPublisher
	writes    *resilience.Policy
	metrics   domrepo.Metrics
	l         *applogger.Logger
	now       func() time.Time
	newID     func() string
}

// NewAlertEngine builds the engine. publisher may be nil.
func NewAlertEngine(
	cfg *config.Config,
	registry domrepo.FingerprintRegistry,
	store domrepo.AlertStore,
	queue domrepo.DeliveryQueue,
	publisher domrepo.AlertPublisher,
	metrics domrepo.Metrics,
	l *applogger.Logger,
) *AlertEngine {
	return &AlertEngine{
		cfg:       cfg.Dedup,
		registry:  registry,
		store:     store,
		queue:     queue,
		publisher: publisher,
		writes:    newWritePolicy("alert_store", cfg.Resilience),
		metrics:   metrics,
		l:         l,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// Submit turns c into a durable alert unless its fingerprint is already OPEN.
// It returns nil, nil for a suppressed candidate. A persist failure releases
// the fingerprint and returns the error; a delivery failure keeps the alert.
func (e *AlertEngine) Submit(ctx context.Context, c models.AlertCandidate) (*models.Alert, error) {
	fp := Fingerprint(c.Symbol, c.Type, c.ObservedAt, e.cfg.Bucket)
	id := e.newID()

	opened, err := e.registry.Open(ctx, fp, id, e.cfg.SuppressionWindow)
	if err != nil {
		e.metrics.RecordError("fingerprint_open")
		return nil, err
	}
	if !opened {
		e.suppressed(c, fp)
		return nil, nil
	}

	alert := models.Alert{
		ID:          id,
		Symbol:      c.Symbol,
		Name:        c.Name,
		Type:        c.Type,
		Level:       c.Level,
		Message:     c.Message,
		CreatedAt:   e.now().UTC(),
		Fingerprint: fp,
		Details:     details(c),
	}

	var stored models.Alert
	var created bool
	err = e.writes.Do(ctx, func(ctx context.Context) error {
		var err error
		stored, created, err = e.store.UpsertAlert(ctx, alert)
		return err
	})
	if err != nil {
		e.metrics.RecordError("alert_persist")
		if rerr := e.registry.Release(ctx, fp); rerr != nil {
			e.l.Error("release fingerprint failed", applogger.String("fingerprint", fp), applogger.Error(rerr))
		}
		return nil, fmt.Errorf("persist alert %s: %w", fp, err)
	}
	if !created {
		// the store already holds this condition, e.g. the registry lost its state
		e.suppressed(c, fp)
		return nil, nil
	}

	if err := e.queue.Push(ctx, stored); err != nil {
		e.metrics.RecordError("delivery_queue")
		e.l.Error("alert persisted but not queued",
			applogger.String("alert_id", stored.ID),
			applogger.String("fingerprint", fp),
			applogger.Bool("reconcile", true),
			applogger.Error(err),
		)
	}
	if e.publisher != nil {
		if err := e.publisher.PublishAlert(ctx, stored); err != nil {
			e.metrics.RecordError("alert_publish")
			e.l.Warn("alert push failed", applogger.String("alert_id", stored.ID), applogger.Error(err))
		}
	}

	e.metrics.RecordAlert(stored.Symbol, string(stored.Type), string(stored.Level))
	e.l.Info("alert raised",
		applogger.String("alert_id", stored.ID),
		applogger.String("symbol", stored.Symbol),
		applogger.String("type", string(stored.Type)),
		applogger.String("level", string(stored.Level)),
		applogger.String("message", stored.Message),
	)
	return &stored, nil
}

func (e *AlertEngine) suppressed(c models.AlertCandidate, fp string) {
	e.metrics.RecordSuppressed(string(c.Type))
	e.l.Debug("alert suppressed", applogger.String("fingerprint", fp))
}

func details(c models.AlertCandidate) map[string]any {
	d := make(map[string]any, len(c.Metrics)+2)
	for k, v := range c.Metrics {
		d[k] = v
	}
	d["factors"] = c.Factors
	d["observed_at"] = c.ObservedAt.UTC().Format(time.RFC3339)
	return d
}
