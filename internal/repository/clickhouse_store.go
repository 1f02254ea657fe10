package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"FinAlert/internal/domain/errs"
	"FinAlert/internal/domain/models"
	domrepo "FinAlert/internal/domain/repository"
	pkgch "FinAlert/pkg/clickhouse"
	applogger "FinAlert/pkg/logger"
)

const tickChunkSize = 2000

// CHStore implements the durable store on ClickHouse.
type CHStore struct {
	db  *sql.DB
	ch  *pkgch.Client
	dbn string
	l   *applogger.Logger
	now func() time.Time
}

func NewCHStore(ch *pkgch.Client, l *applogger.Logger) *CHStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHStore{db: ch.DB(), ch: ch, dbn: ch.Database(), l: l, now: time.Now}
}

// Init creates the database and tables when missing.
func (s *CHStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, Schema(s.dbn))
}

func (s *CHStore) table(name string) string { return s.dbn + "." + name }

func (s *CHStore) version() uint64 { return uint64(s.now().UnixNano()) }

func (s *CHStore) StoreTicks(ctx context.Context, ticks []models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	v := s.version()
	for start := 0; start < len(ticks); start += tickChunkSize {
		end := start + tickChunkSize
		if end > len(ticks) {
			end = len(ticks)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, t := range ticks[start:end] {
			if t.Symbol == "" || t.Timestamp.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, t.Symbol, t.Timestamp.UTC(), t.Close, t.High, t.Low, t.Volume, t.PrevClose, v)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, ts, close, high, low, volume, prev_close, version) VALUES %s",
			s.table("ticks"), strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse store_ticks error", applogger.Int("rows", len(values)), applogger.Error(err))
			return fmt.Errorf("store ticks: %w", err)
		}
	}
	return nil
}

// LatestTicks returns up to n newest ticks in ascending time order.
func (s *CHStore) LatestTicks(ctx context.Context, symbol string, n int) ([]models.Tick, error) {
	q := fmt.Sprintf(`SELECT symbol, ts, close, high, low, volume, prev_close
		FROM %s FINAL
		WHERE symbol = ?
		ORDER BY ts DESC
		LIMIT ?`, s.table("ticks"))
	rows, err := s.db.QueryContext(ctx, q, symbol, n)
	if err != nil {
		s.l.Error("clickhouse latest_ticks query error", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("latest ticks: %w", err)
	}
	defer rows.Close()

	out := make([]models.Tick, 0, n)
	for rows.Next() {
		var t models.Tick
		if err := rows.Scan(&t.Symbol, &t.Timestamp, &t.Close, &t.High, &t.Low, &t.Volume, &t.PrevClose); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		t.Timestamp = t.Timestamp.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *CHStore) UpsertAnomaly(ctx context.Context, a models.PriceAnomaly) (bool, error) {
	exists, err := s.exists(ctx, "anomalies", "symbol = ? AND window_start = ? AND window_end = ?",
		a.Symbol, a.WindowStart.UTC(), a.WindowEnd.UTC())
	if err != nil || exists {
		return false, err
	}
	q := fmt.Sprintf(`INSERT INTO %s (symbol, window_start, window_end, detected_at, reference_price,
		last_price, percent_change, volume_ratio, classification, version) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.table("anomalies"))
	if _, err := s.db.ExecContext(ctx, q, a.Symbol, a.WindowStart.UTC(), a.WindowEnd.UTC(), a.DetectedAt.UTC(),
		a.ReferencePrice, a.LastPrice, a.PercentChange, a.VolumeRatio, string(a.Classification), s.version()); err != nil {
		return false, fmt.Errorf("upsert anomaly %s: %w", a.Key(), err)
	}
	return true, nil
}

func (s *CHStore) ListAnomalies(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.PriceAnomaly, error) {
	where, args := rangeFilter("detected_at", symbol, from, to)
	q := fmt.Sprintf(`SELECT symbol, window_start, window_end, detected_at, reference_price,
		last_price, percent_change, volume_ratio, classification
		FROM %s FINAL
		WHERE %s
		ORDER BY detected_at DESC%s`, s.table("anomalies"), where, limitClause(limit, &args))
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	defer rows.Close()

	var out []models.PriceAnomaly
	for rows.Next() {
		var a models.PriceAnomaly
		var class string
		if err := rows.Scan(&a.Symbol, &a.WindowStart, &a.WindowEnd, &a.DetectedAt, &a.ReferencePrice,
			&a.LastPrice, &a.PercentChange, &a.VolumeRatio, &class); err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		a.Classification = models.Classification(class)
		a.WindowStart, a.WindowEnd, a.DetectedAt = a.WindowStart.UTC(), a.WindowEnd.UTC(), a.DetectedAt.UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *CHStore) UpsertNews(ctx context.Context, n models.NewsItem) (bool, error) {
	n.EnsureHash()
	exists, err := s.exists(ctx, "news", "hash = ?", n.Hash)
	if err != nil || exists {
		return false, err
	}
	q := fmt.Sprintf("INSERT INTO %s (hash, source, published_at, title, body, symbols, version) VALUES (?, ?, ?, ?, ?, ?, ?)",
		s.table("news"))
	if _, err := s.db.ExecContext(ctx, q, n.Hash, n.Source, n.PublishedAt.UTC(), n.Title, n.Body,
		strings.Join(n.Symbols, ","), s.version()); err != nil {
		return false, fmt.Errorf("upsert news %s: %w", n.Hash, err)
	}
	return true, nil
}

func (s *CHStore) NewsBetween(ctx context.Context, from, to time.Time) ([]models.NewsItem, error) {
	q := fmt.Sprintf(`SELECT hash, source, published_at, title, body, symbols
		FROM %s FINAL
		WHERE published_at >= ? AND published_at <= ?
		ORDER BY published_at DESC`, s.table("news"))
	rows, err := s.db.QueryContext(ctx, q, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("news between: %w", err)
	}
	defer rows.Close()

	var out []models.NewsItem
	for rows.Next() {
		var n models.NewsItem
		var symbols string
		if err := rows.Scan(&n.Hash, &n.Source, &n.PublishedAt, &n.Title, &n.Body, &symbols); err != nil {
			return nil, fmt.Errorf("scan news: %w", err)
		}
		n.PublishedAt = n.PublishedAt.UTC()
		if symbols != "" {
			n.Symbols = strings.Split(symbols, ",")
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *CHStore) GetSentiment(ctx context.Context, newsHash string) (*models.SentimentScore, error) {
	q := fmt.Sprintf("SELECT news_hash, score, confidence, scored_at FROM %s FINAL WHERE news_hash = ? LIMIT 1",
		s.table("news_sentiment"))
	var sc models.SentimentScore
	err := s.db.QueryRowContext(ctx, q, newsHash).Scan(&sc.NewsHash, &sc.Score, &sc.Confidence, &sc.ScoredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sentiment %s: %w", newsHash, err)
	}
	sc.ScoredAt = sc.ScoredAt.UTC()
	return &sc, nil
}

func (s *CHStore) UpsertSentiment(ctx context.Context, sc models.SentimentScore) error {
	q := fmt.Sprintf("INSERT INTO %s (news_hash, score, confidence, scored_at, version) VALUES (?, ?, ?, ?, ?)",
		s.table("news_sentiment"))
	if _, err := s.db.ExecContext(ctx, q, sc.NewsHash, sc.Score, sc.Confidence, sc.ScoredAt.UTC(), s.version()); err != nil {
		return fmt.Errorf("upsert sentiment %s: %w", sc.NewsHash, err)
	}
	return nil
}

func (s *CHStore) UpsertCorrelation(ctx context.Context, c models.Correlation) (bool, error) {
	exists, err := s.exists(ctx, "correlations", "anomaly_key = ? AND news_hash = ?", c.AnomalyKey, c.NewsHash)
	if err != nil || exists {
		return false, err
	}
	q := fmt.Sprintf(`INSERT INTO %s (anomaly_key, news_hash, symbol, anomaly_time, news_time, news_title,
		time_proximity, explicit_mention, sentiment_alignment, sentiment, score, direction, created_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table("correlations"))
	if _, err := s.db.ExecContext(ctx, q, c.AnomalyKey, c.NewsHash, c.Symbol, c.AnomalyTime.UTC(), c.NewsTime.UTC(),
		c.NewsTitle, c.TimeProximity, c.ExplicitMention, c.SentimentAlignment, c.Sentiment, c.Score,
		string(c.Direction), c.CreatedAt.UTC(), s.version()); err != nil {
		return false, fmt.Errorf("upsert correlation %s: %w", c.Key(), err)
	}
	return true, nil
}

func (s *CHStore) ListCorrelations(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.Correlation, error) {
	where, args := rangeFilter("anomaly_time", symbol, from, to)
	q := fmt.Sprintf(`SELECT anomaly_key, news_hash, symbol, anomaly_time, news_time, news_title,
		time_proximity, explicit_mention, sentiment_alignment, sentiment, score, direction, created_at
		FROM %s FINAL
		WHERE %s
		ORDER BY anomaly_time DESC, score DESC%s`, s.table("correlations"), where, limitClause(limit, &args))
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list correlations: %w", err)
	}
	defer rows.Close()

	var out []models.Correlation
	for rows.Next() {
		var c models.Correlation
		var sentiment sql.NullFloat64
		var dir string
		if err := rows.Scan(&c.AnomalyKey, &c.NewsHash, &c.Symbol, &c.AnomalyTime, &c.NewsTime, &c.NewsTitle,
			&c.TimeProximity, &c.ExplicitMention, &c.SentimentAlignment, &sentiment, &c.Score, &dir, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan correlation: %w", err)
		}
		if sentiment.Valid {
			v := sentiment.Float64
			c.Sentiment = &v
		}
		c.Direction = models.Direction(dir)
		c.AnomalyTime, c.NewsTime, c.CreatedAt = c.AnomalyTime.UTC(), c.NewsTime.UTC(), c.CreatedAt.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

const alertColumns = "fingerprint, id, symbol, name, type, level, message, details, created_at, acknowledged, acknowledged_at"

// UpsertAlert inserts a unless its fingerprint is already stored, in which case
// the stored record is returned. When two writers race on one fingerprint the
// row with the higher version survives FINAL and both report it. A row that is
// not yet visible after the insert is reported as a write conflict.
func (s *CHStore) UpsertAlert(ctx context.Context, a models.Alert) (models.Alert, bool, error) {
	existing, found, err := s.alertBy(ctx, "fingerprint = ?", a.Fingerprint)
	if err != nil {
		return models.Alert{}, false, err
	}
	if found {
		return existing, false, nil
	}

	if err := s.insertAlert(ctx, a); err != nil {
		return models.Alert{}, false, err
	}

	stored, found, err := s.alertBy(ctx, "fingerprint = ?", a.Fingerprint)
	if err != nil {
		return models.Alert{}, false, err
	}
	if !found {
		return models.Alert{}, false, errs.WriteConflict(a.Fingerprint)
	}
	return stored, stored.ID == a.ID, nil
}

func (s *CHStore) QueryAlerts(ctx context.Context, aq models.AlertQuery) ([]models.Alert, error) {
	where, args := rangeFilter("created_at", aq.Symbol, aq.From, aq.To)
	if aq.Level != "" {
		where += " AND level = ?"
		args = append(args, string(aq.Level))
	}
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE %s ORDER BY created_at DESC%s",
		alertColumns, s.table("alerts"), where, limitClause(aq.Limit, &args))
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse query_alerts error", applogger.String("symbol", aq.Symbol), applogger.Error(err))
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Acknowledge writes a new version of the alert with the flag set.
func (s *CHStore) Acknowledge(ctx context.Context, id string, at time.Time) (bool, error) {
	a, found, err := s.alertBy(ctx, "id = ?", id)
	if err != nil || !found {
		return false, err
	}
	if a.Acknowledged {
		return true, nil
	}
	at = at.UTC()
	a.Acknowledged = true
	a.AcknowledgedAt = &at
	if err := s.insertAlert(ctx, a); err != nil {
		return false, err
	}
	return true, nil
}

func (s *CHStore) insertAlert(ctx context.Context, a models.Alert) error {
	details, err := json.Marshal(a.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	var ackAt *time.Time
	if a.AcknowledgedAt != nil {
		t := a.AcknowledgedAt.UTC()
		ackAt = &t
	}
	q := fmt.Sprintf("INSERT INTO %s (%s, version) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.table("alerts"), alertColumns)
	if _, err := s.db.ExecContext(ctx, q, a.Fingerprint, a.ID, a.Symbol, a.Name, string(a.Type), string(a.Level),
		a.Message, string(details), a.CreatedAt.UTC(), a.Acknowledged, ackAt, s.version()); err != nil {
		return fmt.Errorf("insert alert %s: %w", a.Fingerprint, err)
	}
	return nil
}

func (s *CHStore) alertBy(ctx context.Context, cond string, arg interface{}) (models.Alert, bool, error) {
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE %s LIMIT 1", alertColumns, s.table("alerts"), cond)
	rows, err := s.db.QueryContext(ctx, q, arg)
	if err != nil {
		return models.Alert{}, false, fmt.Errorf("lookup alert: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return models.Alert{}, false, rows.Err()
	}
	a, err := scanAlert(rows)
	if err != nil {
		return models.Alert{}, false, err
	}
	return a, true, nil
}

func scanAlert(rows *sql.Rows) (models.Alert, error) {
	var (
		a       models.Alert
		typ     string
		level   string
		details string
		ackAt   sql.NullTime
	)
	if err := rows.Scan(&a.Fingerprint, &a.ID, &a.Symbol, &a.Name, &typ, &level, &a.Message, &details,
		&a.CreatedAt, &a.Acknowledged, &ackAt); err != nil {
		return a, fmt.Errorf("scan alert: %w", err)
	}
	a.Type = models.FactorTag(typ)
	a.Level = models.Level(level)
	a.CreatedAt = a.CreatedAt.UTC()
	if ackAt.Valid {
		t := ackAt.Time.UTC()
		a.AcknowledgedAt = &t
	}
	if details != "" {
		if err := json.Unmarshal([]byte(details), &a.Details); err != nil {
			return a, fmt.Errorf("decode alert details: %w", err)
		}
	}
	return a, nil
}

func (s *CHStore) exists(ctx context.Context, table, cond string, args ...interface{}) (bool, error) {
	q := fmt.Sprintf("SELECT count() FROM %s FINAL WHERE %s", s.table(table), cond)
	var n uint64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("exists %s: %w", table, err)
	}
	return n > 0, nil
}

// rangeFilter builds "symbol = ? [AND col >= ?] [AND col <= ?]"; zero bounds are open.
func rangeFilter(col, symbol string, from, to time.Time) (string, []interface{}) {
	where := "symbol = ?"
	args := []interface{}{symbol}
	if !from.IsZero() {
		where += fmt.Sprintf(" AND %s >= ?", col)
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		where += fmt.Sprintf(" AND %s <= ?", col)
		args = append(args, to.UTC())
	}
	return where, args
}

func limitClause(limit int, args *[]interface{}) string {
	if limit <= 0 {
		return ""
	}
	*args = append(*args, limit)
	return " LIMIT ?"
}

func (s *CHStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *CHStore) Close() error {
	return s.ch.Close()
}

var _ domrepo.Store = (*CHStore)(nil)
