package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"FinAlert/internal/domain/errs"
	"FinAlert/internal/domain/models"
	pkgch "FinAlert/pkg/clickhouse"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alertCols = []string{"fingerprint", "id", "symbol", "name", "type", "level", "message", "details",
	"created_at", "acknowledged", "acknowledged_at"}

func newMockStore(t *testing.T) (*CHStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := NewCHStore(pkgch.NewClientFromDB(db, "finalert"), nil)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	return s, mock
}

func sampleAlert() models.Alert {
	return models.Alert{
		ID:          "0b8f0c8e-7d55-4a3e-9c8e-2f4d6d1f2a10",
		Symbol:      "600519",
		Name:        "Kweichow Moutai",
		Type:        models.FactorPriceMove,
		Level:       models.LevelWarning,
		Message:     "price moved +4.2% (threshold 3%)",
		CreatedAt:   time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC),
		Fingerprint: "600519|PRICE_MOVE|1709632800",
		Details:     map[string]any{"percent_change": 4.2},
	}
}

func alertRow(a models.Alert) *sqlmock.Rows {
	return sqlmock.NewRows(alertCols).AddRow(a.Fingerprint, a.ID, a.Symbol, a.Name, string(a.Type), string(a.Level),
		a.Message, `{"percent_change":4.2}`, a.CreatedAt, a.Acknowledged, nil)
}

var alertByFingerprint = regexp.QuoteMeta("FROM finalert.alerts FINAL WHERE fingerprint = ?")

func TestCHStoreUpsertAlertInserts(t *testing.T) {
	s, mock := newMockStore(t)
	a := sampleAlert()

	mock.ExpectQuery(alertByFingerprint).WithArgs(a.Fingerprint).WillReturnRows(sqlmock.NewRows(alertCols))
	mock.ExpectExec("INSERT INTO finalert.alerts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(alertByFingerprint).WithArgs(a.Fingerprint).WillReturnRows(alertRow(a))

	stored, created, err := s.UpsertAlert(context.Background(), a)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, a.ID, stored.ID)
	assert.Equal(t, 4.2, stored.Details["percent_change"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHStoreUpsertAlertReturnsExisting(t *testing.T) {
	s, mock := newMockStore(t)
	first := sampleAlert()
	second := first
	second.ID = "5d1f8f3e-0000-4000-8000-000000000001"

	mock.ExpectQuery(alertByFingerprint).WithArgs(first.Fingerprint).WillReturnRows(alertRow(first))

	stored, created, err := s.UpsertAlert(context.Background(), second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, stored.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHStoreUpsertAlertLostRace(t *testing.T) {
	s, mock := newMockStore(t)
	mine := sampleAlert()
	winner := mine
	winner.ID = "5d1f8f3e-0000-4000-8000-000000000002"

	mock.ExpectQuery(alertByFingerprint).WillReturnRows(sqlmock.NewRows(alertCols))
	mock.ExpectExec("INSERT INTO finalert.alerts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(alertByFingerprint).WillReturnRows(alertRow(winner))

	stored, created, err := s.UpsertAlert(context.Background(), mine)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, winner.ID, stored.ID)
}

func TestCHStoreUpsertAlertNotVisibleIsConflict(t *testing.T) {
	s, mock := newMockStore(t)
	a := sampleAlert()

	mock.ExpectQuery(alertByFingerprint).WillReturnRows(sqlmock.NewRows(alertCols))
	mock.ExpectExec("INSERT INTO finalert.alerts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(alertByFingerprint).WillReturnRows(sqlmock.NewRows(alertCols))

	_, _, err := s.UpsertAlert(context.Background(), a)
	assert.ErrorIs(t, err, errs.ErrStoreWriteConflict)
	assert.True(t, errs.IsRetryable(err))
}

func TestCHStoreQueryAlertsFilters(t *testing.T) {
	s, mock := newMockStore(t)
	a := sampleAlert()

	mock.ExpectQuery(regexp.QuoteMeta("FROM finalert.alerts FINAL WHERE symbol = ? AND level = ? ORDER BY created_at DESC LIMIT ?")).
		WithArgs("600519", "WARNING", 10).
		WillReturnRows(alertRow(a))

	got, err := s.QueryAlerts(context.Background(), models.AlertQuery{Symbol: "600519", Level: models.LevelWarning, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.FactorPriceMove, got[0].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHStoreQueryAlertsUnbounded(t *testing.T) {
	s, mock := newMockStore(t)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE symbol = ? AND created_at >= ? ORDER BY created_at DESC")).
		WithArgs("600519", from).
		WillReturnRows(sqlmock.NewRows(alertCols))

	got, err := s.QueryAlerts(context.Background(), models.AlertQuery{Symbol: "600519", From: from})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHStoreLatestTicksAscending(t *testing.T) {
	s, mock := newMockStore(t)
	t0 := time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"symbol", "ts", "close", "high", "low", "volume", "prev_close"}).
		AddRow("600519", t0.Add(2*time.Minute), 102.0, 102.0, 102.0, 300.0, 100.0).
		AddRow("600519", t0.Add(time.Minute), 101.0, 101.0, 101.0, 200.0, 100.0).
		AddRow("600519", t0, 100.0, 100.0, 100.0, 100.0, 100.0)
	mock.ExpectQuery("FROM finalert.ticks FINAL").WithArgs("600519", 3).WillReturnRows(rows)

	ticks, err := s.LatestTicks(context.Background(), "600519", 3)
	require.NoError(t, err)
	require.Len(t, ticks, 3)
	assert.Equal(t, 100.0, ticks[0].Close)
	assert.Equal(t, 102.0, ticks[2].Close)
}

func TestCHStoreStoreTicksSkipsInvalid(t *testing.T) {
	s, mock := newMockStore(t)
	ts := time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO finalert.ticks (symbol, ts, close, high, low, volume, prev_close, version) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")).
		WithArgs("600519", ts, 100.0, 100.0, 100.0, 10.0, 0.0, uint64(1700000000)*uint64(time.Second)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.StoreTicks(context.Background(), []models.Tick{
		{Symbol: "600519", Timestamp: ts, Close: 100, High: 100, Low: 100, Volume: 10},
		{Symbol: "", Timestamp: ts, Close: 1},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHStoreUpsertAnomalyIdempotent(t *testing.T) {
	s, mock := newMockStore(t)
	a := models.PriceAnomaly{
		Symbol:      "600519",
		WindowStart: time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC),
		WindowEnd:   time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC),
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT count() FROM finalert.anomalies FINAL")).
		WillReturnRows(sqlmock.NewRows([]string{"count()"}).AddRow(int64(0)))
	mock.ExpectExec("INSERT INTO finalert.anomalies").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count() FROM finalert.anomalies FINAL")).
		WillReturnRows(sqlmock.NewRows([]string{"count()"}).AddRow(int64(1)))

	created, err := s.UpsertAnomaly(context.Background(), a)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.UpsertAnomaly(context.Background(), a)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCHStoreGetSentimentMissing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM finalert.news_sentiment FINAL").WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"news_hash", "score", "confidence", "scored_at"}))

	got, err := s.GetSentiment(context.Background(), "abc")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCHStoreAcknowledge(t *testing.T) {
	s, mock := newMockStore(t)
	a := sampleAlert()
	byID := regexp.QuoteMeta("FROM finalert.alerts FINAL WHERE id = ?")

	mock.ExpectQuery(byID).WithArgs("missing").WillReturnRows(sqlmock.NewRows(alertCols))
	ok, err := s.Acknowledge(context.Background(), "missing", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectQuery(byID).WithArgs(a.ID).WillReturnRows(alertRow(a))
	mock.ExpectExec("INSERT INTO finalert.alerts").WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err = s.Acknowledge(context.Background(), a.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaUsesReplacingMergeTree(t *testing.T) {
	stmts := Schema("finalert")
	require.Len(t, stmts, 7)
	assert.Equal(t, "CREATE DATABASE IF NOT EXISTS finalert", stmts[0])
	for _, stmt := range stmts[1:] {
		assert.Contains(t, stmt, "CREATE TABLE IF NOT EXISTS finalert.")
		assert.Contains(t, stmt, "ReplacingMergeTree(version)")
	}
}
