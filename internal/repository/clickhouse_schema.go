package repository

import "fmt"

// Schema returns the idempotent DDL for database. Every table is a
// ReplacingMergeTree keyed by its natural key and versioned by write time,
// so repeated upserts collapse and reads use FINAL.
func Schema(database string) []string {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS %[1]s.ticks (
			symbol     LowCardinality(String),
			ts         DateTime64(3, 'UTC'),
			close      Float64,
			high       Float64,
			low        Float64,
			volume     Float64,
			prev_close Float64,
			version    UInt64
		) ENGINE = ReplacingMergeTree(version)
		PARTITION BY toYYYYMM(ts)
		ORDER BY (symbol, ts)`,

		`CREATE TABLE IF NOT EXISTS %[1]s.anomalies (
			symbol          LowCardinality(String),
			window_start    DateTime64(3, 'UTC'),
			window_end      DateTime64(3, 'UTC'),
			detected_at     DateTime64(3, 'UTC'),
			reference_price Float64,
			last_price      Float64,
			percent_change  Float64,
			volume_ratio    Float64,
			classification  LowCardinality(String),
			version         UInt64
		) ENGINE = ReplacingMergeTree(version)
		ORDER BY (symbol, window_start, window_end)`,

		`CREATE TABLE IF NOT EXISTS %[1]s.news (
			hash         String,
			source       LowCardinality(String),
			published_at DateTime64(3, 'UTC'),
			title        String,
			body         String,
			symbols      String,
			version      UInt64
		) ENGINE = ReplacingMergeTree(version)
		ORDER BY hash`,

		`CREATE TABLE IF NOT EXISTS %[1]s.news_sentiment (
			news_hash  String,
			score      Float64,
			confidence Float64,
			scored_at  DateTime64(3, 'UTC'),
			version    UInt64
		) ENGINE = ReplacingMergeTree(version)
		ORDER BY news_hash`,

		`CREATE TABLE IF NOT EXISTS %[1]s.correlations (
			anomaly_key         String,
			news_hash           String,
			symbol              LowCardinality(String),
			anomaly_time        DateTime64(3, 'UTC'),
			news_time           DateTime64(3, 'UTC'),
			news_title          String,
			time_proximity      Float64,
			explicit_mention    Float64,
			sentiment_alignment Float64,
			sentiment           Nullable(Float64),
			score               Float64,
			direction           LowCardinality(String),
			created_at          DateTime64(3, 'UTC'),
			version             UInt64
		) ENGINE = ReplacingMergeTree(version)
		ORDER BY (anomaly_key, news_hash)`,

		`CREATE TABLE IF NOT EXISTS %[1]s.alerts (
			fingerprint     String,
			id              String,
			symbol          LowCardinality(String),
			name            String,
			type            LowCardinality(String),
			level           LowCardinality(String),
			message         String,
			details         String,
			created_at      DateTime64(3, 'UTC'),
			acknowledged    Bool,
			acknowledged_at Nullable(DateTime64(3, 'UTC')),
			version         UInt64
		) ENGINE = ReplacingMergeTree(version)
		ORDER BY fingerprint`,
	}

	out := make([]string, 0, len(tables)+1)
	out = append(out, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database))
	for _, t := range tables {
		out = append(out, fmt.Sprintf(t, database))
	}
	return out
}
