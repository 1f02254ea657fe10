package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"FinAlert/internal/domain/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
symbols:
  - code: "600519"
    name: 贵州茅台
store:
  backend: memory
delivery:
  backend: memory
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 240, c.Detector.Bars)
	assert.Equal(t, 3.0, c.Rules.PriceWarning)
	assert.Equal(t, 5.0, c.Rules.PriceCritical)
	assert.Equal(t, 100, c.Delivery.Capacity)
	assert.Equal(t, "stock:alerts:realtime", c.Delivery.Key)
	assert.Equal(t, time.Hour, c.Dedup.Bucket)
	assert.Equal(t, 2*time.Hour, c.Correlation.Lookback)
	assert.Equal(t, time.Hour, c.Correlation.Lookahead)
	assert.Equal(t, 0.5, c.Correlation.Threshold)
	assert.Equal(t, 60*time.Second, c.Scheduler.Interval)
	assert.Equal(t, 10.0, c.Resilience.UpstreamRPS)
	assert.Equal(t, "store", c.Finnhub.Sink)
}

func TestParseRejectsInvalidSettings(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"no symbols", "store:\n  backend: memory\n"},
		{"duplicate symbol", `
symbols: [{code: "600519"}, {code: "600519"}]
store: {backend: memory}
`},
		{"capacity too small", `
symbols: [{code: "600519"}]
store: {backend: memory}
delivery: {backend: memory, capacity: 5}
`},
		{"unknown store", `
symbols: [{code: "600519"}]
store: {backend: postgres}
`},
		{"clickhouse without host", `
symbols: [{code: "600519"}]
`},
		{"critical below warning", minimalYAML + `
rules: {price_warning: 5, price_critical: 3}
`},
		{"rsi bands inverted", minimalYAML + `
rules: {rsi_oversold: 80, rsi_overbought: 70}
`},
		{"kafka sink without kafka", minimalYAML + `
finnhub: {enabled: true, api_key: k, sink: kafka}
`},
		{"macd fast not below slow", minimalYAML + `
indicators: {macd_fast: 26, macd_slow: 12}
`},
		{"suppression window shorter than bucket", minimalYAML + `
dedup: {bucket: 1h, suppression_window: 20m}
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrConfiguration)
		})
	}
}

func TestParseKeepsExplicitZeroValues(t *testing.T) {
	c, err := Parse([]byte(minimalYAML + `
server: {cors: false}
correlation: {lookahead: 0s}
kafka: {required_acks: 0}
indicators: {rsi_period: 9}
`))
	require.NoError(t, err)

	assert.False(t, c.Server.CORS)
	assert.Equal(t, time.Duration(0), c.Correlation.Lookahead)
	assert.Equal(t, 0, c.Kafka.RequiredAcks)
	assert.Equal(t, 9, c.Indicators.RSIPeriod)
	// siblings of an explicit key still get their defaults
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 2*time.Hour, c.Correlation.Lookback)
	assert.Equal(t, 12, c.Indicators.MACDFast)
}

func TestParseAcceptsWindowAtLeastBucket(t *testing.T) {
	c, err := Parse([]byte(minimalYAML + `
dedup: {bucket: 30m, suppression_window: 2h}
`))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, c.Dedup.SuppressionWindow)
}

func TestParseRejectsBadYAML(t *testing.T) {
	_, err := Parse([]byte("symbols: [oops"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, errs.ErrConfiguration)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	t.Setenv("SYMBOLS", "600519:贵州茅台, 000001:平安银行,300750")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SENTIMENT_URL", "http://sentiment:8000")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)

	require.Len(t, c.Symbols, 3)
	assert.Equal(t, SymbolConfig{Code: "000001", Name: "平安银行"}, c.Symbols[1])
	assert.Equal(t, "300750", c.Symbols[2].Code)
	assert.Empty(t, c.Symbols[2].Name)
	assert.Equal(t, "redis", c.Redis.Host)
	assert.Equal(t, 6380, c.Redis.Port)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "http://sentiment:8000", c.Sentiment.URL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestShippedConfigIsValid(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "贵州茅台", c.SymbolName("600519"))
	assert.Equal(t, "", c.SymbolName("999999"))
}
