package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"FinAlert/internal/domain/errs"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string            `yaml:"environment" default:"development"`
	Log         LogConfig         `yaml:"log"`
	Server      ServerConfig      `yaml:"server"`
	Symbols     []SymbolConfig    `yaml:"symbols"`
	Detector    DetectorConfig    `yaml:"detector"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Rules       RulesConfig       `yaml:"rules"`
	Indicators  IndicatorsConfig  `yaml:"indicators"`
	Sentiment   SentimentConfig   `yaml:"sentiment"`
	Forecast    ForecastConfig    `yaml:"forecast"`
	Dedup       DedupConfig       `yaml:"dedup"`
	Delivery    DeliveryConfig    `yaml:"delivery"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Resilience  ResilienceConfig  `yaml:"resilience"`
	Store       StoreConfig       `yaml:"store"`
	ClickHouse  ClickHouseConfig  `yaml:"clickhouse"`
	Redis       RedisConfig       `yaml:"redis"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Finnhub     FinnhubConfig     `yaml:"finnhub"`
	API         APIConfig         `yaml:"api"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"json"`
	Output string `yaml:"output" default:"stdout"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	SlowRequest     time.Duration `yaml:"slow_request" default:"1s"`
	CORS            bool          `yaml:"cors" default:"true"`
}

type SymbolConfig struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type DetectorConfig struct {
	Bars            int     `yaml:"bars" default:"240"`
	VolumePeriod    int     `yaml:"volume_period" default:"5"`
	PriceThreshold  float64 `yaml:"price_threshold" default:"3"`
	VolumeThreshold float64 `yaml:"volume_threshold" default:"2"`
	SevereThreshold float64 `yaml:"severe_threshold" default:"5"`
}

type CorrelationConfig struct {
	Lookback    time.Duration `yaml:"lookback" default:"2h"`
	Lookahead   time.Duration `yaml:"lookahead" default:"1h"`
	Threshold   float64       `yaml:"threshold" default:"0.5"`
	NeutralBand float64       `yaml:"neutral_band" default:"0.2"`
	Workers     int           `yaml:"workers" default:"8"`
	MemoSize    int           `yaml:"memo_size" default:"10000"`
	MemoTTL     time.Duration `yaml:"memo_ttl" default:"24h"`
}

type RulesConfig struct {
	PriceWarning      float64 `yaml:"price_warning" default:"3"`
	PriceCritical     float64 `yaml:"price_critical" default:"5"`
	VolumeRatio       float64 `yaml:"volume_ratio" default:"2"`
	RSIOverbought     float64 `yaml:"rsi_overbought" default:"70"`
	RSIOversold       float64 `yaml:"rsi_oversold" default:"30"`
	SentimentPositive float64 `yaml:"sentiment_positive" default:"0.7"`
	SentimentNegative float64 `yaml:"sentiment_negative" default:"-0.7"`
	SentimentSwing    float64 `yaml:"sentiment_swing" default:"0.5"`
	// ForecastDeviationCritical is the percent gap from the predicted price that
	// is critical even inside the forecast band; 0 disables it.
	ForecastDeviationCritical float64 `yaml:"forecast_deviation_critical" default:"10"`
}

type IndicatorsConfig struct {
	RSIPeriod  int `yaml:"rsi_period" default:"14"`
	MACDFast   int `yaml:"macd_fast" default:"12"`
	MACDSlow   int `yaml:"macd_slow" default:"26"`
	MACDSignal int `yaml:"macd_signal" default:"9"`
	// CrossCadence is the sampling step for MACD crossing detection; 0 compares consecutive bars.
	CrossCadence time.Duration `yaml:"cross_cadence"`
}

type SentimentConfig struct {
	URL          string        `yaml:"url"`
	Lookback     time.Duration `yaml:"lookback" default:"24h"`
	SwingSamples int           `yaml:"swing_samples" default:"3"`
	MaxItems     int           `yaml:"max_items" default:"20"`
}

type ForecastConfig struct {
	URL     string `yaml:"url"`
	Horizon int    `yaml:"horizon" default:"5"`
}

type DedupConfig struct {
	Bucket            time.Duration `yaml:"bucket" default:"1h"`
	SuppressionWindow time.Duration `yaml:"suppression_window" default:"1h"`
}

type DeliveryConfig struct {
	Backend  string `yaml:"backend" default:"redis"`
	Capacity int    `yaml:"capacity" default:"100"`
	Key      string `yaml:"key" default:"stock:alerts:realtime"`
}

type SchedulerConfig struct {
	Interval     time.Duration `yaml:"interval" default:"60s"`
	CycleTimeout time.Duration `yaml:"cycle_timeout" default:"30s"`
	StaggerStart bool          `yaml:"stagger_start"`
}

type ResilienceConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" default:"3"`
	BaseDelay       time.Duration `yaml:"base_delay" default:"200ms"`
	MaxDelay        time.Duration `yaml:"max_delay" default:"2s"`
	Timeout         time.Duration `yaml:"timeout" default:"3s"`
	BreakerFailures int           `yaml:"breaker_failures" default:"5"`
	BreakerOpen     time.Duration `yaml:"breaker_open" default:"30s"`
	// UpstreamRPS caps calls per second to each external signal service; 0 disables the cap.
	UpstreamRPS   float64 `yaml:"upstream_rps" default:"10"`
	UpstreamBurst int     `yaml:"upstream_burst" default:"20"`
}

type StoreConfig struct {
	Backend string `yaml:"backend" default:"clickhouse"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"finalert"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
}

type RedisConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"finalert"`

	PoolSize    int           `yaml:"pool_size" default:"10"`
	MinIdle     int           `yaml:"min_idle" default:"2"`
	PoolTimeout time.Duration `yaml:"pool_timeout" default:"4s"`
}

type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	TicksTopic   string   `yaml:"ticks_topic" default:"stock.ticks"`
	NewsTopic    string   `yaml:"news_topic" default:"stock.news"`
	AlertsTopic  string   `yaml:"alerts_topic"`
	RequiredAcks int      `yaml:"required_acks" default:"-1"`
	Compression  string   `yaml:"compression" default:"gzip"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"50ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"finalert"`
		Workers    int           `yaml:"workers" default:"4"`
		BufferSize int           `yaml:"buffer_size" default:"256"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
		DLQTopic   string        `yaml:"dlq_topic"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
	} `yaml:"consumer"`
}

type FinnhubConfig struct {
	Enabled        bool          `yaml:"enabled"`
	APIKey         string        `yaml:"api_key"`
	WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"20s"`
	MaxRPS         int           `yaml:"max_rps" default:"50"`
	BufferSize     int           `yaml:"buffer_size" default:"2000"`
	// Sink is where collected ticks go: "store" writes them directly, "kafka" publishes to kafka.ticks_topic.
	Sink string `yaml:"sink" default:"store"`
}

type APIConfig struct {
	RateLimitRPS    float64       `yaml:"rate_limit_rps" default:"20"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" default:"40"`
	HistoryCacheTTL time.Duration `yaml:"history_cache_ttl" default:"5s"`
}

// Load reads and parses a YAML configuration file, then applies defaults and validates.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A .env file in the working directory is read first when present.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := decode(b)
	if err != nil {
		return nil, err
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func decode(b []byte) (*Config, error) {
	// defaults first so that explicit zero values in the file survive
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Symbols = parseSymbols(v)
	}
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("DELIVERY_BACKEND"); v != "" {
		c.Delivery.Backend = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if p, err := strconv.Atoi(port); ok && err == nil {
			c.Redis.Port = p
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("SENTIMENT_URL"); v != "" {
		c.Sentiment.URL = v
	}
	if v := os.Getenv("FORECAST_URL"); v != "" {
		c.Forecast.URL = v
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.Finnhub.APIKey = v
	}
}

// parseSymbols reads "600519:贵州茅台,000001:平安银行"; names are optional.
func parseSymbols(v string) []SymbolConfig {
	parts := strings.Split(v, ",")
	out := make([]SymbolConfig, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		code, name, _ := strings.Cut(p, ":")
		out = append(out, SymbolConfig{Code: strings.TrimSpace(code), Name: strings.TrimSpace(name)})
	}
	return out
}

// Validate checks thresholds and backend settings. Every failure wraps errs.ErrConfiguration.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return errs.Configuration("environment is required")
	}
	if len(c.Symbols) == 0 {
		return errs.Configuration("symbols cannot be empty")
	}
	seen := make(map[string]struct{}, len(c.Symbols))
	for i, s := range c.Symbols {
		if strings.TrimSpace(s.Code) == "" {
			return errs.Configuration("symbols[%d].code is required", i)
		}
		if _, dup := seen[s.Code]; dup {
			return errs.Configuration("symbol %s listed twice", s.Code)
		}
		seen[s.Code] = struct{}{}
	}

	d := c.Detector
	if d.Bars < 2 {
		return errs.Configuration("detector.bars must be >= 2, got %d", d.Bars)
	}
	if d.VolumePeriod < 1 {
		return errs.Configuration("detector.volume_period must be >= 1")
	}
	if d.PriceThreshold <= 0 || d.VolumeThreshold <= 0 || d.SevereThreshold <= 0 {
		return errs.Configuration("detector thresholds must be positive")
	}
	if d.SevereThreshold < d.PriceThreshold {
		return errs.Configuration("detector.severe_threshold (%g) below price_threshold (%g)", d.SevereThreshold, d.PriceThreshold)
	}

	cr := c.Correlation
	if cr.Lookback <= 0 || cr.Lookahead < 0 {
		return errs.Configuration("correlation window must be positive")
	}
	if cr.Threshold < 0 || cr.Threshold > 1 {
		return errs.Configuration("correlation.threshold must be in [0,1], got %g", cr.Threshold)
	}
	if cr.NeutralBand < 0 || cr.NeutralBand >= 1 {
		return errs.Configuration("correlation.neutral_band must be in [0,1)")
	}
	if cr.Workers < 1 {
		return errs.Configuration("correlation.workers must be >= 1")
	}

	r := c.Rules
	if r.PriceWarning <= 0 || r.PriceCritical < r.PriceWarning {
		return errs.Configuration("rules: need 0 < price_warning <= price_critical")
	}
	if r.VolumeRatio <= 0 {
		return errs.Configuration("rules.volume_ratio must be positive")
	}
	if !(0 < r.RSIOversold && r.RSIOversold < r.RSIOverbought && r.RSIOverbought < 100) {
		return errs.Configuration("rules: need 0 < rsi_oversold < rsi_overbought < 100")
	}
	if r.SentimentPositive <= 0 || r.SentimentPositive > 1 || r.SentimentNegative >= 0 || r.SentimentNegative < -1 {
		return errs.Configuration("rules: sentiment extremes must lie in (0,1] and [-1,0)")
	}
	if r.SentimentSwing <= 0 {
		return errs.Configuration("rules.sentiment_swing must be positive")
	}
	if r.ForecastDeviationCritical < 0 {
		return errs.Configuration("rules.forecast_deviation_critical cannot be negative")
	}

	in := c.Indicators
	if in.RSIPeriod < 1 || in.MACDFast < 1 || in.MACDSignal < 1 || in.MACDFast >= in.MACDSlow {
		return errs.Configuration("indicators: invalid RSI/MACD periods")
	}
	if in.CrossCadence < 0 {
		return errs.Configuration("indicators.cross_cadence cannot be negative")
	}
	if c.Sentiment.SwingSamples < 2 {
		return errs.Configuration("sentiment.swing_samples must be >= 2")
	}
	if c.Forecast.Horizon < 1 {
		return errs.Configuration("forecast.horizon must be >= 1")
	}

	if c.Dedup.Bucket <= 0 || c.Dedup.SuppressionWindow <= 0 {
		return errs.Configuration("dedup bucket and suppression_window must be positive")
	}
	if c.Dedup.SuppressionWindow < c.Dedup.Bucket {
		// a fingerprint reopened inside its own bucket would collide with the stored alert
		return errs.Configuration("dedup.suppression_window (%s) shorter than dedup.bucket (%s)", c.Dedup.SuppressionWindow, c.Dedup.Bucket)
	}

	if c.Delivery.Capacity < 10 || c.Delivery.Capacity > 100 {
		return errs.Configuration("delivery.capacity must be in [10,100], got %d", c.Delivery.Capacity)
	}
	if c.Delivery.Backend != "redis" && c.Delivery.Backend != "memory" {
		return errs.Configuration("delivery.backend must be 'redis' or 'memory', got '%s'", c.Delivery.Backend)
	}
	if c.Store.Backend != "clickhouse" && c.Store.Backend != "memory" {
		return errs.Configuration("store.backend must be 'clickhouse' or 'memory', got '%s'", c.Store.Backend)
	}
	if c.Store.Backend == "clickhouse" && c.ClickHouse.Host == "" {
		return errs.Configuration("clickhouse.host is required for the clickhouse store")
	}

	if c.Scheduler.Interval <= 0 || c.Scheduler.CycleTimeout <= 0 {
		return errs.Configuration("scheduler interval and cycle_timeout must be positive")
	}
	if c.Resilience.MaxAttempts < 1 || c.Resilience.Timeout <= 0 {
		return errs.Configuration("resilience: max_attempts >= 1 and timeout > 0 required")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errs.Configuration("kafka.brokers required when kafka is enabled")
	}
	if c.Finnhub.Enabled && c.Finnhub.APIKey == "" {
		return errs.Configuration("finnhub.api_key is required when finnhub is enabled")
	}
	if c.Finnhub.Sink != "store" && c.Finnhub.Sink != "kafka" {
		return errs.Configuration("finnhub.sink must be 'store' or 'kafka', got '%s'", c.Finnhub.Sink)
	}
	if c.Finnhub.Enabled && c.Finnhub.Sink == "kafka" && !c.Kafka.Enabled {
		return errs.Configuration("finnhub.sink 'kafka' requires kafka to be enabled")
	}
	return nil
}

// SymbolName returns the configured display name for code, or "".
func (c *Config) SymbolName(code string) string {
	for _, s := range c.Symbols {
		if s.Code == code {
			return s.Name
		}
	}
	return ""
}
