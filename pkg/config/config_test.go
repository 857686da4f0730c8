package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultsFollowCollectorSurface(t *testing.T) {
	c, err := Load(writeConfig(t, "environment: test\n"))
	require.NoError(t, err)

	col := c.Collector
	assert.Equal(t, []string{"huobi", "binance", "kucoin"}, col.Exchanges)
	assert.Equal(t, []string{"klines"}, col.Metrics)
	assert.Equal(t, "stream", col.Mode)
	assert.Equal(t, int64(60), col.IntervalSeconds)
	assert.Equal(t, 20*time.Second, col.PollInterval)
	assert.Equal(t, 240*time.Second, col.Duration)
	assert.Equal(t, 5, col.ConcurrencyCap)
	assert.Equal(t, 10*time.Second, col.BatchDelay)
	assert.Equal(t, 1000, col.RecencyCapacity)
	assert.False(t, col.Truncate)

	assert.Equal(t, "none", c.Mirror.Backend)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, float64(10), c.Exchanges.Kucoin.RateCapacity)
	assert.Equal(t, time.Hour, c.Cache.SymbolsTTL)
	assert.False(t, c.Server.Enabled)
}

func TestYAMLOverridesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, `
environment: production
collector:
  exchanges: [binance]
  metrics: [klines, trades]
  mode: poll
  exclude: [BTCUSDT, ETHUSDT]
  interval_seconds: 3600
  duration: 10m
  concurrency_cap: 2
exchanges:
  binance:
    rest_url: http://localhost:9999
    rate_per_sec: 20
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"binance"}, c.Collector.Exchanges)
	assert.Equal(t, "poll", c.Collector.Mode)
	assert.Equal(t, int64(3600), c.Collector.IntervalSeconds)
	assert.Equal(t, 10*time.Minute, c.Collector.Duration)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, c.Collector.Exclude)
	assert.Equal(t, "http://localhost:9999", c.Exchange("binance").RESTURL)
	assert.Equal(t, float64(20), c.Exchange("binance").RatePerSec)
	assert.Equal(t, Exchange{}, c.Exchange("ftx"))
}

func TestValidationRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"unknown exchange":   "collector:\n  exchanges: [ftx]\n",
		"unknown mode":       "collector:\n  mode: replay\n",
		"bad metric":         "collector:\n  metrics: [orderbook]\n",
		"bad backend":        "mirror:\n  backend: s3\n",
		"kafka no brokers":   "mirror:\n  backend: kafka\n",
		"negative cap":       "collector:\n  concurrency_cap: -1\n",
		"duplicate exchange": "collector:\n  exchanges: [binance, binance]\n",
		"duplicate metric":   "collector:\n  metrics: [klines, klines]\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "environment: test\n"+body))
			assert.Error(t, err)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	env := map[string]string{
		"COINPULL_EXCHANGES":       "KuCoin, huobi",
		"COINPULL_EXCLUDE":         "BTC-USDT",
		"COINPULL_DURATION":        "90",
		"COINPULL_CONCURRENCY_CAP": "3",
		"COINPULL_MIRROR_BACKEND":  "kafka",
		"KAFKA_BROKERS":            "k1:9092,k2:9092",
		"REDIS_ADDR":               "redis:6379",
	}
	c.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, []string{"kucoin", "huobi"}, c.Collector.Exchanges)
	assert.Equal(t, []string{"BTC-USDT"}, c.Collector.Exclude)
	assert.Equal(t, 90*time.Second, c.Collector.Duration)
	assert.Equal(t, 3, c.Collector.ConcurrencyCap)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Cache.Redis.Enabled)
	require.NoError(t, c.Validate())
}

func TestMissingFile(t *testing.T) {
	_, err := LoadWithEnv(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestShippedConfigIsValid(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.True(t, c.Server.Enabled)
	assert.Equal(t, "none", c.Mirror.Backend)
	assert.Equal(t, "https://api.binance.com", c.Exchange("binance").RESTURL)
	assert.Empty(t, c.Exchange("kucoin").WSURL)
}
