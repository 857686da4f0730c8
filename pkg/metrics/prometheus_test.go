package metrics

import (
	"testing"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

var (
	_ drepo.Metrics = (*Recorder)(nil)
	_ drepo.Metrics = Nop{}
)

func TestRecorder(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordAppend("binance", models.MetricKlines, "stored")
	r.RecordAppend("binance", models.MetricKlines, "stored")
	r.RecordAppend("binance", models.MetricKlines, "duplicate")
	r.RecordRetry("huobi", "rate_limited")
	r.RecordTaskStatus("kucoin", models.TaskTimedOut)
	r.RecordActiveTasks(3)
	r.RecordActiveTasks(-1)
	r.RecordLastPrice("binance", "BTCUSDT", 64000.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.appends.WithLabelValues("binance", "klines", "stored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.appends.WithLabelValues("binance", "klines", "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.retries.WithLabelValues("huobi", "rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.taskStatus.WithLabelValues("kucoin", "timed_out")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.activeTasks))
	assert.Equal(t, 64000.5, testutil.ToFloat64(r.lastPrice.WithLabelValues("binance", "BTCUSDT")))
}
