package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
	mid "CoinPull/internal/middleware"
	"CoinPull/internal/service/binance"
	"CoinPull/internal/service/interval"
	"CoinPull/internal/service/ratelimit"
	"CoinPull/internal/usecase"
	"CoinPull/pkg/config"
	xhttp "CoinPull/pkg/http"
	"CoinPull/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func binanceServer(t *testing.T, status string) *httptest.Server {
	t.Helper()
	open := time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC).UnixMilli()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/exchangeInfo":
			fmt.Fprintf(w, `{"symbols":[{"symbol":"BTCUSDT","status":%q,"baseAsset":"BTC","quoteAsset":"USDT"}]}`, status)
		case "/api/v3/klines":
			fmt.Fprintf(w, `[[%d,"1","2","0.5","1.5","10",%d,"15"],[%d,"1.5","2","1","1.8","4",%d,"7"]]`,
				open, open+59999, open+60000, open+119999)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T, restURL string) (*App, string) {
	t.Helper()
	cfg, err := config.Parse([]byte("collector:\n  exchanges: [binance]\n  mode: history\n"))
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Collector.DataDir = dir

	intervals := interval.Default()
	adapters := map[string]drepo.ExchangeAdapter{
		models.ExchangeBinance: binance.New(binance.Config{RESTURL: restURL}, xhttp.NewClient(), ratelimit.New(), intervals),
	}
	rec := metrics.Nop{}
	pipeline := mid.NewMirrorPipeline(usecase.NewRecordMirror(nil, nil, rec, usecase.BackendNone), rec)
	orch := usecase.NewOrchestrator(usecase.OrchestratorConfig{
		Metrics:         []models.Metric{models.MetricKlines},
		Shape:           usecase.ShapeHistory,
		IntervalSeconds: 60,
		Task: usecase.TaskConfig{
			Duration:        5 * time.Second,
			BackoffDelay:    10 * time.Millisecond,
			FetchLimit:      10,
			DataDir:         dir,
			RecencyCapacity: 100,
		},
	}, adapters, intervals, nil, pipeline, rec, nil)

	app := New(cfg, nil, adapters, usecase.NewSymbolSource(usecase.SymbolSourceConfig{}, nil, nil), orch, pipeline, nil)
	return app, dir
}

func TestAppRunsHistoryCollection(t *testing.T) {
	srv := binanceServer(t, "TRADING")
	app, dir := newTestApp(t, srv.URL)

	require.NoError(t, app.Run(context.Background()))

	reports := app.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, models.TaskCompleted, reports[0].Status)
	assert.Equal(t, int64(2), reports[0].Stored)
	assert.Equal(t, int64(2), reports[0].LogRows)
	assert.Equal(t, filepath.Join(dir, "binance", "klines", "btcusdt_1m.csv"), reports[0].LogPath)

	b, err := os.ReadFile(reports[0].LogPath)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(b)), "\n"), 2)
}

func TestAppWithoutTradableSymbols(t *testing.T) {
	srv := binanceServer(t, "BREAK")
	app, _ := newTestApp(t, srv.URL)

	assert.ErrorIs(t, app.Run(context.Background()), ErrNothingToCollect)
	assert.Empty(t, app.Reports())
}
