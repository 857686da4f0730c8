package huobi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"CoinPull/internal/domain/models"
	"CoinPull/internal/service/interval"
	"CoinPull/internal/service/ratelimit"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, h http.Handler) *Adapter {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		RESTURL: srv.URL,
		WSURL:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}, nil, ratelimit.New(), interval.Default())
}

func TestListSymbols(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/common/symbols", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ok","data":[
			{"symbol":"btcusdt","base-currency":"btc","quote-currency":"usdt","state":"online"},
			{"symbol":"lunausdt","base-currency":"luna","quote-currency":"usdt","state":"offline"}]}`))
	}))

	got, err := a.ListSymbols(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "btcusdt", got[0].Symbol)
	assert.True(t, got[0].Tradable)
	assert.False(t, got[1].Tradable)
	assert.Equal(t, "offline", got[1].Status)
}

func TestFetchCandlesOldestFirst(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/market/history/kline", r.URL.Path)
		assert.Equal(t, "60min", r.URL.Query().Get("period"))
		assert.Equal(t, "2", r.URL.Query().Get("size"))
		_, _ = w.Write([]byte(`{"status":"ok","ch":"market.btcusdt.kline.60min","data":[
			{"id":1700003600,"open":2,"close":3,"low":1.5,"high":3.5,"amount":10,"vol":25},
			{"id":1700000000,"open":1,"close":2,"low":0.5,"high":2.5,"amount":5,"vol":7.5}]}`))
	}))

	got, err := a.FetchCandles(context.Background(), "btcusdt", "60min", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1700000000), got[0].OpenTime.Unix())
	assert.Equal(t, int64(3600), got[0].IntervalSeconds)
	assert.Equal(t, "1", got[0].Open.String())
	assert.Equal(t, "5", got[0].Volume.String())
	assert.Equal(t, "7.5", got[0].QuoteVolume.String())
	assert.Equal(t, int64(1700003600), got[1].OpenTime.Unix())
}

func TestFetchCandlesUnsupportedInterval(t *testing.T) {
	a := newTestAdapter(t, http.NotFoundHandler())
	_, err := a.FetchCandles(context.Background(), "btcusdt", "3min", 10)
	assert.True(t, errors.Is(err, interval.ErrUnsupportedInterval))
}

func TestErrorEnvelope(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","err-code":"too-many-request","err-msg":"slow down"}`))
	}))

	_, err := a.FetchTrades(context.Background(), "btcusdt", 5)
	var exErr *models.ExchangeError
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, "too-many-request", exErr.Code)
	assert.Equal(t, models.ExchangeHuobi, exErr.Exchange)
}

func TestFetchTrades(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","data":[
			{"id":2,"ts":1700000002000,"data":[{"trade-id":102,"price":10.5,"amount":0.2,"direction":"sell","ts":1700000002000}]},
			{"id":1,"ts":1700000001000,"data":[{"trade-id":101,"price":10,"amount":1,"direction":"buy","ts":1700000001000}]}]}`))
	}))

	got, err := a.FetchTrades(context.Background(), "btcusdt", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "101", got[0].TradeID)
	assert.Equal(t, models.SideBuy, got[0].Side)
	assert.Equal(t, "102", got[1].TradeID)
	assert.Equal(t, models.SideSell, got[1].Side)
	assert.Equal(t, "10.5", got[1].Price.String())
}

func gz(t *testing.T, s string) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestSubscribeCandlesFinalizesOnNextPeriod(t *testing.T) {
	upgrader := websocket.Upgrader{}
	pong := make(chan map[string]int64, 1)
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var sub map[string]string
		require.NoError(t, conn.ReadJSON(&sub))
		assert.Equal(t, "market.btcusdt.kline.1min", sub["sub"])

		frames := []string{
			`{"id":"market.btcusdt.kline.1min","status":"ok","subbed":"market.btcusdt.kline.1min"}`,
			`{"ping":1700000000000}`,
			`{"ch":"market.btcusdt.kline.1min","tick":{"id":1700000040,"open":1,"close":1.1,"low":1,"high":1.2,"amount":3,"vol":3.3}}`,
			`{"ch":"market.btcusdt.kline.1min","tick":{"id":1700000040,"open":1,"close":1.3,"low":1,"high":1.4,"amount":4,"vol":4.4}}`,
			`{"ch":"market.btcusdt.kline.1min","tick":{"id":1700000100,"open":1.3,"close":1.3,"low":1.3,"high":1.3,"amount":0,"vol":0}}`,
		}
		for _, f := range frames {
			require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, gz(t, f)))
		}
		var p map[string]int64
		if err := conn.ReadJSON(&p); err == nil {
			pong <- p
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))

	var mu sync.Mutex
	var got []models.Record
	sub, err := a.SubscribeCandles(context.Background(), "btcusdt", "1min", func(r models.Record) {
		mu.Lock()
		got = append(got, r)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, int64(1700000000000), (<-pong)["pong"])
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	c := got[0].(models.Candle)
	mu.Unlock()
	assert.Equal(t, int64(1700000040), c.OpenTime.Unix())
	assert.Equal(t, "1.3", c.Close.String())
	assert.Equal(t, "4", c.Volume.String())
}

func TestSubscribeRejected(t *testing.T) {
	upgrader := websocket.Upgrader{}
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		var sub json.RawMessage
		_ = conn.ReadJSON(&sub)
		_ = conn.WriteMessage(websocket.BinaryMessage, gz(t, `{"status":"error","err-code":"bad-request","err-msg":"invalid topic"}`))
		_, _, _ = conn.ReadMessage()
	}))

	sub, err := a.SubscribeTrades(context.Background(), "nope", func(models.Record) {})
	require.NoError(t, err)
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not end")
	}
	var exErr *models.ExchangeError
	require.True(t, errors.As(sub.Err(), &exErr))
	assert.Equal(t, "bad-request", exErr.Code)
}
