package kucoin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
	"CoinPull/internal/service/exchange"
	"CoinPull/internal/service/interval"
	"CoinPull/internal/service/ratelimit"
	xhttp "CoinPull/pkg/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const codeOK = "200000"

// Public endpoints used when Config leaves them empty.
const (
	DefaultRESTURL = "https://api.kucoin.com"
)

type Config struct {
	RESTURL      string
	RateCapacity float64
	RatePerSec   float64
}

// Adapter talks to the KuCoin spot market API. The WebSocket endpoint is not
// configured; it is handed out per connection by the bullet-public call.
type Adapter struct {
	cfg       Config
	rest      *exchange.RESTClient
	intervals *interval.Catalog
	dialer    *websocket.Dialer
	now       func() time.Time
}

var _ drepo.ExchangeAdapter = (*Adapter)(nil)

func New(cfg Config, client *xhttp.Client, limiter *ratelimit.Limiter, intervals *interval.Catalog) *Adapter {
	if cfg.RESTURL == "" {
		cfg.RESTURL = DefaultRESTURL
	}
	rest := exchange.NewRESTClient(exchange.RESTConfig{
		Name:         models.ExchangeKucoin,
		BaseURL:      cfg.RESTURL,
		RateCapacity: cfg.RateCapacity,
		RatePerSec:   cfg.RatePerSec,
	}, client, limiter, decodeHTTPError)
	return &Adapter{cfg: cfg, rest: rest, intervals: intervals, dialer: websocket.DefaultDialer, now: time.Now}
}

func (a *Adapter) Name() string { return models.ExchangeKucoin }

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func decodeHTTPError(status int, body []byte) error {
	var e envelope
	_ = json.Unmarshal(body, &e)
	return &models.ExchangeError{Exchange: models.ExchangeKucoin, HTTPStatus: status, Code: e.Code, Message: e.Msg}
}

func (a *Adapter) unwrap(path string, env envelope, dest interface{}) error {
	if env.Code != codeOK {
		return &models.ExchangeError{Exchange: models.ExchangeKucoin, Code: env.Code, Message: env.Msg}
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("kucoin %s: decode data: %w", path, err)
	}
	return nil
}

func (a *Adapter) get(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	var env envelope
	if err := a.rest.Get(ctx, path, query, &env); err != nil {
		return err
	}
	return a.unwrap(path, env, dest)
}

func (a *Adapter) ListSymbols(ctx context.Context) ([]models.SymbolInfo, error) {
	var rows []struct {
		Symbol        string `json:"symbol"`
		BaseCurrency  string `json:"baseCurrency"`
		QuoteCurrency string `json:"quoteCurrency"`
		EnableTrading bool   `json:"enableTrading"`
	}
	if err := a.get(ctx, "/api/v2/symbols", nil, &rows); err != nil {
		return nil, err
	}
	out := make([]models.SymbolInfo, 0, len(rows))
	for _, r := range rows {
		status := "disabled"
		if r.EnableTrading {
			status = "enabled"
		}
		out = append(out, models.SymbolInfo{
			Exchange:   models.ExchangeKucoin,
			Symbol:     r.Symbol,
			BaseAsset:  r.BaseCurrency,
			QuoteAsset: r.QuoteCurrency,
			Status:     status,
			Tradable:   r.EnableTrading,
		})
	}
	return out, nil
}

// candleRow layout: start (unix seconds), open, close, high, low, volume, turnover.
func candleRow(r exchange.Row, symbol string, seconds int64) (models.Candle, error) {
	c := models.Candle{Exchange: models.ExchangeKucoin, Symbol: symbol, IntervalSeconds: seconds}
	start, err := r.Int64(0)
	if err != nil {
		return c, err
	}
	if err := r.Decimals(1, &c.Open, &c.Close, &c.High, &c.Low, &c.Volume, &c.QuoteVolume); err != nil {
		return c, err
	}
	c.OpenTime = time.Unix(start, 0).UTC()
	return c, nil
}

// FetchCandles returns up to limit candles, oldest first. KuCoin has no limit
// parameter, so the window is sized from the interval.
func (a *Adapter) FetchCandles(ctx context.Context, symbol, token string, limit int) ([]models.Candle, error) {
	seconds, err := a.intervals.SecondsOf(models.ExchangeKucoin, token)
	if err != nil {
		return nil, err
	}
	limit = clamp(limit, 1, 1500)
	end := a.now().Unix()
	start := end - int64(limit)*seconds
	var rows [][]string
	err = a.get(ctx, "/api/v1/market/candles", map[string][]string{
		"symbol":  {symbol},
		"type":    {token},
		"startAt": {strconv.FormatInt(start, 10)},
		"endAt":   {strconv.FormatInt(end, 10)},
	}, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]models.Candle, len(rows))
	for i, cells := range rows {
		c, err := candleRow(exchange.StringRow(cells), symbol, seconds)
		if err != nil {
			return nil, fmt.Errorf("kucoin candle: %w", err)
		}
		out[len(rows)-1-i] = c // newest first on the wire
	}
	return out, nil
}

type matchDTO struct {
	Sequence string          `json:"sequence"`
	TradeID  string          `json:"tradeId"`
	Price    decimal.Decimal `json:"price"`
	Size     decimal.Decimal `json:"size"`
	Side     string          `json:"side"`
	Time     json.Number     `json:"time"` // nanoseconds, quoted on the socket
}

func (m matchDTO) trade(symbol string) (models.Trade, error) {
	ns, err := strconv.ParseInt(m.Time.String(), 10, 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("kucoin match time: %w", err)
	}
	id := m.Sequence
	if id == "" {
		id = m.TradeID
	}
	side := models.SideBuy
	if m.Side == "sell" {
		side = models.SideSell
	}
	return models.Trade{
		Exchange:  models.ExchangeKucoin,
		Symbol:    symbol,
		TradeID:   id,
		Price:     m.Price,
		Quantity:  m.Size,
		Side:      side,
		Timestamp: exchange.EpochTime(ns),
	}, nil
}

func (a *Adapter) FetchTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error) {
	var rows []matchDTO
	if err := a.get(ctx, "/api/v1/market/histories", map[string][]string{"symbol": {symbol}}, &rows); err != nil {
		return nil, err
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	out := make([]models.Trade, 0, len(rows))
	for _, r := range rows {
		t, err := r.trade(symbol)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

type instanceServer struct {
	Endpoint     string `json:"endpoint"`
	PingInterval int64  `json:"pingInterval"` // ms
}

// token asks for a public WebSocket token and the server to use it on.
func (a *Adapter) token(ctx context.Context) (string, instanceServer, error) {
	var env envelope
	if err := a.rest.Post(ctx, "/api/v1/bullet-public", &env); err != nil {
		return "", instanceServer{}, err
	}
	var data struct {
		Token   string           `json:"token"`
		Servers []instanceServer `json:"instanceServers"`
	}
	if err := a.unwrap("/api/v1/bullet-public", env, &data); err != nil {
		return "", instanceServer{}, err
	}
	if data.Token == "" || len(data.Servers) == 0 {
		return "", instanceServer{}, &models.ExchangeError{Exchange: models.ExchangeKucoin, Code: env.Code, Message: "bullet-public returned no server"}
	}
	return data.Token, data.Servers[0], nil
}

type wsMessage struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Topic   string          `json:"topic"`
	Subject string          `json:"subject"`
	Code    json.Number     `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func (a *Adapter) subscribe(ctx context.Context, topic string, onData func(json.RawMessage) error) (drepo.Subscription, error) {
	token, server, err := a.token(ctx)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(server.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("kucoin endpoint: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("connectId", uuid.NewString())
	u.RawQuery = q.Encode()

	pingEvery := time.Duration(server.PingInterval) * time.Millisecond
	if pingEvery <= 0 {
		pingEvery = 18 * time.Second
	}
	return exchange.Dial(ctx, a.dialer, exchange.StreamConfig{
		URL:          u.String(),
		PingInterval: pingEvery,
		PingMessage: func() interface{} {
			return map[string]string{"id": strconv.FormatInt(a.now().UnixMilli(), 10), "type": "ping"}
		},
		Handle: func(frame []byte, w exchange.Writer) error {
			var m wsMessage
			if err := json.Unmarshal(frame, &m); err != nil {
				return fmt.Errorf("kucoin ws: decode: %w", err)
			}
			switch m.Type {
			case "welcome":
				return w.WriteJSON(map[string]interface{}{
					"id":             uuid.NewString(),
					"type":           "subscribe",
					"topic":          topic,
					"privateChannel": false,
					"response":       true,
				})
			case "error":
				var msg string
				_ = json.Unmarshal(m.Data, &msg)
				return &models.ExchangeError{Exchange: models.ExchangeKucoin, Code: m.Code.String(), Message: msg}
			case "message":
				if m.Topic == topic {
					return onData(m.Data)
				}
			}
			return nil
		},
	})
}

// SubscribeCandles emits a candle once KuCoin starts pushing the next period.
func (a *Adapter) SubscribeCandles(ctx context.Context, symbol, token string, onRecord drepo.RecordHandler) (drepo.Subscription, error) {
	seconds, err := a.intervals.SecondsOf(models.ExchangeKucoin, token)
	if err != nil {
		return nil, err
	}
	fin := exchange.NewCandleFinalizer(func(c models.Candle) { onRecord(c) })
	return a.subscribe(ctx, fmt.Sprintf("/market/candles:%s_%s", symbol, token), func(data json.RawMessage) error {
		var upd struct {
			Candles []string `json:"candles"`
		}
		if err := json.Unmarshal(data, &upd); err != nil {
			return fmt.Errorf("kucoin candle: %w", err)
		}
		c, err := candleRow(exchange.StringRow(upd.Candles), symbol, seconds)
		if err != nil {
			return fmt.Errorf("kucoin candle: %w", err)
		}
		fin.Push(c)
		return nil
	})
}

func (a *Adapter) SubscribeTrades(ctx context.Context, symbol string, onRecord drepo.RecordHandler) (drepo.Subscription, error) {
	return a.subscribe(ctx, "/market/match:"+symbol, func(data json.RawMessage) error {
		var m matchDTO
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("kucoin match: %w", err)
		}
		t, err := m.trade(symbol)
		if err != nil {
			return err
		}
		onRecord(t)
		return nil
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
