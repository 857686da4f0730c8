package huobi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
	"CoinPull/internal/service/exchange"
	"CoinPull/internal/service/interval"
	"CoinPull/internal/service/ratelimit"
	xhttp "CoinPull/pkg/http"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"
	"github.com/shopspring/decimal"
)

// Public endpoints used when Config leaves them empty.
const (
	DefaultRESTURL = "https://api.huobi.pro"
	DefaultWSURL   = "wss://api.huobi.pro/ws"
)

type Config struct {
	RESTURL      string
	WSURL        string
	RateCapacity float64
	RatePerSec   float64
}

// Adapter talks to the Huobi spot market API.
type Adapter struct {
	cfg       Config
	rest      *exchange.RESTClient
	intervals *interval.Catalog
	dialer    *websocket.Dialer
}

var _ drepo.ExchangeAdapter = (*Adapter)(nil)

func New(cfg Config, client *xhttp.Client, limiter *ratelimit.Limiter, intervals *interval.Catalog) *Adapter {
	if cfg.RESTURL == "" {
		cfg.RESTURL = DefaultRESTURL
	}
	if cfg.WSURL == "" {
		cfg.WSURL = DefaultWSURL
	}
	rest := exchange.NewRESTClient(exchange.RESTConfig{
		Name:         models.ExchangeHuobi,
		BaseURL:      cfg.RESTURL,
		RateCapacity: cfg.RateCapacity,
		RatePerSec:   cfg.RatePerSec,
	}, client, limiter, decodeHTTPError)
	return &Adapter{cfg: cfg, rest: rest, intervals: intervals, dialer: websocket.DefaultDialer}
}

func (a *Adapter) Name() string { return models.ExchangeHuobi }

// envelope is the common REST wrapper; failures come back with HTTP 200.
type envelope struct {
	Status  string          `json:"status"`
	ErrCode string          `json:"err-code"`
	ErrMsg  string          `json:"err-msg"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) err() error {
	if e.Status == "ok" {
		return nil
	}
	return &models.ExchangeError{Exchange: models.ExchangeHuobi, Code: e.ErrCode, Message: e.ErrMsg}
}

func decodeHTTPError(status int, body []byte) error {
	var e envelope
	_ = json.Unmarshal(body, &e)
	return &models.ExchangeError{Exchange: models.ExchangeHuobi, HTTPStatus: status, Code: e.ErrCode, Message: e.ErrMsg}
}

func (a *Adapter) get(ctx context.Context, path string, query map[string][]string, dest interface{}) error {
	var env envelope
	if err := a.rest.Get(ctx, path, query, &env); err != nil {
		return err
	}
	if err := env.err(); err != nil {
		return err
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("huobi %s: decode data: %w", path, err)
	}
	return nil
}

type symbolDTO struct {
	Symbol string `json:"symbol"`
	Base   string `json:"base-currency"`
	Quote  string `json:"quote-currency"`
	State  string `json:"state"`
}

func (a *Adapter) ListSymbols(ctx context.Context) ([]models.SymbolInfo, error) {
	var rows []symbolDTO
	if err := a.get(ctx, "/v1/common/symbols", nil, &rows); err != nil {
		return nil, err
	}
	out := make([]models.SymbolInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.SymbolInfo{
			Exchange:   models.ExchangeHuobi,
			Symbol:     r.Symbol,
			BaseAsset:  r.Base,
			QuoteAsset: r.Quote,
			Status:     r.State,
			Tradable:   r.State == "online",
		})
	}
	return out, nil
}

type klineDTO struct {
	ID     int64           `json:"id"` // open time, unix seconds
	Open   decimal.Decimal `json:"open"`
	Close  decimal.Decimal `json:"close"`
	Low    decimal.Decimal `json:"low"`
	High   decimal.Decimal `json:"high"`
	Amount decimal.Decimal `json:"amount"` // base volume
	Vol    decimal.Decimal `json:"vol"`    // quote volume
}

func (k klineDTO) candle(symbol string, seconds int64) models.Candle {
	return models.Candle{
		Exchange:        models.ExchangeHuobi,
		Symbol:          symbol,
		IntervalSeconds: seconds,
		OpenTime:        time.Unix(k.ID, 0).UTC(),
		Open:            k.Open,
		High:            k.High,
		Low:             k.Low,
		Close:           k.Close,
		Volume:          k.Amount,
		QuoteVolume:     k.Vol,
	}
}

// FetchCandles returns up to limit candles, oldest first.
func (a *Adapter) FetchCandles(ctx context.Context, symbol, token string, limit int) ([]models.Candle, error) {
	seconds, err := a.intervals.SecondsOf(models.ExchangeHuobi, token)
	if err != nil {
		return nil, err
	}
	var rows []klineDTO
	err = a.get(ctx, "/market/history/kline", map[string][]string{
		"symbol": {symbol},
		"period": {token},
		"size":   {strconv.Itoa(clamp(limit, 1, 2000))},
	}, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]models.Candle, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = r.candle(symbol, seconds) // newest first on the wire
	}
	return out, nil
}

type tradeDTO struct {
	TradeID   json.Number     `json:"trade-id"`
	WSTradeID json.Number     `json:"tradeId"`
	Price     decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
	Direction string          `json:"direction"`
	TS        int64           `json:"ts"`
}

func (t tradeDTO) trade(symbol string) models.Trade {
	id := t.TradeID
	if id == "" {
		id = t.WSTradeID
	}
	side := models.SideBuy
	if t.Direction == "sell" {
		side = models.SideSell
	}
	return models.Trade{
		Exchange:  models.ExchangeHuobi,
		Symbol:    symbol,
		TradeID:   id.String(),
		Price:     t.Price,
		Quantity:  t.Amount,
		Side:      side,
		Timestamp: time.UnixMilli(t.TS).UTC(),
	}
}

func (a *Adapter) FetchTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error) {
	var groups []struct {
		Data []tradeDTO `json:"data"`
	}
	err := a.get(ctx, "/market/history/trade", map[string][]string{
		"symbol": {symbol},
		"size":   {strconv.Itoa(clamp(limit, 1, 2000))},
	}, &groups)
	if err != nil {
		return nil, err
	}
	var out []models.Trade
	for i := len(groups) - 1; i >= 0; i-- {
		for _, t := range groups[i].Data {
			out = append(out, t.trade(symbol))
		}
	}
	return out, nil
}

// push is any WebSocket frame after gunzip.
type push struct {
	Ping    int64           `json:"ping"`
	Status  string          `json:"status"`
	ErrCode string          `json:"err-code"`
	ErrMsg  string          `json:"err-msg"`
	Ch      string          `json:"ch"`
	Tick    json.RawMessage `json:"tick"`
}

func (a *Adapter) subscribe(ctx context.Context, topic string, onTick func(json.RawMessage) error) (drepo.Subscription, error) {
	return exchange.Dial(ctx, a.dialer, exchange.StreamConfig{
		URL:       a.cfg.WSURL,
		Subscribe: []interface{}{map[string]string{"sub": topic, "id": topic}},
		Handle: func(frame []byte, w exchange.Writer) error {
			raw, err := gunzip(frame)
			if err != nil {
				return fmt.Errorf("huobi ws: %w", err)
			}
			var p push
			if err := json.Unmarshal(raw, &p); err != nil {
				return fmt.Errorf("huobi ws: decode: %w", err)
			}
			switch {
			case p.Ping != 0:
				return w.WriteJSON(map[string]int64{"pong": p.Ping})
			case p.Status == "error":
				return &models.ExchangeError{Exchange: models.ExchangeHuobi, Code: p.ErrCode, Message: p.ErrMsg}
			case p.Ch == topic && len(p.Tick) > 0:
				return onTick(p.Tick)
			}
			return nil
		},
	})
}

// SubscribeCandles emits a candle once Huobi starts pushing the next period.
func (a *Adapter) SubscribeCandles(ctx context.Context, symbol, token string, onRecord drepo.RecordHandler) (drepo.Subscription, error) {
	seconds, err := a.intervals.SecondsOf(models.ExchangeHuobi, token)
	if err != nil {
		return nil, err
	}
	fin := exchange.NewCandleFinalizer(func(c models.Candle) { onRecord(c) })
	topic := fmt.Sprintf("market.%s.kline.%s", strings.ToLower(symbol), token)
	return a.subscribe(ctx, topic, func(tick json.RawMessage) error {
		var k klineDTO
		if err := json.Unmarshal(tick, &k); err != nil {
			return fmt.Errorf("huobi kline: %w", err)
		}
		fin.Push(k.candle(symbol, seconds))
		return nil
	})
}

func (a *Adapter) SubscribeTrades(ctx context.Context, symbol string, onRecord drepo.RecordHandler) (drepo.Subscription, error) {
	topic := fmt.Sprintf("market.%s.trade.detail", strings.ToLower(symbol))
	return a.subscribe(ctx, topic, func(tick json.RawMessage) error {
		var t struct {
			Data []tradeDTO `json:"data"`
		}
		if err := json.Unmarshal(tick, &t); err != nil {
			return fmt.Errorf("huobi trade: %w", err)
		}
		for _, d := range t.Data {
			onRecord(d.trade(symbol))
		}
		return nil
	})
}

func gunzip(frame []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(frame))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
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
