package binance

import (
	"context"
	"encoding/json"
	"fmt"
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
	"github.com/shopspring/decimal"
)

// Public endpoints used when Config leaves them empty.
const (
	DefaultRESTURL = "https://api.binance.com"
	DefaultWSURL   = "wss://stream.binance.com:9443/ws"
)

type Config struct {
	RESTURL      string
	WSURL        string
	RateCapacity float64
	RatePerSec   float64
}

// Adapter talks to the Binance spot market API.
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
		Name:         models.ExchangeBinance,
		BaseURL:      cfg.RESTURL,
		RateCapacity: cfg.RateCapacity,
		RatePerSec:   cfg.RatePerSec,
	}, client, limiter, decodeHTTPError)
	return &Adapter{cfg: cfg, rest: rest, intervals: intervals, dialer: websocket.DefaultDialer}
}

func (a *Adapter) Name() string { return models.ExchangeBinance }

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func decodeHTTPError(status int, body []byte) error {
	var e apiError
	_ = json.Unmarshal(body, &e)
	code := ""
	if e.Code != 0 {
		code = strconv.Itoa(e.Code)
	}
	return &models.ExchangeError{Exchange: models.ExchangeBinance, HTTPStatus: status, Code: code, Message: e.Msg}
}

func (a *Adapter) ListSymbols(ctx context.Context) ([]models.SymbolInfo, error) {
	var info struct {
		Symbols []struct {
			Symbol     string `json:"symbol"`
			Status     string `json:"status"`
			BaseAsset  string `json:"baseAsset"`
			QuoteAsset string `json:"quoteAsset"`
		} `json:"symbols"`
	}
	if err := a.rest.Get(ctx, "/api/v3/exchangeInfo", nil, &info); err != nil {
		return nil, err
	}
	out := make([]models.SymbolInfo, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		out = append(out, models.SymbolInfo{
			Exchange:   models.ExchangeBinance,
			Symbol:     s.Symbol,
			BaseAsset:  s.BaseAsset,
			QuoteAsset: s.QuoteAsset,
			Status:     s.Status,
			Tradable:   s.Status == "TRADING",
		})
	}
	return out, nil
}

// klineRow layout: openTime, open, high, low, close, volume, closeTime, quoteVolume, ...
func klineRow(r exchange.Row, symbol string, seconds int64) (models.Candle, error) {
	c := models.Candle{Exchange: models.ExchangeBinance, Symbol: symbol, IntervalSeconds: seconds}
	open, err := r.Int64(0)
	if err != nil {
		return c, err
	}
	closeMs, err := r.Int64(6)
	if err != nil {
		return c, err
	}
	if err := r.Decimals(1, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
		return c, err
	}
	if c.QuoteVolume, err = r.Decimal(7); err != nil {
		return c, err
	}
	c.OpenTime = time.UnixMilli(open).UTC()
	c.CloseTime = time.UnixMilli(closeMs).UTC()
	return c, nil
}

// FetchCandles returns up to limit candles, oldest first.
func (a *Adapter) FetchCandles(ctx context.Context, symbol, token string, limit int) ([]models.Candle, error) {
	seconds, err := a.intervals.SecondsOf(models.ExchangeBinance, token)
	if err != nil {
		return nil, err
	}
	var rows []exchange.Row
	err = a.rest.Get(ctx, "/api/v3/klines", map[string][]string{
		"symbol":   {strings.ToUpper(symbol)},
		"interval": {token},
		"limit":    {strconv.Itoa(clamp(limit, 1, 1000))},
	}, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]models.Candle, 0, len(rows))
	for _, r := range rows {
		c, err := klineRow(r, symbol, seconds)
		if err != nil {
			return nil, fmt.Errorf("binance kline: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (a *Adapter) FetchTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error) {
	var rows []struct {
		ID           int64           `json:"id"`
		Price        decimal.Decimal `json:"price"`
		Qty          decimal.Decimal `json:"qty"`
		Time         int64           `json:"time"`
		IsBuyerMaker bool            `json:"isBuyerMaker"`
	}
	err := a.rest.Get(ctx, "/api/v3/trades", map[string][]string{
		"symbol": {strings.ToUpper(symbol)},
		"limit":  {strconv.Itoa(clamp(limit, 1, 1000))},
	}, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]models.Trade, 0, len(rows))
	for _, r := range rows {
		out = append(out, trade(symbol, r.ID, r.Price, r.Qty, r.Time, r.IsBuyerMaker))
	}
	return out, nil
}

// A buyer-maker print means the taker sold.
func trade(symbol string, id int64, price, qty decimal.Decimal, ms int64, buyerMaker bool) models.Trade {
	side := models.SideBuy
	if buyerMaker {
		side = models.SideSell
	}
	return models.Trade{
		Exchange:  models.ExchangeBinance,
		Symbol:    symbol,
		TradeID:   strconv.FormatInt(id, 10),
		Price:     price,
		Quantity:  qty,
		Side:      side,
		Timestamp: time.UnixMilli(ms).UTC(),
	}
}

// Binance payloads reuse keys that differ only in case ("e"/"E", "l"/"L",
// "m"/"M"), so every key is declared to keep encoding/json from folding one
// onto the other.
type wsKline struct {
	Start       int64           `json:"t"`
	End         int64           `json:"T"`
	Symbol      string          `json:"s"`
	Interval    string          `json:"i"`
	FirstTrade  int64           `json:"f"`
	LastTrade   int64           `json:"L"`
	Open        decimal.Decimal `json:"o"`
	Close       decimal.Decimal `json:"c"`
	High        decimal.Decimal `json:"h"`
	Low         decimal.Decimal `json:"l"`
	Volume      decimal.Decimal `json:"v"`
	Trades      int64           `json:"n"`
	Closed      bool            `json:"x"`
	Quote       decimal.Decimal `json:"q"`
	TakerVolume decimal.Decimal `json:"V"`
	TakerQuote  decimal.Decimal `json:"Q"`
	Ignore      json.RawMessage `json:"B"`
}

type wsEvent struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	// trade
	TradeID    int64           `json:"t"`
	Price      decimal.Decimal `json:"p"`
	Qty        decimal.Decimal `json:"q"`
	TradeTime  int64           `json:"T"`
	BuyerMaker bool            `json:"m"`
	BestMatch  bool            `json:"M"`
	// kline
	K *wsKline `json:"k"`
	// subscribe reply / error
	ID    *int      `json:"id"`
	Error *apiError `json:"error"`
}

func (a *Adapter) subscribe(ctx context.Context, stream string, onEvent func(wsEvent)) (drepo.Subscription, error) {
	return exchange.Dial(ctx, a.dialer, exchange.StreamConfig{
		URL: a.cfg.WSURL,
		Subscribe: []interface{}{map[string]interface{}{
			"method": "SUBSCRIBE",
			"params": []string{stream},
			"id":     1,
		}},
		Handle: func(frame []byte, _ exchange.Writer) error {
			var ev wsEvent
			if err := json.Unmarshal(frame, &ev); err != nil {
				return fmt.Errorf("binance ws: decode: %w", err)
			}
			if ev.Error != nil {
				return &models.ExchangeError{Exchange: models.ExchangeBinance, Code: strconv.Itoa(ev.Error.Code), Message: ev.Error.Msg}
			}
			if ev.Event != "" {
				onEvent(ev)
			}
			return nil
		},
	})
}

// SubscribeCandles only forwards klines Binance marks as closed.
func (a *Adapter) SubscribeCandles(ctx context.Context, symbol, token string, onRecord drepo.RecordHandler) (drepo.Subscription, error) {
	seconds, err := a.intervals.SecondsOf(models.ExchangeBinance, token)
	if err != nil {
		return nil, err
	}
	stream := fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), token)
	return a.subscribe(ctx, stream, func(ev wsEvent) {
		if ev.Event != "kline" || ev.K == nil || !ev.K.Closed {
			return
		}
		onRecord(models.Candle{
			Exchange:        models.ExchangeBinance,
			Symbol:          symbol,
			IntervalSeconds: seconds,
			OpenTime:        time.UnixMilli(ev.K.Start).UTC(),
			CloseTime:       time.UnixMilli(ev.K.End).UTC(),
			Open:            ev.K.Open,
			High:            ev.K.High,
			Low:             ev.K.Low,
			Close:           ev.K.Close,
			Volume:          ev.K.Volume,
			QuoteVolume:     ev.K.Quote,
		})
	})
}

func (a *Adapter) SubscribeTrades(ctx context.Context, symbol string, onRecord drepo.RecordHandler) (drepo.Subscription, error) {
	stream := strings.ToLower(symbol) + "@trade"
	return a.subscribe(ctx, stream, func(ev wsEvent) {
		if ev.Event != "trade" {
			return
		}
		onRecord(trade(symbol, ev.TradeID, ev.Price, ev.Qty, ev.TradeTime, ev.BuyerMaker))
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
