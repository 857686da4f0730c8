package models

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Exchange names understood by the collector.
const (
	ExchangeHuobi   = "huobi"
	ExchangeBinance = "binance"
	ExchangeKucoin  = "kucoin"
)

// Metric identifies the kind of market data a task collects.
type Metric string

const (
	MetricKlines Metric = "klines"
	MetricTrades Metric = "trades"
)

// Record is anything a RecordStore can persist as one log row.
type Record interface {
	RecordID() string
	Fields() []string
}

// Sequenced records carry an ordering key that must never go backwards in a log.
type Sequenced interface {
	SequenceKey() int64
}

// RecordID extracts the natural id of a record.
func RecordID(r Record) string { return r.RecordID() }

// Candle is one OHLCV bar. OpenTime is the unique id within a (symbol, interval) stream.
type Candle struct {
	Exchange        string
	Symbol          string
	IntervalSeconds int64
	OpenTime        time.Time
	CloseTime       time.Time
	Open            decimal.Decimal
	High            decimal.Decimal
	Low             decimal.Decimal
	Close           decimal.Decimal
	Volume          decimal.Decimal
	QuoteVolume     decimal.Decimal
}

func (c Candle) RecordID() string { return strconv.FormatInt(c.OpenTime.UnixMilli(), 10) }

func (c Candle) SequenceKey() int64 { return c.OpenTime.UnixMilli() }

// Fields renders the log row: openTime, closeTime, open, close, high, low, volume, quoteVolume.
func (c Candle) Fields() []string {
	closeTime := ""
	if !c.CloseTime.IsZero() {
		closeTime = strconv.FormatInt(c.CloseTime.UnixMilli(), 10)
	}
	return []string{
		strconv.FormatInt(c.OpenTime.UnixMilli(), 10),
		closeTime,
		c.Open.String(),
		c.Close.String(),
		c.High.String(),
		c.Low.String(),
		c.Volume.String(),
		c.QuoteVolume.String(),
	}
}

// ClosedBy reports whether the candle's period has ended at now.
func (c Candle) ClosedBy(now time.Time) bool {
	end := c.CloseTime
	if end.IsZero() {
		end = c.OpenTime.Add(time.Duration(c.IntervalSeconds) * time.Second)
	}
	return !end.After(now)
}

// Side of a trade from the taker's point of view.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is one executed trade print. TradeID is unique within an (exchange, symbol) stream.
type Trade struct {
	Exchange  string
	Symbol    string
	TradeID   string
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Side      Side
	Timestamp time.Time
}

func (t Trade) RecordID() string { return t.TradeID }

// Fields renders the log row: tradeId, price, quantity, side, timestamp.
func (t Trade) Fields() []string {
	return []string{
		t.TradeID,
		t.Price.String(),
		t.Quantity.String(),
		string(t.Side),
		strconv.FormatInt(t.Timestamp.UnixMilli(), 10),
	}
}

// SymbolInfo is one entry of an exchange symbol listing, normalized by the adapter.
// Tradable carries the exchange-reported status (online / TRADING / enableTrading).
type SymbolInfo struct {
	Exchange   string `json:"exchange"`
	Symbol     string `json:"symbol"`
	BaseAsset  string `json:"base_asset"`
	QuoteAsset string `json:"quote_asset"`
	Status     string `json:"status"`
	Tradable   bool   `json:"tradable"`
}

// Envelope wraps a stored record with its stream coordinates for mirroring.
type Envelope struct {
	Exchange string    `json:"exchange"`
	Symbol   string    `json:"symbol"`
	Metric   Metric    `json:"metric"`
	Interval string    `json:"interval,omitempty"`
	ID       string    `json:"id"`
	Time     time.Time `json:"time"`
	Fields   []string  `json:"fields"`
}

// RecordTime returns the event time carried by a record, or zero if unknown.
func RecordTime(r Record) time.Time {
	switch v := r.(type) {
	case Candle:
		return v.OpenTime
	case Trade:
		return v.Timestamp
	default:
		return time.Time{}
	}
}
