package usecase

import (
	"context"
	"sync"
	"time"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"

	"github.com/shopspring/decimal"
)

type stubAdapter struct {
	name string

	mu             sync.Mutex
	fetchCalls     int
	subscribeCalls int
	listCalls      int

	symbols      []models.SymbolInfo
	listErr      error
	fetchCandles func(call int) ([]models.Candle, error)
	fetchTrades  func(call int) ([]models.Trade, error)
	tradesOf     func(symbol string) ([]models.Trade, error)
	subscribe    func(call int, onRecord drepo.RecordHandler) (drepo.Subscription, error)
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) ListSymbols(context.Context) ([]models.SymbolInfo, error) {
	a.mu.Lock()
	a.listCalls++
	a.mu.Unlock()
	return a.symbols, a.listErr
}

func (a *stubAdapter) FetchCandles(_ context.Context, _, _ string, _ int) ([]models.Candle, error) {
	a.mu.Lock()
	a.fetchCalls++
	n := a.fetchCalls
	a.mu.Unlock()
	return a.fetchCandles(n)
}

func (a *stubAdapter) FetchTrades(_ context.Context, symbol string, _ int) ([]models.Trade, error) {
	a.mu.Lock()
	a.fetchCalls++
	n := a.fetchCalls
	a.mu.Unlock()
	if a.tradesOf != nil {
		return a.tradesOf(symbol)
	}
	return a.fetchTrades(n)
}

func (a *stubAdapter) SubscribeCandles(_ context.Context, _, _ string, onRecord drepo.RecordHandler) (drepo.Subscription, error) {
	return a.sub(onRecord)
}

func (a *stubAdapter) SubscribeTrades(_ context.Context, _ string, onRecord drepo.RecordHandler) (drepo.Subscription, error) {
	return a.sub(onRecord)
}

func (a *stubAdapter) sub(onRecord drepo.RecordHandler) (drepo.Subscription, error) {
	a.mu.Lock()
	a.subscribeCalls++
	n := a.subscribeCalls
	a.mu.Unlock()
	return a.subscribe(n, onRecord)
}

func (a *stubAdapter) calls() (fetch, subscribe, list int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fetchCalls, a.subscribeCalls, a.listCalls
}

type stubSub struct {
	done chan struct{}
	once sync.Once
	mu   sync.Mutex
	err  error
}

func newStubSub() *stubSub { return &stubSub{done: make(chan struct{})} }

func (s *stubSub) Done() <-chan struct{} { return s.done }

func (s *stubSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// drop ends the feed as if the exchange closed it.
func (s *stubSub) drop(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *stubSub) Close() error {
	s.drop(nil)
	return nil
}

func closedCandle(symbol string, openTime time.Time) models.Candle {
	return models.Candle{
		Exchange:        models.ExchangeBinance,
		Symbol:          symbol,
		IntervalSeconds: 60,
		OpenTime:        openTime,
		CloseTime:       openTime.Add(time.Minute - time.Millisecond),
		Open:            decimal.NewFromInt(100),
		High:            decimal.NewFromInt(110),
		Low:             decimal.NewFromInt(90),
		Close:           decimal.NewFromInt(105),
		Volume:          decimal.NewFromInt(3),
		QuoteVolume:     decimal.NewFromInt(315),
	}
}

func stubTrade(id string) models.Trade {
	return models.Trade{
		Exchange:  models.ExchangeKucoin,
		Symbol:    "BTC-USDT",
		TradeID:   id,
		Price:     decimal.RequireFromString("27000.5"),
		Quantity:  decimal.RequireFromString("0.01"),
		Side:      models.SideSell,
		Timestamp: time.Now(),
	}
}
