package repository

import (
	"context"

	"CoinPull/internal/domain/models"
)

// RecordHandler receives records pushed by a live subscription.
type RecordHandler func(models.Record)

// Subscription is a live exchange feed. Done is closed when the feed ends;
// Err then reports why (nil after Close).
type Subscription interface {
	Done() <-chan struct{}
	Err() error
	Close() error
}

// ExchangeAdapter is the uniform capability every exchange implements.
// Interval tokens are exchange-native; records come back already normalized.
type ExchangeAdapter interface {
	Name() string
	ListSymbols(ctx context.Context) ([]models.SymbolInfo, error)
	FetchCandles(ctx context.Context, symbol, intervalToken string, limit int) ([]models.Candle, error)
	FetchTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error)
	SubscribeCandles(ctx context.Context, symbol, intervalToken string, onRecord RecordHandler) (Subscription, error)
	SubscribeTrades(ctx context.Context, symbol string, onRecord RecordHandler) (Subscription, error)
}

// RecordMirror forwards stored records to a secondary backend.
type RecordMirror interface {
	Mirror(ctx context.Context, env models.Envelope) error
}

type Publisher interface {
	Publish(ctx context.Context, env models.Envelope) error
	PublishBatch(ctx context.Context, envs []models.Envelope) error
}

type Storage interface {
	Init(ctx context.Context) error // ensure tables
	Store(ctx context.Context, env models.Envelope) error
	StoreBatch(ctx context.Context, envs []models.Envelope) error
	Health(ctx context.Context) error
}

type Metrics interface {
	RecordAppend(exchange string, metric models.Metric, result string)
	RecordError(kind string)
	RecordRetry(exchange, kind string)
	RecordTaskStatus(exchange string, status models.TaskStatus)
	RecordActiveTasks(delta int)
	RecordLastPrice(exchange, symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
