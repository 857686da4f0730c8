package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"CoinPull/internal/domain/models"
	"CoinPull/internal/domain/repository"
	pkgkafka "CoinPull/pkg/kafka"
)

// Producer is the slice of pkg/kafka.Producer the publisher needs.
type Producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
}

// KafkaPublisher implements Publisher for Kafka. Messages are keyed by
// exchange:symbol so one stream stays ordered within a partition.
type KafkaPublisher struct {
	producer Producer
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer Producer, topic string) repository.Publisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func envelopeKey(env models.Envelope) []byte {
	return []byte(env.Exchange + ":" + env.Symbol)
}

func (p *KafkaPublisher) Publish(ctx context.Context, env models.Envelope) error {
	return p.producer.Publish(ctx, p.topic, envelopeKey(env), env)
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, envs []models.Envelope) error {
	if len(envs) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(envs))
	for i, env := range envs {
		msgs[i] = pkgkafka.Message{Key: envelopeKey(env), Value: env}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

// Inserter is the slice of pkg/clickhouse.Client the storage needs.
type Inserter interface {
	InitSchema(ctx context.Context, stmts []string) error
	InsertBatch(ctx context.Context, query string, rows [][]any) error
	Health(ctx context.Context) error
}

// ClickHouseStorage implements Storage for ClickHouse. Every record lands in
// one wide table; fields keep the CSV column order of their metric.
type ClickHouseStorage struct {
	ch    Inserter
	table string
}

// NewClickHouseStorage creates ClickHouse storage.
func NewClickHouseStorage(ch Inserter, table string) repository.Storage {
	return &ClickHouseStorage{ch: ch, table: table}
}

// SchemaStatements creates the records table. ReplacingMergeTree collapses
// rows re-sent after a restart.
func SchemaStatements(table string) []string {
	return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    ts          DateTime64(3, 'UTC'),
    exchange    LowCardinality(String),
    symbol      LowCardinality(String),
    metric      LowCardinality(String),
    interval    LowCardinality(String),
    record_id   String,
    fields      Array(String),
    ingested_at DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(ingested_at)
PARTITION BY toYYYYMM(ts)
ORDER BY (exchange, symbol, metric, interval, record_id)`, table)}
}

func (s *ClickHouseStorage) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, SchemaStatements(s.table))
}

func (s *ClickHouseStorage) insertQuery() string {
	cols := []string{"ts", "exchange", "symbol", "metric", "interval", "record_id", "fields"}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?)", s.table, strings.Join(cols, ", "))
}

func envelopeRow(env models.Envelope) []any {
	ts := env.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return []any{ts.UTC(), env.Exchange, env.Symbol, string(env.Metric), env.Interval, env.ID, env.Fields}
}

func (s *ClickHouseStorage) Store(ctx context.Context, env models.Envelope) error {
	return s.StoreBatch(ctx, []models.Envelope{env})
}

func (s *ClickHouseStorage) StoreBatch(ctx context.Context, envs []models.Envelope) error {
	if len(envs) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(envs))
	for _, env := range envs {
		if env.Symbol == "" || env.ID == "" {
			continue
		}
		rows = append(rows, envelopeRow(env))
	}
	return s.ch.InsertBatch(ctx, s.insertQuery(), rows)
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}
