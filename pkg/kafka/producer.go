package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Message is one record to publish. Value is sent as is when it is []byte
// or string and JSON-encoded otherwise.
type Message struct {
	Key   []byte
	Value interface{}
}

// Producer wraps a kafka-go writer. Topics are chosen per call.
type Producer struct {
	writer *kafka.Writer
	comp   string
}

// NewProducer validates the options and builds the writer. No connection is
// made until the first publish.
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	var bal kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		bal = &kafka.Hash{}
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     bal,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  compressionCodecs[cfg.Compression],
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.BatchTimeout,
		Async:        cfg.Async,
		Transport:    &kafka.Transport{ClientID: cfg.ClientID},
	}

	metricsOnce.Do(registerMetrics)
	comp := cfg.Compression
	if comp == "" {
		comp = "none"
	}
	return &Producer{writer: writer, comp: comp}, nil
}

// Publish sends one message to topic.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	return p.PublishBatch(ctx, topic, []Message{{Key: key, Value: value}})
}

// PublishBatch sends messages to topic in one write.
func (p *Producer) PublishBatch(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	start := time.Now()
	now := start.UTC()
	msgs := make([]kafka.Message, len(messages))
	var size int64
	for i, m := range messages {
		v, err := encodeValue(m.Value)
		if err != nil {
			return err
		}
		msgs[i] = kafka.Message{Topic: topic, Key: m.Key, Value: v, Time: now}
		size += int64(len(v))
	}

	err := p.writer.WriteMessages(ctx, msgs...)
	observe(topic, p.comp, size, len(msgs), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", topic, err)
	}
	return nil
}

// Close flushes pending async writes and closes the writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return b, nil
}

var (
	metricsOnce     sync.Once
	messagesTotal   *prometheus.CounterVec
	bytesTotal      *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec
)

func registerMetrics() {
	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinpull_kafka_producer_messages_total",
		Help: "Messages published to Kafka by result",
	}, []string{"topic", "compression", "result"})
	bytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coinpull_kafka_producer_bytes_total",
		Help: "Payload bytes handed to the Kafka writer",
	}, []string{"topic", "compression"})
	publishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coinpull_kafka_producer_publish_seconds",
		Help:    "Kafka write latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
}

func observe(topic, comp string, size int64, count int, d time.Duration, err error) {
	if messagesTotal == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	messagesTotal.WithLabelValues(topic, comp, result).Add(float64(count))
	bytesTotal.WithLabelValues(topic, comp).Add(float64(size))
	publishDuration.WithLabelValues(topic).Observe(d.Seconds())
}
