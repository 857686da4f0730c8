package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProducerValidates(t *testing.T) {
	_, err := NewProducer()
	assert.ErrorContains(t, err, "brokers")

	_, err = NewProducer(WithBrokers([]string{"localhost:9092"}), WithCompression("brotli"))
	assert.ErrorContains(t, err, "brotli")

	_, err = NewProducer(WithBrokers([]string{"localhost:9092"}), WithRequiredAcks(2))
	assert.Error(t, err)
}

func TestNewProducerAppliesOptions(t *testing.T) {
	p, err := NewProducer(
		WithBrokers([]string{"localhost:9092"}),
		WithClientID("collector-a"),
		WithCompression("none"),
		WithBatching(50, 0, 0),
		WithHashByKey(true),
	)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "none", p.comp)
	assert.Equal(t, 50, p.writer.BatchSize)
	assert.Equal(t, int64(1<<20), p.writer.BatchBytes)
}

func TestPublishBatchEmptyIsNoop(t *testing.T) {
	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}))
	require.NoError(t, err)
	defer p.Close()

	assert.NoError(t, p.PublishBatch(context.Background(), "records", nil))
}

func TestEncodeValue(t *testing.T) {
	b, err := encodeValue("raw")
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), b)

	b, err = encodeValue(map[string]int{"n": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(b))

	_, err = encodeValue(make(chan int))
	assert.Error(t, err)
}
