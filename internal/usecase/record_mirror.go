package usecase

import (
	"context"
	"fmt"
	"time"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
)

// Mirror backends.
const (
	BackendNone       = "none"
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
)

// RecordMirror routes stored records to the configured secondary backend.
type RecordMirror struct {
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	backend string
}

// NewRecordMirror creates a new RecordMirror instance. pub or store may be
// nil when the backend does not use them.
func NewRecordMirror(pub drepo.Publisher, store drepo.Storage, metrics drepo.Metrics, backend string) *RecordMirror {
	if backend == "" {
		backend = BackendNone
	}
	return &RecordMirror{pub: pub, store: store, metrics: metrics, backend: backend}
}

func (m *RecordMirror) Backend() string { return m.backend }

// Enabled reports whether records go anywhere.
func (m *RecordMirror) Enabled() bool { return m.backend != BackendNone }

// Mirror forwards one record.
func (m *RecordMirror) Mirror(ctx context.Context, env models.Envelope) error {
	if !m.Enabled() {
		return nil
	}
	start := time.Now()
	var err error

	switch m.backend {
	case BackendKafka:
		err = m.pub.Publish(ctx, env)
	case BackendClickHouse:
		err = m.store.Store(ctx, env)
	default:
		err = fmt.Errorf("unknown backend: %s", m.backend)
	}

	if err != nil {
		m.metrics.RecordError("mirror")
		return fmt.Errorf("mirror record: %w", err)
	}
	m.metrics.RecordLatency("mirror", time.Since(start).Seconds())
	return nil
}

// MirrorBatch forwards several records in one round trip.
func (m *RecordMirror) MirrorBatch(ctx context.Context, envs []models.Envelope) error {
	if len(envs) == 0 || !m.Enabled() {
		return nil
	}
	start := time.Now()
	var err error

	switch m.backend {
	case BackendKafka:
		err = m.pub.PublishBatch(ctx, envs)
	case BackendClickHouse:
		err = m.store.StoreBatch(ctx, envs)
	default:
		err = fmt.Errorf("unknown backend: %s", m.backend)
	}

	if err != nil {
		m.metrics.RecordError("mirror_batch")
		return fmt.Errorf("mirror batch: %w", err)
	}
	m.metrics.RecordLatency("mirror_batch", time.Since(start).Seconds())
	return nil
}

// Health checks the storage backend when it is in use.
func (m *RecordMirror) Health(ctx context.Context) error {
	if m.backend == BackendClickHouse && m.store != nil {
		return m.store.Health(ctx)
	}
	return nil
}
