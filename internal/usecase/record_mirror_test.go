package usecase

import (
	"context"
	"errors"
	"testing"

	"CoinPull/internal/domain/models"
	"CoinPull/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	sent []models.Envelope
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, env models.Envelope) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, env)
	return nil
}

func (p *fakePublisher) PublishBatch(ctx context.Context, envs []models.Envelope) error {
	for _, e := range envs {
		if err := p.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

type fakeStorage struct {
	stored []models.Envelope
}

func (s *fakeStorage) Init(context.Context) error { return nil }
func (s *fakeStorage) Store(_ context.Context, env models.Envelope) error {
	s.stored = append(s.stored, env)
	return nil
}
func (s *fakeStorage) StoreBatch(_ context.Context, envs []models.Envelope) error {
	s.stored = append(s.stored, envs...)
	return nil
}
func (s *fakeStorage) Health(context.Context) error { return errors.New("unreachable") }

func mirrorEnv(id string) models.Envelope {
	return models.Envelope{Exchange: "binance", Symbol: "BTCUSDT", Metric: models.MetricKlines, ID: id, Fields: []string{id}}
}

func TestRecordMirrorRoutesByBackend(t *testing.T) {
	pub, st := &fakePublisher{}, &fakeStorage{}

	k := NewRecordMirror(pub, st, metrics.Nop{}, BackendKafka)
	require.NoError(t, k.Mirror(context.Background(), mirrorEnv("1")))
	require.NoError(t, k.MirrorBatch(context.Background(), []models.Envelope{mirrorEnv("2")}))
	assert.Len(t, pub.sent, 2)
	assert.Empty(t, st.stored)
	assert.NoError(t, k.Health(context.Background()))

	c := NewRecordMirror(pub, st, metrics.Nop{}, BackendClickHouse)
	require.NoError(t, c.Mirror(context.Background(), mirrorEnv("3")))
	assert.Len(t, st.stored, 1)
	assert.Error(t, c.Health(context.Background()))
}

func TestRecordMirrorDisabled(t *testing.T) {
	m := NewRecordMirror(nil, nil, metrics.Nop{}, "")
	assert.False(t, m.Enabled())
	assert.Equal(t, BackendNone, m.Backend())
	assert.NoError(t, m.Mirror(context.Background(), mirrorEnv("1")))
}

func TestRecordMirrorErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	m := NewRecordMirror(pub, nil, metrics.Nop{}, BackendKafka)
	assert.ErrorContains(t, m.Mirror(context.Background(), mirrorEnv("1")), "broker down")

	u := NewRecordMirror(nil, nil, metrics.Nop{}, "s3")
	assert.ErrorContains(t, u.Mirror(context.Background(), mirrorEnv("1")), "unknown backend")
}
