package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"CoinPull/internal/domain/models"
	"CoinPull/pkg/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyProc struct {
	mu   sync.Mutex
	down bool
	got  []string
}

func (f *flakyProc) setDown(v bool) {
	f.mu.Lock()
	f.down = v
	f.mu.Unlock()
}

func (f *flakyProc) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

func (f *flakyProc) Mirror(ctx context.Context, env models.Envelope) error {
	return f.MirrorBatch(ctx, []models.Envelope{env})
}

func (f *flakyProc) MirrorBatch(_ context.Context, envs []models.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("backend down")
	}
	for _, e := range envs {
		f.got = append(f.got, e.ID)
	}
	return nil
}

func env(id string) models.Envelope {
	return models.Envelope{Exchange: "huobi", Symbol: "btcusdt", Metric: models.MetricTrades, ID: id, Fields: []string{id}}
}

func fastBackOff() backoff.BackOff { return backoff.NewConstantBackOff(5 * time.Millisecond) }

func TestPipelineForwardsDirectly(t *testing.T) {
	proc := &flakyProc{}
	p := NewMirrorPipeline(proc, metrics.Nop{})

	require.NoError(t, p.Mirror(context.Background(), env("1")))
	assert.Equal(t, []string{"1"}, proc.ids())
	assert.Equal(t, 0, p.Buffered())
}

func TestPipelineRejectsIncompleteEnvelope(t *testing.T) {
	p := NewMirrorPipeline(&flakyProc{}, metrics.Nop{})
	assert.Error(t, p.Mirror(context.Background(), models.Envelope{Exchange: "huobi", Symbol: "x"}))
}

func TestPipelineBuffersUntilBackendRecovers(t *testing.T) {
	proc := &flakyProc{down: true}
	p := NewMirrorPipeline(proc, metrics.Nop{}, WithBackOff(fastBackOff), WithBatchSize(10))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, p.Mirror(ctx, env(id)))
	}
	assert.Empty(t, proc.ids())

	p.Start(ctx)
	proc.setDown(false)

	require.Eventually(t, func() bool { return len(proc.ids()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"1", "2", "3"}, proc.ids())
	require.NoError(t, p.Stop(context.Background()))
}

func TestPipelineBufferFull(t *testing.T) {
	proc := &flakyProc{down: true}
	p := NewMirrorPipeline(proc, metrics.Nop{}, WithBufferSize(1))

	require.NoError(t, p.Mirror(context.Background(), env("1")))
	assert.Error(t, p.Mirror(context.Background(), env("2")))
}

func TestPipelineStopFlushesRemainder(t *testing.T) {
	proc := &flakyProc{down: true}
	p := NewMirrorPipeline(proc, metrics.Nop{}, WithBackOff(fastBackOff))
	p.Start(context.Background())

	require.NoError(t, p.Mirror(context.Background(), env("1")))
	time.Sleep(20 * time.Millisecond)
	proc.setDown(false)

	require.NoError(t, p.Stop(context.Background()))
	assert.Contains(t, proc.ids(), "1")
	assert.Equal(t, 0, p.Buffered())
}
