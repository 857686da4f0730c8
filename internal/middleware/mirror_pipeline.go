package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"CoinPull/internal/domain/models"
	domrepo "CoinPull/internal/domain/repository"

	"github.com/cenkalti/backoff/v4"
)

// Proc is the minimal downstream the pipeline needs.
type Proc interface {
	Mirror(ctx context.Context, env models.Envelope) error
	MirrorBatch(ctx context.Context, envs []models.Envelope) error
}

// MirrorPipeline sits between record stores and the mirror backend.
// It validates envelopes, forwards them, and buffers them while the
// backend is unavailable so collection never waits on it.
type MirrorPipeline struct {
	proc       Proc
	metrics    domrepo.Metrics
	bufSize    int
	batchSize  int
	bufCh      chan models.Envelope
	stopCh     chan struct{}
	doneCh     chan struct{}
	started    bool
	mu         sync.Mutex
	newBackOff func() backoff.BackOff
}

type PipelineOption func(*MirrorPipeline)

// WithBufferSize sets the buffer used while downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *MirrorPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithBatchSize caps how many buffered envelopes are flushed at once.
func WithBatchSize(n int) PipelineOption {
	return func(p *MirrorPipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithBackOff replaces the flush retry policy.
func WithBackOff(fn func() backoff.BackOff) PipelineOption {
	return func(p *MirrorPipeline) { p.newBackOff = fn }
}

// NewMirrorPipeline creates a new pipeline.
func NewMirrorPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *MirrorPipeline {
	p := &MirrorPipeline{
		proc:      proc,
		metrics:   metrics,
		bufSize:   1000,
		batchSize: 100,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan models.Envelope, p.bufSize)
	return p
}

// Start launches background flushing of buffered envelopes.
func (p *MirrorPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.flushLoop(ctx)
}

func (p *MirrorPipeline) flushLoop(ctx context.Context) {
	defer close(p.doneCh)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case env := <-p.bufCh:
			batch := p.drain([]models.Envelope{env})
			b := backoff.WithContext(p.newBackOff(), ctx)
			err := backoff.RetryNotify(func() error {
				select {
				case <-p.stopCh:
					return backoff.Permanent(errStopped)
				default:
				}
				return p.proc.MirrorBatch(ctx, batch)
			}, b, func(error, time.Duration) {
				p.metrics.RecordError("pipeline_flush")
			})
			if err != nil {
				p.requeue(batch)
				return
			}
			p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
		}
	}
}

var errStopped = errors.New("pipeline stopped")

// drain appends whatever is buffered, up to the batch size.
func (p *MirrorPipeline) drain(batch []models.Envelope) []models.Envelope {
	for len(batch) < p.batchSize {
		select {
		case env := <-p.bufCh:
			batch = append(batch, env)
		default:
			return batch
		}
	}
	return batch
}

// requeue puts a batch back so Stop can make a last attempt at it.
func (p *MirrorPipeline) requeue(batch []models.Envelope) {
	for _, env := range batch {
		select {
		case p.bufCh <- env:
		default:
			p.metrics.RecordError("pipeline_buffer_drop")
		}
	}
}

// Stop stops background flushing and tries once to deliver what is still
// buffered. Envelopes that cannot be delivered before ctx ends are dropped.
func (p *MirrorPipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.doneCh

	var errs []error
	for {
		batch := p.drain(nil)
		if len(batch) == 0 {
			return errors.Join(errs...)
		}
		if err := p.proc.MirrorBatch(ctx, batch); err != nil {
			p.metrics.RecordError("pipeline_buffer_drop")
			errs = append(errs, err)
			if ctx.Err() != nil {
				return errors.Join(errs...)
			}
		}
	}
}

// Buffered is the number of envelopes waiting for the backend.
func (p *MirrorPipeline) Buffered() int { return len(p.bufCh) }

// Mirror validates and forwards env, buffering it when downstream fails.
// A buffered envelope is not an error for the caller.
func (p *MirrorPipeline) Mirror(ctx context.Context, env models.Envelope) error {
	start := time.Now()
	if err := validateEnvelope(env); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}

	if p.Buffered() > 0 {
		// keep order behind what is already waiting
		return p.buffer(env)
	}
	if err := p.proc.Mirror(ctx, env); err != nil {
		p.metrics.RecordError("pipeline_process")
		return p.buffer(env)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func (p *MirrorPipeline) buffer(env models.Envelope) error {
	select {
	case p.bufCh <- env:
		return nil
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		return fmt.Errorf("mirror buffer full, dropped %s %s %s", env.Exchange, env.Symbol, env.ID)
	}
}

func validateEnvelope(env models.Envelope) error {
	if env.Exchange == "" || env.Symbol == "" {
		return fmt.Errorf("envelope without stream")
	}
	if env.ID == "" {
		return fmt.Errorf("envelope without id")
	}
	if len(env.Fields) == 0 {
		return fmt.Errorf("envelope without fields")
	}
	return nil
}
