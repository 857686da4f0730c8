package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
	"CoinPull/internal/repository"
	"CoinPull/internal/service/errclass"
	"CoinPull/internal/service/interval"
	"CoinPull/pkg/logger"
	"CoinPull/pkg/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

// TaskShape selects how a task pulls data.
type TaskShape string

const (
	ShapeStream  TaskShape = "stream"  // live subscription until the deadline
	ShapePoll    TaskShape = "poll"    // periodic fetch until the deadline
	ShapeHistory TaskShape = "history" // one fetch, then done
)

// TaskSpec names the stream a task collects.
type TaskSpec struct {
	Exchange        string
	Symbol          string
	Metric          models.Metric
	IntervalSeconds int64 // klines only
	Shape           TaskShape
}

// TaskConfig is shared by every task of a run.
type TaskConfig struct {
	Duration        time.Duration
	PollInterval    time.Duration
	BackoffDelay    time.Duration
	FetchLimit      int
	DataDir         string
	RecencyCapacity int
	Truncate        bool
}

// TaskDeps are the collaborators a task borrows. All are safe to share
// between tasks.
type TaskDeps struct {
	Adapter    drepo.ExchangeAdapter
	Intervals  *interval.Catalog
	Classifier *errclass.Classifier
	Mirror     drepo.RecordMirror
	Metrics    drepo.Metrics
	Logger     *logger.Logger
}

var errTaskStopped = errors.New("task stopped")

// CollectionTask collects one (exchange, symbol, metric) stream into its own
// RecordStore until its deadline, a stop signal, or a fatal error.
type CollectionTask struct {
	id   string
	spec TaskSpec
	cfg  TaskConfig
	deps TaskDeps
	log  *logger.Logger
	now  func() time.Time

	mu     sync.Mutex
	report models.TaskReport

	stopOnce sync.Once
	stopCh   chan struct{}

	stored     atomic.Int64
	duplicates atomic.Int64
	stale      atomic.Int64
	retries    atomic.Int64
}

func NewCollectionTask(spec TaskSpec, cfg TaskConfig, deps TaskDeps) *CollectionTask {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Classifier == nil {
		deps.Classifier = errclass.New()
	}
	if deps.Intervals == nil {
		deps.Intervals = interval.Default()
	}
	if spec.Shape == "" {
		spec.Shape = ShapeStream
	}
	id := uuid.NewString()
	return &CollectionTask{
		id:   id,
		spec: spec,
		cfg:  cfg,
		deps: deps,
		log: deps.Logger.With(
			logger.String("task_id", id),
			logger.String("exchange", spec.Exchange),
			logger.String("symbol", spec.Symbol),
			logger.String("metric", string(spec.Metric)),
		),
		now: time.Now,
		report: models.TaskReport{
			ID:              id,
			Exchange:        spec.Exchange,
			Symbol:          spec.Symbol,
			Metric:          spec.Metric,
			IntervalSeconds: spec.IntervalSeconds,
			Status:          models.TaskPending,
		},
		stopCh: make(chan struct{}),
	}
}

func (t *CollectionTask) ID() string { return t.id }

func (t *CollectionTask) Spec() TaskSpec { return t.spec }

// Stop asks the task to end. It is observed at the next suspension point.
func (t *CollectionTask) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// Report is a snapshot of the task's state and counters.
func (t *CollectionTask) Report() models.TaskReport {
	t.mu.Lock()
	r := t.report
	t.mu.Unlock()
	r.Stored = t.stored.Load()
	r.Duplicates = t.duplicates.Load()
	r.Stale = t.stale.Load()
	r.Retries = t.retries.Load()
	return r
}

// Status is the current lifecycle state.
func (t *CollectionTask) Status() models.TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.report.Status
}

// Run executes the task and blocks until it reaches a terminal state.
// A task runs at most once; later calls return the current report.
func (t *CollectionTask) Run(ctx context.Context) models.TaskReport {
	start := t.now()
	deadline := start.Add(t.cfg.Duration)
	if !t.begin(start, deadline) {
		return t.Report()
	}
	select {
	case <-t.stopCh:
		t.Finish(models.TaskStopped, nil)
		return t.Report()
	default:
	}
	t.deps.Metrics.RecordActiveTasks(1)
	defer t.deps.Metrics.RecordActiveTasks(-1)

	t.log.Info("task started", logger.String("shape", string(t.spec.Shape)), logger.Duration("duration", t.cfg.Duration))
	status, err := t.execute(ctx, deadline)
	t.Finish(status, err)
	return t.Report()
}

func (t *CollectionTask) begin(start, deadline time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.report.Status != models.TaskPending {
		return false
	}
	t.report.Status = models.TaskRunning
	t.report.StartTime = start
	t.report.Deadline = deadline
	return true
}

// Finish moves the task to a terminal state. It is a no-op once the task is
// terminal, so the orchestrator can use it for tasks that never ran.
func (t *CollectionTask) Finish(status models.TaskStatus, err error) {
	t.mu.Lock()
	if t.report.Status.Terminal() {
		t.mu.Unlock()
		return
	}
	t.report.Status = status
	t.report.EndTime = t.now()
	if err != nil {
		t.report.Error = err.Error()
	}
	t.mu.Unlock()

	t.deps.Metrics.RecordTaskStatus(t.spec.Exchange, status)
	fields := []logger.Field{
		logger.String("status", string(status)),
		logger.Int64("stored", t.stored.Load()),
		logger.Int64("duplicates", t.duplicates.Load()),
		logger.Int64("retries", t.retries.Load()),
	}
	if status == models.TaskFailed {
		t.log.Error("task failed", append(fields, logger.Error(err))...)
		return
	}
	t.log.Info("task finished", fields...)
}

func (t *CollectionTask) execute(ctx context.Context, deadline time.Time) (models.TaskStatus, error) {
	if t.deps.Adapter == nil {
		return models.TaskFailed, fmt.Errorf("no adapter for exchange %q", t.spec.Exchange)
	}

	var token string
	switch t.spec.Metric {
	case models.MetricKlines:
		tok, err := t.deps.Intervals.TokenOf(t.spec.Exchange, t.spec.IntervalSeconds)
		if err != nil {
			return models.TaskFailed, err
		}
		token = tok
	case models.MetricTrades:
	default:
		return models.TaskFailed, fmt.Errorf("unknown metric %q", t.spec.Metric)
	}

	store, err := repository.OpenRecordStore(repository.StoreConfig{
		Dir:           t.cfg.DataDir,
		Exchange:      t.spec.Exchange,
		Symbol:        t.spec.Symbol,
		Metric:        t.spec.Metric,
		IntervalToken: token,
		Capacity:      t.cfg.RecencyCapacity,
		Truncate:      t.cfg.Truncate,
	}, t.deps.Mirror)
	if err != nil {
		return models.TaskFailed, err
	}
	t.mu.Lock()
	t.report.LogPath = store.Path()
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.report.LogRows = store.Rows()
		t.mu.Unlock()
		if err := store.Close(); err != nil {
			t.log.Warn("close record store", logger.Error(err))
		}
	}()

	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	taskCtx, stop := context.WithCancelCause(runCtx)
	defer stop(nil)
	go func() {
		select {
		case <-t.stopCh:
			stop(errTaskStopped)
		case <-taskCtx.Done():
		}
	}()

	switch t.spec.Shape {
	case ShapeHistory:
		err = t.runHistory(taskCtx, store, token)
	case ShapePoll:
		err = t.runPoll(taskCtx, store, token)
	case ShapeStream:
		err = t.runStream(taskCtx, store, token)
	default:
		err = fmt.Errorf("unknown task shape %q", t.spec.Shape)
	}
	return t.outcome(taskCtx, err)
}

// outcome maps how the shape returned onto a terminal status.
func (t *CollectionTask) outcome(ctx context.Context, err error) (models.TaskStatus, error) {
	if ctx.Err() == nil || (err == nil && t.spec.Shape == ShapeHistory) {
		if err != nil {
			return models.TaskFailed, err
		}
		return models.TaskCompleted, nil
	}
	switch cause := context.Cause(ctx); {
	case errors.Is(cause, errTaskStopped):
		return models.TaskStopped, nil
	case errors.Is(cause, context.DeadlineExceeded):
		return models.TaskTimedOut, nil
	default:
		return models.TaskStopped, nil
	}
}

// retry runs fn until it succeeds, fails fatally, or ctx ends. Only
// RateLimited and Timeout errors are retried, after a constant delay.
func (t *CollectionTask) retry(ctx context.Context, op string, fn func() error) error {
	var kind errclass.Kind
	b := backoff.WithContext(backoff.NewConstantBackOff(t.cfg.BackoffDelay), ctx)
	return backoff.RetryNotify(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		kind = t.deps.Classifier.Classify(t.spec.Exchange, err)
		if !kind.Retryable() {
			t.deps.Metrics.RecordError(string(kind))
			return backoff.Permanent(fmt.Errorf("%s: %w", op, err))
		}
		return err
	}, b, func(err error, wait time.Duration) {
		t.retries.Add(1)
		t.deps.Metrics.RecordRetry(t.spec.Exchange, string(kind))
		t.log.Warn("retrying "+op, logger.String("kind", string(kind)), logger.Duration("wait", wait), logger.Error(err))
	})
}

func (t *CollectionTask) fetch(ctx context.Context, token string) ([]models.Record, error) {
	var out []models.Record
	err := t.retry(ctx, "fetch", func() error {
		out = out[:0]
		switch t.spec.Metric {
		case models.MetricKlines:
			candles, err := t.deps.Adapter.FetchCandles(ctx, t.spec.Symbol, token, t.cfg.FetchLimit)
			if err != nil {
				return err
			}
			now := t.now()
			for _, c := range candles {
				if c.ClosedBy(now) {
					out = append(out, c)
				}
			}
		default:
			trades, err := t.deps.Adapter.FetchTrades(ctx, t.spec.Symbol, t.cfg.FetchLimit)
			if err != nil {
				return err
			}
			for _, tr := range trades {
				out = append(out, tr)
			}
		}
		return nil
	})
	return out, err
}

func (t *CollectionTask) runHistory(ctx context.Context, store *repository.RecordStore, token string) error {
	recs, err := t.fetch(ctx, token)
	if err != nil {
		return err
	}
	return t.persistAll(ctx, store, recs)
}

func (t *CollectionTask) runPoll(ctx context.Context, store *repository.RecordStore, token string) error {
	for {
		recs, err := t.fetch(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := t.persistAll(ctx, store, recs); err != nil {
			return err
		}
		if !sleepCtx(ctx, t.cfg.PollInterval) {
			return nil
		}
	}
}

func (t *CollectionTask) subscribe(ctx context.Context, token string, onRecord drepo.RecordHandler) (drepo.Subscription, error) {
	if t.spec.Metric == models.MetricKlines {
		return t.deps.Adapter.SubscribeCandles(ctx, t.spec.Symbol, token, onRecord)
	}
	return t.deps.Adapter.SubscribeTrades(ctx, t.spec.Symbol, onRecord)
}

// runStream keeps one subscription open until ctx ends, resubscribing after
// transient drops.
func (t *CollectionTask) runStream(ctx context.Context, store *repository.RecordStore, token string) error {
	storeErr := make(chan error, 1)
	onRecord := func(rec models.Record) {
		if ctx.Err() != nil {
			return
		}
		if err := t.persist(ctx, store, rec); err != nil {
			select {
			case storeErr <- err:
			default:
			}
		}
	}

	for {
		var sub drepo.Subscription
		err := t.retry(ctx, "subscribe", func() error {
			s, err := t.subscribe(ctx, token, onRecord)
			if err != nil {
				return err
			}
			sub = s
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		t.log.Debug("subscribed")

		select {
		case <-ctx.Done():
			_ = sub.Close()
			return nil
		case err := <-storeErr:
			_ = sub.Close()
			return err
		case <-sub.Done():
			err := sub.Err()
			_ = sub.Close()
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				kind := t.deps.Classifier.Classify(t.spec.Exchange, err)
				if !kind.Retryable() {
					t.deps.Metrics.RecordError(string(kind))
					return fmt.Errorf("stream: %w", err)
				}
				t.retries.Add(1)
				t.deps.Metrics.RecordRetry(t.spec.Exchange, string(kind))
				t.log.Warn("stream dropped, resubscribing", logger.String("kind", string(kind)), logger.Error(err))
			}
			if !sleepCtx(ctx, t.cfg.BackoffDelay) {
				return nil
			}
		}
	}
}

func (t *CollectionTask) persistAll(ctx context.Context, store *repository.RecordStore, recs []models.Record) error {
	for _, rec := range recs {
		if ctx.Err() != nil {
			return nil
		}
		if err := t.persist(ctx, store, rec); err != nil {
			return err
		}
	}
	return nil
}

// persist appends one record. Only a failed log write is returned; a
// failed mirror or an id-less record is logged and skipped.
func (t *CollectionTask) persist(ctx context.Context, store *repository.RecordStore, rec models.Record) error {
	res, err := store.Append(ctx, rec, nil)
	switch {
	case errors.Is(err, repository.ErrEmptyID):
		t.deps.Metrics.RecordError("empty_id")
		t.log.Warn("record without id skipped")
		return nil
	case errors.Is(err, repository.ErrMirror):
		t.deps.Metrics.RecordError("mirror")
		t.log.Warn("mirror failed", logger.Error(err))
	case err != nil:
		return err
	}

	t.deps.Metrics.RecordAppend(t.spec.Exchange, t.spec.Metric, res.String())
	switch res {
	case repository.Stored:
		t.stored.Add(1)
		if price, ok := lastPrice(rec); ok {
			t.deps.Metrics.RecordLastPrice(t.spec.Exchange, t.spec.Symbol, price)
		}
	case repository.DuplicateRejected:
		t.duplicates.Add(1)
	case repository.StaleRejected:
		t.stale.Add(1)
	}
	return nil
}

func lastPrice(rec models.Record) (float64, bool) {
	switch r := rec.(type) {
	case models.Candle:
		f, _ := r.Close.Float64()
		return f, true
	case models.Trade:
		f, _ := r.Price.Float64()
		return f, true
	}
	return 0, false
}

// sleepCtx waits for d or until ctx ends; it reports whether d elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
