package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
	"CoinPull/internal/repository"
	"CoinPull/internal/service/errclass"
	"CoinPull/internal/service/interval"
	"CoinPull/pkg/logger"
	"CoinPull/pkg/metrics"
)

// OrchestratorConfig describes which tasks a run builds.
type OrchestratorConfig struct {
	Metrics         []models.Metric
	Shape           TaskShape
	IntervalSeconds int64
	BatchDelay      time.Duration
	Task            TaskConfig
}

// Orchestrator runs collection tasks in staggered batches.
type Orchestrator struct {
	cfg        OrchestratorConfig
	adapters   map[string]drepo.ExchangeAdapter
	intervals  *interval.Catalog
	classifier *errclass.Classifier
	mirror     drepo.RecordMirror
	metrics    drepo.Metrics
	log        *logger.Logger

	mu    sync.RWMutex
	tasks []*CollectionTask
	byID  map[string]*CollectionTask
}

func NewOrchestrator(
	cfg OrchestratorConfig,
	adapters map[string]drepo.ExchangeAdapter,
	intervals *interval.Catalog,
	classifier *errclass.Classifier,
	mirror drepo.RecordMirror,
	m drepo.Metrics,
	log *logger.Logger,
) *Orchestrator {
	if m == nil {
		m = metrics.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if len(cfg.Metrics) == 0 {
		cfg.Metrics = []models.Metric{models.MetricKlines}
	}
	return &Orchestrator{
		cfg:        cfg,
		adapters:   adapters,
		intervals:  intervals,
		classifier: classifier,
		mirror:     mirror,
		metrics:    m,
		log:        log,
		byID:       make(map[string]*CollectionTask),
	}
}

// Plan builds one task per (exchange, symbol, metric) in schedule order.
func (o *Orchestrator) Plan(exchanges []string, symbolsPerExchange map[string][]string) []*CollectionTask {
	var tasks []*CollectionTask
	planned := make(map[string]struct{})
	for _, ex := range exchanges {
		for _, sym := range symbolsPerExchange[ex] {
			for _, metric := range o.cfg.Metrics {
				// one task per log file
				key := repository.LogPath(repository.StoreConfig{Exchange: strings.ToLower(ex), Metric: metric, Symbol: sym})
				if _, dup := planned[key]; dup {
					o.log.Warn("duplicate task skipped",
						logger.String("exchange", ex),
						logger.String("symbol", sym),
						logger.String("metric", string(metric)),
					)
					continue
				}
				planned[key] = struct{}{}

				spec := TaskSpec{Exchange: ex, Symbol: sym, Metric: metric, Shape: o.cfg.Shape}
				if metric == models.MetricKlines {
					spec.IntervalSeconds = o.cfg.IntervalSeconds
				}
				tasks = append(tasks, NewCollectionTask(spec, o.cfg.Task, TaskDeps{
					Adapter:    o.adapters[ex],
					Intervals:  o.intervals,
					Classifier: o.classifier,
					Mirror:     o.mirror,
					Metrics:    o.metrics,
					Logger:     o.log,
				}))
			}
		}
	}
	return tasks
}

// Run blocks until every task is terminal. Tasks start in batches of at
// most concurrencyCap; a batch must finish before the next one starts, and
// BatchDelay separates batches. When ctx ends, tasks that never started
// are marked Stopped.
func (o *Orchestrator) Run(ctx context.Context, exchanges []string, symbolsPerExchange map[string][]string, concurrencyCap int) []models.TaskReport {
	if concurrencyCap <= 0 {
		concurrencyCap = 1
	}
	tasks := o.Plan(exchanges, symbolsPerExchange)
	o.register(tasks)

	batches := (len(tasks) + concurrencyCap - 1) / concurrencyCap
	o.log.Info("collection started",
		logger.Int("tasks", len(tasks)),
		logger.Int("batches", batches),
		logger.Int("concurrency_cap", concurrencyCap),
	)

	for i := 0; i < len(tasks); i += concurrencyCap {
		end := min(i+concurrencyCap, len(tasks))
		if ctx.Err() != nil {
			o.skip(tasks[i:])
			break
		}
		o.runBatch(ctx, tasks[i:end])

		if end < len(tasks) && !sleepCtx(ctx, o.cfg.BatchDelay) {
			o.skip(tasks[end:])
			break
		}
	}

	reports := make([]models.TaskReport, len(tasks))
	for i, t := range tasks {
		reports[i] = t.Report()
	}
	o.log.Info("collection finished", logger.Any("summary", summarize(reports)))
	return reports
}

func (o *Orchestrator) runBatch(ctx context.Context, batch []*CollectionTask) {
	var wg sync.WaitGroup
	for _, t := range batch {
		wg.Add(1)
		go func(t *CollectionTask) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					o.metrics.RecordError("panic")
					t.Finish(models.TaskFailed, fmt.Errorf("panic: %v", r))
				}
			}()
			t.Run(ctx)
		}(t)
	}
	wg.Wait()
}

func (o *Orchestrator) skip(tasks []*CollectionTask) {
	for _, t := range tasks {
		t.Finish(models.TaskStopped, context.Canceled)
	}
}

func (o *Orchestrator) register(tasks []*CollectionTask) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, t := range tasks {
		o.tasks = append(o.tasks, t)
		o.byID[t.ID()] = t
	}
}

// Reports snapshots every task this orchestrator has planned.
func (o *Orchestrator) Reports() []models.TaskReport {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]models.TaskReport, len(o.tasks))
	for i, t := range o.tasks {
		out[i] = t.Report()
	}
	return out
}

// Task looks a task up by id.
func (o *Orchestrator) Task(id string) (*CollectionTask, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	t, ok := o.byID[id]
	return t, ok
}

// StopAll signals every task; running tasks end Stopped.
func (o *Orchestrator) StopAll() {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, t := range o.tasks {
		t.Stop()
	}
}

func summarize(reports []models.TaskReport) map[models.TaskStatus]int {
	out := make(map[models.TaskStatus]int)
	for _, r := range reports {
		out[r.Status]++
	}
	return out
}

// Report returns the snapshot of one task.
func (o *Orchestrator) Report(id string) (models.TaskReport, bool) {
	t, ok := o.Task(id)
	if !ok {
		return models.TaskReport{}, false
	}
	return t.Report(), true
}

// StopTask signals one task and returns its snapshot.
func (o *Orchestrator) StopTask(id string) (models.TaskReport, bool) {
	t, ok := o.Task(id)
	if !ok {
		return models.TaskReport{}, false
	}
	t.Stop()
	return t.Report(), true
}
