package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/distcalc/orchestrator/internal/calc"
	"github.com/distcalc/orchestrator/internal/calculator/client"
	"github.com/distcalc/orchestrator/internal/events"
	"github.com/distcalc/orchestrator/internal/registry"
	"github.com/distcalc/orchestrator/internal/store"
	"github.com/distcalc/orchestrator/internal/store/model"
	"github.com/distcalc/orchestrator/pkg/metrics"
	"go.uber.org/zap"
)

var (
	ErrNoWorkerAvailable = errors.New("no worker available")
	ErrEvaluation        = errors.New("evaluation error")
)

const minRetryDelay = 10 * time.Millisecond

// Pool hands out worker capacity.
type Pool interface {
	Acquire(exclude ...string) (*registry.Lease, error)
}

// Executor runs one task on a worker.
type Executor interface {
	Calculate(ctx context.Context, workerURL string, task client.Task) (float64, error)
}

// EventWriter receives calculation lifecycle events.
type EventWriter interface {
	Write(ctx context.Context, kind string, body io.Reader) error
}

type Options struct {
	// FleetTimeout bounds the wait for worker capacity of a single step
	FleetTimeout time.Duration
	// SubtaskTimeout is added to the simulated duration of a step to bound the worker call
	SubtaskTimeout      time.Duration
	RetryDelay          time.Duration
	RetryMaxDelay       time.Duration
	MaxDispatchAttempts uint
}

// Dispatcher runs every job in its own goroutine. Steps of a job run one
// after the other on whichever worker has capacity.
type Dispatcher struct {
	store  store.Store
	pool   Pool
	exec   Executor
	events EventWriter
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc
	// mu orders wg.Add in Enqueue against the cancel in Stop
	mu  sync.Mutex
	wg  sync.WaitGroup
	log *zap.SugaredLogger
}

func New(s store.Store, pool Pool, exec Executor, opts Options) *Dispatcher {
	if opts.RetryDelay < minRetryDelay {
		opts.RetryDelay = minRetryDelay
	}
	if opts.RetryMaxDelay < opts.RetryDelay {
		opts.RetryMaxDelay = opts.RetryDelay
	}
	if opts.MaxDispatchAttempts == 0 {
		opts.MaxDispatchAttempts = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		store:  s,
		pool:   pool,
		exec:   exec,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		log:    zap.S().Named("dispatcher"),
	}
}

// WithEvents publishes an event each time a job reaches a terminal state.
func (d *Dispatcher) WithEvents(w EventWriter) *Dispatcher {
	d.events = w
	return d
}

// Enqueue starts executing a stored job in the background.
func (d *Dispatcher) Enqueue(job model.Job) {
	d.mu.Lock()
	if d.ctx.Err() != nil {
		d.mu.Unlock()
		d.log.Warnw("dispatcher stopped, job left for the next start", "job_id", job.ID)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()
	go d.run(job)
}

// Resume enqueues the jobs a previous process left pending or in progress.
// In-progress jobs start again from their first step.
func (d *Dispatcher) Resume(ctx context.Context) (int, error) {
	jobs, err := d.store.Job().List(ctx, store.NewJobQueryFilter().ByStates(model.JobStatePending, model.JobStateInProgress))
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		d.Enqueue(job)
	}
	if len(jobs) > 0 {
		d.log.Infof("resumed %d unfinished jobs", len(jobs))
	}
	return len(jobs), nil
}

// Stop cancels the running jobs and waits for their goroutines. Interrupted
// jobs keep their state and are picked up by Resume.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.cancel()
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run(job model.Job) {
	defer d.wg.Done()
	log := d.log.With("job_id", job.ID)

	expr, err := calc.Parse(job.Expression)
	if err != nil {
		d.fail(log, job.ID, err)
		return
	}
	steps := calc.Plan(expr)
	durations := calc.NewDurations(job.Durations())

	started := time.Now()
	if _, ok := d.update(log, job.ID, func(j *model.Job) error {
		j.State = model.JobStateInProgress
		j.TotalSteps = len(steps)
		j.CompletedSteps = 0
		j.StartedAt = &started
		return nil
	}); !ok {
		return
	}
	log.Debugw("job started", "expression", expr.Raw, "steps", len(steps))

	results := make([]float64, 0, len(steps))
	for _, step := range steps {
		task, err := newTask(step, results, durations)
		if err != nil {
			d.fail(log, job.ID, fmt.Errorf("%w: %w", ErrEvaluation, err))
			return
		}

		value, workerURL, err := d.dispatch(log, task)
		if err != nil {
			d.fail(log, job.ID, err)
			return
		}
		results = append(results, value)

		if _, ok := d.update(log, job.ID, func(j *model.Job) error {
			j.CompletedSteps = len(results)
			j.WorkerURL = workerURL
			return nil
		}); !ok {
			return
		}
	}

	result := expr.Result(results)
	finished := time.Now()
	done, ok := d.update(log, job.ID, func(j *model.Job) error {
		j.State = model.JobStateCompleted
		j.Result = &result
		j.FinishedAt = &finished
		return nil
	})
	if !ok {
		return
	}
	metrics.IncreaseJobsFinishedMetric(string(model.JobStateCompleted))
	d.publish(log, events.CalculationCompletedKind, done)
	log.Infow("job completed", "result", result, "duration", finished.Sub(started))
}

func newTask(step calc.Step, results []float64, durations calc.Durations) (client.Task, error) {
	left, err := step.Left.Resolve(results)
	if err != nil {
		return client.Task{}, err
	}
	right, err := step.Right.Resolve(results)
	if err != nil {
		return client.Task{}, err
	}
	return client.Task{
		Operator:   step.Operator,
		Left:       left,
		Right:      right,
		DurationMs: durations.For(step.Operator).Milliseconds(),
	}, nil
}

// dispatch runs a task, moving to another worker after a worker failure when
// one is available. Arithmetic failures are final.
func (d *Dispatcher) dispatch(log *zap.SugaredLogger, task client.Task) (float64, string, error) {
	var (
		lastFailed string
		lastErr    error
	)
	for attempt := uint(1); attempt <= d.opts.MaxDispatchAttempts; attempt++ {
		lease, err := d.acquire(lastFailed)
		if err != nil {
			return 0, "", err
		}

		value, err := d.call(lease, task)
		if err == nil {
			metrics.IncreaseDispatchAttemptsMetric("success")
			return value, lease.URL, nil
		}
		if !retryable(err) {
			metrics.IncreaseDispatchAttemptsMetric("failed")
			if errors.Is(err, calc.ErrDivisionByZero) || errors.Is(err, calc.ErrInvalidExpression) {
				return 0, "", err
			}
			return 0, "", fmt.Errorf("%w: %w", ErrEvaluation, err)
		}

		metrics.IncreaseDispatchAttemptsMetric("retried")
		log.Warnw("dispatch failed", "worker", lease.URL, "attempt", attempt, "error", err)
		lastFailed, lastErr = lease.URL, err
	}
	return 0, "", lastErr
}

// acquire waits for worker capacity with exponential backoff, up to the fleet timeout.
func (d *Dispatcher) acquire(lastFailed string) (*registry.Lease, error) {
	ctx, cancel := context.WithTimeout(d.ctx, d.opts.FleetTimeout)
	defer cancel()

	var lease *registry.Lease
	err := retry.Do(
		func() error {
			l, err := d.pool.Acquire(lastFailed)
			if errors.Is(err, registry.ErrNoCapacityAvailable) && lastFailed != "" {
				// the failed worker is still better than no worker
				l, err = d.pool.Acquire()
			}
			if err != nil {
				return err
			}
			lease = l
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(d.opts.FleetTimeout/d.opts.RetryDelay)+1),
		retry.Delay(d.opts.RetryDelay),
		retry.MaxDelay(d.opts.RetryMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, registry.ErrNoCapacityAvailable)
		}),
	)
	if err == nil {
		return lease, nil
	}
	if d.ctx.Err() != nil {
		return nil, d.ctx.Err()
	}
	if errors.Is(err, registry.ErrNoCapacityAvailable) || errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrNoWorkerAvailable
	}
	return nil, err
}

func (d *Dispatcher) call(lease *registry.Lease, task client.Task) (float64, error) {
	defer lease.Release()

	ctx, cancel := context.WithTimeout(d.ctx, task.Duration()+d.opts.SubtaskTimeout)
	defer cancel()

	return d.exec.Calculate(ctx, lease.URL, task)
}

func retryable(err error) bool {
	return errors.Is(err, client.ErrWorkerUnreachable) ||
		errors.Is(err, client.ErrCapacityReached) ||
		errors.Is(err, client.ErrShuttingDown)
}

// update applies a change to the job and reports whether execution should go on.
func (d *Dispatcher) update(log *zap.SugaredLogger, id uint, mutate func(j *model.Job) error) (*model.Job, bool) {
	job, err := d.store.Job().Update(d.ctx, id, mutate)
	switch {
	case err == nil:
		return job, true
	case errors.Is(err, store.ErrRecordNotFound):
		log.Debug("job cleared, discarding its results")
	case d.ctx.Err() != nil:
		log.Info("dispatcher stopped, job interrupted")
	default:
		log.Errorw("failed to update job", "error", err)
	}
	return nil, false
}

func (d *Dispatcher) fail(log *zap.SugaredLogger, id uint, cause error) {
	if d.ctx.Err() != nil {
		log.Info("dispatcher stopped, job interrupted")
		return
	}

	finished := time.Now()
	done, ok := d.update(log, id, func(j *model.Job) error {
		j.State = model.JobStateError
		j.Error = cause.Error()
		j.Result = nil
		j.FinishedAt = &finished
		return nil
	})
	if !ok {
		return
	}
	metrics.IncreaseJobsFinishedMetric(string(model.JobStateError))
	d.publish(log, events.CalculationFailedKind, done)
	log.Infow("job failed", "error", cause)
}

func (d *Dispatcher) publish(log *zap.SugaredLogger, kind string, job *model.Job) {
	if d.events == nil || job == nil {
		return
	}

	e := events.CalculationEvent{
		ID:        job.ID,
		UserID:    job.UserID,
		Operation: job.Expression,
		Status:    string(job.State),
		Result:    job.Result,
		Error:     job.Error,
		Worker:    job.WorkerURL,
	}
	if job.FinishedAt != nil {
		e.FinishedAt = *job.FinishedAt
	}

	payload, err := json.Marshal(e)
	if err != nil {
		log.Errorw("failed to encode event", "error", err)
		return
	}
	if err := d.events.Write(d.ctx, kind, bytes.NewReader(payload)); err != nil {
		log.Errorw("failed to publish event", "kind", kind, "error", err)
	}
}
