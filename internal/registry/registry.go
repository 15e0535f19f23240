package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/distcalc/orchestrator/pkg/metrics"
	"github.com/hashicorp/go-memdb"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	workersTable = "workers"
	idIndex      = "id"

	probeTimeoutMessage = "timeout"
)

var (
	ErrNoCapacityAvailable = errors.New("no capacity available")
	ErrUnknownWorker       = errors.New("unknown worker")
)

// ProbeFunc asks a worker for its capacity and current load.
type ProbeFunc func(ctx context.Context, workerURL string) (maxCapacity int, currentLoad int, err error)

type Options struct {
	DefaultCapacity     int
	ProbeTimeout        time.Duration
	HeartbeatInterval   time.Duration
	InactivityThreshold time.Duration
}

// Worker is a registry entry. Entries stored in memdb are never mutated in
// place, every write inserts a modified copy.
type Worker struct {
	URL           string
	MaxCapacity   int
	CurrentLoad   int
	ReportedLoad  int
	LastHeartbeat time.Time
	LastError     string
}

// Running reports whether the last probe succeeded within the inactivity threshold.
func (w Worker) Running(now time.Time, threshold time.Duration) bool {
	return w.LastError == "" && !w.LastHeartbeat.IsZero() && now.Sub(w.LastHeartbeat) <= threshold
}

type Status struct {
	URL               string     `json:"url"`
	Running           bool       `json:"running"`
	MaxGoroutines     int        `json:"maxGoroutines"`
	CurrentGoroutines int        `json:"currentGoroutines"`
	Error             string     `json:"error,omitempty"`
	LastHeartbeat     *time.Time `json:"lastHeartbeat,omitempty"`
}

// Registry is the set of known workers. It is implemented on top of go-memdb:
// capacity is acquired and released inside write transactions, which memdb
// serialises, so load counters can never be lost or double counted.
type Registry struct {
	db    *memdb.MemDB
	probe ProbeFunc
	opts  Options
	now   func() time.Time
	log   *zap.SugaredLogger
}

func New(opts Options, probe ProbeFunc) (*Registry, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, err
	}
	return &Registry{
		db:    db,
		probe: probe,
		opts:  opts,
		now:   time.Now,
		log:   zap.S().Named("registry"),
	}, nil
}

// WithClock replaces the time source.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Register adds a worker, or refreshes the capacity of a known one. It is idempotent.
func (r *Registry) Register(workerURL string, maxCapacity int) (Worker, error) {
	workerURL = normalize(workerURL)
	if workerURL == "" {
		return Worker{}, fmt.Errorf("worker url is empty")
	}
	if maxCapacity <= 0 {
		maxCapacity = r.opts.DefaultCapacity
	}

	txn := r.db.Txn(true)
	defer txn.Abort()

	w := Worker{URL: workerURL}
	existing, err := get(txn, workerURL)
	if err != nil && !errors.Is(err, ErrUnknownWorker) {
		return Worker{}, err
	}
	if existing != nil {
		w = *existing
	}
	w.MaxCapacity = maxCapacity

	if err := txn.Insert(workersTable, &w); err != nil {
		return Worker{}, err
	}
	txn.Commit()

	if existing == nil {
		r.log.Infow("worker registered", "url", workerURL, "capacity", maxCapacity)
	}
	return w, nil
}

// Get returns a copy of the worker entry.
func (r *Registry) Get(workerURL string) (Worker, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	w, err := get(txn, normalize(workerURL))
	if err != nil {
		return Worker{}, err
	}
	return *w, nil
}

// List returns every worker ordered by URL.
func (r *Registry) List() ([]Worker, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(workersTable, idIndex)
	if err != nil {
		return nil, err
	}
	workers := make([]Worker, 0)
	for obj := it.Next(); obj != nil; obj = it.Next() {
		workers = append(workers, *obj.(*Worker))
	}
	return workers, nil
}

// Probe pings a worker, bounded by the probe timeout only, and records the
// outcome. A failing worker stays registered and recovers on its next
// successful probe.
func (r *Registry) Probe(ctx context.Context, workerURL string) (Status, error) {
	workerURL = normalize(workerURL)
	if _, err := r.Get(workerURL); err != nil {
		return Status{}, err
	}

	// the outcome is recorded for the whole fleet, so the caller going
	// away must not turn into a failure of the worker
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.ProbeTimeout)
	defer cancel()

	maxCapacity, load, err := r.probe(pctx, workerURL)
	probeErr := ""
	if err != nil {
		probeErr = err.Error()
		if errors.Is(pctx.Err(), context.DeadlineExceeded) {
			probeErr = probeTimeoutMessage
		}
	}

	w, err := r.record(workerURL, maxCapacity, load, probeErr)
	if err != nil {
		return Status{}, err
	}
	return r.status(w), nil
}

func (r *Registry) record(workerURL string, maxCapacity, load int, probeErr string) (Worker, error) {
	txn := r.db.Txn(true)
	defer txn.Abort()

	existing, err := get(txn, workerURL)
	if err != nil {
		return Worker{}, err
	}
	w := *existing
	wasRunning := w.Running(r.now(), r.opts.InactivityThreshold)

	if probeErr == "" {
		w.LastHeartbeat = r.now()
		w.LastError = ""
		w.ReportedLoad = load
		if maxCapacity > 0 {
			w.MaxCapacity = maxCapacity
		}
	} else {
		w.LastError = probeErr
	}

	if err := txn.Insert(workersTable, &w); err != nil {
		return Worker{}, err
	}
	txn.Commit()

	if running := w.Running(r.now(), r.opts.InactivityThreshold); running != wasRunning {
		r.log.Infow("worker status changed", "url", workerURL, "running", running, "error", w.LastError)
	}
	return w, nil
}

// ListStatuses probes every worker concurrently and returns one entry per
// worker, ordered by URL. A slow worker delays the result by at most the probe timeout.
func (r *Registry) ListStatuses(ctx context.Context) ([]Status, error) {
	workers, err := r.List()
	if err != nil {
		return nil, err
	}

	statuses := make([]Status, len(workers))
	var g errgroup.Group
	for i, w := range workers {
		g.Go(func() error {
			s, err := r.Probe(ctx, w.URL)
			if err != nil {
				return err
			}
			statuses[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].URL < statuses[j].URL })
	return statuses, nil
}

// PickAvailable returns count running workers with spare capacity, least
// loaded first. It does not reserve anything, see Acquire.
func (r *Registry) PickAvailable(count int, exclude ...string) ([]Worker, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	return r.pick(txn, count, exclude)
}

func (r *Registry) pick(txn *memdb.Txn, count int, exclude []string) ([]Worker, error) {
	it, err := txn.Get(workersTable, idIndex)
	if err != nil {
		return nil, err
	}

	now := r.now()
	candidates := make([]Worker, 0)
	for obj := it.Next(); obj != nil; obj = it.Next() {
		w := obj.(*Worker)
		if !w.Running(now, r.opts.InactivityThreshold) || w.CurrentLoad >= w.MaxCapacity || excluded(w.URL, exclude) {
			continue
		}
		candidates = append(candidates, *w)
	}

	if len(candidates) < count {
		return nil, ErrNoCapacityAvailable
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].CurrentLoad != candidates[j].CurrentLoad {
			return candidates[i].CurrentLoad < candidates[j].CurrentLoad
		}
		return candidates[i].URL < candidates[j].URL
	})
	return candidates[:count], nil
}

// Lease is one unit of worker capacity held by the dispatcher.
type Lease struct {
	URL     string
	release func()
	once    sync.Once
}

// Release gives the capacity back. Calls after the first are no-ops.
func (l *Lease) Release() {
	l.once.Do(l.release)
}

// Acquire picks the least loaded worker and takes one unit of its capacity
// atomically. Workers in exclude are skipped.
func (r *Registry) Acquire(exclude ...string) (*Lease, error) {
	txn := r.db.Txn(true)
	defer txn.Abort()

	picked, err := r.pick(txn, 1, exclude)
	if err != nil {
		return nil, err
	}
	w := picked[0]
	w.CurrentLoad++
	if err := txn.Insert(workersTable, &w); err != nil {
		return nil, err
	}
	txn.Commit()

	return &Lease{
		URL:     w.URL,
		release: func() { r.release(w.URL) },
	}, nil
}

func (r *Registry) release(workerURL string) {
	txn := r.db.Txn(true)
	defer txn.Abort()

	existing, err := get(txn, workerURL)
	if err != nil {
		r.log.Errorw("failed to release capacity", "url", workerURL, "error", err)
		return
	}
	w := *existing
	if w.CurrentLoad > 0 {
		w.CurrentLoad--
	}
	if err := txn.Insert(workersTable, &w); err != nil {
		r.log.Errorw("failed to release capacity", "url", workerURL, "error", err)
		return
	}
	txn.Commit()
}

// Run probes the whole fleet every heartbeat interval until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	r.heartbeat(ctx)

	ticker := jitterbug.New(r.opts.HeartbeatInterval, &jitterbug.Norm{Stdev: 30 * time.Millisecond, Mean: 0})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.heartbeat(ctx)
		}
	}
}

func (r *Registry) heartbeat(ctx context.Context) {
	statuses, err := r.ListStatuses(ctx)
	if err != nil {
		r.log.Errorw("heartbeat failed", "error", err)
		return
	}

	running := 0
	for _, s := range statuses {
		if s.Running {
			running++
		}
	}
	metrics.UpdateWorkerStatusMetric(running, len(statuses)-running)
	r.log.Debugw("heartbeat", "workers", len(statuses), "running", running)
}

func (r *Registry) status(w Worker) Status {
	s := Status{
		URL:               w.URL,
		Running:           w.Running(r.now(), r.opts.InactivityThreshold),
		MaxGoroutines:     w.MaxCapacity,
		CurrentGoroutines: w.ReportedLoad,
		Error:             w.LastError,
	}
	if !w.LastHeartbeat.IsZero() {
		hb := w.LastHeartbeat
		s.LastHeartbeat = &hb
	}
	if !s.Running && s.Error == "" {
		s.Error = "inactive"
	}
	return s
}

func get(txn *memdb.Txn, workerURL string) (*Worker, error) {
	obj, err := txn.First(workersTable, idIndex, workerURL)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, workerURL)
	}
	return obj.(*Worker), nil
}

func excluded(workerURL string, exclude []string) bool {
	for _, e := range exclude {
		if normalize(e) == workerURL {
			return true
		}
	}
	return false
}

func normalize(workerURL string) string {
	return strings.TrimRight(strings.TrimSpace(workerURL), "/")
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			workersTable: {
				Name: workersTable,
				Indexes: map[string]*memdb.IndexSchema{
					idIndex: {
						Name:    idIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "URL"},
					},
				},
			},
		},
	}
}
