package store

import (
	"context"
	"sync"

	"github.com/distcalc/orchestrator/internal/store/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Job interface {
	Create(ctx context.Context, job model.Job) (*model.Job, error)
	Get(ctx context.Context, id uint) (*model.Job, error)
	List(ctx context.Context, filter *JobQueryFilter) (model.JobList, error)
	Update(ctx context.Context, id uint, mutate func(job *model.Job) error) (*model.Job, error)
	Delete(ctx context.Context, filter *JobQueryFilter) (int64, error)
}

type JobStore struct {
	db    *gorm.DB
	log   logrus.FieldLogger
	locks *keyedMutex
}

func NewJobStore(db *gorm.DB, log logrus.FieldLogger) Job {
	return &JobStore{db: db, log: log, locks: newKeyedMutex()}
}

// Create stores a new job. The job is always created pending.
func (j *JobStore) Create(ctx context.Context, job model.Job) (*model.Job, error) {
	job.ID = 0
	job.State = model.JobStatePending
	if err := dbFor(ctx, j.db).Create(&job).Error; err != nil {
		return nil, translate(err)
	}
	return &job, nil
}

// Get returns a job based on its id.
func (j *JobStore) Get(ctx context.Context, id uint) (*model.Job, error) {
	job := &model.Job{}
	if err := dbFor(ctx, j.db).First(job, id).Error; err != nil {
		return nil, translate(err)
	}
	return job, nil
}

// List lists the jobs matching the filter in insertion order.
func (j *JobStore) List(ctx context.Context, filter *JobQueryFilter) (model.JobList, error) {
	var jobs model.JobList
	tx := dbFor(ctx, j.db)

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Order("id").Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Update loads the job, applies mutate and saves it if the resulting state
// change is allowed. Updates of the same job are serialised.
func (j *JobStore) Update(ctx context.Context, id uint, mutate func(job *model.Job) error) (*model.Job, error) {
	unlock := j.locks.lock(id)
	defer unlock()

	var job *model.Job
	err := withTransaction(ctx, j.db, j.log, func(ctx context.Context) error {
		var err error
		job, err = j.update(ctx, id, mutate)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (j *JobStore) update(ctx context.Context, id uint, mutate func(job *model.Job) error) (*model.Job, error) {
	job, err := j.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := job.State
	if err := mutate(job); err != nil {
		return nil, err
	}
	job.ID = id

	if err := previous.ValidateTransition(job.State); err != nil {
		return nil, err
	}

	// a plain update: a row cleared since Get must stay gone
	result := dbFor(ctx, j.db).Model(job).Select("*").Omit("id", "created_at").Updates(job)
	if result.Error != nil {
		return nil, translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrRecordNotFound
	}
	return job, nil
}

// Delete removes the jobs matching the filter, all of them when the filter is empty.
func (j *JobStore) Delete(ctx context.Context, filter *JobQueryFilter) (int64, error) {
	tx := dbFor(ctx, j.db).Session(&gorm.Session{AllowGlobalUpdate: true})

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	result := tx.Delete(&model.Job{})
	return result.RowsAffected, result.Error
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[uint]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uint]*refMutex)}
}

func (k *keyedMutex) lock(id uint) func() {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &refMutex{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
