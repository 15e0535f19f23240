package service

import (
	"context"
	"errors"

	"github.com/distcalc/orchestrator/internal/calc"
	"github.com/distcalc/orchestrator/internal/store"
	"github.com/distcalc/orchestrator/internal/store/model"
	"github.com/distcalc/orchestrator/pkg/metrics"
	"go.uber.org/zap"
)

// Dispatcher executes stored jobs in the background.
type Dispatcher interface {
	Enqueue(job model.Job)
}

// Submission is a calculation request. Durations are in seconds.
type Submission struct {
	UserID             uint
	Expression         string
	AddDuration        int
	SubtractDuration   int
	MultiplyDuration   int
	DivideDuration     int
	InactiveServerTime int
}

type JobService struct {
	store      store.Store
	dispatcher Dispatcher
	log        *zap.SugaredLogger
}

func NewJobService(store store.Store, dispatcher Dispatcher) *JobService {
	return &JobService{
		store:      store,
		dispatcher: dispatcher,
		log:        zap.S().Named("job_service"),
	}
}

// Submit validates the expression, stores the job as pending and hands it
// to the dispatcher. Nothing is stored when the expression is rejected.
func (s *JobService) Submit(ctx context.Context, sub Submission) (*model.Job, error) {
	expr, err := calc.Parse(sub.Expression)
	if err != nil {
		return nil, NewErrInvalidExpression(err)
	}

	job, err := s.store.Job().Create(ctx, model.Job{
		UserID:             sub.UserID,
		Expression:         expr.Raw,
		AddDuration:        sub.AddDuration,
		SubtractDuration:   sub.SubtractDuration,
		MultiplyDuration:   sub.MultiplyDuration,
		DivideDuration:     sub.DivideDuration,
		InactiveServerTime: sub.InactiveServerTime,
	})
	if err != nil {
		return nil, err
	}

	metrics.IncreaseJobsSubmittedMetric()
	s.log.Debugw("calculation submitted", "job_id", job.ID, "user_id", job.UserID, "expression", job.Expression)

	s.dispatcher.Enqueue(*job)
	return job, nil
}

func (s *JobService) Get(ctx context.Context, id uint) (*model.Job, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	return job, nil
}

func (s *JobService) ListByUser(ctx context.Context, userID uint) (model.JobList, error) {
	return s.store.Job().List(ctx, store.NewJobQueryFilter().ByUserID(userID))
}

func (s *JobService) List(ctx context.Context) (model.JobList, error) {
	return s.store.Job().List(ctx, store.NewJobQueryFilter())
}

// ClearAll removes the jobs of one user, or every job when userID is nil.
// Jobs still running keep going and their results are discarded.
func (s *JobService) ClearAll(ctx context.Context, userID *uint) (int64, error) {
	filter := store.NewJobQueryFilter()
	if userID != nil {
		filter = filter.ByUserID(*userID)
	}

	n, err := s.store.Job().Delete(ctx, filter)
	if err != nil {
		return 0, err
	}
	s.log.Infow("calculations cleared", "count", n, "scoped", userID != nil)
	return n, nil
}
