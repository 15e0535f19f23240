package service_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/distcalc/orchestrator/internal/config"
	"github.com/distcalc/orchestrator/internal/service"
	"github.com/distcalc/orchestrator/internal/store"
	"github.com/distcalc/orchestrator/internal/store/model"
	"github.com/distcalc/orchestrator/pkg/migrations"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

const insertJobStm = "INSERT INTO calculations (user_id, expression, state) VALUES (%d, '%s', '%s');"

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []model.Job
}

func (r *recordingDispatcher) Enqueue(job model.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
}

func (r *recordingDispatcher) enqueued() []model.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Job{}, r.jobs...)
}

var _ = Describe("job service", Ordered, func() {
	var (
		s          store.Store
		gormdb     *gorm.DB
		dispatcher *recordingDispatcher
		svc        *service.JobService
	)

	BeforeAll(func() {
		cfg, err := config.NewDefault()
		Expect(err).To(BeNil())
		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())
		Expect(migrations.MigrateStore(db, cfg)).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		dispatcher = &recordingDispatcher{}
		svc = service.NewJobService(s, dispatcher)
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM calculations;")
	})

	count := func() int {
		var n int
		Expect(gormdb.Raw("SELECT COUNT(*) FROM calculations;").Scan(&n).Error).To(BeNil())
		return n
	}

	Context("submit", func() {
		It("stores a pending job and enqueues it", func() {
			job, err := svc.Submit(context.TODO(), service.Submission{UserID: 1, Expression: " 3 + 4 * 2 ", MultiplyDuration: 2})
			Expect(err).To(BeNil())
			Expect(job.ID).ToNot(BeZero())
			Expect(job.State).To(Equal(model.JobStatePending))
			Expect(job.Expression).To(Equal("3+4*2"))
			Expect(job.MultiplyDuration).To(Equal(2))

			Expect(dispatcher.enqueued()).To(HaveLen(1))
			Expect(dispatcher.enqueued()[0].ID).To(Equal(job.ID))
			Expect(count()).To(Equal(1))
		})

		It("rejects a literal division by zero without storing anything", func() {
			_, err := svc.Submit(context.TODO(), service.Submission{UserID: 1, Expression: "10/0"})
			Expect(err).ToNot(BeNil())
			Expect(err).To(BeAssignableToTypeOf(&service.ErrInvalidExpression{}))
			Expect(err.Error()).To(Equal("division by zero"))

			Expect(dispatcher.enqueued()).To(BeEmpty())
			Expect(count()).To(BeZero())
		})

		DescribeTable("rejects malformed expressions",
			func(expression string) {
				_, err := svc.Submit(context.TODO(), service.Submission{UserID: 1, Expression: expression})
				Expect(err).To(BeAssignableToTypeOf(&service.ErrInvalidExpression{}))
				Expect(count()).To(BeZero())
			},
			Entry("empty", ""),
			Entry("trailing operator", "2+"),
			Entry("letters", "2+x"),
			Entry("leading negative", "-2+1"),
		)
	})

	Context("queries", func() {
		BeforeEach(func() {
			for _, stm := range []string{
				fmt.Sprintf(insertJobStm, 1, "1+1", "completed"),
				fmt.Sprintf(insertJobStm, 2, "2+2", "pending"),
				fmt.Sprintf(insertJobStm, 1, "3+3", "in_progress"),
			} {
				Expect(gormdb.Exec(stm).Error).To(BeNil())
			}
		})

		It("lists a user's jobs in submission order", func() {
			jobs, err := svc.ListByUser(context.TODO(), 1)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(2))
			Expect(jobs[0].Expression).To(Equal("1+1"))
			Expect(jobs[1].Expression).To(Equal("3+3"))
		})

		It("lists every job", func() {
			jobs, err := svc.List(context.TODO())
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(3))
		})

		It("returns a not found error for an unknown id", func() {
			_, err := svc.Get(context.TODO(), 9999)
			Expect(err).To(BeAssignableToTypeOf(&service.ErrResourceNotFound{}))
		})

		It("clears one user's jobs", func() {
			userID := uint(1)
			n, err := svc.ClearAll(context.TODO(), &userID)
			Expect(err).To(BeNil())
			Expect(n).To(Equal(int64(2)))

			jobs, err := svc.List(context.TODO())
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].UserID).To(Equal(uint(2)))
		})

		It("clears everything and stays idempotent", func() {
			_, err := svc.ClearAll(context.TODO(), nil)
			Expect(err).To(BeNil())
			Expect(count()).To(BeZero())

			n, err := svc.ClearAll(context.TODO(), nil)
			Expect(err).To(BeNil())
			Expect(n).To(BeZero())
		})
	})
})
