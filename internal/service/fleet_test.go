package service_test

import (
	"context"
	"errors"
	"time"

	"github.com/distcalc/orchestrator/internal/registry"
	"github.com/distcalc/orchestrator/internal/service"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("fleet service", func() {
	var (
		reg *registry.Registry
		svc *service.FleetService
	)

	BeforeEach(func() {
		var err error
		reg, err = registry.New(registry.Options{
			DefaultCapacity:     5,
			ProbeTimeout:        100 * time.Millisecond,
			HeartbeatInterval:   time.Minute,
			InactivityThreshold: time.Minute,
		}, func(ctx context.Context, url string) (int, int, error) {
			switch url {
			case "http://slow:8081":
				<-ctx.Done()
				return 0, 0, ctx.Err()
			case "http://down:8081":
				return 0, 0, errors.New("connection refused")
			default:
				return 3, 1, nil
			}
		})
		Expect(err).To(BeNil())
		svc = service.NewFleetService(reg)
	})

	It("always reports the orchestrator as running", func() {
		status := svc.Status()
		Expect(status.Running).To(BeTrue())
		Expect(status.Message).ToNot(BeEmpty())
	})

	It("registers and checks an announcing worker", func() {
		status, err := svc.RegisterWorker(context.TODO(), "http://up:8081/", 0)
		Expect(err).To(BeNil())
		Expect(status.URL).To(Equal("http://up:8081"))
		Expect(status.Running).To(BeTrue())
		Expect(status.MaxGoroutines).To(Equal(3))
		Expect(status.CurrentGoroutines).To(Equal(1))
	})

	It("keeps a worker that cannot be reached", func() {
		status, err := svc.RegisterWorker(context.TODO(), "http://down:8081", 2)
		Expect(err).To(BeNil())
		Expect(status.Running).To(BeFalse())
		Expect(status.Error).To(ContainSubstring("connection refused"))

		statuses, err := svc.ListStatuses(context.TODO())
		Expect(err).To(BeNil())
		Expect(statuses).To(HaveLen(1))
	})

	It("rejects urls that are not http", func() {
		_, err := svc.RegisterWorker(context.TODO(), "localhost:8081", 2)
		Expect(err).To(BeAssignableToTypeOf(&service.ErrInvalidWorker{}))

		_, err = svc.RegisterWorker(context.TODO(), "ftp://worker", 2)
		Expect(err).To(BeAssignableToTypeOf(&service.ErrInvalidWorker{}))
	})

	It("reports a slow worker inline within the check timeout", func() {
		_, err := reg.Register("http://up:8081", 0)
		Expect(err).To(BeNil())
		_, err = reg.Register("http://slow:8081", 0)
		Expect(err).To(BeNil())

		start := time.Now()
		statuses, err := svc.ListStatuses(context.TODO())
		Expect(err).To(BeNil())
		Expect(time.Since(start)).To(BeNumerically("<", time.Second))

		Expect(statuses).To(HaveLen(2))
		Expect(statuses[0].URL).To(Equal("http://slow:8081"))
		Expect(statuses[0].Running).To(BeFalse())
		Expect(statuses[0].Error).To(Equal("timeout"))
		Expect(statuses[1].Running).To(BeTrue())
	})
})
