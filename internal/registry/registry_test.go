package registry_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/distcalc/orchestrator/internal/registry"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeFleet struct {
	mu      sync.Mutex
	healthy map[string]bool
	hang    map[string]bool
	delay   map[string]time.Duration
	checks  atomic.Int32
}

func newFakeFleet() *fakeFleet {
	return &fakeFleet{healthy: map[string]bool{}, hang: map[string]bool{}, delay: map[string]time.Duration{}}
}

func (f *fakeFleet) set(url string, healthy bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy[url] = healthy
}

func (f *fakeFleet) check(ctx context.Context, url string) (int, int, error) {
	f.checks.Add(1)
	f.mu.Lock()
	healthy, hang, delay := f.healthy[url], f.hang[url], f.delay[url]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, 0, ctx.Err()
		}
	}
	if hang {
		<-ctx.Done()
		return 0, 0, ctx.Err()
	}
	if !healthy {
		return 0, 0, errors.New("connection refused")
	}
	return 0, 1, nil
}

var _ = Describe("registry", func() {
	var (
		fleet *fakeFleet
		reg   *registry.Registry
		now   time.Time
		opts  registry.Options
	)

	BeforeEach(func() {
		fleet = newFakeFleet()
		now = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		opts = registry.Options{
			DefaultCapacity:     2,
			ProbeTimeout:        200 * time.Millisecond,
			HeartbeatInterval:   50 * time.Millisecond,
			InactivityThreshold: time.Minute,
		}
		var err error
		reg, err = registry.New(opts, fleet.check)
		Expect(err).To(BeNil())
		reg.WithClock(func() time.Time { return now })
	})

	register := func(urls ...string) {
		for _, url := range urls {
			fleet.set(url, true)
			_, err := reg.Register(url, 0)
			Expect(err).To(BeNil())
			_, err = reg.Probe(context.TODO(), url)
			Expect(err).To(BeNil())
		}
	}

	Context("register", func() {
		It("is idempotent and keeps the load of a known worker", func() {
			register("http://w1")
			lease, err := reg.Acquire()
			Expect(err).To(BeNil())
			Expect(lease.URL).To(Equal("http://w1"))

			w, err := reg.Register("http://w1/", 5)
			Expect(err).To(BeNil())
			Expect(w.CurrentLoad).To(Equal(1))
			Expect(w.MaxCapacity).To(Equal(5))

			workers, err := reg.List()
			Expect(err).To(BeNil())
			Expect(workers).To(HaveLen(1))
		})

		It("applies the default capacity", func() {
			w, err := reg.Register("http://w1", 0)
			Expect(err).To(BeNil())
			Expect(w.MaxCapacity).To(Equal(2))
		})

		It("rejects an empty url", func() {
			_, err := reg.Register("  ", 1)
			Expect(err).ToNot(BeNil())
		})
	})

	Context("health checks", func() {
		It("is not running before its first successful health check", func() {
			_, err := reg.Register("http://w1", 0)
			Expect(err).To(BeNil())

			w, err := reg.Get("http://w1")
			Expect(err).To(BeNil())
			Expect(w.Running(now, opts.InactivityThreshold)).To(BeFalse())
		})

		It("keeps a failing worker and lets it recover", func() {
			register("http://w1")

			fleet.set("http://w1", false)
			status, err := reg.Probe(context.TODO(), "http://w1")
			Expect(err).To(BeNil())
			Expect(status.Running).To(BeFalse())
			Expect(status.Error).To(Equal("connection refused"))

			fleet.set("http://w1", true)
			status, err = reg.Probe(context.TODO(), "http://w1")
			Expect(err).To(BeNil())
			Expect(status.Running).To(BeTrue())
			Expect(status.Error).To(BeEmpty())
			Expect(status.CurrentGoroutines).To(Equal(1))
			Expect(*status.LastHeartbeat).To(Equal(now))
		})

		It("fails for an unknown worker", func() {
			_, err := reg.Probe(context.TODO(), "http://nowhere")
			Expect(errors.Is(err, registry.ErrUnknownWorker)).To(BeTrue())
		})

		It("treats a stale heartbeat as not running", func() {
			register("http://w1")
			now = now.Add(opts.InactivityThreshold + time.Second)

			w, err := reg.Get("http://w1")
			Expect(err).To(BeNil())
			Expect(w.Running(now, opts.InactivityThreshold)).To(BeFalse())

			_, err = reg.PickAvailable(1)
			Expect(errors.Is(err, registry.ErrNoCapacityAvailable)).To(BeTrue())
		})
	})

	Context("list statuses", func() {
		It("reports a timed out worker without waiting for it", func() {
			register("http://w1", "http://w2")
			fleet.mu.Lock()
			fleet.hang["http://w2"] = true
			fleet.mu.Unlock()

			start := time.Now()
			statuses, err := reg.ListStatuses(context.TODO())
			Expect(err).To(BeNil())
			Expect(time.Since(start)).To(BeNumerically("<", opts.ProbeTimeout+500*time.Millisecond))

			Expect(statuses).To(HaveLen(2))
			Expect(statuses[0].URL).To(Equal("http://w1"))
			Expect(statuses[0].Running).To(BeTrue())
			Expect(statuses[1].URL).To(Equal("http://w2"))
			Expect(statuses[1].Running).To(BeFalse())
			Expect(statuses[1].Error).To(Equal("timeout"))
		})

		It("keeps healthy workers schedulable when the caller gives up", func() {
			register("http://w1")
			fleet.mu.Lock()
			fleet.delay["http://w1"] = 50 * time.Millisecond
			fleet.mu.Unlock()

			ctx, cancel := context.WithTimeout(context.TODO(), 10*time.Millisecond)
			defer cancel()
			_, _ = reg.ListStatuses(ctx)

			w, err := reg.Get("http://w1")
			Expect(err).To(BeNil())
			Expect(w.LastError).To(BeEmpty())

			picked, err := reg.PickAvailable(1)
			Expect(err).To(BeNil())
			Expect(picked[0].URL).To(Equal("http://w1"))
		})

		It("returns an empty list without workers", func() {
			statuses, err := reg.ListStatuses(context.TODO())
			Expect(err).To(BeNil())
			Expect(statuses).To(BeEmpty())
		})
	})

	Context("capacity", func() {
		It("never picks a full worker", func() {
			register("http://w1", "http://w2")

			for i := 0; i < 2; i++ {
				lease, err := reg.Acquire("http://w2")
				Expect(err).To(BeNil())
				Expect(lease.URL).To(Equal("http://w1"))
			}

			picked, err := reg.PickAvailable(1)
			Expect(err).To(BeNil())
			Expect(picked[0].URL).To(Equal("http://w2"))

			_, err = reg.PickAvailable(2)
			Expect(errors.Is(err, registry.ErrNoCapacityAvailable)).To(BeTrue())
		})

		It("prefers the least loaded worker", func() {
			register("http://w1", "http://w2")

			first, err := reg.Acquire()
			Expect(err).To(BeNil())
			second, err := reg.Acquire()
			Expect(err).To(BeNil())
			Expect(first.URL).ToNot(Equal(second.URL))
		})

		It("releases a lease exactly once", func() {
			register("http://w1")

			lease, err := reg.Acquire()
			Expect(err).To(BeNil())
			other, err := reg.Acquire()
			Expect(err).To(BeNil())

			lease.Release()
			lease.Release()

			w, err := reg.Get("http://w1")
			Expect(err).To(BeNil())
			Expect(w.CurrentLoad).To(Equal(1))

			other.Release()
			w, err = reg.Get("http://w1")
			Expect(err).To(BeNil())
			Expect(w.CurrentLoad).To(BeZero())
		})

		It("never exceeds capacity under concurrent acquires", func() {
			register("http://w1", "http://w2")

			var (
				wg       sync.WaitGroup
				acquired atomic.Int32
			)
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := reg.Acquire(); err == nil {
						acquired.Add(1)
					}
				}()
			}
			wg.Wait()

			Expect(acquired.Load()).To(BeNumerically("==", 4))
			workers, err := reg.List()
			Expect(err).To(BeNil())
			for _, w := range workers {
				Expect(w.CurrentLoad).To(Equal(w.MaxCapacity))
			}
		})
	})

	Context("heartbeat", func() {
		It("checks the fleet until cancelled", func() {
			reg.WithClock(time.Now)
			register("http://w1")
			before := fleet.checks.Load()

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				defer close(done)
				reg.Run(ctx)
			}()

			Eventually(func() int32 { return fleet.checks.Load() }).WithTimeout(2 * time.Second).Should(BeNumerically(">=", before+3))
			cancel()
			Eventually(done).WithTimeout(time.Second).Should(BeClosed())
		})
	})
})
