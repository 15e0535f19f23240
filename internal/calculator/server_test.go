package calculator_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"github.com/distcalc/orchestrator/internal/calculator"
	"github.com/distcalc/orchestrator/internal/calculator/client"
	"github.com/distcalc/orchestrator/internal/util"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("server", func() {
	It("registers with the orchestrator after it becomes reachable and stops on /shutdown", func() {
		var attempts atomic.Int32
		registered := make(chan client.RegisterRequest, 1)
		orchestrator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			req := client.RegisterRequest{}
			_ = json.NewDecoder(r.Body).Decode(&req)
			registered <- req
			w.WriteHeader(http.StatusCreated)
		}))
		defer orchestrator.Close()

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).To(BeNil())

		cfg := calculator.NewDefaultConfig()
		cfg.PublicURL = "http://" + listener.Addr().String()
		cfg.OrchestratorURL = orchestrator.URL
		cfg.RegisterDelay = util.Duration{Duration: 10 * time.Millisecond}
		cfg.MaxGoroutines = 2

		srv := calculator.NewServer(cfg, calculator.NewNode(cfg.MaxGoroutines), client.New(nil), listener)
		done := make(chan error, 1)
		go func() {
			done <- srv.Run(context.Background())
		}()

		Eventually(registered).WithTimeout(3 * time.Second).Should(Receive(Equal(client.RegisterRequest{URL: cfg.PublicURL, MaxGoroutines: 2})))

		resp, err := http.Post(cfg.PublicURL+"/shutdown", "application/json", nil)
		Expect(err).To(BeNil())
		Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
		resp.Body.Close()

		Eventually(done).WithTimeout(3 * time.Second).Should(Receive(BeNil()))
	})

	It("stops when its context is cancelled", func() {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).To(BeNil())

		cfg := calculator.NewDefaultConfig()
		srv := calculator.NewServer(cfg, calculator.NewNode(1), client.New(nil), listener)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- srv.Run(ctx)
		}()

		Eventually(func() error {
			resp, err := http.Get("http://" + listener.Addr().String() + "/health")
			if err == nil {
				resp.Body.Close()
			}
			return err
		}).Should(Succeed())

		cancel()
		Eventually(done).WithTimeout(3 * time.Second).Should(Receive(BeNil()))
	})
})
