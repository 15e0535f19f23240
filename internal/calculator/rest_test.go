package calculator_test

import (
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/distcalc/orchestrator/internal/calculator"
	"github.com/go-chi/chi/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("rest api", func() {
	var srv *httptest.Server

	BeforeEach(func() {
		router := chi.NewRouter()
		calculator.RegisterApi(router, calculator.NewNode(3), func() {})
		srv = httptest.NewServer(router)
	})

	AfterEach(func() {
		srv.Close()
	})

	It("reports the running calculations as text", func() {
		resp, err := http.Get(srv.URL + "/goroutines")
		Expect(err).To(BeNil())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/plain"))
		body, err := io.ReadAll(resp.Body)
		Expect(err).To(BeNil())
		Expect(string(body)).To(Equal("Current number of goroutines: 0\n"))
	})
})
