package config_test

import (
	"time"

	"github.com/distcalc/orchestrator/internal/config"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("config", func() {
	It("loads the defaults", func() {
		cfg, err := config.NewDefault()
		Expect(err).To(BeNil())

		Expect(cfg.Database.Type).To(Equal(config.DBTypeSqlite))
		Expect(cfg.Service.Auth.AuthenticationType).To(Equal(config.AuthNone))
		Expect(cfg.Fleet.Workers).To(ConsistOf("http://localhost:8081", "http://localhost:8082"))
		Expect(cfg.Fleet.DefaultCapacity).To(Equal(5))
		Expect(cfg.Fleet.ProbeTimeout).To(Equal(2 * time.Second))
		Expect(cfg.Fleet.InactivityThreshold).To(Equal(time.Minute))
		Expect(cfg.Validate()).To(BeNil())
	})

	It("reads overrides from the environment", func() {
		GinkgoT().Setenv("ORCHESTRATOR_WORKERS", "http://w1:9000")
		GinkgoT().Setenv("ORCHESTRATOR_PROBE_TIMEOUT", "500ms")

		cfg, err := config.NewDefault()
		Expect(err).To(BeNil())
		Expect(cfg.Fleet.Workers).To(Equal([]string{"http://w1:9000"}))
		Expect(cfg.Fleet.ProbeTimeout).To(Equal(500 * time.Millisecond))
	})

	It("reports every invalid setting", func() {
		cfg, err := config.NewDefault()
		Expect(err).To(BeNil())

		cfg.Database.Type = "mysql"
		cfg.Service.Auth.AuthenticationType = "oidc"
		cfg.Fleet.Workers = []string{"not a url"}
		cfg.Fleet.MaxDispatchAttempts = 0

		err = cfg.Validate()
		Expect(err).ToNot(BeNil())
		Expect(err.Error()).To(ContainSubstring("4 errors occurred"))
		Expect(err.Error()).To(ContainSubstring(`unknown database type "mysql"`))
		Expect(err.Error()).To(ContainSubstring(`invalid worker url "not a url"`))
	})
})
