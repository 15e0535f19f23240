package v1alpha1

import (
	"net/http"

	"github.com/distcalc/orchestrator/internal/auth"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the orchestrator API. Calculation routes sit behind
// the authenticator, status and fleet routes stay open.
func RegisterRoutes(router chi.Router, h *ServiceHandler, authenticator auth.Authenticator) {
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router.Post("/api/v1/register", h.Register)
	router.Post("/api/v1/login", h.Login)
	router.Post("/api/v1/workers", h.RegisterWorker)

	router.Get("/orchestrator-status", h.OrchestratorStatus)
	router.Get("/ping-servers", h.PingServers)

	router.Group(func(r chi.Router) {
		r.Use(authenticator.Authenticator)

		r.Post("/submit-calculation", h.SubmitCalculation)
		r.Get("/get-calculations-by-user", h.GetCalculationsByUser)
		r.Get("/get-calculation-result", h.GetCalculationResult)
		r.Get("/get-all-calculations", h.GetAllCalculations)
		r.Post("/clear-all-calculations", h.ClearAllCalculations)
		r.Post("/get-user", h.GetUser)
	})
}
