package v1alpha1

import (
	"fmt"
	"net/http"

	"github.com/distcalc/orchestrator/internal/service"
	"github.com/go-chi/render"
)

type WorkerForm struct {
	URL           string `json:"url" validate:"required,worker_url"`
	MaxGoroutines int    `json:"maxGoroutines" validate:"min=0"`
}

// (GET /orchestrator-status)
func (h *ServiceHandler) OrchestratorStatus(w http.ResponseWriter, r *http.Request) {
	status := h.fleetSrv.Status()
	_ = render.Render(w, r, OrchestratorStatusReply{Running: status.Running, Message: status.Message})
}

// (GET /ping-servers)
func (h *ServiceHandler) PingServers(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.fleetSrv.ListStatuses(r.Context())
	if err != nil {
		_ = render.Render(w, r, newErrorReply(r, http.StatusInternalServerError, err))
		return
	}
	_ = render.RenderList(w, r, newWorkerStatusList(statuses))
}

// (POST /api/v1/workers)
func (h *ServiceHandler) RegisterWorker(w http.ResponseWriter, r *http.Request) {
	form := WorkerForm{}
	if err := render.DecodeJSON(r.Body, &form); err != nil {
		_ = render.Render(w, r, newErrorReply(r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err)))
		return
	}
	if err := h.validator.Struct(form); err != nil {
		_ = render.Render(w, r, newErrorReply(r, http.StatusBadRequest, err))
		return
	}

	status, err := h.fleetSrv.RegisterWorker(r.Context(), form.URL, form.MaxGoroutines)
	if err != nil {
		switch err.(type) {
		case *service.ErrInvalidWorker:
			_ = render.Render(w, r, newErrorReply(r, http.StatusBadRequest, err))
		default:
			_ = render.Render(w, r, newErrorReply(r, http.StatusInternalServerError, err))
		}
		return
	}

	render.Status(r, http.StatusCreated)
	_ = render.Render(w, r, WorkerStatusReply(status))
}
