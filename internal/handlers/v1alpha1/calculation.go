package v1alpha1

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/distcalc/orchestrator/internal/auth"
	"github.com/distcalc/orchestrator/internal/service"
	"github.com/distcalc/orchestrator/internal/store/model"
	"github.com/go-chi/render"
	"go.uber.org/zap"
)

var (
	errUserRequired = errors.New("userId is required")
	errUserMismatch = errors.New("userId does not match the authenticated user")
)

type SubmitForm struct {
	UserID             uint   `json:"userId"`
	Operation          string `json:"operation" validate:"required"`
	AddDuration        int    `json:"add_duration" validate:"min=0"`
	SubtractDuration   int    `json:"subtract_duration" validate:"min=0"`
	MultiplyDuration   int    `json:"multiply_duration" validate:"min=0"`
	DivideDuration     int    `json:"divide_duration" validate:"min=0"`
	InactiveServerTime int    `json:"inactive_server_time" validate:"min=0"`
}

// (POST /submit-calculation)
func (h *ServiceHandler) SubmitCalculation(w http.ResponseWriter, r *http.Request) {
	form := SubmitForm{}
	if err := render.DecodeJSON(r.Body, &form); err != nil {
		_ = render.Render(w, r, newErrorReply(r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err)))
		return
	}
	if err := h.validator.Struct(form); err != nil {
		_ = render.Render(w, r, newErrorReply(r, http.StatusBadRequest, err))
		return
	}

	userID, code, err := resolveUser(r, form.UserID)
	if err != nil {
		_ = render.Render(w, r, newErrorReply(r, code, err))
		return
	}

	job, err := h.jobSrv.Submit(r.Context(), service.Submission{
		UserID:             userID,
		Expression:         form.Operation,
		AddDuration:        form.AddDuration,
		SubtractDuration:   form.SubtractDuration,
		MultiplyDuration:   form.MultiplyDuration,
		DivideDuration:     form.DivideDuration,
		InactiveServerTime: form.InactiveServerTime,
	})
	if err != nil {
		switch err.(type) {
		case *service.ErrInvalidExpression:
			_ = render.Render(w, r, newErrorReply(r, http.StatusBadRequest, err))
		default:
			zap.S().Named("handlers").Errorw("failed to submit calculation", "error", err)
			_ = render.Render(w, r, newErrorReply(r, http.StatusInternalServerError, err))
		}
		return
	}

	_ = render.Render(w, r, SubmitReply{
		Status:    statusCreated,
		ID:        job.ID,
		Operation: job.Expression,
		UserID:    job.UserID,
	})
}

// (GET /get-calculations-by-user)
func (h *ServiceHandler) GetCalculationsByUser(w http.ResponseWriter, r *http.Request) {
	requested, err := queryUint(r, "userId")
	if err != nil {
		_ = render.Render(w, r, newErrorReply(r, http.StatusBadRequest, err))
		return
	}

	userID, code, err := resolveUser(r, requested)
	if err != nil {
		_ = render.Render(w, r, newErrorReply(r, code, err))
		return
	}

	jobs, err := h.jobSrv.ListByUser(r.Context(), userID)
	if err != nil {
		_ = render.Render(w, r, newErrorReply(r, http.StatusInternalServerError, err))
		return
	}
	_ = render.RenderList(w, r, newCalculationList(jobs))
}

// (GET /get-calculation-result)
func (h *ServiceHandler) GetCalculationResult(w http.ResponseWriter, r *http.Request) {
	id, err := queryUint(r, "id")
	if err != nil || id == 0 {
		_ = render.Render(w, r, newErrorReply(r, http.StatusBadRequest, errors.New("a calculation id is required")))
		return
	}

	job, err := h.jobSrv.Get(r.Context(), id)
	if err != nil {
		switch err.(type) {
		case *service.ErrResourceNotFound:
			_ = render.Render(w, r, newErrorReply(r, http.StatusNotFound, err))
		default:
			_ = render.Render(w, r, newErrorReply(r, http.StatusInternalServerError, err))
		}
		return
	}

	// other users' jobs are hidden when callers are authenticated
	if user, found := auth.UserFromContext(r.Context()); found && user.ID != job.UserID {
		_ = render.Render(w, r, newErrorReply(r, http.StatusNotFound, service.NewErrJobNotFound(id)))
		return
	}

	_ = render.Render(w, r, newCalculationReply(*job))
}

// (GET /get-all-calculations)
func (h *ServiceHandler) GetAllCalculations(w http.ResponseWriter, r *http.Request) {
	var (
		jobs model.JobList
		err  error
	)
	if user, found := auth.UserFromContext(r.Context()); found {
		jobs, err = h.jobSrv.ListByUser(r.Context(), user.ID)
	} else {
		jobs, err = h.jobSrv.List(r.Context())
	}
	if err != nil {
		_ = render.Render(w, r, newErrorReply(r, http.StatusInternalServerError, err))
		return
	}
	_ = render.RenderList(w, r, newCalculationList(jobs))
}

// (POST /clear-all-calculations)
func (h *ServiceHandler) ClearAllCalculations(w http.ResponseWriter, r *http.Request) {
	requested, err := queryUint(r, "userId")
	if err != nil {
		_ = render.Render(w, r, newErrorReply(r, http.StatusBadRequest, err))
		return
	}

	var scope *uint
	if _, found := auth.UserFromContext(r.Context()); found || requested != 0 {
		userID, code, err := resolveUser(r, requested)
		if err != nil {
			_ = render.Render(w, r, newErrorReply(r, code, err))
			return
		}
		scope = &userID
	}

	if _, err := h.jobSrv.ClearAll(r.Context(), scope); err != nil {
		_ = render.Render(w, r, newErrorReply(r, http.StatusInternalServerError, err))
		return
	}
	_ = render.Render(w, r, SuccessReply{Success: true})
}

// resolveUser picks the user a request acts for. An authenticated user wins
// and must match any userId the request names.
func resolveUser(r *http.Request, requested uint) (uint, int, error) {
	if user, found := auth.UserFromContext(r.Context()); found {
		if requested != 0 && requested != user.ID {
			return 0, http.StatusForbidden, errUserMismatch
		}
		return user.ID, 0, nil
	}
	if requested == 0 {
		return 0, http.StatusBadRequest, errUserRequired
	}
	return requested, 0, nil
}

func queryUint(r *http.Request, name string) (uint, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return uint(v), nil
}
