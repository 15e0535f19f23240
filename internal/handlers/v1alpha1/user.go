package v1alpha1

import (
	"fmt"
	"net/http"

	"github.com/distcalc/orchestrator/internal/auth"
	"github.com/distcalc/orchestrator/internal/service"
	"github.com/go-chi/render"
	"go.uber.org/zap"
)

type CredentialsForm struct {
	Login    string `json:"login" validate:"required,login,max=64"`
	Password string `json:"password" validate:"required,min=4,max=72"`
}

// (POST /api/v1/register)
func (h *ServiceHandler) Register(w http.ResponseWriter, r *http.Request) {
	form, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	if _, err := h.userSrv.Register(r.Context(), form.Login, form.Password); err != nil {
		switch err.(type) {
		case *service.ErrUserExists:
			_ = render.Render(w, r, newErrorReply(r, http.StatusConflict, err))
		default:
			zap.S().Named("handlers").Errorw("failed to register user", "error", err)
			_ = render.Render(w, r, newErrorReply(r, http.StatusInternalServerError, err))
		}
		return
	}
	_ = render.Render(w, r, SuccessReply{Success: true})
}

// (POST /api/v1/login)
func (h *ServiceHandler) Login(w http.ResponseWriter, r *http.Request) {
	form, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	token, err := h.userSrv.Login(r.Context(), form.Login, form.Password)
	if err != nil {
		switch err.(type) {
		case *service.ErrInvalidCredentials:
			_ = render.Render(w, r, newErrorReply(r, http.StatusUnauthorized, err))
		default:
			_ = render.Render(w, r, newErrorReply(r, http.StatusInternalServerError, err))
		}
		return
	}
	_ = render.Render(w, r, LoginReply{JWT: token})
}

type UserForm struct {
	Login string `json:"login" validate:"required,max=64"`
}

// (POST /get-user)
func (h *ServiceHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	form := UserForm{}
	if err := render.DecodeJSON(r.Body, &form); err != nil {
		_ = render.Render(w, r, newErrorReply(r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err)))
		return
	}
	if err := h.validator.Struct(form); err != nil {
		_ = render.Render(w, r, newErrorReply(r, http.StatusBadRequest, err))
		return
	}

	// other accounts are reported as missing
	if caller, found := auth.UserFromContext(r.Context()); found && caller.Login != form.Login {
		_ = render.Render(w, r, newErrorReply(r, http.StatusNotFound, service.NewErrUserNotFound(form.Login)))
		return
	}

	user, err := h.userSrv.GetByLogin(r.Context(), form.Login)
	if err != nil {
		switch err.(type) {
		case *service.ErrResourceNotFound:
			_ = render.Render(w, r, newErrorReply(r, http.StatusNotFound, err))
		default:
			_ = render.Render(w, r, newErrorReply(r, http.StatusInternalServerError, err))
		}
		return
	}
	_ = render.Render(w, r, newUserReply(user))
}

func (h *ServiceHandler) decodeCredentials(w http.ResponseWriter, r *http.Request) (CredentialsForm, bool) {
	form := CredentialsForm{}
	if err := render.DecodeJSON(r.Body, &form); err != nil {
		_ = render.Render(w, r, newErrorReply(r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err)))
		return form, false
	}
	if err := h.validator.Struct(form); err != nil {
		_ = render.Render(w, r, newErrorReply(r, http.StatusBadRequest, err))
		return form, false
	}
	return form, true
}
