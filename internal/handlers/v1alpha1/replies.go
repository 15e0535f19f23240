package v1alpha1

import (
	"net/http"
	"time"

	"github.com/distcalc/orchestrator/internal/registry"
	"github.com/distcalc/orchestrator/internal/store/model"
	"github.com/distcalc/orchestrator/pkg/requestid"
	"github.com/go-chi/render"
)

const (
	statusCreated = "created"
	statusError   = "error"
)

type ErrorReply struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
	code      int
}

func newErrorReply(r *http.Request, code int, err error) ErrorReply {
	return ErrorReply{
		Status:    statusError,
		Error:     err.Error(),
		RequestID: requestid.FromRequest(r),
		code:      code,
	}
}

func (e ErrorReply) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.code)
	return nil
}

type SubmitReply struct {
	Status    string `json:"status"`
	ID        uint   `json:"id"`
	Operation string `json:"operation"`
	UserID    uint   `json:"userId"`
}

func (SubmitReply) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, http.StatusCreated)
	return nil
}

type CalculationReply struct {
	ID             uint       `json:"id"`
	UserID         uint       `json:"userId"`
	Operation      string     `json:"operation"`
	Status         string     `json:"status"`
	Result         *float64   `json:"result,omitempty"`
	Error          string     `json:"error,omitempty"`
	Worker         string     `json:"worker,omitempty"`
	TotalSteps     int        `json:"totalSteps"`
	CompletedSteps int        `json:"completedSteps"`
	CreatedAt      time.Time  `json:"createdAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
}

func newCalculationReply(job model.Job) CalculationReply {
	return CalculationReply{
		ID:             job.ID,
		UserID:         job.UserID,
		Operation:      job.Expression,
		Status:         string(job.State),
		Result:         job.Result,
		Error:          job.Error,
		Worker:         job.WorkerURL,
		TotalSteps:     job.TotalSteps,
		CompletedSteps: job.CompletedSteps,
		CreatedAt:      job.CreatedAt,
		FinishedAt:     job.FinishedAt,
	}
}

func (CalculationReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func newCalculationList(jobs model.JobList) []render.Renderer {
	list := make([]render.Renderer, 0, len(jobs))
	for _, job := range jobs {
		list = append(list, newCalculationReply(job))
	}
	return list
}

type SuccessReply struct {
	Success bool `json:"success"`
}

func (SuccessReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type LoginReply struct {
	JWT string `json:"jwt"`
}

func (LoginReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type UserReply struct {
	ID        uint      `json:"id"`
	Login     string    `json:"login"`
	CreatedAt time.Time `json:"createdAt"`
}

func newUserReply(u *model.User) UserReply {
	return UserReply{ID: u.ID, Login: u.Login, CreatedAt: u.CreatedAt}
}

func (UserReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type OrchestratorStatusReply struct {
	Running bool   `json:"running"`
	Message string `json:"message"`
}

func (OrchestratorStatusReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type WorkerStatusReply registry.Status

func (WorkerStatusReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func newWorkerStatusList(statuses []registry.Status) []render.Renderer {
	list := make([]render.Renderer, 0, len(statuses))
	for _, s := range statuses {
		list = append(list, WorkerStatusReply(s))
	}
	return list
}
