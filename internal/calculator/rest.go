package calculator

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/distcalc/orchestrator/internal/calc"
	"github.com/distcalc/orchestrator/internal/calculator/client"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// RegisterApi mounts the worker endpoints. shutdown is called once /shutdown was accepted.
func RegisterApi(router chi.Router, node *Node, shutdown func()) {
	router.Post("/calculate", func(w http.ResponseWriter, r *http.Request) {
		task := client.Task{}
		if err := render.DecodeJSON(r.Body, &task); err != nil {
			_ = render.Render(w, r, newErrorReply(http.StatusBadRequest, client.CodeBadRequest, err))
			return
		}

		result, err := node.Calculate(r.Context(), task)
		switch {
		case err == nil:
			_ = render.Render(w, r, ResultReply{Result: result})
		case errors.Is(err, calc.ErrDivisionByZero):
			_ = render.Render(w, r, newErrorReply(http.StatusUnprocessableEntity, client.CodeDivisionByZero, err))
		case errors.Is(err, ErrCapacityReached):
			_ = render.Render(w, r, newErrorReply(http.StatusTooManyRequests, client.CodeCapacity, err))
		case errors.Is(err, ErrShuttingDown):
			_ = render.Render(w, r, newErrorReply(http.StatusServiceUnavailable, client.CodeShuttingDown, err))
		case errors.Is(err, calc.ErrInvalidExpression):
			_ = render.Render(w, r, newErrorReply(http.StatusBadRequest, client.CodeBadRequest, err))
		default:
			_ = render.Render(w, r, newErrorReply(http.StatusInternalServerError, "", err))
		}
	})

	router.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if node.ShuttingDown() {
			status = client.CodeShuttingDown
		}
		_ = render.Render(w, r, PingReply{
			Status:            status,
			MaxGoroutines:     node.Capacity(),
			CurrentGoroutines: node.Load(),
		})
	})

	router.Get("/goroutines", func(w http.ResponseWriter, r *http.Request) {
		render.PlainText(w, r, fmt.Sprintf("Current number of goroutines: %d\n", node.Load()))
	})

	router.Post("/shutdown", func(w http.ResponseWriter, r *http.Request) {
		render.Status(r, http.StatusAccepted)
		_ = render.Render(w, r, PingReply{Status: client.CodeShuttingDown, MaxGoroutines: node.Capacity(), CurrentGoroutines: node.Load()})
		go shutdown()
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type ResultReply client.ResultReply

func (ResultReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type PingReply client.PingReply

func (PingReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

type ErrorReply struct {
	client.ErrorReply
	status int
}

func newErrorReply(status int, code string, err error) ErrorReply {
	return ErrorReply{ErrorReply: client.ErrorReply{Error: err.Error(), Code: code}, status: status}
}

func (e ErrorReply) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.status)
	return nil
}
