package apiserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/distcalc/orchestrator/internal/auth"
	"github.com/distcalc/orchestrator/internal/config"
	handlers "github.com/distcalc/orchestrator/internal/handlers/v1alpha1"
	"github.com/distcalc/orchestrator/internal/service"
	"github.com/distcalc/orchestrator/pkg/metrics"
	"github.com/distcalc/orchestrator/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg      *config.Config
	listener net.Listener
	jobs     *service.JobService
	fleet    *service.FleetService
	users    *service.UserService
}

// New returns a new instance of the orchestrator api server.
func New(
	cfg *config.Config,
	listener net.Listener,
	jobs *service.JobService,
	fleet *service.FleetService,
	users *service.UserService,
) *Server {
	return &Server{
		cfg:      cfg,
		listener: listener,
		jobs:     jobs,
		fleet:    fleet,
		users:    users,
	}
}

// Handler builds the router with the full middleware chain.
func (s *Server) Handler() (http.Handler, error) {
	authenticator, err := auth.NewAuthenticator(s.cfg.Service.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegisterDefault()

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.Service.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}),
		middleware.RequestID,
		middleware.Logger("http"),
		chiMiddleware.Recoverer,
	)

	h := handlers.NewServiceHandler(s.jobs, s.fleet, s.users)
	handlers.RegisterRoutes(router, h, authenticator)

	return router, nil
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	handler, err := s.Handler()
	if err != nil {
		return err
	}
	return serve(ctx, "api_server", &http.Server{Addr: s.cfg.Service.Address, Handler: handler}, s.listener)
}
