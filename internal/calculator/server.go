package calculator

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/distcalc/orchestrator/internal/calculator/client"
	"github.com/distcalc/orchestrator/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
	maxRegisterDelay        = 10 * time.Second
)

type Server struct {
	cfg      *Config
	node     *Node
	client   *client.Client
	listener net.Listener
}

func NewServer(cfg *Config, node *Node, c *client.Client, listener net.Listener) *Server {
	return &Server{
		cfg:      cfg,
		node:     node,
		client:   c,
		listener: listener,
	}
}

// Run serves the worker API until ctx is done or /shutdown is called, then
// drains the running tasks before closing the listener.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.Logger("calculator_http"),
		chiMiddleware.Recoverer,
	)
	RegisterApi(router, s.node, cancel)

	srv := http.Server{Addr: s.cfg.Address, Handler: router}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		zap.S().Named("calculator").Infof("Shutdown signal received: %s", ctx.Err())

		drainCtx, drainCancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration)
		defer drainCancel()
		if err := s.node.Shutdown(drainCtx); err != nil {
			zap.S().Named("calculator").Warnw("drain interrupted", "error", err)
		}

		ctxTimeout, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer shutdownCancel()
		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("calculator").Info("calculator terminated")
	}()

	if s.cfg.OrchestratorURL != "" {
		go s.register(ctx)
	}

	zap.S().Named("calculator").Infof("Listening on %s with capacity %d...", s.listener.Addr().String(), s.node.Capacity())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		return err
	}

	<-stopped
	return nil
}

// register announces the worker to the orchestrator, retrying with backoff
// while the orchestrator is not reachable yet.
func (s *Server) register(ctx context.Context) {
	req := client.RegisterRequest{URL: s.cfg.PublicURL, MaxGoroutines: s.node.Capacity()}

	err := retry.Do(
		func() error {
			return s.client.Register(ctx, s.cfg.OrchestratorURL, req)
		},
		retry.Context(ctx),
		retry.Attempts(s.cfg.RegisterAttempts),
		retry.Delay(s.cfg.RegisterDelay.Duration),
		retry.MaxDelay(maxRegisterDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			zap.S().Named("calculator").Warnw("registration failed, retrying", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		zap.S().Named("calculator").Errorw("failed to register with the orchestrator", "orchestrator", s.cfg.OrchestratorURL, "error", err)
		return
	}
	zap.S().Named("calculator").Infow("registered with the orchestrator", "orchestrator", s.cfg.OrchestratorURL, "url", s.cfg.PublicURL)
}
