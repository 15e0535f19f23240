package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricServer exposes the prometheus registry on its own listener so
// scraping never competes with the public API.
type MetricServer struct {
	listener net.Listener
	gatherer prometheus.Gatherer
}

func NewMetricServer(listener net.Listener) *MetricServer {
	return &MetricServer{listener: listener, gatherer: prometheus.DefaultGatherer}
}

func (m *MetricServer) Run(ctx context.Context) error {
	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{
		ErrorLog:      zap.NewStdLog(zap.L().Named("metrics_server")),
		ErrorHandling: promhttp.ContinueOnError,
	}))

	return serve(ctx, "metrics_server", &http.Server{Handler: router}, m.listener)
}

// serve runs srv on listener until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, name string, srv *http.Server, listener net.Listener) error {
	log := zap.S().Named(name)

	go func() {
		<-ctx.Done()
		log.Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		log.Info("server terminated")
	}()

	log.Infof("Listening on %s...", listener.Addr().String())
	if err := srv.Serve(listener); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
