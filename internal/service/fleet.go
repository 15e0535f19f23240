package service

import (
	"context"
	"fmt"
	"net/url"

	"github.com/distcalc/orchestrator/internal/registry"
	"go.uber.org/zap"
)

const runningMessage = "Orchestrator is running"

// Fleet is the worker registry as seen by the status surface.
type Fleet interface {
	Register(workerURL string, maxCapacity int) (registry.Worker, error)
	Probe(ctx context.Context, workerURL string) (registry.Status, error)
	ListStatuses(ctx context.Context) ([]registry.Status, error)
}

type OrchestratorStatus struct {
	Running bool
	Message string
}

type FleetService struct {
	fleet Fleet
	log   *zap.SugaredLogger
}

func NewFleetService(fleet Fleet) *FleetService {
	return &FleetService{fleet: fleet, log: zap.S().Named("fleet_service")}
}

// Status answers as long as the orchestrator serves requests.
func (s *FleetService) Status() OrchestratorStatus {
	return OrchestratorStatus{Running: true, Message: runningMessage}
}

// ListStatuses probes every worker. Unreachable workers are reported inline.
func (s *FleetService) ListStatuses(ctx context.Context) ([]registry.Status, error) {
	return s.fleet.ListStatuses(ctx)
}

// RegisterWorker adds a worker announcing itself and probes it right away.
func (s *FleetService) RegisterWorker(ctx context.Context, workerURL string, maxGoroutines int) (registry.Status, error) {
	u, err := url.Parse(workerURL)
	if err != nil {
		return registry.Status{}, NewErrInvalidWorker(err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return registry.Status{}, NewErrInvalidWorker(fmt.Errorf("%q is not an absolute http url", workerURL))
	}

	w, err := s.fleet.Register(workerURL, maxGoroutines)
	if err != nil {
		return registry.Status{}, NewErrInvalidWorker(err)
	}
	s.log.Infow("worker announced itself", "url", w.URL, "max_goroutines", w.MaxCapacity)

	return s.fleet.Probe(ctx, w.URL)
}
