package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	apiserver "github.com/distcalc/orchestrator/internal/api_server"
	"github.com/distcalc/orchestrator/internal/calculator/client"
	"github.com/distcalc/orchestrator/internal/config"
	"github.com/distcalc/orchestrator/internal/dispatcher"
	"github.com/distcalc/orchestrator/internal/events"
	"github.com/distcalc/orchestrator/internal/registry"
	"github.com/distcalc/orchestrator/internal/service"
	"github.com/distcalc/orchestrator/internal/store"
	"github.com/distcalc/orchestrator/pkg/migrations"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the orchestrator",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, flush, err := setup()
		if err != nil {
			return err
		}
		defer flush()

		zap.S().Info("Starting orchestrator")
		defer zap.S().Info("Orchestrator stopped")

		zap.S().Info("Initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			zap.S().Fatalw("initializing data store", "error", err)
		}

		if err := migrations.MigrateStore(db, cfg); err != nil {
			zap.S().Fatalw("running migration", "error", err)
		}

		s := store.NewStore(db)
		defer s.Close()

		calculators := client.New(&http.Client{})

		fleet, err := newRegistry(cfg, calculators)
		if err != nil {
			zap.S().Fatalw("initializing worker registry", "error", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		go fleet.Run(ctx)

		var writer events.Writer
		if cfg.Service.Events.Enabled {
			writer = &events.StdoutWriter{}
		}
		d, stop := startDispatcher(ctx, cfg, s, fleet, calculators, writer)
		defer stop()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.Address)
			if err != nil {
				zap.S().Fatalw("creating listener", "error", err)
			}

			server := apiserver.New(cfg, listener,
				service.NewJobService(s, d),
				service.NewFleetService(fleet),
				service.NewUserService(s, cfg.Service.Auth),
			)
			if err := server.Run(ctx); err != nil {
				zap.S().Fatalw("Error running server", "error", err)
			}
		}()

		go func() {
			defer cancel()
			listener, err := newListener(cfg.Service.MetricsAddress)
			if err != nil {
				zap.S().Fatalw("creating listener", "error", err)
			}

			metricsServer := apiserver.NewMetricServer(listener)
			if err := metricsServer.Run(ctx); err != nil {
				zap.S().Fatalw("Error running metrics server", "error", err)
			}
		}()

		<-ctx.Done()
		return nil
	},
}

// startDispatcher resumes unfinished jobs. The returned func stops the
// dispatcher before closing the event producer it publishes to.
func startDispatcher(ctx context.Context, cfg *config.Config, s store.Store, pool dispatcher.Pool, exec dispatcher.Executor, w events.Writer) (*dispatcher.Dispatcher, func()) {
	d := dispatcher.New(s, pool, exec, dispatcher.Options{
		FleetTimeout:        cfg.Fleet.FleetTimeout,
		SubtaskTimeout:      cfg.Fleet.SubtaskTimeout,
		RetryDelay:          cfg.Fleet.RetryDelay,
		RetryMaxDelay:       cfg.Fleet.RetryMaxDelay,
		MaxDispatchAttempts: cfg.Fleet.MaxDispatchAttempts,
	})

	var producer *events.EventProducer
	if w != nil {
		producer = events.NewEventProducer(w, events.WithOutputTopic(cfg.Service.Events.Topic))
		d.WithEvents(producer)
	}

	if _, err := d.Resume(ctx); err != nil {
		zap.S().Errorw("failed to resume unfinished calculations", "error", err)
	}

	return d, func() {
		d.Stop()
		if producer != nil {
			_ = producer.Close()
		}
	}
}

func newRegistry(cfg *config.Config, calculators *client.Client) (*registry.Registry, error) {
	fleet, err := registry.New(registry.Options{
		DefaultCapacity:     cfg.Fleet.DefaultCapacity,
		ProbeTimeout:        cfg.Fleet.ProbeTimeout,
		HeartbeatInterval:   cfg.Fleet.HeartbeatInterval,
		InactivityThreshold: cfg.Fleet.InactivityThreshold,
	}, calculators.Probe)
	if err != nil {
		return nil, err
	}

	for _, workerURL := range cfg.Fleet.Workers {
		if _, err := fleet.Register(workerURL, cfg.Fleet.DefaultCapacity); err != nil {
			return nil, err
		}
	}
	return fleet, nil
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
