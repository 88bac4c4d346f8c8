package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/server"
	"github.com/grafana/dskit/services"
	"github.com/grafana/dskit/signals"
	"github.com/pkg/errors"
)

const metricsNamespace = "icystream"

type App struct {
	cfg    Config
	logger slog.Logger

	Server *server.Server

	ModuleManager *modules.Manager
	serviceMap    map[string]services.Service
}

// New creates and returns a new App.
func New(cfg Config, logger slog.Logger) (*App, error) {
	a := &App{
		cfg:    cfg,
		logger: logger,
	}

	if a.cfg.Target == "" {
		a.cfg.Target = All
	}

	if err := a.setupModuleManager(); err != nil {
		return nil, errors.Wrap(err, "failed to setup module manager")
	}

	return a, nil
}

// Run starts the target modules and blocks until they stop. A module that
// fails, for example because the stream negotiated an unsupported codec,
// stops everything and its error is returned.
func (a *App) Run() error {
	serviceMap, err := a.ModuleManager.InitModuleServices(a.cfg.Target)
	if err != nil {
		return fmt.Errorf("failed to init module services %w", err)
	}
	a.serviceMap = serviceMap

	servs := []services.Service(nil)
	for _, s := range serviceMap {
		servs = append(servs, s)
	}

	sm, err := services.NewManager(servs...)
	if err != nil {
		return fmt.Errorf("failed to start service manager %w", err)
	}

	// Listen for events from this manager, and log them.
	healthy := func() { a.logger.Info("started", "target", a.cfg.Target) }
	stopped := func() { a.logger.Info("stopped") }
	serviceFailed := func(service services.Service) {
		// if any service fails, stop everything
		sm.StopAsync()
		a.logFailure(service)
	}
	sm.AddListener(services.NewManagerListener(healthy, stopped, serviceFailed))

	a.Server.HTTP.Path("/ready").Handler(readyHandler(sm))

	// Setup signal handler. If signal arrives, we stop the manager, which stops all the services.
	handler := signals.NewHandler(a.Server.Log)
	go func() {
		handler.Loop()
		sm.StopAsync()
	}()

	// Start all services. This can really only fail if some service is already
	// in other state than New, which should not be the case.
	err = sm.StartAsync(context.Background())
	if err != nil {
		return fmt.Errorf("failed to start service manager %w", err)
	}

	if err := sm.AwaitStopped(context.Background()); err != nil {
		return err
	}

	return a.firstFailure()
}

// moduleName finds the module a service was created for.
func (a *App) moduleName(service services.Service) string {
	for m, s := range a.serviceMap {
		if s == service {
			return m
		}
	}
	return "unknown"
}

func (a *App) logFailure(service services.Service) {
	m := a.moduleName(service)
	if errors.Is(service.FailureCase(), modules.ErrStopProcess) {
		a.logger.Info("received stop signal via return error", "module", m, "err", service.FailureCase())
		return
	}
	a.logger.Error("module failed", "module", m, "err", service.FailureCase())
}

func (a *App) firstFailure() error {
	for m, s := range a.serviceMap {
		if s.State() != services.Failed {
			continue
		}
		if err := s.FailureCase(); err != nil && !errors.Is(err, modules.ErrStopProcess) {
			return errors.Wrapf(err, "module %s failed", m)
		}
	}
	return nil
}

// readyHandler reports 200 once every module is running.
func readyHandler(sm *services.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if !sm.IsHealthy() {
			http.Error(w, "some services are not running", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ready"))
	}
}
