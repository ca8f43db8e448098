package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Ham12-3/customer-support-agent-sub000/internal/config"
	"github.com/Ham12-3/customer-support-agent-sub000/internal/observability"
)

// App aggregates the long-lived pieces of the process: the HTTP server,
// the observability runtime and the stop callback for background
// workers. Shutdown drains HTTP first, then stops workers, then flushes
// telemetry.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime

	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration

	stopBackground func()
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, stopBackground func()) *App {
	return &App{
		Config:                       cfg,
		Logger:                       logger,
		Server:                       server,
		Observability:                runtime,
		ShutdownTimeout:              cfg.ShutdownTimeout,
		ShutdownHTTPDrainTimeout:     cfg.ShutdownHTTPDrainTimeout,
		ShutdownObservabilityTimeout: cfg.ShutdownObservabilityTimeout,
		stopBackground:               stopBackground,
	}
}

func (a *App) StopBackgroundTasks() {
	if a.stopBackground != nil {
		a.stopBackground()
	}
}

// Shutdown performs the ordered teardown. It is safe to call once.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	drainCtx, cancel := context.WithTimeout(ctx, a.ShutdownHTTPDrainTimeout)
	defer cancel()
	if err := a.Server.Shutdown(drainCtx); err != nil {
		errs = append(errs, err)
	}

	a.StopBackgroundTasks()

	obsCtx, cancelObs := context.WithTimeout(ctx, a.ShutdownObservabilityTimeout)
	defer cancelObs()
	if err := a.Observability.Shutdown(obsCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
