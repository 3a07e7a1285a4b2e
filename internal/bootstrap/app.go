package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
	"github.com/yanqian/health-assistant/internal/domain/reinforce"
	"github.com/yanqian/health-assistant/internal/infra/config"
)

const shutdownTimeout = 10 * time.Second

// App encapsulates the HTTP server lifecycle.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	server    *http.Server
	models    healthbot.Models
	scheduler *reinforce.Scheduler
}

// NewApp is used by Wire to build the runnable app. models are already
// validated by the pipeline constructor; scheduler may be nil.
func NewApp(cfg *config.Config, logger *slog.Logger, server *http.Server, models healthbot.Models, scheduler *reinforce.Scheduler) *App {
	return &App{cfg: cfg, logger: logger.With("component", "bootstrap"), server: server, models: models, scheduler: scheduler}
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	a.scheduler.Start()
	defer a.scheduler.Stop()

	go func() {
		a.logger.Info("health assistant listening",
			"address", a.cfg.HTTP.Address,
			"passages", a.models.Passages.Len(),
			"index_rows", a.models.Index.Len(),
			"inference", a.cfg.Inference.Provider,
			"storage", a.cfg.Storage.Driver,
		)
		if err := a.server.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutdown signal received")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		a.logger.Info("http server stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
