package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"RecoGateway/pkg/config"
	xhttp "RecoGateway/pkg/http"
	applogger "RecoGateway/pkg/logger"
)

// App encapsulates the HTTP lifecycle of the gateway. Dependencies are released by the DI cleanup
// after Run returns.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	handler    xhttp.Handler
	httpServer *xhttp.Server
}

func New(cfg *config.Config, logger *applogger.Logger, handler xhttp.Handler) *App {
	if logger == nil {
		logger = applogger.Nop()
	}
	return &App{cfg: cfg, logger: logger, handler: handler}
}

// Run serves until SIGINT/SIGTERM or a listener failure, then drains in-flight requests.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

func (a *App) run(ctx context.Context) error {
	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithSlowThreshold(a.cfg.Server.SlowThreshold),
		xhttp.WithLogger(a.logger),
	)

	errCh := make(chan error, 1)
	a.httpServer.Start(errCh)
	a.logger.Info("recommendation gateway started",
		applogger.String("environment", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port),
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}
	if err := a.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.httpServer.ShutdownTimeout())
	defer cancel()
	if err := a.httpServer.Stop(ctx); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}
