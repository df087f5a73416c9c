package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"checkmate/internal/api"
	"checkmate/internal/config"
	"checkmate/internal/registry"
	"checkmate/internal/router"
	"checkmate/internal/store"
	"checkmate/internal/ws"
)

// Application wires every component together. Construction order follows the
// dependency chain: store, registry, router, websocket handler, API, HTTP.
type Application struct {
	cfg        *config.Config
	logger     *zap.Logger
	store      *store.Store
	registry   *registry.Registry
	httpServer *http.Server
}

// New builds an application from validated configuration.
func New(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	st, err := store.Open(cfg.Database.Path, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	reg := registry.NewRegistry(logger.Named("registry"))
	limiter := router.NewRateLimiter(cfg.WebSocket.RateLimit, cfg.WebSocket.RateWindow)
	rtr := router.NewRouter(limiter, logger.Named("router"))
	wsHandler := ws.NewHandler(reg, rtr, logger.Named("ws"))
	apiServer := api.NewServer(st, reg, logger.Named("api"))

	mux := chi.NewRouter()
	mux.Handle("/ws", wsHandler)
	mux.Mount("/", apiServer)

	return &Application{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		registry: reg,
		httpServer: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      mux,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		},
	}, nil
}

// Registry exposes the connection registry for code paths that notify.
func (a *Application) Registry() *registry.Registry {
	return a.registry
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("http server listening", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.WriteTimeout)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if closeErr := a.store.Close(); closeErr != nil {
		a.logger.Warn("store close failed", zap.Error(closeErr))
	}
	return err
}
