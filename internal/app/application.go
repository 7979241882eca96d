// Package app wires configuration, logging, the connection registry, the
// event hub, and the HTTP server into a runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"taskboard/internal/api"
	"taskboard/internal/audit"
	"taskboard/internal/auth"
	"taskboard/internal/config"
	"taskboard/internal/hub"
	"taskboard/internal/logging"
	"taskboard/internal/websocket"
)

// Application owns every long-lived component of the process.
type Application struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *websocket.Registry
	hub      *hub.Hub
	audit    *audit.Store
	server   *http.Server
}

// NewApplication assembles the process from configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	var auditStore *audit.Store
	if cfg.Audit.Enabled {
		auditStore, err = audit.Open(cfg.Audit.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit store: %w", err)
		}
	}

	resolver := auth.NewCachingResolver(
		auth.NewJWTResolver(cfg.Auth.JWTSecret),
		cfg.Auth.CacheTTL,
	)

	registry := websocket.NewRegistry(
		cfg.WebSocket.SendBuffer,
		cfg.WebSocket.WriteTimeout,
		logger,
	)

	var auditor websocket.Auditor
	if auditStore != nil {
		auditor = auditStore
	}
	handler := websocket.NewHandler(registry, resolver, auditor, websocket.HandlerConfig{
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		MessageRate:    cfg.WebSocket.MessageRate,
		MessageBurst:   cfg.WebSocket.MessageBurst,
	}, logger)

	eventHub := hub.NewHub(registry, cfg.WebSocket.EventQueueSize, logger)

	apiServer := api.NewServer(handler, registry, logger)
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Application{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		hub:      eventHub,
		audit:    auditStore,
		server:   httpServer,
	}, nil
}

// Hub exposes the event hub so the surrounding backend can publish events.
func (a *Application) Hub() *hub.Hub {
	return a.hub
}

// Registry exposes the connection registry.
func (a *Application) Registry() *websocket.Registry {
	return a.registry
}

// Logger exposes the process logger.
func (a *Application) Logger() *zap.Logger {
	return a.logger
}

// Run starts the HTTP server and the stale-connection sweeper and blocks
// until ctx is cancelled or a component fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	a.logger.Info("starting server",
		zap.String("addr", a.server.Addr),
		zap.Bool("audit", a.audit != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.sweepLoop(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.shutdown()
		return nil
	})

	err := g.Wait()
	a.logger.Info("server stopped")
	return err
}

// sweepLoop probes all connections on an interval and drops the dead ones.
func (a *Application) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.WebSocket.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := a.registry.SweepStale()
			if removed > 0 {
				a.logger.Info("swept stale connections", zap.Int("removed", removed))
			}
			if a.audit != nil {
				a.audit.RecordSweep(removed)
			}
		}
	}
}

func (a *Application) shutdown() {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown failed", zap.Error(err))
	}

	if err := a.hub.Stop(); err != nil && !errors.Is(err, hub.ErrNotRunning) {
		a.logger.Warn("hub stop failed", zap.Error(err))
	}

	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.logger.Warn("audit close failed", zap.Error(err))
		}
	}
}
