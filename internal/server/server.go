// Package server wires the state engines, the metrics recorder, and the
// admin API into one HTTP daemon.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/corestate/corestate/internal/api"
	"github.com/corestate/corestate/internal/config"
	"github.com/corestate/corestate/internal/diagnostics"
	"github.com/corestate/corestate/internal/metrics"
	"github.com/corestate/corestate/internal/middleware"
	"github.com/corestate/corestate/internal/platform"
	"github.com/corestate/corestate/internal/settings"
	"github.com/corestate/corestate/internal/store"
)

// Server owns the engines and the admin HTTP listener.
type Server struct {
	config     *config.Config
	logger     *logrus.Logger
	httpServer *http.Server
	blobStore  store.BlobStore
	registry   *settings.Registry
	diag       *diagnostics.Manager
	recorder   *metrics.Recorder
}

// New builds a server: opens the configured store engine, constructs the
// registry and the diagnostics manager over it, and registers the
// built-in settings.
func New(cfg *config.Config, logger *logrus.Logger) (*Server, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	blobStore, err := openStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Engine, err)
	}

	recorder := metrics.NewRecorder(cfg.Metrics)

	registry := settings.NewRegistry(settings.RegistryOptions{
		Store:   blobStore,
		Logger:  logger,
		Info:    platform.DetectInfo(cfg.AppVersion),
		Metrics: recorder,
	})
	registerBuiltins(registry)

	diag := diagnostics.NewManager(diagnostics.ManagerOptions{
		Store:         blobStore,
		Logger:        logger,
		MaxErrors:     cfg.Diagnostics.MaxErrors,
		PersistedTail: cfg.Diagnostics.PersistedTail,
		Metrics:       recorder,
	})

	s := &Server{
		config:    cfg,
		logger:    logger,
		blobStore: blobStore,
		registry:  registry,
		diag:      diag,
		recorder:  recorder,
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.buildHandler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Registry exposes the settings registry for embedding applications.
func (s *Server) Registry() *settings.Registry { return s.registry }

// Diagnostics exposes the diagnostics manager for embedding applications.
func (s *Server) Diagnostics() *diagnostics.Manager { return s.diag }

func openStore(cfg *config.Config, logger *logrus.Logger) (store.BlobStore, error) {
	switch cfg.Store.Engine {
	case "badger":
		return store.NewBadgerStore(store.BadgerOptions{
			DataDir:    cfg.DataDir,
			SyncWrites: cfg.Store.SyncWrites,
			Logger:     logger,
		})
	case "pebble":
		return store.NewPebbleStore(store.PebbleOptions{
			DataDir: cfg.DataDir,
			Logger:  logger,
		})
	case "sqlite":
		return store.NewSQLiteStore(store.SQLiteOptions{
			DataDir: cfg.DataDir,
			Logger:  logger,
		})
	default:
		return nil, fmt.Errorf("unknown store engine: %s", cfg.Store.Engine)
	}
}

func (s *Server) buildHandler() http.Handler {
	router := mux.NewRouter()

	router.Use(middleware.Logging(s.logger))
	router.Use(middleware.CORS())
	if s.config.Metrics.Enabled {
		router.Use(middleware.Metrics(s.recorder))

		path := s.config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, s.recorder.Handler()).Methods("GET")
	}

	api.NewHandler(s.registry, s.diag, s.logger).RegisterRoutes(router)

	return handlers.RecoveryHandler(handlers.RecoveryLogger(s.logger))(router)
}

// Start serves the admin API until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"address":  s.config.Listen,
		"data_dir": s.config.DataDir,
		"engine":   s.config.Store.Engine,
	}).Info("Starting corestate server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	s.logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to shutdown HTTP server")
	}

	s.diag.Close()

	if err := s.blobStore.Close(); err != nil {
		s.logger.WithError(err).Error("Failed to close blob store")
		return err
	}

	s.logger.Info("Server stopped")
	return nil
}
