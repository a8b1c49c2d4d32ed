package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/artpar/regiond/internal/core/crypto"
	"github.com/artpar/regiond/internal/core/domain"
	"github.com/artpar/regiond/internal/core/netalloc"
	"github.com/artpar/regiond/internal/shell/api"
	"github.com/artpar/regiond/internal/shell/controller"
	"github.com/artpar/regiond/internal/shell/events"
	"github.com/artpar/regiond/internal/shell/ledger"
	"github.com/artpar/regiond/internal/shell/runtime"
	"github.com/artpar/regiond/internal/shell/store"
	"github.com/artpar/regiond/internal/shell/workers"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitDockerError     = 3
	ExitHTTPServerError = 4
)

// =============================================================================
// Server
// =============================================================================

// Server represents the regiond application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      store.Store
	runtime    runtime.Runtime
	reaper     *workers.Reaper
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	// Derive the credential sealing key before opening anything. The master
	// secret is set via REGIOND_SECRETS_MASTER.
	key, err := crypto.DeriveKey(cfg.Secrets.Master)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitConfigError,
		}
	}

	// Connect to database
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDatabaseError,
		}
	}

	// Connect to the container engine
	rt, err := runtime.NewDockerRuntime(cfg.Docker.Host, logger)
	if err != nil {
		s.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDockerError,
		}
	}

	// Verify engine connection
	if err := rt.Ping(context.Background()); err != nil {
		s.Close()
		rt.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDockerError,
		}
	}

	// Rebuild the allocation ledger from persisted allocations.
	policy := netalloc.Policy{
		SubnetBase: cfg.Network.SubnetBase,
		OctetMin:   cfg.Network.OctetMin,
		OctetMax:   cfg.Network.OctetMax,
		PortBase:   cfg.Network.PortBase,
		PortRange:  cfg.Network.PortRange,
		MaxProbes:  cfg.Network.MaxProbes,
	}
	l, err := ledger.New(context.Background(), s, policy)
	if err != nil {
		s.Close()
		rt.Close()
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDatabaseError,
		}
	}
	logger.Info("allocation ledger loaded",
		"held", l.Held(),
		"subnets", policy.Subnets(),
	)

	// Create the lifecycle controller
	ctrl := controller.New(controller.Config{
		Store:         s,
		Ledger:        l,
		Runtime:       rt,
		Publisher:     events.NewAuditLogger(logger),
		Logger:        logger,
		EncryptionKey: key,
		DataDir:       cfg.Data.Dir,
		Policy: domain.HostPolicy{
			MinCPUCores: cfg.Limits.MinCPUCores,
			MaxCPUCores: cfg.Limits.MaxCPUCores,
			MinMemoryGB: cfg.Limits.MinMemoryGB,
			MaxMemoryGB: cfg.Limits.MaxMemoryGB,
			MinDiskGB:   cfg.Limits.MinDiskGB,
			MaxDiskGB:   cfg.Limits.MaxDiskGB,
			MinPlayers:  cfg.Limits.MinPlayers,
			MaxPlayers:  cfg.Limits.MaxPlayers,
			MinCredits:  cfg.Limits.MinCredits,
		},
	})

	// Create the failed-region reaper
	reaper := workers.NewReaper(s, ctrl, workers.ReaperConfig{
		Interval:        cfg.Reaper.Interval,
		RetentionPeriod: cfg.Reaper.RetentionPeriod,
	}, logger)

	// Create HTTP server
	handler := api.NewHandler(ctrl, rt, logger)
	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		store:      s,
		runtime:    rt,
		reaper:     reaper,
		logger:     logger,
	}, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start the reaper in the background
	s.reaper.Start()

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Stop the reaper
	s.reaper.Stop()

	// Close the engine client
	if err := s.runtime.Close(); err != nil {
		s.logger.Error("engine client close error", "error", err)
	}

	// Close database
	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
