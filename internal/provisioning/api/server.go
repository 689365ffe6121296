package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/internal/provisioning/api/auth"
	"github.com/driftfs/driftfs/pkg/directory/authz"
	"github.com/driftfs/driftfs/pkg/directory/quota"
	"github.com/driftfs/driftfs/pkg/directory/store"
	"github.com/driftfs/driftfs/pkg/directory/twofactor"
)

// Server provides the provisioning API HTTP server.
//
// The server exposes health probes, Prometheus metrics, JWT authentication
// endpoints, and the /cloud user/group provisioning surface. It supports
// graceful shutdown with a configurable timeout.
type Server struct {
	server          *http.Server
	jwtService      *auth.JWTService
	dirStore        store.Store
	config          APIConfig
	shutdownTimeout time.Duration
	shutdownOnce    sync.Once
}

// NewServer creates a new provisioning API server.
//
// The server is created in a stopped state. Call Start() to begin serving
// requests. The JWT secret must be configured via config.JWT.Secret or the
// DRIFTFS_PROVISIONING_SECRET environment variable.
func NewServer(config APIConfig, dirStore store.Store) (*Server, error) {
	config.applyDefaults()

	jwtSecret := config.GetJWTSecret()
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("JWT secret must be at least 32 characters; set via %s env var or config", EnvProvisioningSecret)
	}

	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret:               jwtSecret,
		Issuer:               "driftfs",
		AccessTokenDuration:  config.JWT.AccessTokenDuration,
		RefreshTokenDuration: config.JWT.RefreshTokenDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	resolver := authz.NewResolver(dirStore, dirStore)
	storage := quota.NewStatfsResolver()
	twoFactor := twofactor.NewStoreManager(dirStore)
	metrics := NewMetrics(prometheus.DefaultRegisterer)

	router := NewRouter(jwtService, dirStore, resolver, storage, twoFactor, metrics)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return &Server{
		server:          server,
		jwtService:      jwtService,
		dirStore:        dirStore,
		config:          config,
		shutdownTimeout: 5 * time.Second,
	}, nil
}

// SetShutdownTimeout overrides the default graceful shutdown timeout.
func (s *Server) SetShutdownTimeout(d time.Duration) {
	if d > 0 {
		s.shutdownTimeout = d
	}
}

// Start starts the API HTTP server and blocks until the context is cancelled
// or an error occurs. Cancellation triggers graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("provisioning API listening", "port", s.config.Port)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
				// Context was cancelled, error is not needed
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("provisioning API shutdown signal received")
		// Fresh context: the cancelled one would abort the drain immediately
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("provisioning API failed: %w", err)
	}
}

// Stop initiates graceful shutdown of the API server.
// Safe to call multiple times and concurrently with Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("provisioning API shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("provisioning API shutdown error: %w", err)
			logger.Error("provisioning API shutdown error", "error", err)
		} else {
			logger.Info("provisioning API stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is listening on.
func (s *Server) Port() int {
	return s.config.Port
}
