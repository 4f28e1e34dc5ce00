// Package api serves the HTTP management API: tenant settings, auth status,
// on-demand syncs, stored inventory and a websocket feed of sync events.
package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"dnac-sync/internal/ciscodnac"
	"dnac-sync/internal/config"
)

// Dependencies are the collaborators the API serves from
type Dependencies struct {
	Store     Store
	Syncer    Syncer
	DNAC      ciscodnac.Options
	WebSocket *WebSocketManager
	Version   string
}

// Server represents the HTTP API server
type Server struct {
	config     *config.Config
	logger     *logrus.Logger
	router     *mux.Router
	httpServer *http.Server
	handlers   *Handlers
	limiters   *clientLimiters
}

// NewServer creates a new API server instance
func NewServer(cfg *config.Config, logger *logrus.Logger, deps Dependencies) (*Server, error) {
	if deps.Store == nil || deps.Syncer == nil {
		return nil, fmt.Errorf("api server requires a store and a syncer")
	}

	serverCfg := cfg.APIServer
	server := &Server{
		config:   cfg,
		logger:   logger,
		router:   mux.NewRouter(),
		handlers: NewHandlers(logger, deps),
		limiters: newClientLimiters(serverCfg.RateLimit.RequestsPerMin, serverCfg.RateLimit.BurstSize),
	}

	server.setupMiddleware()
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", serverCfg.Host, serverCfg.Port),
		Handler:      server.router,
		ReadTimeout:  time.Duration(serverCfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(serverCfg.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(serverCfg.IdleTimeout) * time.Second,
	}

	if serverCfg.TLSEnabled {
		if serverCfg.TLSCertFile == "" || serverCfg.TLSKeyFile == "" {
			return nil, fmt.Errorf("TLS enabled but cert or key file not specified")
		}

		server.httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			},
		}
	}

	return server, nil
}

// Handler returns the routed handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	serverCfg := s.config.APIServer
	s.logger.WithFields(logrus.Fields{
		"addr":        s.httpServer.Addr,
		"tls_enabled": serverCfg.TLSEnabled,
	}).Info("Starting API server")

	if s.handlers.wsManager != nil {
		s.handlers.wsManager.Start(ctx)
	}

	errChan := make(chan error, 1)
	go func() {
		var err error
		if serverCfg.TLSEnabled {
			err = s.httpServer.ListenAndServeTLS(serverCfg.TLSCertFile, serverCfg.TLSKeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		return s.Shutdown()
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.handlers.wsManager != nil {
		s.handlers.wsManager.Stop()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Error("Error during server shutdown")
		return err
	}

	s.logger.Info("API server shutdown complete")
	return nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.rateLimitMiddleware)
	s.router.Use(s.securityHeadersMiddleware)
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Health endpoint (no auth required)
	api.HandleFunc("/health", s.handlers.HealthCheck).Methods(http.MethodGet)

	protected := api.PathPrefix("").Subrouter()
	protected.Use(s.authenticationMiddleware)

	protected.HandleFunc("/status", s.handlers.Status).Methods(http.MethodGet)

	// Tenant settings
	protected.HandleFunc("/settings", s.handlers.ListTenants).Methods(http.MethodGet)
	protected.HandleFunc("/settings", s.handlers.CreateTenant).Methods(http.MethodPost)
	protected.HandleFunc("/settings/{id}", s.handlers.GetTenant).Methods(http.MethodGet)
	protected.HandleFunc("/settings/{id}", s.handlers.UpdateTenant).Methods(http.MethodPut)
	protected.HandleFunc("/settings/{id}", s.handlers.DeleteTenant).Methods(http.MethodDelete)

	// Sync
	protected.HandleFunc("/sync", s.handlers.SyncAll).Methods(http.MethodPost)
	protected.HandleFunc("/sync/runs", s.handlers.ListSyncRuns).Methods(http.MethodGet)
	protected.HandleFunc("/sync/{id}", s.handlers.SyncTenant).Methods(http.MethodPost)

	// Inventory
	protected.HandleFunc("/inventory/{id}/sites", s.handlers.ListSites).Methods(http.MethodGet)
	protected.HandleFunc("/inventory/{id}/devices", s.handlers.ListDevices).Methods(http.MethodGet)
	protected.HandleFunc("/inventory/{id}/mapping", s.handlers.DeviceMapping).Methods(http.MethodGet)

	protected.HandleFunc("/ws", s.handlers.WebSocketHandler).Methods(http.MethodGet)
	protected.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// writeError writes a JSON error from middleware
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, code ErrorCode, message string) {
	response := NewErrorResponse(code, message, r, requestIDFrom(r.Context()))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(response.Status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.WithError(err).Error("Failed to encode error response")
	}
}
