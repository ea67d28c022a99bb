// Package api exposes the scheduler over HTTP: a ps-like task snapshot, a
// schedlog on/off toggle with live streaming over WebSocket, and a
// cooperative kill endpoint, guarded by pkg/auth's bearer tokens where the
// operation mutates scheduler state.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bfsched/kernel/internal/config"
	"github.com/bfsched/kernel/pkg/audit"
	"github.com/bfsched/kernel/pkg/auth"
	"github.com/bfsched/kernel/pkg/metrics"
	"github.com/bfsched/kernel/pkg/sched"
)

// Server is the admin HTTP/WebSocket front end for a single Scheduler.
type Server struct {
	config  *config.Config
	sched   *sched.Scheduler
	monitor *metrics.Monitor
	audit   *audit.Sink
	jwtSvc  *auth.JWTService
	authMW  *auth.AuthMiddleware
	logger  *slog.Logger

	server *http.Server
	hub    *schedlogHub
}

// NewServer wires a Scheduler, its metrics Monitor, and an optional audit
// Sink into an admin API server. auditSink may be nil (equivalent to a
// disabled audit.Sink).
func NewServer(cfg *config.Config, s *sched.Scheduler, monitor *metrics.Monitor, auditSink *audit.Sink, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	jwtSvc, err := auth.NewJWTService(&cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("api: create JWT service: %w", err)
	}
	if auditSink == nil {
		auditSink, err = audit.NewSink(config.AuditConfig{}, logger)
		if err != nil {
			return nil, fmt.Errorf("api: create no-op audit sink: %w", err)
		}
	}

	return &Server{
		config:  cfg,
		sched:   s,
		monitor: monitor,
		audit:   auditSink,
		jwtSvc:  jwtSvc,
		authMW:  auth.NewAuthMiddleware(jwtSvc),
		logger:  logger,
		hub:     newSchedlogHub(logger),
	}, nil
}

// Start builds the router and serves it on cfg.API.Listen until Stop is
// called or the process exits. It blocks, matching net/http.Server's
// ListenAndServe convention.
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRouter()
	s.server = &http.Server{
		Addr:         s.config.API.Listen,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.hub.run()
	s.sched.SetSchedlogSink(func(line string) {
		s.hub.broadcast(line)
	})

	s.logger.Info("starting admin API server", "address", s.config.API.Listen)
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server and the schedlog hub.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping admin API server")
	s.hub.stop()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(s.loggingMiddleware())
	router.Use(gin.Recovery())
	router.Use(s.corsMiddleware())
	router.Use(s.securityMiddleware())
	if s.config.API.RateLimit.Enabled {
		router.Use(s.rateLimitMiddleware())
	}

	router.GET("/healthz", s.healthHandler)
	router.GET("/stats", s.statsHandler)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/login", s.loginHandler)

		v1.GET("/tasks", s.listTasksHandler)
		v1.GET("/ws/schedlog", s.schedlogWebsocketHandler)

		protected := v1.Group("/")
		protected.Use(s.authMW.RequireAuth())
		{
			protected.POST("/schedlog", s.toggleSchedlogHandler)
			protected.POST("/tasks/:pid/kill", s.killHandler)
			protected.GET("/audit", s.auditHandler)
		}
	}

	return router
}
