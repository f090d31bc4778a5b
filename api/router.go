// Package api serves the read-only run status over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/leadscrape/api/handler"
	"github.com/use-agent/leadscrape/api/middleware"
	"github.com/use-agent/leadscrape/config"
)

// NewRouter creates a configured Gin engine with the status routes.
//
// Middleware chain:
//
//	Global:  Recovery
//	Run:     RequireStatusKey (if keys are configured)
//
// Health stays outside auth so monitoring always reaches it.
func NewRouter(tracker *Tracker, cfg config.StatusConfig, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Mode)

	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(tracker, startTime))

	protected := v1.Group("")
	protected.Use(middleware.RequireStatusKey(cfg.APIKeys))
	protected.GET("/run", handler.Run(tracker))

	return r
}

// Server is the status HTTP server.
type Server struct {
	srv *http.Server
}

// Start listens on cfg.Addr in the background.
func Start(tracker *Tracker, cfg config.StatusConfig) *Server {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(tracker, cfg, time.Now()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("status server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("status server failed", "error", err)
		}
	}()
	return &Server{srv: srv}
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
