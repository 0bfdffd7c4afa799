// Package server exposes the wizard over HTTP for browser front ends.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/manash/novelgen/internal/export"
	"github.com/manash/novelgen/internal/wizard"
)

// APIKeyHeader carries the caller's key. It is forwarded to the backend for
// one request and never stored.
const APIKeyHeader = "X-Goog-Api-Key"

type Server struct {
	controller *wizard.Controller
	renderer   export.Renderer
	logger     *zap.Logger
	router     *gin.Engine

	// generating is held for the whole of a chapter request. A second
	// request while it is held gets 409.
	generating sync.Mutex
}

func New(controller *wizard.Controller, renderer export.Renderer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		controller: controller,
		renderer:   renderer,
		logger:     logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/session", s.getSession)
	api.DELETE("/session", s.resetSession)

	api.POST("/steps/1", s.submitFormat)
	api.POST("/steps/2", s.submitWorld)
	api.GET("/steps/3", s.enterWriting)

	api.GET("/chapters", s.listChapters)
	api.POST("/chapters", s.generateChapter)
	api.DELETE("/chapters", s.clearChapters)

	api.GET("/export/:kind", s.exportBook)

	return router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
