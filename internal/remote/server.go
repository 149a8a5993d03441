// Package remote provides the unstable HTTP endpoint used as the remote dependency
// of the retry demo, and the client that calls it.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// UnstablePath is the route prefix of the unstable endpoint
const UnstablePath = "/unstableApi"

// ServerOption configures a Server
type ServerOption func(*Server)

// WithMetrics exposes gatherer on GET /metrics
func WithMetrics(gatherer prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.gatherer = gatherer
	}
}

// WithShutdownTimeout bounds graceful shutdown in Run
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// Server serves the unstable endpoint
type Server struct {
	addr            string
	logger          *zap.Logger
	gatherer        prometheus.Gatherer
	shutdownTimeout time.Duration
	engine          *gin.Engine
}

// NewServer builds the gin engine and routes
func NewServer(addr string, logger *zap.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		addr:            addr,
		logger:          logger,
		shutdownTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))

	// Healthcheck
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "online")
	})
	router.GET(UnstablePath+"/:status", s.unstableHandler)

	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	s.engine = router
	return s
}

// Handler returns the routed http.Handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on the configured address until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	s.logger.Info("remote endpoint listening", zap.String("addr", s.addr))
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", s.addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	shutdownErr := srv.Shutdown(shutdownCtx)

	// ListenAndServe returns as soon as Shutdown closes the listeners
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve %s: %w", s.addr, err)
	}
	if shutdownErr != nil {
		return fmt.Errorf("shutdown %s: %w", s.addr, shutdownErr)
	}
	s.logger.Info("remote endpoint stopped")
	return nil
}

// unstableHandler fails with the requested status for 500 and 401 and echoes
// any other status back with 200
func (s *Server) unstableHandler(c *gin.Context) {
	status, err := strconv.Atoi(c.Param("status"))
	if err != nil {
		c.String(http.StatusBadRequest, "status must be an integer")
		return
	}

	switch status {
	case http.StatusInternalServerError, http.StatusUnauthorized:
		s.logger.Debug("unstable endpoint failing", zap.Int("status", status))
		c.String(status, http.StatusText(status))
	default:
		c.String(http.StatusOK, strconv.Itoa(status))
	}
}
