// Package api serves the control and observability HTTP surface: session
// statistics, health classification, Prometheus metrics, and the external
// congestion/bitrate signals the transport engine accepts from outside.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zsiec/beam/monitor"
	"github.com/zsiec/beam/stream"
)

// Engine is the transport-engine surface the API exposes.
type Engine interface {
	Stats() stream.Stats
	SetTargetBitrate(kbps int)
	NotifyCongestion()
}

// Server is the control API HTTP server.
type Server struct {
	log     *slog.Logger
	engine  Engine
	monitor *monitor.Monitor
	http    *http.Server
}

// Config holds the parameters for creating a Server.
type Config struct {
	Addr    string
	Engine  Engine
	Monitor *monitor.Monitor
	// Gatherer serves GET /metrics; prometheus.DefaultGatherer when nil.
	Gatherer prometheus.Gatherer
	Log      *slog.Logger
}

// New creates the API server and its routes.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		log:     log.With("component", "api"),
		engine:  cfg.Engine,
		monitor: cfg.Monitor,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/api/stats", s.handleStats)
	router.GET("/api/health", s.handleHealth)
	router.POST("/api/bitrate", s.handleBitrate)
	router.POST("/api/congestion", s.handleCongestion)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the underlying HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", "addr", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Stats())
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.monitor == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "monitor not configured"})
		return
	}
	c.JSON(http.StatusOK, s.monitor.Snapshot())
}

type bitrateRequest struct {
	Kbps int `json:"kbps" binding:"required,gt=0"`
}

// handleBitrate sets the encoder bitrate hint. This is the explicit caller
// path for bitrate changes, including ramping back up after congestion.
func (s *Server) handleBitrate(c *gin.Context) {
	var req bitrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.engine.SetTargetBitrate(req.Kbps)
	c.JSON(http.StatusOK, gin.H{"kbps": req.Kbps})
}

// handleCongestion injects the external congestion signal, for transports
// or operators that observe congestion the engine cannot see itself.
func (s *Server) handleCongestion(c *gin.Context) {
	s.engine.NotifyCongestion()
	c.Status(http.StatusAccepted)
}
