// Package api exposes the HTTP surface: the WebSocket endpoint, a stats
// snapshot, and a health probe.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskboard/internal/websocket"
)

// StatsProvider reports registry counters.
type StatsProvider interface {
	Stats() websocket.Stats
}

// Server is the gin-backed HTTP layer.
type Server struct {
	engine  *gin.Engine
	handler *websocket.Handler
	stats   StatsProvider
	logger  *zap.Logger
}

// NewServer builds the router around the WebSocket handler.
func NewServer(handler *websocket.Handler, stats StatsProvider, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:  gin.New(),
		handler: handler,
		stats:   stats,
		logger:  logger.With(zap.String("component", "api")),
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(s.requestLogger())

	s.engine.GET("/ws", s.serveWebSocket)
	s.engine.GET("/ws/stats", s.serveStats)
	s.engine.GET("/health", s.serveHealth)

	return s
}

// Handler returns the router for mounting on an http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// requestLogger logs completed HTTP requests. The WebSocket endpoint is
// skipped; its lifecycle is logged by the connection layer and a single
// "request" line spanning a connection's lifetime is noise.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/ws" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func (s *Server) serveWebSocket(c *gin.Context) {
	s.handler.HandleWebSocket(c.Writer, c.Request)
}

func (s *Server) serveStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.stats.Stats())
}

func (s *Server) serveHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
