// Package api serves the read-only reading list, the manual command
// publisher and the websocket live feed.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/eddielth/machine-bridge/logger"
	"github.com/eddielth/machine-bridge/sink"
	"github.com/eddielth/machine-bridge/telemetry"
)

// Readings lists everything persisted so far.
type Readings interface {
	List(ctx context.Context) ([]telemetry.Reading, error)
}

// Deps are the collaborators the handlers need. Readings, Publisher and Hub
// may be nil, which disables the matching routes.
type Deps struct {
	Readings     Readings
	Publisher    sink.Publisher
	PublishTopic string
	Hub          *Hub
	// Status returns a JSON-encodable snapshot for GET /api/status.
	Status func() interface{}
}

type Handler struct {
	deps     Deps
	upgrader websocket.Upgrader
}

func NewHandler(deps Deps) *Handler {
	return &Handler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func RequestLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request: %s %s, status: %d, latency: %v",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware())

	api := r.Group("/api")
	{
		if h.deps.Readings != nil {
			api.GET("/sensor", h.ListReadings)
		}
		if h.deps.Publisher != nil {
			api.POST("/sensor/comando/:comando", h.PublishCommand)
		}
		if h.deps.Status != nil {
			api.GET("/status", h.GetStatus)
		}
	}
	if h.deps.Hub != nil {
		r.GET("/ws", h.LiveFeed)
	}
	return r
}

// Server wraps the HTTP listener with a Start/Shutdown lifecycle.
type Server struct {
	http *http.Server
}

func NewServer(addr string, h *Handler) *Server {
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(h),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start listens in the background. A listener failure is logged, not fatal:
// ingestion keeps running without the API.
func (s *Server) Start() {
	go func() {
		logger.Info("HTTP API listening on %s", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP API stopped: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
