// Package admin exposes a small read-only HTTP surface for an
// operator watching one running replica: liveness, a point-in-time
// status snapshot, and the Prometheus scrape endpoint. It carries no
// business logic of its own, only what a replica process already
// tracks, and answers with a bearer token guarding /status rather than
// a user/session model since a replica has no notion of end users.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ruvnet/alienator/internal/middleware"
	"github.com/ruvnet/alienator/pkg/metrics"
)

// StatusSource is whatever can report a point-in-time snapshot of its
// protocol state, JSON-marshalable; bft.Replica implements it via
// bft.Status so this package never has to import the engine.
type StatusSource interface {
	Status() interface{}
}

// Opts configures the admin HTTP server.
type Opts struct {
	Bind    string
	Metrics *metrics.Metrics
	Source  StatusSource
	// AdminToken, when set, is the single bearer token required on
	// /status; empty disables auth (local/dev use only).
	AdminToken string
	Log        *zap.Logger
}

// Server is the admin HTTP surface.
type Server struct {
	opts   Opts
	engine *gin.Engine
}

// New builds the admin server's routes but does not start listening.
func New(o Opts) *Server {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery())
	e.Use(requestID())

	e.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))

	status := e.Group("/status")
	if o.AdminToken != "" {
		status.Use(middleware.BearerAuth(o.AdminToken))
	}
	status.GET("", func(c *gin.Context) {
		if o.Source == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "status source not wired"})
			return
		}
		c.JSON(http.StatusOK, o.Source.Status())
	})

	return &Server{opts: o, engine: e}
}

// Run blocks serving HTTP until the listener fails.
func (s *Server) Run() error {
	srv := &http.Server{
		Addr:         s.opts.Bind,
		Handler:      s.engine,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Set("request_id", id)
		c.Next()
	}
}
