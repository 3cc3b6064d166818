// Package api exposes the run-control HTTP surface: trigger a scrape,
// poll run status, list runs, cancel a run, health and metrics.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/motorscan/motorscan/internal/logger"
	"github.com/motorscan/motorscan/internal/metrics"
	"github.com/motorscan/motorscan/internal/registry"
)

// Controller is the run-control surface the handlers drive. Satisfied
// by pipeline.Pipeline.
type Controller interface {
	Start(maxPages int) (registry.RunSnapshot, error)
	Status(runID string) (registry.RunSnapshot, error)
	List() []registry.RunListItem
	Cancel(runID string) error
	Active() (registry.RunSnapshot, bool)
}

// Config holds HTTP surface configuration.
type Config struct {
	// Addr is the listen address, host:port.
	Addr string

	// Version is reported by the health endpoint.
	Version string

	// AllowOrigins restricts CORS for dashboards polling the status
	// endpoint. Empty allows any origin.
	AllowOrigins []string
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Addr:    ":8080",
		Version: "dev",
	}
}

// Server wires the gin engine, handlers, and middleware around a
// Controller.
type Server struct {
	config     Config
	controller Controller
	log        *logger.Logger
	collector  *metrics.Collector
	engine     *gin.Engine
	startedAt  time.Time
}

// New creates the HTTP surface. A nil logger logs to stderr; a nil
// collector serves a zeroed metrics snapshot.
func New(cfg Config, controller Controller, log *logger.Logger, collector *metrics.Collector) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if log == nil {
		log = logger.NewDefault()
	}
	if collector == nil {
		collector = metrics.New()
	}

	s := &Server{
		config:     cfg,
		controller: controller,
		log:        log.WithComponent("api"),
		collector:  collector,
		startedAt:  time.Now(),
	}
	s.engine = s.buildEngine()
	return s
}

func (s *Server) buildEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(requestLogger(s.log), recovery(s.log))

	corsCfg := cors.DefaultConfig()
	if len(s.config.AllowOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.config.AllowOrigins
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	engine.Use(cors.New(corsCfg))

	engine.GET("/healthz", s.health)

	api := engine.Group("/api/v1")
	{
		api.POST("/scrape", s.startScrape)
		api.GET("/scrape/status/:run_id", s.runStatus)
		api.GET("/scrape/runs", s.listRuns)
		api.POST("/scrape/cancel/:run_id", s.cancelRun)
		api.GET("/metrics", s.metricsSnapshot)
	}

	return engine
}

// Handler returns the engine as an http.Handler for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// HTTPServer returns an http.Server bound to the configured address.
// The caller owns its lifecycle.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
