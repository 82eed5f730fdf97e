package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aerodelay/flight-dashboard/internal/archive"
	"github.com/aerodelay/flight-dashboard/internal/config"
	"github.com/aerodelay/flight-dashboard/internal/table"
	"github.com/aerodelay/flight-dashboard/pkg/logger"
)

const shutdownGrace = 10 * time.Second

// TableSource is a cached table loader. memo.Loader satisfies it.
type TableSource interface {
	Get(ctx context.Context) (*table.Table, error)
	Reset()
	LoadedAt() (time.Time, bool)
}

// SnapshotLister reads archived live fetches.
type SnapshotLister interface {
	ListSnapshots(ctx context.Context, limit int) ([]archive.Snapshot, error)
}

// Deps are the data sources behind the two views. Archive may be nil.
type Deps struct {
	Weather TableSource
	Live    TableSource
	Archive SnapshotLister
}

// Server bundles router and dependencies for the dashboard.
type Server struct {
	cfg    config.Config
	deps   Deps
	engine *gin.Engine
	log    *logger.Logger
}

// New constructs a server with routes and middleware.
func New(cfg config.Config, deps Deps, log *logger.Logger) *Server {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.Named("http")

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware())
	engine.Use(requestLogMiddleware(log))
	engine.Use(corsMiddleware())

	tmpl, err := parseTemplates()
	if err != nil {
		// templates are embedded; a parse error is a build defect
		panic(err)
	}
	engine.SetHTMLTemplate(tmpl)

	server := &Server{cfg: cfg, deps: deps, engine: engine, log: log}
	server.registerRoutes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run binds the listen address, serves until ctx is done, then drains open
// requests. Bind failures are returned before any request is served.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr(), err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("serving", logger.String("addr", ln.Addr().String()))

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		s.log.Warn("shutdown did not drain", logger.Error(err))
		return err
	}
	s.log.Info("stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	s.engine.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/weather")
	})

	weather := s.engine.Group("/weather")
	{
		weather.GET("", s.handleWeatherPage)
		weather.GET("/export", s.handleWeatherExport)
		weather.GET("/charts/:name", s.handleWeatherChart)
	}

	live := s.engine.Group("/live")
	{
		live.GET("", s.handleLivePage)
		live.GET("/charts/:name", s.handleLiveChart)
		live.POST("/reload", s.handleLiveReload)
	}

	s.registerV1Routes()
}
