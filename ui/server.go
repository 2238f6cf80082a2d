// Package ui serves the exploration dashboard.
package ui

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"enigh/internal/api"
	"enigh/internal/logging"
	"enigh/internal/metrics"
	"enigh/internal/report"
	"enigh/internal/tablecache"
	"enigh/ui/middleware"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Server is the dashboard web server.
type Server struct {
	router   *gin.Engine
	reports  *report.Service
	sessions *tablecache.SessionStore
	metrics  *metrics.Metrics
	pages    map[string]*template.Template
	about    template.HTML
	logger   zerolog.Logger
}

// NewServer parses the embedded templates and registers every route.
func NewServer(reports *report.Service, sessions *tablecache.SessionStore, m *metrics.Metrics) (*Server, error) {
	pages, err := parseTemplates(webFiles)
	if err != nil {
		return nil, err
	}
	about, err := renderMarkdown(webFiles, "web/acerca.md")
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.New()
	}

	s := &Server{
		router:   gin.New(),
		reports:  reports,
		sessions: sessions,
		metrics:  m,
		pages:    pages,
		about:    about,
		logger:   logging.Component("ui"),
	}
	if err := s.setupRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) setupRoutes() error {
	r := s.router
	r.Use(gin.Recovery())
	r.Use(logging.GinMiddleware(s.logger))
	r.Use(s.metrics.GinMiddleware())

	static, err := fs.Sub(webFiles, "web/static")
	if err != nil {
		return err
	}
	r.StaticFS("/static", http.FS(static))
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	r.GET("/healthz", s.handleHealth)

	pages := r.Group("/", middleware.EnsureSession(s.sessions))
	{
		pages.GET("/", func(c *gin.Context) { c.Redirect(http.StatusFound, "/explorar") })
		pages.GET("/explorar", s.handleExplore)
		pages.GET("/preparados", s.handlePrepared)
		pages.GET("/pca", s.handlePCA)
		pages.GET("/redes", s.handleNetwork)
		pages.GET("/centralidad", s.handleCentrality)
		pages.GET("/maestro", s.handleMaster)
		pages.GET("/acerca", s.handleAbout)

		pages.GET("/descargas/explorar.csv", s.handleExploreDownload)
		pages.GET("/descargas/maestro.csv", s.handleMasterCSV)
		pages.GET("/descargas/maestro.xlsx", s.handleMasterXLSX)

		pages.POST("/recargar", s.handleReload)
	}

	// API clients carry no cookie; they read the shared tables directly.
	apiHandler := http.StripPrefix("/api/v1", api.NewHandler(s.reports, s.sessions.Shared()).Routes())
	r.Any("/api/v1/*path", gin.WrapH(apiHandler))
	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
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
		s.logger.Info().Str("addr", addr).Msg("dashboard listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info().Msg("shutting down dashboard")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}
