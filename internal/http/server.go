// Package http provides the goalguardd ops HTTP API: health, metrics,
// and read-only run inspection backed by the audit store.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/goalguard/internal/auditstore"
	"github.com/fyrsmithlabs/goalguard/internal/gates"
	"github.com/fyrsmithlabs/goalguard/internal/goalrun"
	"github.com/fyrsmithlabs/goalguard/internal/reflexion"
	"github.com/fyrsmithlabs/goalguard/internal/scorecard"
)

// RunReader is the read side of the audit store the API serves from.
type RunReader interface {
	LoadRun(ctx context.Context, id string) (*goalrun.GoalRun, error)
	ListRuns(ctx context.Context, state string) ([]auditstore.RunSummary, error)
	GateResults(ctx context.Context, runID string) ([]gates.Result, error)
	Reflexions(ctx context.Context, runID string) ([]reflexion.Record, error)
	LatestScorecard(ctx context.Context, runID string) (*scorecard.Scorecard, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides the ops HTTP endpoints.
type Server struct {
	echo   *echo.Echo
	reader RunReader
	logger *zap.Logger
	config *Config
}

// NewServer creates the ops server.
func NewServer(reader RunReader, logger *zap.Logger, cfg *Config) (*Server, error) {
	if reader == nil {
		return nil, fmt.Errorf("run reader cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9090,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:   e,
		reader: reader,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/runs", s.handleListRuns)
	v1.GET("/runs/:id", s.handleGetRun)
	v1.GET("/runs/:id/gates", s.handleGetGates)
	v1.GET("/runs/:id/reflexions", s.handleGetReflexions)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// RunResponse is the response body for GET /api/v1/runs/:id.
type RunResponse struct {
	Run       *goalrun.GoalRun     `json:"run"`
	Scorecard *scorecard.Scorecard `json:"scorecard,omitempty"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleListRuns(c echo.Context) error {
	runs, err := s.reader.ListRuns(c.Request().Context(), c.QueryParam("state"))
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list runs")
	}
	if runs == nil {
		runs = []auditstore.RunSummary{}
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) handleGetRun(c echo.Context) error {
	id := c.Param("id")
	run, err := s.reader.LoadRun(c.Request().Context(), id)
	if err != nil {
		s.logger.Error("load run failed", zap.String("run_id", id), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load run")
	}
	if run == nil {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}

	card, err := s.reader.LatestScorecard(c.Request().Context(), id)
	if err != nil {
		s.logger.Error("load scorecard failed", zap.String("run_id", id), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load scorecard")
	}
	return c.JSON(http.StatusOK, RunResponse{Run: run, Scorecard: card})
}

func (s *Server) handleGetGates(c echo.Context) error {
	id := c.Param("id")
	results, err := s.reader.GateResults(c.Request().Context(), id)
	if err != nil {
		s.logger.Error("load gate results failed", zap.String("run_id", id), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load gate results")
	}
	if results == nil {
		results = []gates.Result{}
	}
	return c.JSON(http.StatusOK, results)
}

func (s *Server) handleGetReflexions(c echo.Context) error {
	id := c.Param("id")
	records, err := s.reader.Reflexions(c.Request().Context(), id)
	if err != nil {
		s.logger.Error("load reflexion records failed", zap.String("run_id", id), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load reflexion records")
	}
	if records == nil {
		records = []reflexion.Record{}
	}
	return c.JSON(http.StatusOK, records)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
