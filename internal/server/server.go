package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spacesedan/sentiscope/internal/models"
)

const (
	DEFAULT_BODY_LIMIT = "10M"
	SHUTDOWN_TIMEOUT   = 10 * time.Second
)

type BatchAnalyzer interface {
	AnalyzeBatch(ctx context.Context, items []models.InputItem) ([]models.ItemResult, error)
}

// JobPublisher hands a job to the asynchronous pipeline.
type JobPublisher interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	return cv.validator.Struct(i)
}

type Server struct {
	echo          *echo.Echo
	analyzer      BatchAnalyzer
	jobs          JobPublisher
	healthy       *atomic.Bool
	maxBatchItems int
}

type Option func(*Server)

// WithJobPublisher enables POST /analyze/jobs.
func WithJobPublisher(p JobPublisher) Option {
	return func(s *Server) { s.jobs = p }
}

// WithHealth reports the given flag on GET /health.
func WithHealth(healthy *atomic.Bool) Option {
	return func(s *Server) { s.healthy = healthy }
}

func WithMaxBatchItems(n int) Option {
	return func(s *Server) { s.maxBatchItems = n }
}

func New(analyzer BatchAnalyzer, opts ...Option) *Server {
	s := &Server{
		echo:     echo.New(),
		analyzer: analyzer,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.healthy == nil {
		s.healthy = &atomic.Bool{}
		s.healthy.Store(true)
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return gonanoid.Must() },
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				slog.Error("[Server] Request failed", attrs...)
				return nil
			}
			slog.Info("[Server] Request", attrs...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(DEFAULT_BODY_LIMIT))

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.healthHandler)
	s.echo.POST("/analyze", s.analyzeHandler)
	if s.jobs != nil {
		s.echo.POST("/analyze/jobs", s.submitJobHandler)
	}
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("[Server] Starting server", slog.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
	defer cancel()
	slog.Info("[Server] Shutting down...")
	return s.echo.Shutdown(shutdownCtx)
}
