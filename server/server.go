// Package server - HTTP API over the model registry.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nvr-ai/go-classify/classifier"
	"github.com/nvr-ai/go-classify/logging"
	"github.com/nvr-ai/go-classify/models"
)

// Publisher forwards classification results, typically to MQTT.
type Publisher interface {
	PublishResult(ctx context.Context, res *classifier.Result) error
	PublishRanked(ctx context.Context, ranked *classifier.Ranked) error
}

// Registry is the read side of *models.Registry used by the API.
type Registry interface {
	classifier.Resolver
	Models() []*models.LoadedModel
	State() models.State
}

// Option configures a Server.
type Option func(*Server)

// WithPublisher publishes every successful classification.
func WithPublisher(p Publisher) Option {
	return func(s *Server) { s.publisher = p }
}

// WithGatherer serves metrics from g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithBodyLimit caps request bodies, e.g. "8M".
func WithBodyLimit(limit string) Option {
	return func(s *Server) { s.bodyLimit = limit }
}

// Server serves classification over HTTP.
type Server struct {
	Echo      *echo.Echo
	registry  Registry
	service   *classifier.Service
	publisher Publisher
	gatherer  prometheus.Gatherer
	log       *slog.Logger
	bodyLimit string
}

// New builds the echo instance and registers every route.
func New(registry Registry, svc *classifier.Service, opts ...Option) *Server {
	s := &Server{
		Echo:      echo.New(),
		registry:  registry,
		service:   svc,
		gatherer:  prometheus.DefaultGatherer,
		bodyLimit: "8M",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.Module("server")
	}

	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	s.Echo.Use(middleware.BodyLimit(s.bodyLimit))

	s.Echo.GET("/healthz", s.health)
	s.Echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	v1 := s.Echo.Group("/v1")
	v1.GET("/models", s.listModels)
	v1.POST("/models/:id/classify", s.classify)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown; http.ErrServerClosed is reported as nil.
func (s *Server) Start(addr string) error {
	s.log.Info("listening", "addr", addr)
	if err := s.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}
