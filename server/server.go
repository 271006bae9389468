package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/cinesense/ai/metrics"
	"github.com/hrygo/cinesense/internal/profile"
	apiv1 "github.com/hrygo/cinesense/server/router/api/v1"
	"github.com/hrygo/cinesense/store"
)

const requestTimeout = 30 * time.Second

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
}

// NewServer wires the HTTP routes around an initialized store and recommender.
func NewServer(_ context.Context, profile *profile.Profile, store *store.Store, recommender apiv1.Recommender, exporter *metrics.PrometheusExporter) (*Server, error) {
	if recommender == nil {
		return nil, errors.New("recommender is required")
	}
	s := &Server{
		Store:   store,
		Profile: profile,
	}

	echoServer := echo.New()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.JSONSerializer = JSONSerializer{}
	echoServer.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	echoServer.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogMethod:    true,
		LogURI:       true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("request_id", v.RequestID),
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			level := slog.LevelInfo
			if v.Error != nil {
				level = slog.LevelWarn
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			slog.LogAttrs(c.Request().Context(), level, "http request", attrs...)
			return nil
		},
	}))
	echoServer.Use(middleware.Recover())
	echoServer.Use(middleware.ContextTimeout(requestTimeout))
	s.echoServer = echoServer

	var describer apiv1.IndexDescriber
	if store != nil {
		describer = store
	}
	apiV1Service := apiv1.NewAPIV1Service(profile, recommender, describer, exporter)
	apiV1Service.RegisterRoutes(echoServer)

	return s, nil
}

// Start binds the listener and serves in the background.
func (s *Server) Start(_ context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	s.echoServer.Listener = listener

	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	return nil
}

// Addr is the bound address, valid after Start.
func (s *Server) Addr() string {
	if s.echoServer.Listener == nil {
		return ""
	}
	return s.echoServer.Listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	slog.Info("server shutting down")

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			slog.Error("failed to close vector store", slog.String("error", err.Error()))
		}
	}

	slog.Info("server stopped properly")
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}
