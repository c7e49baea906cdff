// Package server assembles the echo instance and its routes.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chatrelay/chatrelay/internal/observability"
	"github.com/chatrelay/chatrelay/internal/profile"
	"github.com/chatrelay/chatrelay/server/auth"
	"github.com/chatrelay/chatrelay/server/engine"
	"github.com/chatrelay/chatrelay/server/handshake"
	"github.com/chatrelay/chatrelay/server/middleware"
	apiv1 "github.com/chatrelay/chatrelay/server/router/api/v1"
	"github.com/chatrelay/chatrelay/server/session"
	"github.com/chatrelay/chatrelay/server/webhook"
	"github.com/chatrelay/chatrelay/store"
	"github.com/chatrelay/chatrelay/store/cache"
)

// Server is the assembled chatrelay HTTP server.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	cache      *cache.KeyedStore
	processor  *webhook.Processor
}

// NewServer wires the full service graph: cache, session manager,
// handshake, engine, processor, middleware and routes.
func NewServer(ctx context.Context, p *profile.Profile, st *store.Store) (*Server, error) {
	echoServer := echo.New()
	echoServer.Debug = true
	echoServer.HideBanner = true
	echoServer.HidePort = true

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	keyed := cache.NewKeyedStore(cache.Config{DefaultTTL: p.SessionTTL})
	locker := cache.NewKeyedLocker()
	sessions := session.NewManager(keyed, p.SessionTTL, p.GlobalTTL)
	authenticator := auth.NewAuthenticator(st, p.Secret, 0)
	hs := handshake.NewService(p, st, keyed, sessions)
	verifier := webhook.NewVerifier(p)

	botEngine := engine.NewScriptedEngine(hs, sessions, engine.NewSender(p), metrics)
	processor := webhook.NewProcessor(p, st, locker, botEngine, metrics)
	if p.ProcessInBackground {
		processor.Start(ctx, 4)
	}

	resumer := middleware.NewSessionResumer(st, keyed, sessions, authenticator, verifier, metrics, apiv1.WebhookPath)
	rateLimiter := middleware.NewRateLimiter()

	echoServer.Use(echomw.Recover())
	echoServer.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowCredentials: false,
	}))
	echoServer.Use(rateLimiter.Middleware())
	echoServer.Use(resumer.Middleware())

	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})
	echoServer.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	apiService := apiv1.NewAPIV1Service(p, st, authenticator, hs, verifier, processor, metrics)
	apiService.RegisterRoutes(echoServer)

	return &Server{
		Profile:    p,
		Store:      st,
		echoServer: echoServer,
		cache:      keyed,
		processor:  processor,
	}, nil
}

// Start begins serving on the configured address.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "failed to start echo server")
	}
	return nil
}

// Shutdown drains in-flight requests and background workers, then
// closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		fmt.Printf("failed to shutdown server, error: %+v\n", err)
	}

	if s.Profile.ProcessInBackground {
		s.processor.Shutdown()
	}
	s.cache.Close()

	if err := s.Store.Close(); err != nil {
		fmt.Printf("failed to close database, error: %+v\n", err)
	}

	fmt.Printf("server stopped properly\n")
}
