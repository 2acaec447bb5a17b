package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/auth"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/globaltime"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/syncer"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/translation"
)

const (
	defaultAPIPrefix     = "/api/langsync/v1"
	defaultSessionTTL    = 7 * 24 * time.Hour
	defaultSessionCookie = "langsync_session"
)

type Options struct {
	Host               string
	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	SessionTTL         time.Duration
	SessionCookie      string
	SessionSecure      bool
	APIPrefix          string
	CORSAllowedOrigins []string
}

// withDefaults fills zero values and normalizes the API prefix to a
// leading slash with no trailing one.
func (o Options) withDefaults() Options {
	o.Host = strings.TrimSpace(o.Host)
	if o.Host == "" {
		o.Host = "0.0.0.0"
	}
	if o.Port <= 0 {
		o.Port = 8090
	}
	for _, d := range []struct {
		value    *time.Duration
		fallback time.Duration
	}{
		{&o.ReadTimeout, 10 * time.Second},
		{&o.WriteTimeout, 30 * time.Second},
		{&o.ShutdownTimeout, 10 * time.Second},
		{&o.SessionTTL, defaultSessionTTL},
	} {
		if *d.value <= 0 {
			*d.value = d.fallback
		}
	}
	o.SessionCookie = strings.TrimSpace(o.SessionCookie)
	if o.SessionCookie == "" {
		o.SessionCookie = defaultSessionCookie
	}
	o.APIPrefix = "/" + strings.Trim(strings.TrimSpace(o.APIPrefix), "/")
	if o.APIPrefix == "/" {
		o.APIPrefix = defaultAPIPrefix
	}
	o.CORSAllowedOrigins = append([]string(nil), o.CORSAllowedOrigins...)
	return o
}

// syncService is the part of syncer.Handler the routes depend on.
type syncService interface {
	SyncTaxonomyTerms(ctx context.Context, req syncer.TaxonomyRequest) (*syncer.Result, error)
	SyncPosts(ctx context.Context, req syncer.PostRequest) (*syncer.Result, error)
	Languages(ctx context.Context) ([]translation.Language, error)
	TaxonomyTerms(ctx context.Context, taxonomy, lang string) ([]translation.TermListing, error)
	Validator() *syncer.Validator
}

// pinger reports backing store health. Stores without one are always healthy.
type pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	sync      syncService
	authStore authStore
	nonces    *auth.NonceIssuer
	health    pinger
	logger    zerolog.Logger
	opts      Options
}

func NewServer(sync syncService, store authStore, nonces *auth.NonceIssuer, logger zerolog.Logger, opts Options) *Server {
	server := &Server{
		sync:      sync,
		authStore: store,
		nonces:    nonces,
		logger:    logger.With().Str("component", "http").Logger(),
		opts:      opts.withDefaults(),
	}
	if p, ok := store.(pinger); ok {
		server.health = p
	}
	return server
}

// Handler builds the Echo instance with middleware and routes attached.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	allowOrigins := s.opts.CORSAllowedOrigins
	if len(allowOrigins) == 0 {
		allowOrigins = []string{"*"}
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     allowOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", nonceHeader},
		AllowCredentials: len(s.opts.CORSAllowedOrigins) > 0,
		MaxAge:           3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group(s.opts.APIPrefix)
	api.GET("/health", s.handleHealth)

	api.POST("/auth/login", s.handleLogin)
	api.POST("/auth/logout", s.handleLogout)
	api.GET("/auth/nonce", s.handleNonce, s.requireAuth())
	api.GET("/me", s.handleMe, s.requireAuth())

	api.POST("/taxonomy", s.handleTaxonomySync,
		s.requireAuth(),
		s.requireCapability(auth.CapManageTerms),
		s.requireNonce(),
	)
	api.POST("/posts", s.handlePostSync,
		s.requireAuth(),
		s.requireCapability(auth.CapEditPosts),
		s.requireNonce(),
	)
	api.GET("/languages", s.handleLanguages,
		s.requireAuth(),
		s.requireCapability(auth.CapRead),
	)
	api.GET("/taxonomy/:taxonomy/terms", s.handleTaxonomyTerms,
		s.requireAuth(),
		s.requireCapability(auth.CapRead),
	)

	return e
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.sync == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.Handler()

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Str("api_prefix", s.opts.APIPrefix).Msg("langsync server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("langsync server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		s.logger.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("unhandled request error")
	}

	if status >= http.StatusInternalServerError {
		_ = internalError(c, "internal_error", "Internal server error")
		return
	}
	code := "rest_error"
	if status == http.StatusNotFound {
		code = "rest_no_route"
	}
	_ = fail(c, status, code, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	if s.health != nil {
		if err := s.health.Ping(c.Request().Context()); err != nil {
			s.logger.Error().Err(err).Msg("health check failed")
			return internalError(c, "health_error", "Store is unavailable")
		}
	}
	return success(c, map[string]any{
		"service": "langsync",
		"status":  "ok",
		"time":    globaltime.UTC(),
	})
}
