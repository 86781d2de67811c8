// Package server holds the HTTP plumbing shared by both applications:
// the base chi router with authentication, the login routes, health checks
// and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/b4fun/oidcapps/internal/config"
	"github.com/b4fun/oidcapps/internal/logging"
	"github.com/b4fun/oidcapps/oidcauth"
)

const (
	LoginPath    = "/login"
	CallbackPath = "/callback"
	LogoutPath   = "/logout"
	HealthPath   = "/healthz"
)

// Server is the HTTP server of one application.
type Server struct {
	router    chi.Router
	cfg       config.ServerConfig
	logger    *zap.Logger
	loginPath string
}

// New builds a Server authenticating every request with the OIDC settings
// in cfg. The login routes are mounted when the session flow is configured.
func New(cfg *config.AppConfig, logger *zap.Logger) (*Server, error) {
	loader, err := oidcauth.CreatePrincipalLoader(cfg.OIDC.Params())
	if err != nil {
		return nil, fmt.Errorf("create principal loader: %w", err)
	}
	authn := oidcauth.InterceptHTTPWithLoader(oidcauth.HTTPParams{
		Params:            cfg.OIDC.Params(),
		SessionCookieName: cfg.OIDC.SessionCookie,
	}, loader)

	var session *oidcauth.SessionHandler
	if cfg.OIDC.SessionEnabled() {
		session, err = oidcauth.NewSessionHandler(oidcauth.SessionParams{
			Params:            cfg.OIDC.Params(),
			RedirectURL:       cfg.OIDC.RedirectURL,
			Scopes:            cfg.OIDC.Scopes,
			SessionCookieName: cfg.OIDC.SessionCookie,
			Logger:            logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create session handler: %w", err)
		}
	}

	if !cfg.OIDC.Enabled {
		logger.Warn("oidc authentication disabled, protected routes will answer 401")
	}

	return NewWithAuth(cfg.Server, logger, authn, session), nil
}

// NewWithAuth builds a Server around the given authentication middleware.
// session may be nil.
func NewWithAuth(
	cfg config.ServerConfig,
	logger *zap.Logger,
	authn oidcauth.HTTPMiddleware,
	session *oidcauth.SessionHandler,
) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(authn)

	r.Get(HealthPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	s := &Server{
		router: r,
		cfg:    cfg,
		logger: logger,
	}

	if session != nil {
		r.Get(LoginPath, session.Login)
		r.Get(CallbackPath, session.Callback)
		r.Get(LogoutPath, session.Logout)
		s.loginPath = LoginPath
	}

	return s
}

// Router returns the router applications mount their routes on.
func (s *Server) Router() chi.Router {
	return s.router
}

// LoginPath returns the login route, or "" when the session flow is off.
func (s *Server) LoginPath() string {
	return s.loginPath
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down", zap.Duration("timeout", timeout))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	return <-errCh
}
