// Package helloapp serves plain text greetings to authenticated callers.
package helloapp

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/b4fun/oidcapps/oidcauth"
)

// App greets the caller.
type App struct {
	logger    *zap.Logger
	loginPath string
}

// New creates the App. Unauthenticated browsers are redirected to
// loginPath when it is not empty; everything else gets 401.
func New(logger *zap.Logger, loginPath string) *App {
	return &App{
		logger:    logger,
		loginPath: loginPath,
	}
}

// Mount registers the routes on r. r must already run oidcauth.InterceptHTTP.
func (a *App) Mount(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(oidcauth.RequireAuthenticated(oidcauth.RequireParams{
			LoginPath: a.loginPath,
			Logger:    a.logger,
		}))

		r.Get("/", a.handleHome)
		r.Get("/hello", a.handleHello)
	})
}

// handleHello greets any authenticated principal by name.
func (a *App) handleHello(w http.ResponseWriter, r *http.Request) {
	principal := oidcauth.PrincipalFromHTTPRequest(r)
	writeGreeting(w, principal.Name())
}

// handleHome greets an OIDC principal by full name.
func (a *App) handleHome(w http.ResponseWriter, r *http.Request) {
	fullName, err := oidcauth.FullName(oidcauth.PrincipalFromHTTPRequest(r))
	if err != nil {
		a.logger.Error("resolve full name",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeGreeting(w, fullName)
}

func writeGreeting(w http.ResponseWriter, name string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "Hello, %s!", name)
}
