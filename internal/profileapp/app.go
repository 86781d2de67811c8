// Package profileapp serves the HTML pages: an anonymous-friendly home page
// and a profile page listing the caller's OIDC claims.
package profileapp

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/b4fun/oidcapps/oidcauth"
)

//go:embed templates/*.html
var templateFS embed.FS

// Options configures the App.
type Options struct {
	// LoginPath and LogoutPath are linked from the pages when set.
	LoginPath  string
	LogoutPath string

	// Templates overrides the embedded templates. It must define
	// "home.html" and "profile.html".
	Templates *template.Template
}

// App renders the home and profile pages.
type App struct {
	logger    *zap.Logger
	opts      Options
	templates *template.Template
}

// New creates the App.
func New(logger *zap.Logger, opts Options) (*App, error) {
	tmpl := opts.Templates
	if tmpl == nil {
		var err error
		tmpl, err = template.ParseFS(templateFS, "templates/*.html")
		if err != nil {
			return nil, fmt.Errorf("parse templates: %w", err)
		}
	}

	return &App{
		logger:    logger,
		opts:      opts,
		templates: tmpl,
	}, nil
}

// Mount registers the routes on r. r must already run oidcauth.InterceptHTTP.
func (a *App) Mount(r chi.Router) {
	r.Get("/", a.handleHome)
	r.With(oidcauth.RequireAuthenticated(oidcauth.RequireParams{
		Logger: a.logger,
	})).Get("/profile", a.handleProfile)
}

type pageView struct {
	Title      string
	LoginPath  string
	LogoutPath string
}

type homeView struct {
	pageView

	Authenticated bool
	UserName      string
}

type claimView struct {
	Name  string
	Value string
}

type profileView struct {
	pageView

	UserName string
	Claims   []claimView
}

func (a *App) page(title string) pageView {
	return pageView{
		Title:      title,
		LoginPath:  a.opts.LoginPath,
		LogoutPath: a.opts.LogoutPath,
	}
}

func (a *App) handleHome(w http.ResponseWriter, r *http.Request) {
	view := homeView{pageView: a.page("Home")}

	principal := oidcauth.PrincipalFromHTTPRequest(r)
	if oidcauth.IsAuthenticated(principal) {
		view.Authenticated = true
		view.UserName = principal.Name()
	}

	a.render(w, r, "home.html", view)
}

func (a *App) handleProfile(w http.ResponseWriter, r *http.Request) {
	principal := oidcauth.PrincipalFromHTTPRequest(r)

	claims, err := oidcauth.ClaimsOf(principal)
	if err != nil {
		a.serverError(w, r, err)
		return
	}

	view := profileView{
		pageView: a.page("Profile"),
		UserName: principal.Name(),
	}
	for _, name := range oidcauth.SortedClaimNames(claims) {
		view.Claims = append(view.Claims, claimView{
			Name:  name,
			Value: formatClaimValue(claims[name]),
		})
	}

	a.render(w, r, "profile.html", view)
}

// render executes into a buffer so a failing template never produces a
// partial 200 response.
func (a *App) render(w http.ResponseWriter, r *http.Request, name string, data interface{}) {
	var buf bytes.Buffer
	if err := a.templates.ExecuteTemplate(&buf, name, data); err != nil {
		a.serverError(w, r, fmt.Errorf("render %s: %w", name, err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (a *App) serverError(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.Error("request failed",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func formatClaimValue(v interface{}) string {
	switch vv := v.(type) {
	case string:
		return vv
	case nil:
		return ""
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
