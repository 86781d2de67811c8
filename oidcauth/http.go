package oidcauth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// HTTPMiddleware is the middleware for HTTP handler.
type HTTPMiddleware func(http.Handler) http.Handler

// HTTPParams specifies the OIDC authentication settings for HTTP interceptor.
type HTTPParams struct {
	Params

	// HTTPHeaderName specifies the header name for retrieving the token.
	// Defaults to `Authorization`.
	HTTPHeaderName string

	// HTTPHeaderPrefix specifies the prefix for the header name.
	// Defaults to `Bearer`.
	HTTPHeaderValuePrefix string

	// SessionCookieName specifies the cookie holding the ID token issued by
	// SessionHandler. It is consulted when the header is absent.
	// Defaults to `oidc_session`.
	SessionCookieName string
}

// DefaultSessionCookieName is the cookie used for browser sessions.
const DefaultSessionCookieName = "oidc_session"

func (p HTTPParams) defaults() HTTPParams {
	rv := p

	rv.Params = p.Params.defaults()
	if rv.HTTPHeaderName == "" {
		rv.HTTPHeaderName = "Authorization"
	}
	if rv.HTTPHeaderValuePrefix == "" {
		rv.HTTPHeaderValuePrefix = "Bearer"
	}
	if rv.SessionCookieName == "" {
		rv.SessionCookieName = DefaultSessionCookieName
	}

	return rv
}

// InterceptHTTP creates a HTTP middle for authenticating OIDC JWT token
// from the request. It never rejects a request; handlers or
// RequireAuthenticated decide what to do with unauthenticated principals.
func InterceptHTTP(params HTTPParams) HTTPMiddleware {
	params = params.defaults()

	loader, err := CreatePrincipalLoader(params.Params)
	if err != nil {
		loaderErr := err
		loader = func(_ context.Context, _ string) Principal {
			return unauthenticatedPrincipalWithErr(loaderErr)
		}
	}

	return InterceptHTTPWithLoader(params, loader)
}

// InterceptHTTPWithLoader is like InterceptHTTP but uses the given loader
// to resolve tokens.
func InterceptHTTPWithLoader(params HTTPParams, loader PrincipalLoaderFunc) HTTPMiddleware {
	params = params.defaults()

	loadTokenFromRequest := func(req *http.Request) string {
		// other schemes (e.g. Basic from a proxy) fall through to the cookie
		prefix := params.HTTPHeaderValuePrefix + " "
		v := strings.TrimSpace(req.Header.Get(params.HTTPHeaderName))
		if strings.HasPrefix(v, prefix) {
			if token := strings.TrimSpace(strings.TrimPrefix(v, prefix)); token != "" {
				return token
			}
		}

		if c, err := req.Cookie(params.SessionCookieName); err == nil {
			return strings.TrimSpace(c.Value)
		}

		return ""
	}

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := loader(r.Context(), loadTokenFromRequest(r))
			r = r.WithContext(ContextWithPrincipal(r.Context(), principal))
			h.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromHTTPRequest retrieves the Principal from the request.
// It returns unauthenticated principal if the request has not set.
func PrincipalFromHTTPRequest(req *http.Request) Principal {
	return PrincipalFromContext(req.Context())
}

// RequireParams configures RequireAuthenticated.
type RequireParams struct {
	// LoginPath, when set, redirects unauthenticated browser requests
	// (those accepting text/html) to it instead of answering 401.
	LoginPath string

	// Logger receives a warning for every rejected request. Optional.
	Logger *zap.Logger
}

// RequireAuthenticated rejects requests whose principal is unauthenticated.
// It must run after InterceptHTTP.
func RequireAuthenticated(params RequireParams) HTTPMiddleware {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromHTTPRequest(r)
			err := principal.AuthenticateErr()
			if err == nil {
				h.ServeHTTP(w, r)
				return
			}

			logger.Warn("unauthenticated request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(err))

			if params.LoginPath != "" && acceptsHTML(r) {
				http.Redirect(w, r, params.LoginPath, http.StatusFound)
				return
			}

			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		})
	}
}

func acceptsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
