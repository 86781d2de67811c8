package oidcauth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	stateCookieName  = "oidc_state"
	nonceCookieName  = "oidc_nonce"
	flowCookieMaxAge = 600
)

// SessionParams specifies the settings for the browser login flow.
type SessionParams struct {
	Params

	// RedirectURL is the absolute URL of the callback endpoint registered
	// with the identity provider. Required.
	RedirectURL string

	// Scopes requested from the identity provider.
	// Defaults to `openid profile email`.
	Scopes []string

	// SessionCookieName must match HTTPParams.SessionCookieName.
	// Defaults to `oidc_session`.
	SessionCookieName string

	// PostLoginRedirect is where the callback sends the browser once the
	// session is established. Defaults to `/`.
	PostLoginRedirect string

	// PostLogoutRedirect defaults to `/`.
	PostLogoutRedirect string

	// Logger is optional.
	Logger *zap.Logger
}

func (p SessionParams) defaults() SessionParams {
	rv := p

	rv.Params = p.Params.defaults()
	if len(rv.Scopes) == 0 {
		rv.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	if rv.SessionCookieName == "" {
		rv.SessionCookieName = DefaultSessionCookieName
	}
	if rv.PostLoginRedirect == "" {
		rv.PostLoginRedirect = "/"
	}
	if rv.PostLogoutRedirect == "" {
		rv.PostLogoutRedirect = "/"
	}
	if rv.Logger == nil {
		rv.Logger = zap.NewNop()
	}

	return rv
}

// SessionHandler runs the OIDC authorization code flow and keeps the
// verified ID token in a session cookie that InterceptHTTP understands.
type SessionHandler struct {
	params SessionParams
	source *providerSource
	logger *zap.Logger
}

// NewSessionHandler creates the SessionHandler from the given params.
func NewSessionHandler(params SessionParams) (*SessionHandler, error) {
	params = params.defaults()

	rv := &SessionHandler{
		params: params,
		logger: params.Logger,
	}
	if params.Disabled {
		return rv, nil
	}

	if params.RedirectURL == "" {
		return nil, fmt.Errorf("redirect url is required")
	}

	source, err := newProviderSource(params.Params)
	if err != nil {
		return nil, err
	}
	rv.source = source

	return rv, nil
}

func (h *SessionHandler) oauth2Config(provider *oidc.Provider) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.params.ClientID,
		ClientSecret: h.params.ClientSecret,
		RedirectURL:  h.params.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       h.params.Scopes,
	}
}

func (h *SessionHandler) secureCookies() bool {
	return strings.HasPrefix(h.params.RedirectURL, "https")
}

func (h *SessionHandler) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *SessionHandler) clearCookie(w http.ResponseWriter, name string) {
	h.setCookie(w, name, "", -1)
}

func (h *SessionHandler) unavailable(w http.ResponseWriter) bool {
	if h.source != nil {
		return false
	}

	http.Error(w, ErrOIDCDisabled.Error(), http.StatusServiceUnavailable)
	return true
}

// Login redirects the browser to the identity provider.
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}

	provider, _, err := h.source.load(r.Context())
	if err != nil {
		h.logger.Error("discover oidc provider", zap.Error(err))
		http.Error(w, "identity provider unavailable", http.StatusBadGateway)
		return
	}

	state := uuid.NewString()
	nonce := uuid.NewString()
	h.setCookie(w, stateCookieName, state, flowCookieMaxAge)
	h.setCookie(w, nonceCookieName, nonce, flowCookieMaxAge)

	authURL := h.oauth2Config(provider).AuthCodeURL(state, oidc.Nonce(nonce))
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback exchanges the authorization code, verifies the ID token and
// stores it in the session cookie.
func (h *SessionHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if h.unavailable(w) {
		return
	}

	query := r.URL.Query()
	if errCode := query.Get("error"); errCode != "" {
		h.logger.Warn("identity provider returned error",
			zap.String("error", errCode),
			zap.String("description", query.Get("error_description")))
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		http.Error(w, "missing code or state", http.StatusBadRequest)
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value != state {
		http.Error(w, "invalid or expired state", http.StatusBadRequest)
		return
	}
	h.clearCookie(w, stateCookieName)

	provider, verifier, err := h.source.load(r.Context())
	if err != nil {
		h.logger.Error("discover oidc provider", zap.Error(err))
		http.Error(w, "identity provider unavailable", http.StatusBadGateway)
		return
	}

	ctx := h.source.clientContext(r.Context())
	token, err := h.oauth2Config(provider).Exchange(ctx, code)
	if err != nil {
		h.logger.Warn("exchange authorization code", zap.Error(err))
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		h.logger.Warn("token response has no id_token")
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		h.logger.Warn("verify id token", zap.Error(err))
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	nonceCookie, err := r.Cookie(nonceCookieName)
	if err != nil || nonceCookie.Value != idToken.Nonce {
		h.logger.Warn("id token nonce mismatch")
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}
	h.clearCookie(w, nonceCookieName)

	maxAge := int(time.Until(idToken.Expiry).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	h.setCookie(w, h.params.SessionCookieName, rawIDToken, maxAge)

	h.logger.Info("session established", zap.String("subject", idToken.Subject))
	http.Redirect(w, r, h.params.PostLoginRedirect, http.StatusFound)
}

// Logout clears the session cookie.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, h.params.SessionCookieName)
	http.Redirect(w, r, h.params.PostLogoutRedirect, http.StatusFound)
}
