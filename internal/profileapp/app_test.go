package profileapp

import (
	"html/template"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/b4fun/oidcapps/internal/config"
	"github.com/b4fun/oidcapps/internal/server"
	"github.com/b4fun/oidcapps/oidcauth"
	"github.com/b4fun/oidcapps/oidcauth/testoidcauth"
)

func newTestHandler(t *testing.T, principal oidcauth.Principal, opts Options) http.Handler {
	t.Helper()

	app, err := New(zap.NewNop(), opts)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(testoidcauth.WithPrincipal(principal))
	app.Mount(r)

	return r
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHome(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		h := newTestHandler(t, testoidcauth.UnauthenticatedPrincipal(nil), Options{LoginPath: "/login"})

		w := get(h, "/")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), "Hello, anonymous!")
		assert.Contains(t, w.Body.String(), `href="/login"`)
		assert.NotContains(t, w.Body.String(), "<table>")
	})

	t.Run("authenticated", func(t *testing.T) {
		h := newTestHandler(t, testoidcauth.AuthenticatedClaimsPrincipal(oidcauth.MapClaims{
			"sub":   "u1",
			"email": "u1@example.com",
		}), Options{LogoutPath: "/logout"})

		w := get(h, "/")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Hello, u1!")
		assert.Contains(t, w.Body.String(), `href="/logout"`)
		assert.NotContains(t, w.Body.String(), "u1@example.com")
	})

	t.Run("escapes principal name", func(t *testing.T) {
		h := newTestHandler(t, testoidcauth.AuthenticatedPrincipal("<script>"), Options{})

		w := get(h, "/")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), "<script>")
		assert.Contains(t, w.Body.String(), "&lt;script&gt;")
	})
}

func TestProfile(t *testing.T) {
	t.Run("unauthenticated", func(t *testing.T) {
		h := newTestHandler(t, testoidcauth.UnauthenticatedPrincipal(nil), Options{})

		w := get(h, "/profile")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unauthenticated browser still gets 401", func(t *testing.T) {
		h := newTestHandler(t, testoidcauth.UnauthenticatedPrincipal(nil), Options{LoginPath: "/login"})

		req := httptest.NewRequest(http.MethodGet, "/profile", nil)
		req.Header.Set("Accept", "text/html")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("lists claims", func(t *testing.T) {
		h := newTestHandler(t, testoidcauth.AuthenticatedClaimsPrincipal(oidcauth.MapClaims{
			"sub":    "u1",
			"email":  "u1@example.com",
			"groups": []interface{}{"admin", "dev"},
		}), Options{})

		w := get(h, "/profile")
		require.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, "u1")
		assert.Contains(t, body, "u1@example.com")
		assert.Contains(t, body, "[&#34;admin&#34;,&#34;dev&#34;]")
	})

	t.Run("non-oidc principal", func(t *testing.T) {
		h := newTestHandler(t, testoidcauth.AuthenticatedPrincipal("alice"), Options{})

		w := get(h, "/profile")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "alice")
	})

	t.Run("template failure", func(t *testing.T) {
		broken := template.Must(template.New("profile.html").Parse(`partial {{.Missing.Field}}`))
		h := newTestHandler(t, testoidcauth.AuthenticatedClaimsPrincipal(oidcauth.MapClaims{
			"sub": "u1",
		}), Options{Templates: broken})

		w := get(h, "/profile")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "partial")
	})
}

func TestFormatClaimValue(t *testing.T) {
	assert.Equal(t, "u1", formatClaimValue("u1"))
	assert.Equal(t, "", formatClaimValue(nil))
	assert.Equal(t, "true", formatClaimValue(true))
	assert.Equal(t, "1700000000", formatClaimValue(1.7e9))
	assert.Equal(t, `{"a":1}`, formatClaimValue(map[string]interface{}{"a": 1}))
}

func newServer(t *testing.T, overrides map[string]any) (*server.Server, *config.AppConfig) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0644))
	cfg, err := config.Load(path, overrides)
	require.NoError(t, err)

	s, err := server.New(cfg, zap.NewNop())
	require.NoError(t, err)

	app, err := New(zap.NewNop(), Options{LoginPath: s.LoginPath()})
	require.NoError(t, err)
	app.Mount(s.Router())

	return s, cfg
}

func TestServer_testProfile(t *testing.T) {
	s, _ := newServer(t, config.TestProfile())

	w := get(s.Handler(), "/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Hello, anonymous!")

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/profile", nil)
		req.Header.Set("Authorization", "Bearer placeholder")
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	}
}

func TestServer_bearerToken(t *testing.T) {
	idP := testoidcauth.NewIDProvider(t, "web")
	s, _ := newServer(t, map[string]any{
		"oidc.issuer_url": idP.IssuerURL(),
		"oidc.client_id":  "web",
		"oidc.ca_file":    idP.CAFile(t),
	})

	token := idP.IDToken(func(c jwt.MapClaims) {
		c["sub"] = "u1"
		c["email"] = "u1@example.com"
	})

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "u1")
	assert.Contains(t, w.Body.String(), "u1@example.com")

	w = get(s.Handler(), "/profile")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
