package testoidcauth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
)

// keyIDFromPublicKey derives a key ID non-reversibly from a public key.
//
// The Key ID is field on a given on JWTs and JWKs that help relying parties
// pick the correct key for verification when the identity party advertises
// multiple keys.
func keyIDFromPublicKey(publicKey *rsa.PublicKey) (string, error) {
	publicKeyDERBytes, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("failed to serialize public key to DER format: %w", err)
	}

	hasher := crypto.SHA256.New()
	_, _ = hasher.Write(publicKeyDERBytes)
	publicKeyDERHash := hasher.Sum(nil)

	keyID := base64.RawURLEncoding.EncodeToString(publicKeyDERHash)

	return keyID, nil
}

func jwksFromPrivateKey(t testing.TB, privateKey *rsa.PrivateKey, keyID string) string {
	jwks := new(jose.JSONWebKeySet)
	jwks.Keys = append(jwks.Keys, jose.JSONWebKey{
		Algorithm: string(jose.RS256),
		Key:       &privateKey.PublicKey,
		KeyID:     keyID,
		Use:       "sig",
	})

	b, err := json.MarshalIndent(jwks, "", "  ")
	require.NoError(t, err)

	return string(b)
}

const openIDMetadataTemplate = `
{
	"issuer": "ISSUER_URL",
	"authorization_endpoint": "ISSUER_URLauthorize",
	"token_endpoint": "ISSUER_URLtoken",
	"jwks_uri": "ISSUER_URLopenid/v1/jwks",
	"response_types_supported": ["code", "id_token"],
	"subject_types_supported": ["public"],
	"id_token_signing_alg_values_supported": ["RS256"]
}
`

// IDProvider is an in-process OIDC identity provider serving discovery,
// JWKS, authorize and token endpoints over TLS.
type IDProvider struct {
	// ClientID is the audience of issued tokens.
	ClientID string

	// ClientSecret, when set, is enforced by the token endpoint.
	ClientSecret string

	// UserClaims are merged into ID tokens issued by the token endpoint.
	UserClaims jwt.MapClaims

	JWKS string

	t          testing.TB
	privateKey *rsa.PrivateKey
	keyID      string

	mu    sync.Mutex
	codes map[string]string // code -> nonce

	*httptest.Server
}

// NewIDProvider starts an IDProvider. It is closed when the test ends.
func NewIDProvider(t testing.TB, clientID string) *IDProvider {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keyID, err := keyIDFromPublicKey(&privateKey.PublicKey)
	require.NoError(t, err)

	rv := &IDProvider{
		ClientID: clientID,
		UserClaims: jwt.MapClaims{
			"sub": "test-subject",
		},
		JWKS:       jwksFromPrivateKey(t, privateKey, keyID),
		t:          t,
		privateKey: privateKey,
		keyID:      keyID,
		codes:      map[string]string{},
	}

	rv.Server = httptest.NewUnstartedServer(rv.mux())
	rv.StartTLS()
	t.Cleanup(rv.Close)

	return rv
}

func (idp *IDProvider) mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/openid/v1/jwks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(idp.JWKS))
	})
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		b := strings.ReplaceAll(openIDMetadataTemplate, "ISSUER_URL", idp.IssuerURL())
		_, _ = w.Write([]byte(b))
	})
	mux.HandleFunc("/authorize", idp.handleAuthorize)
	mux.HandleFunc("/token", idp.handleToken)

	return mux
}

// handleAuthorize approves every request and redirects straight back.
func (idp *IDProvider) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("client_id") != idp.ClientID {
		http.Error(w, "unknown client", http.StatusBadRequest)
		return
	}

	redirectURL, err := url.Parse(q.Get("redirect_uri"))
	if err != nil || redirectURL.String() == "" {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}

	code := uuid.NewString()
	idp.mu.Lock()
	idp.codes[code] = q.Get("nonce")
	idp.mu.Unlock()

	rq := redirectURL.Query()
	rq.Set("code", code)
	rq.Set("state", q.Get("state"))
	redirectURL.RawQuery = rq.Encode()

	http.Redirect(w, r, redirectURL.String(), http.StatusFound)
}

func (idp *IDProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	clientID, clientSecret, ok := r.BasicAuth()
	if ok {
		clientID, _ = url.QueryUnescape(clientID)
		clientSecret, _ = url.QueryUnescape(clientSecret)
	} else {
		clientID = r.PostForm.Get("client_id")
		clientSecret = r.PostForm.Get("client_secret")
	}
	if clientID != idp.ClientID || (idp.ClientSecret != "" && clientSecret != idp.ClientSecret) {
		writeTokenError(w, http.StatusUnauthorized, "invalid_client")
		return
	}

	code := r.PostForm.Get("code")
	idp.mu.Lock()
	nonce, exists := idp.codes[code]
	delete(idp.codes, code)
	idp.mu.Unlock()
	if !exists {
		writeTokenError(w, http.StatusBadRequest, "invalid_grant")
		return
	}

	claims := idp.DefaultClaims()
	if nonce != "" {
		claims["nonce"] = nonce
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": uuid.NewString(),
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     idp.JWT(claims),
	})
}

func writeTokenError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}

// IssuerURL returns the issuer identifier, which ends with a slash.
func (idp *IDProvider) IssuerURL() string {
	return idp.URL + "/"
}

// CAFile writes the server certificate to a temp file and returns its path.
func (idp *IDProvider) CAFile(t testing.TB) string {
	cert := idp.Certificate()
	require.NotNil(t, cert)

	path := filepath.Join(t.TempDir(), "ca.pem")
	b := &pem.Block{
		Type:  "CERTIFICATE",
		Bytes: cert.Raw,
	}
	err := os.WriteFile(path, pem.EncodeToMemory(b), 0644)
	require.NoError(t, err)

	return path
}

// DefaultClaims returns a valid claim set for ClientID merged with UserClaims.
func (idp *IDProvider) DefaultClaims() jwt.MapClaims {
	now := time.Now()
	rv := jwt.MapClaims{
		"iss": idp.IssuerURL(),
		"aud": idp.ClientID,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	for k, v := range idp.UserClaims {
		rv[k] = v
	}

	return rv
}

// JWT signs claims with the provider key.
func (idp *IDProvider) JWT(claims jwt.Claims) string {
	token := jwt.NewWithClaims(
		jwt.SigningMethodRS256,
		claims,
	)
	token.Header["kid"] = idp.keyID
	tokenSigned, err := token.SignedString(idp.privateKey)
	require.NoError(idp.t, err)

	return tokenSigned
}

// IDToken signs DefaultClaims after applying the mutations.
func (idp *IDProvider) IDToken(mutateFuncs ...func(jwt.MapClaims)) string {
	claims := idp.DefaultClaims()
	for _, m := range mutateFuncs {
		m(claims)
	}

	return idp.JWT(claims)
}
