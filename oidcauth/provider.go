package oidcauth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// discoveryTimeout bounds a single discovery request. Callers stop waiting
// when their own context is done; the shared request keeps running.
const discoveryTimeout = 30 * time.Second

// providerSource discovers the issuer lazily and caches the result.
// A failed discovery is not cached. Concurrent callers share one in-flight
// discovery and the mutex is never held during network I/O.
type providerSource struct {
	params     Params
	httpClient *http.Client

	discovery singleflight.Group

	mu       sync.Mutex
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

func newProviderSource(params Params) (*providerSource, error) {
	rv := &providerSource{params: params}

	if params.CAFile != "" {
		httpClient, err := httpClientWithCA(params.CAFile)
		if err != nil {
			err = fmt.Errorf("create http client from CA %s: %w", params.CAFile, err)
			return nil, err
		}
		rv.httpClient = httpClient
	}

	return rv, nil
}

// clientContext attaches the CA-aware http client to ctx. Both go-oidc and
// oauth2 read it from the oauth2.HTTPClient key.
func (s *providerSource) clientContext(ctx context.Context) context.Context {
	if s.httpClient == nil {
		return ctx
	}

	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

func (s *providerSource) cached() (*oidc.Provider, *oidc.IDTokenVerifier) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.provider, s.verifier
}

func (s *providerSource) load(ctx context.Context) (*oidc.Provider, *oidc.IDTokenVerifier, error) {
	if provider, verifier := s.cached(); provider != nil {
		return provider, verifier, nil
	}

	ch := s.discovery.DoChan(s.params.IssuerURL, func() (interface{}, error) {
		if provider, _ := s.cached(); provider != nil {
			return provider, nil
		}

		discoveryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), discoveryTimeout)
		defer cancel()

		provider, err := oidc.NewProvider(s.clientContext(discoveryCtx), s.params.IssuerURL)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.provider = provider
		s.verifier = provider.Verifier(&oidc.Config{
			ClientID: s.params.ClientID,
		})
		s.mu.Unlock()

		return provider, nil
	})

	select {
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("discover %s: %w", s.params.IssuerURL, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, nil, res.Err
		}
	}

	provider, verifier := s.cached()
	return provider, verifier, nil
}

func (s *providerSource) verify(ctx context.Context, token string) (*oidc.IDToken, error) {
	_, verifier, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	return verifier.Verify(s.clientContext(ctx), token)
}

func httpClientWithCA(caPath string) (*http.Client, error) {
	caCert, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("no certificates found in %s", caPath)
	}

	client := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs: caCertPool,
			},
		},
	}
	return client, nil
}
