package oidcauth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/b4fun/oidcapps/oidcauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePrincipalLoader_hangingDiscovery(t *testing.T) {
	release := make(chan struct{})
	var discoveries sync.WaitGroup
	discoveries.Add(1)
	var once sync.Once

	issuer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(discoveries.Done)
		select {
		case <-release:
		case <-r.Context().Done():
		}
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(issuer.Close)
	t.Cleanup(func() { close(release) })

	loader, err := oidcauth.CreatePrincipalLoader(oidcauth.Params{
		IssuerURL: issuer.URL,
		ClientID:  defaultClientID,
	})
	require.NoError(t, err)

	// the first request starts discovery and waits on it
	firstCtx, cancelFirst := context.WithCancel(context.Background())
	t.Cleanup(cancelFirst)
	go loader(firstCtx, "token-a")
	discoveries.Wait()

	type result struct {
		principal oidcauth.Principal
		elapsed   time.Duration
	}
	done := make(chan result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		p := loader(ctx, "token-b")
		done <- result{principal: p, elapsed: time.Since(start)}
	}()

	select {
	case res := <-done:
		assert.ErrorIs(t, res.principal.AuthenticateErr(), context.DeadlineExceeded)
		assert.Less(t, res.elapsed, time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("request with 100ms deadline blocked behind discovery")
	}
}

func TestCreatePrincipalLoader_retriesFailedDiscovery(t *testing.T) {
	var (
		mu       sync.Mutex
		requests int
	)
	issuer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(issuer.Close)

	loader, err := oidcauth.CreatePrincipalLoader(oidcauth.Params{
		IssuerURL: issuer.URL,
		ClientID:  defaultClientID,
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		p := loader(context.Background(), "token")
		assert.Error(t, p.AuthenticateErr())
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, requests)
}
