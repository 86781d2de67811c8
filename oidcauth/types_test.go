package oidcauth_test

import (
	"testing"

	"github.com/b4fun/oidcapps/oidcauth"
	"github.com/b4fun/oidcapps/oidcauth/testoidcauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimsOf(t *testing.T) {
	t.Run("oidc principal", func(t *testing.T) {
		p := testoidcauth.AuthenticatedClaimsPrincipal(oidcauth.MapClaims{
			"sub":   "u1",
			"email": "u1@example.com",
		})

		claims, err := oidcauth.ClaimsOf(p)
		require.NoError(t, err)
		assert.Equal(t, "u1", claims["sub"])
		assert.Equal(t, "u1@example.com", claims["email"])
	})

	t.Run("non-oidc principal", func(t *testing.T) {
		_, err := oidcauth.ClaimsOf(testoidcauth.AuthenticatedPrincipal("alice"))
		assert.ErrorIs(t, err, oidcauth.ErrNotOIDCPrincipal)
	})

	t.Run("unauthenticated principal", func(t *testing.T) {
		_, err := oidcauth.ClaimsOf(testoidcauth.UnauthenticatedPrincipal(nil))
		assert.ErrorIs(t, err, oidcauth.ErrNotOIDCPrincipal)
	})
}

func TestFullName(t *testing.T) {
	testCases := []struct {
		name   string
		claims oidcauth.MapClaims
		want   string
	}{
		{
			name:   "name claim",
			claims: oidcauth.MapClaims{"sub": "u1", "name": "Alice Liddell"},
			want:   "Alice Liddell",
		},
		{
			name:   "given and family name",
			claims: oidcauth.MapClaims{"sub": "u1", "given_name": "Alice", "family_name": "Liddell"},
			want:   "Alice Liddell",
		},
		{
			name:   "given name only",
			claims: oidcauth.MapClaims{"sub": "u1", "given_name": "Alice"},
			want:   "Alice",
		},
		{
			name:   "falls back to principal name",
			claims: oidcauth.MapClaims{"sub": "u1"},
			want:   "u1",
		},
		{
			name:   "non-string name is ignored",
			claims: oidcauth.MapClaims{"sub": "u1", "name": 42},
			want:   "u1",
		},
	}

	for _, c := range testCases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			got, err := oidcauth.FullName(testoidcauth.AuthenticatedClaimsPrincipal(c.claims))
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}

	_, err := oidcauth.FullName(testoidcauth.AuthenticatedPrincipal("alice"))
	assert.ErrorIs(t, err, oidcauth.ErrNotOIDCPrincipal)
}

func TestSortedClaimNames(t *testing.T) {
	got := oidcauth.SortedClaimNames(oidcauth.MapClaims{
		"sub":   "u1",
		"email": "u1@example.com",
		"aud":   "client",
	})
	assert.Equal(t, []string{"aud", "email", "sub"}, got)
	assert.Empty(t, oidcauth.SortedClaimNames(nil))
}

func TestNewClaimsPrincipal(t *testing.T) {
	p := oidcauth.NewClaimsPrincipal(oidcauth.Params{RolesClaim: "groups"}, oidcauth.MapClaims{
		"sub":    "u1",
		"groups": []interface{}{"admin"},
	})
	require.NoError(t, p.AuthenticateErr())
	assert.Equal(t, "u1", p.Name())
	assert.True(t, p.HasRole("admin"))

	p = oidcauth.NewClaimsPrincipal(oidcauth.Params{}, oidcauth.MapClaims{"email": "x"})
	assert.ErrorIs(t, p.AuthenticateErr(), oidcauth.ErrMissingClaim)
	assert.False(t, oidcauth.IsAuthenticated(p))
}
