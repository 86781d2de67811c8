package testoidcauth

import (
	"fmt"
	"net/http"

	"github.com/b4fun/oidcapps/oidcauth"
)

// Principal provides on-demand mock for oidcauth.Principal type. It does not
// carry claims, so it stands for a non-OIDC identity.
type Principal struct {
	NameFunc            func() string
	HasRoleFunc         func(role string) bool
	AuthenticateErrFunc func() error
}

var _ oidcauth.Principal = (*Principal)(nil)

func (p *Principal) Name() string {
	if p.NameFunc != nil {
		return p.NameFunc()
	}

	panic("not implemented")
}

func (p *Principal) HasRole(role string) bool {
	if p.HasRoleFunc != nil {
		return p.HasRoleFunc(role)
	}

	panic("not implemented")
}

func (p *Principal) AuthenticateErr() error {
	if p.AuthenticateErrFunc != nil {
		return p.AuthenticateErrFunc()
	}

	panic("not implemented")
}

// ClaimsPrincipal provides on-demand mock for oidcauth.ClaimsPrincipal type.
type ClaimsPrincipal struct {
	Principal

	ClaimsFunc     func() oidcauth.MapClaims
	BindClaimsFunc func(v interface{}) error
}

var _ oidcauth.ClaimsPrincipal = (*ClaimsPrincipal)(nil)

func (cp *ClaimsPrincipal) Claims() oidcauth.MapClaims {
	if cp.ClaimsFunc != nil {
		return cp.ClaimsFunc()
	}

	panic("not implemented")
}

func (cp *ClaimsPrincipal) BindClaims(v interface{}) error {
	if cp.BindClaimsFunc != nil {
		return cp.BindClaimsFunc(v)
	}

	panic("not implemented")
}

// AuthenticatedPrincipal creates an authenticated principal without claims.
func AuthenticatedPrincipal(name string) *Principal {
	return &Principal{
		NameFunc:            func() string { return name },
		HasRoleFunc:         func(role string) bool { return false },
		AuthenticateErrFunc: func() error { return nil },
	}
}

// AuthenticatedClaimsPrincipal creates an authenticated principal named by
// the `sub` claim.
func AuthenticatedClaimsPrincipal(claims oidcauth.MapClaims) *ClaimsPrincipal {
	return &ClaimsPrincipal{
		Principal: Principal{
			NameFunc: func() string {
				return fmt.Sprint(claims["sub"])
			},
			HasRoleFunc:         func(role string) bool { return false },
			AuthenticateErrFunc: func() error { return nil },
		},
		ClaimsFunc: func() oidcauth.MapClaims {
			rv := make(oidcauth.MapClaims, len(claims))
			for k, v := range claims {
				rv[k] = v
			}
			return rv
		},
		BindClaimsFunc: func(v interface{}) error {
			return fmt.Errorf("not supported")
		},
	}
}

// UnauthenticatedPrincipal creates an unauthenticated Principal.
func UnauthenticatedPrincipal(err error) *Principal {
	return &Principal{
		NameFunc: func() string {
			return "unauthorized"
		},

		HasRoleFunc: func(role string) bool {
			return false
		},

		AuthenticateErrFunc: func() error {
			if err != nil {
				return err
			}

			return oidcauth.ErrUnauthenticated
		},
	}
}

// WithPrincipal is a middleware placing p in every request's security
// context. It replaces oidcauth.InterceptHTTP in handler tests.
func WithPrincipal(p oidcauth.Principal) oidcauth.HTTPMiddleware {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r = r.WithContext(oidcauth.ContextWithPrincipal(r.Context(), p))
			h.ServeHTTP(w, r)
		})
	}
}
