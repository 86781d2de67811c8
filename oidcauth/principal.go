package oidcauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

var (
	ErrUnauthenticated  = fmt.Errorf("unauthenticated")
	ErrMissingClaim     = fmt.Errorf("missing claim")
	ErrOIDCDisabled     = fmt.Errorf("oidc authentication disabled")
	ErrNotOIDCPrincipal = errors.New("principal does not carry OIDC claims")
)

type unauthenticatedPrincipalT struct {
	err error
}

var _ Principal = (*unauthenticatedPrincipalT)(nil)

func (cp *unauthenticatedPrincipalT) Name() string {
	return "unauthenticated"
}

func (cp *unauthenticatedPrincipalT) HasRole(role string) bool {
	return false
}

func (cp *unauthenticatedPrincipalT) AuthenticateErr() error {
	if cp.err != nil {
		return cp.err
	}
	return ErrUnauthenticated
}

func unauthenticatedPrincipalWithErr(err error) Principal {
	return &unauthenticatedPrincipalT{
		err: err,
	}
}

func unauthenticatedPrincipal() Principal {
	return unauthenticatedPrincipalWithErr(ErrUnauthenticated)
}

// IsAuthenticated reports whether p carries a verified identity.
func IsAuthenticated(p Principal) bool {
	return p != nil && p.AuthenticateErr() == nil
}

// PrincipalLoaderFunc loads a Principal from given context and token.
type PrincipalLoaderFunc func(ctx context.Context, token string) Principal

// CreatePrincipalLoader creates the PrincipalLoaderFunc from the given Params.
// The issuer is discovered on first use and cached afterwards.
func CreatePrincipalLoader(params Params) (PrincipalLoaderFunc, error) {
	params = params.defaults()

	if params.Disabled {
		return func(ctx context.Context, token string) Principal {
			return unauthenticatedPrincipalWithErr(ErrOIDCDisabled)
		}, nil
	}

	source, err := newProviderSource(params)
	if err != nil {
		return nil, err
	}

	loader := func(ctx context.Context, token string) Principal {
		if token == "" {
			return unauthenticatedPrincipal()
		}

		verifiedToken, err := source.verify(ctx, token)
		if err != nil {
			return unauthenticatedPrincipalWithErr(err)
		}

		return newClaimsPrincipalFromToken(params, verifiedToken)
	}

	return loader, nil
}

type claimsPrincipal struct {
	name            string
	roles           map[string]struct{}
	claims          []byte
	authenticateErr error
}

var _ ClaimsPrincipal = (*claimsPrincipal)(nil)

func (cp *claimsPrincipal) Name() string {
	return cp.name
}

func (cp *claimsPrincipal) HasRole(role string) bool {
	_, exists := cp.roles[role]
	return exists
}

func (cp *claimsPrincipal) Claims() MapClaims {
	rv := make(MapClaims)
	_ = cp.BindClaims(&rv)
	return rv
}

func (cp *claimsPrincipal) BindClaims(v interface{}) error {
	return json.Unmarshal(cp.claims, v)
}

func (cp *claimsPrincipal) AuthenticateErr() error {
	return cp.authenticateErr
}

func getFromMapClaims[T any](mc MapClaims, name string) T {
	v, exists := mc[name]
	if !exists {
		var empty T
		return empty
	}
	vv, ok := v.(T)
	if !ok {
		var empty T
		return empty
	}
	return vv
}

type claimsDecoder interface {
	Claims(v interface{}) error
}

func newClaimsPrincipalFromToken(
	params Params,
	token claimsDecoder,
) Principal {
	var claims MapClaims

	if err := token.Claims(&claims); err != nil {
		// failed to decode claims
		return unauthenticatedPrincipalWithErr(err)
	}

	return newClaimsPrincipal(params, claims)
}

func newClaimsPrincipal(params Params, claims MapClaims) Principal {
	claimsEncoded, err := json.Marshal(claims)
	if err != nil {
		// failed to encode back
		return unauthenticatedPrincipalWithErr(err)
	}

	name := getFromMapClaims[string](claims, params.UserNameClaim)
	if name == "" {
		return unauthenticatedPrincipalWithErr(
			fmt.Errorf("%w: %s", ErrMissingClaim, params.UserNameClaim),
		)
	}

	rv := &claimsPrincipal{
		name:   name,
		claims: claimsEncoded,
		roles:  map[string]struct{}{},
	}

	var roles []interface{}
	if params.RolesClaim != "" {
		roles = getFromMapClaims[[]interface{}](claims, params.RolesClaim)
	}

	for _, r := range roles {
		rv.roles[fmt.Sprint(r)] = struct{}{}
	}

	for requiredKey, requiredValue := range params.RequiredClaims {
		v, exists := claims[requiredKey]
		if !exists || v != requiredValue {
			return unauthenticatedPrincipalWithErr(
				fmt.Errorf("%w: %s=%s", ErrMissingClaim, requiredKey, requiredValue),
			)
		}
	}

	return rv
}

// NewClaimsPrincipal creates an authenticated ClaimsPrincipal from already
// verified claims. It applies the same user name, roles and required claims
// rules as tokens verified by CreatePrincipalLoader.
func NewClaimsPrincipal(params Params, claims MapClaims) Principal {
	return newClaimsPrincipal(params.defaults(), claims)
}

var _ claimsDecoder = (*oidc.IDToken)(nil)
