package oidcauth

import (
	"fmt"
	"sort"
	"strings"
)

// MapClaims represents a set of claims in the token.
type MapClaims map[string]interface{}

// Principal defines the identity attached to a request.
type Principal interface {
	// Name returns the unique identity name of the principal.
	Name() string

	// HasRole checks if the principal has specified role.
	HasRole(role string) bool

	// AuthenticateErr returns error if the principal is unauthenticated.
	AuthenticateErr() error
}

// ClaimsPrincipal is a Principal backed by a verified OIDC token.
type ClaimsPrincipal interface {
	Principal

	// Claims returns the claims from the token.
	Claims() MapClaims

	// BindClaims binds the token claims to given value receiver.
	BindClaims(v interface{}) error
}

// ClaimsOf returns the OIDC claims carried by p. It returns ErrNotOIDCPrincipal
// when p is not backed by an OIDC token.
func ClaimsOf(p Principal) (MapClaims, error) {
	cp, ok := p.(ClaimsPrincipal)
	if !ok || p.AuthenticateErr() != nil {
		return nil, fmt.Errorf("%w: %T", ErrNotOIDCPrincipal, p)
	}

	return cp.Claims(), nil
}

// FullName resolves the display name of an OIDC principal from the `name`
// claim, then `given_name` and `family_name`, then the principal name.
func FullName(p Principal) (string, error) {
	claims, err := ClaimsOf(p)
	if err != nil {
		return "", err
	}

	if name := claimString(claims, "name"); name != "" {
		return name, nil
	}

	parts := make([]string, 0, 2)
	for _, k := range []string{"given_name", "family_name"} {
		if v := claimString(claims, k); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " "), nil
	}

	return p.Name(), nil
}

// SortedClaimNames returns the claim names in lexical order.
func SortedClaimNames(claims MapClaims) []string {
	names := make([]string, 0, len(claims))
	for k := range claims {
		names = append(names, k)
	}
	sort.Strings(names)

	return names
}

func claimString(claims MapClaims, name string) string {
	return strings.TrimSpace(getFromMapClaims[string](claims, name))
}
