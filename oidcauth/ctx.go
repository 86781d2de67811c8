package oidcauth

import "context"

type ctxKeyPrincipalT int

var ctxKeyPrincipal ctxKeyPrincipalT

// ContextWithPrincipal returns a copy of ctx carrying p as the security
// context of the request.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

// PrincipalFromContext retrieves the Principal from ctx.
// It returns unauthenticated principal if the context has not set.
func PrincipalFromContext(ctx context.Context) Principal {
	v, ok := ctx.Value(ctxKeyPrincipal).(Principal)
	if ok && v != nil {
		return v
	}

	return unauthenticatedPrincipal()
}
