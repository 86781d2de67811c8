package oidcauth_test

import (
	"fmt"
	"net/http"

	"github.com/b4fun/oidcapps/oidcauth"
)

func ExampleInterceptHTTP() {
	params := oidcauth.HTTPParams{
		Params: oidcauth.Params{
			IssuerURL:     "https://accounts.google.com",
			ClientID:      "test-client",
			UserNameClaim: "sub",
			RolesClaim:    "roles",
		},
	}

	mux := http.NewServeMux()
	mux.Handle("/hello", oidcauth.RequireAuthenticated(oidcauth.RequireParams{})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := oidcauth.PrincipalFromHTTPRequest(r)
			fmt.Fprintf(w, "Hello, %s!", principal.Name())
		}),
	))

	httpServer := &http.Server{
		Addr:    ":8080",
		Handler: oidcauth.InterceptHTTP(params)(mux),
	}
	go func() {
		_ = httpServer.ListenAndServe()
	}()
}

func ExampleClaimsOf() {
	p := oidcauth.NewClaimsPrincipal(oidcauth.Params{}, oidcauth.MapClaims{
		"sub":   "u1",
		"email": "u1@example.com",
	})

	claims, err := oidcauth.ClaimsOf(p)
	if err != nil {
		panic(err)
	}
	for _, name := range oidcauth.SortedClaimNames(claims) {
		fmt.Printf("%s=%v\n", name, claims[name])
	}
	// Output:
	// email=u1@example.com
	// sub=u1
}
