package api

import (
	"net/http"

	"github.com/go-chi/jwtauth"

	"github.com/datafed/fednode/pkg/fednode"
)

// sessionFrom derives the request session from the verified JWT when one is
// present. Requests without a usable token run as the public subject.
func sessionFrom(r *http.Request) fednode.Session {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err == nil && claims != nil {
		if sub, ok := claims["sub"].(string); ok && sub != "" {
			return fednode.Session{Subject: sub}
		}
	}
	return fednode.Session{Subject: fednode.PublicSubject}
}
