package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"

	"github.com/datafed/fednode/pkg/fednode"
)

// Routes assembles the member-node API surface, meant to be mounted under a
// version prefix by the calling server. When tokenAuth is nil every request
// runs as the public subject.
func Routes(service fednode.Service, tokenAuth *jwtauth.JWTAuth) chi.Router {
	r := chi.NewRouter()

	// Verifier only parses; unauthenticated requests pass through and
	// resolve to the public subject.
	if tokenAuth != nil {
		r.Use(jwtauth.Verifier(tokenAuth))
	}

	objects := NewObjectHandler(service)
	node := NewNodeHandler(service)

	r.Mount("/object", objects.Routes())

	r.Get("/meta/*", node.GetSystemMetadata)
	r.Put("/meta/*", node.UpdateSystemMetadata)
	r.Get("/checksum/*", objects.GetChecksum)
	r.Put("/archive/*", node.ArchiveObject)
	r.Get("/isAuthorized/*", node.IsAuthorized)
	r.Post("/generate", node.GenerateIdentifier)
	r.Get("/monitor/capacity", node.Capacity)
	r.Get("/monitor/health", node.Healthcheck)

	return r
}
