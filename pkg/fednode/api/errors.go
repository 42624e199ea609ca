package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/datafed/fednode/pkg/fednode"
)

// ErrorResponse is the error document returned for failed operations.
type ErrorResponse struct {
	Error      string `json:"error"`
	Detail     string `json:"detail,omitempty"`
	Identifier string `json:"identifier,omitempty"`
}

// statusFor maps protocol error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, fednode.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, fednode.ErrIdentifierNotUnique):
		return http.StatusConflict
	case errors.Is(err, fednode.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, fednode.ErrInvalidSystemMetadata):
		return http.StatusUnprocessableEntity
	case errors.Is(err, fednode.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, fednode.ErrNotImplemented):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// renderError writes the error document for err with the mapped status.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{Error: "service failure"}

	var perr *fednode.ProtocolError
	if errors.As(err, &perr) {
		resp.Error = perr.Kind.Error()
		resp.Detail = perr.Detail
		resp.Identifier = perr.Identifier
	} else if err != nil {
		resp.Detail = err.Error()
	}

	render.Status(r, statusFor(err))
	render.JSON(w, r, resp)
}
