package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/datafed/fednode/pkg/fednode"
)

// CapacityResponse reports the storage headroom of the node.
type CapacityResponse struct {
	RemainingBytes int64 `json:"remaining_bytes"`
}

// NodeHandler handles HTTP requests for system metadata and node-level
// operations
type NodeHandler struct {
	service fednode.Service
}

// NewNodeHandler creates a new node handler
func NewNodeHandler(service fednode.Service) *NodeHandler {
	return &NodeHandler{service: service}
}

// GetSystemMetadata serves the system metadata document
func (h *NodeHandler) GetSystemMetadata(w http.ResponseWriter, r *http.Request) {
	pid, err := pidParam(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	meta, err := h.service.GetSystemMetadata(r.Context(), pid)
	if err != nil {
		slog.Warn("Failed to get system metadata", "pid", pid, "error", err)
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, meta)
}

// UpdateSystemMetadata revises the system metadata document without
// touching the object content
func (h *NodeHandler) UpdateSystemMetadata(w http.ResponseWriter, r *http.Request) {
	pid, err := pidParam(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	var meta fednode.SystemMetadata
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		renderError(w, r, &fednode.ProtocolError{Kind: fednode.ErrInvalidSystemMetadata, Detail: "unparsable system metadata document"})
		return
	}

	if err := h.service.UpdateSystemMetadata(r.Context(), sessionFrom(r), fednode.UpdateMetadataRequest{
		PID:            pid,
		SystemMetadata: meta,
	}); err != nil {
		slog.Error("Failed to update system metadata", "pid", pid, "error", err)
		renderError(w, r, err)
		return
	}

	slog.Info("System metadata updated", "pid", pid)
	w.WriteHeader(http.StatusNoContent)
}

// ArchiveObject hides the object from listings while keeping it resolvable
func (h *NodeHandler) ArchiveObject(w http.ResponseWriter, r *http.Request) {
	pid, err := pidParam(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	if err := h.service.Archive(r.Context(), sessionFrom(r), pid); err != nil {
		slog.Error("Failed to archive object", "pid", pid, "error", err)
		renderError(w, r, err)
		return
	}

	slog.Info("Object archived", "pid", pid)
	render.JSON(w, r, IdentifierResponse{Identifier: pid})
}

// IsAuthorized reports whether the session subject may perform the action
func (h *NodeHandler) IsAuthorized(w http.ResponseWriter, r *http.Request) {
	pid, err := pidParam(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	action := fednode.Permission(r.URL.Query().Get("action"))
	switch action {
	case fednode.PermissionRead, fednode.PermissionWrite, fednode.PermissionChangePermission:
	default:
		renderError(w, r, &fednode.ProtocolError{Kind: fednode.ErrInvalidRequest, Detail: "action must be read, write or changePermission"})
		return
	}

	if err := h.service.IsAuthorized(r.Context(), sessionFrom(r), pid, action); err != nil {
		slog.Warn("Authorization denied", "pid", pid, "action", action, "error", err)
		renderError(w, r, err)
		return
	}

	render.PlainText(w, r, http.StatusText(http.StatusOK))
}

// GenerateIdentifier mints a fresh identifier in the requested scheme
func (h *NodeHandler) GenerateIdentifier(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		renderError(w, r, &fednode.ProtocolError{Kind: fednode.ErrInvalidRequest, Detail: "malformed form request"})
		return
	}

	scheme := fednode.IdentifierScheme(r.PostFormValue("scheme"))
	fragment := r.PostFormValue("fragment")

	pid, err := h.service.GenerateIdentifier(r.Context(), sessionFrom(r), scheme, fragment)
	if err != nil {
		slog.Error("Failed to generate identifier", "scheme", scheme, "error", err)
		renderError(w, r, err)
		return
	}

	slog.Info("Identifier generated", "scheme", scheme)
	render.JSON(w, r, IdentifierResponse{Identifier: pid})
}

// Capacity reports the remaining storage capacity
func (h *NodeHandler) Capacity(w http.ResponseWriter, r *http.Request) {
	remaining, err := h.service.CapacityRemaining(r.Context())
	if err != nil {
		slog.Error("Failed to compute remaining capacity", "error", err)
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, CapacityResponse{RemainingBytes: remaining})
}

// Healthcheck reports node liveness
func (h *NodeHandler) Healthcheck(w http.ResponseWriter, r *http.Request) {
	health := h.service.Health(r.Context())

	if health.Status != fednode.HealthStatusHealthy {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, health)
}
