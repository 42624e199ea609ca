package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/datafed/fednode/pkg/fednode"
)

// maxUploadMemory is the multipart in-memory threshold; larger parts spill
// to temporary files.
const maxUploadMemory = 32 << 20

// IdentifierResponse carries the identifier an operation acted on.
type IdentifierResponse struct {
	Identifier string `json:"identifier"`
}

// ObjectHandler handles HTTP requests for stored objects
type ObjectHandler struct {
	service fednode.Service
}

// NewObjectHandler creates a new object handler
func NewObjectHandler(service fednode.Service) *ObjectHandler {
	return &ObjectHandler{service: service}
}

// Routes returns the routes for the object subtree
func (h *ObjectHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateObject)
	r.Get("/", h.ListObjects)
	r.Get("/*", h.GetObject)
	r.Head("/*", h.DescribeObject)
	r.Put("/*", h.UpdateObject)
	r.Delete("/*", h.DeleteObject)

	return r
}

// CreateObject creates a new object from a multipart request carrying the
// pid, the object bytes and the system metadata document.
func (h *ObjectHandler) CreateObject(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		slog.Error("Invalid multipart request", "error", err)
		renderError(w, r, &fednode.ProtocolError{Kind: fednode.ErrInvalidRequest, Detail: "malformed multipart request"})
		return
	}

	pid := r.FormValue("pid")
	object, _, err := r.FormFile("object")
	if err != nil {
		renderError(w, r, &fednode.ProtocolError{Kind: fednode.ErrInvalidRequest, Detail: "object part is required"})
		return
	}
	defer object.Close()

	meta, err := sysmetaPart(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	created, err := h.service.Create(r.Context(), sessionFrom(r), fednode.CreateRequest{
		PID:            pid,
		Object:         object,
		SystemMetadata: meta,
	})
	if err != nil {
		slog.Error("Failed to create object", "pid", pid, "error", err)
		renderError(w, r, err)
		return
	}

	slog.Info("Object created", "pid", created)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, IdentifierResponse{Identifier: created})
}

// GetObject streams the object bytes
func (h *ObjectHandler) GetObject(w http.ResponseWriter, r *http.Request) {
	pid, err := pidParam(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	body, err := h.service.Get(r.Context(), pid)
	if err != nil {
		slog.Warn("Failed to get object", "pid", pid, "error", err)
		renderError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, body); err != nil {
		slog.Error("Failed to stream object", "pid", pid, "error", err)
	}
}

// DescribeObject serves the object summary as response headers
func (h *ObjectHandler) DescribeObject(w http.ResponseWriter, r *http.Request) {
	pid, err := pidParam(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	desc, err := h.service.Describe(r.Context(), pid)
	if err != nil {
		slog.Warn("Failed to describe object", "pid", pid, "error", err)
		renderError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", desc.FormatID)
	w.Header().Set("Content-Length", strconv.FormatInt(desc.ContentLength, 10))
	w.Header().Set("Last-Modified", desc.LastModified.UTC().Format(http.TimeFormat))
	w.Header().Set("X-Checksum", desc.Checksum.Algorithm+","+desc.Checksum.Value)
	w.Header().Set("X-Serial-Version", strconv.FormatInt(desc.SerialVersion, 10))
	w.WriteHeader(http.StatusOK)
}

// UpdateObject replaces an object with a new version from a multipart
// request carrying the new pid, the object bytes and the system metadata.
func (h *ObjectHandler) UpdateObject(w http.ResponseWriter, r *http.Request) {
	pid, err := pidParam(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		slog.Error("Invalid multipart request", "pid", pid, "error", err)
		renderError(w, r, &fednode.ProtocolError{Kind: fednode.ErrInvalidRequest, Detail: "malformed multipart request"})
		return
	}

	newPID := r.FormValue("newPid")
	object, _, err := r.FormFile("object")
	if err != nil {
		renderError(w, r, &fednode.ProtocolError{Kind: fednode.ErrInvalidRequest, Detail: "object part is required"})
		return
	}
	defer object.Close()

	meta, err := sysmetaPart(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	created, err := h.service.Update(r.Context(), sessionFrom(r), fednode.UpdateRequest{
		PID:            pid,
		NewPID:         newPID,
		Object:         object,
		SystemMetadata: meta,
	})
	if err != nil {
		slog.Error("Failed to update object", "pid", pid, "error", err)
		renderError(w, r, err)
		return
	}

	slog.Info("Object updated", "pid", pid, "new_pid", created)
	render.JSON(w, r, IdentifierResponse{Identifier: created})
}

// DeleteObject removes the object
func (h *ObjectHandler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	pid, err := pidParam(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	deleted, err := h.service.Delete(r.Context(), sessionFrom(r), pid)
	if err != nil {
		slog.Error("Failed to delete object", "pid", pid, "error", err)
		renderError(w, r, err)
		return
	}

	slog.Info("Object deleted", "pid", deleted)
	render.JSON(w, r, IdentifierResponse{Identifier: deleted})
}

// GetChecksum serves the object checksum
func (h *ObjectHandler) GetChecksum(w http.ResponseWriter, r *http.Request) {
	pid, err := pidParam(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	checksum, err := h.service.GetChecksum(r.Context(), pid, r.URL.Query().Get("checksumAlgorithm"))
	if err != nil {
		slog.Warn("Failed to get checksum", "pid", pid, "error", err)
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, checksum)
}

// ListObjects serves a listing page
// Query parameters:
//   - fromDate, toDate: RFC 3339 window (from inclusive, to exclusive)
//   - formatId: filter on format id
//   - start, count: paging
func (h *ObjectHandler) ListObjects(w http.ResponseWriter, r *http.Request) {
	req, err := listRequest(r)
	if err != nil {
		renderError(w, r, err)
		return
	}

	list, err := h.service.ListObjects(r.Context(), req)
	if err != nil {
		slog.Error("Failed to list objects", "error", err)
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, list)
}

func listRequest(r *http.Request) (fednode.ListObjectsRequest, error) {
	var req fednode.ListObjectsRequest
	q := r.URL.Query()

	if v := q.Get("fromDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return req, &fednode.ProtocolError{Kind: fednode.ErrInvalidRequest, Detail: "fromDate must be RFC 3339"}
		}
		req.From = &t
	}
	if v := q.Get("toDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return req, &fednode.ProtocolError{Kind: fednode.ErrInvalidRequest, Detail: "toDate must be RFC 3339"}
		}
		req.To = &t
	}
	if v := q.Get("formatId"); v != "" {
		req.FormatID = &v
	}
	if v := q.Get("start"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return req, &fednode.ProtocolError{Kind: fednode.ErrInvalidRequest, Detail: "start must be a non-negative integer"}
		}
		req.Start = &n
	}
	if v := q.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, &fednode.ProtocolError{Kind: fednode.ErrInvalidRequest, Detail: "count must be an integer"}
		}
		req.Count = &n
	}

	return req, nil
}

// pidParam extracts the identifier from the wildcard path remainder.
// Identifiers containing '/' arrive URL-escaped.
func pidParam(r *http.Request) (string, error) {
	pid, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || pid == "" {
		return "", &fednode.ProtocolError{Kind: fednode.ErrInvalidRequest, Detail: "missing or malformed identifier"}
	}
	return pid, nil
}

// sysmetaPart decodes the system metadata document part of a multipart
// request.
func sysmetaPart(r *http.Request) (fednode.SystemMetadata, error) {
	part, _, err := r.FormFile("sysmeta")
	if err != nil {
		return fednode.SystemMetadata{}, &fednode.ProtocolError{Kind: fednode.ErrInvalidRequest, Detail: "sysmeta part is required"}
	}
	defer part.Close()

	var meta fednode.SystemMetadata
	if err := json.NewDecoder(part).Decode(&meta); err != nil {
		return fednode.SystemMetadata{}, &fednode.ProtocolError{Kind: fednode.ErrInvalidSystemMetadata, Detail: "unparsable system metadata document"}
	}
	return meta, nil
}
