package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datafed/fednode/pkg/fednode"
	"github.com/datafed/fednode/pkg/fednode/repo/memory"
)

// failingStatsRepository reports every stored package fine but cannot
// aggregate usage numbers.
type failingStatsRepository struct {
	fednode.DataRepository
}

func (failingStatsRepository) Stats(context.Context) (*fednode.RepositoryStats, error) {
	return nil, errors.New("stats unavailable")
}

func setupFailingStatsTest(t *testing.T) chi.Router {
	t.Helper()

	service, err := fednode.New(
		fednode.WithRepository(failingStatsRepository{memory.New()}),
		fednode.WithScope(testScope),
		fednode.WithNode(testNode),
		fednode.WithStorageCapacity(testCapacity),
	)
	require.NoError(t, err)

	return Routes(service, nil)
}

func TestNodeHandler_GetSystemMetadata_Success(t *testing.T) {
	router, _ := setupHandlerTest(t)

	content := []byte("occurrence data")
	pid := "doi:10.5072/fk2/occurrence"
	createObject(t, router, pid, content)

	req := httptest.NewRequest(http.MethodGet, objectPath("/meta/", pid), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var meta fednode.SystemMetadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	assert.Equal(t, pid, meta.Identifier)
	assert.Equal(t, int64(1), meta.SerialVersion)
	assert.Equal(t, "application/zip", meta.FormatID)
	assert.Equal(t, md5Hex(content), meta.Checksum.Value)
}

func TestNodeHandler_GetSystemMetadata_NotFound(t *testing.T) {
	router, _ := setupHandlerTest(t)

	req := httptest.NewRequest(http.MethodGet, objectPath("/meta/", "doi:10.5072/fk2/ghost"), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNodeHandler_UpdateSystemMetadata_Success(t *testing.T) {
	router, service := setupHandlerTest(t)

	pid := "doi:10.5072/fk2/occurrence"
	createObject(t, router, pid, []byte("occurrence data"))

	meta, err := service.GetSystemMetadata(context.Background(), pid)
	require.NoError(t, err)
	meta.RightsHolder = "urn:orcid:0000-0002-1825-0097"

	body, err := json.Marshal(meta)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, objectPath("/meta/", pid), strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)

	revised, err := service.GetSystemMetadata(context.Background(), pid)
	require.NoError(t, err)
	assert.Equal(t, "urn:orcid:0000-0002-1825-0097", revised.RightsHolder)
}

func TestNodeHandler_UpdateSystemMetadata_Unparsable(t *testing.T) {
	router, _ := setupHandlerTest(t)

	pid := "doi:10.5072/fk2/occurrence"
	createObject(t, router, pid, []byte("occurrence data"))

	req := httptest.NewRequest(http.MethodPut, objectPath("/meta/", pid), strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestNodeHandler_UpdateSystemMetadata_NotFound(t *testing.T) {
	router, _ := setupHandlerTest(t)

	meta := testSysmeta("doi:10.5072/fk2/ghost", "application/zip", []byte("data"))
	body, err := json.Marshal(meta)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, objectPath("/meta/", meta.Identifier), strings.NewReader(string(body)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNodeHandler_ArchiveObject_Success(t *testing.T) {
	router, service := setupHandlerTest(t)

	pid := "doi:10.5072/fk2/occurrence"
	createObject(t, router, pid, []byte("occurrence data"))

	req := httptest.NewRequest(http.MethodPut, objectPath("/archive/", pid), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp IdentifierResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, pid, resp.Identifier)

	meta, err := service.GetSystemMetadata(context.Background(), pid)
	require.NoError(t, err)
	assert.True(t, meta.Archived)

	// Archived objects stay resolvable.
	req = httptest.NewRequest(http.MethodGet, objectPath("/object/", pid), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNodeHandler_ArchiveObject_NotFound(t *testing.T) {
	router, _ := setupHandlerTest(t)

	req := httptest.NewRequest(http.MethodPut, objectPath("/archive/", "doi:10.5072/fk2/ghost"), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNodeHandler_IsAuthorized_Read(t *testing.T) {
	router, _ := setupHandlerTest(t)

	pid := "doi:10.5072/fk2/occurrence"
	createObject(t, router, pid, []byte("occurrence data"))

	req := httptest.NewRequest(http.MethodGet, objectPath("/isAuthorized/", pid)+"?action=read", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestNodeHandler_IsAuthorized_WriteByCreator(t *testing.T) {
	router, _ := setupHandlerTest(t)

	pid := "doi:10.5072/fk2/occurrence"
	createObject(t, router, pid, []byte("occurrence data"))

	req := httptest.NewRequest(http.MethodGet, objectPath("/isAuthorized/", pid)+"?action=write", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNodeHandler_IsAuthorized_InvalidAction(t *testing.T) {
	router, _ := setupHandlerTest(t)

	pid := "doi:10.5072/fk2/occurrence"
	createObject(t, router, pid, []byte("occurrence data"))

	req := httptest.NewRequest(http.MethodGet, objectPath("/isAuthorized/", pid)+"?action=own", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "action must be read, write or changePermission")
}

func TestNodeHandler_IsAuthorized_NotFound(t *testing.T) {
	router, _ := setupHandlerTest(t)

	req := httptest.NewRequest(http.MethodGet, objectPath("/isAuthorized/", "doi:10.5072/fk2/ghost")+"?action=read", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNodeHandler_GenerateIdentifier_DOI(t *testing.T) {
	router, _ := setupHandlerTest(t)

	form := url.Values{"scheme": {"DOI"}, "fragment": {"dataset"}}
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp IdentifierResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.Identifier, "doi:10.5072/"))
}

func TestNodeHandler_GenerateIdentifier_UnsupportedScheme(t *testing.T) {
	router, _ := setupHandlerTest(t)

	form := url.Values{"scheme": {"URL"}}
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestNodeHandler_Capacity(t *testing.T) {
	router, _ := setupHandlerTest(t)

	req := httptest.NewRequest(http.MethodGet, "/monitor/capacity", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp CapacityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, testCapacity, resp.RemainingBytes)
}

func TestNodeHandler_Capacity_Failure(t *testing.T) {
	router := setupFailingStatsTest(t)

	req := httptest.NewRequest(http.MethodGet, "/monitor/capacity", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestNodeHandler_Healthcheck(t *testing.T) {
	router, _ := setupHandlerTest(t)

	req := httptest.NewRequest(http.MethodGet, "/monitor/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var health fednode.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, fednode.HealthStatusHealthy, health.Status)
	assert.Equal(t, fednode.NodeRef(testNode), health.Node)
}

func TestNodeHandler_Healthcheck_Degraded(t *testing.T) {
	router := setupFailingStatsTest(t)

	req := httptest.NewRequest(http.MethodGet, "/monitor/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var health fednode.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, fednode.HealthStatusDegraded, health.Status)
}
