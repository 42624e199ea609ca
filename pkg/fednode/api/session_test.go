package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datafed/fednode/pkg/fednode"
	"github.com/datafed/fednode/pkg/fednode/repo/memory"
)

const researcherSubject = "urn:orcid:0000-0002-1825-0097"

func setupTokenTest(t *testing.T) (chi.Router, *jwtauth.JWTAuth) {
	t.Helper()

	service, err := fednode.New(
		fednode.WithRepository(memory.New()),
		fednode.WithScope(testScope),
		fednode.WithNode(testNode),
		fednode.WithStorageCapacity(testCapacity),
	)
	require.NoError(t, err)

	tokenAuth := jwtauth.New("HS256", []byte("test-secret"), nil)
	return Routes(service, tokenAuth), tokenAuth
}

func bearerToken(t *testing.T, tokenAuth *jwtauth.JWTAuth, subject string) string {
	t.Helper()

	_, tokenString, err := tokenAuth.Encode(map[string]interface{}{"sub": subject})
	require.NoError(t, err)
	return "Bearer " + tokenString
}

func TestSession_TokenSubjectOwnsObject(t *testing.T) {
	router, tokenAuth := setupTokenTest(t)
	authz := bearerToken(t, tokenAuth, researcherSubject)

	content := []byte("occurrence data")
	pid := "doi:10.5072/fk2/occurrence"
	meta := testSysmeta(pid, "application/zip", content)
	meta.Submitter = researcherSubject
	meta.RightsHolder = researcherSubject

	req := multipartRequest(t, http.MethodPost, "/object/", map[string]string{"pid": pid}, content, &meta)
	req.Header.Set("Authorization", authz)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	// The token subject created the object, so it may write.
	req = httptest.NewRequest(http.MethodGet, objectPath("/isAuthorized/", pid)+"?action=write", nil)
	req.Header.Set("Authorization", authz)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Anonymous requests run as the public subject and may not.
	req = httptest.NewRequest(http.MethodGet, objectPath("/isAuthorized/", pid)+"?action=write", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSession_OnlyCreatorMayArchive(t *testing.T) {
	router, tokenAuth := setupTokenTest(t)
	creator := bearerToken(t, tokenAuth, researcherSubject)
	other := bearerToken(t, tokenAuth, "urn:orcid:0000-0001-5109-3700")

	content := []byte("occurrence data")
	pid := "doi:10.5072/fk2/occurrence"
	meta := testSysmeta(pid, "application/zip", content)

	req := multipartRequest(t, http.MethodPost, "/object/", map[string]string{"pid": pid}, content, &meta)
	req.Header.Set("Authorization", creator)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	req = httptest.NewRequest(http.MethodPut, objectPath("/archive/", pid), nil)
	req.Header.Set("Authorization", other)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodPut, objectPath("/archive/", pid), nil)
	req.Header.Set("Authorization", creator)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSession_MalformedTokenFallsBackToPublic(t *testing.T) {
	router, tokenAuth := setupTokenTest(t)
	authz := bearerToken(t, tokenAuth, researcherSubject)

	content := []byte("occurrence data")
	pid := "doi:10.5072/fk2/occurrence"
	meta := testSysmeta(pid, "application/zip", content)

	req := multipartRequest(t, http.MethodPost, "/object/", map[string]string{"pid": pid}, content, &meta)
	req.Header.Set("Authorization", authz)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	// Reads stay open to everyone, including holders of unusable tokens.
	req = httptest.NewRequest(http.MethodGet, objectPath("/object/", pid), nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Writes as the public fallback are denied.
	req = httptest.NewRequest(http.MethodPut, objectPath("/archive/", pid), nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
