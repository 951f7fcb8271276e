package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docstack/docstack/pkg/authz"
	"github.com/docstack/docstack/pkg/docs"
)

func TestDocumentLifecycle(t *testing.T) {
	env := newTestServer(t)
	env.seedUser(t, "lead", authz.RoleProjectLead)
	env.seedProject(t, "p1", "lead")

	// Upload a document.
	body, contentType := multipartUpload(t, "Launch Plan", "plan.pdf", "content v1")
	rec := env.do(t, leadActor, http.MethodPost, "/api/v1/projects/p1/documents", body, contentType)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var doc docs.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "Launch Plan", doc.Title)
	assert.Equal(t, 1, doc.CurrentVersion)

	// Fetch it back.
	rec = env.do(t, leadActor, http.MethodGet, "/api/v1/documents/"+doc.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Add a second version.
	body, contentType = multipartUpload(t, "", "plan-v2.pdf", "content v2")
	rec = env.do(t, leadActor, http.MethodPost, "/api/v1/documents/"+doc.ID+"/versions", body, contentType)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var version docs.Version
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &version))
	assert.Equal(t, 2, version.Version)
	assert.Equal(t, "plan-v2.pdf", version.FileName)

	// Both versions are listed.
	rec = env.do(t, leadActor, http.MethodGet, "/api/v1/documents/"+doc.ID+"/versions", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var versions []docs.Version
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &versions))
	assert.Len(t, versions, 2)

	// Download the first version.
	rec = env.do(t, leadActor, http.MethodGet, fmt.Sprintf("/api/v1/documents/%s/versions/1/download", doc.ID), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var dl DownloadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dl))
	assert.NotEmpty(t, dl.URL)

	// Delete the document.
	rec = env.do(t, leadActor, http.MethodDelete, "/api/v1/documents/"+doc.ID, nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, leadActor, http.MethodGet, "/api/v1/documents/"+doc.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateDocumentRequiresFile(t *testing.T) {
	env := newTestServer(t)
	env.seedProject(t, "p1", "")

	rec := env.do(t, adminActor, http.MethodPost, "/api/v1/projects/p1/documents",
		strings.NewReader("title=No+File"), "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateDocumentShortTitle(t *testing.T) {
	env := newTestServer(t)
	env.seedProject(t, "p1", "")

	body, contentType := multipartUpload(t, "x", "plan.pdf", "content")
	rec := env.do(t, adminActor, http.MethodPost, "/api/v1/projects/p1/documents", body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateDocumentUnknownProject(t *testing.T) {
	env := newTestServer(t)

	body, contentType := multipartUpload(t, "Launch Plan", "plan.pdf", "content")
	rec := env.do(t, adminActor, http.MethodPost, "/api/v1/projects/ghost/documents", body, contentType)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocumentUploadForbiddenForDeveloper(t *testing.T) {
	env := newTestServer(t)
	env.seedUser(t, "dev", authz.RoleDeveloper)
	env.seedProject(t, "p1", "")
	env.seedMembership(t, "p1", "dev")

	body, contentType := multipartUpload(t, "Launch Plan", "plan.pdf", "content")
	rec := env.do(t, devActor, http.MethodPost, "/api/v1/projects/p1/documents", body, contentType)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListDocumentsReadableByMember(t *testing.T) {
	env := newTestServer(t)
	env.seedUser(t, "lead", authz.RoleProjectLead)
	env.seedUser(t, "dev", authz.RoleDeveloper)
	env.seedProject(t, "p1", "lead")
	env.seedMembership(t, "p1", "dev")

	body, contentType := multipartUpload(t, "Launch Plan", "plan.pdf", "content")
	rec := env.do(t, leadActor, http.MethodPost, "/api/v1/projects/p1/documents", body, contentType)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, devActor, http.MethodGet, "/api/v1/projects/p1/documents", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var documents []docs.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &documents))
	assert.Len(t, documents, 1)
}

func TestListDocumentsForbiddenForNonMember(t *testing.T) {
	env := newTestServer(t)
	env.seedUser(t, "dev", authz.RoleDeveloper)
	env.seedProject(t, "p1", "")

	rec := env.do(t, devActor, http.MethodGet, "/api/v1/projects/p1/documents", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDownloadBadVersionNumber(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, adminActor, http.MethodGet, "/api/v1/documents/d1/versions/two/download", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
