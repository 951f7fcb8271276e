package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docstack/docstack/pkg/authz"
	"github.com/docstack/docstack/pkg/users"
)

func TestCreateUserEndpoint(t *testing.T) {
	env := newTestServer(t)

	body := `{"email":"Ada@Example.com","display_name":"Ada","role":"developer"}`
	rec := env.do(t, adminActor, http.MethodPost, "/api/v1/users", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var user users.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, authz.RoleDeveloper, user.Role)
}

func TestCreateUserInvalidRole(t *testing.T) {
	env := newTestServer(t)

	body := `{"email":"ada@example.com","display_name":"Ada","role":"superuser"}`
	rec := env.do(t, adminActor, http.MethodPost, "/api/v1/users", strings.NewReader(body), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	env := newTestServer(t)
	env.seedUser(t, "ada", authz.RoleDeveloper)

	body := `{"email":"ada@example.com","display_name":"Ada Again","role":"developer"}`
	rec := env.do(t, adminActor, http.MethodPost, "/api/v1/users", strings.NewReader(body), "application/json")
	assert.NotEqual(t, http.StatusCreated, rec.Code)
}

func TestUserManagementForbiddenForNonAdmin(t *testing.T) {
	env := newTestServer(t)
	env.seedUser(t, "dev", authz.RoleDeveloper)

	body := `{"email":"new@example.com","display_name":"New","role":"developer"}`
	rec := env.do(t, devActor, http.MethodPost, "/api/v1/users", strings.NewReader(body), "application/json")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, devActor, http.MethodGet, "/api/v1/users", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, devActor, http.MethodDelete, "/api/v1/users/dev", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateRoleEndpoint(t *testing.T) {
	env := newTestServer(t)
	env.seedUser(t, "ada", authz.RoleDeveloper)

	body := `{"role":"project_lead"}`
	rec := env.do(t, adminActor, http.MethodPut, "/api/v1/users/ada/role", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var user users.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, authz.RoleProjectLead, user.Role)
}

func TestDeleteUserEndpoint(t *testing.T) {
	env := newTestServer(t)
	env.seedUser(t, "ada", authz.RoleDeveloper)

	rec := env.do(t, adminActor, http.MethodDelete, "/api/v1/users/ada", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, adminActor, http.MethodGet, "/api/v1/users/ada", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSelfDeletionForbiddenEvenForAdmin(t *testing.T) {
	env := newTestServer(t)
	env.seedUser(t, "admin", authz.RoleAdmin)

	rec := env.do(t, adminActor, http.MethodDelete, "/api/v1/users/admin", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
