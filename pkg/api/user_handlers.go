package api

import (
	"net/http"

	"github.com/docstack/docstack/pkg/authz"
	"github.com/docstack/docstack/pkg/httputil"
)

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := authz.ParseRole(req.Role)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	user, err := s.users.Create(r.Context(), actor, req.Email, req.DisplayName, role)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, user)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	users, err := s.users.List(r.Context(), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, users)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	userID, ok := httputil.PathStringOrError(w, r, "id")
	if !ok {
		return
	}

	user, err := s.users.Get(r.Context(), actor, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

func (s *Server) updateRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	userID, ok := httputil.PathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := authz.ParseRole(req.Role)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	user, err := s.users.UpdateRole(r.Context(), actor, userID, role)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	userID, ok := httputil.PathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.users.Delete(r.Context(), actor, userID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
