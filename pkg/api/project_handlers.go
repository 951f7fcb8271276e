package api

import (
	"net/http"

	"github.com/docstack/docstack/pkg/httputil"
)

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreateProjectRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	project, err := s.projects.Create(r.Context(), actor, req.Name, req.Description, req.LeadID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, project)
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	projects, err := s.projects.List(r.Context(), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, projects)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	projectID, ok := httputil.PathStringOrError(w, r, "id")
	if !ok {
		return
	}

	project, err := s.projects.Get(r.Context(), actor, projectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, project)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	projectID, ok := httputil.PathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateProjectRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	project, err := s.projects.Update(r.Context(), actor, projectID, req.Name, req.Description, req.LeadID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, project)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	projectID, ok := httputil.PathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.projects.Delete(r.Context(), actor, projectID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	projectID, ok := httputil.PathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req AddMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := s.projects.AddMember(r.Context(), actor, projectID, req.UserID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteCreated(w, map[string]string{"project_id": projectID, "user_id": req.UserID})
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	projectID, ok := httputil.PathStringOrError(w, r, "id")
	if !ok {
		return
	}

	members, err := s.projects.ListMembers(r.Context(), actor, projectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteSuccess(w, members)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	projectID, ok := httputil.PathStringOrError(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httputil.PathStringOrError(w, r, "userId")
	if !ok {
		return
	}

	if err := s.projects.RemoveMember(r.Context(), actor, projectID, userID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
