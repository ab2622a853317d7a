package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/featgraph/featgraph/internal/rbac"
	"github.com/featgraph/featgraph/pkg/model"
)

// handleListUserRoles lists the role bindings visible to the caller: global
// admins see everything, project admins see their projects.
func (s *Server) handleListUserRoles(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, s.logger, errors.Join(model.ErrDenied, errors.New("no principal")))
		return
	}
	roles, err := s.manager.ListRoles(r.Context(), principal.Username)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, roles)
}

func (s *Server) handleAddUserRole(w http.ResponseWriter, r *http.Request) {
	project, user, role, reason, by, err := s.roleParams(r)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	if err := s.manager.AddRole(r.Context(), project, user, role, reason, by); err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteUserRole(w http.ResponseWriter, r *http.Request) {
	project, user, role, reason, by, err := s.roleParams(r)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	if err := s.manager.DeleteRole(r.Context(), project, user, role, reason, by); err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// roleParams collects the binding parameters shared by add and delete. The
// target user rides in the path, the scope, role and reason in the query
// string, and the acting admin comes from the authenticated principal.
func (s *Server) roleParams(r *http.Request) (project, user, role, reason, by string, err error) {
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		return "", "", "", "", "", errors.Join(model.ErrDenied, errors.New("no principal"))
	}
	q := r.URL.Query()
	project = q.Get("project")
	role = q.Get("role")
	reason = q.Get("reason")
	user = chi.URLParam(r, "user")
	if project == "" || role == "" || reason == "" {
		return "", "", "", "", "", errors.Join(model.ErrInvalid,
			errors.New("project, role and reason are required"))
	}
	return project, user, role, reason, principal.Username, nil
}
