package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/featgraph/featgraph/internal/rbac"
	"github.com/featgraph/featgraph/internal/registry"
	"github.com/featgraph/featgraph/pkg/model"
)

// guidResponse is the envelope every create endpoint returns.
type guidResponse struct {
	GUID string `json:"guid"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	names, err := s.registry.ListProjects(r.Context())
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, names)
}

func (s *Server) handleProjectIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := s.registry.ProjectIDs(r.Context())
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, ids)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.registry.GetProject(r.Context(), chi.URLParam(r, "project"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, project)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var def registry.ProjectDef
	if err := decodeBody(r, &def); err != nil {
		respondError(w, s.logger, err)
		return
	}
	id, err := s.registry.CreateProject(r.Context(), def)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	// The creator administers the project they just made. Bindings are keyed
	// by project name.
	if s.manager != nil {
		if principal, ok := rbac.PrincipalFromContext(r.Context()); ok {
			if err := s.manager.InitProjectAdmin(r.Context(), principal.Username, def.Name); err != nil {
				respondError(w, s.logger, err)
				return
			}
		}
	}
	respondJSON(w, http.StatusOK, guidResponse{GUID: id})
}

func (s *Server) handleListDataSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.projectDataSources(r)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, sources)
}

func (s *Server) handleGetDataSource(w http.ResponseWriter, r *http.Request) {
	sources, err := s.projectDataSources(r)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	wanted, err := s.registry.ResolveID(r.Context(), chi.URLParam(r, "datasource"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	for _, source := range sources {
		if source.ID == wanted {
			respondJSON(w, http.StatusOK, source)
			return
		}
	}
	respondError(w, s.logger, errors.Join(model.ErrNotFound, errors.New("data source not in project")))
}

func (s *Server) handleCreateDataSource(w http.ResponseWriter, r *http.Request) {
	var def registry.SourceDef
	if err := decodeBody(r, &def); err != nil {
		respondError(w, s.logger, err)
		return
	}
	projectID, err := s.registry.ResolveID(r.Context(), chi.URLParam(r, "project"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	id, err := s.registry.CreateSource(r.Context(), projectID, def)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, guidResponse{GUID: id})
}

// projectDataSources lists the source entities a project contains.
func (s *Server) projectDataSources(r *http.Request) ([]model.Entity, error) {
	ctx := r.Context()
	edges, err := s.registry.GetNeighbors(ctx, chi.URLParam(r, "project"), model.RelationshipContains)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(edges))
	for _, edge := range edges {
		ids = append(ids, edge.ToID)
	}
	children, err := s.registry.GetEntities(ctx, ids)
	if err != nil {
		return nil, err
	}
	sources := make([]model.Entity, 0, len(children))
	for _, child := range children {
		if child.Type == model.EntityTypeSource {
			sources = append(sources, child)
		}
	}
	return sources, nil
}
