package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/featgraph/featgraph/internal/registry"
	"github.com/featgraph/featgraph/pkg/model"
)

var featureTypes = []model.EntityType{
	model.EntityTypeAnchorFeature,
	model.EntityTypeDerivedFeature,
}

// handleListFeatures lists a project's features. With a keyword it becomes a
// paged search (page and limit query parameters, 1-based pages); without one
// it returns every feature the project contains.
func (s *Server) handleListFeatures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	project := chi.URLParam(r, "project")

	keyword := r.URL.Query().Get("keyword")
	if keyword != "" {
		limit := queryInt(r, "limit", 100)
		page := queryInt(r, "page", 1)
		if limit < 1 || page < 1 {
			respondError(w, s.logger, errors.Join(model.ErrInvalid, errors.New("page and limit must be positive")))
			return
		}
		refs, err := s.registry.Search(ctx, keyword, featureTypes, project, (page-1)*limit, limit)
		if err != nil {
			respondError(w, s.logger, err)
			return
		}
		ids := make([]string, 0, len(refs))
		for _, ref := range refs {
			ids = append(ids, ref.ID)
		}
		features, err := s.registry.GetEntities(ctx, ids)
		if err != nil {
			respondError(w, s.logger, err)
			return
		}
		respondJSON(w, http.StatusOK, features)
		return
	}

	edges, err := s.registry.GetNeighbors(ctx, project, model.RelationshipContains)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	ids := make([]string, 0, len(edges))
	for _, edge := range edges {
		ids = append(ids, edge.ToID)
	}
	children, err := s.registry.GetEntities(ctx, ids)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	features := make([]model.Entity, 0, len(children))
	for _, child := range children {
		if child.Type.IsFeature() {
			features = append(features, child)
		}
	}
	respondJSON(w, http.StatusOK, features)
}

func (s *Server) handleGetFeature(w http.ResponseWriter, r *http.Request) {
	entity, err := s.registry.GetEntity(r.Context(), chi.URLParam(r, "feature"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	if !entity.Type.IsFeature() {
		respondError(w, s.logger, errors.Join(model.ErrNotFound, errors.New("entity is not a feature")))
		return
	}
	respondJSON(w, http.StatusOK, entity)
}

func (s *Server) handleGetLineage(w http.ResponseWriter, r *http.Request) {
	lineage, err := s.registry.GetLineage(r.Context(), chi.URLParam(r, "feature"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, lineage)
}

func (s *Server) handleCreateAnchor(w http.ResponseWriter, r *http.Request) {
	var def registry.AnchorDef
	if err := decodeBody(r, &def); err != nil {
		respondError(w, s.logger, err)
		return
	}
	projectID, err := s.registry.ResolveID(r.Context(), chi.URLParam(r, "project"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	id, err := s.registry.CreateAnchor(r.Context(), projectID, def)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, guidResponse{GUID: id})
}

func (s *Server) handleCreateAnchorFeature(w http.ResponseWriter, r *http.Request) {
	var def registry.AnchorFeatureDef
	if err := decodeBody(r, &def); err != nil {
		respondError(w, s.logger, err)
		return
	}
	ctx := r.Context()
	projectID, err := s.registry.ResolveID(ctx, chi.URLParam(r, "project"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	anchorID, err := s.registry.ResolveID(ctx, chi.URLParam(r, "anchor"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	id, err := s.registry.CreateAnchorFeature(ctx, projectID, anchorID, def)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, guidResponse{GUID: id})
}

func (s *Server) handleCreateDerivedFeature(w http.ResponseWriter, r *http.Request) {
	var def registry.DerivedFeatureDef
	if err := decodeBody(r, &def); err != nil {
		respondError(w, s.logger, err)
		return
	}
	projectID, err := s.registry.ResolveID(r.Context(), chi.URLParam(r, "project"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	id, err := s.registry.CreateDerivedFeature(r.Context(), projectID, def)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, guidResponse{GUID: id})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}
