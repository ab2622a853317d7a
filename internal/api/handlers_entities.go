package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleGetDependents(w http.ResponseWriter, r *http.Request) {
	dependents, err := s.registry.GetDependents(r.Context(), chi.URLParam(r, "entity"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, dependents)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.registry.ListVersions(r.Context(), chi.URLParam(r, "entity"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, versions)
}

type updateResponse struct {
	GUID    string `json:"guid"`
	Version int    `json:"version"`
}

// handleUpdateEntity replaces the entity's attribute payload with the request
// body and records a new version.
func (s *Server) handleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	ctx := r.Context()
	id, err := s.registry.ResolveID(ctx, chi.URLParam(r, "entity"))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	version, err := s.registry.UpdateEntity(ctx, id, json.RawMessage(body))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, updateResponse{GUID: id, Version: version})
}

// handleDeleteEntity soft-deletes an entity. Deletes blocked by remaining
// dependents come back as 412.
func (s *Server) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DeleteEntity(r.Context(), chi.URLParam(r, "entity")); err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
