// Package api exposes the registry over HTTP: project, source, anchor and
// feature management, lineage queries, and role administration, mounted under
// a configurable base path.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/featgraph/featgraph/internal/rbac"
	"github.com/featgraph/featgraph/internal/registry"
	"github.com/featgraph/featgraph/pkg/model"
)

// Config carries the server's collaborators. RBAC is enabled when both
// Manager and Resolver are set.
type Config struct {
	Registry registry.Registry
	Manager  *rbac.Manager
	Resolver *rbac.Resolver
	// APIBase is the path prefix routes are mounted under, e.g. /api/v1.
	APIBase string
	Addr    string
	Logger  *slog.Logger
}

// Server serves the registry API.
type Server struct {
	registry registry.Registry
	manager  *rbac.Manager
	gate     *rbac.Gate
	apiBase  string
	addr     string
	logger   *slog.Logger
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		registry: cfg.Registry,
		manager:  cfg.Manager,
		apiBase:  cfg.APIBase,
		addr:     cfg.Addr,
		logger:   logger,
	}
	if cfg.Manager != nil && cfg.Resolver != nil {
		s.gate = rbac.NewGate(cfg.Manager, cfg.Resolver, s.projectOf, logger)
	}
	return s
}

// projectOf resolves the owning project name of an entity for authorization
// scoping. The project segment leads every qualified name, and role bindings
// are keyed by project name.
func (s *Server) projectOf(ctx context.Context, idOrName string) (string, error) {
	entity, err := s.registry.GetEntity(ctx, idOrName)
	if err != nil {
		return "", err
	}
	return model.ProjectOfQualifiedName(entity.QualifiedName), nil
}

// Serve runs the HTTP server until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Routes(),
		BaseContext: func(net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		s.logger.Info("registry API listening", "addr", s.addr, "base", s.apiBase)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		s.logger.Info("shutting down registry API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// Routes assembles the router. All API routes share the base path and, when
// RBAC is configured, pass through the authorization gate.
func (s *Server) Routes() http.Handler {
	r := chi.NewMux()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	r.Route(s.apiBase, func(r chi.Router) {
		if s.gate != nil {
			r.Use(s.gate.Middleware)
		}

		r.Get("/projects", s.handleListProjects)
		r.Get("/projects-ids", s.handleProjectIDs)
		r.Post("/projects", s.handleCreateProject)
		r.Get("/projects/{project}", s.handleGetProject)
		r.Get("/projects/{project}/datasources", s.handleListDataSources)
		r.Post("/projects/{project}/datasources", s.handleCreateDataSource)
		r.Get("/projects/{project}/datasources/{datasource}", s.handleGetDataSource)
		r.Get("/projects/{project}/features", s.handleListFeatures)
		r.Post("/projects/{project}/anchors", s.handleCreateAnchor)
		r.Post("/projects/{project}/anchors/{anchor}/features", s.handleCreateAnchorFeature)
		r.Post("/projects/{project}/derivedfeatures", s.handleCreateDerivedFeature)

		r.Get("/features/{feature}", s.handleGetFeature)
		r.Get("/features/{feature}/lineage", s.handleGetLineage)

		r.Get("/dependent/{entity}", s.handleGetDependents)
		r.Get("/entity/{entity}/versions", s.handleListVersions)
		r.Put("/entity/{entity}", s.handleUpdateEntity)
		r.Delete("/entity/{entity}", s.handleDeleteEntity)

		if s.manager != nil {
			r.Get("/userroles", s.handleListUserRoles)
			r.Post("/users/{user}/userroles/add", s.handleAddUserRole)
			r.Delete("/users/{user}/userroles/delete", s.handleDeleteUserRole)
		}
	})

	return r
}
