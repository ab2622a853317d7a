// Package registry implements the entity graph manager: versioned metadata
// entities (projects, sources, anchors, features), typed lineage edges with a
// DAG invariant, and qualified-name uniqueness resolved by the storage layer.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/featgraph/featgraph/pkg/model"
)

// Registry is the entity graph manager contract the API layer works against.
type Registry interface {
	ListProjects(ctx context.Context) ([]string, error)
	ProjectIDs(ctx context.Context) (map[string]string, error)

	// ResolveID turns an id or qualified name into an entity id.
	ResolveID(ctx context.Context, idOrName string) (string, error)
	GetEntity(ctx context.Context, idOrName string) (*model.Entity, error)
	GetEntities(ctx context.Context, ids []string) ([]model.Entity, error)
	GetNeighbors(ctx context.Context, idOrName string, relationship model.RelationshipType) ([]model.Edge, error)

	GetLineage(ctx context.Context, idOrName string) (*EntitiesAndRelations, error)
	GetProject(ctx context.Context, idOrName string) (*EntitiesAndRelations, error)
	GetDependents(ctx context.Context, idOrName string) ([]model.Entity, error)
	Search(ctx context.Context, keyword string, types []model.EntityType, project string, start, size int) ([]model.EntityRef, error)

	CreateProject(ctx context.Context, def ProjectDef) (string, error)
	CreateSource(ctx context.Context, projectID string, def SourceDef) (string, error)
	CreateAnchor(ctx context.Context, projectID string, def AnchorDef) (string, error)
	CreateAnchorFeature(ctx context.Context, projectID, anchorID string, def AnchorFeatureDef) (string, error)
	CreateDerivedFeature(ctx context.Context, projectID string, def DerivedFeatureDef) (string, error)

	// UpdateEntity replaces an entity's attribute payload, recording a new
	// version. Returns the new version number.
	UpdateEntity(ctx context.Context, idOrName string, attributes json.RawMessage) (int, error)
	ListVersions(ctx context.Context, idOrName string) ([]model.EntityVersion, error)

	// DeleteEntity soft-deletes an entity. Prunable dependents (empty anchors
	// and sources) are removed first; any remaining dependent rejects the
	// delete with model.ErrHasDependents.
	DeleteEntity(ctx context.Context, idOrName string) error

	Close() error
}

// Config carries the backend selection for NewRegistry.
type Config struct {
	// Backend names the catalog implementation ("sql").
	Backend string
	// Database is the SQL flavor for the sql backend.
	Database string
	// ConnectionStr is the backend connection string.
	ConnectionStr string
	Logger        *slog.Logger
}

// Factory builds a Registry from configuration.
type Factory func(ctx context.Context, cfg Config) (Registry, error)

var (
	backendMu sync.RWMutex
	backends  = make(map[string]Factory)
)

// RegisterBackend adds a catalog backend implementation to the registry.
func RegisterBackend(name string, f Factory) {
	backendMu.Lock()
	defer backendMu.Unlock()
	backends[name] = f
}

// ListBackends returns all registered backend names (sorted).
func ListBackends() []string {
	backendMu.RLock()
	defer backendMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewRegistry builds the configured catalog backend.
func NewRegistry(ctx context.Context, cfg Config) (Registry, error) {
	backendMu.RLock()
	f, ok := backends[cfg.Backend]
	backendMu.RUnlock()
	if !ok {
		return nil, &UnknownBackendError{Name: cfg.Backend, Available: ListBackends()}
	}
	return f(ctx, cfg)
}

// UnknownBackendError is returned when an unregistered catalog backend is
// requested (for example a Purview catalog name with no Purview support
// compiled in).
type UnknownBackendError struct {
	Name      string
	Available []string
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("unknown catalog backend %q (available: %v)", e.Name, e.Available)
}
