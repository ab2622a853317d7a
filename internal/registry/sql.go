package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/featgraph/featgraph/internal/dag"
	"github.com/featgraph/featgraph/internal/store"
	"github.com/featgraph/featgraph/pkg/model"
)

// GlobalProject is the project every deployment starts with. RBAC bindings
// scoped to it apply across all projects.
const GlobalProject = "global"

func init() {
	RegisterBackend("sql", func(ctx context.Context, cfg Config) (Registry, error) {
		s, err := store.Open(ctx, cfg.Database, cfg.ConnectionStr, cfg.Logger)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, err
		}
		r := NewSQLRegistry(s, cfg.Logger)
		if _, err := r.CreateProject(ctx, ProjectDef{Name: GlobalProject}); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to initialize %s project: %w", GlobalProject, err)
		}
		return r, nil
	})
}

// SQLRegistry is the SQL-backed entity graph manager.
type SQLRegistry struct {
	store  *store.SQLStore
	logger *slog.Logger
}

// NewSQLRegistry wraps an opened, migrated store.
func NewSQLRegistry(s *store.SQLStore, logger *slog.Logger) *SQLRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLRegistry{store: s, logger: logger}
}

// Store exposes the underlying store (used by the RBAC manager, which shares
// the database).
func (r *SQLRegistry) Store() *store.SQLStore { return r.store }

func (r *SQLRegistry) Close() error { return r.store.Close() }

func (r *SQLRegistry) ListProjects(ctx context.Context) ([]string, error) {
	refs, err := r.store.ListEntityRefsByType(ctx, model.EntityTypeProject)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		names = append(names, ref.QualifiedName)
	}
	return names, nil
}

func (r *SQLRegistry) ProjectIDs(ctx context.Context) (map[string]string, error) {
	refs, err := r.store.ListEntityRefsByType(ctx, model.EntityTypeProject)
	if err != nil {
		return nil, err
	}
	projects := make(map[string]string, len(refs))
	for _, ref := range refs {
		projects[ref.ID] = ref.QualifiedName
	}
	return projects, nil
}

func (r *SQLRegistry) ResolveID(ctx context.Context, idOrName string) (string, error) {
	if _, err := uuid.Parse(idOrName); err == nil {
		return idOrName, nil
	}
	e, err := r.store.GetEntityByName(ctx, idOrName)
	if err != nil {
		return "", fmt.Errorf("entity %q: %w", idOrName, err)
	}
	return e.ID, nil
}

func (r *SQLRegistry) GetEntity(ctx context.Context, idOrName string) (*model.Entity, error) {
	id, err := r.ResolveID(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	e, err := r.store.GetEntityByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("entity %q: %w", idOrName, err)
	}
	if err := r.fillEntity(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *SQLRegistry) GetEntities(ctx context.Context, ids []string) ([]model.Entity, error) {
	entities, err := r.store.GetEntities(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range entities {
		if err := r.fillEntity(ctx, &entities[i]); err != nil {
			return nil, err
		}
	}
	return entities, nil
}

func (r *SQLRegistry) GetNeighbors(ctx context.Context, idOrName string, relationship model.RelationshipType) ([]model.Edge, error) {
	id, err := r.ResolveID(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	return r.store.ListEdgesFrom(ctx, []string{id}, relationship)
}

// GetLineage walks the consume graph in both directions from the given
// entity and returns everything it touched.
func (r *SQLRegistry) GetLineage(ctx context.Context, idOrName string) (*EntitiesAndRelations, error) {
	id, err := r.ResolveID(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	if _, err := r.store.GetEntityByID(ctx, id); err != nil {
		return nil, fmt.Errorf("entity %q: %w", idOrName, err)
	}
	upEntities, upEdges, err := r.bfs(ctx, id, model.RelationshipConsumes)
	if err != nil {
		return nil, err
	}
	downEntities, downEdges, err := r.bfs(ctx, id, model.RelationshipProduces)
	if err != nil {
		return nil, err
	}
	entities := append(upEntities, downEntities...)
	edges := append(upEdges, downEdges...)
	return newEntitiesAndRelations(entities, edges), nil
}

// GetProject returns the project together with everything it contains and
// all edges among them.
func (r *SQLRegistry) GetProject(ctx context.Context, idOrName string) (*EntitiesAndRelations, error) {
	project, err := r.GetEntity(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	if project.Type != model.EntityTypeProject {
		return nil, fmt.Errorf("entity %q is not a project: %w", idOrName, model.ErrNotFound)
	}
	contains, err := r.store.ListEdgesFrom(ctx, []string{project.ID}, model.RelationshipContains)
	if err != nil {
		return nil, err
	}
	childIDs := make([]string, 0, len(contains))
	for _, e := range contains {
		childIDs = append(childIDs, e.ToID)
	}
	children, err := r.GetEntities(ctx, childIDs)
	if err != nil {
		return nil, err
	}
	edges, err := r.store.EdgesAmong(ctx, append(childIDs, project.ID),
		[]model.RelationshipType{model.RelationshipContains, model.RelationshipBelongsTo,
			model.RelationshipConsumes, model.RelationshipProduces})
	if err != nil {
		return nil, err
	}
	return newEntitiesAndRelations(append([]model.Entity{*project}, children...), edges), nil
}

// GetDependents returns every entity downstream of the given one. A project
// or anchor pulls in what it contains; a source or feature pulls in what it
// produces.
func (r *SQLRegistry) GetDependents(ctx context.Context, idOrName string) ([]model.Entity, error) {
	id, err := r.ResolveID(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	entity, err := r.store.GetEntityByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("entity %q: %w", idOrName, err)
	}

	var relationship model.RelationshipType
	switch entity.Type {
	case model.EntityTypeProject, model.EntityTypeAnchor:
		relationship = model.RelationshipContains
	case model.EntityTypeSource, model.EntityTypeAnchorFeature, model.EntityTypeDerivedFeature:
		relationship = model.RelationshipProduces
	default:
		return nil, nil
	}

	entities, _, err := r.bfs(ctx, id, relationship)
	if err != nil {
		return nil, err
	}
	dependents := make([]model.Entity, 0, len(entities))
	for _, e := range entities {
		if e.ID != id {
			dependents = append(dependents, e)
		}
	}
	return dependents, nil
}

func (r *SQLRegistry) Search(ctx context.Context, keyword string, types []model.EntityType, project string, start, size int) ([]model.EntityRef, error) {
	projectID := ""
	if project != "" {
		id, err := r.ResolveID(ctx, project)
		if err != nil {
			return nil, err
		}
		projectID = id
	}
	return r.store.SearchEntities(ctx, keyword, types, projectID, size, start)
}

func (r *SQLRegistry) CreateProject(ctx context.Context, def ProjectDef) (string, error) {
	if def.Name == "" {
		return "", fmt.Errorf("project name is required: %w", model.ErrInvalid)
	}
	var id string
	err := r.store.WithTx(ctx, func(tx *store.Tx) error {
		existing, err := findExisting(ctx, tx, def.Name, model.EntityTypeProject)
		if err != nil {
			return err
		}
		if existing != nil {
			// A project re-registration is always idempotent.
			id = existing.ID
			return nil
		}
		entity, err := newEntity(def.Name, model.EntityTypeProject, def.attributes())
		if err != nil {
			return err
		}
		if err := tx.InsertEntity(ctx, entity); err != nil {
			return err
		}
		id = entity.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	r.logger.Debug("project registered", "project", def.Name, "id", id)
	return id, nil
}

func (r *SQLRegistry) CreateSource(ctx context.Context, projectID string, def SourceDef) (string, error) {
	project, err := r.store.GetEntityByID(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("project %s: %w", projectID, err)
	}
	qualifiedName := model.QualifiedName(project.QualifiedName, def.Name)

	var id string
	err = r.store.WithTx(ctx, func(tx *store.Tx) error {
		existing, err := findExisting(ctx, tx, qualifiedName, model.EntityTypeSource)
		if err != nil {
			return err
		}
		if existing != nil {
			var attr SourceAttributes
			if err := json.Unmarshal(existing.Attributes, &attr); err != nil {
				return fmt.Errorf("corrupt attributes on %s: %w", qualifiedName, err)
			}
			if attr.Name == def.Name && attr.Type == def.Type &&
				reflect.DeepEqual(attr.Options, def.Options) &&
				attr.Preprocessing == def.Preprocessing &&
				attr.EventTimestampColumn == def.EventTimestampColumn &&
				attr.TimestampFormat == def.TimestampFormat {
				id = existing.ID
				return nil
			}
			return fmt.Errorf("entity %q already exists with a different definition: %w",
				qualifiedName, model.ErrConflict)
		}
		entity, err := newEntity(qualifiedName, model.EntityTypeSource, def.attributes(qualifiedName))
		if err != nil {
			return err
		}
		if err := tx.InsertEntity(ctx, entity); err != nil {
			return err
		}
		if err := link(ctx, tx, project.ID, entity.ID); err != nil {
			return err
		}
		id = entity.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *SQLRegistry) CreateAnchor(ctx context.Context, projectID string, def AnchorDef) (string, error) {
	project, err := r.store.GetEntityByID(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("project %s: %w", projectID, err)
	}
	qualifiedName := model.QualifiedName(project.QualifiedName, def.Name)

	var id string
	err = r.store.WithTx(ctx, func(tx *store.Tx) error {
		existing, err := findExisting(ctx, tx, qualifiedName, model.EntityTypeAnchor)
		if err != nil {
			return err
		}
		if existing != nil {
			var attr AnchorAttributes
			if err := json.Unmarshal(existing.Attributes, &attr); err != nil {
				return fmt.Errorf("corrupt attributes on %s: %w", qualifiedName, err)
			}
			if attr.Name == def.Name {
				id = existing.ID
				return nil
			}
			return fmt.Errorf("entity %q already exists with a different definition: %w",
				qualifiedName, model.ErrConflict)
		}

		source, err := tx.GetEntityByID(ctx, def.SourceID)
		if err != nil {
			return fmt.Errorf("source %s does not exist: %w", def.SourceID, model.ErrDangling)
		}
		if source.Type != model.EntityTypeSource {
			return fmt.Errorf("entity %s is not a source: %w", def.SourceID, model.ErrDangling)
		}

		entity, err := newEntity(qualifiedName, model.EntityTypeAnchor,
			def.attributes(qualifiedName, source.Ref()))
		if err != nil {
			return err
		}
		if err := tx.InsertEntity(ctx, entity); err != nil {
			return err
		}
		if err := link(ctx, tx, project.ID, entity.ID); err != nil {
			return err
		}
		if err := consume(ctx, tx, entity.ID, source.ID); err != nil {
			return err
		}
		id = entity.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *SQLRegistry) CreateAnchorFeature(ctx context.Context, projectID, anchorID string, def AnchorFeatureDef) (string, error) {
	anchor, err := r.store.GetEntityByID(ctx, anchorID)
	if err != nil {
		return "", fmt.Errorf("anchor %s: %w", anchorID, err)
	}
	if anchor.Type != model.EntityTypeAnchor {
		return "", fmt.Errorf("entity %s is not an anchor: %w", anchorID, model.ErrNotFound)
	}
	var anchorAttr AnchorAttributes
	if err := json.Unmarshal(anchor.Attributes, &anchorAttr); err != nil {
		return "", fmt.Errorf("corrupt attributes on %s: %w", anchor.QualifiedName, err)
	}
	if anchorAttr.Source == nil {
		return "", fmt.Errorf("anchor %s has no source: %w", anchor.QualifiedName, model.ErrDangling)
	}
	qualifiedName := model.QualifiedName(anchor.QualifiedName, def.Name)

	var id string
	err = r.store.WithTx(ctx, func(tx *store.Tx) error {
		existing, err := findExisting(ctx, tx, qualifiedName, model.EntityTypeAnchorFeature)
		if err != nil {
			return err
		}
		if existing != nil {
			var attr AnchorFeatureAttributes
			if err := json.Unmarshal(existing.Attributes, &attr); err != nil {
				return fmt.Errorf("corrupt attributes on %s: %w", qualifiedName, err)
			}
			if attr.Name == def.Name && reflect.DeepEqual(attr.Type, def.FeatureType) &&
				reflect.DeepEqual(attr.Transformation, def.Transformation) &&
				reflect.DeepEqual(attr.Key, def.Key) {
				id = existing.ID
				return nil
			}
			return fmt.Errorf("entity %q already exists with a different definition: %w",
				qualifiedName, model.ErrConflict)
		}

		entity, err := newEntity(qualifiedName, model.EntityTypeAnchorFeature, def.attributes(qualifiedName))
		if err != nil {
			return err
		}
		if err := tx.InsertEntity(ctx, entity); err != nil {
			return err
		}
		if err := link(ctx, tx, projectID, entity.ID); err != nil {
			return err
		}
		if err := link(ctx, tx, anchor.ID, entity.ID); err != nil {
			return err
		}
		// The feature consumes whatever source its anchor is bound to.
		if err := consume(ctx, tx, entity.ID, anchorAttr.Source.ID); err != nil {
			return err
		}
		id = entity.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *SQLRegistry) CreateDerivedFeature(ctx context.Context, projectID string, def DerivedFeatureDef) (string, error) {
	project, err := r.store.GetEntityByID(ctx, projectID)
	if err != nil {
		return "", fmt.Errorf("project %s: %w", projectID, err)
	}
	qualifiedName := model.QualifiedName(project.QualifiedName, def.Name)

	var id string
	err = r.store.WithTx(ctx, func(tx *store.Tx) error {
		existing, err := findExisting(ctx, tx, qualifiedName, model.EntityTypeDerivedFeature)
		if err != nil {
			return err
		}
		if existing != nil {
			var attr DerivedFeatureAttributes
			if err := json.Unmarshal(existing.Attributes, &attr); err != nil {
				return fmt.Errorf("corrupt attributes on %s: %w", qualifiedName, err)
			}
			if attr.Name == def.Name && reflect.DeepEqual(attr.Type, def.FeatureType) &&
				reflect.DeepEqual(attr.Transformation, def.Transformation) &&
				reflect.DeepEqual(attr.Key, def.Key) {
				id = existing.ID
				return nil
			}
			return fmt.Errorf("entity %q already exists with a different definition: %w",
				qualifiedName, model.ErrConflict)
		}

		inputs, err := resolveInputs(ctx, tx, def)
		if err != nil {
			return err
		}

		entity, err := newEntity(qualifiedName, model.EntityTypeDerivedFeature,
			def.attributes(qualifiedName, inputs))
		if err != nil {
			return err
		}

		// The new consume edges must keep the feature graph acyclic. The
		// whole transaction rolls back on a cycle, so no partial edge ever
		// lands.
		if err := checkAcyclic(ctx, tx, entity.ID, inputs); err != nil {
			return err
		}

		if err := tx.InsertEntity(ctx, entity); err != nil {
			return err
		}
		if err := link(ctx, tx, project.ID, entity.ID); err != nil {
			return err
		}
		for _, in := range inputs {
			if err := consume(ctx, tx, entity.ID, in.ID); err != nil {
				return err
			}
		}
		id = entity.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *SQLRegistry) UpdateEntity(ctx context.Context, idOrName string, attributes json.RawMessage) (int, error) {
	if !json.Valid(attributes) {
		return 0, fmt.Errorf("attributes payload is not valid JSON: %w", model.ErrInvalid)
	}
	id, err := r.ResolveID(ctx, idOrName)
	if err != nil {
		return 0, err
	}
	var version int
	err = r.store.WithTx(ctx, func(tx *store.Tx) error {
		v, err := tx.UpdateEntityAttributes(ctx, id, attributes, time.Now().UTC())
		if err != nil {
			return err
		}
		version = v
		return nil
	})
	return version, err
}

func (r *SQLRegistry) ListVersions(ctx context.Context, idOrName string) ([]model.EntityVersion, error) {
	id, err := r.ResolveID(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	if _, err := r.store.GetEntityByID(ctx, id); err != nil {
		return nil, fmt.Errorf("entity %q: %w", idOrName, err)
	}
	return r.store.ListEntityVersions(ctx, id)
}

func (r *SQLRegistry) DeleteEntity(ctx context.Context, idOrName string) error {
	id, err := r.ResolveID(ctx, idOrName)
	if err != nil {
		return err
	}
	dependents, err := r.GetDependents(ctx, id)
	if err != nil {
		return err
	}
	if len(dependents) > 0 {
		// Empty anchors and sources are not worth keeping; prune them and
		// see whether real dependents remain.
		if err := r.pruneEmpty(ctx, dependents); err != nil {
			return err
		}
		remaining, err := r.GetDependents(ctx, id)
		if err != nil {
			return err
		}
		if len(remaining) > 0 {
			names := make([]string, 0, len(remaining))
			for _, e := range remaining {
				names = append(names, e.QualifiedName)
			}
			return fmt.Errorf("entity has dependents [%s]: %w",
				strings.Join(names, ", "), model.ErrHasDependents)
		}
	}
	return r.deleteOne(ctx, id)
}

func (r *SQLRegistry) deleteOne(ctx context.Context, id string) error {
	return r.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.DeleteEdgesTouching(ctx, id); err != nil {
			return err
		}
		return tx.SoftDeleteEntity(ctx, id, time.Now().UTC())
	})
}

// pruneEmpty removes anchors with no features, then sources with no anchors.
func (r *SQLRegistry) pruneEmpty(ctx context.Context, entities []model.Entity) error {
	for _, e := range entities {
		if e.Type != model.EntityTypeAnchor {
			continue
		}
		down, _, err := r.bfs(ctx, e.ID, model.RelationshipContains)
		if err != nil {
			return err
		}
		if len(down) <= 1 {
			if err := r.deleteOne(ctx, e.ID); err != nil {
				return err
			}
		}
	}
	for _, e := range entities {
		if e.Type != model.EntityTypeSource {
			continue
		}
		down, _, err := r.bfs(ctx, e.ID, model.RelationshipProduces)
		if err != nil {
			return err
		}
		if len(down) <= 1 {
			if err := r.deleteOne(ctx, e.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// bfs walks edges of one type starting at id and returns every entity and
// edge reached, including the start entity.
func (r *SQLRegistry) bfs(ctx context.Context, id string, relationship model.RelationshipType) ([]model.Entity, []model.Edge, error) {
	visited := map[string]bool{id: true}
	frontier := []string{id}
	var edges []model.Edge
	for len(frontier) > 0 {
		step, err := r.store.ListEdgesFrom(ctx, frontier, relationship)
		if err != nil {
			return nil, nil, err
		}
		frontier = frontier[:0]
		for _, e := range step {
			edges = append(edges, e)
			if !visited[e.ToID] {
				visited[e.ToID] = true
				frontier = append(frontier, e.ToID)
			}
		}
	}
	ids := make([]string, 0, len(visited))
	for v := range visited {
		ids = append(ids, v)
	}
	entities, err := r.store.GetEntities(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	return entities, edges, nil
}

// fillEntity reconstructs the derived attribute fields (children, features,
// source, inputFeatures) from edges; the stored payload only holds what
// belongs to the entity itself.
func (r *SQLRegistry) fillEntity(ctx context.Context, e *model.Entity) error {
	switch e.Type {
	case model.EntityTypeProject:
		children, err := r.containedEntities(ctx, e.ID)
		if err != nil {
			return err
		}
		grouped := map[string][]model.Entity{
			"children": children,
		}
		for _, c := range children {
			switch c.Type {
			case model.EntityTypeSource:
				grouped["sources"] = append(grouped["sources"], c)
			case model.EntityTypeAnchor:
				grouped["anchors"] = append(grouped["anchors"], c)
			case model.EntityTypeAnchorFeature:
				grouped["anchorFeatures"] = append(grouped["anchorFeatures"], c)
			case model.EntityTypeDerivedFeature:
				grouped["derivedFeatures"] = append(grouped["derivedFeatures"], c)
			}
		}
		fields := make(map[string]any, len(grouped))
		for k, v := range grouped {
			fields[k] = v
		}
		return injectAttributes(e, fields)
	case model.EntityTypeAnchor:
		features, err := r.containedEntities(ctx, e.ID)
		if err != nil {
			return err
		}
		return injectAttributes(e, map[string]any{"features": features})
	case model.EntityTypeDerivedFeature:
		consumed, err := r.store.ListEdgesFrom(ctx, []string{e.ID}, model.RelationshipConsumes)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(consumed))
		for _, edge := range consumed {
			ids = append(ids, edge.ToID)
		}
		inputs, err := r.store.GetEntities(ctx, ids)
		if err != nil {
			return err
		}
		return injectAttributes(e, map[string]any{"inputFeatures": inputs})
	}
	return nil
}

func (r *SQLRegistry) containedEntities(ctx context.Context, id string) ([]model.Entity, error) {
	contains, err := r.store.ListEdgesFrom(ctx, []string{id}, model.RelationshipContains)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(contains))
	for _, e := range contains {
		ids = append(ids, e.ToID)
	}
	return r.store.GetEntities(ctx, ids)
}

func injectAttributes(e *model.Entity, fields map[string]any) error {
	var attrs map[string]any
	if err := json.Unmarshal(e.Attributes, &attrs); err != nil {
		return fmt.Errorf("corrupt attributes on %s: %w", e.QualifiedName, err)
	}
	for k, v := range fields {
		attrs[k] = v
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("failed to encode attributes of %s: %w", e.QualifiedName, err)
	}
	e.Attributes = b
	return nil
}

// findExisting looks up a live entity under the qualified name. A hit with a
// different type is always a conflict; a hit with the expected type is
// handed back for the caller's definition comparison.
func findExisting(ctx context.Context, tx *store.Tx, qualifiedName string, want model.EntityType) (*model.Entity, error) {
	existing, err := tx.GetEntityByName(ctx, qualifiedName)
	if model.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if existing.Type != want {
		return nil, fmt.Errorf("entity %q already exists as %s: %w",
			qualifiedName, existing.Type, model.ErrConflict)
	}
	return existing, nil
}

func newEntity(qualifiedName string, entityType model.EntityType, attributes any) (*model.Entity, error) {
	attrs, err := marshalAttributes(attributes)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &model.Entity{
		ID:            uuid.NewString(),
		QualifiedName: qualifiedName,
		Type:          entityType,
		Version:       1,
		Attributes:    attrs,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// link records container membership: parent Contains child, child BelongsTo
// parent.
func link(ctx context.Context, tx *store.Tx, parentID, childID string) error {
	if err := tx.InsertEdge(ctx, model.Edge{
		ID: uuid.NewString(), FromID: parentID, ToID: childID, Type: model.RelationshipContains,
	}); err != nil {
		return err
	}
	return tx.InsertEdge(ctx, model.Edge{
		ID: uuid.NewString(), FromID: childID, ToID: parentID, Type: model.RelationshipBelongsTo,
	})
}

// consume records dataflow: consumer Consumes input, input Produces consumer.
func consume(ctx context.Context, tx *store.Tx, consumerID, inputID string) error {
	if err := tx.InsertEdge(ctx, model.Edge{
		ID: uuid.NewString(), FromID: consumerID, ToID: inputID, Type: model.RelationshipConsumes,
	}); err != nil {
		return err
	}
	return tx.InsertEdge(ctx, model.Edge{
		ID: uuid.NewString(), FromID: inputID, ToID: consumerID, Type: model.RelationshipProduces,
	})
}

func resolveInputs(ctx context.Context, tx *store.Tx, def DerivedFeatureDef) ([]model.EntityRef, error) {
	anchorInputs, err := inputRefs(ctx, tx, def.InputAnchorFeatures, model.EntityTypeAnchorFeature)
	if err != nil {
		return nil, err
	}
	derivedInputs, err := inputRefs(ctx, tx, def.InputDerivedFeatures, model.EntityTypeDerivedFeature)
	if err != nil {
		return nil, err
	}
	return append(anchorInputs, derivedInputs...), nil
}

// inputRefs resolves input references, given as ids or qualified names, and
// checks they are all of the expected feature type.
func inputRefs(ctx context.Context, tx *store.Tx, idsOrNames []string, want model.EntityType) ([]model.EntityRef, error) {
	refs := make([]model.EntityRef, 0, len(idsOrNames))
	for _, ref := range idsOrNames {
		var (
			e   *model.Entity
			err error
		)
		if _, uuidErr := uuid.Parse(ref); uuidErr == nil {
			e, err = tx.GetEntityByID(ctx, ref)
		} else {
			e, err = tx.GetEntityByName(ctx, ref)
		}
		if err != nil {
			return nil, fmt.Errorf("input %s does not exist: %w", ref, model.ErrDangling)
		}
		if e.Type != want {
			return nil, fmt.Errorf("input %s is a %s, expected %s: %w", ref, e.Type, want, model.ErrDangling)
		}
		refs = append(refs, e.Ref())
	}
	return refs, nil
}

// checkAcyclic loads the consume graph, adds the candidate edges, and rejects
// the registration if a cycle would form.
func checkAcyclic(ctx context.Context, tx *store.Tx, newID string, inputs []model.EntityRef) error {
	existing, err := tx.ListEdgesByType(ctx, model.RelationshipConsumes)
	if err != nil {
		return err
	}
	g := dag.New()
	for _, e := range existing {
		if err := g.AddEdge(e.FromID, e.ToID); err != nil {
			return err
		}
	}
	for _, in := range inputs {
		if err := g.AddEdge(newID, in.ID); err != nil {
			return err
		}
	}
	if cyclic, path := g.HasCycle(); cyclic {
		return fmt.Errorf("consume graph cycle through [%s]: %w",
			strings.Join(path, " -> "), model.ErrCycle)
	}
	return nil
}
