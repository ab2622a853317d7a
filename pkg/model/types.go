// Package model defines the shared data model for the feature registry:
// entity and relationship types, lineage edges, role bindings, and the
// domain error taxonomy. It is imported by both the storage layer and the
// registry engine.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EntityType identifies the kind of a registry entity.
type EntityType string

const (
	EntityTypeProject        EntityType = "project"
	EntityTypeSource         EntityType = "source"
	EntityTypeAnchor         EntityType = "anchor"
	EntityTypeAnchorFeature  EntityType = "anchor_feature"
	EntityTypeDerivedFeature EntityType = "derived_feature"
)

// ParseEntityType converts a string into an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	switch EntityType(strings.ToLower(s)) {
	case EntityTypeProject, EntityTypeSource, EntityTypeAnchor,
		EntityTypeAnchorFeature, EntityTypeDerivedFeature:
		return EntityType(strings.ToLower(s)), nil
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// IsFeature reports whether the type is an anchor or derived feature.
func (t EntityType) IsFeature() bool {
	return t == EntityTypeAnchorFeature || t == EntityTypeDerivedFeature
}

// RelationshipType identifies the kind of a lineage edge.
type RelationshipType string

const (
	// RelationshipContains links a container to its members
	// (project -> source/anchor/feature, anchor -> feature).
	RelationshipContains RelationshipType = "Contains"
	// RelationshipBelongsTo is the reverse of Contains.
	RelationshipBelongsTo RelationshipType = "BelongsTo"
	// RelationshipConsumes links a consumer to its input
	// (anchor -> source, derived feature -> input feature).
	RelationshipConsumes RelationshipType = "Consumes"
	// RelationshipProduces is the reverse of Consumes.
	RelationshipProduces RelationshipType = "Produces"
)

// QualifiedNameSeparator joins the segments of a qualified name
// (project__anchor__feature).
const QualifiedNameSeparator = "__"

// QualifiedName builds a qualified name from its segments.
func QualifiedName(segments ...string) string {
	return strings.Join(segments, QualifiedNameSeparator)
}

// ProjectOfQualifiedName returns the project segment of a qualified name.
func ProjectOfQualifiedName(qualifiedName string) string {
	if i := strings.Index(qualifiedName, QualifiedNameSeparator); i >= 0 {
		return qualifiedName[:i]
	}
	return qualifiedName
}

// Entity is a stored registry entity. Attributes holds the type-specific
// payload as JSON; use the typed attribute structs in the registry package
// to decode it.
type Entity struct {
	ID            string          `json:"guid"`
	QualifiedName string          `json:"qualifiedName"`
	Type          EntityType      `json:"typeName"`
	Version       int             `json:"version"`
	Attributes    json.RawMessage `json:"attributes"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	DeletedAt     *time.Time      `json:"deletedAt,omitempty"`
}

// Ref returns a lightweight reference to the entity.
func (e *Entity) Ref() EntityRef {
	return EntityRef{ID: e.ID, Type: e.Type, QualifiedName: e.QualifiedName}
}

// EntityRef is a lightweight reference to an entity.
type EntityRef struct {
	ID            string     `json:"guid"`
	Type          EntityType `json:"typeName"`
	QualifiedName string     `json:"qualifiedName"`
}

// EntityVersion is one audit row of an entity's attribute history.
type EntityVersion struct {
	EntityID   string          `json:"guid"`
	Version    int             `json:"version"`
	Attributes json.RawMessage `json:"attributes"`
	RecordedAt time.Time       `json:"recordedAt"`
}

// Edge is a directed, typed lineage relationship between two entities.
type Edge struct {
	ID     string           `json:"relationshipId"`
	FromID string           `json:"fromEntityId"`
	ToID   string           `json:"toEntityId"`
	Type   RelationshipType `json:"relationshipType"`
}

// UserRole is one role binding of a principal to a project.
// Deleted bindings are retained with the delete_* audit columns set.
type UserRole struct {
	RecordID     int64      `json:"id"`
	Project      string     `json:"scope"`
	User         string     `json:"userName"`
	Role         string     `json:"roleName"`
	CreateBy     string     `json:"createBy"`
	CreateReason string     `json:"createReason"`
	CreateTime   time.Time  `json:"createTime"`
	DeleteBy     *string    `json:"deleteBy,omitempty"`
	DeleteReason *string    `json:"deleteReason,omitempty"`
	DeleteTime   *time.Time `json:"deleteTime,omitempty"`
}

// Active reports whether the binding has not been soft-deleted.
func (u *UserRole) Active() bool { return u.DeleteTime == nil }
