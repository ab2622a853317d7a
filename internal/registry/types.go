package registry

import (
	"encoding/json"
	"fmt"

	"github.com/featgraph/featgraph/pkg/model"
)

// FeatureType describes the value a feature produces.
type FeatureType struct {
	Type           string   `json:"type"`
	TensorCategory string   `json:"tensorCategory"`
	DimensionType  []string `json:"dimensionType"`
	ValType        string   `json:"valType"`
}

// TypedKey identifies the join key column(s) a feature is computed against.
type TypedKey struct {
	KeyColumn      string `json:"keyColumn"`
	KeyColumnType  string `json:"keyColumnType"`
	FullName       string `json:"fullName,omitempty"`
	Description    string `json:"description,omitempty"`
	KeyColumnAlias string `json:"keyColumnAlias,omitempty"`
}

// Transformation describes how a feature value is computed. Exactly one of
// the expression, window-aggregation, or UDF forms is populated.
type Transformation struct {
	TransformExpr string `json:"transformExpr,omitempty"`
	DefExpr       string `json:"defExpr,omitempty"`
	AggFunc       string `json:"aggFunc,omitempty"`
	Window        string `json:"window,omitempty"`
	GroupBy       string `json:"groupBy,omitempty"`
	Filter        string `json:"filter,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	Name          string `json:"name,omitempty"`
}

// ProjectDef is the request payload for creating a project.
type ProjectDef struct {
	Name string            `json:"name"`
	Tags map[string]string `json:"tags,omitempty"`
}

// SourceDef is the request payload for registering a data source.
type SourceDef struct {
	Name                 string            `json:"name"`
	Type                 string            `json:"type"`
	Path                 string            `json:"path,omitempty"`
	Options              map[string]string `json:"options,omitempty"`
	Preprocessing        string            `json:"preprocessing,omitempty"`
	EventTimestampColumn string            `json:"eventTimestampColumn,omitempty"`
	TimestampFormat      string            `json:"timestampFormat,omitempty"`
	Tags                 map[string]string `json:"tags,omitempty"`
}

// AnchorDef is the request payload for creating an anchor.
type AnchorDef struct {
	Name     string            `json:"name"`
	SourceID string            `json:"sourceId"`
	Tags     map[string]string `json:"tags,omitempty"`
}

// AnchorFeatureDef is the request payload for registering an anchor feature.
type AnchorFeatureDef struct {
	Name           string            `json:"name"`
	FeatureType    FeatureType       `json:"featureType"`
	Transformation Transformation    `json:"transformation"`
	Key            []TypedKey        `json:"key,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
}

// DerivedFeatureDef is the request payload for registering a derived feature.
// Input features are referenced by id or qualified name.
type DerivedFeatureDef struct {
	Name                 string            `json:"name"`
	FeatureType          FeatureType       `json:"featureType"`
	Transformation       Transformation    `json:"transformation"`
	Key                  []TypedKey        `json:"key,omitempty"`
	InputAnchorFeatures  []string          `json:"inputAnchorFeatures,omitempty"`
	InputDerivedFeatures []string          `json:"inputDerivedFeatures,omitempty"`
	Tags                 map[string]string `json:"tags,omitempty"`
}

// Attribute payloads stored in entities.attributes. The fill step adds the
// derived fields (children, source, inputFeatures) that are reconstructed
// from edges, not stored.

type ProjectAttributes struct {
	QualifiedName string            `json:"qualifiedName"`
	Name          string            `json:"name"`
	Tags          map[string]string `json:"tags,omitempty"`
}

type SourceAttributes struct {
	QualifiedName        string            `json:"qualifiedName"`
	Name                 string            `json:"name"`
	Type                 string            `json:"type"`
	Path                 string            `json:"path,omitempty"`
	Options              map[string]string `json:"options,omitempty"`
	Preprocessing        string            `json:"preprocessing,omitempty"`
	EventTimestampColumn string            `json:"eventTimestampColumn,omitempty"`
	TimestampFormat      string            `json:"timestampFormat,omitempty"`
	Tags                 map[string]string `json:"tags,omitempty"`
}

type AnchorAttributes struct {
	QualifiedName string            `json:"qualifiedName"`
	Name          string            `json:"name"`
	Source        *model.EntityRef  `json:"source,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

type AnchorFeatureAttributes struct {
	QualifiedName  string            `json:"qualifiedName"`
	Name           string            `json:"name"`
	Type           FeatureType       `json:"type"`
	Transformation Transformation    `json:"transformation"`
	Key            []TypedKey        `json:"key,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
}

type DerivedFeatureAttributes struct {
	QualifiedName  string            `json:"qualifiedName"`
	Name           string            `json:"name"`
	Type           FeatureType       `json:"type"`
	Transformation Transformation    `json:"transformation"`
	Key            []TypedKey        `json:"key,omitempty"`
	InputFeatures  []model.EntityRef `json:"inputFeatures,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
}

func (d ProjectDef) attributes() ProjectAttributes {
	return ProjectAttributes{QualifiedName: d.Name, Name: d.Name, Tags: d.Tags}
}

func (d SourceDef) attributes(qualifiedName string) SourceAttributes {
	return SourceAttributes{
		QualifiedName:        qualifiedName,
		Name:                 d.Name,
		Type:                 d.Type,
		Path:                 d.Path,
		Options:              d.Options,
		Preprocessing:        d.Preprocessing,
		EventTimestampColumn: d.EventTimestampColumn,
		TimestampFormat:      d.TimestampFormat,
		Tags:                 d.Tags,
	}
}

func (d AnchorDef) attributes(qualifiedName string, source model.EntityRef) AnchorAttributes {
	return AnchorAttributes{QualifiedName: qualifiedName, Name: d.Name, Source: &source, Tags: d.Tags}
}

func (d AnchorFeatureDef) attributes(qualifiedName string) AnchorFeatureAttributes {
	return AnchorFeatureAttributes{
		QualifiedName:  qualifiedName,
		Name:           d.Name,
		Type:           d.FeatureType,
		Transformation: d.Transformation,
		Key:            d.Key,
		Tags:           d.Tags,
	}
}

func (d DerivedFeatureDef) attributes(qualifiedName string, inputs []model.EntityRef) DerivedFeatureAttributes {
	return DerivedFeatureAttributes{
		QualifiedName:  qualifiedName,
		Name:           d.Name,
		Type:           d.FeatureType,
		Transformation: d.Transformation,
		Key:            d.Key,
		InputFeatures:  inputs,
		Tags:           d.Tags,
	}
}

func marshalAttributes(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attributes: %w", err)
	}
	return b, nil
}

// EntitiesAndRelations is the traversal result shape shared by lineage and
// project queries: the touched entities keyed by id, plus the edges walked.
type EntitiesAndRelations struct {
	Entities map[string]model.Entity `json:"guidEntityMap"`
	Edges    []model.Edge            `json:"relations"`
}

func newEntitiesAndRelations(entities []model.Entity, edges []model.Edge) *EntitiesAndRelations {
	m := make(map[string]model.Entity, len(entities))
	for _, e := range entities {
		m[e.ID] = e
	}
	if edges == nil {
		edges = []model.Edge{}
	}
	return &EntitiesAndRelations{Entities: m, Edges: edges}
}
