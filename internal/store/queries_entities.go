package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/featgraph/featgraph/pkg/model"
)

const entityColumns = "entity_id, qualified_name, entity_type, attributes, version, created_at, updated_at, deleted_at"

// InsertEntity persists a new entity together with its version-1 audit row.
// A qualified-name collision surfaces as model.ErrConflict; the caller decides
// whether the existing row satisfies the request.
func (q queries) InsertEntity(ctx context.Context, e *model.Entity) error {
	query := q.d.Rebind(`INSERT INTO entities
		(entity_id, qualified_name, entity_type, attributes, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := q.db.ExecContext(ctx, query,
		e.ID, e.QualifiedName, string(e.Type), string(e.Attributes), e.Version, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if q.d.IsUniqueViolation(err) {
			return fmt.Errorf("entity %q already exists: %w", e.QualifiedName, model.ErrConflict)
		}
		return fmt.Errorf("failed to insert entity %q: %w", e.QualifiedName, err)
	}
	return q.insertVersionRow(ctx, e.ID, e.Version, e.Attributes, e.CreatedAt)
}

func (q queries) insertVersionRow(ctx context.Context, id string, version int, attrs json.RawMessage, at time.Time) error {
	query := q.d.Rebind(`INSERT INTO entity_versions (entity_id, version, attributes, recorded_at)
		VALUES (?, ?, ?, ?)`)
	if _, err := q.db.ExecContext(ctx, query, id, version, string(attrs), at); err != nil {
		return fmt.Errorf("failed to record version %d of entity %s: %w", version, id, err)
	}
	return nil
}

// GetEntityByID fetches a live entity by id.
func (q queries) GetEntityByID(ctx context.Context, id string) (*model.Entity, error) {
	query := q.d.Rebind("SELECT " + entityColumns + " FROM entities WHERE entity_id = ? AND deleted_at IS NULL")
	return scanEntity(q.db.QueryRowContext(ctx, query, id))
}

// GetEntityByName fetches a live entity by qualified name.
func (q queries) GetEntityByName(ctx context.Context, qualifiedName string) (*model.Entity, error) {
	query := q.d.Rebind("SELECT " + entityColumns + " FROM entities WHERE qualified_name = ? AND deleted_at IS NULL")
	return scanEntity(q.db.QueryRowContext(ctx, query, qualifiedName))
}

// GetEntities fetches live entities for a set of ids. Missing ids are simply
// absent from the result.
func (q queries) GetEntities(ctx context.Context, ids []string) ([]model.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := q.d.Rebind("SELECT " + entityColumns + " FROM entities WHERE entity_id IN (" +
		placeholders(len(ids)) + ") AND deleted_at IS NULL ORDER BY qualified_name")
	rows, err := q.db.QueryContext(ctx, query, toAnySlice(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	return collectEntities(rows)
}

// ListEntityRefsByType lists references to all live entities of one type.
func (q queries) ListEntityRefsByType(ctx context.Context, t model.EntityType) ([]model.EntityRef, error) {
	query := q.d.Rebind(`SELECT entity_id, entity_type, qualified_name FROM entities
		WHERE entity_type = ? AND deleted_at IS NULL ORDER BY qualified_name`)
	rows, err := q.db.QueryContext(ctx, query, string(t))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s entities: %w", t, err)
	}
	defer rows.Close()

	var refs []model.EntityRef
	for rows.Next() {
		var r model.EntityRef
		if err := rows.Scan(&r.ID, &r.Type, &r.QualifiedName); err != nil {
			return nil, fmt.Errorf("failed to scan entity ref: %w", err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// UpdateEntityAttributes replaces an entity's attribute payload, bumps its
// version, and appends an audit row. Returns the new version.
func (q queries) UpdateEntityAttributes(ctx context.Context, id string, attrs json.RawMessage, now time.Time) (int, error) {
	query := q.d.Rebind(`UPDATE entities SET attributes = ?, version = version + 1, updated_at = ?
		WHERE entity_id = ? AND deleted_at IS NULL`)
	res, err := q.db.ExecContext(ctx, query, string(attrs), now, id)
	if err != nil {
		return 0, fmt.Errorf("failed to update entity %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to update entity %s: %w", id, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("entity %s: %w", id, model.ErrNotFound)
	}

	var version int
	verQuery := q.d.Rebind("SELECT version FROM entities WHERE entity_id = ?")
	if err := q.db.QueryRowContext(ctx, verQuery, id).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read version of entity %s: %w", id, err)
	}
	if err := q.insertVersionRow(ctx, id, version, attrs, now); err != nil {
		return 0, err
	}
	return version, nil
}

// SoftDeleteEntity marks an entity deleted. The row is retained so the
// qualified name can never be reused with a different definition.
func (q queries) SoftDeleteEntity(ctx context.Context, id string, now time.Time) error {
	query := q.d.Rebind("UPDATE entities SET deleted_at = ?, updated_at = ? WHERE entity_id = ? AND deleted_at IS NULL")
	res, err := q.db.ExecContext(ctx, query, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete entity %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete entity %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("entity %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// SearchEntities finds live entities whose qualified name contains keyword
// (case-insensitive). Results can be narrowed to a set of types and to the
// members of one project, and are paginated in qualified-name order.
func (q queries) SearchEntities(ctx context.Context, keyword string, types []model.EntityType, projectID string, limit, offset int) ([]model.EntityRef, error) {
	var b strings.Builder
	b.WriteString(`SELECT e.entity_id, e.entity_type, e.qualified_name FROM entities e
		WHERE e.deleted_at IS NULL AND LOWER(e.qualified_name) LIKE ?`)
	args := []any{"%" + strings.ToLower(keyword) + "%"}

	if len(types) > 0 {
		b.WriteString(" AND e.entity_type IN (" + placeholders(len(types)) + ")")
		for _, t := range types {
			args = append(args, string(t))
		}
	}
	if projectID != "" {
		b.WriteString(` AND (e.entity_id = ? OR EXISTS (
			SELECT 1 FROM edges g WHERE g.from_id = ? AND g.to_id = e.entity_id AND g.conn_type = ?))`)
		args = append(args, projectID, projectID, string(model.RelationshipContains))
	}
	b.WriteString(" ORDER BY e.qualified_name")
	if limit > 0 {
		b.WriteString(q.d.LimitOffset(limit, offset))
	}

	rows, err := q.db.QueryContext(ctx, q.d.Rebind(b.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search entities: %w", err)
	}
	defer rows.Close()

	var refs []model.EntityRef
	for rows.Next() {
		var r model.EntityRef
		if err := rows.Scan(&r.ID, &r.Type, &r.QualifiedName); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// ListEntityVersions returns the attribute history of an entity, oldest first.
func (q queries) ListEntityVersions(ctx context.Context, id string) ([]model.EntityVersion, error) {
	query := q.d.Rebind(`SELECT entity_id, version, attributes, recorded_at FROM entity_versions
		WHERE entity_id = ? ORDER BY version`)
	rows, err := q.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions of entity %s: %w", id, err)
	}
	defer rows.Close()

	var versions []model.EntityVersion
	for rows.Next() {
		var (
			v     model.EntityVersion
			attrs string
		)
		if err := rows.Scan(&v.EntityID, &v.Version, &attrs, &v.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entity version: %w", err)
		}
		v.Attributes = json.RawMessage(attrs)
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*model.Entity, error) {
	var (
		e         model.Entity
		attrs     string
		deletedAt sql.NullTime
	)
	err := row.Scan(&e.ID, &e.QualifiedName, &e.Type, &attrs, &e.Version, &e.CreatedAt, &e.UpdatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan entity: %w", err)
	}
	e.Attributes = json.RawMessage(attrs)
	if deletedAt.Valid {
		t := deletedAt.Time
		e.DeletedAt = &t
	}
	return &e, nil
}

func collectEntities(rows *sql.Rows) ([]model.Entity, error) {
	defer rows.Close()
	var entities []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, *e)
	}
	return entities, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
