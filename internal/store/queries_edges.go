package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/featgraph/featgraph/pkg/model"
)

// InsertEdge persists a lineage edge. Inserting an edge that already exists
// is a no-op; an edge to a missing entity is model.ErrDangling.
func (q queries) InsertEdge(ctx context.Context, e model.Edge) error {
	query := q.d.Rebind("INSERT INTO edges (edge_id, from_id, to_id, conn_type) VALUES (?, ?, ?, ?)")
	_, err := q.db.ExecContext(ctx, query, e.ID, e.FromID, e.ToID, string(e.Type))
	if err != nil {
		if q.d.IsUniqueViolation(err) {
			return nil
		}
		if q.d.IsForeignKeyViolation(err) {
			return fmt.Errorf("edge %s-[%s]->%s references a missing entity: %w",
				e.FromID, e.Type, e.ToID, model.ErrDangling)
		}
		return fmt.Errorf("failed to insert edge %s-[%s]->%s: %w", e.FromID, e.Type, e.ToID, err)
	}
	return nil
}

// ListEdgesFrom returns all edges of one type leaving any of the given nodes.
func (q queries) ListEdgesFrom(ctx context.Context, fromIDs []string, t model.RelationshipType) ([]model.Edge, error) {
	if len(fromIDs) == 0 {
		return nil, nil
	}
	query := q.d.Rebind("SELECT edge_id, from_id, to_id, conn_type FROM edges WHERE from_id IN (" +
		placeholders(len(fromIDs)) + ") AND conn_type = ?")
	args := append(toAnySlice(fromIDs), string(t))
	return q.collectEdges(ctx, query, args...)
}

// ListEdgesTo returns all edges of one type arriving at any of the given nodes.
func (q queries) ListEdgesTo(ctx context.Context, toIDs []string, t model.RelationshipType) ([]model.Edge, error) {
	if len(toIDs) == 0 {
		return nil, nil
	}
	query := q.d.Rebind("SELECT edge_id, from_id, to_id, conn_type FROM edges WHERE to_id IN (" +
		placeholders(len(toIDs)) + ") AND conn_type = ?")
	args := append(toAnySlice(toIDs), string(t))
	return q.collectEdges(ctx, query, args...)
}

// ListEdgesByType returns every edge of one type. Used to load the consume
// graph for cycle checks.
func (q queries) ListEdgesByType(ctx context.Context, t model.RelationshipType) ([]model.Edge, error) {
	query := q.d.Rebind("SELECT edge_id, from_id, to_id, conn_type FROM edges WHERE conn_type = ?")
	return q.collectEdges(ctx, query, string(t))
}

// EdgesAmong returns the edges of the given types whose endpoints both lie in
// the given node set.
func (q queries) EdgesAmong(ctx context.Context, ids []string, types []model.RelationshipType) ([]model.Edge, error) {
	if len(ids) == 0 || len(types) == 0 {
		return nil, nil
	}
	in := placeholders(len(ids))
	query := q.d.Rebind("SELECT edge_id, from_id, to_id, conn_type FROM edges WHERE from_id IN (" + in +
		") AND to_id IN (" + in + ") AND conn_type IN (" + placeholders(len(types)) + ")")
	args := append(toAnySlice(ids), toAnySlice(ids)...)
	for _, t := range types {
		args = append(args, string(t))
	}
	return q.collectEdges(ctx, query, args...)
}

// DeleteEdgesTouching removes every edge with the given entity at either end.
func (q queries) DeleteEdgesTouching(ctx context.Context, id string) error {
	query := q.d.Rebind("DELETE FROM edges WHERE from_id = ? OR to_id = ?")
	if _, err := q.db.ExecContext(ctx, query, id, id); err != nil {
		return fmt.Errorf("failed to delete edges of entity %s: %w", id, err)
	}
	return nil
}

func (q queries) collectEdges(ctx context.Context, query string, args ...any) ([]model.Edge, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var edges []model.Edge
	for rows.Next() {
		var (
			e model.Edge
			t string
		)
		if err := rows.Scan(&e.ID, &e.FromID, &e.ToID, &t); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.Type = model.RelationshipType(t)
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Deterministic order for callers that render edge lists.
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.FromID != b.FromID {
			return a.FromID < b.FromID
		}
		if a.ToID != b.ToID {
			return a.ToID < b.ToID
		}
		return a.Type < b.Type
	})
	return edges, nil
}
