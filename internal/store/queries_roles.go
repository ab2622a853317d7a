package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/featgraph/featgraph/pkg/model"
)

const roleColumns = "record_id, project_name, user_name, role_name, create_by, create_reason, create_time, delete_by, delete_reason, delete_time"

// InsertUserRole records a new role binding.
func (q queries) InsertUserRole(ctx context.Context, r *model.UserRole) error {
	query := q.d.Rebind(`INSERT INTO userroles
		(project_name, user_name, role_name, create_by, create_reason, create_time)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := q.db.ExecContext(ctx, query, r.Project, r.User, r.Role, r.CreateBy, r.CreateReason, r.CreateTime)
	if err != nil {
		return fmt.Errorf("failed to add role %s for %s on %s: %w", r.Role, r.User, r.Project, err)
	}
	return nil
}

// SoftDeleteUserRole marks all active bindings matching (project, user, role)
// as deleted and returns how many rows were affected. Deleted rows stay in
// the table as an audit trail.
func (q queries) SoftDeleteUserRole(ctx context.Context, project, user, role, deleteBy, reason string, now time.Time) (int64, error) {
	query := q.d.Rebind(`UPDATE userroles SET delete_by = ?, delete_reason = ?, delete_time = ?
		WHERE project_name = ? AND user_name = ? AND role_name = ? AND delete_time IS NULL`)
	res, err := q.db.ExecContext(ctx, query, deleteBy, reason, now, project, user, role)
	if err != nil {
		return 0, fmt.Errorf("failed to delete role %s for %s on %s: %w", role, user, project, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete role %s for %s on %s: %w", role, user, project, err)
	}
	return n, nil
}

// ListUserRoles returns role bindings, optionally restricted to active ones.
func (q queries) ListUserRoles(ctx context.Context, activeOnly bool) ([]model.UserRole, error) {
	query := "SELECT " + roleColumns + " FROM userroles"
	if activeOnly {
		query += " WHERE delete_time IS NULL"
	}
	query += " ORDER BY record_id"
	return q.collectUserRoles(ctx, q.d.Rebind(query))
}

// ListUserRolesByUser returns the active bindings of one principal.
func (q queries) ListUserRolesByUser(ctx context.Context, user string) ([]model.UserRole, error) {
	query := q.d.Rebind("SELECT " + roleColumns + ` FROM userroles
		WHERE user_name = ? AND delete_time IS NULL ORDER BY record_id`)
	return q.collectUserRoles(ctx, query, user)
}

// ListUserRolesByProject returns the active bindings scoped to one project.
func (q queries) ListUserRolesByProject(ctx context.Context, project string) ([]model.UserRole, error) {
	query := q.d.Rebind("SELECT " + roleColumns + ` FROM userroles
		WHERE project_name = ? AND delete_time IS NULL ORDER BY record_id`)
	return q.collectUserRoles(ctx, query, project)
}

func (q queries) collectUserRoles(ctx context.Context, query string, args ...any) ([]model.UserRole, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query role bindings: %w", err)
	}
	defer rows.Close()

	var roles []model.UserRole
	for rows.Next() {
		var (
			r                      model.UserRole
			createBy, createReason sql.NullString
			deleteBy, deleteReason sql.NullString
			deleteTime             sql.NullTime
		)
		err := rows.Scan(&r.RecordID, &r.Project, &r.User, &r.Role,
			&createBy, &createReason, &r.CreateTime, &deleteBy, &deleteReason, &deleteTime)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role binding: %w", err)
		}
		r.CreateBy = createBy.String
		r.CreateReason = createReason.String
		if deleteBy.Valid {
			r.DeleteBy = &deleteBy.String
		}
		if deleteReason.Valid {
			r.DeleteReason = &deleteReason.String
		}
		if deleteTime.Valid {
			t := deleteTime.Time
			r.DeleteTime = &t
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}
