// Package rbac implements the role-based access gate: store-backed role
// bindings, principal resolution from bearer tokens, and a middleware that
// authorizes each request before it reaches the registry.
package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/featgraph/featgraph/internal/store"
	"github.com/featgraph/featgraph/pkg/model"
)

// Access is one capability a role grants.
type Access string

const (
	AccessRead   Access = "read"
	AccessWrite  Access = "write"
	AccessManage Access = "manage"
)

// Role is a named bundle of accesses bindable to a principal and project.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleProducer Role = "producer"
	RoleConsumer Role = "consumer"
)

var roleAccess = map[Role][]Access{
	RoleAdmin:    {AccessRead, AccessWrite, AccessManage},
	RoleProducer: {AccessRead, AccessWrite},
	RoleConsumer: {AccessRead},
}

// ParseRole converts a string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(s))
	if _, ok := roleAccess[r]; !ok {
		return "", fmt.Errorf("unknown role %q: %w", s, model.ErrInvalid)
	}
	return r, nil
}

// Grants reports whether the role includes the given access.
func (r Role) Grants(a Access) bool {
	for _, g := range roleAccess[r] {
		if g == a {
			return true
		}
	}
	return false
}

// SuperAdminScope is the project scope whose bindings apply to every project.
const SuperAdminScope = "global"

// Manager evaluates and maintains role bindings. Bindings are always read
// from the database so multiple instances stay consistent.
type Manager struct {
	store  *store.SQLStore
	logger *slog.Logger
}

// NewManager wraps an opened store.
func NewManager(s *store.SQLStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: s, logger: logger}
}

// EnsureDefaultAdmin seeds the first global admin if the user has no binding
// yet. An empty user name is a no-op.
func (m *Manager) EnsureDefaultAdmin(ctx context.Context, user string) error {
	if user == "" {
		return nil
	}
	user = strings.ToLower(user)
	existing, err := m.store.ListUserRolesByUser(ctx, user)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	err = m.store.InsertUserRole(ctx, &model.UserRole{
		Project:      SuperAdminScope,
		User:         user,
		Role:         string(RoleAdmin),
		CreateBy:     "system",
		CreateReason: "initial global admin",
		CreateTime:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	m.logger.Info("seeded default global admin", "user", user)
	return nil
}

// Validate reports whether the user holds the given access on the project,
// either directly or through the global scope. No binding means deny.
func (m *Manager) Validate(ctx context.Context, project, user string, access Access) (bool, error) {
	bindings, err := m.store.ListUserRolesByUser(ctx, strings.ToLower(user))
	if err != nil {
		return false, err
	}
	project = strings.ToLower(project)
	for _, b := range bindings {
		if b.Project != project && b.Project != SuperAdminScope {
			continue
		}
		if Role(b.Role).Grants(access) {
			return true, nil
		}
	}
	return false, nil
}

// AddRole binds a role to a user on a project. Re-adding an identical active
// binding is a no-op.
func (m *Manager) AddRole(ctx context.Context, project, user, role, reason, by string) error {
	r, err := ParseRole(role)
	if err != nil {
		return err
	}
	project = strings.ToLower(project)
	user = strings.ToLower(user)

	existing, err := m.store.ListUserRolesByUser(ctx, user)
	if err != nil {
		return err
	}
	for _, b := range existing {
		if b.Project == project && b.Role == string(r) {
			m.logger.Warn("user already holds role", "user", user, "role", r, "project", project)
			return nil
		}
	}
	return m.store.InsertUserRole(ctx, &model.UserRole{
		Project:      project,
		User:         user,
		Role:         string(r),
		CreateBy:     by,
		CreateReason: reason,
		CreateTime:   time.Now().UTC(),
	})
}

// DeleteRole soft-deletes an active binding, keeping it for audit.
func (m *Manager) DeleteRole(ctx context.Context, project, user, role, reason, by string) error {
	r, err := ParseRole(role)
	if err != nil {
		return err
	}
	n, err := m.store.SoftDeleteUserRole(ctx, strings.ToLower(project), strings.ToLower(user),
		string(r), by, reason, time.Now().UTC())
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no active %s binding for %s on %s: %w", r, user, project, model.ErrNotFound)
	}
	return nil
}

// InitProjectAdmin makes the creator of a new project its admin. Projects
// that already have bindings are left alone; the global scope name is
// reserved.
func (m *Manager) InitProjectAdmin(ctx context.Context, creator, project string) error {
	project = strings.ToLower(project)
	if project == SuperAdminScope {
		return fmt.Errorf("%s is reserved for global admins: %w", SuperAdminScope, model.ErrInvalid)
	}
	existing, err := m.store.ListUserRolesByProject(ctx, project)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	return m.store.InsertUserRole(ctx, &model.UserRole{
		Project:      project,
		User:         strings.ToLower(creator),
		Role:         string(RoleAdmin),
		CreateBy:     "system",
		CreateReason: "creator of project, admin by default",
		CreateTime:   time.Now().UTC(),
	})
}

// ListRoles returns the bindings the user is allowed to see: everything for
// a global admin, otherwise the bindings of every project the user
// administers.
func (m *Manager) ListRoles(ctx context.Context, user string) ([]model.UserRole, error) {
	user = strings.ToLower(user)
	mine, err := m.store.ListUserRolesByUser(ctx, user)
	if err != nil {
		return nil, err
	}
	for _, b := range mine {
		if b.Project == SuperAdminScope && b.Role == string(RoleAdmin) {
			return m.store.ListUserRoles(ctx, true)
		}
	}
	var out []model.UserRole
	for _, b := range mine {
		if b.Role != string(RoleAdmin) {
			continue
		}
		project, err := m.store.ListUserRolesByProject(ctx, b.Project)
		if err != nil {
			return nil, err
		}
		out = append(out, project...)
	}
	return out, nil
}
