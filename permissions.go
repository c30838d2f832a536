package goSession

import "github.com/MrEthical07/goSession/permission"

// PermissionEngine evaluates role-derived capability predicates for a user.
// Every predicate returns false for a nil user or nil engine.
type PermissionEngine struct {
	engine *permission.Engine
}

// NewPermissionEngine compiles t. Use permission.DefaultTables for the
// built-in ERP tables.
func NewPermissionEngine(t permission.Tables) (*PermissionEngine, error) {
	e, err := permission.Compile(t)
	if err != nil {
		return nil, err
	}
	return &PermissionEngine{engine: e}, nil
}

// IsAdmin reports whether u has the ADMIN or INSTITUTE_ADMIN role.
func (p *PermissionEngine) IsAdmin(u *User) bool {
	if u == nil {
		return false
	}
	return permission.IsAdminRole(u.Role)
}

// CanAccessModule consults the module table, then the legacy module table
// when the first has no entry for module.
func (p *PermissionEngine) CanAccessModule(u *User, module string) bool {
	if p == nil || u == nil {
		return false
	}
	return p.engine.CanAccessModule(u.Role, module)
}

// HasPermission consults the role table, then the legacy role table when
// the first has no entry for the user's role.
func (p *PermissionEngine) HasPermission(u *User, perm string) bool {
	if p == nil || u == nil {
		return false
	}
	return p.engine.HasPermission(u.Role, perm)
}

// IsAdmin evaluates the predicate for the current user. Like the other
// Manager predicates it is false without a live session.
func (m *Manager) IsAdmin() bool {
	return m.perms.IsAdmin(m.currentUser())
}

// CanAccessModule evaluates the predicate for the current user.
func (m *Manager) CanAccessModule(module string) bool {
	return m.perms.CanAccessModule(m.currentUser(), module)
}

// HasPermission evaluates the predicate for the current user.
func (m *Manager) HasPermission(perm string) bool {
	return m.perms.HasPermission(m.currentUser(), perm)
}

// currentUser returns the user of a live session. An expired token yields
// nil even before CheckSession clears it.
func (m *Manager) currentUser() *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.authenticatedAt(m.nowMillis()) {
		return nil
	}
	return cloneUser(m.state.User)
}
