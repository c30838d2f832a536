package permission

import (
	"errors"
	"strings"
	"sync"
)

// RoleSet holds one compiled [Mask] per role.
type RoleSet struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[string]*Mask
	frozen bool
}

// NewRoleSet creates an empty [RoleSet] resolving names through registry.
func NewRoleSet(registry *Registry) *RoleSet {
	return &RoleSet{
		registry: registry,
		roles:    make(map[string]*Mask),
	}
}

// RegisterRole compiles permissionNames into a mask for roleName. Every
// name must already be registered, except [Wildcard].
func (rs *RoleSet) RegisterRole(roleName string, permissionNames []string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.frozen {
		return errors.New("role set frozen")
	}

	key := NormalizeRole(roleName)
	if key == "" {
		return errors.New("role name empty")
	}
	if _, exists := rs.roles[key]; exists {
		return errors.New("role already registered: " + key)
	}

	mask := &Mask{}
	for _, perm := range permissionNames {
		if perm == Wildcard {
			mask.SetAll()
			continue
		}
		bit, ok := rs.registry.Bit(perm)
		if !ok {
			return errors.New("permission not registered: " + perm)
		}
		mask.Set(bit)
	}

	rs.roles[key] = mask
	return nil
}

// Mask returns the compiled mask for roleName.
func (rs *RoleSet) Mask(roleName string) (*Mask, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	m, ok := rs.roles[NormalizeRole(roleName)]
	return m, ok
}

// Freeze prevents further registrations.
func (rs *RoleSet) Freeze() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.frozen = true
}

// Count returns the number of registered roles.
func (rs *RoleSet) Count() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.roles)
}

// NormalizeRole trims and upper-cases a role name.
func NormalizeRole(role string) string {
	return strings.ToUpper(strings.TrimSpace(role))
}
