package permission

import "errors"

type decision uint8

const (
	noOpinion decision = iota
	allow
	deny
)

// moduleTable maps module key to the normalized roles allowed to open it.
type moduleTable struct {
	entries map[string]map[string]struct{}
}

func compileModules(src map[string][]string) (*moduleTable, error) {
	t := &moduleTable{entries: make(map[string]map[string]struct{}, len(src))}
	for module, roles := range src {
		if module == "" {
			return nil, errors.New("module key empty")
		}
		set := make(map[string]struct{}, len(roles))
		for _, r := range roles {
			if r == Wildcard {
				set[Wildcard] = struct{}{}
				continue
			}
			set[NormalizeRole(r)] = struct{}{}
		}
		t.entries[module] = set
	}
	return t, nil
}

func (t *moduleTable) decide(role, module string) decision {
	if t == nil {
		return noOpinion
	}
	set, ok := t.entries[module]
	if !ok {
		return noOpinion
	}
	if _, ok := set[Wildcard]; ok {
		return allow
	}
	if _, ok := set[NormalizeRole(role)]; ok {
		return allow
	}
	return deny
}

func decideRole(rs *RoleSet, registry *Registry, role, perm string) decision {
	mask, ok := rs.Mask(role)
	if !ok {
		return noOpinion
	}
	if mask.All() {
		return allow
	}
	bit, ok := registry.Bit(perm)
	if ok && mask.Has(bit) {
		return allow
	}
	return deny
}

// Engine answers capability predicates from compiled [Tables]. It is safe
// for concurrent use.
type Engine struct {
	registry      *Registry
	roles         *RoleSet
	legacyRoles   *RoleSet
	modules       *moduleTable
	legacyModules *moduleTable
}

// Compile builds an [Engine] from t. Every permission key named by either
// role table is registered in a single shared registry.
func Compile(t Tables) (*Engine, error) {
	registry := NewRegistry()
	for _, table := range []map[string][]string{t.Roles, t.LegacyRoles} {
		for _, perms := range table {
			for _, p := range perms {
				if p == Wildcard {
					continue
				}
				if _, err := registry.Register(p); err != nil {
					return nil, err
				}
			}
		}
	}
	registry.Freeze()

	roles := NewRoleSet(registry)
	for role, perms := range t.Roles {
		if err := roles.RegisterRole(role, perms); err != nil {
			return nil, err
		}
	}
	roles.Freeze()

	legacyRoles := NewRoleSet(registry)
	for role, perms := range t.LegacyRoles {
		if err := legacyRoles.RegisterRole(role, perms); err != nil {
			return nil, err
		}
	}
	legacyRoles.Freeze()

	modules, err := compileModules(t.Modules)
	if err != nil {
		return nil, err
	}
	legacyModules, err := compileModules(t.LegacyModules)
	if err != nil {
		return nil, err
	}

	return &Engine{
		registry:      registry,
		roles:         roles,
		legacyRoles:   legacyRoles,
		modules:       modules,
		legacyModules: legacyModules,
	}, nil
}

// IsAdminRole reports whether role is ADMIN or INSTITUTE_ADMIN.
func IsAdminRole(role string) bool {
	switch NormalizeRole(role) {
	case RoleAdmin, RoleInstituteAdmin:
		return true
	default:
		return false
	}
}

// CanAccessModule reports whether role may open module. Unknown modules are denied.
func (e *Engine) CanAccessModule(role, module string) bool {
	if e == nil || NormalizeRole(role) == "" {
		return false
	}
	switch e.modules.decide(role, module) {
	case allow:
		return true
	case deny:
		return false
	}
	return e.legacyModules.decide(role, module) == allow
}

// HasPermission reports whether role holds perm.
func (e *Engine) HasPermission(role, perm string) bool {
	if e == nil || NormalizeRole(role) == "" {
		return false
	}
	switch decideRole(e.roles, e.registry, role, perm) {
	case allow:
		return true
	case deny:
		return false
	}
	return decideRole(e.legacyRoles, e.registry, role, perm) == allow
}

// Permissions lists the registered permission keys granted to role, in bit order.
func (e *Engine) Permissions(role string) []string {
	if e == nil {
		return nil
	}
	mask, ok := e.roles.Mask(role)
	if !ok {
		mask, ok = e.legacyRoles.Mask(role)
		if !ok {
			return nil
		}
	}
	out := make([]string, 0, e.registry.Count())
	for bit := 0; bit < e.registry.Count(); bit++ {
		if mask.Has(bit) {
			name, _ := e.registry.Name(bit)
			out = append(out, name)
		}
	}
	return out
}
