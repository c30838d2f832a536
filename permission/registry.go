package permission

import (
	"errors"
	"fmt"
)

// Wildcard grants every module or permission when present in a table entry.
const Wildcard = "*"

// Registration errors.
var (
	ErrRegistryFrozen = errors.New("permission registry frozen")
	ErrInvalidName    = errors.New("invalid permission name")
)

// Registry assigns each permission name a bit position within a [Mask],
// in registration order.
//
// A Registry is populated by one goroutine and then frozen; after Freeze it
// is read-only and safe for concurrent use.
type Registry struct {
	bits   map[string]int
	names  []string
	frozen bool
}

// NewRegistry creates an empty permission [Registry].
func NewRegistry() *Registry {
	return &Registry{bits: make(map[string]int)}
}

// Register assigns the next bit to name. Registering an existing name
// returns its bit.
func (r *Registry) Register(name string) (int, error) {
	if r.frozen {
		return -1, fmt.Errorf("%w: cannot add %q", ErrRegistryFrozen, name)
	}
	if name == "" || name == Wildcard {
		return -1, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if bit, ok := r.bits[name]; ok {
		return bit, nil
	}
	bit := len(r.names)
	r.bits[name] = bit
	r.names = append(r.names, name)
	return bit, nil
}

// Bit returns the bit index for the named permission.
func (r *Registry) Bit(name string) (int, bool) {
	bit, ok := r.bits[name]
	return bit, ok
}

// Name returns the permission name for bit.
func (r *Registry) Name(bit int) (string, bool) {
	if bit < 0 || bit >= len(r.names) {
		return "", false
	}
	return r.names[bit], true
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() { r.frozen = true }

// Count returns the number of registered permissions.
func (r *Registry) Count() int { return len(r.names) }
