package store

import (
	"context"
	"errors"
)

// ErrBackendUnavailable is returned when the underlying storage cannot be reached.
var ErrBackendUnavailable = errors.New("store backend unavailable")

// ErrUnknownScope is returned for a Scope value outside ScopeProfile/ScopeSession.
var ErrUnknownScope = errors.New("unknown store scope")

// Scope selects one of the two physical stores.
type Scope uint8

const (
	// ScopeProfile is the durable, device-scoped store.
	ScopeProfile Scope = iota
	// ScopeSession is the ephemeral, session-scoped store.
	ScopeSession
)

func (s Scope) String() string {
	switch s {
	case ScopeProfile:
		return "profile"
	case ScopeSession:
		return "session"
	default:
		return "unknown"
	}
}

// Persisted key names.
const (
	KeyProfile      = "auth-storage"
	KeyAccessToken  = "access_token"
	KeyTokenExpires = "token_expires"
	KeyRefreshToken = "refresh_token"
)

// Backend is a synchronous string key/value store. Get reports ok=false
// for a missing key; err is reserved for backend failures.
type Backend interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// DualStore routes read/write/delete primitives to the profile or session
// backend. A write has completed when Set returns.
type DualStore struct {
	profile Backend
	session Backend
}

// NewDualStore creates a [DualStore] over the given backends.
func NewDualStore(profile, session Backend) *DualStore {
	return &DualStore{
		profile: profile,
		session: session,
	}
}

func (d *DualStore) backend(scope Scope) (Backend, error) {
	switch scope {
	case ScopeProfile:
		if d.profile == nil {
			return nil, ErrBackendUnavailable
		}
		return d.profile, nil
	case ScopeSession:
		if d.session == nil {
			return nil, ErrBackendUnavailable
		}
		return d.session, nil
	default:
		return nil, ErrUnknownScope
	}
}

// Get reads key from scope.
func (d *DualStore) Get(ctx context.Context, scope Scope, key string) (string, bool, error) {
	b, err := d.backend(scope)
	if err != nil {
		return "", false, err
	}
	return b.Get(ctx, key)
}

// Set writes key in scope.
func (d *DualStore) Set(ctx context.Context, scope Scope, key, value string) error {
	b, err := d.backend(scope)
	if err != nil {
		return err
	}
	return b.Set(ctx, key, value)
}

// Remove deletes key from scope. Removing a missing key is not an error.
func (d *DualStore) Remove(ctx context.Context, scope Scope, key string) error {
	b, err := d.backend(scope)
	if err != nil {
		return err
	}
	return b.Delete(ctx, key)
}
