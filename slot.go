package goSession

import "github.com/google/uuid"

// TransitionKind names the transition holding the slot.
type TransitionKind uint8

const (
	TransitionIdle TransitionKind = iota
	TransitionBranch
	TransitionAcademicYear
	TransitionTokenRefresh
)

func (k TransitionKind) String() string {
	switch k {
	case TransitionBranch:
		return "branch"
	case TransitionAcademicYear:
		return "academic_year"
	case TransitionTokenRefresh:
		return "token_refresh"
	default:
		return "idle"
	}
}

// transitionSlot admits at most one in-flight transition of any kind.
// It is guarded by Manager.mu.
type transitionSlot struct {
	kind  TransitionKind
	owner uuid.UUID
}

// acquire claims the slot for kind. When the slot is busy it returns the
// kind that holds it and ok=false.
func (s *transitionSlot) acquire(kind TransitionKind) (owner uuid.UUID, busy TransitionKind, ok bool) {
	if s.kind != TransitionIdle {
		return uuid.Nil, s.kind, false
	}
	s.kind = kind
	s.owner = uuid.New()
	return s.owner, TransitionIdle, true
}

// release frees the slot only if owner still holds it. A logout resets the
// slot, so a late completion must not free a slot it no longer owns.
func (s *transitionSlot) release(owner uuid.UUID) bool {
	if s.kind == TransitionIdle || s.owner != owner {
		return false
	}
	s.kind = TransitionIdle
	s.owner = uuid.Nil
	return true
}

func (s *transitionSlot) reset() {
	s.kind = TransitionIdle
	s.owner = uuid.Nil
}
