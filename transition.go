package goSession

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var errStaleTransition = errors.New("transition superseded by login or logout")

// switchValue is the part of the state a transition replaces.
type switchValue struct {
	Branch *Branch
	Year   *AcademicYear
}

// transitionHandle is the snapshot taken by optimisticSwitch. Prev is an
// independent copy, so rollback restores exactly the pre-switch value.
type transitionHandle struct {
	ID         uuid.UUID
	Kind       TransitionKind
	Prev       switchValue
	Next       switchValue
	Generation uint64
}

func (m *Manager) readValueLocked(kind TransitionKind) switchValue {
	switch kind {
	case TransitionBranch:
		return switchValue{Branch: cloneBranch(m.state.CurrentBranch)}
	case TransitionAcademicYear:
		return switchValue{Year: cloneYear(m.state.AcademicYear)}
	default:
		return switchValue{}
	}
}

func (m *Manager) writeValueLocked(kind TransitionKind, v switchValue) {
	switch kind {
	case TransitionBranch:
		m.state.CurrentBranch = cloneBranch(v.Branch)
	case TransitionAcademicYear:
		m.state.AcademicYear = cloneYear(v.Year)
	}
}

// optimisticSwitch writes next into memory and the profile store and
// publishes it. It performs no other I/O and makes no policy decisions. If
// the store write fails the state is left as it was.
func (m *Manager) optimisticSwitch(ctx context.Context, id uuid.UUID, kind TransitionKind, next switchValue, gen uint64) (transitionHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Generation != gen {
		return transitionHandle{}, errStaleTransition
	}

	h := transitionHandle{
		ID:         id,
		Kind:       kind,
		Prev:       m.readValueLocked(kind),
		Next:       next,
		Generation: gen,
	}

	m.writeValueLocked(kind, next)
	if err := m.persistProfile(ctx, profileFromState(&m.state)); err != nil {
		m.writeValueLocked(kind, h.Prev)
		return transitionHandle{}, err
	}
	m.publishLocked()
	return h, nil
}

// rollbackLocked restores h.Prev into memory and the profile store.
func (m *Manager) rollbackLocked(ctx context.Context, h transitionHandle) {
	m.writeValueLocked(h.Kind, h.Prev)
	if err := m.persistProfile(ctx, profileFromState(&m.state)); err != nil {
		m.metrics.Inc(MetricStorageWriteFailure)
		m.logger.Error().Err(err).Str("kind", h.Kind.String()).Msg("rollback store write failed")
	}
}

// rollback is the locking form of rollbackLocked. Handles from a previous
// generation are ignored.
func (m *Manager) rollback(ctx context.Context, h transitionHandle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Generation != h.Generation {
		return false
	}
	m.rollbackLocked(ctx, h)
	m.publishLocked()
	return true
}
