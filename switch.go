package goSession

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/google/uuid"
)

// SwitchBranch optimistically makes branch current, publishes the change,
// then asks the BranchConfirmer. A rejected confirmation restores the
// previous branch and records CodeBranchSwitchFailed.
//
// While any transition is in flight the call fails fast with the matching
// *_IN_PROGRESS code and changes nothing. A branch outside the user's
// branch list fails with CodeBranchNotAccessible. The returned error, if
// any, is also recorded in AuthState.Error. A switch overtaken by a login
// or logout is never applied and returns a CodeBranchSwitchFailed
// "switch abandoned" error that is not recorded in the new session.
func (m *Manager) SwitchBranch(ctx context.Context, branch Branch) *AuthError {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return m.closedError()
	}
	if !m.state.authenticatedAt(m.nowMillis()) {
		m.metrics.Inc(MetricBranchSwitchRejected)
		e := m.failLocked(CodeNotAuthenticated, "branch switch requires a session")
		m.publishLocked()
		m.mu.Unlock()
		return e
	}
	owner, busy, ok := m.slot.acquire(TransitionBranch)
	if !ok {
		m.metrics.Inc(MetricBranchSwitchRejected)
		e := m.failLocked(inProgressCode(busy), "another "+busy.String()+" switch is in progress")
		m.publishLocked()
		m.mu.Unlock()
		return e
	}
	target := cloneBranch(findBranch(m.state.Branches, branch.BranchID))
	if target == nil {
		m.slot.release(owner)
		m.metrics.Inc(MetricBranchSwitchRejected)
		e := m.failLocked(CodeBranchNotAccessible, "branch is not accessible to this user")
		m.publishLocked()
		m.mu.Unlock()
		return e
	}
	gen := m.state.Generation
	m.mu.Unlock()

	var (
		handle     transitionHandle
		confirmErr error
		committed  bool
	)
	deps := flows.SwitchDeps{
		Apply: func() error {
			h, err := m.optimisticSwitch(ctx, owner, TransitionBranch, switchValue{Branch: target}, gen)
			handle = h
			return err
		},
		Rollback: func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.state.Generation != handle.Generation {
				return
			}
			m.rollbackLocked(ctx, handle)
			m.slot.release(owner)
			m.metrics.Inc(MetricBranchSwitchFailure)
			m.logger.Warn().Err(confirmErr).Int64("branch_id", target.BranchID).Msg("branch switch rolled back")
			m.failLocked(CodeBranchSwitchFailed, "branch switch was not confirmed")
			m.emit(ctx, AuditEvent{EventType: AuditBranchSwitch, BranchID: target.BranchID, Success: false, Code: string(CodeBranchSwitchFailed)})
			m.publishLocked()
		},
		Commit: func() {
			committed = m.commitBranch(ctx, handle, owner)
		},
	}
	if m.confirmer != nil {
		deps.Confirm = func(ctx context.Context) error {
			start := time.Now()
			confirmErr = m.confirmer.ConfirmBranch(ctx, target.BranchID)
			m.metrics.Observe(MetricBranchConfirmLatency, time.Since(start))
			return confirmErr
		}
	}

	res := flows.RunSwitch(ctx, deps)
	switch res.Failure {
	case flows.SwitchFailureNone:
		if !committed {
			return m.currentError(CodeBranchSwitchFailed, gen)
		}
		return nil
	case flows.SwitchFailureApply:
		return m.applyFailed(ctx, owner, res.Err)
	default:
		return m.currentError(CodeBranchSwitchFailed, gen)
	}
}

// commitBranch finalises a confirmed switch. It reports false when a login
// or logout replaced the session while the confirmation was in flight.
func (m *Manager) commitBranch(ctx context.Context, h transitionHandle, owner uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Generation != h.Generation {
		m.logger.Info().Msg("discarding stale branch switch confirmation")
		return false
	}
	if m.state.User != nil && h.Next.Branch != nil {
		id := h.Next.Branch.BranchID
		m.state.User.CurrentBranchID = &id
		if err := m.persistProfile(ctx, profileFromState(&m.state)); err != nil {
			m.metrics.Inc(MetricStorageWriteFailure)
			m.logger.Error().Err(err).Msg("profile store write failed")
		}
	}
	m.slot.release(owner)
	m.metrics.Inc(MetricBranchSwitchSuccess)
	m.logger.Info().Int64("branch_id", branchID(h.Next.Branch)).Msg("branch switched")
	m.emit(ctx, AuditEvent{EventType: AuditBranchSwitch, BranchID: branchID(h.Next.Branch), Success: true})
	m.publishLocked()
	return true
}

// applyFailed releases the slot after a failed optimistic write.
func (m *Manager) applyFailed(ctx context.Context, owner uuid.UUID, err error) *AuthError {
	m.mu.Lock()
	defer m.mu.Unlock()
	if errors.Is(err, errStaleTransition) {
		return newAuthError(CodeNotAuthenticated, err.Error(), m.nowMillis())
	}
	m.slot.release(owner)
	m.metrics.Inc(MetricStorageWriteFailure)
	m.logger.Error().Err(err).Msg("optimistic switch store write failed")
	e := m.failLocked(CodeStorageWriteFailed, "could not persist selection")
	m.publishLocked()
	return e
}

// currentError returns the error recorded by a rollback, or a fresh one
// when the rollback was discarded because the session changed.
func (m *Manager) currentError(code ErrorCode, gen uint64) *AuthError {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Generation == gen && m.state.Error != nil && m.state.Error.Code == code {
		return cloneAuthError(m.state.Error)
	}
	return newAuthError(code, "switch abandoned", m.nowMillis())
}

// SwitchAcademicYear makes year the session's active academic year. The
// selection is a client-local preference, so it confirms immediately, but
// it still goes through the same guarded optimistic path as SwitchBranch.
// A year outside AcademicYears (when that list is known) fails with
// CodeAcademicYearUnknown.
func (m *Manager) SwitchAcademicYear(ctx context.Context, year AcademicYear) *AuthError {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return m.closedError()
	}
	owner, busy, ok := m.slot.acquire(TransitionAcademicYear)
	if !ok {
		m.metrics.Inc(MetricAcademicYearSwitchRejected)
		e := m.failLocked(inProgressCode(busy), "another "+busy.String()+" switch is in progress")
		m.publishLocked()
		m.mu.Unlock()
		return e
	}
	target := cloneYear(&year)
	if len(m.state.AcademicYears) > 0 {
		target = nil
		for i := range m.state.AcademicYears {
			if m.state.AcademicYears[i].AcademicYearID == year.AcademicYearID {
				target = cloneYear(&m.state.AcademicYears[i])
				break
			}
		}
	}
	if target == nil {
		m.slot.release(owner)
		m.metrics.Inc(MetricAcademicYearSwitchRejected)
		e := m.failLocked(CodeAcademicYearUnknown, "academic year is not available")
		m.publishLocked()
		m.mu.Unlock()
		return e
	}
	gen := m.state.Generation
	m.mu.Unlock()

	var (
		handle    transitionHandle
		committed bool
	)
	res := flows.RunSwitch(ctx, flows.SwitchDeps{
		Apply: func() error {
			h, err := m.optimisticSwitch(ctx, owner, TransitionAcademicYear, switchValue{Year: target}, gen)
			handle = h
			return err
		},
		Rollback: func() { m.rollback(ctx, handle) },
		Commit: func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.state.Generation != handle.Generation || !m.slot.release(owner) {
				return
			}
			committed = true
			m.metrics.Inc(MetricAcademicYearSwitchSuccess)
			m.emit(ctx, AuditEvent{
				EventType: AuditAcademicYearSwitch,
				Success:   true,
				Metadata:  map[string]string{"academic_year_id": strconv.FormatInt(handle.Next.Year.AcademicYearID, 10)},
			})
			m.publishLocked()
		},
	})
	if res.Failure == flows.SwitchFailureApply {
		return m.applyFailed(ctx, owner, res.Err)
	}
	if !committed {
		return newAuthError(CodeNotAuthenticated, "switch abandoned", m.nowMillis())
	}
	return nil
}
