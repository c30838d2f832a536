package goSession

import (
	"context"
	"strconv"

	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/store"
)

// persistedSession is what the session scope held at startup.
type persistedSession struct {
	Token        string
	ExpireAt     int64
	HasExpireAt  bool
	RefreshToken string
}

// readProfile loads the profile envelope. Read errors and corrupt fields
// are reported through the corrupt count and never returned.
func (m *Manager) readProfile(ctx context.Context) (p persistedProfile, raw string, corrupt int) {
	raw, ok, err := m.store.Get(ctx, store.ScopeProfile, store.KeyProfile)
	if err != nil {
		m.logger.Warn().Err(err).Msg("profile store read failed; treating as absent")
		return persistedProfile{}, "", 1
	}
	if !ok {
		return persistedProfile{}, "", 0
	}
	p, corrupt = decodeProfile(raw)
	return p, raw, corrupt
}

func (m *Manager) readSession(ctx context.Context) (s persistedSession, corrupt int) {
	get := func(key string) string {
		v, ok, err := m.store.Get(ctx, store.ScopeSession, key)
		if err != nil {
			m.logger.Warn().Err(err).Str("key", key).Msg("session store read failed; treating as absent")
			corrupt++
			return ""
		}
		if !ok {
			return ""
		}
		return v
	}

	s.Token = get(store.KeyAccessToken)
	s.RefreshToken = get(store.KeyRefreshToken)
	if v := get(store.KeyTokenExpires); v != "" {
		exp, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			corrupt++
		} else {
			s.ExpireAt, s.HasExpireAt = exp, true
		}
	}
	return s, corrupt
}

// rehydrate reconstructs the state from both stores. It runs once, from
// Build, before the Manager is visible to any subscriber, and never fails.
func (m *Manager) rehydrate(ctx context.Context) flows.RehydrateResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	prof, raw, profCorrupt := m.readProfile(ctx)
	sess, sessCorrupt := m.readSession(ctx)
	corrupt := profCorrupt + sessCorrupt

	res := flows.RunRehydrate(flows.RehydrateInput{
		Now:         m.nowMillis(),
		Token:       sess.Token,
		ExpireAt:    sess.ExpireAt,
		HasExpireAt: sess.HasExpireAt,
		HasUser:     prof.User != nil,
		Corrupt:     corrupt > 0,
	}, flows.RehydrateDeps{
		ReparseProfile: func() bool {
			again, ok, err := m.store.Get(ctx, store.ScopeProfile, store.KeyProfile)
			if err != nil || !ok {
				again = raw
			}
			u, found := reparseUser(again)
			if found {
				prof.User = u
			}
			return found
		},
		DeriveExpiry: deriveExpiry,
	})

	m.applyRehydrateLocked(ctx, res, prof, sess, profCorrupt > 0)

	if res.Recovered {
		m.metrics.Inc(MetricStorageRecovered)
		// An expiry recorded by the reconciler outranks the corruption notice.
		if m.state.LastError == nil {
			m.state.LastError = newAuthError(CodeStorageCorruptionRecovered, "corrupt persisted session data was discarded", m.nowMillis())
		}
		m.logger.Warn().Int("fields", corrupt).Msg("recovered from corrupt persisted state")
		m.emit(ctx, AuditEvent{EventType: AuditStorageRecovered, Success: true, Metadata: map[string]string{"fields": strconv.Itoa(corrupt)}})
	}

	m.logger.Info().
		Str("case", res.Case.String()).
		Bool("authenticated", res.Authenticated).
		Bool("user_recovered", res.UserRecovered).
		Msg("rehydrated")
	m.emit(ctx, AuditEvent{EventType: AuditRehydrate, Success: true, Metadata: map[string]string{"case": res.Case.String()}})
	return res
}

func (m *Manager) applyRehydrateLocked(ctx context.Context, res flows.RehydrateResult, prof persistedProfile, sess persistedSession, profileCorrupt bool) {
	rewrite := profileCorrupt

	switch res.Case {
	case flows.RehydrateAuthenticated:
		m.metrics.Inc(MetricRehydrateAuthenticated)
	case flows.RehydrateExpired:
		m.metrics.Inc(MetricRehydrateExpired)
	case flows.RehydrateTokenWithoutUser:
		m.metrics.Inc(MetricRehydrateProfilePending)
	default:
		m.metrics.Inc(MetricRehydrateLoggedOut)
	}

	if res.ClearProfile {
		m.clearStores(ctx)
		m.state = AuthState{}
		if res.Case == flows.RehydrateExpired {
			m.state.LastError = newAuthError(CodeSessionExpired, "session expired", m.nowMillis())
			m.metrics.Inc(MetricSessionExpired)
		}
		return
	}

	if res.KeepProfile {
		if res.ClearIdentity {
			prof.User, prof.Branches, prof.CurrentBranch = nil, nil, nil
			rewrite = true
		}
		if prof.User == nil && res.Case != flows.RehydrateTokenWithoutUser && (prof.Branches != nil || prof.CurrentBranch != nil) {
			prof.Branches, prof.CurrentBranch = nil, nil
			rewrite = true
		}

		current := reconcileCurrentBranch(prof.CurrentBranch, prof.Branches)
		if branchID(current) != branchID(prof.CurrentBranch) {
			rewrite = true
		}
		if res.UserRecovered {
			rewrite = true
		}

		m.state.User = prof.User
		m.state.Branches = prof.Branches
		m.state.CurrentBranch = current
		m.state.AcademicYear = prof.AcademicYear
		m.state.AcademicYears = prof.AcademicYears

		if rewrite {
			if err := m.persistProfile(ctx, profileFromState(&m.state)); err != nil {
				m.metrics.Inc(MetricStorageWriteFailure)
				m.logger.Warn().Err(err).Msg("rewrite profile after rehydration failed")
			}
		}
	}

	if res.KeepToken {
		m.state.Token = TokenState{Token: res.Token, TokenExpireAt: res.ExpireAt, RefreshToken: sess.RefreshToken}
		m.state.PendingProfile = res.Case == flows.RehydrateTokenWithoutUser
		if !sess.HasExpireAt || sess.ExpireAt != res.ExpireAt {
			if err := m.writeSession(ctx, m.state.Token); err != nil {
				m.metrics.Inc(MetricStorageWriteFailure)
				m.logger.Warn().Err(err).Msg("persist derived token expiry failed")
			}
		}
	}

	if res.ClearSession {
		if err := m.clearSession(ctx); err != nil {
			m.metrics.Inc(MetricStorageWriteFailure)
			m.logger.Warn().Err(err).Msg("clear stale session store failed")
		}
	}
}
