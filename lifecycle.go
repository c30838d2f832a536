package goSession

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/internal/flows"
)

// Login installs a session from a login response. The profile and session
// scopes are written first; the state becomes authenticated only after both
// writes succeed. Calling Login again overwrites the session.
//
// A token whose expiry is neither supplied nor readable from its exp claim
// is dropped. If a write fails, both stores are cleared and the returned
// error carries CodeStorageWriteFailed.
func (m *Manager) Login(ctx context.Context, in LoginInput) *AuthError {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return m.closedError()
	}

	user := cloneUser(&in.User)
	branches := cloneBranches(in.Branches)
	current := pickBranch(branches, user.CurrentBranchID)
	if current != nil {
		id := current.BranchID
		user.CurrentBranchID = &id
	}

	years := cloneYears(in.AcademicYears)
	if years == nil {
		years = cloneYears(m.state.AcademicYears)
	}

	tok := TokenState{Token: in.Token, TokenExpireAt: in.TokenExpireAt, RefreshToken: in.RefreshToken}
	if tok.Token != "" && tok.TokenExpireAt <= 0 {
		if exp, ok := deriveExpiry(tok.Token); ok {
			tok.TokenExpireAt = exp
		} else {
			m.logger.Warn().Int64("user_id", user.UserID).Msg("login token has no expiry; dropping it")
			tok = TokenState{}
		}
	}

	next := AuthState{
		User:          user,
		Branches:      branches,
		CurrentBranch: current,
		AcademicYear:  chooseYear(m.state.AcademicYear, years),
		AcademicYears: years,
		Token:         tok,
		LastError:     m.state.LastError,
		Generation:    m.state.Generation + 1,
	}

	if err := m.persistProfile(ctx, profileFromState(&next)); err != nil {
		return m.loginWriteFailedLocked(ctx, err)
	}
	if err := m.writeSession(ctx, tok); err != nil {
		return m.loginWriteFailedLocked(ctx, err)
	}

	m.state = next
	m.slot.reset()
	m.metrics.Inc(MetricLogin)
	m.logger.Info().
		Int64("user_id", user.UserID).
		Int("branches", len(branches)).
		Uint64("generation", next.Generation).
		Msg("login")
	m.emit(ctx, AuditEvent{EventType: AuditLogin, Success: true, BranchID: branchID(current)})
	m.publishLocked()
	return nil
}

func (m *Manager) loginWriteFailedLocked(ctx context.Context, err error) *AuthError {
	m.metrics.Inc(MetricStorageWriteFailure)
	m.logger.Error().Err(err).Msg("login store write failed")
	m.terminalClearLocked(ctx)
	e := m.failLocked(CodeStorageWriteFailed, "could not persist session")
	m.emit(ctx, AuditEvent{EventType: AuditLogin, Success: false, Code: string(CodeStorageWriteFailed)})
	m.publishLocked()
	return e
}

// Logout clears both stores and every state field synchronously.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.logoutLocked(ctx, "requested")
}

func (m *Manager) logoutLocked(ctx context.Context, reason string) {
	userID := int64(0)
	if m.state.User != nil {
		userID = m.state.User.UserID
	}
	m.terminalClearLocked(ctx)
	m.metrics.Inc(MetricLogout)
	m.logger.Info().Int64("user_id", userID).Str("reason", reason).Msg("logout")
	m.emit(ctx, AuditEvent{
		EventType: AuditLogout,
		UserID:    userID,
		Success:   true,
		Metadata:  map[string]string{"reason": reason},
	})
	m.publishLocked()
}

// LogoutAsync invalidates the token server-side, then clears like Logout.
// Invalidation failures are logged and do not prevent the local teardown.
// In-flight refreshes and switches are discarded from the moment it is called.
func (m *Manager) LogoutAsync(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.invalidator == nil || m.state.Token.Token == "" {
		m.logoutLocked(ctx, "requested")
		m.mu.Unlock()
		return
	}
	m.state.Generation++
	m.state.IsLoading = true
	m.slot.reset()
	gen := m.state.Generation
	token := m.state.Token.Token
	m.publishLocked()
	m.mu.Unlock()

	err := m.invalidator.Invalidate(ctx, token)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.metrics.Inc(MetricLogoutInvalidateFailure)
		m.logger.Warn().Err(err).Msg("server-side session invalidation failed")
	}
	if m.closed {
		return
	}
	if m.state.Generation != gen {
		// A newer login or logout superseded this one.
		m.logger.Debug().Uint64("generation", gen).Msg("discarding stale async logout")
		return
	}
	m.logoutLocked(ctx, "requested")
}

// SetTokenAndExpiry is the single path through which the token changes.
// The session scope and memory are updated together: if the store write
// fails, memory keeps the previous token. expireAtMs <= 0 reads the exp
// claim; a token that cannot be dated is treated as absent.
func (m *Manager) SetTokenAndExpiry(ctx context.Context, token string, expireAtMs int64) *AuthError {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return m.closedError()
	}

	tok := TokenState{Token: token, TokenExpireAt: expireAtMs, RefreshToken: m.state.Token.RefreshToken}
	if err := m.setTokenLocked(ctx, tok); err != nil {
		e := m.failLocked(CodeStorageWriteFailed, "could not persist token")
		m.publishLocked()
		return e
	}
	m.publishLocked()
	return nil
}

func (m *Manager) setTokenLocked(ctx context.Context, tok TokenState) error {
	if tok.Token != "" && tok.TokenExpireAt <= 0 {
		if exp, ok := deriveExpiry(tok.Token); ok {
			tok.TokenExpireAt = exp
		} else {
			m.logger.Warn().Msg("token has no expiry; treating as absent")
			tok = TokenState{}
		}
	}
	if tok.Token == "" {
		tok = TokenState{}
	}

	if err := m.writeSession(ctx, tok); err != nil {
		m.metrics.Inc(MetricStorageWriteFailure)
		m.logger.Error().Err(err).Msg("session store write failed")
		return err
	}
	m.state.Token = tok
	return nil
}

// UpdateUser replaces the user and, when branches is non-nil, the branch
// list. It resolves a token restored without a user.
func (m *Manager) UpdateUser(ctx context.Context, user User, branches []Branch) *AuthError {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return m.closedError()
	}
	return m.updateUserLocked(ctx, user, branches)
}

// resolvePendingProfile installs a fetched profile only if the session is
// still the one the fetch was started for: same generation and still
// waiting for a user. It reports false when the result was discarded.
func (m *Manager) resolvePendingProfile(ctx context.Context, gen uint64, user User, branches []Branch) (*AuthError, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return m.closedError(), false
	}
	if m.state.Generation != gen || !m.state.PendingProfile {
		m.logger.Info().Uint64("generation", gen).Msg("discarding stale profile fetch")
		return nil, false
	}
	return m.updateUserLocked(ctx, user, branches), true
}

// logoutIfPending logs out when the session of generation gen is still
// waiting for a user.
func (m *Manager) logoutIfPending(ctx context.Context, gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.state.Generation != gen || !m.state.PendingProfile {
		return false
	}
	m.logoutLocked(ctx, "profile_recovery_exhausted")
	return true
}

func (m *Manager) updateUserLocked(ctx context.Context, user User, branches []Branch) *AuthError {
	prev := m.state.clone()

	u := cloneUser(&user)
	if branches != nil {
		m.state.Branches = cloneBranches(branches)
	}
	var current *Branch
	if u.CurrentBranchID != nil {
		current = cloneBranch(findBranch(m.state.Branches, *u.CurrentBranchID))
	}
	if current == nil {
		current = reconcileCurrentBranch(m.state.CurrentBranch, m.state.Branches)
	}
	if current == nil {
		current = pickBranch(m.state.Branches, nil)
	}
	if current != nil {
		id := current.BranchID
		u.CurrentBranchID = &id
	}
	m.state.User = u
	m.state.CurrentBranch = current

	if err := m.persistProfile(ctx, profileFromState(&m.state)); err != nil {
		m.metrics.Inc(MetricStorageWriteFailure)
		m.logger.Error().Err(err).Msg("profile store write failed")
		m.state.User, m.state.Branches, m.state.CurrentBranch = prev.User, prev.Branches, prev.CurrentBranch
		e := m.failLocked(CodeStorageWriteFailed, "could not persist profile")
		m.publishLocked()
		return e
	}
	m.state.PendingProfile = false
	m.publishLocked()
	return nil
}

// ClearError clears Error and keeps LastError.
func (m *Manager) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Error == nil {
		return
	}
	m.state.Error = nil
	m.publishLocked()
}

// CheckSession forces a logout when the token has expired and reports
// whether the session is still authenticated. The forced logout records
// CodeSessionExpired in LastError only.
func (m *Manager) CheckSession(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}

	now := m.nowMillis()
	if m.state.Token.Token == "" || m.state.Token.Valid(now) {
		return m.state.User != nil && m.state.Token.Valid(now)
	}

	m.expireLocked(ctx)
	return false
}

func (m *Manager) expireLocked(ctx context.Context) {
	userID := int64(0)
	if m.state.User != nil {
		userID = m.state.User.UserID
	}
	m.terminalClearLocked(ctx)
	m.state.LastError = newAuthError(CodeSessionExpired, "session expired", m.nowMillis())
	m.metrics.Inc(MetricSessionExpired)
	m.logger.Info().Int64("user_id", userID).Msg("session expired")
	m.emit(ctx, AuditEvent{EventType: AuditSessionExpired, UserID: userID, Success: true})
	m.publishLocked()
}

// RefreshTokenAsync exchanges the refresh token for a new access token.
// It returns false without side effects when another transition holds the
// slot or there is no refresh token. A failed refresh records
// CodeTokenRefreshFailed or CodeRefreshTokenInvalid but never logs out;
// deciding that is left to the caller. A result arriving after a login or
// logout is discarded.
func (m *Manager) RefreshTokenAsync(ctx context.Context) bool {
	m.mu.Lock()
	if m.closed || m.refresher == nil || m.state.Token.RefreshToken == "" {
		m.mu.Unlock()
		return false
	}
	owner, busy, ok := m.slot.acquire(TransitionTokenRefresh)
	if !ok {
		m.metrics.Inc(MetricRefreshRejected)
		m.logger.Debug().Str("busy", busy.String()).Msg("refresh rejected")
		m.mu.Unlock()
		return false
	}
	gen := m.state.Generation
	refreshToken := m.state.Token.RefreshToken
	m.publishLocked()
	m.mu.Unlock()

	start := time.Now()
	res := flows.RunTokenRefresh(ctx, refreshToken, m.nowMillis(), flows.TokenRefreshDeps{
		Refresh: func(ctx context.Context, rt string) (flows.RefreshedToken, error) {
			pair, err := m.refresher.RefreshToken(ctx, rt)
			return flows.RefreshedToken{Token: pair.Token, RefreshToken: pair.RefreshToken, ExpireAt: pair.TokenExpireAt}, err
		},
		IsInvalid:    func(err error) bool { return errors.Is(err, ErrRefreshTokenInvalid) },
		DeriveExpiry: deriveExpiry,
	})
	m.metrics.Observe(MetricRefreshLatency, time.Since(start))

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	if m.state.Generation != gen {
		m.metrics.Inc(MetricRefreshStale)
		m.logger.Info().Uint64("generation", gen).Msg("discarding stale token refresh")
		return false
	}
	m.slot.release(owner)

	if res.Failure != flows.RefreshFailureNone {
		code := CodeTokenRefreshFailed
		if res.Failure == flows.RefreshFailureInvalid {
			code = CodeRefreshTokenInvalid
		}
		m.metrics.Inc(MetricRefreshFailure)
		m.logger.Warn().Err(res.Err).Str("code", string(code)).Msg("token refresh failed")
		m.failLocked(code, res.Err.Error())
		m.emit(ctx, AuditEvent{EventType: AuditTokenRefresh, Success: false, Code: string(code)})
		m.publishLocked()
		return false
	}

	tok := TokenState{Token: res.Token.Token, TokenExpireAt: res.Token.ExpireAt, RefreshToken: res.Token.RefreshToken}
	if err := m.setTokenLocked(ctx, tok); err != nil {
		m.failLocked(CodeStorageWriteFailed, "could not persist refreshed token")
		m.emit(ctx, AuditEvent{EventType: AuditTokenRefresh, Success: false, Code: string(CodeStorageWriteFailed)})
		m.publishLocked()
		return false
	}

	m.metrics.Inc(MetricRefreshSuccess)
	m.emit(ctx, AuditEvent{EventType: AuditTokenRefresh, Success: true})
	m.publishLocked()
	return true
}

func branchID(b *Branch) int64 {
	if b == nil {
		return 0
	}
	return b.BranchID
}

// chooseYear keeps current when it is still listed, else picks the
// server-active year, else the first one.
func chooseYear(current *AcademicYear, years []AcademicYear) *AcademicYear {
	if current != nil {
		if len(years) == 0 {
			return cloneYear(current)
		}
		for i := range years {
			if years[i].AcademicYearID == current.AcademicYearID {
				return cloneYear(&years[i])
			}
		}
	}
	for i := range years {
		if years[i].IsActive {
			return cloneYear(&years[i])
		}
	}
	if len(years) > 0 {
		return cloneYear(&years[0])
	}
	return nil
}
