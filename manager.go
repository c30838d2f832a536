package goSession

import (
	"context"
	"strconv"
	"sync"
	"time"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/store"
	"github.com/rs/zerolog"
)

// Manager owns the session state and is the only writer of both stores.
// It is safe for concurrent use. Build one with New().Build(ctx).
type Manager struct {
	cfg   Config
	store *store.DualStore
	perms *PermissionEngine

	confirmer   BranchConfirmer
	refresher   TokenRefresher
	invalidator SessionInvalidator

	logger    zerolog.Logger
	audit     *internalaudit.Dispatcher
	metrics   *Metrics
	clock     func() time.Time
	broadcast *broadcaster

	// sessionID names the session-scope namespace when Redis backs it.
	sessionID string

	mu     sync.Mutex
	state  AuthState
	slot   transitionSlot
	closed bool
}

func (m *Manager) nowMillis() int64 {
	return m.clock().UnixMilli()
}

// snapshotLocked returns a deep copy of the state stamped with the current time.
func (m *Manager) snapshotLocked() AuthState {
	s := m.state.clone()
	s.Pending = m.slot.kind
	s.Now = m.nowMillis()
	return s
}

func (m *Manager) publishLocked() {
	m.broadcast.publish(m.snapshotLocked())
}

// failLocked records an error on the state and returns a copy for the caller.
func (m *Manager) failLocked(code ErrorCode, message string) *AuthError {
	e := newAuthError(code, message, m.nowMillis())
	m.state.Error = e
	m.state.LastError = cloneAuthError(e)
	return cloneAuthError(e)
}

func (m *Manager) closedError() *AuthError {
	return newAuthError(CodeNotAuthenticated, ErrManagerClosed.Error(), m.nowMillis())
}

func (m *Manager) emit(ctx context.Context, event AuditEvent) {
	if m.audit == nil {
		return
	}
	if event.Generation == 0 {
		event.Generation = m.state.Generation
	}
	if event.UserID == 0 && m.state.User != nil {
		event.UserID = m.state.User.UserID
		event.InstituteID = m.state.User.InstituteID
	}
	m.audit.Emit(ctx, event)
}

/*
====================================
STORE WRITES
====================================
*/

func (m *Manager) persistProfile(ctx context.Context, p persistedProfile) error {
	if p.empty() {
		return m.store.Remove(ctx, store.ScopeProfile, store.KeyProfile)
	}
	raw, err := encodeProfile(p)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, store.ScopeProfile, store.KeyProfile, raw)
}

// writeSession writes the token fields to the session scope only.
func (m *Manager) writeSession(ctx context.Context, tok TokenState) error {
	if tok.Token == "" {
		return m.clearSession(ctx)
	}
	if err := m.store.Set(ctx, store.ScopeSession, store.KeyAccessToken, tok.Token); err != nil {
		return err
	}
	if err := m.store.Set(ctx, store.ScopeSession, store.KeyTokenExpires, strconv.FormatInt(tok.TokenExpireAt, 10)); err != nil {
		return err
	}
	if tok.RefreshToken == "" {
		return m.store.Remove(ctx, store.ScopeSession, store.KeyRefreshToken)
	}
	return m.store.Set(ctx, store.ScopeSession, store.KeyRefreshToken, tok.RefreshToken)
}

func (m *Manager) clearSession(ctx context.Context) error {
	var first error
	for _, key := range []string{store.KeyAccessToken, store.KeyTokenExpires, store.KeyRefreshToken} {
		if err := m.store.Remove(ctx, store.ScopeSession, key); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// clearStores removes every persisted field. Failures are logged; the
// in-memory teardown proceeds regardless.
func (m *Manager) clearStores(ctx context.Context) {
	if err := m.store.Remove(ctx, store.ScopeProfile, store.KeyProfile); err != nil {
		m.metrics.Inc(MetricStorageWriteFailure)
		m.logger.Warn().Err(err).Msg("clear profile store failed")
	}
	if err := m.clearSession(ctx); err != nil {
		m.metrics.Inc(MetricStorageWriteFailure)
		m.logger.Warn().Err(err).Msg("clear session store failed")
	}
}

// terminalClearLocked tears the session down: both stores and every state
// field are reset, the generation advances and any transition is abandoned.
func (m *Manager) terminalClearLocked(ctx context.Context) {
	m.clearStores(ctx)
	m.state = AuthState{Generation: m.state.Generation + 1}
	m.slot.reset()
}

// deriveExpiry reads the exp claim without verifying the token.
func deriveExpiry(token string) (int64, bool) {
	exp, err := jwt.ExpiryMillis(token)
	if err != nil {
		return 0, false
	}
	return exp, true
}

/*
====================================
READS
====================================
*/

// Snapshot returns a deep copy of the current state.
func (m *Manager) Snapshot() AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// IsAuthenticated reports whether a user is present with an unexpired token.
func (m *Manager) IsAuthenticated() bool {
	return m.Snapshot().IsAuthenticated()
}

// NeedsRefresh reports whether the token is live but within Refresh.Skew of expiring.
func (m *Manager) NeedsRefresh() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowMillis()
	tok := m.state.Token
	if !tok.Valid(now) {
		return false
	}
	return tok.TokenExpireAt-now <= m.cfg.Refresh.Skew.Milliseconds()
}

// Token returns the current bearer token when it is still valid.
func (m *Manager) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.Token.Valid(m.nowMillis()) {
		return "", false
	}
	return m.state.Token.Token, true
}

// SessionID names the Redis session namespace, empty for other backends.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// Subscribe registers for state snapshots. The current state is delivered
// immediately. buffer <= 0 uses Broadcast.SubscriberBuffer.
func (m *Manager) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = m.cfg.Broadcast.SubscriberBuffer
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.broadcast.subscribe(buffer, m.snapshotLocked())
}

// Unsubscribe stops delivery and closes the subscription channel.
func (m *Manager) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	m.broadcast.unsubscribe(sub.ID)
}

// MetricsSnapshot returns the current counters and histograms.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	return m.metrics.Snapshot()
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (m *Manager) AuditDropped() uint64 {
	return m.audit.Dropped()
}

// SnapshotsCoalesced returns how many snapshots slow subscribers skipped.
func (m *Manager) SnapshotsCoalesced() uint64 {
	return m.broadcast.coalesced.Load()
}

// Permissions returns the compiled permission engine.
func (m *Manager) Permissions() *PermissionEngine {
	return m.perms
}

// Close releases subscribers and drains the audit dispatcher. Actions
// invoked afterwards fail without touching the stores.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.broadcast.close()
	m.audit.Close()
}
