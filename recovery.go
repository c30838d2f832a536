package goSession

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"
)

// ProfileRecovery resolves a session restored with a token but no user. It
// fetches the profile up to Recovery.MaxAttempts times, paced by
// Recovery.Interval, and either installs the result with UpdateUser or
// logs out.
//
// The attempt bound and pacing are a local policy choice; the routing
// layer that owns this retry may supply its own Config.
type ProfileRecovery struct {
	manager *Manager
	fetcher ProfileFetcher
	limiter *rate.Limiter
	max     int
}

// NewProfileRecovery builds a recovery helper from the manager's Recovery config.
func NewProfileRecovery(m *Manager, fetcher ProfileFetcher) *ProfileRecovery {
	cfg := m.cfg.Recovery
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	return &ProfileRecovery{
		manager: m,
		fetcher: fetcher,
		limiter: rate.NewLimiter(limit, 1),
		max:     cfg.MaxAttempts,
	}
}

// Recover runs the retry loop. It returns nil when there was nothing to
// recover or the profile was installed. On exhaustion it logs out and
// returns an error wrapping ErrRecoveryExhausted and the last fetch error.
// When a login or logout replaces the session during the loop, the fetched
// profile is discarded and Recover returns ErrRecoverySuperseded without
// touching the new session. A cancelled ctx stops the loop without logging out.
func (r *ProfileRecovery) Recover(ctx context.Context) error {
	m := r.manager
	snap := m.Snapshot()
	if !snap.PendingProfile {
		return nil
	}
	gen, token := snap.Generation, snap.Token.Token
	superseded := func() bool {
		s := m.Snapshot()
		return s.Generation != gen || !s.PendingProfile
	}

	var last error
	for attempt := 1; attempt <= r.max; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		if superseded() {
			return ErrRecoverySuperseded
		}

		user, branches, err := r.fetcher.FetchProfile(ctx, token)
		if err == nil {
			authErr, applied := m.resolvePendingProfile(ctx, gen, user, branches)
			if authErr != nil {
				return authErr
			}
			if !applied {
				return ErrRecoverySuperseded
			}
			m.logger.Info().Int("attempt", attempt).Int64("user_id", user.UserID).Msg("profile recovered")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		last = err
		m.logger.Warn().Err(err).Int("attempt", attempt).Msg("profile fetch failed")
	}

	if !m.logoutIfPending(ctx, gen) {
		return ErrRecoverySuperseded
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRecoveryExhausted, r.max, last)
}

// IsRecoveryExhausted reports whether err came from an exhausted Recover.
func IsRecoveryExhausted(err error) bool {
	return errors.Is(err, ErrRecoveryExhausted)
}
