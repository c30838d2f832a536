package flows

import (
	"context"
	"errors"
)

// RefreshFailureKind classifies token refresh failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureNoRefreshToken
	RefreshFailureInvalid
	RefreshFailureUnavailable
	RefreshFailureNoExpiry
	RefreshFailureExpired
)

var (
	errNoRefreshToken = errors.New("no refresh token")
	errNoExpiry       = errors.New("refreshed token has no expiry")
	errIssuedExpired  = errors.New("refreshed token already expired")
)

// RefreshedToken is the pair returned by the refresh endpoint.
type RefreshedToken struct {
	Token        string
	RefreshToken string
	ExpireAt     int64
}

// TokenRefreshDeps captures refresh flow dependencies.
type TokenRefreshDeps struct {
	Refresh      func(ctx context.Context, refreshToken string) (RefreshedToken, error)
	IsInvalid    func(error) bool
	DeriveExpiry func(token string) (int64, bool)
}

// TokenRefreshResult carries either the new token or failure metadata.
type TokenRefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	Token   RefreshedToken
}

// RunTokenRefresh exchanges refreshToken for a new access token. It never
// decides whether the session is over; an invalid refresh token is reported
// as RefreshFailureInvalid and left for the caller to act on.
func RunTokenRefresh(ctx context.Context, refreshToken string, now int64, deps TokenRefreshDeps) TokenRefreshResult {
	if refreshToken == "" {
		return TokenRefreshResult{Failure: RefreshFailureNoRefreshToken, Err: errNoRefreshToken}
	}

	next, err := deps.Refresh(ctx, refreshToken)
	if err != nil {
		if deps.IsInvalid != nil && deps.IsInvalid(err) {
			return TokenRefreshResult{Failure: RefreshFailureInvalid, Err: err}
		}
		return TokenRefreshResult{Failure: RefreshFailureUnavailable, Err: err}
	}

	if next.ExpireAt <= 0 && deps.DeriveExpiry != nil {
		if exp, ok := deps.DeriveExpiry(next.Token); ok {
			next.ExpireAt = exp
		}
	}
	if next.Token == "" || next.ExpireAt <= 0 {
		return TokenRefreshResult{Failure: RefreshFailureNoExpiry, Err: errNoExpiry}
	}
	if next.ExpireAt <= now {
		return TokenRefreshResult{Failure: RefreshFailureExpired, Err: errIssuedExpired}
	}
	if next.RefreshToken == "" {
		next.RefreshToken = refreshToken
	}

	return TokenRefreshResult{Token: next}
}
