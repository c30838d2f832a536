package goSession

import "context"

// BranchConfirmer confirms a branch switch with the server. A non-nil error
// rolls the optimistic switch back.
type BranchConfirmer interface {
	ConfirmBranch(ctx context.Context, branchID int64) error
}

// TokenRefresher exchanges a refresh token for a new access token. It must
// return an error wrapping ErrRefreshTokenInvalid when the server rejected
// the refresh token itself; any other error is treated as transient.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (TokenPair, error)
}

// SessionInvalidator revokes the token server-side during LogoutAsync.
type SessionInvalidator interface {
	Invalidate(ctx context.Context, token string) error
}

// Authenticator performs the credential exchange whose result feeds Login.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (LoginInput, error)
}

// ProfileFetcher loads the current user for a token restored without one.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, token string) (User, []Branch, error)
}

// BranchConfirmerFunc adapts a function to BranchConfirmer.
type BranchConfirmerFunc func(ctx context.Context, branchID int64) error

func (f BranchConfirmerFunc) ConfirmBranch(ctx context.Context, branchID int64) error {
	return f(ctx, branchID)
}

// TokenRefresherFunc adapts a function to TokenRefresher.
type TokenRefresherFunc func(ctx context.Context, refreshToken string) (TokenPair, error)

func (f TokenRefresherFunc) RefreshToken(ctx context.Context, refreshToken string) (TokenPair, error) {
	return f(ctx, refreshToken)
}

// SessionInvalidatorFunc adapts a function to SessionInvalidator.
type SessionInvalidatorFunc func(ctx context.Context, token string) error

func (f SessionInvalidatorFunc) Invalidate(ctx context.Context, token string) error {
	return f(ctx, token)
}
