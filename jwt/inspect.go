package jwt

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed is returned when the token is not a structurally valid JWT.
var ErrMalformed = errors.New("token is not a well-formed jwt")

// ErrNoExpiry is returned when the token carries no exp claim.
var ErrNoExpiry = errors.New("token has no exp claim")

// Claims is the subset of access-token claims the session manager reads.
type Claims struct {
	UserID      string `json:"uid,omitempty"`
	InstituteID int64  `json:"institute_id,omitempty"`
	BranchID    int64  `json:"branch_id,omitempty"`
	jwt.RegisteredClaims
}

var parser = jwt.NewParser(jwt.WithoutClaimsValidation())

// Inspect decodes the claims of token without verifying its signature.
func Inspect(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMalformed
	}
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return claims, nil
}

// ExpiryMillis returns the exp claim of token as epoch milliseconds.
func ExpiryMillis(token string) (int64, error) {
	claims, err := Inspect(token)
	if err != nil {
		return 0, err
	}
	if claims.ExpiresAt == nil {
		return 0, ErrNoExpiry
	}
	return claims.ExpiresAt.UnixMilli(), nil
}
