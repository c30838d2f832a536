package goSession

import (
	"errors"
	"fmt"
)

var (
	// ErrRefreshTokenInvalid is returned by a TokenRefresher when the server
	// rejected the refresh token itself, as opposed to being unreachable.
	ErrRefreshTokenInvalid = errors.New("refresh token invalid")
	// ErrNotAuthenticated is returned by collaborators that require a session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrBuilderUsed is returned by Build when called twice on one Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrManagerClosed is reported by actions invoked after Close.
	ErrManagerClosed = errors.New("session manager closed")
	// ErrRecoveryExhausted is returned by ProfileRecovery when every attempt failed.
	ErrRecoveryExhausted = errors.New("profile recovery attempts exhausted")
	// ErrRecoverySuperseded is returned by ProfileRecovery.Recover when a
	// login or logout replaced the session it was recovering.
	ErrRecoverySuperseded = errors.New("profile recovery superseded by a newer session")
)

// ErrorCode classifies an AuthError for the UI.
type ErrorCode string

const (
	CodeSessionExpired               ErrorCode = "SESSION_EXPIRED"
	CodeBranchSwitchInProgress       ErrorCode = "BRANCH_SWITCH_IN_PROGRESS"
	CodeAcademicYearSwitchInProgress ErrorCode = "ACADEMIC_YEAR_SWITCH_IN_PROGRESS"
	CodeTokenRefreshInProgress       ErrorCode = "TOKEN_REFRESH_IN_PROGRESS"
	CodeBranchSwitchFailed           ErrorCode = "BRANCH_SWITCH_FAILED"
	CodeBranchNotAccessible          ErrorCode = "BRANCH_NOT_ACCESSIBLE"
	CodeAcademicYearUnknown          ErrorCode = "ACADEMIC_YEAR_UNKNOWN"
	CodeTokenRefreshFailed           ErrorCode = "TOKEN_REFRESH_FAILED"
	CodeRefreshTokenInvalid          ErrorCode = "REFRESH_TOKEN_INVALID"
	CodeStorageCorruptionRecovered   ErrorCode = "STORAGE_CORRUPTION_RECOVERED"
	CodeStorageWriteFailed           ErrorCode = "STORAGE_WRITE_FAILED"
	CodeNotAuthenticated             ErrorCode = "NOT_AUTHENTICATED"
)

// AuthError is the user-facing failure recorded in AuthState.Error and
// AuthState.LastError. Timestamp is epoch milliseconds.
type AuthError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Timestamp int64     `json:"timestamp"`
}

func (e *AuthError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches another *AuthError by code, so errors.Is works against
// code-only targets such as &AuthError{Code: CodeBranchSwitchFailed}.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

func newAuthError(code ErrorCode, message string, now int64) *AuthError {
	return &AuthError{Code: code, Message: message, Timestamp: now}
}

// inProgressCode maps the busy transition kind onto the rejection code.
func inProgressCode(kind TransitionKind) ErrorCode {
	switch kind {
	case TransitionAcademicYear:
		return CodeAcademicYearSwitchInProgress
	case TransitionTokenRefresh:
		return CodeTokenRefreshInProgress
	default:
		return CodeBranchSwitchInProgress
	}
}
