package goSession

import (
	"io"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/rs/zerolog"
)

// BranchType distinguishes school and college branches.
type BranchType string

const (
	BranchSchool  BranchType = "SCHOOL"
	BranchCollege BranchType = "COLLEGE"
)

// User is the authenticated identity. It is replaced only by Login or UpdateUser.
type User struct {
	UserID          int64  `json:"user_id"`
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	Role            string `json:"role"`
	InstituteID     int64  `json:"institute_id"`
	CurrentBranchID *int64 `json:"current_branch_id,omitempty"`
}

// Branch is one institutional unit the user may be scoped to.
type Branch struct {
	BranchID   int64      `json:"branch_id"`
	BranchName string     `json:"branch_name"`
	BranchType BranchType `json:"branch_type"`
	IsDefault  *bool      `json:"is_default,omitempty"`
	Roles      []string   `json:"roles,omitempty"`
}

// Default reports whether the branch is flagged as the user's default.
func (b Branch) Default() bool {
	return b.IsDefault != nil && *b.IsDefault
}

// AcademicYear is a selectable academic period. Dates use YYYY-MM-DD.
type AcademicYear struct {
	AcademicYearID int64  `json:"academic_year_id"`
	YearName       string `json:"year_name"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	IsActive       bool   `json:"is_active"`
}

// TokenState is the bearer token and its expiry in epoch milliseconds.
// It is persisted only in the session scope.
type TokenState struct {
	Token         string
	TokenExpireAt int64
	RefreshToken  string
}

// Valid reports whether the token is present and not expired at now (epoch ms).
func (t TokenState) Valid(now int64) bool {
	return t.Token != "" && t.TokenExpireAt > now
}

// LoginInput is what the login endpoint returns and Login consumes.
// TokenExpireAt may be zero, in which case it is read from the token's exp claim.
type LoginInput struct {
	User          User
	Branches      []Branch
	AcademicYears []AcademicYear
	Token         string
	RefreshToken  string
	TokenExpireAt int64
}

// TokenPair is a refreshed access token.
type TokenPair struct {
	Token         string
	RefreshToken  string
	TokenExpireAt int64
}

// Credentials are passed to an Authenticator.
type Credentials struct {
	Username string
	Password string
}

// AuditEvent is a structured session event.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the Manager's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON-encoded event per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// LoggerSink writes events through zerolog.
type LoggerSink = internalaudit.LoggerSink

// AuditOverflow selects what the audit dispatcher does with a full buffer.
type AuditOverflow = internalaudit.Overflow

// Audit overflow policies.
const (
	AuditOverflowDropOldest = internalaudit.OverflowDropOldest
	AuditOverflowDropNewest = internalaudit.OverflowDropNewest
	AuditOverflowBlock      = internalaudit.OverflowBlock
)

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewLoggerSink creates a [LoggerSink] on top of logger.
func NewLoggerSink(logger zerolog.Logger) *LoggerSink {
	return internalaudit.NewLoggerSink(logger)
}

// Audit event types.
const (
	AuditLogin              = internalaudit.EventLogin
	AuditLogout             = internalaudit.EventLogout
	AuditBranchSwitch       = internalaudit.EventBranchSwitch
	AuditAcademicYearSwitch = internalaudit.EventAcademicYearSwitch
	AuditTokenRefresh       = internalaudit.EventTokenRefresh
	AuditRehydrate          = internalaudit.EventRehydrate
	AuditSessionExpired     = internalaudit.EventSessionExpired
	AuditStorageRecovered   = internalaudit.EventStorageRecovered
)
