package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Session event types.
const (
	EventLogin              = "login"
	EventLogout             = "logout"
	EventBranchSwitch       = "branch_switch"
	EventAcademicYearSwitch = "academic_year_switch"
	EventTokenRefresh       = "token_refresh"
	EventRehydrate          = "rehydrate"
	EventSessionExpired     = "session_expired"
	EventStorageRecovered   = "storage_recovered"
)

// Event records one session state transition.
type Event struct {
	Timestamp   time.Time         `json:"timestamp"`
	EventType   string            `json:"event_type"`
	UserID      int64             `json:"user_id,omitempty"`
	InstituteID int64             `json:"institute_id,omitempty"`
	BranchID    int64             `json:"branch_id,omitempty"`
	Generation  uint64            `json:"generation"`
	Success     bool              `json:"success"`
	Code        string            `json:"code,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line. After the first write
// error it stops writing and reports the error from Err.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	s := &JSONWriterSink{}
	if w != nil {
		s.enc = json.NewEncoder(w)
	}
	return s
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enc == nil || s.err != nil {
		return
	}
	s.err = s.enc.Encode(event)
}

// Err returns the write error that stopped the sink, if any.
func (s *JSONWriterSink) Err() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// LoggerSink writes events through a zerolog logger at info level,
// failures at warn.
type LoggerSink struct {
	logger zerolog.Logger
}

func NewLoggerSink(logger zerolog.Logger) *LoggerSink {
	return &LoggerSink{logger: logger.With().Str("component", "audit").Logger()}
}

func (s *LoggerSink) Emit(_ context.Context, event Event) {
	if s == nil {
		return
	}
	ev := s.logger.Info()
	if !event.Success {
		ev = s.logger.Warn()
	}
	ev = ev.Time("at", event.Timestamp).
		Str("event", event.EventType).
		Uint64("generation", event.Generation)
	if event.UserID != 0 {
		ev = ev.Int64("user_id", event.UserID)
	}
	if event.BranchID != 0 {
		ev = ev.Int64("branch_id", event.BranchID)
	}
	if event.Code != "" {
		ev = ev.Str("code", event.Code)
	}
	for k, v := range event.Metadata {
		ev = ev.Str(k, v)
	}
	ev.Msg("session event")
}
