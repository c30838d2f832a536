package goSession

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/permission"
	"github.com/MrEthical07/goSession/store"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultDeviceID = "default"

// Builder configures and constructs a [Manager].
//
// Builder instances are intended to be configured during initialization and
// then discarded; Build may be called once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	profile store.Backend
	session store.Backend

	tables *permission.Tables

	confirmer   BranchConfirmer
	refresher   TokenRefresher
	invalidator SessionInvalidator

	logger    zerolog.Logger
	auditSink AuditSink
	clock     func() time.Time

	built bool
}

// New returns a Builder with DefaultConfig, in-memory stores and the
// default permission tables.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig replaces the whole configuration; Build validates it.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs the profile scope with a per-device Redis namespace and
// the session scope with an expiring per-session namespace. It takes
// precedence over WithStores.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStores sets the profile and session backends directly.
func (b *Builder) WithStores(profile, session store.Backend) *Builder {
	b.profile = profile
	b.session = session
	return b
}

// WithPermissionTables replaces the default module and role tables.
func (b *Builder) WithPermissionTables(t permission.Tables) *Builder {
	b.tables = &t
	return b
}

// WithBranchConfirmer sets the collaborator that confirms branch switches.
// Without one, branch switches confirm immediately.
func (b *Builder) WithBranchConfirmer(c BranchConfirmer) *Builder {
	b.confirmer = c
	return b
}

// WithTokenRefresher sets the collaborator used by RefreshTokenAsync.
func (b *Builder) WithTokenRefresher(r TokenRefresher) *Builder {
	b.refresher = r
	return b
}

// WithSessionInvalidator sets the collaborator used by LogoutAsync.
func (b *Builder) WithSessionInvalidator(i SessionInvalidator) *Builder {
	b.invalidator = i
	return b
}

// WithLogger sets the structured logger. The default discards output.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// The sink only receives events when Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides time.Now, mainly for tests.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the confirmation and refresh latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires the stores and collaborators,
// and rehydrates the state from the stores before returning. No
// subscriber can observe the state before rehydration has finished.
//
// Build may be called once per Builder.
func (b *Builder) Build(ctx context.Context) (*Manager, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tables := permission.DefaultTables()
	if b.tables != nil {
		tables = *b.tables
	}
	perms, err := NewPermissionEngine(tables)
	if err != nil {
		return nil, err
	}

	profile, session := b.profile, b.session
	sessionID := ""
	if b.redis != nil {
		deviceID := cfg.Store.DeviceID
		if deviceID == "" {
			deviceID = defaultDeviceID
		}
		profile = store.NewRedisProfileBackend(b.redis, cfg.Store.RedisPrefix, deviceID)
		sessionID = cfg.Store.SessionID
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		session = store.NewRedisSessionBackendWithID(b.redis, cfg.Store.RedisPrefix, sessionID, cfg.Store.SessionTTL)
	}
	if (profile == nil) != (session == nil) {
		return nil, errors.New("profile and session stores must both be set")
	}
	if profile == nil {
		profile = store.NewMemoryBackend()
		session = store.NewMemoryBackend()
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	m := &Manager{
		cfg:         cfg,
		store:       store.NewDualStore(profile, session),
		perms:       perms,
		confirmer:   b.confirmer,
		refresher:   b.refresher,
		invalidator: b.invalidator,
		logger:      b.logger.With().Str("component", "gosession").Logger(),
		metrics:     NewMetrics(cfg.Metrics),
		clock:       clock,
		broadcast:   newBroadcaster(),
		sessionID:   sessionID,
	}
	m.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		Overflow:   cfg.Audit.Overflow,
	}, b.auditSink, clock)

	m.rehydrate(ctx)

	b.built = true
	return m, nil
}
