package goSession

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every variable read by ConfigFromEnv.
const EnvPrefix = "GOSESSION_"

// Config groups every tunable of the session manager.
//
// Config values are copied into the Manager at Build time and treated as
// immutable afterwards.
type Config struct {
	Store     StoreConfig     `envPrefix:"STORE_"`
	Refresh   RefreshConfig   `envPrefix:"REFRESH_"`
	Recovery  RecoveryConfig  `envPrefix:"RECOVERY_"`
	Audit     AuditConfig     `envPrefix:"AUDIT_"`
	Metrics   MetricsConfig   `envPrefix:"METRICS_"`
	Broadcast BroadcastConfig `envPrefix:"BROADCAST_"`
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig controls the Redis-backed stores built by Builder.WithRedis.
type StoreConfig struct {
	RedisPrefix string `env:"REDIS_PREFIX"`
	// DeviceID scopes the profile store. Empty uses "default".
	DeviceID string `env:"DEVICE_ID"`
	// SessionID resumes an existing session namespace. Empty starts a new one.
	SessionID string `env:"SESSION_ID"`
	// SessionTTL bounds the lifetime of session-scope keys. Zero disables expiry.
	SessionTTL time.Duration `env:"SESSION_TTL"`
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls proactive token refresh.
type RefreshConfig struct {
	// Skew is how long before expiry NeedsRefresh starts reporting true.
	Skew time.Duration `env:"SKEW"`
}

/*
====================================
RECOVERY CONFIG
====================================
*/

// RecoveryConfig bounds ProfileRecovery. The values are a local policy
// choice; callers owning the routing layer may override them.
type RecoveryConfig struct {
	MaxAttempts int           `env:"MAX_ATTEMPTS"`
	Interval    time.Duration `env:"INTERVAL"`
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	// Overflow is applied when BufferSize events are already queued. Empty
	// means AuditOverflowDropOldest.
	Overflow AuditOverflow `env:"OVERFLOW"`
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"LATENCY_HISTOGRAMS"`
}

/*
====================================
BROADCAST CONFIG
====================================
*/

// BroadcastConfig controls state subscriptions.
type BroadcastConfig struct {
	// SubscriberBuffer is the default channel capacity for Subscribe(0).
	SubscriberBuffer int `env:"SUBSCRIBER_BUFFER"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when Builder.WithConfig is not called.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			RedisPrefix: "gs",
			SessionTTL:  12 * time.Hour,
		},
		Refresh: RefreshConfig{
			Skew: 30 * time.Second,
		},
		Recovery: RecoveryConfig{
			MaxAttempts: 3,
			Interval:    500 * time.Millisecond,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			Overflow:   AuditOverflowDropOldest,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Broadcast: BroadcastConfig{
			SubscriberBuffer: 1,
		},
	}
}

// ConfigFromEnv overlays GOSESSION_* environment variables on DefaultConfig.
//
// Variables follow the struct layout, for example GOSESSION_STORE_SESSION_TTL=2h
// or GOSESSION_RECOVERY_MAX_ATTEMPTS=5. The result is validated.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("goSession: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field of c.
func (c *Config) Validate() error {
	// Store
	if strings.TrimSpace(c.Store.RedisPrefix) == "" {
		return errors.New("Store RedisPrefix must not be empty")
	}
	if strings.Contains(c.Store.RedisPrefix, " ") {
		return errors.New("Store RedisPrefix must not contain spaces")
	}
	if c.Store.SessionTTL < 0 {
		return errors.New("Store SessionTTL must be >= 0")
	}

	// Refresh
	if c.Refresh.Skew < 0 {
		return errors.New("Refresh Skew must be >= 0")
	}

	// Recovery
	if c.Recovery.MaxAttempts <= 0 {
		return errors.New("Recovery MaxAttempts must be > 0")
	}
	if c.Recovery.Interval < 0 {
		return errors.New("Recovery Interval must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Audit.Overflow != "" && !c.Audit.Overflow.Valid() {
		return fmt.Errorf("Audit Overflow %q is not one of drop_oldest, drop_newest, block", c.Audit.Overflow)
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	// Broadcast
	if c.Broadcast.SubscriberBuffer <= 0 {
		return errors.New("Broadcast SubscriberBuffer must be > 0")
	}

	return nil
}
