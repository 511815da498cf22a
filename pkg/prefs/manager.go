package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxcart/voxcart/pkg/store"
)

const keyPrefix = "prefs:"

// ManagerConfig tunes the manager.
type ManagerConfig struct {
	// CacheTTL bounds how long the snapshot stays in the fast cache.
	CacheTTL time.Duration

	// Logger for manager events.
	Logger *slog.Logger
}

// DefaultManagerConfig returns manager defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		CacheTTL: 30 * time.Minute,
		Logger:   slog.Default(),
	}
}

// Manager persists merged preferences to the durable profile store and
// mirrors them in the fast session cache. Concurrent merges for the same
// user resolve last-write-wins; preference data is advisory.
type Manager struct {
	durable store.Durable
	cache   store.Cache
	config  ManagerConfig
	logger  *slog.Logger
}

// NewManager creates a preference manager.
func NewManager(durable store.Durable, cache store.Cache, cfg ManagerConfig) *Manager {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultManagerConfig().CacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		durable: durable,
		cache:   cache,
		config:  cfg,
		logger:  cfg.Logger.With("component", "prefs.manager"),
	}
}

// Get loads the current preference snapshot for a user, preferring the
// fast cache. A missing profile yields an empty snapshot, not an error.
func (m *Manager) Get(ctx context.Context, userID string) (*Preferences, error) {
	key := keyPrefix + userID

	if raw, ok, err := m.cache.Get(ctx, key); err == nil && ok {
		var p Preferences
		if json.Unmarshal(raw, &p) == nil {
			return &p, nil
		}
	}

	raw, ok, err := m.durable.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("prefs: load profile: %w", err)
	}
	if !ok {
		return &Preferences{}, nil
	}

	var p Preferences
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("prefs: decode profile: %w", err)
	}

	m.cacheSet(ctx, key, &p)
	return &p, nil
}

// Apply merges a delta into the user's stored preferences and persists
// the result to both stores. Returns the merged snapshot and whether
// anything changed. A nil delta is a no-op read.
func (m *Manager) Apply(ctx context.Context, userID string, delta *Preferences) (*Preferences, bool, error) {
	existing, err := m.Get(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	merged, changed := Merge(existing, delta)
	if !changed {
		return merged, false, nil
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		return nil, false, fmt.Errorf("prefs: encode profile: %w", err)
	}

	key := keyPrefix + userID
	if err := m.durable.Set(ctx, key, raw); err != nil {
		return nil, false, fmt.Errorf("prefs: persist profile: %w", err)
	}
	m.cacheSet(ctx, key, merged)

	m.logger.Debug("preferences updated",
		"user_id", userID,
		"sizes", len(merged.Sizes),
		"voice", merged.Voice,
	)
	return merged, true, nil
}

// cacheSet mirrors a snapshot into the fast cache. Cache failures are
// tolerated; the durable store remains authoritative.
func (m *Manager) cacheSet(ctx context.Context, key string, p *Preferences) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := m.cache.Set(ctx, key, raw, m.config.CacheTTL); err != nil {
		m.logger.Warn("preference cache write failed", "error", err)
	}
}
