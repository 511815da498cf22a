package synth

import (
	"context"
	"log/slog"
	"time"

	"github.com/voxcart/voxcart/pkg/orchestrator"
)

// ServiceName is the circuit-breaker service tag for synthesis calls.
const ServiceName = "synthesis"

// ResolverConfig tunes the resolver.
type ResolverConfig struct {
	// CacheTTL bounds how long synthesized audio is memoized by
	// (text, voice, parameters).
	CacheTTL time.Duration

	// Logger for resolver events.
	Logger *slog.Logger
}

// DefaultResolverConfig returns resolver defaults.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		CacheTTL: time.Hour,
		Logger:   slog.Default(),
	}
}

// Resolver tries synthesis stages in order: the cache first (via the
// orchestrator), then each provider in the list. Typical wiring is
// local, then the remote HTTP API, then the WebSocket surface.
type Resolver struct {
	stages []Synthesizer
	orch   *orchestrator.Orchestrator
	config ResolverConfig
	logger *slog.Logger
}

// NewResolver creates a resolver over an ordered stage list.
func NewResolver(orch *orchestrator.Orchestrator, cfg ResolverConfig, stages ...Synthesizer) *Resolver {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultResolverConfig().CacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{
		stages: stages,
		orch:   orch,
		config: cfg,
		logger: cfg.Logger.With("component", "synth.resolver"),
	}
}

// Resolve synthesizes audio for the request. Cache hits skip every
// provider. When all stages fail the error is returned; callers continue
// with a text-only response.
func (r *Resolver) Resolve(ctx context.Context, userID string, req *Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := orchestrator.FingerprintStrings(req.cacheFields()...)
	env := orchestrator.NewEnvelope(ServiceName, userID)
	env.DedupKey = key

	opts := orchestrator.Options{
		CacheKey: "tts:" + key,
		CacheTTL: r.config.CacheTTL,
		Service:  ServiceName,
	}

	return orchestrator.Do(ctx, r.orch, env, opts, func(ctx context.Context) (*Result, error) {
		return r.tryStages(ctx, req)
	})
}

// tryStages walks the stage list until one produces audio. Non-transient
// failures such as an invalid voice are not worth offering to later
// stages of the same provider, but the local stage may still have failed
// for its own reasons, so the walk continues regardless and the last
// error wins.
func (r *Resolver) tryStages(ctx context.Context, req *Request) (*Result, error) {
	var lastErr error
	for i, stage := range r.stages {
		result, err := stage.Synthesize(ctx, req)
		if err == nil {
			if i > 0 {
				r.logger.Info("fallback synthesis stage succeeded",
					"source", stage.Source(),
				)
			}
			return result, nil
		}

		lastErr = err
		r.logger.Warn("synthesis stage failed, trying next",
			"source", stage.Source(),
			"error", err,
		)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if lastErr == nil {
		lastErr = ErrNotAvailable
	}
	return nil, lastErr
}

// Health probes each stage and reports status keyed by source name.
func (r *Resolver) Health(ctx context.Context) map[string]string {
	health := make(map[string]string, len(r.stages))
	for _, stage := range r.stages {
		if err := stage.Health(ctx); err != nil {
			health[stage.Source()] = err.Error()
		} else {
			health[stage.Source()] = "ok"
		}
	}
	return health
}

// Close closes all stages.
func (r *Resolver) Close() error {
	var lastErr error
	for _, stage := range r.stages {
		if err := stage.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
