package transcribe

import (
	"context"
	"log/slog"
	"time"

	"github.com/voxcart/voxcart/pkg/orchestrator"
)

// ServiceName is the circuit-breaker service tag for transcription calls.
const ServiceName = "transcription"

// ResolverConfig tunes the resolver.
type ResolverConfig struct {
	// CacheTTL bounds how long a transcript is memoized by audio hash.
	CacheTTL time.Duration

	// Logger for resolver events.
	Logger *slog.Logger
}

// DefaultResolverConfig returns resolver defaults.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		CacheTTL: 10 * time.Minute,
		Logger:   slog.Default(),
	}
}

// Resolver tries transcription providers in priority order, routing each
// attempt through the orchestrator so identical audio collapses to one
// upstream call and repeated audio hits the transcript cache.
type Resolver struct {
	providers []Transcriber
	orch      *orchestrator.Orchestrator
	config    ResolverConfig
	logger    *slog.Logger
}

// NewResolver creates a resolver over an ordered provider list.
// Providers are tried first to last.
func NewResolver(orch *orchestrator.Orchestrator, cfg ResolverConfig, providers ...Transcriber) *Resolver {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultResolverConfig().CacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{
		providers: providers,
		orch:      orch,
		config:    cfg,
		logger:    cfg.Logger.With("component", "transcribe.resolver"),
	}
}

// Resolve produces text from audio. Validation errors are returned to the
// caller; provider failures are absorbed, and when every provider fails a
// sentinel result tagged SourceFallback is returned with a nil error.
func (r *Resolver) Resolve(ctx context.Context, userID string, req *Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	fp := orchestrator.Fingerprint(req.Audio)
	env := orchestrator.NewEnvelope(ServiceName, userID)
	env.DedupKey = fp

	opts := orchestrator.Options{
		CacheKey: "stt:" + fp,
		CacheTTL: r.config.CacheTTL,
		Service:  ServiceName,
	}

	result, err := orchestrator.Do(ctx, r.orch, env, opts, func(ctx context.Context) (*Result, error) {
		return r.tryProviders(ctx, req)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("all transcription providers failed, returning sentinel",
			"error", err,
		)
		return &Result{Source: SourceFallback}, nil
	}
	return result, nil
}

// tryProviders walks the priority list until one succeeds.
func (r *Resolver) tryProviders(ctx context.Context, req *Request) (*Result, error) {
	var lastErr error
	for i, p := range r.providers {
		result, err := p.Transcribe(ctx, req)
		if err == nil {
			if i > 0 {
				r.logger.Info("fallback transcriber succeeded",
					"source", p.Source(),
				)
			}
			return result, nil
		}

		lastErr = err
		r.logger.Warn("transcriber failed, trying next",
			"source", p.Source(),
			"error", err,
		)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if lastErr == nil {
		lastErr = ErrNoProviders
	}
	return nil, lastErr
}

// Health probes each provider and reports status keyed by source name.
func (r *Resolver) Health(ctx context.Context) map[string]string {
	health := make(map[string]string, len(r.providers))
	for _, p := range r.providers {
		if err := p.Health(ctx); err != nil {
			health[p.Source()] = err.Error()
		} else {
			health[p.Source()] = "ok"
		}
	}
	return health
}

// Close closes all providers.
func (r *Resolver) Close() error {
	var lastErr error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
