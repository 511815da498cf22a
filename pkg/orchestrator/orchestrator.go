// Package orchestrator is the single choke point through which every
// external-provider call flows. It applies response caching, in-flight
// deduplication and per-service circuit breaking uniformly, so individual
// components only describe their call and its fallback policy.
//
// Callers wrap a provider call as a unit of work and route it through Do:
//
//	env := orchestrator.NewEnvelope("transcription", userID)
//	env.DedupKey = orchestrator.Fingerprint(audio)
//
//	result, err := orchestrator.Do(ctx, orch, env, orchestrator.Options{
//	    Service: "whisper",
//	}, func(ctx context.Context) (*transcribe.Result, error) {
//	    return provider.Transcribe(ctx, req)
//	})
//
// Orchestrator failures are always recoverable by the caller: cache and
// dedup bookkeeping errors degrade to a cache miss, and an open circuit is
// reported as ErrServiceUnavailable for the caller's fallback chain.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voxcart/voxcart/pkg/store"
)

// Sentinel errors.
var (
	// ErrServiceUnavailable is returned without calling out when the named
	// service's circuit is open. Callers treat it like a provider failure.
	ErrServiceUnavailable = errors.New("orchestrator: service circuit open")
)

// Priority classifies a request for logging and future scheduling decisions.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Envelope is the ephemeral unit the orchestrator operates on.
type Envelope struct {
	// RequestID uniquely identifies this logical request.
	RequestID string

	// Type tags the kind of request (transcription, synthesis, ...).
	Type string

	// UserID is the requesting user, if any.
	UserID string

	// DedupKey, when set, must be a deterministic function of semantically
	// identical input so concurrent identical requests collapse into one
	// upstream call.
	DedupKey string

	// Priority class of the request.
	Priority Priority

	// CreatedAt is when the envelope was built.
	CreatedAt time.Time
}

// NewEnvelope creates an envelope with a fresh request id.
func NewEnvelope(reqType, userID string) Envelope {
	return Envelope{
		RequestID: uuid.NewString(),
		Type:      reqType,
		UserID:    userID,
		Priority:  PriorityNormal,
		CreatedAt: time.Now(),
	}
}

// Options controls caching, dedup and circuit breaking for one call.
type Options struct {
	// CacheKey enables response caching when non-empty.
	CacheKey string

	// CacheTTL is the TTL for the cached response.
	CacheTTL time.Duration

	// Service names the upstream for circuit breaking. Empty skips the breaker.
	Service string

	// SkipCache bypasses the cache lookup (the result is still not cached).
	SkipCache bool

	// SkipDedup bypasses in-flight deduplication.
	SkipDedup bool
}

// Config holds orchestrator configuration.
type Config struct {
	// CallTimeout bounds each unit of work. Zero means no extra bound.
	CallTimeout time.Duration

	// Breaker configures the per-service circuit breakers.
	Breaker BreakerConfig

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		CallTimeout: 30 * time.Second,
		Breaker:     DefaultBreakerConfig(),
		Logger:      slog.Default(),
	}
}

// Orchestrator coordinates provider calls against a shared cache.
type Orchestrator struct {
	cache    store.Cache
	breakers *breakerRegistry
	inflight *inflightRegistry
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates an orchestrator backed by the given cache.
func New(cache store.Cache, cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cache:    cache,
		breakers: newBreakerRegistry(cfg.Breaker),
		inflight: newInflightRegistry(),
		timeout:  cfg.CallTimeout,
		logger:   logger.With("component", "orchestrator"),
	}
}

// Do routes one provider call through the orchestrator: cache lookup, then
// in-flight deduplication, then the circuit-broken unit of work. On success
// the result is cached under opts.CacheKey (when set) with opts.CacheTTL.
//
// Results are cached as JSON, so T must be JSON round-trippable.
func Do[T any](ctx context.Context, o *Orchestrator, env Envelope, opts Options, work func(context.Context) (T, error)) (T, error) {
	var zero T

	if opts.CacheKey != "" && !opts.SkipCache {
		if v, ok := cacheGet[T](ctx, o, opts.CacheKey); ok {
			o.logger.Debug("cache hit",
				"request_id", env.RequestID,
				"type", env.Type,
				"cache_key", opts.CacheKey,
			)
			return v, nil
		}
	}

	if env.DedupKey != "" && !opts.SkipDedup {
		call, leader := o.inflight.join(env.DedupKey)
		if !leader {
			o.logger.Debug("joined in-flight request",
				"request_id", env.RequestID,
				"dedup_key", env.DedupKey,
			)
			select {
			case <-call.done:
				if call.err != nil {
					return zero, call.err
				}
				v, ok := call.value.(T)
				if !ok {
					return zero, fmt.Errorf("orchestrator: in-flight result type mismatch for key %s", env.DedupKey)
				}
				return v, nil
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		v, err := o.execute(ctx, env, opts, func(ctx context.Context) (any, error) {
			return work(ctx)
		})
		o.inflight.complete(env.DedupKey, call, v, err)
		if err != nil {
			return zero, err
		}
		return v.(T), nil
	}

	v, err := o.execute(ctx, env, opts, func(ctx context.Context) (any, error) {
		return work(ctx)
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// execute runs the work under the service's circuit breaker and populates
// the cache on success.
func (o *Orchestrator) execute(ctx context.Context, env Envelope, opts Options, work func(context.Context) (any, error)) (any, error) {
	var breaker *Breaker
	if opts.Service != "" {
		breaker = o.breakers.get(opts.Service)
		if !breaker.Allow() {
			o.logger.Warn("failing fast, circuit open",
				"request_id", env.RequestID,
				"service", opts.Service,
			)
			return nil, fmt.Errorf("%s: %w", opts.Service, ErrServiceUnavailable)
		}
	}

	callCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	v, err := work(callCtx)
	if err != nil {
		if breaker != nil {
			breaker.RecordFailure()
		}
		o.logger.Warn("provider call failed",
			"request_id", env.RequestID,
			"type", env.Type,
			"service", opts.Service,
			"latency_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	if breaker != nil {
		breaker.RecordSuccess()
	}

	if opts.CacheKey != "" {
		o.cachePut(ctx, opts, v)
	}

	o.logger.Debug("provider call succeeded",
		"request_id", env.RequestID,
		"type", env.Type,
		"service", opts.Service,
		"priority", env.Priority,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return v, nil
}

// cacheGet looks up and decodes a cached result. Any store or decode failure
// degrades to a miss.
func cacheGet[T any](ctx context.Context, o *Orchestrator, key string) (T, bool) {
	var zero T
	data, ok, err := o.cache.Get(ctx, key)
	if err != nil {
		o.logger.Warn("cache lookup failed, treating as miss", "cache_key", key, "error", err)
		return zero, false
	}
	if !ok {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		o.logger.Warn("cache decode failed, treating as miss", "cache_key", key, "error", err)
		return zero, false
	}
	return v, true
}

// cachePut stores a result. Failures are logged and swallowed.
func (o *Orchestrator) cachePut(ctx context.Context, opts Options, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		o.logger.Warn("cache encode failed, skipping", "cache_key", opts.CacheKey, "error", err)
		return
	}
	if err := o.cache.Set(ctx, opts.CacheKey, data, opts.CacheTTL); err != nil {
		o.logger.Warn("cache write failed, skipping", "cache_key", opts.CacheKey, "error", err)
	}
}

// BreakerStates returns a snapshot of circuit state by service name.
func (o *Orchestrator) BreakerStates() map[string]string {
	return o.breakers.states()
}

// InFlight returns the number of deduplicated calls currently executing.
func (o *Orchestrator) InFlight() int {
	return o.inflight.size()
}

// Fingerprint returns a deterministic hex fingerprint of content, suitable
// as a deduplication or cache key component.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FingerprintStrings fingerprints the concatenation of parts with separators,
// for composite cache keys such as (text, voice, format).
func FingerprintStrings(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
