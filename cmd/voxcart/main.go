// voxcart: voice shopping assistant service.
// Accepts voice and text turns over HTTP, streams conversation events
// over websocket.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/voxcart/voxcart/internal/log"
	"github.com/voxcart/voxcart/pkg/engine"
	"github.com/voxcart/voxcart/pkg/history"
	"github.com/voxcart/voxcart/pkg/hub"
	"github.com/voxcart/voxcart/pkg/intent"
	"github.com/voxcart/voxcart/pkg/llm"
	"github.com/voxcart/voxcart/pkg/orchestrator"
	"github.com/voxcart/voxcart/pkg/prefs"
	"github.com/voxcart/voxcart/pkg/respond"
	"github.com/voxcart/voxcart/pkg/store"
	"github.com/voxcart/voxcart/pkg/synth"
	"github.com/voxcart/voxcart/pkg/transcribe"
	"github.com/voxcart/voxcart/pkg/web"
)

var version = "1.0.0"

var (
	port     = flag.String("port", "8080", "HTTP server port")
	logLevel = flag.String("log-level", "info", "log level (debug, info, warn, error)")
	voice    = flag.String("voice", "nova", "default synthesis voice")
)

func main() {
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	godotenv.Load()

	log.Init(*logLevel)
	logger := log.L()
	logger.Info("starting voxcart", "version", version)

	if envPort := os.Getenv("PORT"); envPort != "" {
		*port = envPort
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Session cache: Redis when configured, in-memory otherwise.
	mem := store.NewMemory()
	var cache store.Cache = mem
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		redis, err := store.NewRedis(store.RedisConfig{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		if err != nil {
			logger.Warn("redis unavailable, using in-memory cache", "error", err)
		} else {
			defer redis.Close()
			cache = redis
			logger.Info("session cache on redis", "addr", addr)
		}
	}

	// Durable profile and transcript store: Postgres when configured.
	var durable store.Durable = mem.AsDurable()
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		pg, err := store.NewPostgres(ctx, dsn)
		if err != nil {
			logger.Warn("postgres unavailable, using in-memory store", "error", err)
		} else {
			defer pg.Close()
			durable = pg
			logger.Info("durable store on postgres")
		}
	}

	orch := orchestrator.New(cache, orchestrator.Config{
		CallTimeout: 60 * time.Second,
		Breaker:     orchestrator.DefaultBreakerConfig(),
		Logger:      logger,
	})

	provider := buildLLM(ctx, logger)
	defer provider.Close()

	events := hub.New("events", logger)
	go events.Run()
	defer events.Stop()

	eng := engine.New(engine.Deps{
		Cache:       cache,
		Transcriber: buildTranscriber(ctx, orch, logger),
		Extractor:   intent.NewExtractor(provider, orch, intent.ExtractorConfig{Logger: logger}),
		Generator:   respond.NewGenerator(provider, orch, respond.GeneratorConfig{Logger: logger}),
		Synthesizer: buildSynthesizer(orch, logger),
		Optimizer:   history.NewOptimizer(provider, orch, history.OptimizerConfig{Logger: logger}),
		Log:         history.NewLog(durable),
		Prefs: prefs.NewManager(durable, cache, prefs.ManagerConfig{
			Logger: logger,
		}),
		Orchestrator: orch,
		Events:       events,
	}, engine.Config{
		StateTTL:     30 * time.Minute,
		TurnRetries:  2,
		SynthRetries: 2,
		DefaultVoice: *voice,
		Logger:       logger,
	})

	server := web.NewServer(eng, events, web.Config{
		Port:   *port,
		Logger: logger,
	})

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("server stopped", "error", err)
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := server.Shutdown(); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

// buildLLM assembles the chat provider chain from whatever API keys are
// present. With no keys at all every component falls back to its
// rule-based path, which keeps the service usable for development.
func buildLLM(ctx context.Context, logger *slog.Logger) llm.Provider {
	var providers []llm.Provider

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		gemini, err := llm.NewGemini(ctx, llm.WithAPIKey(key))
		if err != nil {
			logger.Warn("gemini init failed", "error", err)
		} else {
			providers = append(providers, gemini)
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		client, err := llm.NewClient(llm.WithAPIKey(key))
		if err != nil {
			logger.Warn("openai init failed", "error", err)
		} else {
			providers = append(providers, client)
		}
	}

	if len(providers) == 0 {
		logger.Warn("no chat provider configured, rule-based fallbacks only")
		return llm.Unavailable{}
	}

	chain, err := llm.NewChain(providers...)
	if err != nil {
		return providers[0]
	}
	logger.Info("chat providers ready", "count", len(providers))
	return chain
}

// buildTranscriber assembles the transcription fallback order:
// whisper first, gemini second.
func buildTranscriber(ctx context.Context, orch *orchestrator.Orchestrator, logger *slog.Logger) *transcribe.Resolver {
	var providers []transcribe.Transcriber

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		whisper, err := transcribe.NewWhisper(transcribe.WithAPIKey(key))
		if err != nil {
			logger.Warn("whisper init failed", "error", err)
		} else {
			providers = append(providers, whisper)
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		gemini, err := transcribe.NewGemini(ctx, transcribe.WithAPIKey(key))
		if err != nil {
			logger.Warn("gemini transcription init failed", "error", err)
		} else {
			providers = append(providers, gemini)
		}
	}
	if len(providers) == 0 {
		logger.Warn("no transcription provider configured, voice turns will degrade")
	}

	return transcribe.NewResolver(orch, transcribe.DefaultResolverConfig(), providers...)
}

// buildSynthesizer assembles the synthesis stages: local binary first
// when installed, then the ElevenLabs HTTP and websocket providers.
func buildSynthesizer(orch *orchestrator.Orchestrator, logger *slog.Logger) *synth.Resolver {
	var stages []synth.Synthesizer

	if local, err := synth.NewLocal(); err == nil {
		stages = append(stages, local)
		logger.Info("local synthesis available")
	}

	if key := os.Getenv("ELEVENLABS_API_KEY"); key != "" {
		if eleven, err := synth.NewElevenLabs(synth.WithAPIKey(key)); err != nil {
			logger.Warn("elevenlabs init failed", "error", err)
		} else {
			stages = append(stages, eleven)
		}
		if ws, err := synth.NewElevenLabsWS(synth.WithAPIKey(key)); err != nil {
			logger.Warn("elevenlabs websocket init failed", "error", err)
		} else {
			stages = append(stages, ws)
		}
	}
	if len(stages) == 0 {
		logger.Warn("no synthesis provider configured, replies will be text-only")
	}

	return synth.NewResolver(orch, synth.DefaultResolverConfig(), stages...)
}
