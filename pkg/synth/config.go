package synth

import (
	"log/slog"
	"time"
)

// Encoding represents audio encoding types.
// These match ElevenLabs output format options.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000"     // 16kHz mono PCM16
	EncodingPCM22 Encoding = "pcm_22050"     // 22.05kHz mono PCM16
	EncodingPCM24 Encoding = "pcm_24000"     // 24kHz mono PCM16
	EncodingMP3   Encoding = "mp3_44100_128" // MP3 128kbps
)

// VoiceSettings controls voice characteristics for providers that
// support them.
type VoiceSettings struct {
	// Stability controls voice consistency (0.0-1.0).
	Stability float64

	// SimilarityBoost controls how closely the voice matches the
	// original sample (0.0-1.0).
	SimilarityBoost float64

	// SpeakerBoost enhances speaker clarity.
	SpeakerBoost bool
}

// DefaultVoiceSettings returns sensible defaults for voice synthesis.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.75,
		SpeakerBoost:    true,
	}
}

// Config holds synthesis provider configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Provider credentials
	APIKey  string
	BaseURL string

	// Voice configuration
	VoiceID       string
	ModelID       string
	VoiceSettings VoiceSettings

	// Audio output
	OutputFormat Encoding

	// Local synthesizer
	BinaryPath string
	ModelPath  string

	// Timeouts
	Timeout time.Duration

	// Retry configuration
	MaxRetries int
	RetryDelay time.Duration

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring synthesis providers.
type Option func(*Config)

// WithAPIKey sets the API key for the provider.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithVoice sets the default voice ID.
func WithVoice(voiceID string) Option {
	return func(c *Config) { c.VoiceID = voiceID }
}

// WithModel sets the model ID.
func WithModel(modelID string) Option {
	return func(c *Config) { c.ModelID = modelID }
}

// WithOutputFormat sets the audio output format.
func WithOutputFormat(format Encoding) Option {
	return func(c *Config) { c.OutputFormat = format }
}

// WithVoiceSettings sets voice characteristics.
func WithVoiceSettings(settings VoiceSettings) Option {
	return func(c *Config) { c.VoiceSettings = settings }
}

// WithBinary sets the local synthesizer binary and model paths.
func WithBinary(binaryPath, modelPath string) Option {
	return func(c *Config) {
		c.BinaryPath = binaryPath
		c.ModelPath = modelPath
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.Timeout = timeout }
}

// WithRetry configures retry behavior for failed requests.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithLogger sets the structured logger for the provider.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		ModelID:       "eleven_turbo_v2_5",
		OutputFormat:  EncodingPCM24,
		VoiceSettings: DefaultVoiceSettings(),
		BinaryPath:    "piper",
		Timeout:       30 * time.Second,
		MaxRetries:    2,
		RetryDelay:    100 * time.Millisecond,
		Logger:        slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}
