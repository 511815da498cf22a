package synth

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const sourceLocal = "local"

// Local runs an offline synthesizer binary (Piper) on the host. It is
// tried before any remote provider: no network, no billing, no rate
// limits.
type Local struct {
	binary string
	model  string
	config *Config
	logger *slog.Logger
}

// NewLocal creates a local synthesizer. The binary must be on PATH or
// given as an absolute path via WithBinary.
func NewLocal(opts ...Option) (*Local, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	path, err := exec.LookPath(cfg.BinaryPath)
	if err != nil {
		return nil, WrapError(sourceLocal, fmt.Errorf("%w: %s not found", ErrNotAvailable, cfg.BinaryPath))
	}

	return &Local{
		binary: path,
		model:  cfg.ModelPath,
		config: cfg,
		logger: cfg.Logger.With("component", "synth.local"),
	}, nil
}

// Source identifies this stage.
func (l *Local) Source() string { return sourceLocal }

// Synthesize pipes the text through the synthesizer binary and returns
// the raw audio written to stdout. The request voice is ignored; the
// local model has a single voice.
func (l *Local) Synthesize(ctx context.Context, req *Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	args := []string{"--output-raw"}
	if l.model != "" {
		args = append(args, "--model", l.model)
	}

	cmd := exec.CommandContext(ctx, l.binary, args...)
	cmd.Stdin = strings.NewReader(req.Text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, WrapError(sourceLocal, fmt.Errorf("%s: %w: %s",
			l.binary, err, strings.TrimSpace(stderr.String())))
	}

	audio := stdout.Bytes()
	if len(audio) == 0 {
		return nil, WrapError(sourceLocal, fmt.Errorf("no audio produced"))
	}

	latency := time.Since(start).Milliseconds()
	l.logger.Debug("synthesized audio",
		"chars", len(req.Text),
		"bytes", len(audio),
		"latency_ms", latency,
	)

	return &Result{
		Audio:     audio,
		Source:    sourceLocal,
		Encoding:  EncodingPCM22,
		LatencyMs: latency,
	}, nil
}

// Health checks that the binary still resolves.
func (l *Local) Health(ctx context.Context) error {
	if _, err := exec.LookPath(l.binary); err != nil {
		return WrapError(sourceLocal, ErrNotAvailable)
	}
	return nil
}

// Close releases resources.
func (l *Local) Close() error { return nil }

// Verify Local implements Synthesizer at compile time.
var _ Synthesizer = (*Local)(nil)
