package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxcart/voxcart/pkg/orchestrator"
	"github.com/voxcart/voxcart/pkg/store"
)

type fakeResult struct {
	Text string `json:"text"`
}

func newOrchestrator(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	cfg := orchestrator.DefaultConfig()
	cfg.Breaker = orchestrator.BreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  50 * time.Millisecond,
		SuccessThreshold: 1,
	}
	return orchestrator.New(store.NewMemory(), cfg)
}

func TestDoCaching(t *testing.T) {
	ctx := context.Background()

	t.Run("cache hit skips work", func(t *testing.T) {
		o := newOrchestrator(t)
		env := orchestrator.NewEnvelope("test", "u1")
		opts := orchestrator.Options{CacheKey: "k", CacheTTL: time.Minute}

		var calls int32
		work := func(ctx context.Context) (fakeResult, error) {
			atomic.AddInt32(&calls, 1)
			return fakeResult{Text: "hello"}, nil
		}

		first, err := orchestrator.Do(ctx, o, env, opts, work)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := orchestrator.Do(ctx, o, orchestrator.NewEnvelope("test", "u1"), opts, work)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if calls != 1 {
			t.Errorf("expected 1 upstream call, got %d", calls)
		}
		if first.Text != "hello" || second.Text != "hello" {
			t.Errorf("unexpected results: %+v %+v", first, second)
		}
	})

	t.Run("skip cache forces execution", func(t *testing.T) {
		o := newOrchestrator(t)
		opts := orchestrator.Options{CacheKey: "k", CacheTTL: time.Minute}

		var calls int32
		work := func(ctx context.Context) (fakeResult, error) {
			atomic.AddInt32(&calls, 1)
			return fakeResult{Text: "x"}, nil
		}

		orchestrator.Do(context.Background(), o, orchestrator.NewEnvelope("test", ""), opts, work)
		opts.SkipCache = true
		orchestrator.Do(context.Background(), o, orchestrator.NewEnvelope("test", ""), opts, work)

		if calls != 2 {
			t.Errorf("expected 2 upstream calls, got %d", calls)
		}
	})

	t.Run("failures are not cached", func(t *testing.T) {
		o := newOrchestrator(t)
		opts := orchestrator.Options{CacheKey: "k", CacheTTL: time.Minute}

		var calls int32
		_, err := orchestrator.Do(ctx, o, orchestrator.NewEnvelope("test", ""), opts,
			func(ctx context.Context) (fakeResult, error) {
				atomic.AddInt32(&calls, 1)
				return fakeResult{}, errors.New("boom")
			})
		if err == nil {
			t.Fatal("expected error")
		}

		orchestrator.Do(ctx, o, orchestrator.NewEnvelope("test", ""), opts,
			func(ctx context.Context) (fakeResult, error) {
				atomic.AddInt32(&calls, 1)
				return fakeResult{Text: "ok"}, nil
			})

		if calls != 2 {
			t.Errorf("expected 2 upstream calls, got %d", calls)
		}
	})
}

func TestDoDeduplication(t *testing.T) {
	t.Run("concurrent identical requests collapse to one call", func(t *testing.T) {
		o := newOrchestrator(t)

		var calls int32
		release := make(chan struct{})
		work := func(ctx context.Context) (fakeResult, error) {
			atomic.AddInt32(&calls, 1)
			<-release
			return fakeResult{Text: "shared"}, nil
		}

		const n = 8
		var wg sync.WaitGroup
		results := make([]fakeResult, n)
		errs := make([]error, n)

		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				env := orchestrator.NewEnvelope("transcription", "u1")
				env.DedupKey = "same-audio-hash"
				results[i], errs[i] = orchestrator.Do(context.Background(), o, env, orchestrator.Options{}, work)
			}(i)
		}

		// Give all goroutines time to join the in-flight call.
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		if got := atomic.LoadInt32(&calls); got != 1 {
			t.Errorf("expected exactly 1 upstream call, got %d", got)
		}
		for i := 0; i < n; i++ {
			if errs[i] != nil {
				t.Errorf("request %d: unexpected error: %v", i, errs[i])
			}
			if results[i].Text != "shared" {
				t.Errorf("request %d: unexpected result %+v", i, results[i])
			}
		}
		if o.InFlight() != 0 {
			t.Errorf("expected in-flight registry to be drained, got %d", o.InFlight())
		}
	})

	t.Run("leader failure is shared with waiters", func(t *testing.T) {
		o := newOrchestrator(t)

		boom := errors.New("provider down")
		release := make(chan struct{})

		env1 := orchestrator.NewEnvelope("transcription", "u1")
		env1.DedupKey = "k"

		var wg sync.WaitGroup
		var leaderErr, waiterErr error

		wg.Add(1)
		go func() {
			defer wg.Done()
			_, leaderErr = orchestrator.Do(context.Background(), o, env1, orchestrator.Options{},
				func(ctx context.Context) (fakeResult, error) {
					<-release
					return fakeResult{}, boom
				})
		}()

		time.Sleep(20 * time.Millisecond)

		wg.Add(1)
		go func() {
			defer wg.Done()
			env2 := orchestrator.NewEnvelope("transcription", "u2")
			env2.DedupKey = "k"
			_, waiterErr = orchestrator.Do(context.Background(), o, env2, orchestrator.Options{},
				func(ctx context.Context) (fakeResult, error) {
					t.Error("waiter should not execute work")
					return fakeResult{}, nil
				})
		}()

		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		if !errors.Is(leaderErr, boom) {
			t.Errorf("leader: expected boom, got %v", leaderErr)
		}
		if !errors.Is(waiterErr, boom) {
			t.Errorf("waiter: expected shared boom, got %v", waiterErr)
		}
	})

	t.Run("waiter context cancellation returns early", func(t *testing.T) {
		o := newOrchestrator(t)
		release := make(chan struct{})
		defer close(release)

		env := orchestrator.NewEnvelope("t", "")
		env.DedupKey = "k"
		go orchestrator.Do(context.Background(), o, env, orchestrator.Options{},
			func(ctx context.Context) (fakeResult, error) {
				<-release
				return fakeResult{}, nil
			})

		time.Sleep(20 * time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		env2 := orchestrator.NewEnvelope("t", "")
		env2.DedupKey = "k"
		_, err := orchestrator.Do(ctx, o, env2, orchestrator.Options{},
			func(ctx context.Context) (fakeResult, error) {
				return fakeResult{}, nil
			})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}

func TestDoCircuitBreaker(t *testing.T) {
	ctx := context.Background()

	t.Run("opens after repeated failures and fails fast", func(t *testing.T) {
		o := newOrchestrator(t)
		opts := orchestrator.Options{Service: "synthesis"}
		boom := errors.New("down")

		var calls int32
		fail := func(ctx context.Context) (fakeResult, error) {
			atomic.AddInt32(&calls, 1)
			return fakeResult{}, boom
		}

		// Threshold is 2 in newOrchestrator.
		orchestrator.Do(ctx, o, orchestrator.NewEnvelope("t", ""), opts, fail)
		orchestrator.Do(ctx, o, orchestrator.NewEnvelope("t", ""), opts, fail)

		_, err := orchestrator.Do(ctx, o, orchestrator.NewEnvelope("t", ""), opts, fail)
		if !errors.Is(err, orchestrator.ErrServiceUnavailable) {
			t.Fatalf("expected ErrServiceUnavailable, got %v", err)
		}
		if calls != 2 {
			t.Errorf("expected no call while open, got %d calls", calls)
		}
	})

	t.Run("recovers after the recovery timeout", func(t *testing.T) {
		o := newOrchestrator(t)
		opts := orchestrator.Options{Service: "synthesis"}
		boom := errors.New("down")

		fail := func(ctx context.Context) (fakeResult, error) { return fakeResult{}, boom }
		orchestrator.Do(ctx, o, orchestrator.NewEnvelope("t", ""), opts, fail)
		orchestrator.Do(ctx, o, orchestrator.NewEnvelope("t", ""), opts, fail)

		time.Sleep(60 * time.Millisecond) // past RecoveryTimeout

		result, err := orchestrator.Do(ctx, o, orchestrator.NewEnvelope("t", ""), opts,
			func(ctx context.Context) (fakeResult, error) {
				return fakeResult{Text: "back"}, nil
			})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Text != "back" {
			t.Errorf("unexpected result: %+v", result)
		}
		if states := o.BreakerStates(); states["synthesis"] != "closed" {
			t.Errorf("expected closed circuit, got %s", states["synthesis"])
		}
	})

	t.Run("breakers are per service", func(t *testing.T) {
		o := newOrchestrator(t)
		boom := errors.New("down")
		fail := func(ctx context.Context) (fakeResult, error) { return fakeResult{}, boom }

		orchestrator.Do(ctx, o, orchestrator.NewEnvelope("t", ""), orchestrator.Options{Service: "a"}, fail)
		orchestrator.Do(ctx, o, orchestrator.NewEnvelope("t", ""), orchestrator.Options{Service: "a"}, fail)

		_, err := orchestrator.Do(ctx, o, orchestrator.NewEnvelope("t", ""), orchestrator.Options{Service: "b"},
			func(ctx context.Context) (fakeResult, error) {
				return fakeResult{Text: "fine"}, nil
			})
		if err != nil {
			t.Errorf("service b should be unaffected: %v", err)
		}
	})
}

func TestFingerprint(t *testing.T) {
	t.Run("identical content yields identical keys", func(t *testing.T) {
		a := orchestrator.Fingerprint([]byte("audio-bytes"))
		b := orchestrator.Fingerprint([]byte("audio-bytes"))
		if a != b {
			t.Errorf("expected deterministic fingerprint, got %s != %s", a, b)
		}
	})

	t.Run("different content yields different keys", func(t *testing.T) {
		if orchestrator.Fingerprint([]byte("a")) == orchestrator.Fingerprint([]byte("b")) {
			t.Error("expected distinct fingerprints")
		}
	})

	t.Run("composite parts are separator-safe", func(t *testing.T) {
		a := orchestrator.FingerprintStrings("ab", "c")
		b := orchestrator.FingerprintStrings("a", "bc")
		if a == b {
			t.Error("expected distinct fingerprints for different part splits")
		}
	})
}
