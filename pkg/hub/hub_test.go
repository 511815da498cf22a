package hub

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/voxcart/voxcart/pkg/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// attach registers a bare client without a websocket connection.
func attach(h *Hub, buffer int) *Client {
	c := &Client{hub: h, send: make(chan Message, buffer)}
	h.register <- c
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestHubBroadcast(t *testing.T) {
	t.Run("events reach every client", func(t *testing.T) {
		h := New("events", testLogger())
		go h.Run()
		defer h.Stop()

		a := attach(h, 8)
		b := attach(h, 8)
		waitFor(t, func() bool { return h.ClientCount() == 2 })

		h.Publish(engine.Event{Type: engine.EventTurnCompleted, Text: "hello"})

		for _, c := range []*Client{a, b} {
			select {
			case msg := <-c.send:
				if msg.Type != JSONMessage {
					t.Errorf("expected JSON frame, got %v", msg.Type)
				}
				var event engine.Event
				if err := json.Unmarshal(msg.Data, &event); err != nil {
					t.Fatalf("undecodable frame: %v", err)
				}
				if event.Type != engine.EventTurnCompleted || event.Text != "hello" {
					t.Errorf("unexpected event %+v", event)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("frame never arrived")
			}
		}
	})

	t.Run("slow client is dropped, fast client survives", func(t *testing.T) {
		h := New("events", testLogger())
		go h.Run()
		defer h.Stop()

		slow := attach(h, 1)
		fast := attach(h, 64)
		waitFor(t, func() bool { return h.ClientCount() == 2 })

		for i := 0; i < 10; i++ {
			h.BroadcastBinary([]byte{byte(i)})
			time.Sleep(time.Millisecond)
		}

		waitFor(t, func() bool { return h.ClientCount() == 1 })
		if len(fast.send) == 0 {
			t.Error("fast client received nothing")
		}
		// Slow client's channel was closed by the hub.
		waitFor(t, func() bool {
			select {
			case _, ok := <-slow.send:
				return !ok
			default:
				return false
			}
		})
	})

	t.Run("stop disconnects everyone", func(t *testing.T) {
		h := New("events", testLogger())
		go h.Run()

		attach(h, 8)
		waitFor(t, func() bool { return h.ClientCount() == 1 })

		h.Stop()
		waitFor(t, func() bool { return !h.IsRunning() })
		if h.ClientCount() != 0 {
			t.Errorf("expected no clients after stop, got %d", h.ClientCount())
		}
	})

	t.Run("stop is safe to call repeatedly and concurrently", func(t *testing.T) {
		h := New("events", testLogger())
		go h.Run()

		waitFor(t, func() bool { return h.IsRunning() })

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.Stop()
			}()
		}
		wg.Wait()
		h.Stop()

		waitFor(t, func() bool { return !h.IsRunning() })
	})

	t.Run("broadcast never blocks when queue is full", func(t *testing.T) {
		h := New("events", testLogger())
		// Not running; queue fills and further frames drop.
		done := make(chan struct{})
		go func() {
			for i := 0; i < 1000; i++ {
				h.BroadcastBinary([]byte{0x01})
			}
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("broadcast blocked")
		}
	})
}
