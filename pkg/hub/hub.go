package hub

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/voxcart/voxcart/pkg/engine"
)

// Hub maintains the set of connected observers and broadcasts frames to
// them. All client bookkeeping happens on the Run goroutine.
type Hub struct {
	name       string
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *slog.Logger

	mu       sync.RWMutex
	running  bool
	stopOnce sync.Once
}

// New creates a hub. Run must be started on its own goroutine before
// clients attach.
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		name:       name,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With("component", "hub", "hub", name),
	}
}

// Run is the hub's main loop. It owns the client map; register,
// unregister and broadcast all funnel through here.
func (h *Hub) Run() {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", "clients", count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client buffer full; it is too slow to keep.
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("dropped slow client")
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.running = false
			h.mu.Unlock()
			return
		}
	}
}

// Stop shuts the hub down and disconnects all clients. Safe to call
// more than once and from concurrent goroutines.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// Broadcast queues a frame for all connected clients. Never blocks; the
// frame is dropped when the queue is full.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	default:
		h.logger.Warn("broadcast queue full, dropping frame")
	}
}

// BroadcastJSON encodes and broadcasts a value as a JSON frame.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// BroadcastBinary broadcasts raw bytes, such as synthesized audio.
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(NewBinaryMessage(data))
}

// Publish implements engine.EventSink. Encoding failures are logged and
// the event dropped; observability must not fail a turn.
func (h *Hub) Publish(event engine.Event) {
	if err := h.BroadcastJSON(event); err != nil {
		h.logger.Warn("event encode failed", "type", event.Type, "error", err)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning reports whether the hub loop is active.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Verify Hub implements engine.EventSink at compile time.
var _ engine.EventSink = (*Hub)(nil)
