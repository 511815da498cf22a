package engine

import "time"

// Event types published over the sink as a turn progresses.
const (
	EventConversationStarted = "conversation.started"
	EventTurnTranscribed     = "turn.transcribed"
	EventTurnCompleted       = "turn.completed"
	EventConversationEnded   = "conversation.ended"
)

// Event is a lightweight notification about conversation progress,
// consumed by the websocket hub.
type Event struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	Turn           int       `json:"turn,omitempty"`
	Text           string    `json:"text,omitempty"`
	Source         string    `json:"source,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// EventSink receives engine events. Implementations must not block;
// dropping events under pressure is acceptable.
type EventSink interface {
	Publish(event Event)
}

// publish sends an event if a sink is configured.
func (e *Engine) publish(event Event) {
	if e.events == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	e.events.Publish(event)
}
