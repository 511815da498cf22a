// Package hub is a channel-based websocket broadcast hub. It fans engine
// events out to every connected observer and drops clients that cannot
// keep up, so a slow dashboard can never stall a conversation turn.
package hub

// MessageType indicates the websocket frame format.
type MessageType int

const (
	// JSONMessage is a JSON-encoded event frame.
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data, such as synthesized audio.
	BinaryMessage
)

// Message is one frame queued for broadcast.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON bytes.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps binary data.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
