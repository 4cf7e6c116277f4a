package types

import "encoding/json"

// Signal names exchanged over the websocket.
const (
	SignalSetup           = "setup"
	SignalConnected       = "connected"
	SignalJoinChat        = "join chat"
	SignalTyping          = "typing"
	SignalStopTyping      = "stop typing"
	SignalNewMessage      = "new message"
	SignalMessageReceived = "message received"
)

// JSON-serialized WebsocketMessage is what is actually sent via the Websocket connection
type WebsocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewWebsocketMessage marshals data into the envelope for event. A nil data leaves the payload empty.
func NewWebsocketMessage(event string, data interface{}) ([]byte, error) {
	m := WebsocketMessage{Event: event}
	if data != nil {
		switch d := data.(type) {
		case json.RawMessage:
			m.Data = d
		default:
			raw, err := json.Marshal(d)
			if err != nil {
				return nil, err
			}
			m.Data = raw
		}
	}
	return json.Marshal(m)
}
