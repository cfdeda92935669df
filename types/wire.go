package types

import "encoding/json"

// JSON-serialized WebsocketMessage is what is actually sent via the Websocket connection
type WebsocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Events the client sends to the server.
const (
	EventJoinChat    = "join_chat"
	EventSendMessage = "send_message"
)

// JoinPayload asks to subscribe the connection to a trip's room channel.
// The tripId is untrusted input and is always re-checked against the
// membership rules, never against a previously successful join.
type JoinPayload struct {
	TripId string `json:"tripId" mapstructure:"tripId" validate:"required"`
}

// SendMessagePayload carries one outgoing chat message.
type SendMessagePayload struct {
	TripId   string `json:"tripId" mapstructure:"tripId" validate:"required"`
	Message  string `json:"message" mapstructure:"message"`
	Kind     string `json:"type" mapstructure:"type" validate:"omitempty,oneof=text image"`
	ImageUrl string `json:"imageUrl" mapstructure:"imageUrl"`
}

// Encode wraps an event payload in the wire envelope.
func Encode(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WebsocketMessage{Event: event, Data: data})
}
