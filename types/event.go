package types

// Events the server pushes to clients. This is a closed set: every event on
// the wire is one of these names with exactly the payload struct below, so
// the protocol stays exhaustively checkable.
const (
	EventConnected       = "connected"
	EventJoinedRoom      = "joined_room"
	EventReceiveMessage  = "receive_message"
	EventNewNotification = "new_notification"
	EventError           = "error"
)

// ConnectedEvent acknowledges the connection and its identity.
type ConnectedEvent struct {
	UserId   string `json:"userId"`
	Username string `json:"username"`
}

// RoomJoinedEvent acknowledges a successful room subscription.
type RoomJoinedEvent struct {
	Room string `json:"room"`
}

// ErrorEvent is the single error shape delivered to the requesting
// connection. Rejected operations never crash the hub and are never
// silently dropped.
type ErrorEvent struct {
	Message string `json:"message"`
}

func NewConnectedEvent(userId, username string) ([]byte, error) {
	return Encode(EventConnected, ConnectedEvent{UserId: userId, Username: username})
}

func NewRoomJoinedEvent(room string) ([]byte, error) {
	return Encode(EventJoinedRoom, RoomJoinedEvent{Room: room})
}

func NewMessageEvent(msg *Message) ([]byte, error) {
	return Encode(EventReceiveMessage, msg)
}

func NewNotificationEvent(n *Notification) ([]byte, error) {
	return Encode(EventNewNotification, n)
}

func NewErrorEvent(message string) ([]byte, error) {
	return Encode(EventError, ErrorEvent{Message: message})
}
