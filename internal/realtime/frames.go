// Package realtime owns the persistent connection to the live-messaging
// backend: connect/reconnect with bounded attempts, room membership with
// auto-rejoin, and the event router the rest of the system subscribes to.
package realtime

import "encoding/json"

// Event identifies an inbound event kind on the router bus.
type Event string

const (
	EventMessage             Event = "message"
	EventNotification        Event = "notification"
	EventUserJoined          Event = "user_joined"
	EventUserLeft            Event = "user_left"
	EventTypingStart         Event = "typing_start"
	EventTypingStop          Event = "typing_stop"
	EventCollaborationUpdate Event = "collaboration_update"
	EventRoomUpdate          Event = "room_update"
	EventConnectionStatus    Event = "connection_status"
)

// Control frame names exchanged with the backend but not surfaced on the bus.
const (
	frameJoin               = "join"
	frameJoined             = "joined"
	frameLeave              = "leave"
	frameCollaborationStart = "collaboration_start"
	frameCollaborationEnd   = "collaboration_end"
)

// Frame is the JSON envelope on the wire. Ref correlates a request with its
// acknowledgement.
type Frame struct {
	Event    string          `json:"event"`
	Room     string          `json:"room,omitempty"`
	RoomType string          `json:"room_type,omitempty"`
	To       string          `json:"to,omitempty"`
	From     string          `json:"from,omitempty"`
	Ref      string          `json:"ref,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func mustPayload(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
