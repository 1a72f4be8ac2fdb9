package hubwire

import (
	"encoding/json"

	jsoniter "github.com/json-iterator/go"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// EventName identifies a channel event. The same constant set is used for
// outbound emissions, inbound dispatch and the client's local lifecycle
// notifications, so handlers are always keyed by one namespace.
type EventName string

const (
	EventJoin          EventName = "join"
	EventLeave         EventName = "leave"
	EventMessage       EventName = "message"
	EventTyping        EventName = "typing"
	EventStopTyping    EventName = "stop_typing"
	EventMessageRead   EventName = "message_read"
	EventUserActive    EventName = "user_active"
	EventUserAway      EventName = "user_away"
	EventUserJoined    EventName = "user_joined"
	EventPing          EventName = "ping"
	EventPong          EventName = "pong"
	EventMessageStatus EventName = "message_status"
	EventJoinSuccess   EventName = "join_success"
)

// Local lifecycle events. These never travel on the wire; the client
// dispatches them itself as the connection moves through its states.
const (
	EventConnect          EventName = "connect"
	EventDisconnect       EventName = "disconnect"
	EventReconnect        EventName = "reconnect"
	EventReconnectAttempt EventName = "reconnect_attempt"
	EventError            EventName = "error"
)

// Packet is the wire envelope: an event name plus its JSON payload.
type Packet struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinPayload subscribes this client to a room.
type JoinPayload struct {
	RoomID    string `json:"room_id"`
	VisitorID string `json:"visitor_id"`
}

// LeavePayload drops a room subscription.
type LeavePayload struct {
	RoomID string `json:"room_id"`
}

// MessagePayload is a chat message. Outbound messages carry the
// client-generated MessageID used to correlate delivery acknowledgments;
// inbound messages additionally carry the sender.
type MessagePayload struct {
	RoomID      string `json:"room_id"`
	Content     string `json:"content"`
	MessageID   string `json:"message_id"`
	MessageType string `json:"message_type"`
	Timestamp   int64  `json:"timestamp"`
	SenderID    string `json:"sender_id,omitempty"`
}

// StatusPayload is the hub's acknowledgment for a tracked message, keyed by
// the client-generated message id.
type StatusPayload struct {
	ClientMessageID string         `json:"client_message_id"`
	Status          DeliveryStatus `json:"status"`
	ServerMessageID string         `json:"server_message_id,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// TypingPayload reports typing activity in a room.
type TypingPayload struct {
	RoomID    string `json:"room_id"`
	Typing    bool   `json:"typing"`
	VisitorID string `json:"visitor_id,omitempty"`
}

// ReadReceiptPayload marks messages in a room as read.
type ReadReceiptPayload struct {
	RoomID     string   `json:"room_id"`
	MessageIDs []string `json:"message_ids"`
	VisitorID  string   `json:"visitor_id,omitempty"`
}

// PresencePayload carries room presence transitions (user_joined,
// user_active, user_away). Outbound presence updates only name the room.
type PresencePayload struct {
	RoomID    string `json:"room_id"`
	VisitorID string `json:"visitor_id,omitempty"`
}

// JoinSuccessPayload confirms a join.
type JoinSuccessPayload struct {
	RoomID string `json:"room_id"`
}

// PingPayload is a heartbeat probe carrying the send time in Unix
// milliseconds.
type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// PongPayload echoes the ping timestamp so the client can compute the round
// trip time.
type PongPayload struct {
	ReceivedPing int64 `json:"received_ping"`
}

// payloadTypes maps each known event to a factory for its payload struct.
// Decoding through this table gives every event a concrete, compile-time
// checked shape; unknown events fall through as raw JSON.
var payloadTypes = map[EventName]func() any{
	EventJoin:          func() any { return &JoinPayload{} },
	EventLeave:         func() any { return &LeavePayload{} },
	EventMessage:       func() any { return &MessagePayload{} },
	EventMessageStatus: func() any { return &StatusPayload{} },
	EventTyping:        func() any { return &TypingPayload{} },
	EventStopTyping:    func() any { return &TypingPayload{} },
	EventMessageRead:   func() any { return &ReadReceiptPayload{} },
	EventUserJoined:    func() any { return &PresencePayload{} },
	EventUserActive:    func() any { return &PresencePayload{} },
	EventUserAway:      func() any { return &PresencePayload{} },
	EventJoinSuccess:   func() any { return &JoinSuccessPayload{} },
	EventPing:          func() any { return &PingPayload{} },
	EventPong:          func() any { return &PongPayload{} },
}

// NewPacket builds an envelope for the event with the marshaled payload.
// A nil payload produces an envelope without a data member.
func NewPacket(event EventName, payload any) (*Packet, error) {
	p := &Packet{Event: event}
	if payload == nil {
		return p, nil
	}
	data, err := jsonCodec.Marshal(payload)
	if err != nil {
		return nil, err
	}
	p.Data = data
	return p, nil
}

// DecodeData unmarshals the packet payload into the typed struct registered
// for its event. For events without a registered shape the raw JSON is
// returned so handlers can decode it themselves.
func (p *Packet) DecodeData() (any, error) {
	factory, ok := payloadTypes[p.Event]
	if !ok {
		return p.Data, nil
	}
	v := factory()
	if len(p.Data) == 0 {
		return v, nil
	}
	if err := jsonCodec.Unmarshal(p.Data, v); err != nil {
		return nil, err
	}
	return v, nil
}

// EncodePacket serializes one envelope.
func EncodePacket(p *Packet) ([]byte, error) {
	return jsonCodec.Marshal(p)
}

// DecodePacket parses one envelope. Frames without an event name are
// rejected.
func DecodePacket(data []byte) (*Packet, error) {
	p := &Packet{}
	if err := jsonCodec.Unmarshal(data, p); err != nil {
		return nil, err
	}
	if p.Event == "" {
		return nil, &Error{Message: "packet has no event name", Type: "ProtocolError"}
	}
	return p, nil
}
