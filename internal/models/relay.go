package models

import "encoding/json"

// Relay event names. Outbound events are emitted by clients; inbound events
// are fanned out by the relay to room peers.
const (
	EventJoinRoom   = "join-room"
	EventCodeChange = "code-change"
	EventSendChat   = "send-chat"
	EventTyping     = "typing"

	EventCodeUpdate  = "code-update"
	EventReceiveChat = "receive-chat"
	EventShowTyping  = "show-typing"
	EventUserJoined  = "user-joined"
	EventUserLeft    = "user-left"
)

// RelayEnvelope is the wire frame for every relay event, in both
// directions. Data is decoded per event name.
type RelayEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewRelayEnvelope marshals the payload into an envelope. Payload types in
// this package marshal without error; a failure here means a programming
// bug, so it is surfaced to the caller.
func NewRelayEnvelope(event string, payload interface{}) (RelayEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return RelayEnvelope{}, err
	}
	return RelayEnvelope{Event: event, Data: data}, nil
}

// JoinPayload announces room membership.
type JoinPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// CodeChangePayload carries the full code buffer, not a diff. The protocol
// has no merge step: every message is a complete replacement of the shared
// view and the last message delivered wins.
type CodeChangePayload struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

// ChatPayload is an outbound chat message.
type ChatPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// TypingPayload is a fire-and-forget presence hint.
type TypingPayload struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// ChatReceivedPayload is the inbound shape of a relayed chat message.
type ChatReceivedPayload struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}
