package relay

import (
	"encoding/json"

	"github.com/ANU-2524/JustCoding-sub000/internal/models"
)

// Event is an inbound relay message, delivered on the client's event
// channel in the order the transport delivered it. Only per-sender order
// is guaranteed across the relay; no total order exists.
type Event interface {
	event()
}

// CodeUpdate replaces the shared code buffer with a full new value.
type CodeUpdate struct {
	Code string
}

// ChatReceived is a chat message from a room peer.
type ChatReceived struct {
	Username string
	Message  string
}

// TypingShown is a presence hint that a peer is typing. Receivers clear it
// themselves after a short interval if no follow-up arrives.
type TypingShown struct {
	Display string
}

// UserJoined announces a peer entering the room.
type UserJoined struct {
	Display string
}

// UserLeft announces a peer leaving the room.
type UserLeft struct {
	Display string
}

func (CodeUpdate) event()   {}
func (ChatReceived) event() {}
func (TypingShown) event()  {}
func (UserJoined) event()   {}
func (UserLeft) event()     {}

// decodeEvent maps a wire envelope to a typed event. Unknown event names
// decode to nil and are skipped.
func decodeEvent(env models.RelayEnvelope) (Event, error) {
	switch env.Event {
	case models.EventCodeUpdate:
		var code string
		if err := json.Unmarshal(env.Data, &code); err != nil {
			return nil, err
		}
		return CodeUpdate{Code: code}, nil
	case models.EventReceiveChat:
		var p models.ChatReceivedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return ChatReceived{Username: p.Username, Message: p.Message}, nil
	case models.EventShowTyping:
		var display string
		if err := json.Unmarshal(env.Data, &display); err != nil {
			return nil, err
		}
		return TypingShown{Display: display}, nil
	case models.EventUserJoined:
		var display string
		if err := json.Unmarshal(env.Data, &display); err != nil {
			return nil, err
		}
		return UserJoined{Display: display}, nil
	case models.EventUserLeft:
		var display string
		if err := json.Unmarshal(env.Data, &display); err != nil {
			return nil, err
		}
		return UserLeft{Display: display}, nil
	}
	return nil, nil
}
