package protocol

import (
	"encoding/json"
	"errors"
)

// Envelope is the standard wire format for ws events, both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound event types.
const (
	EvJoinUser           = "joinUser"
	EvJoinRoom           = "joinRoom"
	EvLeaveRoom          = "leaveRoom"
	EvJoinGroup          = "joinGroup"
	EvLeaveGroup         = "leaveGroup"
	EvGroupUpdated       = "groupUpdated"
	EvSendMessage        = "sendMessage"
	EvSendImage          = "sendImage"
	EvSendFile           = "sendFile"
	EvSendGroupMessage   = "sendGroupMessage"
	EvSendGroupImage     = "sendGroupImage"
	EvSendGroupFile      = "sendGroupFile"
	EvRecallMessage      = "recallMessage"
	EvRecallGroupMessage = "recallGroupMessage"
)

// Outbound event types.
const (
	EvReceiveMessage       = "receiveMessage"
	EvLatestMessage        = "latestMessage"
	EvReceiveGroupMessage  = "receiveGroupMessage"
	EvLatestGroupMessage   = "latestGroupMessage"
	EvMessageRecalled      = "messageRecalled"
	EvGroupMessageRecalled = "groupMessageRecalled"
	EvUpdateGroups         = "updateGroups"
	EvMessagesRead         = "messagesRead"
	EvGroupCallStarted     = "groupCallStarted"
)

var ErrUnknownEvent = errors.New("unknown event type")

func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Type == "" {
		return nil, errors.New("envelope missing type")
	}
	return &env, nil
}

// Frame marshals an outbound envelope. Payload types here marshal without
// error, so a failure is reduced to an empty frame the pumps skip.
func Frame(eventType string, payload any) []byte {
	env := Envelope{Type: eventType}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil
		}
		env.Payload = b
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil
	}
	return b
}
