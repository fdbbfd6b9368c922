// Package hubproto defines the JSON wire protocol exchanged with the Averox
// real-time hub over a WebSocket connection.
//
// Every frame is an envelope {"event": <name>, "data": <payload>}.  The
// event set this core depends on is closed and each kind carries a strongly
// shaped payload; anything else travels as [Custom] so arbitrary named
// events can still pass through.
package hubproto

import (
	"encoding/json"
	"fmt"
)

// EventName identifies the kind of payload carried by an envelope.
type EventName string

// Event names understood by the hub and this client.
const (
	// EventAuth carries the credential payload sent immediately after the
	// transport opens.
	EventAuth EventName = "auth"

	// EventAddUser registers a user-session identifier as online.
	EventAddUser EventName = "add_user"

	// EventOnlineUsers carries the authoritative full set of online
	// identifiers.  The hub always sends the whole set; there are no
	// incremental add/remove frames.
	EventOnlineUsers EventName = "online_users_update"

	// EventIncomingCall signals a call invitation to this user.
	EventIncomingCall EventName = "incoming_call"

	// EventCallDeclined tells the caller's UI the callee declined.
	EventCallDeclined EventName = "call_declined"
)

// Event is the closed tagged-variant interface implemented by every payload
// type in this package.
type Event interface {
	Name() EventName
}

// Auth is the credential payload channel of the connection handshake.  The
// same API key also travels in the dial query string and headers to
// tolerate hub-side auth extraction differences.
type Auth struct {
	APIKey         string `json:"x-api-key"`
	UserIdentifier string `json:"userIdentifier,omitempty"`
}

func (Auth) Name() EventName { return EventAuth }

// AddUser registers the given identifier (and optionally device) as online.
type AddUser struct {
	UserID   string `json:"userId"`
	DeviceID string `json:"deviceId,omitempty"`
}

func (AddUser) Name() EventName { return EventAddUser }

// OnlineUsers is the full replacement set of online identifiers.
type OnlineUsers struct {
	OnlineUsers []string `json:"onlineUsers"`
}

func (OnlineUsers) Name() EventName { return EventOnlineUsers }

// IncomingCall is a call invitation payload.  Optional fields default to
// their zero values when absent on the wire.
type IncomingCall struct {
	RoomID        string   `json:"roomId"`
	FromUserID    string   `json:"fromUserId"`
	FromUsername  string   `json:"fromUsername"`
	IsVideo       bool     `json:"isVideo"`
	Participants  []string `json:"participants"`
	IsGroup       bool     `json:"isGroup"`
	GroupName     string   `json:"groupName,omitempty"`
	Token         string   `json:"token"`
	ServerURL     string   `json:"serverUrl"`
	E2EEKey       string   `json:"e2eeKey,omitempty"`
	IsDelayedCall bool     `json:"isDelayedCall"`
}

func (IncomingCall) Name() EventName { return EventIncomingCall }

// CallDeclined tells the remote caller a pending invitation was declined.
type CallDeclined struct {
	RoomID     string `json:"roomId"`
	FromUserID string `json:"fromUserId"`
}

func (CallDeclined) Name() EventName { return EventCallDeclined }

// Custom is the generic passthrough for event names outside the closed set.
type Custom struct {
	Event EventName
	Data  json.RawMessage
}

func (c Custom) Name() EventName { return c.Event }

type envelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals an event into its wire envelope.
func Encode(ev Event) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if c, ok := ev.(Custom); ok {
		data = c.Data
	} else {
		data, err = json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", ev.Name(), err)
		}
	}
	return json.Marshal(envelope{Event: ev.Name(), Data: data})
}

// Decode parses a wire envelope into its typed event.  Known event names
// with payloads that do not parse are an error; unknown names decode as
// [Custom] carrying the raw payload.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("decode envelope: missing event name")
	}

	data := env.Data
	if len(data) == 0 {
		data = []byte("{}")
	}

	switch env.Event {
	case EventAuth:
		return decodePayload[Auth](env.Event, data)
	case EventAddUser:
		return decodePayload[AddUser](env.Event, data)
	case EventOnlineUsers:
		return decodePayload[OnlineUsers](env.Event, data)
	case EventIncomingCall:
		return decodePayload[IncomingCall](env.Event, data)
	case EventCallDeclined:
		return decodePayload[CallDeclined](env.Event, data)
	default:
		return Custom{Event: env.Event, Data: env.Data}, nil
	}
}

func decodePayload[T Event](name EventName, data []byte) (Event, error) {
	var payload T
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", name, err)
	}
	return payload, nil
}
