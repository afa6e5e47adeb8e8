package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types understood by the dispatcher. Messengers normalise their
// platform events into these.
const (
	EventTypeMessage  = "message"
	EventTypePostback = "postback"
	EventTypeBeacon   = "beacon"
	EventTypeFollow   = "follow"
	EventTypeUnfollow = "unfollow"
	EventTypeJoin     = "join"
	EventTypeLeave    = "leave"
	// EventTypePush is injected programmatically (scheduler, API) rather than
	// received from a platform.
	EventTypePush = "push"
	// EventTypeUnidentified is reported for events without type.
	EventTypeUnidentified = "unidentified"
)

// Source identifies the sender (or, for push events, the recipient) of an event.
type Source struct {
	Type    string `json:"type" yaml:"type"` // user, group or room
	UserID  string `json:"userId,omitempty" yaml:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty" yaml:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty" yaml:"roomId,omitempty"`
}

// ID returns the identifier matching Type.
func (s *Source) ID() string {
	if s == nil {
		return ""
	}
	switch s.Type {
	case "group":
		return s.GroupID
	case "room":
		return s.RoomID
	default:
		return s.UserID
	}
}

// Postback carries the data of a postback action.
type Postback struct {
	Data   string         `json:"data"`
	Params map[string]any `json:"params,omitempty"`
}

// Beacon carries a proximity event.
type Beacon struct {
	Hwid string `json:"hwid,omitempty"`
	Type string `json:"type"` // enter, leave, banner
	DM   string `json:"dm,omitempty"`
}

// Event is the normalised inbound event. Platform adapters fill the subset
// of fields that applies; push events set To, Intent and Language instead
// of Source and Message.
type Event struct {
	Type       string    `json:"type"`
	ChannelID  string    `json:"channelId,omitempty"`
	ReplyToken string    `json:"replyToken,omitempty"`
	Timestamp  int64     `json:"timestamp"`
	Source     *Source   `json:"source,omitempty"`
	Message    Message   `json:"message,omitempty"`
	Postback   *Postback `json:"postback,omitempty"`
	Beacon     *Beacon   `json:"beacon,omitempty"`

	To           *Source `json:"to,omitempty"`
	Intent       *Intent `json:"intent,omitempty"`
	Language     string  `json:"language,omitempty"`
	ClearContext *bool   `json:"clear_context,omitempty"`
}

// NewPushEvent creates a push event addressed to a user.
func NewPushEvent(to Source, intent Intent, language string) *Event {
	return &Event{
		Type:      EventTypePush,
		Timestamp: time.Now().UnixMilli(),
		To:        &to,
		Intent:    &intent,
		Language:  language,
	}
}

// NewID generates a new unique identifier for sessions and chats.
func NewID() string { return uuid.NewString() }

// IdentifyEventType returns the event type or "unidentified".
func (e *Event) IdentifyEventType() string {
	if e == nil || e.Type == "" {
		return EventTypeUnidentified
	}
	return e.Type
}

// IdentifyMessageType returns the type of the attached message, if any.
func (e *Event) IdentifyMessageType() string {
	if e.Message == nil {
		return ""
	}
	return e.Message.Type()
}

// SenderID returns the id of the user the conversation is held with. For
// push events this is the recipient.
func (e *Event) SenderID() string {
	if e.Type == EventTypePush {
		return e.ToID()
	}
	return e.Source.ID()
}

// ToID returns the recipient of a push event.
func (e *Event) ToID() string { return e.To.ID() }

// SessionID returns the transport session id used for the session index.
func (e *Event) SessionID() string { return e.SenderID() }

// BeaconEventType returns enter/leave/banner for beacon events.
func (e *Event) BeaconEventType() string {
	if e.Beacon == nil {
		return ""
	}
	return e.Beacon.Type
}

// PostbackPayload returns the raw postback data.
func (e *Event) PostbackPayload() string {
	if e.Postback == nil {
		return ""
	}
	return e.Postback.Data
}

// MessageText returns the text of a message event or the data of a postback.
func (e *Event) MessageText() string {
	switch e.Type {
	case EventTypeMessage:
		t, _ := e.Message["text"].(string)
		return t
	case EventTypePostback:
		return e.PostbackPayload()
	}
	return ""
}

// ParamValue returns the value a reply contributes to the parameter being
// confirmed: the text for text messages, the message object for any other
// message and the postback object for postbacks.
func (e *Event) ParamValue() any {
	switch e.Type {
	case EventTypeMessage:
		if e.Message.Type() == "text" {
			t, _ := e.Message["text"].(string)
			return t
		}
		return map[string]any(e.Message)
	case EventTypePostback:
		if e.Postback == nil {
			return nil
		}
		v := map[string]any{"data": e.Postback.Data}
		if e.Postback.Params != nil {
			v["params"] = e.Postback.Params
		}
		return v
	}
	return nil
}

// UserMessage returns what the user sent, as recorded in the history.
func (e *Event) UserMessage() Message {
	switch e.Type {
	case EventTypeMessage:
		return e.Message
	case EventTypePostback:
		if e.Postback == nil {
			return nil
		}
		m := Message{"type": "postback", "data": e.Postback.Data}
		if e.Postback.Params != nil {
			m["params"] = e.Postback.Params
		}
		return m
	case EventTypeBeacon:
		if e.Beacon == nil {
			return nil
		}
		return Message{"type": "beacon", "hwid": e.Beacon.Hwid, "beacon_type": e.Beacon.Type}
	}
	return nil
}

// PostbackJSON decodes the postback data as a JSON object. The second
// return value is false when the data is not a JSON object.
func (e *Event) PostbackJSON() (map[string]any, bool) {
	if e.IdentifyEventType() != EventTypePostback {
		return nil, false
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(e.PostbackPayload()), &payload); err != nil || payload == nil {
		return nil, false
	}
	return payload, true
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		cp := *e
		return &cp
	}
	var out Event
	if err := json.Unmarshal(b, &out); err != nil {
		cp := *e
		return &cp
	}
	return &out
}
