package testutil

import (
	"time"

	"github.com/hupe1980/botmesh/core"
)

// EventBuilder provides a fluent helper for constructing events in tests.
// Example:
//
//	ev := NewEventBuilder().User("U1").Text("Margherita").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type EventBuilder struct {
	ev core.Event
}

// NewEventBuilder creates a builder for a text-less message event from
// user U1 on channel C1 with a reply token.
func NewEventBuilder() *EventBuilder {
	return &EventBuilder{ev: core.Event{
		Type:       core.EventTypeMessage,
		ChannelID:  "C1",
		ReplyToken: "reply-token",
		Timestamp:  time.Now().UnixMilli(),
		Source:     &core.Source{Type: "user", UserID: "U1"},
	}}
}

// User sets the sending user (chainable).
func (b *EventBuilder) User(id string) *EventBuilder {
	b.ev.Source = &core.Source{Type: "user", UserID: id}
	return b
}

// Group sets a group source (chainable).
func (b *EventBuilder) Group(groupID, userID string) *EventBuilder {
	b.ev.Source = &core.Source{Type: "group", GroupID: groupID, UserID: userID}
	return b
}

// Channel sets the channel id (chainable).
func (b *EventBuilder) Channel(id string) *EventBuilder { b.ev.ChannelID = id; return b }

// ReplyToken overrides the reply token (chainable).
func (b *EventBuilder) ReplyToken(t string) *EventBuilder { b.ev.ReplyToken = t; return b }

// Text makes the event a text message (chainable).
func (b *EventBuilder) Text(t string) *EventBuilder {
	b.ev.Type = core.EventTypeMessage
	b.ev.Message = core.TextMessage(t)
	return b
}

// Message makes the event a message event carrying m (chainable).
func (b *EventBuilder) Message(m core.Message) *EventBuilder {
	b.ev.Type = core.EventTypeMessage
	b.ev.Message = m
	return b
}

// Postback makes the event a postback with data (chainable).
func (b *EventBuilder) Postback(data string) *EventBuilder {
	b.ev.Type = core.EventTypePostback
	b.ev.Message = nil
	b.ev.Postback = &core.Postback{Data: data}
	return b
}

// Beacon makes the event a beacon event of the given type (chainable).
func (b *EventBuilder) Beacon(hwid, typ string) *EventBuilder {
	b.ev.Type = core.EventTypeBeacon
	b.ev.Message = nil
	b.ev.Beacon = &core.Beacon{Hwid: hwid, Type: typ}
	return b
}

// Type overrides the event type, e.g. follow or unfollow (chainable).
func (b *EventBuilder) Type(t string) *EventBuilder { b.ev.Type = t; return b }

// Build returns a pointer to a copy of the event.
func (b *EventBuilder) Build() *core.Event {
	return b.ev.Clone()
}

// PushEvent builds a push event to user id with intent.
func PushEvent(to string, intent core.Intent) *core.Event {
	ev := core.NewPushEvent(core.Source{Type: "user", UserID: to}, intent, "ja")
	ev.ChannelID = "C1"
	return ev
}
