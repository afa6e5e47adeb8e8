package core

import "encoding/json"

// Message is a platform message object (text, template, flex, ...). The
// engine never interprets its shape beyond the helpers below; formatting is
// up to the skill and the messenger.
type Message map[string]any

// TextMessage creates the common {"type":"text","text":...} message.
func TextMessage(text string) Message {
	return Message{"type": "text", "text": text}
}

// Type returns the "type" field of the message.
func (m Message) Type() string {
	t, _ := m["type"].(string)
	return t
}

// Text returns a human readable rendition used for chat logs: the text
// field, the altText field or the JSON encoding as a last resort.
func (m Message) Text() string {
	if t, ok := m["text"].(string); ok && t != "" {
		return t
	}
	if t, ok := m["altText"].(string); ok && t != "" {
		return t
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

// HistoryMessage is one entry of Previous.Message.
type HistoryMessage struct {
	From    string  `json:"from"`
	Message Message `json:"message"`
	Skill   string  `json:"skill"`
}
