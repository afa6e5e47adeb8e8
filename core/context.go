package core

import (
	"encoding/json"
	"time"
)

// Flow names recorded in Context.Flow.
const (
	FlowStartConversation = "start_conversation"
	FlowReply             = "reply"
	FlowBtw               = "btw"
	FlowPush              = "push"
	FlowBeacon            = "beacon"

	// FlowActiveEvent runs follow, unfollow, join and leave events. The
	// context records the event type as its flow.
	FlowActiveEvent = "active_event"
)

// Reasons recorded on saved parent contexts.
const (
	ReasonSubSkill     = "sub_skill"
	ReasonSubParameter = "sub_parameter"
)

// Intent is a classified topic together with the parameter values the
// classifier extracted.
type Intent struct {
	Name        string         `json:"name"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
	Fulfillment []Message      `json:"fulfillment,omitempty"`
}

// Previous holds the bounded history of a conversation. Every list is newest
// first.
type Previous struct {
	Event     *Event           `json:"event"`
	Intent    []string         `json:"intent"`
	Confirmed []string         `json:"confirmed"`
	Processed []string         `json:"processed"`
	Message   []HistoryMessage `json:"message"`
}

// ParentParameter describes the parameter a sub-parameter collection fills.
type ParentParameter struct {
	Type ParameterType `json:"type,omitempty"`
	Name string        `json:"name,omitempty"`
	List bool          `json:"list,omitempty"`
}

// ArchiveEntry is a snapshot pushed onto Context.Archive on intent change.
type ArchiveEntry struct {
	ChatID         string         `json:"chat_id"`
	LaunchedAt     int64          `json:"launched_at"`
	Event          *Event         `json:"event"`
	Intent         Intent         `json:"intent"`
	Global         map[string]any `json:"global"`
	Confirmed      map[string]any `json:"confirmed"`
	Confirming     string         `json:"confirming"`
	ToConfirm      []string       `json:"to_confirm"`
	Heard          map[string]any `json:"heard"`
	SenderLanguage string         `json:"sender_language"`
	Translation    string         `json:"translation"`
}

// Context is the whole state of one conversation. It is mutated in place
// during a turn and crosses goroutine boundaries only as a serialised copy
// through the store.
type Context struct {
	SessionID  string `json:"session_id"`
	ChatID     string `json:"chat_id"`
	LaunchedAt int64  `json:"launched_at"`

	Event  *Event `json:"event,omitempty"`
	Intent Intent `json:"intent"`

	// Skill is the instance bound to Intent.Name during a turn. Only its
	// type survives serialisation.
	Skill     *Skill `json:"-"`
	SkillType string `json:"skill_type,omitempty"`

	Global         map[string]any `json:"global"`
	Confirmed      map[string]any `json:"confirmed"`
	Confirming     string         `json:"confirming"`
	ToConfirm      []string       `json:"to_confirm"`
	Heard          map[string]any `json:"heard"`
	SenderLanguage string         `json:"sender_language,omitempty"`
	Translation    string         `json:"translation,omitempty"`

	ParamChangeHistory []ParamChange  `json:"param_change_history"`
	Previous           Previous       `json:"previous"`
	Archive            []ArchiveEntry `json:"archive"`

	Flow         string    `json:"_flow"`
	MessageQueue []Message `json:"_message_queue"`
	InProgress   *Event    `json:"_in_progress,omitempty"`
	Pause        bool      `json:"_pause"`
	Exit         bool      `json:"_exit"`
	Init         bool      `json:"_init"`
	Clear        bool      `json:"_clear"`
	SwitchIntent *Intent   `json:"_switch_intent,omitempty"`

	Parent          []*Context      `json:"_parent,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	ParentParameter ParentParameter `json:"_parent_parameter"`
	SubSkill        bool            `json:"_sub_skill"`
	SubParameter    bool            `json:"_sub_parameter"`

	UpdatedAt int64 `json:"updated_at"`
}

// ContextOptions seeds NewContext. Fields left zero get fresh defaults.
type ContextOptions struct {
	SessionID      string
	ChatID         string
	Intent         Intent
	Flow           string
	Event          *Event
	SenderLanguage string
	Global         map[string]any
	Confirmed      map[string]any
	Heard          map[string]any
	Parent         []*Context
	SubSkill       bool
}

// NewContext creates a fresh conversation context.
func NewContext(o ContextOptions) *Context {
	c := &Context{
		SessionID:      o.SessionID,
		ChatID:         o.ChatID,
		LaunchedAt:     time.Now().UnixMilli(),
		Event:          o.Event,
		Intent:         o.Intent,
		Global:         o.Global,
		Confirmed:      o.Confirmed,
		ToConfirm:      []string{},
		Heard:          o.Heard,
		SenderLanguage: o.SenderLanguage,
		Previous: Previous{
			Intent:    []string{},
			Confirmed: []string{},
			Processed: []string{},
			Message:   []HistoryMessage{},
		},
		Archive:            []ArchiveEntry{},
		ParamChangeHistory: []ParamChange{},
		Flow:               o.Flow,
		MessageQueue:       []Message{},
		Parent:             o.Parent,
		SubSkill:           o.SubSkill,
	}
	if c.SessionID == "" {
		c.SessionID = NewID()
	}
	if c.ChatID == "" {
		c.ChatID = NewID()
	}
	if c.Global == nil {
		c.Global = map[string]any{}
	}
	if c.Confirmed == nil {
		c.Confirmed = map[string]any{}
	}
	if c.Heard == nil {
		c.Heard = map[string]any{}
	}
	return c
}

// Clone returns a deep copy. The live Skill pointer is carried over.
func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	out, err := Decode(c.encode())
	if err != nil {
		return nil
	}
	out.Skill = c.Skill
	return out
}

func (c *Context) encode() []byte {
	if c.Skill != nil {
		c.SkillType = c.Skill.Type
	}
	b, _ := json.Marshal(c)
	return b
}

// Encode serialises the context with binary leaves removed.
func (c *Context) Encode() ([]byte, error) {
	if c.Skill != nil {
		c.SkillType = c.Skill.Type
	}
	var generic any
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(StripBinary(generic))
}

// Decode parses a serialised context.
func Decode(b []byte) (*Context, error) {
	var c Context
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// SkillName returns the active skill type, preferring the live instance.
func (c *Context) SkillName() string {
	if c == nil {
		return ""
	}
	if c.Skill != nil {
		return c.Skill.Type
	}
	return c.SkillType
}

// ArchiveSnapshot pushes a snapshot of the current conversation onto the
// archive and returns a deep copy of the whole archive.
func (c *Context) ArchiveSnapshot() []ArchiveEntry {
	entry := ArchiveEntry{
		ChatID:         c.ChatID,
		LaunchedAt:     c.LaunchedAt,
		Event:          c.Event,
		Intent:         c.Intent,
		Global:         c.Global,
		Confirmed:      c.Confirmed,
		Confirming:     c.Confirming,
		ToConfirm:      c.ToConfirm,
		Heard:          c.Heard,
		SenderLanguage: c.SenderLanguage,
		Translation:    c.Translation,
	}
	c.Archive = append([]ArchiveEntry{entry}, c.Archive...)

	b, err := json.Marshal(c.Archive)
	if err != nil {
		return nil
	}
	var out []ArchiveEntry
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

// AddHistory prepends a message to Previous.Message.
func (c *Context) AddHistory(from string, msg Message) {
	c.Previous.Message = append([]HistoryMessage{{From: from, Message: msg, Skill: c.SkillName()}}, c.Previous.Message...)
}

// Restore replaces the conversation state with a saved parent while keeping
// the live skill instance. The parent's reason tag is dropped and the
// message history of the child is kept in front of the parent's.
func (c *Context) Restore(parent *Context) {
	history := append(append([]HistoryMessage{}, c.Previous.Message...), parent.Previous.Message...)
	skill := c.Skill
	*c = *parent
	c.Skill = skill
	c.Reason = ""
	c.Previous.Message = history
}

// ResetFlags clears every control flag.
func (c *Context) ResetFlags() {
	c.Pause = false
	c.Exit = false
	c.Init = false
	c.Clear = false
	c.SwitchIntent = nil
	c.InProgress = nil
}

// Terminated reports whether a pause, exit or init flag stops the turn.
func (c *Context) Terminated() bool { return c.Pause || c.Exit || c.Init }

// StripBinary removes binary leaves from a decoded JSON tree: []byte values
// and {"type":"Buffer"} objects.
func StripBinary(v any) any {
	switch t := v.(type) {
	case []byte:
		return nil
	case map[string]any:
		if typ, ok := t["type"].(string); ok && typ == "Buffer" {
			return nil
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			if isBinary(val) {
				continue
			}
			out[k] = StripBinary(val)
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, val := range t {
			if isBinary(val) {
				continue
			}
			out = append(out, StripBinary(val))
		}
		return out
	}
	return v
}

func isBinary(v any) bool {
	switch t := v.(type) {
	case []byte:
		return true
	case map[string]any:
		typ, ok := t["type"].(string)
		return ok && typ == "Buffer"
	}
	return false
}
