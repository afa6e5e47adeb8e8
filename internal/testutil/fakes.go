package testutil

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/hupe1980/botmesh/core"
)

// Delivery is one outbound call captured by FakeMessenger.
type Delivery struct {
	Kind     string // reply or send
	To       string
	Messages []core.Message
}

// FakeMessenger records every delivery instead of calling a platform.
type FakeMessenger struct {
	mu sync.Mutex

	// ReplyErr is returned by Reply when set.
	ReplyErr error
	// Unsupported lists flow names CheckSupportedEventType rejects.
	Unsupported map[string]bool
	// Events is what ExtractEvents returns.
	Events []*core.Event
	// BadSignature makes ValidateSignature fail.
	BadSignature bool

	Deliveries []Delivery
	Passed     []*core.Event
}

var _ core.Messenger = (*FakeMessenger)(nil)

// NewFakeMessenger creates an empty fake messenger.
func NewFakeMessenger() *FakeMessenger { return &FakeMessenger{Unsupported: map[string]bool{}} }

// Type implements core.Messenger.
func (m *FakeMessenger) Type() string { return "line" }

// ValidateSignature implements core.Messenger.
func (m *FakeMessenger) ValidateSignature(http.Header, []byte) bool { return !m.BadSignature }

// ExtractEvents implements core.Messenger.
func (m *FakeMessenger) ExtractEvents([]byte) ([]*core.Event, error) { return m.Events, nil }

// CheckSupportedEventType implements core.Messenger.
func (m *FakeMessenger) CheckSupportedEventType(_ *core.Event, flow string) bool {
	return !m.Unsupported[flow]
}

// Reply implements core.Messenger.
func (m *FakeMessenger) Reply(_ context.Context, ev *core.Event, msgs []core.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReplyErr != nil {
		return m.ReplyErr
	}
	m.Deliveries = append(m.Deliveries, Delivery{Kind: "reply", To: ev.SenderID(), Messages: msgs})
	return nil
}

// Send implements core.Messenger.
func (m *FakeMessenger) Send(_ context.Context, _ *core.Event, to string, msgs []core.Message, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deliveries = append(m.Deliveries, Delivery{Kind: "send", To: to, Messages: msgs})
	return nil
}

// PassThrough implements core.Messenger.
func (m *FakeMessenger) PassThrough(_ context.Context, _ string, ev *core.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Passed = append(m.Passed, ev)
	return nil
}

// Texts returns the text of every delivered message in order.
func (m *FakeMessenger) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, d := range m.Deliveries {
		for _, msg := range d.Messages {
			out = append(out, msg.Text())
		}
	}
	return out
}

// LastText returns the text of the last delivered message or "".
func (m *FakeMessenger) LastText() string {
	texts := m.Texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

// Reset drops recorded deliveries.
func (m *FakeMessenger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deliveries = nil
	m.Passed = nil
}

// FakeClassifier maps exact sentences to intents. Unknown sentences map to
// the default intent "input.unknown".
type FakeClassifier struct {
	mu      sync.Mutex
	intents map[string]core.Intent
	Calls   []string
}

var _ core.IntentClassifier = (*FakeClassifier)(nil)

// NewFakeClassifier creates a classifier from sentence → intent name pairs.
func NewFakeClassifier(pairs map[string]string) *FakeClassifier {
	c := &FakeClassifier{intents: map[string]core.Intent{}}
	for text, name := range pairs {
		c.intents[strings.ToLower(text)] = core.Intent{Name: name}
	}
	return c
}

// Set maps text to a fully specified intent.
func (c *FakeClassifier) Set(text string, intent core.Intent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intents[strings.ToLower(text)] = intent
}

// IdentifyIntent implements core.IntentClassifier.
func (c *FakeClassifier) IdentifyIntent(_ context.Context, text string, _ core.IntentOptions) (core.Intent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls = append(c.Calls, text)
	if in, ok := c.intents[strings.ToLower(text)]; ok {
		return in, nil
	}
	return core.Intent{Name: "input.unknown"}, nil
}

// RecordingBot is a minimal core.Bot for testing hooks in isolation.
type RecordingBot struct {
	Replies   []core.Message
	Queued    []core.Message
	Collected []string
	Paused    bool
	Exited    bool
	Inited    bool
	Switched  *core.Intent
}

var _ core.Bot = (*RecordingBot)(nil)

// Type implements core.Bot.
func (b *RecordingBot) Type() string { return "line" }

// SenderID implements core.Bot.
func (b *RecordingBot) SenderID() string { return "U1" }

// ChannelID implements core.Bot.
func (b *RecordingBot) ChannelID() string { return "C1" }

// Reply implements core.Bot.
func (b *RecordingBot) Reply(_ context.Context, msgs ...core.Message) error {
	b.Replies = append(b.Replies, b.Queued...)
	b.Replies = append(b.Replies, msgs...)
	b.Queued = nil
	return nil
}

// Queue implements core.Bot.
func (b *RecordingBot) Queue(msgs ...core.Message) { b.Queued = append(b.Queued, msgs...) }

// Send implements core.Bot.
func (b *RecordingBot) Send(_ context.Context, _ string, msgs []core.Message, _ string) error {
	b.Replies = append(b.Replies, msgs...)
	return nil
}

// Collect implements core.Bot.
func (b *RecordingBot) Collect(name string) error {
	b.Collected = append(b.Collected, name)
	return nil
}

// CollectParameter implements core.Bot.
func (b *RecordingBot) CollectParameter(_ core.ParameterType, d core.ParameterDescriptor) error {
	b.Collected = append(b.Collected, d.Name)
	return nil
}

// ChangeMessage implements core.Bot.
func (b *RecordingBot) ChangeMessage(string, ...core.Message) error { return nil }

// ApplyParameter implements core.Bot.
func (b *RecordingBot) ApplyParameter(context.Context, string, any, bool) error { return nil }

// Pause implements core.Bot.
func (b *RecordingBot) Pause() { b.Paused = true }

// Exit implements core.Bot.
func (b *RecordingBot) Exit() { b.Exited = true }

// Init implements core.Bot.
func (b *RecordingBot) Init() { b.Inited = true }

// SwitchIntent implements core.Bot.
func (b *RecordingBot) SwitchIntent(intent core.Intent) { b.Switched = &intent }

// Translate implements core.Bot.
func (b *RecordingBot) Translate(_ context.Context, text, _ string) (string, error) { return text, nil }
