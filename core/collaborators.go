package core

import (
	"context"
	"net/http"
)

// Messenger adapts a messaging platform. Inspection of single events lives
// on the normalised Event; a Messenger only converts request bodies and
// delivers messages.
type Messenger interface {
	// Type returns the platform name used to select platform specific messages.
	Type() string
	// ValidateSignature checks the request signature of a webhook call.
	ValidateSignature(header http.Header, body []byte) bool
	// ExtractEvents converts a webhook body into normalised events.
	ExtractEvents(body []byte) ([]*Event, error)
	// CheckSupportedEventType reports whether flow can handle the event.
	CheckSupportedEventType(event *Event, flow string) bool
	// Reply answers an event using its reply token. An expired token yields
	// ErrInvalidReplyToken.
	Reply(ctx context.Context, event *Event, msgs []Message) error
	// Send pushes messages to a recipient.
	Send(ctx context.Context, event *Event, to string, msgs []Message, language string) error
	// PassThrough forwards an event to another webhook.
	PassThrough(ctx context.Context, url string, event *Event) error
}

// IntentOptions carries the conversation coordinates passed to a classifier.
type IntentOptions struct {
	SessionID string
	ChannelID string
	Language  string
}

// IntentClassifier maps a sentence to an intent.
type IntentClassifier interface {
	IdentifyIntent(ctx context.Context, text string, opts IntentOptions) (Intent, error)
}

// Translator detects and translates user text.
type Translator interface {
	Detect(ctx context.Context, text string) (string, error)
	Translate(ctx context.Context, text, language string) (string, error)
}

// Parser validates a raw parameter value. Invalid input returns an error
// wrapping ErrRejected; any other error is treated as fatal.
type Parser interface {
	Parse(ctx context.Context, value any, policy map[string]any) (any, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(ctx context.Context, value any, policy map[string]any) (any, error)

// Parse implements Parser.
func (f ParserFunc) Parse(ctx context.Context, value any, policy map[string]any) (any, error) {
	return f(ctx, value, policy)
}
