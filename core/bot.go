package core

import "context"

// Bot is the handle skill hooks use to talk to the user and to steer the
// running conversation. A Bot is bound to one event and one Context.
type Bot interface {
	// Type returns the messenger type (line, mqtt, ...).
	Type() string
	// SenderID returns the user the conversation is held with.
	SenderID() string
	// ChannelID returns the channel the event arrived on.
	ChannelID() string

	// Reply sends queued messages followed by msgs as the answer to the
	// current event.
	Reply(ctx context.Context, msgs ...Message) error
	// Queue stores messages to be sent with the next reply.
	Queue(msgs ...Message)
	// Send pushes messages to an arbitrary recipient.
	Send(ctx context.Context, to string, msgs []Message, language string) error

	// Collect puts a declared parameter at the head of ToConfirm.
	Collect(name string) error
	// CollectParameter declares a parameter at runtime and collects it. The
	// declaration is recorded in the param change history.
	CollectParameter(t ParameterType, desc ParameterDescriptor) error
	// ChangeMessage replaces the confirmation message of a parameter.
	ChangeMessage(name string, msgs ...Message) error
	// ApplyParameter validates and stores a value as if the user sent it.
	ApplyParameter(ctx context.Context, name string, value any, implicit bool) error

	// Pause stops the turn keeping the context.
	Pause()
	// Exit stops the turn and clears the parameter being confirmed.
	Exit()
	// Init stops the turn and clears the context.
	Init()
	// SwitchIntent ends the turn and restarts with the given intent.
	SwitchIntent(intent Intent)

	// Translate translates text when a translator is configured; otherwise
	// it returns text unchanged.
	Translate(ctx context.Context, text, language string) (string, error)
}
