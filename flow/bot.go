package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/botmesh/core"
)

// Bot is the core.Bot handed to skill hooks during a turn.
type Bot struct {
	flow *Flow
	// replied is set once the reply token of the event has been used.
	replied bool
}

var _ core.Bot = (*Bot)(nil)

// Type implements core.Bot.
func (b *Bot) Type() string { return b.flow.engine.messenger.Type() }

// SenderID implements core.Bot.
func (b *Bot) SenderID() string { return b.flow.event.SenderID() }

// ChannelID implements core.Bot.
func (b *Bot) ChannelID() string { return b.flow.event.ChannelID }

// Reply sends the queued messages followed by msgs. A reply token can be
// used once; later replies and replies whose token expired are pushed to
// the sender instead.
func (b *Bot) Reply(ctx context.Context, msgs ...core.Message) error {
	conv := b.flow.conv
	out := make([]core.Message, 0, len(conv.MessageQueue)+len(msgs))
	out = append(out, conv.MessageQueue...)
	out = append(out, msgs...)
	conv.MessageQueue = []core.Message{}
	if len(out) == 0 {
		return nil
	}

	if b.replied || conv.Flow == core.FlowPush || b.flow.event.ReplyToken == "" {
		return b.Send(ctx, b.SenderID(), out, conv.SenderLanguage)
	}

	err := b.flow.engine.messenger.Reply(ctx, b.flow.event, out)
	if errors.Is(err, core.ErrInvalidReplyToken) {
		b.flow.logger().Warn("Reply token invalid, sending instead", "to", b.SenderID())
		return b.Send(ctx, b.SenderID(), out, conv.SenderLanguage)
	}
	if err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	b.replied = true
	b.record(ctx, out)
	return nil
}

// Queue implements core.Bot.
func (b *Bot) Queue(msgs ...core.Message) {
	b.flow.conv.MessageQueue = append(b.flow.conv.MessageQueue, msgs...)
}

// Send implements core.Bot.
func (b *Bot) Send(ctx context.Context, to string, msgs []core.Message, language string) error {
	if err := b.flow.engine.messenger.Send(ctx, b.flow.event, to, msgs, language); err != nil {
		return fmt.Errorf("send to %s: %w", to, err)
	}
	if to == b.SenderID() {
		b.record(ctx, msgs)
	}
	return nil
}

func (b *Bot) record(ctx context.Context, msgs []core.Message) {
	for _, m := range msgs {
		b.flow.conv.AddHistory("bot", m)
		b.flow.chat(ctx, "bot", m)
	}
}

// Collect puts name at the head of ToConfirm.
func (b *Bot) Collect(name string) error {
	conv := b.flow.conv
	if _, typ := conv.Skill.Lookup(conv, name); typ == core.NotApplicable {
		return fmt.Errorf("%w: %s", core.ErrParameterNotFound, name)
	}
	conv.ToConfirm = prependName(removeName(conv.ToConfirm, name), name)
	return nil
}

// CollectParameter declares a parameter at runtime and collects it. The
// declaration is appended to the param change history so later turns
// revive it.
func (b *Bot) CollectParameter(t core.ParameterType, desc core.ParameterDescriptor) error {
	switch t {
	case core.RequiredParameter, core.OptionalParameter, core.DynamicParameter:
	default:
		return fmt.Errorf("collect parameter %s: unsupported type %q", desc.Name, t)
	}
	if desc.Name == "" {
		return errors.New("collect parameter: name is required")
	}

	change := core.ParamChange{Type: t, Name: desc.Name, Param: desc}
	if err := b.flow.engine.skills.Revive(b.flow.conv.Skill, []core.ParamChange{change}); err != nil {
		return err
	}
	b.flow.conv.ParamChangeHistory = append(b.flow.conv.ParamChangeHistory, change)
	return b.Collect(desc.Name)
}

// ChangeMessage replaces the question of a parameter for the rest of the
// conversation.
func (b *Bot) ChangeMessage(name string, msgs ...core.Message) error {
	conv := b.flow.conv
	p, typ := conv.Skill.Lookup(conv, name)
	switch typ {
	case core.NotApplicable:
		return fmt.Errorf("%w: %s", core.ErrParameterNotFound, name)
	case core.SubParameter:
		// Sub parameters are not revived from the history.
		p.Message = msgs
		p.MessageFunc = nil
		p.PlatformMessage = nil
		return nil
	}

	change := core.ParamChange{Type: typ, Name: name, Param: core.ParameterDescriptor{Message: msgs}}
	if err := b.flow.engine.skills.Revive(conv.Skill, []core.ParamChange{change}); err != nil {
		return err
	}
	conv.ParamChangeHistory = append(conv.ParamChangeHistory, change)
	return nil
}

// ApplyParameter applies value to name and runs its reaction.
func (b *Bot) ApplyParameter(ctx context.Context, name string, value any, implicit bool) error {
	applied, err := b.flow.ApplyParameter(ctx, name, value, implicit)
	if err != nil {
		return err
	}
	return b.flow.react(ctx, applied)
}

// Pause implements core.Bot.
func (b *Bot) Pause() { b.flow.conv.Pause = true }

// Exit implements core.Bot.
func (b *Bot) Exit() { b.flow.conv.Exit = true }

// Init implements core.Bot.
func (b *Bot) Init() { b.flow.conv.Init = true }

// SwitchIntent ends the turn; the dispatcher then starts intent with a
// synthetic event.
func (b *Bot) SwitchIntent(intent core.Intent) {
	b.flow.conv.SwitchIntent = &intent
	b.flow.conv.Exit = true
}

// Translate implements core.Bot.
func (b *Bot) Translate(ctx context.Context, text, language string) (string, error) {
	t := b.flow.engine.opts.Translator
	if t == nil || language == "" {
		return text, nil
	}
	return t.Translate(ctx, text, language)
}
