package flow

import (
	"context"

	"github.com/hupe1980/botmesh/core"
	"github.com/hupe1980/botmesh/mind"
)

// btw handles a user speaking up while nothing is being confirmed.
type btw struct{ *Flow }

// Run classifies the event against the running conversation.
func (v *btw) Run(ctx context.Context) (*core.Context, error) {
	conv, ev := v.conv, v.event

	if !v.engine.messenger.CheckSupportedEventType(ev, core.FlowBtw) {
		if err := v.passThrough(ctx); err != nil {
			return nil, err
		}
		return conv, nil
	}

	m, err := v.identify(ctx)
	if err != nil {
		return nil, err
	}
	v.logger().Debug("Mind identified", "result", m.Result, "intent", m.Intent.Name)

	v.hear(ctx)

	switch m.Result {
	case mind.ModifyPreviousParameter:
		err = v.ModifyPreviousParameter(ctx)
	case mind.RestartConversation:
		err = v.RestartConversation(ctx, m.Intent)
	case mind.ChangeIntent:
		err = v.ChangeIntent(ctx, m.Intent)
	case mind.ChangeParameter:
		var applied *Applied
		if applied, err = v.ApplyParameter(ctx, m.Parameter.Name, m.Payload, true); err == nil {
			err = v.react(ctx, applied)
		}
	case mind.NoIdea:
		intent := m.Intent
		if intent.Name == "" {
			intent = core.Intent{Name: v.engine.opts.DefaultIntent}
		}
		err = v.ChangeIntent(ctx, intent)
	}
	if err != nil {
		return nil, err
	}
	return v.Respond(ctx)
}

// identify resolves the mind without the classifier for non-text messages
// and JSON postbacks.
func (v *btw) identify(ctx context.Context) (mind.Mind, error) {
	conv, ev := v.conv, v.event

	switch ev.IdentifyEventType() {
	case core.EventTypeMessage:
		if ev.IdentifyMessageType() != "text" {
			return mind.Mind{Result: mind.NoIdea}, nil
		}
	case core.EventTypePostback:
		if _, isJSON := ev.PostbackJSON(); isJSON {
			pb, ok, err := intentPostback(ev)
			if err != nil {
				return mind.Mind{}, err
			}
			if !ok {
				return mind.Mind{Result: mind.NoIdea}, nil
			}
			conv.SenderLanguage = pb.Language
			if pb.Intent.Name == conv.Intent.Name {
				return mind.Mind{Result: mind.RestartConversation, Intent: *pb.Intent}, nil
			}
			return mind.Mind{Result: mind.ChangeIntent, Intent: *pb.Intent}, nil
		}
	}

	text, err := v.detectAndTranslate(ctx, ev.MessageText())
	if err != nil {
		return mind.Mind{}, err
	}
	return v.engine.mind.Identify(ctx, text, v.mindState())
}
