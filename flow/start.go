package flow

import (
	"context"
	"fmt"

	"github.com/hupe1980/botmesh/core"
)

// startConversation handles the first event of a user without active
// conversation.
type startConversation struct{ *Flow }

// Run identifies the intent, launches its skill and asks the first
// question. It returns nil when the event is unsupported or no skill
// matches, leaving nothing to persist.
func (v *startConversation) Run(ctx context.Context) (*core.Context, error) {
	conv, ev, e := v.conv, v.event, v.engine

	if !e.messenger.CheckSupportedEventType(ev, core.FlowStartConversation) {
		v.logger().Debug("Unsupported event for start conversation", "type", ev.IdentifyEventType())
		return nil, v.passThrough(ctx)
	}

	classify := true
	switch ev.IdentifyEventType() {
	case core.EventTypeMessage:
		if ev.IdentifyMessageType() != "text" {
			classify = false
			conv.Intent = core.Intent{Name: e.opts.DefaultIntent}
		}
	case core.EventTypePostback:
		pb, ok, err := intentPostback(ev)
		if err != nil {
			return nil, err
		}
		if ok {
			classify = false
			conv.SenderLanguage = pb.Language
			conv.Intent = *pb.Intent
		} else if _, isJSON := ev.PostbackJSON(); isJSON {
			classify = false
			conv.Intent = core.Intent{Name: e.opts.DefaultIntent}
		}
	}

	if classify {
		text, err := v.detectAndTranslate(ctx, ev.MessageText())
		if err != nil {
			return nil, err
		}
		intent, err := e.nlu.IdentifyIntent(ctx, text, core.IntentOptions{
			SessionID: ev.SessionID(),
			ChannelID: ev.ChannelID,
			Language:  conv.SenderLanguage,
		})
		if err != nil {
			return nil, fmt.Errorf("identify intent: %w", err)
		}
		conv.Intent = intent
	}

	if e.opts.ModifyPreviousParameterIntent != "" && conv.Intent.Name == e.opts.ModifyPreviousParameterIntent {
		conv.Intent = core.Intent{Name: e.opts.DefaultIntent}
	}

	found, err := v.bindSkill(conv.Intent)
	if err != nil || !found {
		return nil, err
	}
	return v.start(ctx)
}

// start launches the bound skill for the event just heard and responds.
func (f *Flow) start(ctx context.Context) (*core.Context, error) {
	f.hear(ctx)
	if err := f.launch(ctx); err != nil {
		return nil, err
	}
	return f.Respond(ctx)
}
