package flow

import (
	"context"
	"fmt"

	"github.com/hupe1980/botmesh/core"
	"github.com/hupe1980/botmesh/logging"
	"github.com/hupe1980/botmesh/mind"
)

// reply handles the answer to the parameter being confirmed.
type reply struct{ *Flow }

// Run applies the answer. A rejected answer is classified: the user may
// want to go back, dig into a sub skill, restart or change the topic.
func (v *reply) Run(ctx context.Context) (*core.Context, error) {
	conv, ev := v.conv, v.event

	if !v.engine.messenger.CheckSupportedEventType(ev, core.FlowReply) {
		return conv, nil
	}

	if err := v.dispatch(ctx); err != nil {
		return nil, err
	}

	v.hear(ctx)
	return v.Respond(ctx)
}

func (v *reply) dispatch(ctx context.Context) error {
	conv, ev := v.conv, v.event

	pb, ok, err := intentPostback(ev)
	if err != nil {
		return err
	}
	if ok {
		switch intent := *pb.Intent; {
		case v.engine.opts.ModifyPreviousParameterIntent != "" && intent.Name == v.engine.opts.ModifyPreviousParameterIntent:
			return v.ModifyPreviousParameter(ctx)
		case intent.Name == conv.Intent.Name:
			return v.RestartConversation(ctx, intent)
		default:
			return v.ChangeIntent(ctx, intent)
		}
	}

	params, ok, err := processParametersPostback(ev)
	if err != nil {
		return err
	}
	if ok {
		return v.ProcessParameters(ctx, params)
	}

	value := ev.ParamValue()
	applied, err := v.ApplyParameter(ctx, conv.Confirming, value, false)
	if err != nil {
		return err
	}
	switch {
	case applied == nil:
		return nil
	case applied.Err == nil:
		if err := v.react(ctx, applied); err != nil {
			return err
		}
		return v.recollectList(ctx, applied.Name)
	}
	return v.rejected(ctx, applied, value)
}

// recollectList asks for one more element of a list parameter while its
// while hook holds.
func (v *reply) recollectList(ctx context.Context, name string) error {
	p, _ := v.conv.Skill.Lookup(v.conv, name)
	if p == nil || p.List == nil || p.While == nil {
		return nil
	}
	more, err := p.While(ctx, v.bot, v.event, v.conv)
	if err != nil {
		return fmt.Errorf("while of %s: %w", name, err)
	}
	if !more {
		return nil
	}
	return v.bot.Collect(name)
}

func (v *reply) rejected(ctx context.Context, applied *Applied, value any) error {
	conv := v.conv

	translated := value
	if s, ok := value.(string); ok {
		t, err := v.toBotLanguage(ctx, s)
		if err != nil {
			return err
		}
		translated = t
	}

	m, err := v.engine.mind.Identify(ctx, translated, v.mindState())
	if err != nil {
		return err
	}
	v.logger().Debug("Mind identified", "result", m.Result, "intent", m.Intent.Name)

	switch m.Result {
	case mind.ModifyPreviousParameter:
		return v.ModifyPreviousParameter(ctx)
	case mind.Dig:
		return v.Dig(ctx, m.Intent)
	case mind.RestartConversation:
		v.status(ctx, logging.StatusRestarted, &m.Intent)
		return v.RestartConversation(ctx, m.Intent)
	case mind.ChangeIntent:
		v.status(ctx, logging.StatusSwitched, &m.Intent)
		return v.ChangeIntent(ctx, m.Intent)
	case mind.ChangeParameter:
		changed, err := v.ApplyParameter(ctx, m.Parameter.Name, translated, true)
		if err != nil {
			return err
		}
		return v.react(ctx, changed)
	case mind.NoIdea:
		return v.react(ctx, applied)
	}
	return fmt.Errorf("%w: %s (confirming %s)", core.ErrUnknownMind, m.Result, conv.Confirming)
}
