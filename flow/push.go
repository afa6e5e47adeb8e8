package flow

import (
	"context"

	"github.com/hupe1980/botmesh/core"
)

// push handles events injected by the application, such as scheduled
// reminders. Questions are sent to the recipient instead of replied.
type push struct{ *Flow }

// Run starts the intent carried by the event. With ClearContext set to
// false the running conversation is archived rather than dropped.
func (v *push) Run(ctx context.Context) (*core.Context, error) {
	conv, ev := v.conv, v.event
	if ev.Intent == nil || ev.Intent.Name == "" {
		return nil, core.ErrPushWithoutIntent
	}

	if ev.ClearContext != nil && !*ev.ClearContext {
		if err := v.ChangeIntent(ctx, *ev.Intent); err != nil {
			return nil, err
		}
		return v.Respond(ctx)
	}

	conv.Intent = *ev.Intent
	conv.SenderLanguage = ev.Language
	found, err := v.bindSkill(conv.Intent)
	if err != nil || !found {
		return nil, err
	}
	return v.start(ctx)
}
