package skill

import (
	"context"

	"github.com/hupe1980/botmesh/core"
)

// BuiltinDefault is the fallback skill for the default intent. It has no
// parameters and replies the fulfillment messages the classifier attached
// to the intent, if any.
func BuiltinDefault(core.Intent) (*core.Skill, error) {
	return &core.Skill{
		Type: core.DefaultSkillType,
		Finish: func(ctx context.Context, bot core.Bot, _ *core.Event, conv *core.Context) error {
			if len(conv.Intent.Fulfillment) == 0 {
				return nil
			}
			return bot.Reply(ctx, conv.Intent.Fulfillment...)
		},
	}, nil
}
